// Package blockchain is the ledger gateway. The mode (mock or production) is
// decided once in New and never changes for the life of the Gateway.
package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"greentoken/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

type Config struct {
	RPCURL string
	// OperatorKey signs every production write. Nil forces mock mode.
	OperatorKey      *ecdsa.PrivateKey
	RegistryAddress  string
	CreditAddress    string
	SoulboundAddress string
	// ChainID 0 asks the node.
	ChainID          int64
	RPCTimeout       time.Duration
	ConfirmTimeout   time.Duration
	MinConfirmations int
	// PollInterval between receipt lookups while waiting for confirmation.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = 15 * time.Second
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 120 * time.Second
	}
	if c.MinConfirmations <= 0 {
		c.MinConfirmations = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	return c
}

// backend is the mode-specific half of the gateway.
type backend interface {
	mode() domain.LedgerMode
	submitProject(ctx context.Context, p domain.ProjectSubmission) (domain.ChainOperationResult, error)
	approveProject(ctx context.Context, id uint64) (string, error)
	rejectProject(ctx context.Context, id uint64) (string, error)
	issueCredits(ctx context.Context, id, amount uint64, recipient string, meta domain.CreditMetadata) (domain.ChainOperationResult, error)
	mintAchievement(ctx context.Context, m domain.AchievementMint) (domain.ChainOperationResult, error)
	readTransaction(ctx context.Context, ref string) (domain.TransactionStatus, error)
	tokenBalance(ctx context.Context, address string) (string, error)
	close()
}

type Gateway struct {
	backend backend
	logger  *slog.Logger
}

var _ domain.LedgerGateway = (*Gateway)(nil)

// New picks production only when an RPC URL, an operator key and at least
// one contract address are all configured and the node answers. Anything
// less yields a mock gateway, logged once with the reason.
func New(ctx context.Context, cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	reason := productionBlocker(cfg)
	if reason == "" {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.RPCTimeout)
		client, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
		cancel()
		if err != nil {
			reason = "rpc dial failed: " + err.Error()
		} else {
			gw, err := NewProduction(ctx, client, cfg, logger)
			if err == nil {
				return gw
			}
			client.Close()
			reason = err.Error()
		}
	}
	logger.Warn("ledger gateway: running in mock mode; no ledger writes will happen", "mode", domain.LedgerModeMock, "reason", reason)
	return NewMock(logger)
}

func productionBlocker(cfg Config) string {
	var missing []string
	if strings.TrimSpace(cfg.RPCURL) == "" {
		missing = append(missing, "rpc url")
	}
	if cfg.OperatorKey == nil {
		missing = append(missing, "operator key")
	}
	if cfg.RegistryAddress == "" && cfg.CreditAddress == "" && cfg.SoulboundAddress == "" {
		missing = append(missing, "contract addresses")
	}
	for _, addr := range []string{cfg.RegistryAddress, cfg.CreditAddress, cfg.SoulboundAddress} {
		if addr != "" && !common.IsHexAddress(addr) {
			missing = append(missing, "valid contract address ("+addr+")")
		}
	}
	if len(missing) == 0 {
		return ""
	}
	return "missing " + strings.Join(missing, ", ")
}

// NewMock returns a gateway that never performs network I/O.
func NewMock(logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{backend: newMockBackend(logger), logger: logger}
}

// NewProduction binds the gateway to an already-connected client. The node
// must answer a chain id query within the RPC timeout.
func NewProduction(ctx context.Context, client RPC, cfg Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		return nil, errors.New("rpc client is nil")
	}
	if cfg.OperatorKey == nil {
		return nil, errors.New("operator key is required")
	}
	cfg = cfg.withDefaults()
	abis, err := loadContractABIs()
	if err != nil {
		return nil, err
	}

	rpcCtx, cancel := context.WithTimeout(ctx, cfg.RPCTimeout)
	defer cancel()
	nodeChainID, err := client.ChainID(rpcCtx)
	if err != nil {
		return nil, fmt.Errorf("rpc unreachable: %w", err)
	}
	chainID := nodeChainID
	if cfg.ChainID != 0 && big.NewInt(cfg.ChainID).Cmp(nodeChainID) != 0 {
		return nil, fmt.Errorf("chain id mismatch: configured %d, node reports %s", cfg.ChainID, nodeChainID)
	}

	b := &productionBackend{
		client:   client,
		cfg:      cfg,
		chainID:  chainID,
		key:      cfg.OperatorKey,
		operator: operatorAddress(cfg.OperatorKey),
		abis:     abis,
		logger:   logger,
	}
	if cfg.RegistryAddress != "" {
		b.registry = common.HexToAddress(cfg.RegistryAddress)
	}
	if cfg.CreditAddress != "" {
		b.credit = common.HexToAddress(cfg.CreditAddress)
	}
	if cfg.SoulboundAddress != "" {
		b.soulbound = common.HexToAddress(cfg.SoulboundAddress)
	}
	logger.Info("ledger gateway: production mode",
		"mode", domain.LedgerModeProduction,
		"chain_id", chainID.String(),
		"operator", b.operator.Hex(),
		"registry", cfg.RegistryAddress,
		"credit_token", cfg.CreditAddress,
		"soulbound_token", cfg.SoulboundAddress,
	)
	return &Gateway{backend: b, logger: logger}, nil
}

func (g *Gateway) Mode() domain.LedgerMode {
	return g.backend.mode()
}

func (g *Gateway) SubmitProject(ctx context.Context, p domain.ProjectSubmission) (domain.ChainOperationResult, error) {
	return g.backend.submitProject(ctx, p)
}

func (g *Gateway) ApproveProject(ctx context.Context, ledgerEntityID uint64) (string, error) {
	return g.backend.approveProject(ctx, ledgerEntityID)
}

func (g *Gateway) RejectProject(ctx context.Context, ledgerEntityID uint64) (string, error) {
	return g.backend.rejectProject(ctx, ledgerEntityID)
}

func (g *Gateway) IssueCredits(ctx context.Context, ledgerEntityID uint64, amount uint64, recipient string, meta domain.CreditMetadata) (domain.ChainOperationResult, error) {
	return g.backend.issueCredits(ctx, ledgerEntityID, amount, recipient, meta)
}

func (g *Gateway) MintAchievement(ctx context.Context, m domain.AchievementMint) (domain.ChainOperationResult, error) {
	return g.backend.mintAchievement(ctx, m)
}

// ReadTransaction is read-only and safe to retry.
func (g *Gateway) ReadTransaction(ctx context.Context, reference string) (domain.TransactionStatus, error) {
	return g.backend.readTransaction(ctx, reference)
}

// TokenBalance returns the credit token balance of address in whole tokens.
func (g *Gateway) TokenBalance(ctx context.Context, address string) (string, error) {
	return g.backend.tokenBalance(ctx, address)
}

func (g *Gateway) Close() {
	g.backend.close()
}

// IsTransactionReference reports whether ref has the 0x + 64 hex shape of a
// transaction hash.
func IsTransactionReference(ref string) bool {
	if len(ref) != 66 || !strings.HasPrefix(ref, "0x") {
		return false
	}
	for _, c := range ref[2:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
