package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"time"

	"greentoken/internal/domain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// RPC is the subset of *ethclient.Client the production backend uses.
type RPC interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

type productionBackend struct {
	client    RPC
	cfg       Config
	chainID   *big.Int
	key       *ecdsa.PrivateKey
	operator  common.Address
	registry  common.Address
	credit    common.Address
	soulbound common.Address
	abis      contractABIs
	logger    *slog.Logger

	// sendMu keeps nonce lookup and broadcast atomic for the single operator
	// account.
	sendMu sync.Mutex
}

func operatorAddress(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

func (b *productionBackend) mode() domain.LedgerMode {
	return domain.LedgerModeProduction
}

func (b *productionBackend) submitProject(ctx context.Context, p domain.ProjectSubmission) (domain.ChainOperationResult, error) {
	res := domain.ChainOperationResult{Mode: domain.LedgerModeProduction}
	eco, ok := EcosystemCode(p.EcosystemType)
	if !ok {
		return res, domain.NewValidationError("ecosystemType", "unknown ecosystem type "+p.EcosystemType)
	}
	metadata := p.MetadataURI
	if metadata == "" {
		metadata = p.DataHash
	}
	data, err := b.abis.registry.Pack("submitProject",
		p.Name,
		p.Location,
		ScaleCoordinate(p.Latitude),
		ScaleCoordinate(p.Longitude),
		ScaleArea(p.AreaHectares),
		eco,
		metadata,
	)
	if err != nil {
		return res, submissionError(domain.AnchorOpSubmit, domain.AnchorErrorProviderError, "", err)
	}
	receipt, ref, err := b.transact(ctx, domain.AnchorOpSubmit, b.registry, data)
	res.TransactionReference = ref
	if err != nil {
		return res, err
	}
	res.LedgerEntityID = b.entityID(receipt, b.abis.registry, EventProjectSubmitted, ref)
	return res, nil
}

func (b *productionBackend) approveProject(ctx context.Context, id uint64) (string, error) {
	return b.projectDecision(ctx, domain.AnchorOpApprove, "approveProject", id)
}

func (b *productionBackend) rejectProject(ctx context.Context, id uint64) (string, error) {
	return b.projectDecision(ctx, domain.AnchorOpReject, "rejectProject", id)
}

func (b *productionBackend) projectDecision(ctx context.Context, op, method string, id uint64) (string, error) {
	if id == 0 {
		return "", submissionError(op, domain.AnchorErrorUnanchored, "", errors.New("project has no ledger entity id"))
	}
	data, err := b.abis.registry.Pack(method, new(big.Int).SetUint64(id))
	if err != nil {
		return "", submissionError(op, domain.AnchorErrorProviderError, "", err)
	}
	_, ref, err := b.transact(ctx, op, b.registry, data)
	return ref, err
}

// issueCredits mints on the credit token when one is configured and falls
// back to the registry's issueCredits otherwise.
func (b *productionBackend) issueCredits(ctx context.Context, id, amount uint64, recipient string, meta domain.CreditMetadata) (domain.ChainOperationResult, error) {
	res := domain.ChainOperationResult{Mode: domain.LedgerModeProduction, Recipient: recipient}
	if id == 0 {
		return res, submissionError(domain.AnchorOpIssue, domain.AnchorErrorUnanchored, "", errors.New("project has no ledger entity id"))
	}
	projectID := new(big.Int).SetUint64(id)
	amountInt := new(big.Int).SetUint64(amount)

	if b.credit != (common.Address{}) {
		if !common.IsHexAddress(recipient) {
			return res, domain.NewValidationError("recipient", "not a ledger address")
		}
		data, err := b.abis.credit.Pack("mintCredit",
			common.HexToAddress(recipient),
			amountInt,
			projectID,
			meta.Location,
			ScaleArea(meta.AreaHectares),
			meta.EcosystemType,
			meta.VerificationHash,
		)
		if err != nil {
			return res, submissionError(domain.AnchorOpIssue, domain.AnchorErrorProviderError, "", err)
		}
		receipt, ref, err := b.transact(ctx, domain.AnchorOpIssue, b.credit, data)
		res.TransactionReference = ref
		if err != nil {
			return res, err
		}
		res.LedgerEntityID = b.entityID(receipt, b.abis.credit, EventCreditMinted, ref)
		res.Amount = eventAmount(receipt.Logs, b.abis.credit, EventCreditMinted)
		return res, nil
	}

	data, err := b.abis.registry.Pack("issueCredits", projectID, amountInt)
	if err != nil {
		return res, submissionError(domain.AnchorOpIssue, domain.AnchorErrorProviderError, "", err)
	}
	receipt, ref, err := b.transact(ctx, domain.AnchorOpIssue, b.registry, data)
	res.TransactionReference = ref
	if err != nil {
		return res, err
	}
	res.LedgerEntityID = b.entityID(receipt, b.abis.registry, EventCreditsIssued, ref)
	res.Amount = eventAmount(receipt.Logs, b.abis.registry, EventCreditsIssued)
	return res, nil
}

func (b *productionBackend) mintAchievement(ctx context.Context, m domain.AchievementMint) (domain.ChainOperationResult, error) {
	res := domain.ChainOperationResult{Mode: domain.LedgerModeProduction, Recipient: m.Recipient}
	if !common.IsHexAddress(m.Recipient) {
		return res, domain.NewValidationError("recipient", "not a ledger address")
	}
	data, err := b.abis.soulbound.Pack("mintAchievement",
		common.HexToAddress(m.Recipient),
		m.Title,
		m.Description,
		new(big.Int).SetUint64(m.ProjectID),
		m.MetadataURI,
	)
	if err != nil {
		return res, submissionError(domain.AnchorOpMint, domain.AnchorErrorProviderError, "", err)
	}
	receipt, ref, err := b.transact(ctx, domain.AnchorOpMint, b.soulbound, data)
	res.TransactionReference = ref
	if err != nil {
		return res, err
	}
	res.LedgerEntityID = b.entityID(receipt, b.abis.soulbound, EventAchievementMinted, ref)
	return res, nil
}

func (b *productionBackend) entityID(receipt *types.Receipt, contractABI abi.ABI, eventName, ref string) uint64 {
	id, ok := ExtractEntityID(receipt.Logs, contractABI, eventName)
	if !ok {
		b.logger.Warn("ledger: expected event missing from receipt; entity id not determinable",
			"event", eventName, "tx_ref", ref, "logs", len(receipt.Logs))
	}
	return id
}

// transact signs, broadcasts and waits for one contract call. A call that
// was broadcast returns its reference even when it fails afterwards.
func (b *productionBackend) transact(ctx context.Context, op string, to common.Address, data []byte) (*types.Receipt, string, error) {
	if to == (common.Address{}) {
		return nil, "", submissionError(op, domain.AnchorErrorBadConfig, "", errors.New("contract address not configured"))
	}
	signed, err := b.send(ctx, op, to, data)
	if err != nil {
		return nil, "", err
	}
	ref := signed.Hash().Hex()
	b.logger.Info("ledger: transaction broadcast", "operation", op, "tx_ref", ref, "nonce", signed.Nonce())

	receipt, err := b.waitForReceipt(ctx, op, signed.Hash())
	if err != nil {
		return nil, ref, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, ref, submissionError(op, domain.AnchorErrorReverted, ref, errors.New("transaction reverted"))
	}
	b.logger.Info("ledger: transaction confirmed", "operation", op, "tx_ref", ref, "block", receipt.BlockNumber)
	return receipt, ref, nil
}

func (b *productionBackend) send(ctx context.Context, op string, to common.Address, data []byte) (*types.Transaction, error) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	rpcCtx, cancel := context.WithTimeout(ctx, b.cfg.RPCTimeout)
	defer cancel()

	nonce, err := b.client.PendingNonceAt(rpcCtx, b.operator)
	if err != nil {
		return nil, submissionError(op, rpcErrorCode(err), "", fmt.Errorf("nonce: %w", err))
	}
	gasPrice, err := b.client.SuggestGasPrice(rpcCtx)
	if err != nil {
		return nil, submissionError(op, rpcErrorCode(err), "", fmt.Errorf("gas price: %w", err))
	}
	gas, err := b.client.EstimateGas(rpcCtx, ethereum.CallMsg{From: b.operator, To: &to, Data: data})
	if err != nil {
		code := rpcErrorCode(err)
		if code == domain.AnchorErrorNetwork {
			// Nodes report would-revert calls as estimation errors.
			code = domain.AnchorErrorReverted
		}
		return nil, submissionError(op, code, "", fmt.Errorf("estimate gas: %w", err))
	}
	gas += gas / 5

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.key)
	if err != nil {
		return nil, submissionError(op, domain.AnchorErrorProviderError, "", fmt.Errorf("sign: %w", err))
	}
	if err := b.client.SendTransaction(rpcCtx, signed); err != nil {
		return nil, submissionError(op, rpcErrorCode(err), "", fmt.Errorf("send: %w", err))
	}
	return signed, nil
}

// waitForReceipt polls until the receipt has enough confirmations. Running
// out of time after broadcast is indeterminate: the transaction may still
// land, so callers reconcile through ReadTransaction instead of resending.
func (b *productionBackend) waitForReceipt(ctx context.Context, op string, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, b.cfg.ConfirmTimeout)
	defer cancel()
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := b.receipt(waitCtx, hash)
		switch {
		case err == nil && receipt != nil:
			if b.hasConfirmations(waitCtx, receipt) {
				return receipt, nil
			}
		case err != nil && !errors.Is(err, ethereum.NotFound):
			b.logger.Debug("ledger: receipt lookup failed, retrying", "tx_ref", hash.Hex(), "error", err)
		}
		select {
		case <-waitCtx.Done():
			return nil, submissionError(op, domain.AnchorErrorTimeout, hash.Hex(),
				fmt.Errorf("%w: no confirmation within %s", domain.ErrIndeterminate, b.cfg.ConfirmTimeout))
		case <-ticker.C:
		}
	}
}

func (b *productionBackend) receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	rpcCtx, cancel := context.WithTimeout(ctx, b.cfg.RPCTimeout)
	defer cancel()
	return b.client.TransactionReceipt(rpcCtx, hash)
}

func (b *productionBackend) hasConfirmations(ctx context.Context, receipt *types.Receipt) bool {
	if b.cfg.MinConfirmations <= 1 {
		return true
	}
	rpcCtx, cancel := context.WithTimeout(ctx, b.cfg.RPCTimeout)
	defer cancel()
	head, err := b.client.BlockNumber(rpcCtx)
	if err != nil || receipt.BlockNumber == nil {
		return false
	}
	return confirmations(head, receipt.BlockNumber.Uint64()) >= uint64(b.cfg.MinConfirmations)
}

func confirmations(head, block uint64) uint64 {
	if head < block {
		return 0
	}
	return head - block + 1
}

func (b *productionBackend) readTransaction(ctx context.Context, ref string) (domain.TransactionStatus, error) {
	if !IsTransactionReference(ref) {
		return domain.TransactionStatus{}, domain.NewValidationError("reference", "must be 0x followed by 64 hex characters")
	}
	hash := common.HexToHash(ref)
	status := domain.TransactionStatus{Reference: ref, Mode: domain.LedgerModeProduction}

	rpcCtx, cancel := context.WithTimeout(ctx, b.cfg.RPCTimeout)
	defer cancel()

	tx, pending, err := b.client.TransactionByHash(rpcCtx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return status, nil
	}
	if err != nil {
		return domain.TransactionStatus{}, fmt.Errorf("read transaction %s: %w", ref, err)
	}
	if to := tx.To(); to != nil {
		status.To = to.Hex()
	}
	if tx.Value() != nil {
		status.Value = new(big.Int).Set(tx.Value())
	}
	if from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx); err == nil {
		status.From = from.Hex()
	}
	if pending {
		return status, nil
	}

	receipt, err := b.client.TransactionReceipt(rpcCtx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return status, nil
	}
	if err != nil {
		return domain.TransactionStatus{}, fmt.Errorf("read receipt %s: %w", ref, err)
	}
	if receipt.BlockNumber != nil {
		status.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		status.Failed = true
		return status, nil
	}
	head, err := b.client.BlockNumber(rpcCtx)
	if err != nil {
		return domain.TransactionStatus{}, fmt.Errorf("read block number: %w", err)
	}
	status.Confirmed = confirmations(head, status.BlockNumber) >= uint64(b.cfg.MinConfirmations)
	return status, nil
}

func (b *productionBackend) tokenBalance(ctx context.Context, address string) (string, error) {
	if b.credit == (common.Address{}) {
		return "", errors.New("credit token address not configured")
	}
	if !common.IsHexAddress(address) {
		return "", domain.NewValidationError("address", "not a ledger address")
	}
	data, err := b.abis.credit.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return "", err
	}
	rpcCtx, cancel := context.WithTimeout(ctx, b.cfg.RPCTimeout)
	defer cancel()
	out, err := b.client.CallContract(rpcCtx, ethereum.CallMsg{To: &b.credit, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("balanceOf: %w", err)
	}
	values, err := b.abis.credit.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return "", fmt.Errorf("decode balanceOf: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return "", errors.New("decode balanceOf: unexpected type")
	}
	return WeiToEther(balance).String(), nil
}

func (b *productionBackend) close() {
	b.client.Close()
}

func submissionError(op, code, ref string, err error) *domain.LedgerSubmissionError {
	return &domain.LedgerSubmissionError{Operation: op, Code: code, TxRef: ref, Err: err}
}

func rpcErrorCode(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.AnchorErrorTimeout
	}
	return domain.AnchorErrorNetwork
}

// ScaleCoordinate encodes degrees as the registry's int256 micro-degrees.
func ScaleCoordinate(deg float64) *big.Int {
	return big.NewInt(int64(math.Round(deg * 1e6)))
}

// ScaleArea encodes hectares as the registry's uint256 centi-hectares.
func ScaleArea(hectares float64) *big.Int {
	if hectares <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).SetUint64(uint64(math.Round(hectares * 100)))
}

// WeiToEther converts a base-unit amount to an 18-decimal value.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}
