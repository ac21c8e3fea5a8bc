package hd

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"greentoken/internal/config"
	"greentoken/internal/domain"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// BIP-44 prefix for Ethereum external addresses; the user index is appended.
const pathPrefix = "m/44'/60'/0'/0/"

var errNotInitialized = errors.New("hd master key not initialized")

// Manager derives custodian wallets from one master seed. It holds no state
// besides the account-level extended key, so it is safe for concurrent use.
type Manager struct {
	logger   *slog.Logger
	account  *hdkeychain.ExtendedKey
	insecure bool
	initErr  error
}

func NewManagerFromConfig(cfg config.Config, logger *slog.Logger) *Manager {
	return NewManager(cfg.MasterSeed, logger)
}

// NewManager never fails: a seed that cannot be turned into a master key
// leaves the manager degraded, and every derived key is a placeholder.
func NewManager(secret string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{logger: logger}

	seed, err := ResolveSeed(secret)
	if err != nil {
		m.initErr = err
		logger.Error("hd wallet: master seed unusable, running degraded", "error", err)
		return m
	}
	m.insecure = seed.Insecure
	if seed.Insecure {
		logger.Warn("hd wallet: using the public default seed; every derived key is guessable. Set CUSTODIAN_WALLET_SEED in production", "insecure", true)
	}

	account, err := accountKey(seed.Bytes)
	if err != nil {
		m.initErr = err
		logger.Error("hd wallet: master key derivation failed, running degraded", "error", err)
		return m
	}
	m.account = account
	logger.Info("hd wallet: initialized", "master_address", m.MasterAddress())
	return m
}

// accountKey walks m/44'/60'/0'/0.
func accountKey(seed []byte) (*hdkeychain.ExtendedKey, error) {
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	for _, idx := range []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
	} {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("derive %d: %w", idx, err)
		}
	}
	return key, nil
}

func DerivationPath(userIndex uint32) string {
	return pathPrefix + strconv.FormatUint(uint64(userIndex), 10)
}

// DeriveKey is the pure form of Manager.DeriveKey: (seed, index) in,
// key out, nothing retained.
func DeriveKey(seed []byte, userIndex uint32) (domain.DerivedKey, error) {
	account, err := accountKey(seed)
	if err != nil {
		return domain.DerivedKey{}, err
	}
	priv, err := childKey(account, userIndex)
	if err != nil {
		return domain.DerivedKey{}, err
	}
	return realKey(userIndex, priv), nil
}

func childKey(account *hdkeychain.ExtendedKey, userIndex uint32) (*ecdsa.PrivateKey, error) {
	if account == nil {
		return nil, errNotInitialized
	}
	// Indices at or above 2^31 would silently become hardened children and
	// leave the m/44'/60'/0'/0/i path family.
	if userIndex >= hdkeychain.HardenedKeyStart {
		return nil, fmt.Errorf("user index %d outside non-hardened range", userIndex)
	}
	child, err := account.Derive(userIndex)
	if err != nil {
		return nil, err
	}
	ecPriv, err := child.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return ecPriv.ToECDSA(), nil
}

func realKey(userIndex uint32, priv *ecdsa.PrivateKey) domain.DerivedKey {
	signer := &ecdsaSigner{priv: priv, address: crypto.PubkeyToAddress(priv.PublicKey)}
	return domain.DerivedKey{
		UserIndex:      userIndex,
		DerivationPath: DerivationPath(userIndex),
		PublicAddress:  signer.Address(),
		Signer:         signer,
	}
}

func degradedKey(userIndex uint32) domain.DerivedKey {
	signer := &fallbackSigner{userIndex: userIndex, address: PlaceholderAddress(userIndex)}
	return domain.DerivedKey{
		UserIndex:      userIndex,
		DerivationPath: DerivationPath(userIndex),
		PublicAddress:  signer.address,
		Degraded:       true,
		Signer:         signer,
	}
}

// PlaceholderAddress is the deterministic stand-in used when derivation is
// unavailable: the last 20 bytes of sha256("custodian-wallet-<index>").
func PlaceholderAddress(userIndex uint32) string {
	sum := sha256.Sum256([]byte(fallbackLabel(userIndex)))
	return "0x" + hex.EncodeToString(sum[12:])
}

func fallbackLabel(userIndex uint32) string {
	return "custodian-wallet-" + strconv.FormatUint(uint64(userIndex), 10)
}

// DeriveKey returns the custodian key for userIndex. Failures never
// propagate: the caller gets a placeholder with Degraded set.
func (m *Manager) DeriveKey(userIndex uint32) domain.DerivedKey {
	priv, err := m.PrivateKey(userIndex)
	if err != nil {
		m.logger.Warn("hd wallet: derivation failed, using placeholder", "user_index", userIndex, "error", err)
		return degradedKey(userIndex)
	}
	return realKey(userIndex, priv)
}

// PrivateKey exposes the raw key for the ledger operator signer.
func (m *Manager) PrivateKey(userIndex uint32) (*ecdsa.PrivateKey, error) {
	if m == nil {
		return nil, errNotInitialized
	}
	return childKey(m.account, userIndex)
}

// Sign derives the key for userIndex on every call and produces an EIP-191
// personal-message signature, or a tagged HMAC fallback when degraded.
func (m *Manager) Sign(ctx context.Context, userIndex uint32, message []byte) (domain.WalletSignature, error) {
	if err := ctx.Err(); err != nil {
		return domain.WalletSignature{}, err
	}
	return m.DeriveKey(userIndex).Signer.SignMessage(message)
}

func (m *Manager) VerifySignature(message []byte, signature, expectedAddress string) bool {
	return VerifySignature(message, signature, expectedAddress)
}

// MasterAddress is the custodian treasury address, the key at index 0.
// Degraded managers report the zero address.
func (m *Manager) MasterAddress() string {
	priv, err := m.PrivateKey(0)
	if err != nil {
		return common.Address{}.Hex()
	}
	return crypto.PubkeyToAddress(priv.PublicKey).Hex()
}

func (m *Manager) Insecure() bool {
	return m != nil && m.insecure
}

func (m *Manager) Degraded() bool {
	return m == nil || m.account == nil
}

// VerifySignature recovers the EIP-191 signer and compares it to
// expectedAddress case-insensitively. Malformed input yields false.
func VerifySignature(message []byte, signature, expectedAddress string) bool {
	if !common.IsHexAddress(expectedAddress) {
		return false
	}
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return false
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return false
	}
	return strings.EqualFold(crypto.PubkeyToAddress(*pub).Hex(), expectedAddress)
}

type ecdsaSigner struct {
	priv    *ecdsa.PrivateKey
	address common.Address
}

func (s *ecdsaSigner) Address() string {
	return s.address.Hex()
}

func (s *ecdsaSigner) SignMessage(message []byte) (domain.WalletSignature, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), s.priv)
	if err != nil {
		return domain.WalletSignature{}, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return domain.WalletSignature{
		Value:   hexutil.Encode(sig),
		Scheme:  domain.SignatureSchemeEIP191,
		Address: s.Address(),
	}, nil
}

// fallbackSigner output is not ledger-valid; it is keyed on a public label.
type fallbackSigner struct {
	userIndex uint32
	address   string
}

func (s *fallbackSigner) Address() string {
	return s.address
}

func (s *fallbackSigner) SignMessage(message []byte) (domain.WalletSignature, error) {
	h := hmac.New(sha256.New, []byte(fallbackLabel(s.userIndex)))
	_, _ = h.Write(message)
	return domain.WalletSignature{
		Value:    "0x" + hex.EncodeToString(h.Sum(nil)),
		Scheme:   domain.SignatureSchemeHMACFallback,
		Address:  s.address,
		Fallback: true,
	}, nil
}
