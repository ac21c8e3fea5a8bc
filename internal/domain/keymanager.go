package domain

import "context"

// MessageSigner signs arbitrary messages with a derived key.
type MessageSigner interface {
	Address() string
	SignMessage(message []byte) (WalletSignature, error)
}

// DerivedKey is a pure function of (master seed, user index).
// Degraded keys carry a placeholder address and a fallback signer.
type DerivedKey struct {
	UserIndex      uint32        `json:"user_index"`
	DerivationPath string        `json:"derivation_path"`
	PublicAddress  string        `json:"public_address"`
	Degraded       bool          `json:"degraded"`
	Signer         MessageSigner `json:"-"`
}

const (
	SignatureSchemeEIP191       = "eip191"
	SignatureSchemeHMACFallback = "hmac-sha256-fallback"
)

// WalletSignature tags fallback output so callers never mistake it for a
// ledger-valid signature.
type WalletSignature struct {
	Value    string `json:"value"`
	Scheme   string `json:"scheme"`
	Address  string `json:"address"`
	Fallback bool   `json:"fallback"`
}

// KeyDeriver derives per-user keys from the process master seed.
type KeyDeriver interface {
	DeriveKey(userIndex uint32) DerivedKey
	Sign(ctx context.Context, userIndex uint32, message []byte) (WalletSignature, error)
	VerifySignature(message []byte, signature, expectedAddress string) bool
}
