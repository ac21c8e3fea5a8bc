package hd

import (
	"crypto/ecdsa"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidPrivateKey = errors.New("invalid private key")

// ValidateAddress accepts 0x-prefixed or bare 40-hex-char addresses.
func ValidateAddress(address string) bool {
	return common.IsHexAddress(strings.TrimSpace(address))
}

func ValidatePrivateKey(hexKey string) bool {
	_, err := ParsePrivateKey(hexKey)
	return err == nil
}

// ParsePrivateKey decodes a 32-byte secp256k1 key, with or without 0x.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if len(trimmed) != 64 {
		return nil, ErrInvalidPrivateKey
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	return key, nil
}

// Wallet is an address with its key, for operator accounts imported from
// configuration rather than derived.
type Wallet struct {
	Address    string
	PrivateKey *ecdsa.PrivateKey
}

func WalletFromPrivateKey(hexKey string) (Wallet, error) {
	key, err := ParsePrivateKey(hexKey)
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{Address: crypto.PubkeyToAddress(key.PublicKey).Hex(), PrivateKey: key}, nil
}
