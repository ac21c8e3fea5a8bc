package hd

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// DefaultSeed is the well-known development seed. Keys derived from it are
// public knowledge.
const DefaultSeed = "greentoken-custodian-default-seed-change-in-production"

// Seed is the resolved BIP-39 seed plus how it was obtained.
type Seed struct {
	Bytes    []byte
	Mnemonic string
	Insecure bool
}

// ResolveSeed turns the configured secret into a BIP-39 seed:
//   - empty or DefaultSeed: 128-bit entropy from sha256(DefaultSeed), flagged insecure
//   - 12 or more words: used as a mnemonic phrase and checksum-validated
//   - anything else: 128-bit entropy from sha256(secret)
func ResolveSeed(secret string) (Seed, error) {
	secret = strings.TrimSpace(secret)
	insecure := false
	if secret == "" || secret == DefaultSeed {
		secret = DefaultSeed
		insecure = true
	}

	var mnemonic string
	if len(strings.Fields(secret)) >= 12 {
		mnemonic = strings.Join(strings.Fields(secret), " ")
	} else {
		sum := sha256.Sum256([]byte(secret))
		m, err := bip39.NewMnemonic(sum[:16])
		if err != nil {
			return Seed{}, fmt.Errorf("mnemonic from entropy: %w", err)
		}
		mnemonic = m
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return Seed{}, errors.New("invalid mnemonic phrase")
	}
	return Seed{Bytes: seed, Mnemonic: mnemonic, Insecure: insecure}, nil
}
