package hd

import (
	"errors"
	"testing"
)

// Well-known hardhat account #0.
const (
	hardhatKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestWalletFromPrivateKey(t *testing.T) {
	w, err := WalletFromPrivateKey(hardhatKey)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if w.Address != hardhatAddress {
		t.Fatalf("unexpected address %s", w.Address)
	}
	if _, err := WalletFromPrivateKey("0x1234"); !errors.Is(err, ErrInvalidPrivateKey) {
		t.Fatalf("expected invalid key error, got %v", err)
	}
}

func TestValidateHelpers(t *testing.T) {
	cases := []struct {
		name  string
		fn    func(string) bool
		input string
		want  bool
	}{
		{"address checksummed", ValidateAddress, hardhatAddress, true},
		{"address lower", ValidateAddress, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", true},
		{"address short", ValidateAddress, "0xf39fd6", false},
		{"address junk", ValidateAddress, "hello", false},
		{"key with prefix", ValidatePrivateKey, hardhatKey, true},
		{"key bare", ValidatePrivateKey, hardhatKey[2:], true},
		{"key zero", ValidatePrivateKey, "0x" + "0000000000000000000000000000000000000000000000000000000000000000", false},
		{"key not hex", ValidatePrivateKey, "0x" + "zz74bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fn(tc.input); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
