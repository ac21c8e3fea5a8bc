package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"greentoken/internal/infra/keys/hd"
)

func walletManager(seed string) *hd.Manager {
	// Manager warnings would interleave with command output.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return hd.NewManager(envOr(seed, "CUSTODIAN_WALLET_SEED"), logger)
}

func runWalletDerive(args []string) int {
	fs := flag.NewFlagSet("wallet derive", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var index uint
	var seed string
	var outPath string
	fs.UintVar(&index, "index", 0, "user index")
	fs.StringVar(&seed, "seed", "", "master seed (mnemonic or hex)")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if uint64(index) > 1<<32-1 {
		fmt.Fprintln(os.Stderr, "index must fit in 32 bits")
		return 1
	}
	m := walletManager(seed)
	if m.Insecure() {
		fmt.Fprintln(os.Stderr, "warning: using the public default seed")
	}
	return writeJSON(outPath, m.DeriveKey(uint32(index)))
}

func runWalletSign(args []string) int {
	fs := flag.NewFlagSet("wallet sign", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var index uint
	var seed string
	var message string
	var outPath string
	fs.UintVar(&index, "index", 0, "user index")
	fs.StringVar(&seed, "seed", "", "master seed (mnemonic or hex)")
	fs.StringVar(&message, "message", "", "message to sign")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if message == "" {
		fmt.Fprintln(os.Stderr, "wallet sign requires --message")
		return 1
	}
	if uint64(index) > 1<<32-1 {
		fmt.Fprintln(os.Stderr, "index must fit in 32 bits")
		return 1
	}
	sig, err := walletManager(seed).Sign(context.Background(), uint32(index), []byte(message))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		return 1
	}
	if sig.Fallback {
		fmt.Fprintln(os.Stderr, "warning: degraded key; signature is an HMAC fallback and not ledger-valid")
	}
	return writeJSON(outPath, sig)
}

func runWalletVerify(args []string) int {
	fs := flag.NewFlagSet("wallet verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var message string
	var signature string
	var address string
	fs.StringVar(&message, "message", "", "signed message")
	fs.StringVar(&signature, "signature", "", "0x-prefixed 65-byte signature")
	fs.StringVar(&address, "address", "", "expected signer address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if signature == "" || address == "" {
		fmt.Fprintln(os.Stderr, "wallet verify requires --signature and --address")
		return 1
	}
	if !hd.VerifySignature([]byte(message), signature, address) {
		fmt.Fprintln(os.Stdout, "invalid")
		return 2
	}
	fmt.Fprintln(os.Stdout, "valid")
	return 0
}

func runWalletImport(args []string) int {
	fs := flag.NewFlagSet("wallet import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var key string
	fs.StringVar(&key, "key", "", "hex private key")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	wallet, err := hd.WalletFromPrivateKey(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import: %v\n", err)
		return 1
	}
	fmt.Fprintln(os.Stdout, wallet.Address)
	return 0
}
