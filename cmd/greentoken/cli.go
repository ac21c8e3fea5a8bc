package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "fingerprint":
		return runFingerprint(args[2:])
	case "estimate":
		return runEstimate(args[2:])
	case "wallet":
		if len(args) >= 3 {
			switch args[2] {
			case "derive":
				return runWalletDerive(args[3:])
			case "sign":
				return runWalletSign(args[3:])
			case "verify":
				return runWalletVerify(args[3:])
			case "import":
				return runWalletImport(args[3:])
			}
		}
	case "attest":
		if len(args) >= 3 && args[2] == "verify" {
			return runAttestVerify(args[3:])
		}
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "greentoken"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s fingerprint --in <project.json> [--canonical] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s estimate --area <hectares> --ecosystem <MANGROVE|SEAGRASS|SALT_MARSH|KELP>\n", name)
	fmt.Fprintf(os.Stderr, "  %s wallet derive --index <n> [--seed <mnemonic|hex>] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s wallet sign --index <n> --message <text> [--seed <mnemonic|hex>] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s wallet verify --message <text> --signature <0x..> --address <0x..>\n", name)
	fmt.Fprintf(os.Stderr, "  %s wallet import --key <hex>\n", name)
	fmt.Fprintf(os.Stderr, "  %s attest verify (--proof <payload.sig>|--in <attestation.json>) [--secret <secret>] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "seeds and secrets default to CUSTODIAN_WALLET_SEED and PLATFORM_SIGNING_SECRET\n")
}
