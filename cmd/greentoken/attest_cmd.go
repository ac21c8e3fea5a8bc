package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"greentoken/internal/domain"
	"greentoken/pkg/attest"
)

func runAttestVerify(args []string) int {
	fs := flag.NewFlagSet("attest verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var proof string
	var inPath string
	var secret string
	var outPath string
	fs.StringVar(&proof, "proof", "", "compact proof string (payload.signature)")
	fs.StringVar(&inPath, "in", "", "attestation JSON file")
	fs.StringVar(&secret, "secret", "", "platform signing secret")
	fs.StringVar(&outPath, "out", "", "output path for the verified payload (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if (proof == "") == (inPath == "") {
		fmt.Fprintln(os.Stderr, "attest verify requires exactly one of --proof or --in")
		return 1
	}

	var att domain.Attestation
	if proof != "" {
		parsed, err := attest.ParseProofString(proof)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse proof: %v\n", err)
			return 1
		}
		att = parsed
	} else {
		raw, err := os.ReadFile(inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read attestation: %v\n", err)
			return 1
		}
		if err := json.Unmarshal(raw, &att); err != nil {
			fmt.Fprintf(os.Stderr, "decode attestation: %v\n", err)
			return 1
		}
	}

	signer := attest.NewSigner(envOr(secret, "PLATFORM_SIGNING_SECRET"), nil)
	if signer.Insecure() {
		fmt.Fprintln(os.Stderr, "warning: verifying with the public default secret")
	}
	payload, err := signer.Verify(att)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		return 2
	}
	return writeJSON(outPath, payload)
}
