package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"greentoken/internal/domain"
	cryptoinfra "greentoken/internal/infra/crypto"
	"greentoken/internal/usecase"
)

func runFingerprint(args []string) int {
	fs := flag.NewFlagSet("fingerprint", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var inPath string
	var outPath string
	var canonical bool
	fs.StringVar(&inPath, "in", "", "project document JSON")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")
	fs.BoolVar(&canonical, "canonical", false, "print the canonical bytes instead of the hash")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if inPath == "" {
		fmt.Fprintln(os.Stderr, "fingerprint requires --in")
		return 1
	}

	raw, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read project: %v\n", err)
		return 1
	}
	var in domain.ProjectFingerprintInput
	if err := json.Unmarshal(raw, &in); err != nil {
		fmt.Fprintf(os.Stderr, "decode project: %v\n", err)
		return 1
	}

	if canonical {
		doc, err := cryptoinfra.CanonicalFingerprint(in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "canonicalize: %v\n", err)
			return 1
		}
		if err := writeOutput(outPath, doc); err != nil {
			fmt.Fprintf(os.Stderr, "write output: %v\n", err)
			return 1
		}
		return 0
	}
	hash, err := cryptoinfra.Fingerprint(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fingerprint: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, []byte(hash)); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func runEstimate(args []string) int {
	fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var area float64
	var ecosystem string
	fs.Float64Var(&area, "area", 0, "area in hectares")
	fs.StringVar(&ecosystem, "ecosystem", "", "ecosystem type")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	credits, err := usecase.EstimateCredits(area, ecosystem)
	if err != nil {
		fmt.Fprintf(os.Stderr, "estimate: %v\n", err)
		return 1
	}
	formatted, err := cryptoinfra.FormatNumber(credits)
	if err != nil {
		fmt.Fprintf(os.Stderr, "estimate: %v\n", err)
		return 1
	}
	fmt.Fprintln(os.Stdout, formatted)
	return 0
}
