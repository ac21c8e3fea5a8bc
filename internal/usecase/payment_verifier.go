package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"greentoken/internal/domain"
	"greentoken/internal/infra/anchor/blockchain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PaymentVerifier checks an externally supplied payment proof against ledger
// state. It never records anything: the caller consumes the reference in the
// same transaction that credits the value.
type PaymentVerifier struct {
	Consumed domain.ConsumedReferenceLookup
	Ledger   domain.TransactionReader
	Logger   *slog.Logger
}

func NewPaymentVerifier(consumed domain.ConsumedReferenceLookup, ledger domain.TransactionReader, logger *slog.Logger) (*PaymentVerifier, error) {
	if consumed == nil {
		return nil, errors.New("consumed reference lookup is required")
	}
	if ledger == nil {
		return nil, errors.New("transaction reader is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentVerifier{Consumed: consumed, Ledger: ledger, Logger: logger}, nil
}

// NormalizeReference lowercases and trims a transaction reference so the
// same transfer always maps to the same consumed-reference key.
func NormalizeReference(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}

// Verify runs the checks in a fixed order. The duplicate check happens
// before any ledger read, and a ledger that cannot be read yields
// Indeterminate, never Rejected.
func (v *PaymentVerifier) Verify(ctx context.Context, proof domain.PaymentProof) domain.PaymentVerdict {
	proof.Reference = NormalizeReference(proof.Reference)
	proof.Claimant = strings.TrimSpace(proof.Claimant)
	if err := validateProof(proof); err != nil {
		return domain.Rejected(domain.RejectInvalidProof, err.Error())
	}

	consumed, err := v.Consumed.IsConsumed(ctx, proof.Reference)
	if err != nil {
		v.Logger.Warn("payment verification indeterminate: consumed lookup failed", "reference", proof.Reference, "error", err)
		return domain.Indeterminate("consumed reference lookup failed")
	}
	if consumed {
		v.Logger.Info("payment rejected: reference already consumed", "reference", proof.Reference)
		return domain.Rejected(domain.RejectDuplicateReference, "reference already consumed")
	}

	tx, err := v.Ledger.ReadTransaction(ctx, proof.Reference)
	if err != nil {
		if domain.IsValidation(err) {
			return domain.Rejected(domain.RejectInvalidProof, err.Error())
		}
		v.Logger.Warn("payment verification indeterminate: ledger read failed", "reference", proof.Reference, "error", err)
		return domain.Indeterminate("ledger read failed")
	}

	if tx.Failed {
		return domain.Rejected(domain.RejectNotConfirmed, "transaction reverted")
	}
	if !tx.Confirmed {
		return domain.Rejected(domain.RejectNotConfirmed, "transaction not confirmed")
	}
	if tx.Simulated {
		// Mock mode has nothing to compare against.
		v.Logger.Warn("payment accepted against simulated ledger", "mode", tx.Mode, "reference", proof.Reference, "claimed", proof.ClaimedValue.String())
		return domain.Accepted(tx, nil)
	}
	if tx.From != "" && !strings.EqualFold(tx.From, proof.Claimant) {
		return domain.Rejected(domain.RejectClaimantMismatch, fmt.Sprintf("transaction sent by %s", tx.From))
	}
	if tx.Value == nil {
		return domain.Rejected(domain.RejectInsufficientValue, "transaction carries no value")
	}
	onChain := blockchain.WeiToEther(tx.Value)
	if onChain.LessThan(proof.ClaimedValue) {
		verdict := domain.Rejected(domain.RejectInsufficientValue,
			fmt.Sprintf("claimed %s, transferred %s", proof.ClaimedValue.String(), onChain.String()))
		verdict.OnChainValue = &onChain
		return verdict
	}
	v.Logger.Info("payment accepted", "reference", proof.Reference, "claimant", proof.Claimant, "value", onChain.String(), "block", tx.BlockNumber)
	return domain.Accepted(tx, &onChain)
}

func validateProof(p domain.PaymentProof) error {
	if !blockchain.IsTransactionReference(p.Reference) {
		return domain.NewValidationError("reference", "must be 0x followed by 64 hex characters")
	}
	if !p.ClaimedValue.GreaterThan(decimal.Zero) {
		return domain.NewValidationError("claimedValue", "must be positive")
	}
	if !common.IsHexAddress(p.Claimant) {
		return domain.NewValidationError("claimant", "must be a 0x address")
	}
	return nil
}
