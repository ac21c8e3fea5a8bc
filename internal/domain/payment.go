package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentProof is an externally supplied claim that a ledger transfer happened.
type PaymentProof struct {
	Reference    string          `json:"reference"`
	ClaimedValue decimal.Decimal `json:"claimedValue"`
	Claimant     string          `json:"claimant"`
}

type VerdictStatus string

const (
	VerdictAccepted      VerdictStatus = "accepted"
	VerdictRejected      VerdictStatus = "rejected"
	VerdictIndeterminate VerdictStatus = "indeterminate"
)

type RejectReason string

const (
	RejectDuplicateReference RejectReason = "DuplicateReference"
	RejectInvalidProof       RejectReason = "InvalidProof"
	RejectNotConfirmed       RejectReason = "NotConfirmed"
	RejectInsufficientValue  RejectReason = "InsufficientValue"
	RejectClaimantMismatch   RejectReason = "ClaimantMismatch"
)

// PaymentVerdict is the outcome of one verification. Indeterminate must be
// retried; Rejected is final for the given input.
type PaymentVerdict struct {
	Status      VerdictStatus      `json:"status"`
	Reason      RejectReason       `json:"reason,omitempty"`
	Detail      string             `json:"detail,omitempty"`
	Transaction *TransactionStatus `json:"transaction,omitempty"`
	// OnChainValue is the transferred value in ether, when known.
	OnChainValue *decimal.Decimal `json:"onChainValue,omitempty"`
}

func Accepted(tx TransactionStatus, value *decimal.Decimal) PaymentVerdict {
	return PaymentVerdict{Status: VerdictAccepted, Transaction: &tx, OnChainValue: value}
}

func Rejected(reason RejectReason, detail string) PaymentVerdict {
	return PaymentVerdict{Status: VerdictRejected, Reason: reason, Detail: detail}
}

func Indeterminate(detail string) PaymentVerdict {
	return PaymentVerdict{Status: VerdictIndeterminate, Detail: detail}
}

type ConsumedReference struct {
	Reference   string
	Claimant    string
	Value       decimal.Decimal
	BlockNumber uint64
	ConsumedAt  time.Time
}

type CreditGrant struct {
	ID        string
	UserID    string
	Reference string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// ConsumedReferenceLookup is the advisory early check. It is a fast path
// only: the unique constraint behind PaymentTx.RecordConsumedReference is the
// enforcement point.
type ConsumedReferenceLookup interface {
	IsConsumed(ctx context.Context, reference string) (bool, error)
}

// ReferenceCache accelerates ConsumedReferenceLookup. Mark is best effort.
type ReferenceCache interface {
	ConsumedReferenceLookup
	Mark(ctx context.Context, reference string) error
}

type PaymentTx interface {
	// RecordConsumedReference must fail with ErrReferenceConsumed when the
	// reference already exists.
	RecordConsumedReference(ctx context.Context, ref ConsumedReference) error
	RecordCredit(ctx context.Context, grant CreditGrant) error
}

type PaymentRepository interface {
	ConsumedReferenceLookup
	WithTx(ctx context.Context, fn func(tx PaymentTx) error) error
}
