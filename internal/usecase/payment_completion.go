package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"greentoken/internal/domain"

	"github.com/google/uuid"
)

type PaymentOutcome string

const (
	PaymentCompleted  PaymentOutcome = "completed"
	PaymentProcessing PaymentOutcome = "processing"
	PaymentRejected   PaymentOutcome = "rejected"
)

type PaymentCompletionResult struct {
	Outcome PaymentOutcome        `json:"outcome"`
	Verdict domain.PaymentVerdict `json:"verdict"`
	Grant   *domain.CreditGrant   `json:"grant,omitempty"`
}

// PaymentCompletion turns an accepted payment proof into a credit grant.
type PaymentCompletion struct {
	Payments domain.PaymentRepository
	Cache    domain.ReferenceCache
	Verifier *PaymentVerifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewPaymentCompletion wires a verifier whose duplicate lookup consults the
// cache before the repository. cache may be nil.
func NewPaymentCompletion(payments domain.PaymentRepository, cache domain.ReferenceCache, ledger domain.TransactionReader, logger *slog.Logger) (*PaymentCompletion, error) {
	if payments == nil {
		return nil, errors.New("payment repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	verifier, err := NewPaymentVerifier(consumedLookup{cache: cache, repo: payments, logger: logger}, ledger, logger)
	if err != nil {
		return nil, err
	}
	return &PaymentCompletion{
		Payments: payments,
		Cache:    cache,
		Verifier: verifier,
		Logger:   logger,
		Now:      time.Now,
	}, nil
}

// CompletePayment verifies proof and, when accepted, records the consumed
// reference and the credit grant in one transaction. Callers handling the
// same reference concurrently are serialized by the store's unique
// constraint on consumed references: exactly one of them completes.
func (c *PaymentCompletion) CompletePayment(ctx context.Context, userID string, proof domain.PaymentProof) (PaymentCompletionResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return PaymentCompletionResult{}, domain.NewValidationError("userId", "is required")
	}

	verdict := c.Verifier.Verify(ctx, proof)
	switch verdict.Status {
	case domain.VerdictIndeterminate:
		return PaymentCompletionResult{Outcome: PaymentProcessing, Verdict: verdict}, nil
	case domain.VerdictRejected:
		return PaymentCompletionResult{Outcome: PaymentRejected, Verdict: verdict}, nil
	}

	ref := NormalizeReference(proof.Reference)
	now := c.now()
	consumed := domain.ConsumedReference{
		Reference:  ref,
		Claimant:   strings.TrimSpace(proof.Claimant),
		Value:      proof.ClaimedValue,
		ConsumedAt: now,
	}
	if verdict.Transaction != nil {
		consumed.BlockNumber = verdict.Transaction.BlockNumber
	}
	if verdict.OnChainValue != nil {
		consumed.Value = *verdict.OnChainValue
	}
	grant := domain.CreditGrant{
		ID:        uuid.NewString(),
		UserID:    userID,
		Reference: ref,
		Amount:    proof.ClaimedValue,
		CreatedAt: now,
	}

	err := c.Payments.WithTx(ctx, func(tx domain.PaymentTx) error {
		if err := tx.RecordConsumedReference(ctx, consumed); err != nil {
			return err
		}
		return tx.RecordCredit(ctx, grant)
	})
	if errors.Is(err, domain.ErrReferenceConsumed) {
		c.Logger.Info("payment rejected: reference consumed concurrently", "reference", ref, "user_id", userID)
		c.mark(ctx, ref)
		return PaymentCompletionResult{
			Outcome: PaymentRejected,
			Verdict: domain.Rejected(domain.RejectDuplicateReference, "reference already consumed"),
		}, nil
	}
	if err != nil {
		return PaymentCompletionResult{}, fmt.Errorf("record payment: %w", err)
	}

	c.mark(ctx, ref)
	c.Logger.Info("payment completed", "reference", ref, "user_id", userID, "amount", grant.Amount.String(), "grant_id", grant.ID)
	return PaymentCompletionResult{Outcome: PaymentCompleted, Verdict: verdict, Grant: &grant}, nil
}

func (c *PaymentCompletion) mark(ctx context.Context, ref string) {
	if c.Cache == nil {
		return
	}
	if err := c.Cache.Mark(ctx, ref); err != nil {
		c.Logger.Warn("reference cache mark failed", "reference", ref, "error", err)
	}
}

func (c *PaymentCompletion) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}

// consumedLookup answers from the cache when it has seen the reference and
// falls through to the repository otherwise. A cache error is not fatal.
type consumedLookup struct {
	cache  domain.ReferenceCache
	repo   domain.ConsumedReferenceLookup
	logger *slog.Logger
}

func (l consumedLookup) IsConsumed(ctx context.Context, reference string) (bool, error) {
	if l.cache != nil {
		hit, err := l.cache.IsConsumed(ctx, reference)
		if err != nil {
			l.logger.Warn("reference cache lookup failed", "reference", reference, "error", err)
		} else if hit {
			return true, nil
		}
	}
	return l.repo.IsConsumed(ctx, reference)
}
