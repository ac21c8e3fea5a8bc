package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"greentoken/internal/domain"

	"github.com/shopspring/decimal"
)

func newCompletion(t *testing.T, payments *memPayments, cache domain.ReferenceCache, reader domain.TransactionReader) *PaymentCompletion {
	t.Helper()
	c, err := NewPaymentCompletion(payments, cache, reader, quietLogger())
	if err != nil {
		t.Fatalf("new payment completion: %v", err)
	}
	return c
}

func TestCompletePaymentRecordsOnce(t *testing.T) {
	ctx := context.Background()
	payments := newMemPayments()
	cache := newStubCache()
	reader := &countingReader{status: confirmedTx(ether(100))}
	c := newCompletion(t, payments, cache, reader)

	res, err := c.CompletePayment(ctx, "user-1", proof(100))
	if err != nil {
		t.Fatalf("complete payment: %v", err)
	}
	if res.Outcome != PaymentCompleted || res.Grant == nil {
		t.Fatalf("expected completed with grant, got %+v", res)
	}
	if !res.Grant.Amount.Equal(decimal.NewFromInt(100)) || res.Grant.UserID != "user-1" {
		t.Fatalf("unexpected grant: %+v", res.Grant)
	}
	if len(payments.grants) != 1 || payments.consumed[payRef].BlockNumber != 42 {
		t.Fatalf("expected one grant and consumed reference, got %+v", payments)
	}
	if !cache.marked[payRef] {
		t.Fatal("expected reference marked in cache")
	}

	again, err := c.CompletePayment(ctx, "user-2", proof(100))
	if err != nil {
		t.Fatalf("second completion: %v", err)
	}
	if again.Outcome != PaymentRejected || again.Verdict.Reason != domain.RejectDuplicateReference {
		t.Fatalf("expected duplicate rejection, got %+v", again)
	}
	if reader.reads != 1 {
		t.Fatalf("expected replay to skip the ledger, got %d reads", reader.reads)
	}
	if len(payments.grants) != 1 {
		t.Fatalf("expected a single grant, got %d", len(payments.grants))
	}
}

func TestCompletePaymentUnreachableLedger(t *testing.T) {
	payments := newMemPayments()
	c := newCompletion(t, payments, nil, &countingReader{err: errors.New("i/o timeout")})

	res, err := c.CompletePayment(context.Background(), "user-1", proof(5))
	if err != nil {
		t.Fatalf("complete payment: %v", err)
	}
	if res.Outcome != PaymentProcessing || res.Verdict.Status != domain.VerdictIndeterminate {
		t.Fatalf("expected processing, got %+v", res)
	}
	if len(payments.consumed) != 0 || len(payments.grants) != 0 {
		t.Fatal("expected nothing recorded for an indeterminate verdict")
	}
}

func TestCompletePaymentRejectedRecordsNothing(t *testing.T) {
	payments := newMemPayments()
	c := newCompletion(t, payments, nil, &countingReader{status: confirmedTx(ether(90))})

	res, err := c.CompletePayment(context.Background(), "user-1", proof(100))
	if err != nil {
		t.Fatalf("complete payment: %v", err)
	}
	if res.Outcome != PaymentRejected || res.Verdict.Reason != domain.RejectInsufficientValue {
		t.Fatalf("expected insufficient value rejection, got %+v", res)
	}
	if len(payments.consumed) != 0 {
		t.Fatal("expected rejected reference to stay unconsumed")
	}
}

func TestCompletePaymentConcurrentSameReference(t *testing.T) {
	payments := newMemPayments()
	c := newCompletion(t, payments, nil, &lockedReader{status: confirmedTx(ether(10))})

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.CompletePayment(context.Background(), "user-1", proof(10))
			if err != nil {
				t.Errorf("complete payment: %v", err)
				return
			}
			if res.Outcome == PaymentCompleted {
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if completed != 1 {
		t.Fatalf("expected exactly one completion, got %d", completed)
	}
	if len(payments.grants) != 1 {
		t.Fatalf("expected exactly one grant, got %d", len(payments.grants))
	}
}

func TestCompletePaymentStoreFailure(t *testing.T) {
	payments := newMemPayments()
	payments.failWith = errors.New("connection reset")
	c := newCompletion(t, payments, nil, &countingReader{status: confirmedTx(ether(10))})
	if _, err := c.CompletePayment(context.Background(), "user-1", proof(10)); err == nil {
		t.Fatal("expected store error")
	}
}

func TestCompletePaymentRequiresUser(t *testing.T) {
	c := newCompletion(t, newMemPayments(), nil, &countingReader{})
	if _, err := c.CompletePayment(context.Background(), " ", proof(1)); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConsumedLookupFallsBackOnCacheError(t *testing.T) {
	payments := newMemPayments()
	payments.consumed[payRef] = domain.ConsumedReference{Reference: payRef}
	cache := newStubCache()
	cache.err = errors.New("redis down")
	lookup := consumedLookup{cache: cache, repo: payments, logger: quietLogger()}

	consumed, err := lookup.IsConsumed(context.Background(), payRef)
	if err != nil || !consumed {
		t.Fatalf("expected repository answer, got %v %v", consumed, err)
	}
}

type lockedReader struct {
	mu     sync.Mutex
	status domain.TransactionStatus
}

func (l *lockedReader) ReadTransaction(ctx context.Context, ref string) (domain.TransactionStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.status
	st.Reference = ref
	return st, nil
}
