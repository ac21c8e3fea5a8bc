package usecase

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"greentoken/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	payRef   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	claimant = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func proof(claimed int64) domain.PaymentProof {
	return domain.PaymentProof{Reference: payRef, ClaimedValue: decimal.NewFromInt(claimed), Claimant: claimant}
}

func confirmedTx(value *big.Int) domain.TransactionStatus {
	return domain.TransactionStatus{
		Confirmed:   true,
		BlockNumber: 42,
		From:        strings.ToLower(claimant),
		Value:       value,
		Mode:        domain.LedgerModeProduction,
	}
}

func newVerifier(t *testing.T, lookup domain.ConsumedReferenceLookup, reader domain.TransactionReader) *PaymentVerifier {
	t.Helper()
	v, err := NewPaymentVerifier(lookup, reader, quietLogger())
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestDuplicateReferenceRejectedWithoutLedgerRead(t *testing.T) {
	reader := &countingReader{status: confirmedTx(ether(100))}
	v := newVerifier(t, stubLookup{consumed: map[string]bool{payRef: true}}, reader)

	// Upper-case input must hit the same consumed key.
	p := proof(100)
	p.Reference = "  0x" + strings.ToUpper(payRef[2:]) + " "

	verdict := v.Verify(context.Background(), p)
	if verdict.Status != domain.VerdictRejected || verdict.Reason != domain.RejectDuplicateReference {
		t.Fatalf("expected duplicate rejection, got %+v", verdict)
	}
	if reader.reads != 0 {
		t.Fatalf("expected zero ledger reads, got %d", reader.reads)
	}
}

func TestInsufficientValue(t *testing.T) {
	reader := &countingReader{status: confirmedTx(ether(90))}
	v := newVerifier(t, stubLookup{}, reader)

	verdict := v.Verify(context.Background(), proof(100))
	if verdict.Status != domain.VerdictRejected || verdict.Reason != domain.RejectInsufficientValue {
		t.Fatalf("expected insufficient value, got %+v", verdict)
	}
	if verdict.OnChainValue == nil || !verdict.OnChainValue.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("expected on-chain value 90, got %v", verdict.OnChainValue)
	}
}

func TestVerifyOutcomes(t *testing.T) {
	cases := []struct {
		name       string
		proof      domain.PaymentProof
		lookup     stubLookup
		reader     *countingReader
		wantStatus domain.VerdictStatus
		wantReason domain.RejectReason
		wantReads  int
	}{
		{
			name:       "accepted exact value",
			proof:      proof(100),
			reader:     &countingReader{status: confirmedTx(ether(100))},
			wantStatus: domain.VerdictAccepted,
			wantReads:  1,
		},
		{
			name:       "accepted overpayment",
			proof:      proof(1),
			reader:     &countingReader{status: confirmedTx(ether(3))},
			wantStatus: domain.VerdictAccepted,
			wantReads:  1,
		},
		{
			name:       "malformed reference",
			proof:      domain.PaymentProof{Reference: "0x1234", ClaimedValue: decimal.NewFromInt(1), Claimant: claimant},
			reader:     &countingReader{},
			wantStatus: domain.VerdictRejected,
			wantReason: domain.RejectInvalidProof,
		},
		{
			name:       "zero claim",
			proof:      proof(0),
			reader:     &countingReader{},
			wantStatus: domain.VerdictRejected,
			wantReason: domain.RejectInvalidProof,
		},
		{
			name:       "bad claimant",
			proof:      domain.PaymentProof{Reference: payRef, ClaimedValue: decimal.NewFromInt(1), Claimant: "alice"},
			reader:     &countingReader{},
			wantStatus: domain.VerdictRejected,
			wantReason: domain.RejectInvalidProof,
		},
		{
			name:       "lookup failure",
			proof:      proof(1),
			lookup:     stubLookup{err: errors.New("db down")},
			reader:     &countingReader{},
			wantStatus: domain.VerdictIndeterminate,
		},
		{
			name:       "unreachable ledger",
			proof:      proof(1),
			reader:     &countingReader{err: errors.New("dial tcp: connection refused")},
			wantStatus: domain.VerdictIndeterminate,
			wantReads:  1,
		},
		{
			name:       "ledger rejects reference",
			proof:      proof(1),
			reader:     &countingReader{err: domain.NewValidationError("reference", "bad")},
			wantStatus: domain.VerdictRejected,
			wantReason: domain.RejectInvalidProof,
			wantReads:  1,
		},
		{
			name:       "unconfirmed",
			proof:      proof(1),
			reader:     &countingReader{status: domain.TransactionStatus{From: claimant, Value: ether(1)}},
			wantStatus: domain.VerdictRejected,
			wantReason: domain.RejectNotConfirmed,
			wantReads:  1,
		},
		{
			name:       "reverted",
			proof:      proof(1),
			reader:     &countingReader{status: domain.TransactionStatus{Confirmed: true, Failed: true, Value: ether(1)}},
			wantStatus: domain.VerdictRejected,
			wantReason: domain.RejectNotConfirmed,
			wantReads:  1,
		},
		{
			name:  "other sender",
			proof: proof(1),
			reader: &countingReader{status: domain.TransactionStatus{
				Confirmed: true,
				From:      "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
				Value:     ether(1),
			}},
			wantStatus: domain.VerdictRejected,
			wantReason: domain.RejectClaimantMismatch,
			wantReads:  1,
		},
		{
			name:       "no value",
			proof:      proof(1),
			reader:     &countingReader{status: confirmedTx(nil)},
			wantStatus: domain.VerdictRejected,
			wantReason: domain.RejectInsufficientValue,
			wantReads:  1,
		},
		{
			name:       "simulated ledger",
			proof:      proof(1),
			reader:     &countingReader{status: domain.TransactionStatus{Confirmed: true, Simulated: true, Mode: domain.LedgerModeMock}},
			wantStatus: domain.VerdictAccepted,
			wantReads:  1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := newVerifier(t, tc.lookup, tc.reader)
			verdict := v.Verify(context.Background(), tc.proof)
			if verdict.Status != tc.wantStatus {
				t.Fatalf("expected status %s, got %+v", tc.wantStatus, verdict)
			}
			if verdict.Reason != tc.wantReason {
				t.Fatalf("expected reason %q, got %q", tc.wantReason, verdict.Reason)
			}
			if tc.reader.reads != tc.wantReads {
				t.Fatalf("expected %d ledger reads, got %d", tc.wantReads, tc.reader.reads)
			}
		})
	}
}

func TestNewPaymentVerifierRequiresDependencies(t *testing.T) {
	if _, err := NewPaymentVerifier(nil, &countingReader{}, nil); err == nil {
		t.Fatal("expected error for nil lookup")
	}
	if _, err := NewPaymentVerifier(stubLookup{}, nil, nil); err == nil {
		t.Fatal("expected error for nil reader")
	}
}
