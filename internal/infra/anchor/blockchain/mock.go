package blockchain

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"math/big"

	"greentoken/internal/domain"
)

const (
	mockEntityIDMax = 10000
	mockBalance     = "100.0"
)

// mockBackend synthesizes results locally. It holds no mutable state.
type mockBackend struct {
	logger *slog.Logger
}

func newMockBackend(logger *slog.Logger) *mockBackend {
	return &mockBackend{logger: logger}
}

func (m *mockBackend) mode() domain.LedgerMode {
	return domain.LedgerModeMock
}

func (m *mockBackend) submitProject(ctx context.Context, p domain.ProjectSubmission) (domain.ChainOperationResult, error) {
	res := m.result()
	m.logger.Info("ledger mock: project submitted", "mode", domain.LedgerModeMock, "name", p.Name, "ledger_entity_id", res.LedgerEntityID, "tx_ref", res.TransactionReference)
	return res, nil
}

func (m *mockBackend) approveProject(ctx context.Context, id uint64) (string, error) {
	ref := mockReference()
	m.logger.Info("ledger mock: project approved", "mode", domain.LedgerModeMock, "ledger_entity_id", id, "tx_ref", ref)
	return ref, nil
}

func (m *mockBackend) rejectProject(ctx context.Context, id uint64) (string, error) {
	ref := mockReference()
	m.logger.Info("ledger mock: project rejected", "mode", domain.LedgerModeMock, "ledger_entity_id", id, "tx_ref", ref)
	return ref, nil
}

func (m *mockBackend) issueCredits(ctx context.Context, id, amount uint64, recipient string, meta domain.CreditMetadata) (domain.ChainOperationResult, error) {
	res := m.result()
	res.Amount = new(big.Int).SetUint64(amount)
	res.Recipient = recipient
	m.logger.Info("ledger mock: credits issued", "mode", domain.LedgerModeMock, "project_entity_id", id, "amount", amount, "recipient", recipient, "tx_ref", res.TransactionReference)
	return res, nil
}

func (m *mockBackend) mintAchievement(ctx context.Context, a domain.AchievementMint) (domain.ChainOperationResult, error) {
	res := m.result()
	res.Recipient = a.Recipient
	m.logger.Info("ledger mock: achievement minted", "mode", domain.LedgerModeMock, "title", a.Title, "recipient", a.Recipient, "tx_ref", res.TransactionReference)
	return res, nil
}

// readTransaction answers with an always-confirmed placeholder. Simulated is
// set and Value is nil so callers never mistake it for a real transfer.
func (m *mockBackend) readTransaction(ctx context.Context, ref string) (domain.TransactionStatus, error) {
	if !IsTransactionReference(ref) {
		return domain.TransactionStatus{}, domain.NewValidationError("reference", "must be 0x followed by 64 hex characters")
	}
	m.logger.Info("ledger mock: transaction read", "mode", domain.LedgerModeMock, "tx_ref", ref)
	return domain.TransactionStatus{
		Reference: ref,
		Confirmed: true,
		Mode:      domain.LedgerModeMock,
		Simulated: true,
	}, nil
}

func (m *mockBackend) tokenBalance(ctx context.Context, address string) (string, error) {
	return mockBalance, nil
}

func (m *mockBackend) close() {}

func (m *mockBackend) result() domain.ChainOperationResult {
	return domain.ChainOperationResult{
		TransactionReference: mockReference(),
		LedgerEntityID:       mockEntityID(),
		Mode:                 domain.LedgerModeMock,
	}
}

func mockReference() string {
	var buf [32]byte
	_, _ = rand.Read(buf[:])
	return "0x" + hex.EncodeToString(buf[:])
}

// mockEntityID is uniform in [1, mockEntityIDMax].
func mockEntityID() uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return binary.BigEndian.Uint64(buf[:])%mockEntityIDMax + 1
}
