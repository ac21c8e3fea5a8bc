package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"greentoken/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memProjects struct {
	mu       sync.Mutex
	projects map[string]domain.ProjectRecord
	updates  int
}

func newMemProjects() *memProjects {
	return &memProjects{projects: map[string]domain.ProjectRecord{}}
}

func (m *memProjects) Create(ctx context.Context, p domain.ProjectRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return nil
}

func (m *memProjects) Get(ctx context.Context, id string) (*domain.ProjectRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *memProjects) Update(ctx context.Context, p domain.ProjectRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.projects[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != p.Version {
		return domain.ErrConcurrentUpdate
	}
	p.Version++
	m.projects[p.ID] = p
	m.updates++
	return nil
}

// gatedProjects holds the first n Gets until all n have read, so concurrent
// callers start from the same stored version.
type gatedProjects struct {
	*memProjects
	mu   sync.Mutex
	n    int
	held int
	gate sync.WaitGroup
}

func newGatedProjects(inner *memProjects, n int) *gatedProjects {
	g := &gatedProjects{memProjects: inner, n: n}
	g.gate.Add(n)
	return g
}

func (g *gatedProjects) Get(ctx context.Context, id string) (*domain.ProjectRecord, error) {
	p, err := g.memProjects.Get(ctx, id)
	g.mu.Lock()
	hold := g.held < g.n
	if hold {
		g.held++
	}
	g.mu.Unlock()
	if hold {
		g.gate.Done()
		g.gate.Wait()
	}
	return p, err
}

// stubLedger records calls and returns canned results.
type stubLedger struct {
	mu       sync.Mutex
	mode     domain.LedgerMode
	result   domain.ChainOperationResult
	ref      string
	err      error
	issueErr error
	calls    []string
}

func (s *stubLedger) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)
}

func (s *stubLedger) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, call := range s.calls {
		if call == op {
			n++
		}
	}
	return n
}

func (s *stubLedger) Mode() domain.LedgerMode { return s.mode }

func (s *stubLedger) SubmitProject(ctx context.Context, projectID string, p domain.ProjectSubmission) (domain.ChainOperationResult, error) {
	s.record(domain.AnchorOpSubmit)
	return s.result, s.err
}

func (s *stubLedger) ApproveProject(ctx context.Context, projectID string, id uint64) (string, error) {
	s.record(domain.AnchorOpApprove)
	return s.ref, s.err
}

func (s *stubLedger) RejectProject(ctx context.Context, projectID string, id uint64) (string, error) {
	s.record(domain.AnchorOpReject)
	return s.ref, s.err
}

func (s *stubLedger) IssueCredits(ctx context.Context, projectID string, id, amount uint64, recipient string, meta domain.CreditMetadata) (domain.ChainOperationResult, error) {
	s.record(domain.AnchorOpIssue)
	return s.result, s.issueErr
}

func (s *stubLedger) MintAchievement(ctx context.Context, projectID string, m domain.AchievementMint) (domain.ChainOperationResult, error) {
	s.record(domain.AnchorOpMint)
	return s.result, s.err
}

type stubPolicy struct {
	deny  []domain.PolicyDeny
	err   error
	input domain.IssuancePolicyInput
}

func (s *stubPolicy) Evaluate(ctx context.Context, input domain.IssuancePolicyInput) (domain.PolicyEvaluation, error) {
	s.input = input
	if s.err != nil {
		return domain.PolicyEvaluation{}, s.err
	}
	return domain.PolicyEvaluation{
		BundleHash: "test-bundle",
		Result:     domain.PolicyResult{Allow: len(s.deny) == 0, Deny: s.deny},
	}, nil
}

type stubAttestations struct {
	records []domain.AttestationRecord
}

func (s *stubAttestations) Append(ctx context.Context, rec domain.AttestationRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *stubAttestations) ListByProject(ctx context.Context, projectID string) ([]domain.AttestationRecord, error) {
	return s.records, nil
}

// countingReader counts ledger reads so tests can assert none happened.
type countingReader struct {
	status domain.TransactionStatus
	err    error
	reads  int
}

func (c *countingReader) ReadTransaction(ctx context.Context, ref string) (domain.TransactionStatus, error) {
	c.reads++
	if c.err != nil {
		return domain.TransactionStatus{}, c.err
	}
	st := c.status
	st.Reference = ref
	return st, nil
}

type stubLookup struct {
	consumed map[string]bool
	err      error
}

func (s stubLookup) IsConsumed(ctx context.Context, ref string) (bool, error) {
	return s.consumed[ref], s.err
}

// memPayments mimics the unique constraint on consumed references.
type memPayments struct {
	mu       sync.Mutex
	consumed map[string]domain.ConsumedReference
	grants   []domain.CreditGrant
	failWith error
}

func newMemPayments() *memPayments {
	return &memPayments{consumed: map[string]domain.ConsumedReference{}}
}

func (m *memPayments) IsConsumed(ctx context.Context, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.consumed[ref]
	return ok, nil
}

func (m *memPayments) WithTx(ctx context.Context, fn func(tx domain.PaymentTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memPaymentTx{parent: m, consumed: map[string]domain.ConsumedReference{}}
	if err := fn(tx); err != nil {
		return err
	}
	if m.failWith != nil {
		return m.failWith
	}
	for k, v := range tx.consumed {
		m.consumed[k] = v
	}
	m.grants = append(m.grants, tx.grants...)
	return nil
}

type memPaymentTx struct {
	parent   *memPayments
	consumed map[string]domain.ConsumedReference
	grants   []domain.CreditGrant
}

func (t *memPaymentTx) RecordConsumedReference(ctx context.Context, ref domain.ConsumedReference) error {
	if _, ok := t.parent.consumed[ref.Reference]; ok {
		return domain.ErrReferenceConsumed
	}
	if _, ok := t.consumed[ref.Reference]; ok {
		return domain.ErrReferenceConsumed
	}
	t.consumed[ref.Reference] = ref
	return nil
}

func (t *memPaymentTx) RecordCredit(ctx context.Context, grant domain.CreditGrant) error {
	t.grants = append(t.grants, grant)
	return nil
}

type stubCache struct {
	marked map[string]bool
	err    error
}

func newStubCache() *stubCache {
	return &stubCache{marked: map[string]bool{}}
}

func (s *stubCache) IsConsumed(ctx context.Context, ref string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.marked[ref], nil
}

func (s *stubCache) Mark(ctx context.Context, ref string) error {
	s.marked[ref] = true
	return nil
}
