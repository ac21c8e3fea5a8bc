// Package memstore holds the repositories used in no-db mode. Contents live
// for the life of the process only.
package memstore

import (
	"context"
	"sort"
	"sync"

	"greentoken/internal/domain"
)

type Projects struct {
	mu       sync.RWMutex
	projects map[string]domain.ProjectRecord
}

var _ domain.ProjectRepository = (*Projects)(nil)

func NewProjects() *Projects {
	return &Projects{projects: make(map[string]domain.ProjectRecord)}
}

func (p *Projects) Create(ctx context.Context, rec domain.ProjectRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.projects[rec.ID]; ok {
		return domain.ErrInvalidState
	}
	p.projects[rec.ID] = cloneProject(rec)
	return nil
}

func (p *Projects) Get(ctx context.Context, id string) (*domain.ProjectRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneProject(rec)
	return &out, nil
}

func (p *Projects) Update(ctx context.Context, rec domain.ProjectRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	stored, ok := p.projects[rec.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != rec.Version {
		return domain.ErrConcurrentUpdate
	}
	rec.CreatedAt = stored.CreatedAt
	rec.Version++
	p.projects[rec.ID] = cloneProject(rec)
	return nil
}

func cloneProject(rec domain.ProjectRecord) domain.ProjectRecord {
	rec.DocumentHashes = append([]string(nil), rec.DocumentHashes...)
	if rec.ApprovedAt != nil {
		t := *rec.ApprovedAt
		rec.ApprovedAt = &t
	}
	return rec
}

// Payments serializes transactions behind one mutex, which gives the same
// at-most-once guarantee as the database's unique key.
type Payments struct {
	mu       sync.Mutex
	consumed map[string]domain.ConsumedReference
	grants   []domain.CreditGrant
}

var _ domain.PaymentRepository = (*Payments)(nil)

func NewPayments() *Payments {
	return &Payments{consumed: make(map[string]domain.ConsumedReference)}
}

func (p *Payments) IsConsumed(ctx context.Context, reference string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.consumed[reference]
	return ok, nil
}

func (p *Payments) WithTx(ctx context.Context, fn func(tx domain.PaymentTx) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx := &paymentTx{parent: p, consumed: make(map[string]domain.ConsumedReference)}
	if err := fn(tx); err != nil {
		return err
	}
	for ref, c := range tx.consumed {
		p.consumed[ref] = c
	}
	p.grants = append(p.grants, tx.grants...)
	return nil
}

func (p *Payments) Grants() []domain.CreditGrant {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.CreditGrant(nil), p.grants...)
}

type paymentTx struct {
	parent   *Payments
	consumed map[string]domain.ConsumedReference
	grants   []domain.CreditGrant
}

func (t *paymentTx) RecordConsumedReference(ctx context.Context, ref domain.ConsumedReference) error {
	if _, ok := t.parent.consumed[ref.Reference]; ok {
		return domain.ErrReferenceConsumed
	}
	if _, ok := t.consumed[ref.Reference]; ok {
		return domain.ErrReferenceConsumed
	}
	t.consumed[ref.Reference] = ref
	return nil
}

func (t *paymentTx) RecordCredit(ctx context.Context, grant domain.CreditGrant) error {
	t.grants = append(t.grants, grant)
	return nil
}

type AnchorAttempts struct {
	mu       sync.Mutex
	attempts []domain.AnchorAttempt
}

var _ domain.AnchorAttemptRepository = (*AnchorAttempts)(nil)

func NewAnchorAttempts() *AnchorAttempts {
	return &AnchorAttempts{}
}

func (a *AnchorAttempts) Append(ctx context.Context, attempt domain.AnchorAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts = append(a.attempts, attempt)
	return nil
}

func (a *AnchorAttempts) ListByProject(ctx context.Context, projectID string) ([]domain.AnchorAttempt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.AnchorAttempt
	for _, at := range a.attempts {
		if at.ProjectID == projectID {
			out = append(out, at)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type Attestations struct {
	mu      sync.Mutex
	records []domain.AttestationRecord
}

var _ domain.AttestationRepository = (*Attestations)(nil)

func NewAttestations() *Attestations {
	return &Attestations{}
}

func (a *Attestations) Append(ctx context.Context, rec domain.AttestationRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *Attestations) ListByProject(ctx context.Context, projectID string) ([]domain.AttestationRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.AttestationRecord
	for _, rec := range a.records {
		if rec.ProjectID == projectID {
			out = append(out, rec)
		}
	}
	return out, nil
}
