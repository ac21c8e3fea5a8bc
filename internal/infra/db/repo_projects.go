package db

import (
	"context"
	"errors"

	"greentoken/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProjectRepository struct {
	db *gorm.DB
}

var _ domain.ProjectRepository = (*ProjectRepository)(nil)

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, p domain.ProjectRecord) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if p.ID == "" {
		return errors.New("id is required")
	}
	model := projectModelFromDomain(p)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (*domain.ProjectRecord, error) {
	// ids are uuid columns; anything else cannot name a stored project.
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model ProjectModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	p := projectFromModel(model)
	return &p, nil
}

// Update writes every mutable column when the row is still at p.Version and
// bumps the version. Zero values are written too, so an AnchorState reset or a
// cleared reference is not silently skipped.
func (r *ProjectRepository) Update(ctx context.Context, p domain.ProjectRecord) error {
	if _, err := uuid.Parse(p.ID); err != nil {
		return domain.ErrNotFound
	}
	if r.db == nil {
		return errDBUnavailable
	}
	model := projectModelFromDomain(p)
	model.Version = int64FromUint64(p.Version + 1)
	res := r.db.WithContext(ctx).
		Model(&ProjectModel{}).
		Where("id = ? AND version = ?", p.ID, int64FromUint64(p.Version)).
		Select("*").
		Omit("id", "created_at").
		Updates(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&ProjectModel{}).Where("id = ?", p.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrConcurrentUpdate
}

// ListByAnchorState returns projects still waiting on the ledger.
func (r *ProjectRepository) ListByAnchorState(ctx context.Context, state domain.AnchorState, limit int) ([]domain.ProjectRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if limit <= 0 {
		limit = 100
	}
	var models []ProjectModel
	if err := r.db.WithContext(ctx).
		Where("anchor_state = ?", string(state)).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ProjectRecord, 0, len(models))
	for _, model := range models {
		out = append(out, projectFromModel(model))
	}
	return out, nil
}

func projectModelFromDomain(p domain.ProjectRecord) ProjectModel {
	docs := p.DocumentHashes
	if docs == nil {
		docs = []string{}
	}
	return ProjectModel{
		ID:                   p.ID,
		OwnerID:              p.OwnerID,
		Name:                 p.Name,
		Location:             p.Location,
		Latitude:             p.Latitude,
		Longitude:            p.Longitude,
		AreaHectares:         p.AreaHectares,
		EcosystemType:        p.EcosystemType,
		DocumentHashes:       docs,
		DataHash:             p.DataHash,
		Status:               string(p.Status),
		AnchorState:          string(p.AnchorState),
		LedgerMode:           string(p.LedgerMode),
		LedgerEntityID:       int64FromUint64(p.LedgerEntityID),
		TransactionReference: stringPtrIfNotEmpty(p.TransactionReference),
		DecisionTxRef:        stringPtrIfNotEmpty(p.DecisionTxRef),
		EstimatedCredits:     p.EstimatedCredits,
		IssuedCredits:        int64FromUint64(p.IssuedCredits),
		PendingCredits:       int64FromUint64(p.PendingCredits),
		Version:              int64FromUint64(p.Version),
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
		ApprovedAt:           p.ApprovedAt,
	}
}

func projectFromModel(m ProjectModel) domain.ProjectRecord {
	return domain.ProjectRecord{
		ID:                   m.ID,
		OwnerID:              m.OwnerID,
		Name:                 m.Name,
		Location:             m.Location,
		Latitude:             m.Latitude,
		Longitude:            m.Longitude,
		AreaHectares:         m.AreaHectares,
		EcosystemType:        m.EcosystemType,
		DocumentHashes:       append([]string(nil), m.DocumentHashes...),
		DataHash:             m.DataHash,
		Status:               domain.ProjectStatus(m.Status),
		AnchorState:          domain.AnchorState(m.AnchorState),
		LedgerMode:           domain.LedgerMode(m.LedgerMode),
		LedgerEntityID:       uint64FromInt64(m.LedgerEntityID),
		TransactionReference: stringValue(m.TransactionReference),
		DecisionTxRef:        stringValue(m.DecisionTxRef),
		EstimatedCredits:     m.EstimatedCredits,
		IssuedCredits:        uint64FromInt64(m.IssuedCredits),
		PendingCredits:       uint64FromInt64(m.PendingCredits),
		Version:              uint64FromInt64(m.Version),
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
		ApprovedAt:           m.ApprovedAt,
	}
}
