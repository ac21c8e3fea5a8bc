package db

import (
	"context"
	"errors"
	"time"

	"greentoken/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AnchorAttemptRepository struct {
	db *gorm.DB
}

var _ domain.AnchorAttemptRepository = (*AnchorAttemptRepository)(nil)

func NewAnchorAttemptRepository(db *gorm.DB) *AnchorAttemptRepository {
	return &AnchorAttemptRepository{db: db}
}

func (r *AnchorAttemptRepository) Append(ctx context.Context, attempt domain.AnchorAttempt) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if attempt.ProjectID == "" {
		return errors.New("project_id is required")
	}
	if attempt.Operation == "" {
		return errors.New("operation is required")
	}
	if attempt.Status == "" {
		return errors.New("status is required")
	}
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	model := AnchorAttemptModel{
		ID:             attempt.ID,
		ProjectID:      attempt.ProjectID,
		Operation:      attempt.Operation,
		Mode:           string(attempt.Mode),
		Status:         attempt.Status,
		ErrorCode:      stringPtrIfNotEmpty(attempt.ErrorCode),
		TxRef:          stringPtrIfNotEmpty(attempt.TxRef),
		LedgerEntityID: int64FromUint64(attempt.LedgerEntityID),
		CreatedAt:      attempt.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *AnchorAttemptRepository) ListByProject(ctx context.Context, projectID string) ([]domain.AnchorAttempt, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if projectID == "" {
		return nil, errors.New("project_id is required")
	}
	var models []AnchorAttemptModel
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AnchorAttempt, 0, len(models))
	for _, model := range models {
		out = append(out, anchorAttemptFromModel(model))
	}
	return out, nil
}

// ListByStatus feeds the reconciliation job with indeterminate or failed
// attempts, oldest first.
func (r *AnchorAttemptRepository) ListByStatus(ctx context.Context, status string, limit int) ([]domain.AnchorAttempt, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if limit <= 0 {
		limit = 100
	}
	var models []AnchorAttemptModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AnchorAttempt, 0, len(models))
	for _, model := range models {
		out = append(out, anchorAttemptFromModel(model))
	}
	return out, nil
}

func anchorAttemptFromModel(model AnchorAttemptModel) domain.AnchorAttempt {
	return domain.AnchorAttempt{
		ID:             model.ID,
		ProjectID:      model.ProjectID,
		Operation:      model.Operation,
		Mode:           domain.LedgerMode(model.Mode),
		Status:         model.Status,
		ErrorCode:      stringValue(model.ErrorCode),
		TxRef:          stringValue(model.TxRef),
		LedgerEntityID: uint64FromInt64(model.LedgerEntityID),
		CreatedAt:      model.CreatedAt,
	}
}
