package db

import (
	"context"
	"errors"
	"time"

	"greentoken/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttestationRepository is append-only; a newer decision supersedes an
// older one, nothing is updated in place.
type AttestationRepository struct {
	db *gorm.DB
}

var _ domain.AttestationRepository = (*AttestationRepository)(nil)

func NewAttestationRepository(db *gorm.DB) *AttestationRepository {
	return &AttestationRepository{db: db}
}

func (r *AttestationRepository) Append(ctx context.Context, rec domain.AttestationRecord) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if rec.ProjectID == "" || rec.Type == "" {
		return errors.New("project_id and type are required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	model := AttestationModel{
		ID:              rec.ID,
		ProjectID:       rec.ProjectID,
		Type:            rec.Type,
		Attestation:     rec.Attestation.Attestation,
		Signature:       rec.Attestation.Signature,
		TimestampMillis: rec.Attestation.TimestampMillis,
		CreatedAt:       time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *AttestationRepository) ListByProject(ctx context.Context, projectID string) ([]domain.AttestationRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AttestationModel
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("timestamp_millis ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AttestationRecord, 0, len(models))
	for _, m := range models {
		out = append(out, domain.AttestationRecord{
			ID:        m.ID,
			ProjectID: m.ProjectID,
			Type:      m.Type,
			Attestation: domain.Attestation{
				Attestation:     m.Attestation,
				Signature:       m.Signature,
				TimestampMillis: m.TimestampMillis,
			},
		})
	}
	return out, nil
}
