package db

import (
	"context"
	"errors"

	"greentoken/internal/domain"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

var _ domain.PaymentRepository = (*PaymentRepository)(nil)

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) IsConsumed(ctx context.Context, reference string) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&ConsumedReferenceModel{}).
		Where("reference = ?", reference).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// WithTx runs fn in one database transaction. Either the consumed reference
// and the credit grant are both written or neither is.
func (r *PaymentRepository) WithTx(ctx context.Context, fn func(tx domain.PaymentTx) error) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&paymentTx{db: tx})
	})
}

type paymentTx struct {
	db *gorm.DB
}

// RecordConsumedReference relies on the primary key of consumed_references.
// Two transactions racing on one reference cannot both commit; the loser
// sees ErrReferenceConsumed.
func (t *paymentTx) RecordConsumedReference(ctx context.Context, ref domain.ConsumedReference) error {
	if ref.Reference == "" {
		return errors.New("reference is required")
	}
	model := ConsumedReferenceModel{
		Reference:   ref.Reference,
		Claimant:    ref.Claimant,
		Value:       ref.Value,
		BlockNumber: int64FromUint64(ref.BlockNumber),
		ConsumedAt:  ref.ConsumedAt,
	}
	if err := t.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrReferenceConsumed
		}
		return err
	}
	return nil
}

func (t *paymentTx) RecordCredit(ctx context.Context, grant domain.CreditGrant) error {
	if grant.ID == "" || grant.UserID == "" {
		return errors.New("grant id and user id are required")
	}
	model := CreditGrantModel{
		ID:        grant.ID,
		UserID:    grant.UserID,
		Reference: grant.Reference,
		Amount:    grant.Amount,
		CreatedAt: grant.CreatedAt,
	}
	if err := t.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrReferenceConsumed
		}
		return err
	}
	return nil
}

func (r *PaymentRepository) ListGrantsByUser(ctx context.Context, userID string) ([]domain.CreditGrant, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []CreditGrantModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.CreditGrant, 0, len(models))
	for _, m := range models {
		out = append(out, domain.CreditGrant{
			ID:        m.ID,
			UserID:    m.UserID,
			Reference: m.Reference,
			Amount:    m.Amount,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}
