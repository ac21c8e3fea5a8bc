package db

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProjectModel struct {
	ID                   string   `gorm:"type:uuid;primaryKey"`
	OwnerID              string   `gorm:"index;not null"`
	Name                 string   `gorm:"not null"`
	Location             string   `gorm:"not null"`
	Latitude             float64  `gorm:"not null"`
	Longitude            float64  `gorm:"not null"`
	AreaHectares         float64  `gorm:"not null"`
	EcosystemType        string   `gorm:"not null"`
	DocumentHashes       []string `gorm:"serializer:json;type:jsonb;not null"`
	DataHash             string   `gorm:"index;not null"`
	Status               string   `gorm:"index;not null"`
	AnchorState          string   `gorm:"index;not null"`
	LedgerMode           string   `gorm:"not null"`
	LedgerEntityID       int64    `gorm:"not null;default:0"`
	TransactionReference *string
	DecisionTxRef        *string
	EstimatedCredits     float64   `gorm:"not null"`
	IssuedCredits        int64     `gorm:"not null;default:0"`
	PendingCredits       int64     `gorm:"not null;default:0"`
	Version              int64     `gorm:"not null;default:0"`
	CreatedAt            time.Time `gorm:"not null"`
	UpdatedAt            time.Time `gorm:"not null"`
	ApprovedAt           *time.Time
}

func (ProjectModel) TableName() string {
	return "projects"
}

// ConsumedReferenceModel is keyed by the normalized reference. The primary
// key is what stops a payment from being credited twice.
type ConsumedReferenceModel struct {
	Reference   string          `gorm:"primaryKey"`
	Claimant    string          `gorm:"not null"`
	Value       decimal.Decimal `gorm:"type:numeric(78,18);not null"`
	BlockNumber int64           `gorm:"not null;default:0"`
	ConsumedAt  time.Time       `gorm:"not null"`
}

func (ConsumedReferenceModel) TableName() string {
	return "consumed_references"
}

type CreditGrantModel struct {
	ID        string          `gorm:"type:uuid;primaryKey"`
	UserID    string          `gorm:"index;not null"`
	Reference string          `gorm:"uniqueIndex;not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(78,18);not null"`
	CreatedAt time.Time       `gorm:"not null"`
}

func (CreditGrantModel) TableName() string {
	return "credit_grants"
}

type AnchorAttemptModel struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	ProjectID      string `gorm:"index;not null"`
	Operation      string `gorm:"not null"`
	Mode           string `gorm:"not null"`
	Status         string `gorm:"index;not null"`
	ErrorCode      *string
	TxRef          *string
	LedgerEntityID int64     `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (AnchorAttemptModel) TableName() string {
	return "anchor_attempts"
}

type AttestationModel struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	ProjectID       string    `gorm:"index;not null"`
	Type            string    `gorm:"not null"`
	Attestation     string    `gorm:"type:text;not null"`
	Signature       string    `gorm:"not null"`
	TimestampMillis int64     `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (AttestationModel) TableName() string {
	return "attestations"
}

func allModels() []any {
	return []any{
		&ProjectModel{},
		&ConsumedReferenceModel{},
		&CreditGrantModel{},
		&AnchorAttemptModel{},
		&AttestationModel{},
	}
}
