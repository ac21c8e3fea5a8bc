package domain

import (
	"context"
	"time"
)

// ProjectFingerprintInput is the set of declared facts and evidence a
// project fingerprint (dataHash) commits to.
type ProjectFingerprintInput struct {
	Name           string   `json:"name"`
	Location       string   `json:"location"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	AreaHectares   float64  `json:"areaHectares"`
	EcosystemType  string   `json:"ecosystemType"`
	OwnerID        string   `json:"ownerId"`
	DocumentHashes []string `json:"documentHashes"`
}

const (
	EcosystemMangrove  = "MANGROVE"
	EcosystemSeagrass  = "SEAGRASS"
	EcosystemSaltMarsh = "SALT_MARSH"
	EcosystemKelp      = "KELP"
)

type ProjectStatus string

const (
	ProjectStatusPending  ProjectStatus = "PENDING"
	ProjectStatusApproved ProjectStatus = "APPROVED"
	ProjectStatusRejected ProjectStatus = "REJECTED"
)

// AnchorState distinguishes projects anchored on the ledger from those that
// are visible locally but still waiting for (or abandoned by) the ledger.
type AnchorState string

const (
	AnchorStateAnchored      AnchorState = "anchored"
	AnchorStatePending       AnchorState = "pending_anchor"
	AnchorStateMock          AnchorState = "mock"
	AnchorStateIndeterminate AnchorState = "indeterminate"
)

// ProjectRecord is the slice of the project row the core writes back.
type ProjectRecord struct {
	ID                   string
	OwnerID              string
	Name                 string
	Location             string
	Latitude             float64
	Longitude            float64
	AreaHectares         float64
	EcosystemType        string
	DocumentHashes       []string
	DataHash             string
	Status               ProjectStatus
	AnchorState          AnchorState
	LedgerMode           LedgerMode
	LedgerEntityID       uint64
	TransactionReference string
	DecisionTxRef        string
	EstimatedCredits     float64
	IssuedCredits        uint64
	// PendingCredits are reserved by issuances the ledger has not settled.
	// They count against the estimate until reconciled.
	PendingCredits uint64
	// Version is bumped by every successful Update.
	Version    uint64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ApprovedAt *time.Time
}

func (p ProjectRecord) FingerprintInput() ProjectFingerprintInput {
	return ProjectFingerprintInput{
		Name:           p.Name,
		Location:       p.Location,
		Latitude:       p.Latitude,
		Longitude:      p.Longitude,
		AreaHectares:   p.AreaHectares,
		EcosystemType:  p.EcosystemType,
		OwnerID:        p.OwnerID,
		DocumentHashes: append([]string(nil), p.DocumentHashes...),
	}
}

// ProjectRepository stores project rows. Update only lands when the stored
// Version still equals p.Version; a lost race returns ErrConcurrentUpdate.
type ProjectRepository interface {
	Create(ctx context.Context, p ProjectRecord) error
	Get(ctx context.Context, id string) (*ProjectRecord, error)
	Update(ctx context.Context, p ProjectRecord) error
}
