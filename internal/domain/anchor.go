package domain

import (
	"context"
	"math/big"
	"time"
)

// LedgerMode is fixed when the gateway is constructed and never changes.
type LedgerMode string

const (
	LedgerModeMock       LedgerMode = "mock"
	LedgerModeProduction LedgerMode = "production"
)

// ChainOperationResult is produced once per gateway write. LedgerEntityID 0
// means the ledger did not (or could not be shown to) assign an id.
type ChainOperationResult struct {
	TransactionReference string     `json:"transaction_reference"`
	LedgerEntityID       uint64     `json:"ledger_entity_id"`
	Mode                 LedgerMode `json:"mode"`

	// Set for credit issuance when the ledger reports them.
	Amount    *big.Int `json:"amount,omitempty"`
	Recipient string   `json:"recipient,omitempty"`
}

// Anchored reports whether the result carries a usable ledger entity id.
func (r ChainOperationResult) Anchored() bool {
	return r.LedgerEntityID != 0 && r.TransactionReference != ""
}

type ProjectSubmission struct {
	Name          string
	Location      string
	Latitude      float64
	Longitude     float64
	AreaHectares  float64
	EcosystemType string
	MetadataURI   string
	DataHash      string
}

type CreditMetadata struct {
	Location         string
	AreaHectares     float64
	EcosystemType    string
	VerificationHash string
}

type AchievementMint struct {
	Recipient   string
	Title       string
	Description string
	ProjectID   uint64
	MetadataURI string
}

// TransactionStatus is the read-only view of a ledger transaction.
// Value is denominated in the ledger's base unit (wei).
type TransactionStatus struct {
	Reference   string     `json:"reference"`
	Confirmed   bool       `json:"confirmed"`
	BlockNumber uint64     `json:"block_number,omitempty"`
	From        string     `json:"from,omitempty"`
	To          string     `json:"to,omitempty"`
	Value       *big.Int   `json:"value,omitempty"`
	Mode        LedgerMode `json:"mode"`
	// Failed is set when the transaction was mined but reverted.
	Failed bool `json:"failed,omitempty"`
	// Simulated is true for Mock-mode placeholders that never touched a ledger.
	Simulated bool `json:"simulated,omitempty"`
}

// LedgerGateway submits project lifecycle operations to a ledger.
// Implementations must not fail core flows for being in mock mode.
type LedgerGateway interface {
	Mode() LedgerMode
	SubmitProject(ctx context.Context, p ProjectSubmission) (ChainOperationResult, error)
	ApproveProject(ctx context.Context, ledgerEntityID uint64) (string, error)
	RejectProject(ctx context.Context, ledgerEntityID uint64) (string, error)
	IssueCredits(ctx context.Context, ledgerEntityID uint64, amount uint64, recipient string, meta CreditMetadata) (ChainOperationResult, error)
	MintAchievement(ctx context.Context, m AchievementMint) (ChainOperationResult, error)
	TransactionReader
}

type TransactionReader interface {
	ReadTransaction(ctx context.Context, reference string) (TransactionStatus, error)
}

type AnchorAttempt struct {
	ID             string
	ProjectID      string
	Operation      string
	Mode           LedgerMode
	Status         string
	ErrorCode      string
	TxRef          string
	LedgerEntityID uint64
	CreatedAt      time.Time
}

const (
	AnchorOpSubmit  = "submit_project"
	AnchorOpApprove = "approve_project"
	AnchorOpReject  = "reject_project"
	AnchorOpIssue   = "issue_credits"
	AnchorOpMint    = "mint_achievement"
)

const (
	AnchorStatusAnchored      = "anchored"
	AnchorStatusMock          = "mock"
	AnchorStatusFailed        = "failed"
	AnchorStatusIndeterminate = "indeterminate"
	AnchorStatusSkipped       = "skipped"
)

const (
	AnchorErrorNetwork       = "NETWORK"
	AnchorErrorBadConfig     = "BAD_CONFIG"
	AnchorErrorReverted      = "REVERTED"
	AnchorErrorProviderError = "PROVIDER_ERROR"
	AnchorErrorPersistence   = "PERSISTENCE"
	AnchorErrorTimeout       = "TIMEOUT"
	AnchorErrorNoEntity      = "NO_ENTITY"
	AnchorErrorUnanchored    = "UNANCHORED"
)

type AnchorAttemptRepository interface {
	Append(ctx context.Context, attempt AnchorAttempt) error
	ListByProject(ctx context.Context, projectID string) ([]AnchorAttempt, error)
}
