package usecase

import (
	"context"

	"greentoken/internal/domain"
)

// ProjectLedger is the ledger as seen by project workflows: gateway writes
// keyed by the local project id so each one can be recorded as an attempt.
type ProjectLedger interface {
	Mode() domain.LedgerMode
	SubmitProject(ctx context.Context, projectID string, p domain.ProjectSubmission) (domain.ChainOperationResult, error)
	ApproveProject(ctx context.Context, projectID string, ledgerEntityID uint64) (string, error)
	RejectProject(ctx context.Context, projectID string, ledgerEntityID uint64) (string, error)
	IssueCredits(ctx context.Context, projectID string, ledgerEntityID, amount uint64, recipient string, meta domain.CreditMetadata) (domain.ChainOperationResult, error)
	MintAchievement(ctx context.Context, projectID string, m domain.AchievementMint) (domain.ChainOperationResult, error)
}

type AttestationSigner interface {
	SignApproval(projectID, dataHash, approverAddress string) (domain.Attestation, error)
	SignRejection(projectID, reason, rejecterAddress string) (domain.Attestation, error)
}
