package anchor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"greentoken/internal/domain"

	"github.com/google/uuid"
)

// Service wraps every ledger write with an anchor attempt record. The
// reconciliation job reads those records to find indeterminate and
// pending-anchor projects. Recording never changes the write's outcome.
type Service struct {
	gateway  domain.LedgerGateway
	attempts domain.AnchorAttemptRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(gateway domain.LedgerGateway, attempts domain.AnchorAttemptRepository, logger *slog.Logger) (*Service, error) {
	if gateway == nil {
		return nil, errors.New("ledger gateway is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gateway: gateway, attempts: attempts, logger: logger, now: time.Now}, nil
}

func (s *Service) Mode() domain.LedgerMode {
	return s.gateway.Mode()
}

func (s *Service) SubmitProject(ctx context.Context, projectID string, p domain.ProjectSubmission) (domain.ChainOperationResult, error) {
	res, err := s.gateway.SubmitProject(ctx, p)
	s.persistAttempt(ctx, projectID, domain.AnchorOpSubmit, res, true, err)
	return res, err
}

func (s *Service) ApproveProject(ctx context.Context, projectID string, ledgerEntityID uint64) (string, error) {
	ref, err := s.gateway.ApproveProject(ctx, ledgerEntityID)
	s.persistAttempt(ctx, projectID, domain.AnchorOpApprove, s.refResult(ref, ledgerEntityID), false, err)
	return ref, err
}

func (s *Service) RejectProject(ctx context.Context, projectID string, ledgerEntityID uint64) (string, error) {
	ref, err := s.gateway.RejectProject(ctx, ledgerEntityID)
	s.persistAttempt(ctx, projectID, domain.AnchorOpReject, s.refResult(ref, ledgerEntityID), false, err)
	return ref, err
}

func (s *Service) IssueCredits(ctx context.Context, projectID string, ledgerEntityID, amount uint64, recipient string, meta domain.CreditMetadata) (domain.ChainOperationResult, error) {
	res, err := s.gateway.IssueCredits(ctx, ledgerEntityID, amount, recipient, meta)
	s.persistAttempt(ctx, projectID, domain.AnchorOpIssue, res, true, err)
	return res, err
}

func (s *Service) MintAchievement(ctx context.Context, projectID string, m domain.AchievementMint) (domain.ChainOperationResult, error) {
	res, err := s.gateway.MintAchievement(ctx, m)
	s.persistAttempt(ctx, projectID, domain.AnchorOpMint, res, true, err)
	return res, err
}

func (s *Service) ReadTransaction(ctx context.Context, reference string) (domain.TransactionStatus, error) {
	return s.gateway.ReadTransaction(ctx, reference)
}

// Attempts lists the recorded attempts for a project, oldest first.
func (s *Service) Attempts(ctx context.Context, projectID string) ([]domain.AnchorAttempt, error) {
	if s.attempts == nil {
		return nil, nil
	}
	return s.attempts.ListByProject(ctx, projectID)
}

func (s *Service) refResult(ref string, ledgerEntityID uint64) domain.ChainOperationResult {
	return domain.ChainOperationResult{
		TransactionReference: ref,
		LedgerEntityID:       ledgerEntityID,
		Mode:                 s.gateway.Mode(),
	}
}

func (s *Service) persistAttempt(ctx context.Context, projectID, op string, res domain.ChainOperationResult, expectEntity bool, err error) {
	// Rejected input never reached the ledger.
	if domain.IsValidation(err) {
		return
	}
	attempt := buildAttempt(projectID, op, s.gateway.Mode(), res, expectEntity, err)
	attempt.ID = uuid.NewString()
	attempt.CreatedAt = s.now().UTC()

	level := slog.LevelInfo
	if attempt.Status == domain.AnchorStatusFailed || attempt.Status == domain.AnchorStatusIndeterminate {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "anchor attempt",
		"project_id", projectID,
		"operation", op,
		"mode", attempt.Mode,
		"status", attempt.Status,
		"error_code", attempt.ErrorCode,
		"tx_ref", attempt.TxRef,
		"ledger_entity_id", attempt.LedgerEntityID,
	)

	if s.attempts == nil {
		return
	}
	if perr := s.attempts.Append(ctx, attempt); perr != nil {
		s.logger.Error("anchor attempt not persisted", "project_id", projectID, "operation", op, "error_code", domain.AnchorErrorPersistence, "error", perr)
	}
}

func buildAttempt(projectID, op string, mode domain.LedgerMode, res domain.ChainOperationResult, expectEntity bool, err error) domain.AnchorAttempt {
	attempt := domain.AnchorAttempt{
		ProjectID:      projectID,
		Operation:      op,
		Mode:           mode,
		TxRef:          res.TransactionReference,
		LedgerEntityID: res.LedgerEntityID,
	}
	var subErr *domain.LedgerSubmissionError
	switch {
	case err == nil && mode == domain.LedgerModeMock:
		attempt.Status = domain.AnchorStatusMock
	case err == nil:
		attempt.Status = domain.AnchorStatusAnchored
		if expectEntity && res.LedgerEntityID == 0 {
			attempt.ErrorCode = domain.AnchorErrorNoEntity
		}
	case errors.Is(err, domain.ErrIndeterminate):
		attempt.Status = domain.AnchorStatusIndeterminate
		attempt.ErrorCode = domain.AnchorErrorTimeout
	case errors.As(err, &subErr):
		attempt.Status = domain.AnchorStatusFailed
		attempt.ErrorCode = subErr.Code
		if attempt.TxRef == "" {
			attempt.TxRef = subErr.TxRef
		}
	case errors.Is(err, context.DeadlineExceeded):
		attempt.Status = domain.AnchorStatusFailed
		attempt.ErrorCode = domain.AnchorErrorTimeout
	default:
		attempt.Status = domain.AnchorStatusFailed
		attempt.ErrorCode = domain.AnchorErrorProviderError
	}
	if attempt.Status == domain.AnchorStatusFailed && attempt.ErrorCode == "" {
		attempt.ErrorCode = domain.AnchorErrorProviderError
	}
	return attempt
}
