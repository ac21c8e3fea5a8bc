package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"greentoken/internal/domain"
	cryptoinfra "greentoken/internal/infra/crypto"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ProjectAnchoring runs the project lifecycle: fingerprint, ledger
// submission, approval or rejection with an attestation, and credit issuance.
// Ledger failures never undo local state; the project stays visible with a
// pending or indeterminate anchor state.
type ProjectAnchoring struct {
	Projects     domain.ProjectRepository
	Ledger       ProjectLedger
	Signer       AttestationSigner
	Policy       domain.IssuancePolicy
	Attestations domain.AttestationRepository
	Archive      domain.AttestationArchive
	Logger       *slog.Logger
	Now          func() time.Time
}

func NewProjectAnchoring(projects domain.ProjectRepository, ledger ProjectLedger, signer AttestationSigner, policy domain.IssuancePolicy, logger *slog.Logger) (*ProjectAnchoring, error) {
	if projects == nil {
		return nil, errors.New("project repository is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if signer == nil {
		return nil, errors.New("attestation signer is required")
	}
	if policy == nil {
		return nil, errors.New("issuance policy is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectAnchoring{
		Projects: projects,
		Ledger:   ledger,
		Signer:   signer,
		Policy:   policy,
		Logger:   logger,
		Now:      time.Now,
	}, nil
}

type SubmitProjectInput struct {
	domain.ProjectFingerprintInput
	MetadataURI string
}

type SubmitProjectResult struct {
	Project domain.ProjectRecord
	Ledger  domain.ChainOperationResult
}

type DecisionResult struct {
	Project     domain.ProjectRecord
	Attestation domain.Attestation
	LedgerTxRef string
}

type IssueCreditsResult struct {
	Project domain.ProjectRecord
	Ledger  domain.ChainOperationResult
	Policy  domain.PolicyEvaluation
}

// Submit validates and fingerprints the project, stores it, then submits it
// to the ledger. A ledger failure is logged and reflected in AnchorState; the
// caller still gets the stored project.
func (s *ProjectAnchoring) Submit(ctx context.Context, in SubmitProjectInput) (SubmitProjectResult, error) {
	dataHash, err := cryptoinfra.Fingerprint(in.ProjectFingerprintInput)
	if err != nil {
		return SubmitProjectResult{}, err
	}
	estimated, err := EstimateCredits(in.AreaHectares, in.EcosystemType)
	if err != nil {
		return SubmitProjectResult{}, err
	}

	now := s.now()
	project := domain.ProjectRecord{
		ID:               uuid.NewString(),
		OwnerID:          strings.TrimSpace(in.OwnerID),
		Name:             strings.TrimSpace(in.Name),
		Location:         strings.TrimSpace(in.Location),
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
		AreaHectares:     in.AreaHectares,
		EcosystemType:    cryptoinfra.NormalizeEcosystemType(in.EcosystemType),
		DocumentHashes:   append([]string(nil), in.DocumentHashes...),
		DataHash:         dataHash,
		Status:           domain.ProjectStatusPending,
		AnchorState:      domain.AnchorStatePending,
		LedgerMode:       s.Ledger.Mode(),
		EstimatedCredits: estimated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Projects.Create(ctx, project); err != nil {
		return SubmitProjectResult{}, fmt.Errorf("create project: %w", err)
	}

	res, ledgerErr := s.Ledger.SubmitProject(ctx, project.ID, domain.ProjectSubmission{
		Name:          project.Name,
		Location:      project.Location,
		Latitude:      project.Latitude,
		Longitude:     project.Longitude,
		AreaHectares:  project.AreaHectares,
		EcosystemType: project.EcosystemType,
		MetadataURI:   in.MetadataURI,
		DataHash:      dataHash,
	})
	project.LedgerMode = s.Ledger.Mode()
	project.TransactionReference = res.TransactionReference
	project.LedgerEntityID = res.LedgerEntityID
	project.AnchorState = anchorState(s.Ledger.Mode(), res, ledgerErr)
	project.UpdatedAt = s.now()
	if ledgerErr != nil {
		s.Logger.Warn("project submitted locally, ledger anchoring pending",
			"project_id", project.ID, "anchor_state", project.AnchorState, "error", ledgerErr)
	}
	if err := s.Projects.Update(ctx, project); err != nil {
		return SubmitProjectResult{}, fmt.Errorf("update project: %w", err)
	}
	project.Version++
	s.Logger.Info("project submitted",
		"project_id", project.ID,
		"data_hash", dataHash,
		"mode", project.LedgerMode,
		"ledger_entity_id", project.LedgerEntityID,
		"anchor_state", project.AnchorState,
	)
	return SubmitProjectResult{Project: project, Ledger: res}, nil
}

func anchorState(mode domain.LedgerMode, res domain.ChainOperationResult, err error) domain.AnchorState {
	switch {
	case errors.Is(err, domain.ErrIndeterminate):
		return domain.AnchorStateIndeterminate
	case err != nil:
		return domain.AnchorStatePending
	case mode == domain.LedgerModeMock:
		return domain.AnchorStateMock
	case res.LedgerEntityID == 0:
		// Confirmed, but the entity id could not be read back.
		return domain.AnchorStateIndeterminate
	default:
		return domain.AnchorStateAnchored
	}
}

// maxUpdateAttempts bounds the re-read loop in mutate.
const maxUpdateAttempts = 5

// mutate re-reads the project, applies fn and writes it back under the
// repository's version guard, retrying when another writer got there first.
// fn sees fresh state on every attempt; an error from fn stops the loop.
func (s *ProjectAnchoring) mutate(ctx context.Context, projectID string, fn func(p *domain.ProjectRecord) error) (domain.ProjectRecord, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		project, err := s.Projects.Get(ctx, projectID)
		if err != nil {
			return domain.ProjectRecord{}, err
		}
		if err := fn(project); err != nil {
			return *project, err
		}
		project.UpdatedAt = s.now()
		err = s.Projects.Update(ctx, *project)
		if err == nil {
			project.Version++
			return *project, nil
		}
		if !errors.Is(err, domain.ErrConcurrentUpdate) {
			return *project, fmt.Errorf("update project: %w", err)
		}
	}
	return domain.ProjectRecord{}, fmt.Errorf("%w: project %s", domain.ErrConcurrentUpdate, projectID)
}

// Approve moves a PENDING project to APPROVED and signs an approval
// attestation over its dataHash. The status change is claimed before the
// ledger is called, so a concurrent decision on the same project loses with
// ErrInvalidState. The ledger approval is best effort.
func (s *ProjectAnchoring) Approve(ctx context.Context, projectID, approverAddress string) (DecisionResult, error) {
	var att domain.Attestation
	project, err := s.mutate(ctx, projectID, func(p *domain.ProjectRecord) error {
		if err := checkPending(p); err != nil {
			return err
		}
		signed, err := s.Signer.SignApproval(p.ID, p.DataHash, approverAddress)
		if err != nil {
			return fmt.Errorf("sign approval: %w", err)
		}
		att = signed
		now := s.now()
		p.Status = domain.ProjectStatusApproved
		p.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return DecisionResult{}, err
	}

	project = s.recordDecision(ctx, project, domain.AnchorOpApprove)
	s.keepAttestation(ctx, domain.AttestationPayload{
		Type:      domain.AttestationProjectApproval,
		ProjectID: project.ID,
		DataHash:  project.DataHash,
		Approver:  approverAddress,
		Timestamp: att.TimestampMillis,
	}, att)
	s.Logger.Info("project approved", "project_id", project.ID, "approver", approverAddress, "ledger_tx_ref", project.DecisionTxRef)
	return DecisionResult{Project: project, Attestation: att, LedgerTxRef: project.DecisionTxRef}, nil
}

// Reject moves a PENDING project to REJECTED with a signed rejection.
func (s *ProjectAnchoring) Reject(ctx context.Context, projectID, reason, rejecterAddress string) (DecisionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return DecisionResult{}, domain.NewValidationError("reason", "is required")
	}
	if !utf8.ValidString(reason) {
		return DecisionResult{}, domain.NewValidationError("reason", "must be valid UTF-8")
	}
	var att domain.Attestation
	project, err := s.mutate(ctx, projectID, func(p *domain.ProjectRecord) error {
		if err := checkPending(p); err != nil {
			return err
		}
		signed, err := s.Signer.SignRejection(p.ID, reason, rejecterAddress)
		if err != nil {
			return fmt.Errorf("sign rejection: %w", err)
		}
		att = signed
		p.Status = domain.ProjectStatusRejected
		return nil
	})
	if err != nil {
		return DecisionResult{}, err
	}

	project = s.recordDecision(ctx, project, domain.AnchorOpReject)
	s.keepAttestation(ctx, domain.AttestationPayload{
		Type:      domain.AttestationProjectRejection,
		ProjectID: project.ID,
		Reason:    reason,
		Rejecter:  rejecterAddress,
		Timestamp: att.TimestampMillis,
	}, att)
	s.Logger.Info("project rejected", "project_id", project.ID, "rejecter", rejecterAddress, "ledger_tx_ref", project.DecisionTxRef)
	return DecisionResult{Project: project, Attestation: att, LedgerTxRef: project.DecisionTxRef}, nil
}

func checkPending(project *domain.ProjectRecord) error {
	if project.Status != domain.ProjectStatusPending {
		return fmt.Errorf("%w: project is %s", domain.ErrInvalidState, project.Status)
	}
	// The stored hash must still describe the stored facts before anything
	// is signed over it.
	recomputed, err := cryptoinfra.Fingerprint(project.FingerprintInput())
	if err != nil {
		return err
	}
	if recomputed != project.DataHash {
		return fmt.Errorf("%w: project data no longer matches its fingerprint", domain.ErrInvalidState)
	}
	return nil
}

// recordDecision sends the claimed decision to the ledger and stores the
// resulting reference. Neither step can undo the local decision.
func (s *ProjectAnchoring) recordDecision(ctx context.Context, project domain.ProjectRecord, op string) domain.ProjectRecord {
	ref := s.ledgerDecision(ctx, &project, op)
	if ref == "" {
		return project
	}
	updated, err := s.mutate(ctx, project.ID, func(p *domain.ProjectRecord) error {
		p.DecisionTxRef = ref
		return nil
	})
	if err != nil {
		s.Logger.Error("decision reference not stored", "project_id", project.ID, "operation", op, "ledger_tx_ref", ref, "error", err)
		project.DecisionTxRef = ref
		return project
	}
	return updated
}

func (s *ProjectAnchoring) ledgerDecision(ctx context.Context, project *domain.ProjectRecord, op string) string {
	if project.LedgerEntityID == 0 {
		s.Logger.Warn("ledger decision skipped: project not anchored", "project_id", project.ID, "operation", op)
		return ""
	}
	var (
		ref string
		err error
	)
	if op == domain.AnchorOpApprove {
		ref, err = s.Ledger.ApproveProject(ctx, project.ID, project.LedgerEntityID)
	} else {
		ref, err = s.Ledger.RejectProject(ctx, project.ID, project.LedgerEntityID)
	}
	if err != nil {
		s.Logger.Warn("ledger decision failed; local decision stands", "project_id", project.ID, "operation", op, "error", err)
	}
	return ref
}

// keepAttestation stores and archives a signed decision. Both are best
// effort: the attestation is already returned to the caller.
func (s *ProjectAnchoring) keepAttestation(ctx context.Context, payload domain.AttestationPayload, att domain.Attestation) {
	if s.Attestations != nil {
		rec := domain.AttestationRecord{ID: uuid.NewString(), ProjectID: payload.ProjectID, Type: payload.Type, Attestation: att}
		if err := s.Attestations.Append(ctx, rec); err != nil {
			s.Logger.Error("attestation not stored", "project_id", payload.ProjectID, "type", payload.Type, "error", err)
		}
	}
	if s.Archive != nil {
		if err := s.Archive.Put(ctx, payload.ProjectID, payload, att); err != nil {
			s.Logger.Error("attestation not archived", "project_id", payload.ProjectID, "type", payload.Type, "error", err)
		}
	}
}

// IssueCredits issues amount credits for an APPROVED project after the
// issuance policy allows it. The amount is reserved as PendingCredits before
// the ledger call, so concurrent issuances are evaluated against each other.
// A confirmed mint moves the reservation to IssuedCredits; a failed one
// releases it. An indeterminate mint keeps it until reconciliation, which
// stops a retry from issuing the same credits twice.
func (s *ProjectAnchoring) IssueCredits(ctx context.Context, projectID string, amount uint64, recipient string) (IssueCreditsResult, error) {
	recipient = strings.TrimSpace(recipient)
	var eval domain.PolicyEvaluation
	project, err := s.mutate(ctx, projectID, func(p *domain.ProjectRecord) error {
		if p.Status != domain.ProjectStatusApproved {
			return fmt.Errorf("%w: credits require an approved project, project is %s", domain.ErrInvalidState, p.Status)
		}
		var err error
		eval, err = s.Policy.Evaluate(ctx, domain.IssuancePolicyInput{
			Project: domain.IssuancePolicyProject{
				ID:               p.ID,
				Status:           string(p.Status),
				EcosystemType:    p.EcosystemType,
				AreaHectares:     p.AreaHectares,
				EstimatedCredits: p.EstimatedCredits,
				IssuedCredits:    p.IssuedCredits,
				PendingCredits:   p.PendingCredits,
			},
			Issuance: domain.IssuancePolicyRequest{
				Amount:           amount,
				Recipient:        recipient,
				RecipientIsValid: common.IsHexAddress(recipient),
			},
		})
		if err != nil {
			return fmt.Errorf("evaluate issuance policy: %w", err)
		}
		if !eval.Result.Allow {
			return fmt.Errorf("%w: %s", domain.ErrPolicyDenied, denyCodes(eval.Result.Deny))
		}
		p.PendingCredits += amount
		return nil
	})
	result := IssueCreditsResult{Project: project, Policy: eval}
	if err != nil {
		return result, err
	}

	res, ledgerErr := s.Ledger.IssueCredits(ctx, project.ID, project.LedgerEntityID, amount, recipient, domain.CreditMetadata{
		Location:         project.Location,
		AreaHectares:     project.AreaHectares,
		EcosystemType:    project.EcosystemType,
		VerificationHash: project.DataHash,
	})
	result.Ledger = res

	if errors.Is(ledgerErr, domain.ErrIndeterminate) {
		s.Logger.Warn("credit issuance indeterminate; reservation held for reconciliation",
			"project_id", project.ID, "amount", amount, "pending_total", project.PendingCredits, "error", ledgerErr)
		return result, ledgerErr
	}
	settled, err := s.mutate(ctx, project.ID, func(p *domain.ProjectRecord) error {
		p.PendingCredits = subtractCredits(p.PendingCredits, amount)
		if ledgerErr == nil {
			p.IssuedCredits += amount
		}
		return nil
	})
	if err != nil {
		s.Logger.Error("credit reservation not settled", "project_id", project.ID, "amount", amount, "minted", ledgerErr == nil, "error", err)
		if ledgerErr != nil {
			return result, ledgerErr
		}
		return result, err
	}
	result.Project = settled
	if ledgerErr != nil {
		return result, ledgerErr
	}
	s.Logger.Info("credits issued",
		"project_id", settled.ID,
		"amount", amount,
		"recipient", recipient,
		"issued_total", settled.IssuedCredits,
		"tx_ref", res.TransactionReference,
		"bundle_hash", eval.BundleHash,
	)
	return result, nil
}

func subtractCredits(total, amount uint64) uint64 {
	if amount > total {
		return 0
	}
	return total - amount
}

func (s *ProjectAnchoring) Get(ctx context.Context, projectID string) (domain.ProjectRecord, error) {
	if strings.TrimSpace(projectID) == "" {
		return domain.ProjectRecord{}, domain.NewValidationError("projectId", "is required")
	}
	project, err := s.Projects.Get(ctx, projectID)
	if err != nil {
		return domain.ProjectRecord{}, err
	}
	return *project, nil
}

type MintAchievementInput struct {
	Recipient   string
	Title       string
	Description string
	MetadataURI string
}

// MintAchievement awards a soulbound achievement for an APPROVED project that
// is anchored on the ledger. Approval itself never mints one.
func (s *ProjectAnchoring) MintAchievement(ctx context.Context, projectID string, in MintAchievementInput) (domain.ChainOperationResult, error) {
	recipient := strings.TrimSpace(in.Recipient)
	if !common.IsHexAddress(recipient) {
		return domain.ChainOperationResult{}, domain.NewValidationError("recipient", "must be a hex address")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.ChainOperationResult{}, domain.NewValidationError("title", "is required")
	}
	project, err := s.Projects.Get(ctx, projectID)
	if err != nil {
		return domain.ChainOperationResult{}, err
	}
	if project.Status != domain.ProjectStatusApproved {
		return domain.ChainOperationResult{}, fmt.Errorf("%w: achievements require an approved project, project is %s", domain.ErrInvalidState, project.Status)
	}
	if project.LedgerEntityID == 0 {
		return domain.ChainOperationResult{}, fmt.Errorf("%w: project is not anchored", domain.ErrInvalidState)
	}
	res, err := s.Ledger.MintAchievement(ctx, project.ID, domain.AchievementMint{
		Recipient:   recipient,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		ProjectID:   project.LedgerEntityID,
		MetadataURI: in.MetadataURI,
	})
	if err != nil {
		return res, err
	}
	s.Logger.Info("achievement minted", "project_id", project.ID, "recipient", recipient, "title", title, "tx_ref", res.TransactionReference)
	return res, nil
}

func denyCodes(denies []domain.PolicyDeny) string {
	codes := make([]string, 0, len(denies))
	for _, d := range denies {
		codes = append(codes, d.Code)
	}
	return strings.Join(codes, ",")
}

func (s *ProjectAnchoring) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
