package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"greentoken/internal/domain"
	"greentoken/internal/infra/anchor/blockchain"
	cryptoinfra "greentoken/internal/infra/crypto"
	"greentoken/internal/usecase"
	"greentoken/pkg/attest"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type projectRequest struct {
	Name           string   `json:"name"`
	Location       string   `json:"location"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	AreaHectares   float64  `json:"area_hectares"`
	EcosystemType  string   `json:"ecosystem_type"`
	OwnerID        string   `json:"owner_id"`
	DocumentHashes []string `json:"document_hashes"`
	MetadataURI    string   `json:"metadata_uri,omitempty"`
}

func (r projectRequest) fingerprintInput() domain.ProjectFingerprintInput {
	return domain.ProjectFingerprintInput{
		Name:           r.Name,
		Location:       r.Location,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		AreaHectares:   r.AreaHectares,
		EcosystemType:  r.EcosystemType,
		OwnerID:        r.OwnerID,
		DocumentHashes: r.DocumentHashes,
	}
}

type projectResponse struct {
	ID                   string   `json:"id"`
	OwnerID              string   `json:"owner_id"`
	Name                 string   `json:"name"`
	Location             string   `json:"location"`
	Latitude             float64  `json:"latitude"`
	Longitude            float64  `json:"longitude"`
	AreaHectares         float64  `json:"area_hectares"`
	EcosystemType        string   `json:"ecosystem_type"`
	DocumentHashes       []string `json:"document_hashes"`
	DataHash             string   `json:"data_hash"`
	Status               string   `json:"status"`
	AnchorState          string   `json:"anchor_state"`
	LedgerMode           string   `json:"ledger_mode"`
	LedgerEntityID       uint64   `json:"ledger_entity_id,omitempty"`
	TransactionReference string   `json:"transaction_reference,omitempty"`
	DecisionTxRef        string   `json:"decision_tx_ref,omitempty"`
	EstimatedCredits     float64  `json:"estimated_credits"`
	IssuedCredits        uint64   `json:"issued_credits"`
	PendingCredits       uint64   `json:"pending_credits"`
	CreatedAt            string   `json:"created_at"`
	UpdatedAt            string   `json:"updated_at"`
	ApprovedAt           string   `json:"approved_at,omitempty"`
}

type decisionRequest struct {
	Approver string `json:"approver"`
	Rejecter string `json:"rejecter"`
	Reason   string `json:"reason"`
}

type decisionResponse struct {
	Project     projectResponse    `json:"project"`
	Attestation domain.Attestation `json:"attestation"`
	Proof       string             `json:"proof"`
	LedgerTxRef string             `json:"ledger_tx_ref,omitempty"`
}

type issueCreditsRequest struct {
	Amount    uint64 `json:"amount"`
	Recipient string `json:"recipient"`
}

type issueCreditsResponse struct {
	Status     string          `json:"status"`
	Project    projectResponse `json:"project"`
	TxRef      string          `json:"tx_ref,omitempty"`
	Mode       string          `json:"mode"`
	BundleHash string          `json:"bundle_hash,omitempty"`
}

type achievementRequest struct {
	Recipient   string `json:"recipient"`
	Title       string `json:"title"`
	Description string `json:"description"`
	MetadataURI string `json:"metadata_uri"`
}

type attemptResponse struct {
	ID             string `json:"id"`
	Operation      string `json:"operation"`
	Mode           string `json:"mode"`
	Status         string `json:"status"`
	ErrorCode      string `json:"error_code,omitempty"`
	TxRef          string `json:"tx_ref,omitempty"`
	LedgerEntityID uint64 `json:"ledger_entity_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type paymentRequest struct {
	UserID       string          `json:"user_id"`
	Reference    string          `json:"reference"`
	ClaimedValue decimal.Decimal `json:"claimed_value"`
	Claimant     string          `json:"claimant"`
}

type paymentResponse struct {
	Outcome      string                    `json:"outcome"`
	Status       string                    `json:"status"`
	Reason       string                    `json:"reason,omitempty"`
	Detail       string                    `json:"detail,omitempty"`
	OnChainValue string                    `json:"on_chain_value,omitempty"`
	Transaction  *domain.TransactionStatus `json:"transaction,omitempty"`
	GrantID      string                    `json:"grant_id,omitempty"`
	Credited     string                    `json:"credited,omitempty"`
}

type attestationVerifyRequest struct {
	Attestation     string `json:"attestation"`
	Signature       string `json:"signature"`
	TimestampMillis int64  `json:"timestamp_millis"`
	Proof           string `json:"proof"`
}

type signatureVerifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Address   string `json:"address"`
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func (s *Server) handleFingerprint(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	hash, err := cryptoinfra.Fingerprint(req.fingerprintInput())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data_hash": hash, "version": cryptoinfra.FingerprintVersion})
}

func (s *Server) handleSubmitProject(c *gin.Context) {
	if s.projects == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	res, err := s.projects.Submit(c.Request.Context(), usecase.SubmitProjectInput{
		ProjectFingerprintInput: req.fingerprintInput(),
		MetadataURI:             req.MetadataURI,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildProjectResponse(res.Project))
}

func (s *Server) handleGetProject(c *gin.Context) {
	if s.projects == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	project, err := s.projects.Get(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildProjectResponse(project))
}

func (s *Server) handleListAnchorAttempts(c *gin.Context) {
	if s.attempts == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	attempts, err := s.attempts.Attempts(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, attemptResponse{
			ID:             a.ID,
			Operation:      a.Operation,
			Mode:           string(a.Mode),
			Status:         a.Status,
			ErrorCode:      a.ErrorCode,
			TxRef:          a.TxRef,
			LedgerEntityID: a.LedgerEntityID,
			CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAdminApprove(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	s.handleDecision(c, true)
}

func (s *Server) handleAdminReject(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	s.handleDecision(c, false)
}

func (s *Server) handleDecision(c *gin.Context, approve bool) {
	if s.projects == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req decisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
			return
		}
	}
	actor := req.Rejecter
	if approve {
		actor = req.Approver
	}
	actor, err := s.decisionActor(actor)
	if err != nil {
		writeError(c, err)
		return
	}

	var res usecase.DecisionResult
	if approve {
		res, err = s.projects.Approve(c.Request.Context(), c.Param("project_id"), actor)
	} else {
		res, err = s.projects.Reject(c.Request.Context(), c.Param("project_id"), req.Reason, actor)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, decisionResponse{
		Project:     buildProjectResponse(res.Project),
		Attestation: res.Attestation,
		Proof:       attest.ProofString(res.Attestation),
		LedgerTxRef: res.LedgerTxRef,
	})
}

func (s *Server) decisionActor(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		address = s.platformAddress
	}
	if !common.IsHexAddress(address) {
		return "", domain.NewValidationError("address", "decision maker must be a hex address")
	}
	return common.HexToAddress(address).Hex(), nil
}

func (s *Server) handleAdminIssueCredits(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.projects == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req issueCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	res, err := s.projects.IssueCredits(c.Request.Context(), c.Param("project_id"), req.Amount, req.Recipient)
	out := issueCreditsResponse{
		Status:     "issued",
		Project:    buildProjectResponse(res.Project),
		TxRef:      res.Ledger.TransactionReference,
		Mode:       string(res.Ledger.Mode),
		BundleHash: res.Policy.BundleHash,
	}
	switch {
	case err == nil:
		c.JSON(http.StatusOK, out)
	case errors.Is(err, domain.ErrIndeterminate):
		// Sent but unconfirmed; the reconciliation job settles the count.
		out.Status = "processing"
		c.JSON(http.StatusAccepted, out)
	case errors.Is(err, domain.ErrPolicyDenied):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Code:    "POLICY_DENIED",
			Message: err.Error(),
			Details: map[string]any{
				"deny":        res.Policy.Result.Deny,
				"bundle_id":   res.Policy.BundleID,
				"bundle_hash": res.Policy.BundleHash,
			},
		})
	default:
		writeError(c, err)
	}
}

func (s *Server) handleAdminMintAchievement(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.projects == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req achievementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	res, err := s.projects.MintAchievement(c.Request.Context(), c.Param("project_id"), usecase.MintAchievementInput{
		Recipient:   req.Recipient,
		Title:       req.Title,
		Description: req.Description,
		MetadataURI: req.MetadataURI,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleReadTransaction(c *gin.Context) {
	if s.ledger == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	ref := strings.TrimSpace(c.Param("reference"))
	if !blockchain.IsTransactionReference(ref) {
		writeError(c, domain.NewValidationError("reference", "must be 0x followed by 64 hex characters"))
		return
	}
	status, err := s.ledger.ReadTransaction(c.Request.Context(), ref)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleTokenBalance(c *gin.Context) {
	if s.ledger == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	address := strings.TrimSpace(c.Param("address"))
	if !common.IsHexAddress(address) {
		writeError(c, domain.NewValidationError("address", "must be a hex address"))
		return
	}
	balance, err := s.ledger.TokenBalance(c.Request.Context(), address)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "balance": balance, "mode": s.ledger.Mode()})
}

func (s *Server) handleCompletePayment(c *gin.Context) {
	if s.payments == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	res, err := s.payments.CompletePayment(c.Request.Context(), req.UserID, domain.PaymentProof{
		Reference:    req.Reference,
		ClaimedValue: req.ClaimedValue,
		Claimant:     req.Claimant,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	out := buildPaymentResponse(res)
	switch res.Outcome {
	case usecase.PaymentCompleted:
		c.JSON(http.StatusOK, out)
	case usecase.PaymentProcessing:
		c.JSON(http.StatusAccepted, out)
	default:
		c.JSON(http.StatusUnprocessableEntity, out)
	}
}

func (s *Server) handleVerifyAttestation(c *gin.Context) {
	if s.verifier == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req attestationVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	att := domain.Attestation{
		Attestation:     req.Attestation,
		Signature:       req.Signature,
		TimestampMillis: req.TimestampMillis,
	}
	if req.Proof != "" {
		parsed, err := attest.ParseProofString(req.Proof)
		if err != nil {
			writeError(c, err)
			return
		}
		att = parsed
	}
	payload, err := s.verifier.Verify(att)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "payload": payload})
}

func (s *Server) handleAdminDeriveWallet(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.keys == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	index, err := strconv.ParseUint(c.Param("index"), 10, 32)
	if err != nil {
		writeError(c, domain.NewValidationError("index", "must be an unsigned 32-bit integer"))
		return
	}
	c.JSON(http.StatusOK, s.keys.DeriveKey(uint32(index)))
}

func (s *Server) handleVerifySignature(c *gin.Context) {
	if s.keys == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req signatureVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	valid := s.keys.VerifySignature([]byte(req.Message), req.Signature, req.Address)
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

func buildProjectResponse(p domain.ProjectRecord) projectResponse {
	out := projectResponse{
		ID:                   p.ID,
		OwnerID:              p.OwnerID,
		Name:                 p.Name,
		Location:             p.Location,
		Latitude:             p.Latitude,
		Longitude:            p.Longitude,
		AreaHectares:         p.AreaHectares,
		EcosystemType:        p.EcosystemType,
		DocumentHashes:       p.DocumentHashes,
		DataHash:             p.DataHash,
		Status:               string(p.Status),
		AnchorState:          string(p.AnchorState),
		LedgerMode:           string(p.LedgerMode),
		LedgerEntityID:       p.LedgerEntityID,
		TransactionReference: p.TransactionReference,
		DecisionTxRef:        p.DecisionTxRef,
		EstimatedCredits:     p.EstimatedCredits,
		IssuedCredits:        p.IssuedCredits,
		PendingCredits:       p.PendingCredits,
		CreatedAt:            p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if out.DocumentHashes == nil {
		out.DocumentHashes = []string{}
	}
	if p.ApprovedAt != nil {
		out.ApprovedAt = p.ApprovedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func buildPaymentResponse(res usecase.PaymentCompletionResult) paymentResponse {
	out := paymentResponse{
		Outcome:     string(res.Outcome),
		Status:      string(res.Verdict.Status),
		Reason:      string(res.Verdict.Reason),
		Detail:      res.Verdict.Detail,
		Transaction: res.Verdict.Transaction,
	}
	if res.Verdict.OnChainValue != nil {
		out.OnChainValue = res.Verdict.OnChainValue.String()
	}
	if res.Grant != nil {
		out.GrantID = res.Grant.ID
		out.Credited = res.Grant.Amount.String()
	}
	return out
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	var details map[string]any
	var ledgerErr *domain.LedgerSubmissionError
	switch {
	case domain.IsValidation(err):
		status, code = http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, domain.ErrAttestationInvalid):
		status, code = http.StatusBadRequest, "ATTESTATION_INVALID"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidState):
		status, code = http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, domain.ErrConcurrentUpdate):
		status, code = http.StatusConflict, "CONCURRENT_UPDATE"
	case errors.Is(err, domain.ErrReferenceConsumed):
		status, code = http.StatusConflict, "REFERENCE_CONSUMED"
	case errors.Is(err, domain.ErrPolicyDenied):
		status, code = http.StatusUnprocessableEntity, "POLICY_DENIED"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.As(err, &ledgerErr):
		status, code = http.StatusBadGateway, "LEDGER_SUBMISSION_FAILED"
		details = map[string]any{"operation": ledgerErr.Operation}
		if ledgerErr.Code != "" {
			details["code"] = ledgerErr.Code
		}
		if ledgerErr.TxRef != "" {
			details["tx_ref"] = ledgerErr.TxRef
		}
	}
	c.JSON(status, errorResponse{
		Code:    code,
		Message: err.Error(),
		Details: details,
	})
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
