package http

import (
	"context"
	"net/http"

	"greentoken/internal/config"
	"greentoken/internal/domain"
	"greentoken/internal/usecase"

	"github.com/gin-gonic/gin"
)

// LedgerReader is the read side of the ledger gateway.
type LedgerReader interface {
	Mode() domain.LedgerMode
	ReadTransaction(ctx context.Context, reference string) (domain.TransactionStatus, error)
	TokenBalance(ctx context.Context, address string) (string, error)
}

type AttemptLister interface {
	Attempts(ctx context.Context, projectID string) ([]domain.AnchorAttempt, error)
}

type AttestationVerifier interface {
	Verify(att domain.Attestation) (domain.AttestationPayload, error)
}

type Server struct {
	cfg config.Config
	r   *gin.Engine

	projects *usecase.ProjectAnchoring
	payments *usecase.PaymentCompletion
	ledger   LedgerReader
	attempts AttemptLister
	keys     domain.KeyDeriver
	verifier AttestationVerifier

	adminAPIKey      string
	platformAddress  string
	dbMode           string
	insecureDefaults bool
}

type ServerDeps struct {
	Projects     *usecase.ProjectAnchoring
	Payments     *usecase.PaymentCompletion
	Ledger       LedgerReader
	Attempts     AttemptLister
	Keys         domain.KeyDeriver
	Attestations AttestationVerifier

	// PlatformAddress signs off decisions when the request names no approver.
	PlatformAddress string
	// DBMode is "db" with postgres and "no-db" with in-memory repositories.
	DBMode           string
	InsecureDefaults bool
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:              cfg,
		r:                r,
		projects:         deps.Projects,
		payments:         deps.Payments,
		ledger:           deps.Ledger,
		attempts:         deps.Attempts,
		keys:             deps.Keys,
		verifier:         deps.Attestations,
		adminAPIKey:      cfg.AdminAPIKey,
		platformAddress:  deps.PlatformAddress,
		dbMode:           deps.DBMode,
		insecureDefaults: deps.InsecureDefaults,
	}
	if s.dbMode == "" {
		s.dbMode = "no-db"
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		ledgerMode := ""
		if s.ledger != nil {
			ledgerMode = string(s.ledger.Mode())
		}
		c.JSON(http.StatusOK, gin.H{
			"status":            "ok",
			"mode":              s.dbMode,
			"ledger_mode":       ledgerMode,
			"insecure_defaults": s.insecureDefaults,
		})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/fingerprints", s.handleFingerprint)

		v1.POST("/projects", s.handleSubmitProject)
		v1.GET("/projects/:project_id", s.handleGetProject)
		v1.GET("/projects/:project_id/anchor-attempts", s.handleListAnchorAttempts)
		v1.POST("/projects/:project_id/approve", s.handleAdminApprove)
		v1.POST("/projects/:project_id/reject", s.handleAdminReject)
		v1.POST("/projects/:project_id/credits", s.handleAdminIssueCredits)
		v1.POST("/projects/:project_id/achievements", s.handleAdminMintAchievement)

		v1.GET("/ledger/transactions/:reference", s.handleReadTransaction)
		v1.GET("/ledger/balances/:address", s.handleTokenBalance)

		v1.POST("/payments/crypto/verify", s.handleCompletePayment)

		v1.POST("/attestations/verify", s.handleVerifyAttestation)
		v1.GET("/wallets/:index", s.handleAdminDeriveWallet)
		v1.POST("/signatures/verify", s.handleVerifySignature)
	}

	s.r.NoRoute(s.handleNoRoute)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}
