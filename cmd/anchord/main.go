package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"greentoken/internal/config"
	"greentoken/internal/domain"
	"greentoken/internal/infra/anchor"
	"greentoken/internal/infra/anchor/blockchain"
	"greentoken/internal/infra/archive"
	"greentoken/internal/infra/db"
	httpinfra "greentoken/internal/infra/http"
	"greentoken/internal/infra/keys/hd"
	"greentoken/internal/infra/memstore"
	"greentoken/internal/infra/policyopa"
	"greentoken/internal/infra/refcache"
	"greentoken/internal/usecase"
	"greentoken/pkg/attest"
)

func main() {
	if err := run(); err != nil {
		slog.Error("anchord exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	keys := hd.NewManagerFromConfig(cfg, logger)
	signer := attest.NewSigner(cfg.PlatformSigningSecret, nil)
	if signer.Insecure() {
		logger.Warn("attestations: using the public default platform secret. Set PLATFORM_SIGNING_SECRET in production", "insecure", true)
	}
	insecure := keys.Insecure() || signer.Insecure()
	if cfg.RequireSecureSecrets && insecure {
		return fmt.Errorf("%w: REQUIRE_SECURE_SECRETS is set", domain.ErrInsecureSecret)
	}

	operatorKey, err := loadOperatorKey(cfg, keys)
	if err != nil {
		return err
	}
	gateway := blockchain.New(ctx, blockchain.Config{
		RPCURL:           cfg.LedgerRPCURL,
		OperatorKey:      operatorKey,
		RegistryAddress:  cfg.Contracts.ProjectRegistry,
		CreditAddress:    cfg.Contracts.CarbonCredit,
		SoulboundAddress: cfg.Contracts.SoulboundToken,
		ChainID:          cfg.ChainID,
		RPCTimeout:       cfg.RPCTimeout,
		ConfirmTimeout:   cfg.ConfirmTimeout,
		MinConfirmations: cfg.MinConfirmations,
	}, logger)
	defer gateway.Close()

	store, err := db.NewStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	var (
		projects     domain.ProjectRepository
		payments     domain.PaymentRepository
		attempts     domain.AnchorAttemptRepository
		attestations domain.AttestationRepository
		dbMode       = "no-db"
	)
	if store.Enabled() {
		projects = db.NewProjectRepository(store.DB)
		payments = db.NewPaymentRepository(store.DB)
		attempts = db.NewAnchorAttemptRepository(store.DB)
		attestations = db.NewAttestationRepository(store.DB)
		dbMode = "db"
	} else {
		projects = memstore.NewProjects()
		payments = memstore.NewPayments()
		attempts = memstore.NewAnchorAttempts()
		attestations = memstore.NewAttestations()
	}

	anchorSvc, err := anchor.NewService(gateway, attempts, logger)
	if err != nil {
		return err
	}

	cache := newReferenceCache(ctx, cfg, logger)
	policy, err := newIssuancePolicy(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init issuance policy: %w", err)
	}
	logger.Info("issuance policy loaded", "bundle_hash", policy.BundleHash())

	anchoring, err := usecase.NewProjectAnchoring(projects, anchorSvc, signer, policy, logger)
	if err != nil {
		return err
	}
	anchoring.Attestations = attestations
	if cfg.ArchiveEnabled() {
		arch, err := archive.New(archive.ConfigFrom(cfg))
		if err != nil {
			return fmt.Errorf("init archive: %w", err)
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = arch.EnsureBucket(bucketCtx)
		cancel()
		if err != nil {
			logger.Warn("attestation archive bucket check failed; archiving stays enabled", "bucket", cfg.ArchiveBucket, "error", err)
		}
		anchoring.Archive = arch
	}

	completion, err := usecase.NewPaymentCompletion(payments, cache, gateway, logger)
	if err != nil {
		return err
	}

	srv := httpinfra.NewServerWithDeps(cfg, httpinfra.ServerDeps{
		Projects:         anchoring,
		Payments:         completion,
		Ledger:           gateway,
		Attempts:         anchorSvc,
		Keys:             keys,
		Attestations:     signer,
		PlatformAddress:  keys.MasterAddress(),
		DBMode:           dbMode,
		InsecureDefaults: insecure,
	})
	logger.Info("anchord listening", "addr", cfg.HTTPAddr, "db_mode", dbMode, "ledger_mode", gateway.Mode())
	return srv.Run()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// loadOperatorKey prefers an explicit private key over a derived wallet.
// No key means the gateway runs in mock mode.
func loadOperatorKey(cfg config.Config, keys *hd.Manager) (*ecdsa.PrivateKey, error) {
	if cfg.OperatorPrivateKey != "" {
		key, err := hd.ParsePrivateKey(cfg.OperatorPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("LEDGER_OPERATOR_PRIVATE_KEY: %w", err)
		}
		return key, nil
	}
	if cfg.OperatorWalletIndex < 0 {
		return nil, nil
	}
	key, err := keys.PrivateKey(uint32(cfg.OperatorWalletIndex))
	if err != nil {
		return nil, fmt.Errorf("derive operator wallet %d: %w", cfg.OperatorWalletIndex, err)
	}
	return key, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func newReferenceCache(ctx context.Context, cfg config.Config, logger *slog.Logger) domain.ReferenceCache {
	if cfg.RedisAddr != "" {
		cache, err := refcache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RefCacheTTL, nil)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if p, ok := cache.(pinger); ok {
				err = p.Ping(pingCtx)
			}
		}
		if err == nil {
			logger.Info("consumed-reference cache: redis", "addr", cfg.RedisAddr)
			return cache
		}
		if c, ok := cache.(io.Closer); ok {
			_ = c.Close()
		}
		logger.Warn("consumed-reference cache: redis unavailable, using memory", "addr", cfg.RedisAddr, "error", err)
	}
	return refcache.NewMemoryCache(refcache.MemoryCacheConfig{TTL: cfg.RefCacheTTL})
}

func newIssuancePolicy(ctx context.Context, cfg config.Config) (*policyopa.Engine, error) {
	if cfg.IssuancePolicyPath == "" {
		return policyopa.NewDefaultEngine(ctx)
	}
	return policyopa.NewEngineFromBundlePath(ctx, cfg.IssuancePolicyPath, "custom")
}
