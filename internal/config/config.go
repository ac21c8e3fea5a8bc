package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string
	AppEnv      string
	AdminAPIKey string

	LedgerRPCURL        string
	OperatorPrivateKey  string
	OperatorWalletIndex int
	Contracts           ContractAddresses
	DeploymentFile      string
	ChainID             int64
	RPCTimeout          time.Duration
	ConfirmTimeout      time.Duration
	MinConfirmations    int

	MasterSeed            string
	PlatformSigningSecret string
	RequireSecureSecrets  bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RefCacheTTL   time.Duration

	IssuancePolicyPath string

	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveRegion    string
	ArchiveBucket    string
	ArchiveUseSSL    bool
}

type ContractAddresses struct {
	ProjectRegistry string `yaml:"ProjectRegistry"`
	CarbonCredit    string `yaml:"BlueCarbonCredit"`
	SoulboundToken  string `yaml:"SoulboundToken"`
}

// Any reports whether at least one contract address is configured.
func (c ContractAddresses) Any() bool {
	return c.ProjectRegistry != "" || c.CarbonCredit != "" || c.SoulboundToken != ""
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	appEnv := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	return Config{
		HTTPAddr:            addr,
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		LogLevel:            envDefault("LOG_LEVEL", "info"),
		AppEnv:              appEnv,
		AdminAPIKey:         os.Getenv("ADMIN_API_KEY"),
		LedgerRPCURL:        strings.TrimSpace(os.Getenv("LEDGER_RPC_URL")),
		OperatorPrivateKey:  strings.TrimSpace(os.Getenv("LEDGER_OPERATOR_PRIVATE_KEY")),
		OperatorWalletIndex: envSignedIntDefault("LEDGER_OPERATOR_WALLET_INDEX", -1),
		Contracts: ContractAddresses{
			ProjectRegistry: strings.TrimSpace(os.Getenv("PROJECT_REGISTRY_ADDRESS")),
			CarbonCredit:    strings.TrimSpace(os.Getenv("CARBON_CREDIT_TOKEN_ADDRESS")),
			SoulboundToken:  strings.TrimSpace(os.Getenv("SOULBOUND_TOKEN_ADDRESS")),
		},
		DeploymentFile:        os.Getenv("LEDGER_DEPLOYMENT_FILE"),
		ChainID:               int64(envIntDefault("LEDGER_CHAIN_ID", 0)),
		RPCTimeout:            time.Duration(envIntDefault("LEDGER_RPC_TIMEOUT_SECONDS", 15)) * time.Second,
		ConfirmTimeout:        time.Duration(envIntDefault("LEDGER_CONFIRM_TIMEOUT_SECONDS", 120)) * time.Second,
		MinConfirmations:      envIntDefault("LEDGER_MIN_CONFIRMATIONS", 1),
		MasterSeed:            os.Getenv("CUSTODIAN_WALLET_SEED"),
		PlatformSigningSecret: os.Getenv("PLATFORM_SIGNING_SECRET"),
		RequireSecureSecrets:  envBoolDefault("REQUIRE_SECURE_SECRETS", appEnv == "production"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               envIntDefault("REDIS_DB", 0),
		RefCacheTTL:           time.Duration(envIntDefault("REFCACHE_TTL_SECONDS", 86400)) * time.Second,
		IssuancePolicyPath:    os.Getenv("ISSUANCE_POLICY_PATH"),
		ArchiveEndpoint:       os.Getenv("ARCHIVE_ENDPOINT"),
		ArchiveAccessKey:      os.Getenv("ARCHIVE_ACCESS_KEY"),
		ArchiveSecretKey:      os.Getenv("ARCHIVE_SECRET_KEY"),
		ArchiveRegion:         os.Getenv("ARCHIVE_REGION"),
		ArchiveBucket:         envDefault("ARCHIVE_BUCKET", "greentoken-attestations"),
		ArchiveUseSSL:         envBoolDefault("ARCHIVE_USE_SSL", true),
	}
}

// Deployment is the record written by the contract deploy script.
type Deployment struct {
	Network   string            `yaml:"network"`
	ChainID   int64             `yaml:"chainId"`
	Deployer  string            `yaml:"deployer"`
	Contracts ContractAddresses `yaml:"contracts"`
}

// LoadDeployment reads a deployment record. JSON files parse as YAML.
func LoadDeployment(path string) (Deployment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Deployment{}, fmt.Errorf("read deployment file: %w", err)
	}
	var d Deployment
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return Deployment{}, fmt.Errorf("parse deployment file: %w", err)
	}
	return d, nil
}

// ApplyDeployment fills contract addresses and chain id left unset by the
// environment. Explicit env values win.
func (c Config) ApplyDeployment(d Deployment) Config {
	if c.Contracts.ProjectRegistry == "" {
		c.Contracts.ProjectRegistry = strings.TrimSpace(d.Contracts.ProjectRegistry)
	}
	if c.Contracts.CarbonCredit == "" {
		c.Contracts.CarbonCredit = strings.TrimSpace(d.Contracts.CarbonCredit)
	}
	if c.Contracts.SoulboundToken == "" {
		c.Contracts.SoulboundToken = strings.TrimSpace(d.Contracts.SoulboundToken)
	}
	if c.ChainID == 0 {
		c.ChainID = d.ChainID
	}
	return c
}

// Load is FromEnv plus the optional deployment file.
func Load() (Config, error) {
	cfg := FromEnv()
	if cfg.DeploymentFile == "" {
		return cfg, nil
	}
	d, err := LoadDeployment(cfg.DeploymentFile)
	if err != nil {
		return cfg, err
	}
	return cfg.ApplyDeployment(d), nil
}

func (c Config) ArchiveEnabled() bool {
	return c.ArchiveEndpoint != ""
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// envSignedIntDefault accepts zero and negative values.
func envSignedIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}
