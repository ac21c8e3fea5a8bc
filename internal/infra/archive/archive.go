// Package archive copies signed attestations to S3-compatible object
// storage so decisions survive independently of the database.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"greentoken/internal/config"
	"greentoken/internal/domain"
	"greentoken/pkg/attest"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectStore is the part of *minio.Client the archive uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Archive struct {
	client objectStore
	bucket string
	region string
}

var _ domain.AttestationArchive = (*Archive)(nil)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		Endpoint:  cfg.ArchiveEndpoint,
		AccessKey: cfg.ArchiveAccessKey,
		SecretKey: cfg.ArchiveSecretKey,
		Region:    cfg.ArchiveRegion,
		Bucket:    cfg.ArchiveBucket,
		UseSSL:    cfg.ArchiveUseSSL,
	}
}

func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("archive endpoint is required")
	}
	if c.Bucket == "" {
		return errors.New("archive bucket is required")
	}
	return nil
}

func New(cfg Config) (*Archive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("archive client: %w", err)
	}
	return &Archive{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

func newWithStore(store objectStore, bucket string) *Archive {
	return &Archive{client: store, bucket: bucket}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("archive bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	return a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region})
}

type archivedAttestation struct {
	ProjectID   string                    `json:"projectId"`
	Type        string                    `json:"type"`
	Payload     domain.AttestationPayload `json:"payload"`
	Attestation domain.Attestation        `json:"attestation"`
	Proof       string                    `json:"proof"`
}

func (a *Archive) Put(ctx context.Context, projectID string, payload domain.AttestationPayload, att domain.Attestation) error {
	if projectID == "" {
		return errors.New("project id is required")
	}
	body, err := json.Marshal(archivedAttestation{
		ProjectID:   projectID,
		Type:        payload.Type,
		Payload:     payload,
		Attestation: att,
		Proof:       attest.ProofString(att),
	})
	if err != nil {
		return err
	}
	key := ObjectKey(projectID, att.TimestampMillis, payload.Type)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("archive put %s: %w", key, err)
	}
	return nil
}

// ObjectKey is attestations/{projectId}/{timestampMillis}-{type}.json.
func ObjectKey(projectID string, timestampMillis int64, attestationType string) string {
	return fmt.Sprintf("attestations/%s/%d-%s.json", projectID, timestampMillis, attestationType)
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
