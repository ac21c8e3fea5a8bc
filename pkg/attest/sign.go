// Package attest produces and checks off-chain approval/rejection
// attestations. An attestation is an HMAC-SHA256 over canonical JSON and
// verifies only with the same platform secret.
package attest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"greentoken/internal/domain"
	cryptoinfra "greentoken/internal/infra/crypto"
)

// DefaultPlatformSecret is used when no secret is configured. Anything
// signed with it can be forged by anyone who reads this file.
const DefaultPlatformSecret = "greentoken-platform-attestation-default-secret-change-in-production"

type Signer struct {
	secret   []byte
	insecure bool
	now      func() time.Time
}

// NewSigner keys the signer with secret, falling back to
// DefaultPlatformSecret when it is empty. Check Insecure before trusting
// output outside development.
func NewSigner(secret string, now func() time.Time) *Signer {
	insecure := false
	if strings.TrimSpace(secret) == "" || secret == DefaultPlatformSecret {
		secret = DefaultPlatformSecret
		insecure = true
	}
	if now == nil {
		now = time.Now
	}
	return &Signer{secret: []byte(secret), insecure: insecure, now: now}
}

// Insecure reports whether the signer runs on the public default secret.
func (s *Signer) Insecure() bool {
	return s.insecure
}

func (s *Signer) SignApproval(projectID, dataHash, approverAddress string) (domain.Attestation, error) {
	if projectID == "" {
		return domain.Attestation{}, errors.New("project id is required")
	}
	return s.sign(domain.AttestationPayload{
		Type:      domain.AttestationProjectApproval,
		ProjectID: projectID,
		DataHash:  dataHash,
		Approver:  approverAddress,
	})
}

func (s *Signer) SignRejection(projectID, reason, rejecterAddress string) (domain.Attestation, error) {
	if projectID == "" {
		return domain.Attestation{}, errors.New("project id is required")
	}
	return s.sign(domain.AttestationPayload{
		Type:      domain.AttestationProjectRejection,
		ProjectID: projectID,
		Reason:    reason,
		Rejecter:  rejecterAddress,
	})
}

func (s *Signer) sign(payload domain.AttestationPayload) (domain.Attestation, error) {
	payload.Timestamp = s.now().UnixMilli()
	raw, err := canonicalPayload(payload)
	if err != nil {
		return domain.Attestation{}, err
	}
	return domain.Attestation{
		Attestation:     base64.StdEncoding.EncodeToString(raw),
		Signature:       hex.EncodeToString(mac(s.secret, raw)),
		TimestampMillis: payload.Timestamp,
	}, nil
}

// canonicalPayload keeps only the fields that belong to the payload type so
// approval and rejection documents never carry each other's empty keys.
func canonicalPayload(p domain.AttestationPayload) ([]byte, error) {
	doc := map[string]any{
		"type":      p.Type,
		"projectId": p.ProjectID,
		"timestamp": p.Timestamp,
	}
	switch p.Type {
	case domain.AttestationProjectApproval:
		doc["dataHash"] = p.DataHash
		doc["approver"] = p.Approver
	case domain.AttestationProjectRejection:
		doc["reason"] = p.Reason
		doc["rejecter"] = p.Rejecter
	default:
		return nil, errors.New("unknown attestation type: " + p.Type)
	}
	return cryptoinfra.Marshal(doc)
}

func mac(secret, payload []byte) []byte {
	h := hmac.New(sha256.New, secret)
	_, _ = h.Write(payload)
	return h.Sum(nil)
}
