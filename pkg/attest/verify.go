package attest

import (
	"bytes"
	"crypto/hmac"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"greentoken/internal/domain"
)

// Verify recomputes the MAC over the decoded payload and compares it in
// constant time. Any mismatch is ErrAttestationInvalid; there is no partial
// trust in a payload whose MAC does not match.
func (s *Signer) Verify(att domain.Attestation) (domain.AttestationPayload, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(att.Attestation)
	if err != nil {
		return domain.AttestationPayload{}, fmt.Errorf("%w: payload encoding", domain.ErrAttestationInvalid)
	}
	sig, err := hex.DecodeString(att.Signature)
	if err != nil {
		return domain.AttestationPayload{}, fmt.Errorf("%w: signature encoding", domain.ErrAttestationInvalid)
	}
	if !hmac.Equal(mac(s.secret, raw), sig) {
		return domain.AttestationPayload{}, fmt.Errorf("%w: signature mismatch", domain.ErrAttestationInvalid)
	}

	var payload domain.AttestationPayload
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return domain.AttestationPayload{}, fmt.Errorf("%w: payload json", domain.ErrAttestationInvalid)
	}
	if att.TimestampMillis != 0 && att.TimestampMillis != payload.Timestamp {
		return domain.AttestationPayload{}, fmt.Errorf("%w: timestamp mismatch", domain.ErrAttestationInvalid)
	}
	return payload, nil
}

// ProofString is the compact form attached to notifications:
// base64(payload) "." hex(signature).
func ProofString(att domain.Attestation) string {
	return att.Attestation + "." + att.Signature
}

// ParseProofString reverses ProofString. The timestamp is left zero; Verify
// takes it from the payload.
func ParseProofString(proof string) (domain.Attestation, error) {
	payload, sig, ok := strings.Cut(strings.TrimSpace(proof), ".")
	if !ok || payload == "" || sig == "" {
		return domain.Attestation{}, fmt.Errorf("%w: malformed proof string", domain.ErrAttestationInvalid)
	}
	return domain.Attestation{Attestation: payload, Signature: sig}, nil
}
