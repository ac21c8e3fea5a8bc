package domain

import "context"

const (
	AttestationProjectApproval  = "PROJECT_APPROVAL"
	AttestationProjectRejection = "PROJECT_REJECTION"
)

// Attestation is a closed, self-contained signed record. It is superseded,
// never edited.
type Attestation struct {
	Attestation     string `json:"attestation"`
	Signature       string `json:"signature"`
	TimestampMillis int64  `json:"timestampMillis"`
}

// AttestationPayload is the decoded form of Attestation.Attestation.
type AttestationPayload struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId"`
	DataHash  string `json:"dataHash,omitempty"`
	Approver  string `json:"approver,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Rejecter  string `json:"rejecter,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type AttestationRecord struct {
	ID          string
	ProjectID   string
	Type        string
	Attestation Attestation
}

type AttestationRepository interface {
	Append(ctx context.Context, rec AttestationRecord) error
	ListByProject(ctx context.Context, projectID string) ([]AttestationRecord, error)
}

// AttestationArchive stores a copy of each attestation outside the database.
type AttestationArchive interface {
	Put(ctx context.Context, projectID string, payload AttestationPayload, att Attestation) error
}
