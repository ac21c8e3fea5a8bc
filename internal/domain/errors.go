package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state transition")
	ErrConcurrentUpdate   = errors.New("record changed concurrently")
	ErrIndeterminate      = errors.New("ledger result indeterminate")
	ErrReferenceConsumed  = errors.New("payment reference already consumed")
	ErrAttestationInvalid = errors.New("attestation invalid")
	ErrPolicyDenied       = errors.New("policy denied")
	ErrInsecureSecret     = errors.New("insecure default secret in use")
)

// ValidationError reports bad caller input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// LedgerSubmissionError is returned when a Production-mode write fails.
// Local state is expected to proceed as "pending anchor".
type LedgerSubmissionError struct {
	Operation string
	Code      string
	TxRef     string
	Err       error
}

func (e *LedgerSubmissionError) Error() string {
	msg := "ledger submission failed: " + e.Operation
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LedgerSubmissionError) Unwrap() error {
	return e.Err
}

// IsLedgerSubmission reports whether err carries a *LedgerSubmissionError.
func IsLedgerSubmission(err error) bool {
	var l *LedgerSubmissionError
	return errors.As(err, &l)
}
