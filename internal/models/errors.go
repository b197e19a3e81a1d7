package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the evidence collection.
var (
	ErrEvidenceNotFound = errors.New("evidence not found on claim")
	ErrEvidenceOwned    = errors.New("evidence belongs to another claim")
	ErrEvidenceExists   = errors.New("evidence already attached to claim")
)

// ValidationError reports a missing or out-of-domain field. Field is the
// JSON name used in API payloads.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError is returned when the requested status is not
// reachable from the claim's current status.
type InvalidTransitionError struct {
	From ClaimStatus
	To   ClaimStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid claim status transition from %s to %s", e.From, e.To)
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvalidTransition reports whether err is, or wraps, an *InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}
