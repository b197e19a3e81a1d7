package models

import (
	"fmt"
	"time"

	"github.com/kylejryan/disaster-relief-claims/internal/validate"

	"github.com/oklog/ulid/v2"
)

// MaxEvidence bounds a claim's evidence so the claim and all its evidence
// can be written in a single store transaction.
const MaxEvidence = 32

// EvidenceKind classifies a supporting artifact.
type EvidenceKind string

// Possible values for EvidenceKind
const (
	EvidencePhoto    EvidenceKind = "PHOTO"
	EvidenceDocument EvidenceKind = "DOCUMENT"
	EvidenceRecord   EvidenceKind = "RECORD"
	EvidenceOther    EvidenceKind = "OTHER"
)

// EvidenceInput is the caller-supplied description of a new artifact.
type EvidenceInput struct {
	Kind        EvidenceKind `json:"kind" validate:"required,oneof=PHOTO DOCUMENT RECORD OTHER"`
	Description string       `json:"description" validate:"max=500"`
	Filename    string       `json:"filename" validate:"required,filename"`
	ContentType string       `json:"contentType" validate:"required,contentType"`
}

// Evidence is a supporting artifact owned by exactly one claim. Items are only
// created by Claim.AddEvidence. ClaimID is a back-reference for lookup; the
// claim's collection is the only owner.
type Evidence struct {
	ID          string
	ClaimID     string
	Kind        EvidenceKind
	Description string
	Filename    string
	ContentType string
	S3Key       string
	SizeBytes   int64
	ETag        string
	AddedAt     time.Time
	UploadedAt  time.Time // zero until the artifact upload is confirmed
}

// ValidateEvidenceInput returns a *ValidationError naming the first invalid field of in.
func ValidateEvidenceInput(in EvidenceInput) error {
	return firstViolation(validate.Struct(in))
}

// EvidenceOption customizes an evidence item while its claim creates it.
type EvidenceOption func(*Evidence)

// WithArtifactKey sets the storage key of the item's artifact from its owner,
// its id and its file name.
func WithArtifactKey(key func(claimID, evidenceID, filename string) string) EvidenceOption {
	return func(e *Evidence) { e.S3Key = key(e.ClaimID, e.ID, e.Filename) }
}

// newEvidence validates in and returns an item owned by claimID with a fresh ULID.
func newEvidence(claimID string, in EvidenceInput, opts []EvidenceOption) (Evidence, error) {
	if err := ValidateEvidenceInput(in); err != nil {
		return Evidence{}, err
	}
	e := Evidence{
		ID:          ulid.Make().String(),
		ClaimID:     claimID,
		Kind:        in.Kind,
		Description: in.Description,
		Filename:    in.Filename,
		ContentType: validate.ContentType(in.ContentType),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e, nil
}

// Uploaded reports whether the artifact behind e has been confirmed in storage.
func (e Evidence) Uploaded() bool { return !e.UploadedAt.IsZero() }

// evidenceList is the ordered evidence collection of one claim. Its methods
// maintain ownership only; timestamps are the claim's job.
type evidenceList []Evidence

func (l evidenceList) indexOf(id string) int {
	for i := range l {
		if l[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *evidenceList) add(claimID string, e Evidence) (Evidence, error) {
	switch {
	case e.ID == "":
		return Evidence{}, &ValidationError{Field: "id", Reason: "is required"}
	case e.ClaimID != claimID:
		return Evidence{}, fmt.Errorf("%w: %s is attached to %q", ErrEvidenceOwned, e.ID, e.ClaimID)
	case l.indexOf(e.ID) >= 0:
		return Evidence{}, fmt.Errorf("%w: %s", ErrEvidenceExists, e.ID)
	case len(*l) >= MaxEvidence:
		return Evidence{}, &ValidationError{Field: "evidences", Reason: fmt.Sprintf("must hold at most %d items", MaxEvidence)}
	}
	*l = append(*l, e)
	return e, nil
}

func (l *evidenceList) remove(id string) (Evidence, error) {
	i := l.indexOf(id)
	if i < 0 {
		return Evidence{}, fmt.Errorf("%w: %s", ErrEvidenceNotFound, id)
	}
	removed := (*l)[i]
	*l = append((*l)[:i:i], (*l)[i+1:]...)
	return removed, nil
}

func (l evidenceList) clone() []Evidence {
	if len(l) == 0 {
		return []Evidence{}
	}
	out := make([]Evidence, len(l))
	copy(out, l)
	return out
}
