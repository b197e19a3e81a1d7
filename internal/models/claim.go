package models

import (
	"fmt"
	"time"

	"github.com/kylejryan/disaster-relief-claims/internal/claimid"
	"github.com/kylejryan/disaster-relief-claims/internal/validate"
)

// Claimant identifies the person asking for relief.
type Claimant struct {
	Name  string `json:"claimantName" validate:"required,notblank"`
	Email string `json:"claimantEmail" validate:"required,notblank,email"`
	Phone string `json:"claimantPhone" validate:"required,notblank"`
}

// Property is the damaged property.
type Property struct {
	Address    string `json:"propertyAddress" validate:"required,notblank"`
	PostalCode string `json:"postalCode"`
}

// Coordinates locate the damaged property.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// ClaimInput carries the fields needed to open a claim. The coordinates are
// pointers because 0.0 is a real position; nil means not supplied.
type ClaimInput struct {
	DisasterID        string   `json:"disasterId" validate:"required,notblank,max=64,excludesall=/#"`
	Claimant          Claimant `json:"claimant"`
	Property          Property `json:"property"`
	Latitude          *float64 `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude         *float64 `json:"longitude" validate:"required,min=-180,max=180"`
	DamageDescription string   `json:"damageDescription" validate:"max=2000"`
}

// Claim is the aggregate root. Its fields are only reachable through
// accessors; status moves only through Transition.
type Claim struct {
	id                string
	disasterID        string
	claimant          Claimant
	property          Property
	coordinates       Coordinates
	damageDescription string
	status            ClaimStatus
	submissionDate    time.Time
	lastUpdated       time.Time
	revision          int64
	evidences         evidenceList

	now func() time.Time
}

// ClaimView is a detached snapshot of a claim, used for persistence and API responses.
type ClaimView struct {
	ID                string
	DisasterID        string
	ClaimantName      string
	ClaimantEmail     string
	ClaimantPhone     string
	PropertyAddress   string
	PostalCode        string
	Latitude          float64
	Longitude         float64
	DamageDescription string
	Status            ClaimStatus
	SubmissionDate    time.Time
	LastUpdated       time.Time
	Revision          int64
	Evidences         []Evidence
}

// ClaimSummary is the list-view projection of a claim.
type ClaimSummary struct {
	ID             string
	DisasterID     string
	ClaimantName   string
	Status         ClaimStatus
	SubmissionDate time.Time
	LastUpdated    time.Time
	EvidenceCount  int
}

type options struct {
	now func() time.Time
	id  string
}

// Option customizes NewClaim and Restore.
type Option func(*options)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithID supplies a pre-generated claim id, e.g. one already checked against
// the store. It must have the shape claimid.Generate produces. Ignored by Restore.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

func buildOptions(opts []Option) options {
	o := options{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ValidateClaimInput returns a *ValidationError naming the first invalid field of in.
func ValidateClaimInput(in ClaimInput) error {
	return firstViolation(validate.Struct(in))
}

// NewClaim validates in and opens a claim in SUBMITTED status.
func NewClaim(in ClaimInput, opts ...Option) (*Claim, error) {
	if err := ValidateClaimInput(in); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	id := o.id
	if id == "" {
		id = claimid.Generate(in.DisasterID)
	} else if !claimid.Belongs(id, in.DisasterID) {
		return nil, &ValidationError{Field: "id", Reason: fmt.Sprintf("%q is not an id for disaster %s", id, in.DisasterID)}
	}

	now := o.now()
	return &Claim{
		id:                id,
		disasterID:        in.DisasterID,
		claimant:          in.Claimant,
		property:          in.Property,
		coordinates:       Coordinates{Latitude: *in.Latitude, Longitude: *in.Longitude},
		damageDescription: in.DamageDescription,
		status:            StatusSubmitted,
		submissionDate:    now,
		lastUpdated:       now,
		evidences:         evidenceList{},
		now:               o.now,
	}, nil
}

// Restore rebuilds a claim from a stored snapshot and re-checks the aggregate invariants.
func Restore(v ClaimView, opts ...Option) (*Claim, error) {
	switch {
	case v.ID == "":
		return nil, &ValidationError{Field: "id", Reason: "is required"}
	case v.DisasterID == "":
		return nil, &ValidationError{Field: "disasterId", Reason: "is required"}
	case !v.Status.IsValid():
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", v.Status)}
	case v.SubmissionDate.IsZero():
		return nil, &ValidationError{Field: "submissionDate", Reason: "is required"}
	case v.LastUpdated.Before(v.SubmissionDate):
		return nil, &ValidationError{Field: "lastUpdated", Reason: "precedes submissionDate"}
	}

	o := buildOptions(opts)
	c := &Claim{
		id:         v.ID,
		disasterID: v.DisasterID,
		claimant: Claimant{
			Name:  v.ClaimantName,
			Email: v.ClaimantEmail,
			Phone: v.ClaimantPhone,
		},
		property: Property{
			Address:    v.PropertyAddress,
			PostalCode: v.PostalCode,
		},
		coordinates:       Coordinates{Latitude: v.Latitude, Longitude: v.Longitude},
		damageDescription: v.DamageDescription,
		status:            v.Status,
		submissionDate:    v.SubmissionDate,
		lastUpdated:       v.LastUpdated,
		revision:          v.Revision,
		evidences:         make(evidenceList, 0, len(v.Evidences)),
		now:               o.now,
	}
	for _, e := range v.Evidences {
		if _, err := c.evidences.add(c.id, e); err != nil {
			return nil, fmt.Errorf("restore claim %s: %w", c.id, err)
		}
	}
	return c, nil
}

// ID returns the claim id.
func (c *Claim) ID() string { return c.id }

// DisasterID returns the disaster the claim was filed under.
func (c *Claim) DisasterID() string { return c.disasterID }

// Claimant returns the claimant's contact details.
func (c *Claim) Claimant() Claimant { return c.claimant }

// Property returns the damaged property.
func (c *Claim) Property() Property { return c.property }

// Coordinates returns the property's position.
func (c *Claim) Coordinates() Coordinates { return c.coordinates }

// DamageDescription returns the claimant's account of the damage.
func (c *Claim) DamageDescription() string { return c.damageDescription }

// Status returns the current lifecycle status.
func (c *Claim) Status() ClaimStatus { return c.status }

// SubmissionDate returns when the claim was opened.
func (c *Claim) SubmissionDate() time.Time { return c.submissionDate }

// LastUpdated returns when the claim last changed.
func (c *Claim) LastUpdated() time.Time { return c.lastUpdated }

// Revision counts the mutations applied to the claim since it was opened.
func (c *Claim) Revision() int64 { return c.revision }

// Evidences returns a copy of the evidence collection in insertion order.
func (c *Claim) Evidences() []Evidence { return c.evidences.clone() }

// Evidence looks up one evidence item by id.
func (c *Claim) Evidence(id string) (Evidence, bool) {
	i := c.evidences.indexOf(id)
	if i < 0 {
		return Evidence{}, false
	}
	return c.evidences[i], true
}

// View returns a detached snapshot of the claim.
func (c *Claim) View() ClaimView {
	return ClaimView{
		ID:                c.id,
		DisasterID:        c.disasterID,
		ClaimantName:      c.claimant.Name,
		ClaimantEmail:     c.claimant.Email,
		ClaimantPhone:     c.claimant.Phone,
		PropertyAddress:   c.property.Address,
		PostalCode:        c.property.PostalCode,
		Latitude:          c.coordinates.Latitude,
		Longitude:         c.coordinates.Longitude,
		DamageDescription: c.damageDescription,
		Status:            c.status,
		SubmissionDate:    c.submissionDate,
		LastUpdated:       c.lastUpdated,
		Revision:          c.revision,
		Evidences:         c.evidences.clone(),
	}
}

// Summary returns the list-view projection of the claim.
func (c *Claim) Summary() ClaimSummary {
	return ClaimSummary{
		ID:             c.id,
		DisasterID:     c.disasterID,
		ClaimantName:   c.claimant.Name,
		Status:         c.status,
		SubmissionDate: c.submissionDate,
		LastUpdated:    c.lastUpdated,
		EvidenceCount:  len(c.evidences),
	}
}

// UpdateStatus moves the claim to target through the lifecycle table.
func (c *Claim) UpdateStatus(target ClaimStatus) error {
	return Transition(c, target)
}

// AddEvidence creates an evidence item from in, attaches it to the claim and
// returns a copy of it.
func (c *Claim) AddEvidence(in EvidenceInput, opts ...EvidenceOption) (Evidence, error) {
	e, err := newEvidence(c.id, in, opts)
	if err != nil {
		return Evidence{}, err
	}
	e.AddedAt = c.nextTimestamp()
	added, err := c.evidences.add(c.id, e)
	if err != nil {
		return Evidence{}, err
	}
	c.touch()
	return added, nil
}

// RemoveEvidence detaches and destroys the evidence item with the given id.
// The returned copy is the last reference to it, for artifact clean-up.
func (c *Claim) RemoveEvidence(id string) (Evidence, error) {
	removed, err := c.evidences.remove(id)
	if err != nil {
		return Evidence{}, err
	}
	c.touch()
	return removed, nil
}

// RecordEvidenceUpload marks the artifact behind an evidence item as stored.
func (c *Claim) RecordEvidenceUpload(id string, sizeBytes int64, etag string) (Evidence, error) {
	i := c.evidences.indexOf(id)
	if i < 0 {
		return Evidence{}, fmt.Errorf("%w: %s", ErrEvidenceNotFound, id)
	}
	c.touch()
	e := &c.evidences[i]
	e.SizeBytes = sizeBytes
	e.ETag = etag
	e.UploadedAt = c.lastUpdated
	return *e, nil
}

// UseClock replaces the time source, e.g. on a claim loaded from the store.
// A nil clock is ignored.
func (c *Claim) UseClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// nextTimestamp is the clock reading clamped so lastUpdated never moves backwards.
func (c *Claim) nextTimestamp() time.Time {
	now := c.now()
	if now.Before(c.lastUpdated) {
		return c.lastUpdated
	}
	return now
}

func (c *Claim) touch() {
	c.lastUpdated = c.nextTimestamp()
	c.revision++
}

func firstViolation(vs []validate.Violation) error {
	if len(vs) == 0 {
		return nil
	}
	return &ValidationError{Field: vs[0].Field, Reason: vs[0].Message()}
}
