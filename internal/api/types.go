// Package api contains types for the API requests and responses.
package api

import (
	"time"

	"github.com/kylejryan/disaster-relief-claims/internal/models"
	"github.com/kylejryan/disaster-relief-claims/internal/s3io"
)

// CreateClaimRequest is the payload of POST /claims.
type CreateClaimRequest struct {
	DisasterID        string   `json:"disasterId"`
	ClaimantName      string   `json:"claimantName"`
	ClaimantEmail     string   `json:"claimantEmail"`
	ClaimantPhone     string   `json:"claimantPhone"`
	PropertyAddress   string   `json:"propertyAddress"`
	PostalCode        string   `json:"postalCode"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	DamageDescription string   `json:"damageDescription"`
}

// Input converts the request into the domain input.
func (r CreateClaimRequest) Input() models.ClaimInput {
	return models.ClaimInput{
		DisasterID: r.DisasterID,
		Claimant: models.Claimant{
			Name:  r.ClaimantName,
			Email: r.ClaimantEmail,
			Phone: r.ClaimantPhone,
		},
		Property: models.Property{
			Address:    r.PropertyAddress,
			PostalCode: r.PostalCode,
		},
		Latitude:          r.Latitude,
		Longitude:         r.Longitude,
		DamageDescription: r.DamageDescription,
	}
}

// TransitionRequest is the payload of POST /claims/{claimId}/status.
type TransitionRequest struct {
	Status models.ClaimStatus `json:"status"`
}

// AddEvidenceRequest is the payload of POST /claims/{claimId}/evidence.
type AddEvidenceRequest struct {
	Kind        models.EvidenceKind `json:"kind"`
	Description string              `json:"description"`
	Filename    string              `json:"filename"`
	ContentType string              `json:"contentType"`
}

// Input converts the request into the domain input.
func (r AddEvidenceRequest) Input() models.EvidenceInput {
	return models.EvidenceInput{
		Kind:        r.Kind,
		Description: r.Description,
		Filename:    r.Filename,
		ContentType: r.ContentType,
	}
}

// EvidenceResponse is the API representation of one evidence item.
type EvidenceResponse struct {
	ID          string              `json:"id"`
	ClaimID     string              `json:"claimId"`
	Kind        models.EvidenceKind `json:"kind"`
	Description string              `json:"description,omitempty"`
	Filename    string              `json:"filename"`
	ContentType string              `json:"contentType"`
	SizeBytes   int64               `json:"sizeBytes,omitempty"`
	AddedAt     time.Time           `json:"addedAt"`
	UploadedAt  *time.Time          `json:"uploadedAt,omitempty"`
}

// ClaimResponse is the API representation of a claim.
type ClaimResponse struct {
	ID                string               `json:"id"`
	DisasterID        string               `json:"disasterId"`
	ClaimantName      string               `json:"claimantName"`
	ClaimantEmail     string               `json:"claimantEmail"`
	ClaimantPhone     string               `json:"claimantPhone"`
	PropertyAddress   string               `json:"propertyAddress"`
	PostalCode        string               `json:"postalCode,omitempty"`
	Latitude          float64              `json:"latitude"`
	Longitude         float64              `json:"longitude"`
	DamageDescription string               `json:"damageDescription,omitempty"`
	Status            models.ClaimStatus   `json:"status"`
	NextStatuses      []models.ClaimStatus `json:"nextStatuses"`
	SubmissionDate    time.Time            `json:"submissionDate"`
	LastUpdated       time.Time            `json:"lastUpdated"`
	Evidences         []EvidenceResponse   `json:"evidences"`
}

// ClaimSummaryResponse is one row of GET /disasters/{disasterId}/claims.
type ClaimSummaryResponse struct {
	ID             string             `json:"id"`
	DisasterID     string             `json:"disasterId"`
	ClaimantName   string             `json:"claimantName"`
	Status         models.ClaimStatus `json:"status"`
	SubmissionDate time.Time          `json:"submissionDate"`
	LastUpdated    time.Time          `json:"lastUpdated"`
	EvidenceCount  int                `json:"evidenceCount"`
}

// AddEvidenceResponse returns the new evidence and where to upload its artifact.
type AddEvidenceResponse struct {
	Evidence      EvidenceResponse  `json:"evidence"`
	PresignedURL  string            `json:"presignedUrl"`
	ExpiresIn     int               `json:"expiresIn"`
	UploadHeaders map[string]string `json:"uploadHeaders"`
}

// NewEvidenceResponse converts a domain evidence item.
func NewEvidenceResponse(e models.Evidence) EvidenceResponse {
	r := EvidenceResponse{
		ID:          e.ID,
		ClaimID:     e.ClaimID,
		Kind:        e.Kind,
		Description: e.Description,
		Filename:    e.Filename,
		ContentType: e.ContentType,
		SizeBytes:   e.SizeBytes,
		AddedAt:     e.AddedAt,
	}
	if e.Uploaded() {
		at := e.UploadedAt
		r.UploadedAt = &at
	}
	return r
}

// NewClaimResponse converts a claim snapshot.
func NewClaimResponse(v models.ClaimView) ClaimResponse {
	evs := make([]EvidenceResponse, 0, len(v.Evidences))
	for _, e := range v.Evidences {
		evs = append(evs, NewEvidenceResponse(e))
	}
	return ClaimResponse{
		ID:                v.ID,
		DisasterID:        v.DisasterID,
		ClaimantName:      v.ClaimantName,
		ClaimantEmail:     v.ClaimantEmail,
		ClaimantPhone:     v.ClaimantPhone,
		PropertyAddress:   v.PropertyAddress,
		PostalCode:        v.PostalCode,
		Latitude:          v.Latitude,
		Longitude:         v.Longitude,
		DamageDescription: v.DamageDescription,
		Status:            v.Status,
		NextStatuses:      models.NextStatuses(v.Status),
		SubmissionDate:    v.SubmissionDate,
		LastUpdated:       v.LastUpdated,
		Evidences:         evs,
	}
}

// NewClaimSummaryResponses converts list results.
func NewClaimSummaryResponses(ss []models.ClaimSummary) []ClaimSummaryResponse {
	out := make([]ClaimSummaryResponse, 0, len(ss))
	for _, s := range ss {
		out = append(out, ClaimSummaryResponse{
			ID:             s.ID,
			DisasterID:     s.DisasterID,
			ClaimantName:   s.ClaimantName,
			Status:         s.Status,
			SubmissionDate: s.SubmissionDate,
			LastUpdated:    s.LastUpdated,
			EvidenceCount:  s.EvidenceCount,
		})
	}
	return out
}

// NewAddEvidenceResponse pairs an evidence item with its upload instructions.
func NewAddEvidenceResponse(e models.Evidence, up s3io.Upload) AddEvidenceResponse {
	return AddEvidenceResponse{
		Evidence:      NewEvidenceResponse(e),
		PresignedURL:  up.URL,
		ExpiresIn:     int(up.ExpiresIn.Seconds()),
		UploadHeaders: up.Headers,
	}
}
