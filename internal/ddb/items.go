package ddb

import (
	"fmt"
	"time"

	"github.com/kylejryan/disaster-relief-claims/internal/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	metaSK         = "META"
	evidencePrefix = "EVIDENCE#"
	itemTypeClaim  = "claim"
	itemTypeEvid   = "evidence"

	// sortableTime is fixed width so GSI1SK orders lexically by time.
	sortableTime = "2006-01-02T15:04:05.000000000Z"
)

// claimItem is the stored form of the claim root.
type claimItem struct {
	PK     string `dynamodbav:"PK"`     // CLAIM#<id>
	SK     string `dynamodbav:"SK"`     // META
	GSI1PK string `dynamodbav:"GSI1PK"` // DISASTER#<disasterId>
	GSI1SK string `dynamodbav:"GSI1SK"` // <submission_date>#<id>
	Type   string `dynamodbav:"type"`

	ClaimID           string  `dynamodbav:"claim_id"`
	DisasterID        string  `dynamodbav:"disaster_id"`
	ClaimantName      string  `dynamodbav:"claimant_name"`
	ClaimantEmail     string  `dynamodbav:"claimant_email"`
	ClaimantPhone     string  `dynamodbav:"claimant_phone"`
	PropertyAddress   string  `dynamodbav:"property_address"`
	PostalCode        string  `dynamodbav:"postal_code,omitempty"`
	Latitude          float64 `dynamodbav:"latitude"`
	Longitude         float64 `dynamodbav:"longitude"`
	DamageDescription string  `dynamodbav:"damage_description,omitempty"`
	Status            string  `dynamodbav:"status"`
	SubmissionDate    string  `dynamodbav:"submission_date"` // RFC3339Nano
	LastUpdated       string  `dynamodbav:"last_updated"`
	Revision          int64   `dynamodbav:"revision"`
	EvidenceCount     int     `dynamodbav:"evidence_count"`
}

// evidenceItem is the stored form of one evidence entry. Seq preserves the
// collection order.
type evidenceItem struct {
	PK   string `dynamodbav:"PK"` // CLAIM#<claimId>
	SK   string `dynamodbav:"SK"` // EVIDENCE#<evidenceId>
	Type string `dynamodbav:"type"`
	Seq  int    `dynamodbav:"seq"`

	EvidenceID  string `dynamodbav:"evidence_id"`
	ClaimID     string `dynamodbav:"claim_id"`
	Kind        string `dynamodbav:"kind"`
	Description string `dynamodbav:"description,omitempty"`
	Filename    string `dynamodbav:"filename"`
	ContentType string `dynamodbav:"content_type"`
	S3Key       string `dynamodbav:"s3_key"`
	SizeBytes   int64  `dynamodbav:"size_bytes"`
	ETag        string `dynamodbav:"etag,omitempty"`
	AddedAt     string `dynamodbav:"added_at"`
	UploadedAt  string `dynamodbav:"uploaded_at,omitempty"` // set once the artifact upload is confirmed
}

// MakeKeys constructs the partition key (PK) and sort key (SK) for a claim record.
func MakeKeys(claimID string) (pk, sk string) {
	return "CLAIM#" + claimID, metaSK
}

func evidenceSK(evidenceID string) string { return evidencePrefix + evidenceID }

func disasterPK(disasterID string) string { return "DISASTER#" + disasterID }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func marshalClaim(v models.ClaimView) (map[string]types.AttributeValue, []map[string]types.AttributeValue, error) {
	pk, sk := MakeKeys(v.ID)
	submitted := formatTime(v.SubmissionDate)
	claim, err := attributevalue.MarshalMap(claimItem{
		PK:                pk,
		SK:                sk,
		GSI1PK:            disasterPK(v.DisasterID),
		GSI1SK:            v.SubmissionDate.UTC().Format(sortableTime) + "#" + v.ID,
		Type:              itemTypeClaim,
		ClaimID:           v.ID,
		DisasterID:        v.DisasterID,
		ClaimantName:      v.ClaimantName,
		ClaimantEmail:     v.ClaimantEmail,
		ClaimantPhone:     v.ClaimantPhone,
		PropertyAddress:   v.PropertyAddress,
		PostalCode:        v.PostalCode,
		Latitude:          v.Latitude,
		Longitude:         v.Longitude,
		DamageDescription: v.DamageDescription,
		Status:            string(v.Status),
		SubmissionDate:    submitted,
		LastUpdated:       formatTime(v.LastUpdated),
		Revision:          v.Revision,
		EvidenceCount:     len(v.Evidences),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode claim %s: %w", v.ID, err)
	}

	evidence := make([]map[string]types.AttributeValue, 0, len(v.Evidences))
	for i, e := range v.Evidences {
		item, err := attributevalue.MarshalMap(evidenceItem{
			PK:          pk,
			SK:          evidenceSK(e.ID),
			Type:        itemTypeEvid,
			Seq:         i,
			EvidenceID:  e.ID,
			ClaimID:     e.ClaimID,
			Kind:        string(e.Kind),
			Description: e.Description,
			Filename:    e.Filename,
			ContentType: e.ContentType,
			S3Key:       e.S3Key,
			SizeBytes:   e.SizeBytes,
			ETag:        e.ETag,
			AddedAt:     formatTime(e.AddedAt),
			UploadedAt:  formatTime(e.UploadedAt),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("encode evidence %s: %w", e.ID, err)
		}
		evidence = append(evidence, item)
	}
	return claim, evidence, nil
}

func (it claimItem) view(evs []evidenceItem) (models.ClaimView, error) {
	submitted, err := parseTime(it.SubmissionDate)
	if err != nil {
		return models.ClaimView{}, err
	}
	updated, err := parseTime(it.LastUpdated)
	if err != nil {
		return models.ClaimView{}, err
	}
	v := models.ClaimView{
		ID:                it.ClaimID,
		DisasterID:        it.DisasterID,
		ClaimantName:      it.ClaimantName,
		ClaimantEmail:     it.ClaimantEmail,
		ClaimantPhone:     it.ClaimantPhone,
		PropertyAddress:   it.PropertyAddress,
		PostalCode:        it.PostalCode,
		Latitude:          it.Latitude,
		Longitude:         it.Longitude,
		DamageDescription: it.DamageDescription,
		Status:            models.ClaimStatus(it.Status),
		SubmissionDate:    submitted,
		LastUpdated:       updated,
		Revision:          it.Revision,
		Evidences:         make([]models.Evidence, 0, len(evs)),
	}
	for _, ev := range evs {
		e, err := ev.evidence()
		if err != nil {
			return models.ClaimView{}, err
		}
		v.Evidences = append(v.Evidences, e)
	}
	return v, nil
}

func (it claimItem) summary() (models.ClaimSummary, error) {
	submitted, err := parseTime(it.SubmissionDate)
	if err != nil {
		return models.ClaimSummary{}, err
	}
	updated, err := parseTime(it.LastUpdated)
	if err != nil {
		return models.ClaimSummary{}, err
	}
	return models.ClaimSummary{
		ID:             it.ClaimID,
		DisasterID:     it.DisasterID,
		ClaimantName:   it.ClaimantName,
		Status:         models.ClaimStatus(it.Status),
		SubmissionDate: submitted,
		LastUpdated:    updated,
		EvidenceCount:  it.EvidenceCount,
	}, nil
}

func (it evidenceItem) evidence() (models.Evidence, error) {
	added, err := parseTime(it.AddedAt)
	if err != nil {
		return models.Evidence{}, err
	}
	uploaded, err := parseTime(it.UploadedAt)
	if err != nil {
		return models.Evidence{}, err
	}
	return models.Evidence{
		ID:          it.EvidenceID,
		ClaimID:     it.ClaimID,
		Kind:        models.EvidenceKind(it.Kind),
		Description: it.Description,
		Filename:    it.Filename,
		ContentType: it.ContentType,
		S3Key:       it.S3Key,
		SizeBytes:   it.SizeBytes,
		ETag:        it.ETag,
		AddedAt:     added,
		UploadedAt:  uploaded,
	}, nil
}
