// Package models holds the disaster-relief claim aggregate, its evidence
// collection and the status lifecycle that governs it.
package models

// ClaimStatus is the workflow state of a claim.
type ClaimStatus string

// Possible values for ClaimStatus
const (
	StatusSubmitted           ClaimStatus = "SUBMITTED"
	StatusUnderReview         ClaimStatus = "UNDER_REVIEW"
	StatusAssessmentScheduled ClaimStatus = "ASSESSMENT_SCHEDULED"
	StatusAssessmentCompleted ClaimStatus = "ASSESSMENT_COMPLETED"
	StatusEligibilityVerified ClaimStatus = "ELIGIBILITY_VERIFIED"
	StatusPaymentProcessing   ClaimStatus = "PAYMENT_PROCESSING"
	StatusPaymentCompleted    ClaimStatus = "PAYMENT_COMPLETED"
	StatusDenied              ClaimStatus = "DENIED"
	StatusAppealed            ClaimStatus = "APPEALED"
)

// ValidClaimStatus is the closed set of statuses, in workflow order.
var ValidClaimStatus = []ClaimStatus{
	StatusSubmitted,
	StatusUnderReview,
	StatusAssessmentScheduled,
	StatusAssessmentCompleted,
	StatusEligibilityVerified,
	StatusPaymentProcessing,
	StatusPaymentCompleted,
	StatusDenied,
	StatusAppealed,
}

// IsValid reports whether s is one of the known statuses.
func (s ClaimStatus) IsValid() bool {
	_, ok := claimStatusTransitions[s]
	return ok
}

// IsTerminal reports whether the workflow considers s finished. DENIED is
// terminal even though an appeal can reopen it.
func (s ClaimStatus) IsTerminal() bool {
	return s == StatusPaymentCompleted || s == StatusDenied
}

func (s ClaimStatus) String() string { return string(s) }
