package models

// claimStatusTransitions maps each status to the statuses it may move to.
// PAYMENT_COMPLETED has no way out; DENIED is left only by appeal.
var claimStatusTransitions = map[ClaimStatus][]ClaimStatus{
	StatusSubmitted: {
		StatusUnderReview,
	},
	StatusUnderReview: {
		StatusAssessmentScheduled,
	},
	StatusAssessmentScheduled: {
		StatusAssessmentCompleted,
	},
	StatusAssessmentCompleted: {
		StatusEligibilityVerified,
		StatusDenied,
	},
	StatusEligibilityVerified: {
		StatusPaymentProcessing,
		StatusDenied,
	},
	StatusPaymentProcessing: {
		StatusPaymentCompleted,
	},
	StatusPaymentCompleted: {},
	StatusDenied: {
		StatusAppealed,
	},
	StatusAppealed: {
		StatusUnderReview,
	},
}

// IsTransitionValid reports whether a claim in status from may move to status to.
// Staying in the same status is not a transition.
func IsTransitionValid(from, to ClaimStatus) bool {
	for _, target := range claimStatusTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable in one step from s.
func NextStatuses(s ClaimStatus) []ClaimStatus {
	targets := claimStatusTransitions[s]
	out := make([]ClaimStatus, len(targets))
	copy(out, targets)
	return out
}

// Transition moves c to the target status and stamps lastUpdated in one step.
// On an invalid target c is left untouched and an *InvalidTransitionError is returned.
func Transition(c *Claim, target ClaimStatus) error {
	if !IsTransitionValid(c.status, target) {
		return &InvalidTransitionError{From: c.status, To: target}
	}
	c.status = target
	c.touch()
	return nil
}
