package submission

import (
	"errors"
	"fmt"

	"spkr/pkg/models"
)

// ErrInvalidTransition is returned for any attempted status change the
// lifecycle does not allow, including races lost to a concurrent transition.
// It is always surfaced to the caller, never swallowed.
var ErrInvalidTransition = errors.New("invalid status transition")

var ErrNotFound = errors.New("submission not found")

// ValidationError rejects malformed intake before anything is persisted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Msg)
}

// transitions is the full submission lifecycle. published and rejected are
// terminal: no entry exists out of them.
var transitions = map[models.SubmissionStatus][]models.SubmissionStatus{
	models.StatusPendingReview: {models.StatusApproved, models.StatusRejected},
	models.StatusFlagged:       {models.StatusApproved, models.StatusRejected},
	models.StatusApproved:      {models.StatusPublishing},
	models.StatusPublishing:    {models.StatusPublished, models.StatusPublishFailed},
	models.StatusPublishFailed: {models.StatusPublishing},
}

func CanTransition(from, to models.SubmissionStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func IsTerminal(status models.SubmissionStatus) bool {
	return len(transitions[status]) == 0
}

// InitialStatus picks the first lifecycle state from a moderation verdict:
// a failing verdict always lands in flagged, never silently approved.
func InitialStatus(result *models.ModerationResult) models.SubmissionStatus {
	if result.Outcome == models.OutcomeFail {
		return models.StatusFlagged
	}
	return models.StatusPendingReview
}
