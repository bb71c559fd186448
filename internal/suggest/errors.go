package suggest

import (
	"fmt"

	"outfitter/internal/models"
	"outfitter/internal/ratelimit"
)

// RateLimitedError is returned when the caller's cooldown or hourly quota
// denies the request. RetryAfter is in whole seconds.
type RateLimitedError struct {
	Reason     ratelimit.Reason
	RetryAfter int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (%s): retry after %ds", e.Reason, e.RetryAfter)
}

// Message renders the human-readable text for the 429 response body.
func (e *RateLimitedError) Message() string {
	switch e.Reason {
	case ratelimit.ReasonHourlyQuota:
		return fmt.Sprintf("Hourly request limit reached. Please try again in %s.", humanDuration(e.RetryAfter))
	default:
		return fmt.Sprintf("Please wait %s before requesting another suggestion.", humanDuration(e.RetryAfter))
	}
}

// AdmissionFullError is returned when the admission gate cannot take another
// caller, either because total capacity is reached or because a queued wait
// was abandoned. Status is the gate snapshot at rejection time.
type AdmissionFullError struct {
	Status models.QueueStatus
	Err    error
}

func (e *AdmissionFullError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("admission queue full: %v", e.Err)
	}
	return fmt.Sprintf("admission queue full: %d active, %d waiting", e.Status.Active, e.Status.Queue)
}

func (e *AdmissionFullError) Unwrap() error {
	return e.Err
}

// CollaboratorError is returned when the AI collaborator fails outright.
// Fallback carries the error-typed suggestion payload served to the client.
type CollaboratorError struct {
	Fallback *models.SuggestionResult
	Err      error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("AI collaborator failed: %v", e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// humanDuration formats a second count for user-facing messages.
func humanDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%d seconds", seconds)
	}
	minutes := (seconds + 59) / 60
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	return fmt.Sprintf("%d hours %d minutes", minutes/60, minutes%60)
}
