package board

import (
	"errors"
	"fmt"
	"time"
)

// Validation failures reported straight back to the client as 400s.
var (
	ErrContentEmpty    = errors.New("post content cannot be empty")
	ErrContentTooLong  = errors.New("post content exceeds the maximum length")
	ErrUsernameEmpty   = errors.New("username cannot be empty")
	ErrUsernameTooLong = errors.New("username exceeds the maximum length")
	ErrUsernameInvalid = errors.New("username contains forbidden characters")
	ErrNameRequired    = errors.New("a registered name is required to reply")
	ErrParentNotFound  = errors.New("parent post not found")
	ErrPostNotFound    = errors.New("post not found")
	ErrAlreadyReported = errors.New("post already reported from this device")
	ErrNameAlreadySet  = errors.New("a name is already registered for this device")
	ErrUsernameTaken   = errors.New("that name is already in use")
	ErrSelfReport      = errors.New("cannot report your own post")
)

// BannedError is returned when a banned device tries to post.
type BannedError struct {
	Until time.Time
}

func (e *BannedError) Error() string {
	return fmt.Sprintf("device is banned from posting until %s", e.Until.Format(time.RFC3339))
}

// RateLimitedError is returned when a device exceeds the hourly posting
// quota. RetryAfter is in whole seconds.
type RateLimitedError struct {
	RetryAfter int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("posting limit reached: retry after %ds", e.RetryAfter)
}
