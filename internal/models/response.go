// Package models - API response types and error handling.
// This file defines all outgoing API response structures with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Machine-readable error codes for programmatic handling
// - The suggestion payload shape mirrors the AI collaborator's contract:
//   {type: "success"|"error", suggestions: {...}} with a human-readable
//   fallback suggestion on the error path
package models

import (
	"time"
)

// Result type discriminators for SuggestionResult.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// SuggestionResult is the AI collaborator's output, forwarded verbatim to the
// client. On success Suggestions holds the structured outfit object; on error
// it holds {"suggestion": <fallback text>}.
type SuggestionResult struct {
	Type        string         `json:"type"`
	Suggestions map[string]any `json:"suggestions"`
}

// IsError reports whether the collaborator returned its error shape.
func (r *SuggestionResult) IsError() bool {
	return r.Type == ResultError
}

// NewErrorSuggestion builds the collaborator's fallback payload.
func NewErrorSuggestion(text string) *SuggestionResult {
	return &SuggestionResult{
		Type:        ResultError,
		Suggestions: map[string]any{"suggestion": text},
	}
}

// RateLimitedResponse is the 429 body for a denied suggestion request.
type RateLimitedResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	RemainingTime int    `json:"remaining_time"`
}

// QueueStatus is a read-only snapshot of the admission gate, served on
// /api/ai_queue_status for client-side polling.
type QueueStatus struct {
	Active int `json:"active"`
	Queue  int `json:"queue"`
	Total  int `json:"total"`
}

// QueueFullResponse is the 503 body when the admission gate is at capacity.
type QueueFullResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Status  QueueStatus `json:"status"`
}

// RateLimitStats is the per-identity view served on /api/rate_limit_stats.
type RateLimitStats struct {
	RequestsInLastHour  int `json:"requests_in_last_hour"`
	NextWaitTimeSeconds int `json:"next_wait_time_seconds"`
	MaxRequestsPerHour  int `json:"max_requests_per_hour"`
}

// Error code constants for machine-readable error handling
const (
	ErrorCodeBadRequest        = "BAD_REQUEST"
	ErrorCodeInvalidRequest    = "INVALID_REQUEST"
	ErrorCodeIdentityMissing   = "IDENTITY_MISSING"
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
	ErrorCodeQueueFull         = "queue_full"
	ErrorCodeBanned            = "BANNED"
	ErrorCodeNotFound          = "NOT_FOUND"
	ErrorCodeConflict          = "CONFLICT"
	ErrorCodeInternalError     = "INTERNAL_ERROR"
)

// ErrorResponse provides structured error information for non-suggestion
// endpoints (the suggestion endpoint has its own 429/503/500 shapes above).
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorResponse creates an error response with the current timestamp.
func NewErrorResponse(message, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	}
}

// Health status constants
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// ComponentHealth describes the health of a single subsystem.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthCheckResponse is the body of GET /health.
type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// NewHealthCheckResponse creates a health check response with the given status.
func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// AddComponent records the health of a named subsystem.
func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	if h.Components == nil {
		h.Components = make(map[string]ComponentHealth)
	}
	h.Components[name] = ComponentHealth{Status: status, Message: message}
}
