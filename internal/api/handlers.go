// Package api exposes the HTTP surface: the AI suggestion endpoint with its
// admission-control error taxonomy, the rate-limit introspection endpoints,
// the message board, and health checks.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"outfitter/internal/board"
	"outfitter/internal/identity"
	"outfitter/internal/models"
	"outfitter/internal/suggest"
)

// Handlers contains HTTP handlers for the outfitter API
type Handlers struct {
	suggestService suggest.ServiceInterface
	boardService   board.ServiceInterface
	resolver       *identity.Resolver
	version        string
}

// NewHandlers creates a new handlers instance
func NewHandlers(suggestService suggest.ServiceInterface, boardService board.ServiceInterface, resolver *identity.Resolver, version string) *Handlers {
	return &Handlers{
		suggestService: suggestService,
		boardService:   boardService,
		resolver:       resolver,
		version:        version,
	}
}

// SuggestOutfit handles outfit suggestion requests
// POST /api/suggest_outfit
//
// The response status encodes the admission outcome: 200 with a suggestion,
// 400 for client errors, 429 when rate limited, 503 when the queue is full,
// 500 with a fallback suggestion when the AI collaborator fails.
func (h *Handlers) SuggestOutfit(w http.ResponseWriter, r *http.Request) {
	var req models.SuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	meta := identity.FromRequest(r, deviceID(r, req.DeviceID))

	result, err := h.suggestService.Suggest(r.Context(), meta, &req)
	if err != nil {
		h.writeSuggestError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, result)
}

// writeSuggestError maps pipeline errors onto the response taxonomy.
func (h *Handlers) writeSuggestError(w http.ResponseWriter, err error) {
	var rateErr *suggest.RateLimitedError
	var fullErr *suggest.AdmissionFullError
	var collabErr *suggest.CollaboratorError

	switch {
	case errors.Is(err, identity.ErrMissing):
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeIdentityMissing, "A device ID is required")

	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfter))
		h.writeJSONResponse(w, http.StatusTooManyRequests, models.RateLimitedResponse{
			Error:         models.ErrorCodeRateLimitExceeded,
			Message:       rateErr.Message(),
			RemainingTime: rateErr.RetryAfter,
		})

	case errors.As(err, &fullErr):
		h.writeJSONResponse(w, http.StatusServiceUnavailable, models.QueueFullResponse{
			Error:   models.ErrorCodeQueueFull,
			Message: "The suggestion service is at capacity. Please try again shortly.",
			Status:  fullErr.Status,
		})

	case errors.As(err, &collabErr):
		// The client still gets something wearable.
		h.writeJSONResponse(w, http.StatusInternalServerError, collabErr.Fallback)

	default:
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
	}
}

// RateLimitStats handles rate limit introspection requests
// GET|POST /api/rate_limit_stats
//
// POST exists for clients that can only attach their device ID in a body.
func (h *Handlers) RateLimitStats(w http.ResponseWriter, r *http.Request) {
	device := ""
	if r.Method == http.MethodPost {
		var body struct {
			DeviceID string `json:"device_id"`
		}
		// An empty or malformed body just means no device ID.
		_ = json.NewDecoder(r.Body).Decode(&body)
		device = body.DeviceID
	}

	meta := identity.FromRequest(r, deviceID(r, device))

	stats, err := h.suggestService.Stats(meta)
	if err != nil {
		if errors.Is(err, identity.ErrMissing) {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeIdentityMissing, "A device ID is required")
			return
		}
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, stats)
}

// QueueStatus handles admission gate polling requests
// GET /api/ai_queue_status
func (h *Handlers) QueueStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.suggestService.QueueStatus())
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version

	response.AddComponent("api", models.StatusHealthy, "API is operational")

	status := h.suggestService.QueueStatus()
	response.AddComponent("suggest", models.StatusHealthy,
		fmt.Sprintf("%d active, %d queued", status.Active, status.Queue))

	h.writeJSONResponse(w, http.StatusOK, response)
}

// deviceID picks the client's device token: the header wins, the body or
// query value is the fallback.
func deviceID(r *http.Request, fromBody string) string {
	if header := strings.TrimSpace(r.Header.Get("X-Device-ID")); header != "" {
		return header
	}
	if fromBody != "" {
		return fromBody
	}
	return r.URL.Query().Get("device_id")
}

// boardIdentity derives the board author key: the hashed device token when
// one is present, otherwise the address+user-agent fingerprint.
func (h *Handlers) boardIdentity(r *http.Request) string {
	meta := identity.FromRequest(r, deviceID(r, ""))
	if meta.DeviceID != "" {
		if key, err := h.resolver.Resolve(meta); err == nil {
			return key
		}
	}
	return identity.Fingerprint(meta)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing more to send.
		fmt.Printf("Error encoding JSON response: %v\n", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(message, errorCode))
}
