package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"outfitter/internal/board"
	"outfitter/internal/models"
)

// ListPosts handles board listing requests
// GET /api/board/posts
func (h *Handlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	views, err := h.boardService.ListPosts(r.Context(), h.boardIdentity(r))
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{"posts": views})
}

// CreatePost handles posting requests
// POST /api/board/posts
func (h *Handlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	post, err := h.boardService.CreatePost(r.Context(), h.boardIdentity(r), &req)
	if err != nil {
		h.writeBoardError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, post)
}

// RegisterName handles display name registration
// POST /api/board/register_name
func (h *Handlers) RegisterName(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	name, err := h.boardService.RegisterName(r.Context(), h.boardIdentity(r), req.Username)
	if err != nil {
		h.writeBoardError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{"username": name})
}

// GetName handles display name lookups
// GET /api/board/my_name
func (h *Handlers) GetName(w http.ResponseWriter, r *http.Request) {
	name, err := h.boardService.GetName(r.Context(), h.boardIdentity(r))
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{"username": name})
}

// ReportPost handles report requests
// POST /api/board/report
func (h *Handlers) ReportPost(w http.ResponseWriter, r *http.Request) {
	var req models.ReportPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	post, err := h.boardService.ReportPost(r.Context(), h.boardIdentity(r), req.PostID)
	if err != nil {
		h.writeBoardError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"post_id":      post.ID,
		"report_count": post.ReportCount,
		"is_hidden":    post.Hidden,
	})
}

// writeBoardError maps board service errors onto HTTP statuses.
func (h *Handlers) writeBoardError(w http.ResponseWriter, err error) {
	var banErr *board.BannedError
	var rateErr *board.RateLimitedError

	switch {
	case errors.As(err, &banErr):
		h.writeErrorResponse(w, http.StatusForbidden, models.ErrorCodeBanned,
			"Posting is disabled for this device until "+banErr.Until.UTC().Format("2006-01-02 15:04:05 UTC"))

	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfter))
		h.writeJSONResponse(w, http.StatusTooManyRequests, models.RateLimitedResponse{
			Error:         models.ErrorCodeRateLimitExceeded,
			Message:       rateErr.Error(),
			RemainingTime: rateErr.RetryAfter,
		})

	case errors.Is(err, board.ErrPostNotFound), errors.Is(err, board.ErrParentNotFound):
		h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeNotFound, err.Error())

	case errors.Is(err, board.ErrAlreadyReported),
		errors.Is(err, board.ErrSelfReport),
		errors.Is(err, board.ErrNameAlreadySet),
		errors.Is(err, board.ErrUsernameTaken):
		h.writeErrorResponse(w, http.StatusConflict, models.ErrorCodeConflict, err.Error())

	case errors.Is(err, board.ErrContentEmpty),
		errors.Is(err, board.ErrContentTooLong),
		errors.Is(err, board.ErrUsernameEmpty),
		errors.Is(err, board.ErrUsernameTooLong),
		errors.Is(err, board.ErrUsernameInvalid),
		errors.Is(err, board.ErrNameRequired):
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())

	default:
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
	}
}
