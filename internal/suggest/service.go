// Package suggest orchestrates the AI suggestion pipeline: identity
// resolution, admission control, rate checking, the AI call itself, and the
// outcome-dependent bookkeeping afterwards. The ordering is load-bearing:
// the capacity probe and rate check both run before a slot is taken, so a
// rejected request never mutates admission state, and the slot release is
// deferred the moment the slot exists, so no exit path can leak it.
package suggest

import (
	"context"
	"log/slog"
	"time"

	"outfitter/internal/identity"
	"outfitter/internal/models"
	"outfitter/internal/ratelimit"
)

// Collaborator is the external AI service that turns a weather snapshot and
// options into an outfit suggestion. It is opaque, possibly slow, and
// possibly failing; the orchestrator only inspects the result's type
// discriminator.
type Collaborator interface {
	SuggestOutfit(ctx context.Context, weather map[string]any, opts models.SuggestOptions) (*models.SuggestionResult, error)
}

// ServiceInterface defines the suggestion service operations consumed by the
// HTTP layer.
type ServiceInterface interface {
	// Suggest runs the full admission pipeline and the AI call.
	Suggest(ctx context.Context, meta identity.Metadata, req *models.SuggestRequest) (*models.SuggestionResult, error)

	// Stats returns the caller's rate-limit view.
	Stats(meta identity.Metadata) (models.RateLimitStats, error)

	// QueueStatus returns the admission gate snapshot.
	QueueStatus() models.QueueStatus
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)

// Service sequences one suggestion request through the admission layer.
type Service struct {
	resolver    *identity.Resolver
	cooldown    *ratelimit.CooldownLimiter
	gate        *ratelimit.Gate
	ai          Collaborator
	waitTimeout time.Duration
}

// NewService creates a suggestion service. waitTimeout bounds how long a
// queued caller waits for a slot; zero means the wait is bounded only by the
// request context.
func NewService(resolver *identity.Resolver, cooldown *ratelimit.CooldownLimiter, gate *ratelimit.Gate, ai Collaborator, waitTimeout time.Duration) *Service {
	return &Service{
		resolver:    resolver,
		cooldown:    cooldown,
		gate:        gate,
		ai:          ai,
		waitTimeout: waitTimeout,
	}
}

// Suggest runs the pipeline: resolve identity, probe capacity, check the
// cooldown limiter, take (or wait for) a slot, call the collaborator with no
// lock held, then release the slot and record the outcome.
func (s *Service) Suggest(ctx context.Context, meta identity.Metadata, req *models.SuggestRequest) (*models.SuggestionResult, error) {
	key, err := s.resolver.Resolve(meta)
	if err != nil {
		return nil, err
	}

	ok, status := s.gate.CanAccept()
	if !ok {
		return nil, &AdmissionFullError{Status: status}
	}

	decision := s.cooldown.Check(key)
	if !decision.Allowed {
		return nil, &RateLimitedError{Reason: decision.Reason, RetryAfter: decision.RetryAfter}
	}

	immediate, position := s.gate.Acquire()
	if !immediate {
		slog.Info("suggestion request queued", "position", position)

		waitCtx := ctx
		if s.waitTimeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, s.waitTimeout)
			defer cancel()
		}

		if err := s.gate.WaitForSlot(waitCtx); err != nil {
			// The wait was abandoned before a slot was taken, so there is
			// nothing to release and no completed call to record.
			return nil, &AdmissionFullError{Status: s.gate.Status(), Err: err}
		}
	}
	defer s.gate.Release()

	result, err := s.ai.SuggestOutfit(ctx, req.WeatherData, req.Options())

	success := err == nil && result != nil && !result.IsError()
	s.cooldown.Record(key, success)

	if err != nil {
		return nil, &CollaboratorError{
			Fallback: models.NewErrorSuggestion("Suggestions are temporarily unavailable. Please dress for the weather and try again later."),
			Err:      err,
		}
	}

	return result, nil
}

// Stats resolves the caller and returns their rate-limit view. The read
// triggers the same lazy history eviction as a check.
func (s *Service) Stats(meta identity.Metadata) (models.RateLimitStats, error) {
	key, err := s.resolver.Resolve(meta)
	if err != nil {
		return models.RateLimitStats{}, err
	}

	cs := s.cooldown.Stats(key)
	return models.RateLimitStats{
		RequestsInLastHour:  cs.CountInWindow,
		NextWaitTimeSeconds: cs.NextWaitSeconds,
		MaxRequestsPerHour:  cs.MaxPerWindow,
	}, nil
}

// QueueStatus returns the admission gate snapshot for client-side polling.
func (s *Service) QueueStatus() models.QueueStatus {
	return s.gate.Status()
}
