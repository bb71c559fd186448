// Package board implements the anonymous message board: posting with an
// hourly quota, registered display names, reporting with automatic hiding
// and author bans, and retention trimming. Authors are identified by the
// same derived device identity the suggestion limiter uses, so the board
// never stores raw tokens or addresses.
package board

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"outfitter/internal/models"
	"outfitter/internal/storage"
)

// DefaultUsername is shown for authors who never registered a name.
const DefaultUsername = "anonymous"

// hiddenPlaceholder replaces the content of posts hidden by reports.
const hiddenPlaceholder = "This post has been hidden due to reports."

// urlPatterns flag posts carrying URLs or bare domains; matching posts are
// shown with a suspicious marker so clients can warn before following them.
// The heuristic is deliberately aggressive: a dot-and-slash combination is
// enough, since spam routinely omits the scheme.
var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)https?://`),
	regexp.MustCompile(`(?i)www\.`),
	regexp.MustCompile(`(?i)\.[a-z]{2,}`),
}

// forbiddenNameChars rejects characters in display names that would need
// escaping or invite markup injection.
var forbiddenNameChars = regexp.MustCompile("[<>\"'`]")

func looksLikeLink(content string) bool {
	for _, p := range urlPatterns {
		if p.MatchString(content) {
			return true
		}
	}
	return strings.Contains(content, "/") && strings.Contains(content, ".")
}

// ServiceInterface defines the board operations consumed by the HTTP layer.
type ServiceInterface interface {
	// ListPosts returns every visible post from the caller's point of view
	ListPosts(ctx context.Context, deviceID string) ([]*models.PostView, error)

	// CreatePost validates, sanitizes and stores a new post
	CreatePost(ctx context.Context, deviceID string, req *models.CreatePostRequest) (*models.Post, error)

	// RegisterName stores the caller's display name
	RegisterName(ctx context.Context, deviceID, username string) (string, error)

	// GetName returns the caller's registered display name
	GetName(ctx context.Context, deviceID string) (string, error)

	// ReportPost records a report and applies moderation thresholds
	ReportPost(ctx context.Context, reporterID string, postID int64) (*models.Post, error)
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)

// Service implements the message board on top of a storage backend.
type Service struct {
	store storage.Storage
	cfg   models.BoardConfig
	now   func() time.Time
}

// NewService creates a board service backed by the given storage.
func NewService(store storage.Storage, cfg models.BoardConfig) *Service {
	return &Service{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// CreatePost runs the posting pipeline: ban check, hourly quota, validation,
// sanitization, then storage. Retention is applied after every accepted post
// so the board never exceeds its cap between sweeps.
func (s *Service) CreatePost(ctx context.Context, deviceID string, req *models.CreatePostRequest) (*models.Post, error) {
	now := s.now()

	until, err := s.store.GetBan(ctx, deviceID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to check ban: %w", err)
	}
	if err == nil && until.After(now) {
		return nil, &BannedError{Until: until}
	}

	windowStart := now.Add(-time.Hour)
	count, err := s.store.CountPostsSince(ctx, deviceID, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent posts: %w", err)
	}
	if count >= s.cfg.MaxPostsPerHour {
		retryAfter := 3600
		if oldest, err := s.store.OldestPostSince(ctx, deviceID, windowStart); err == nil {
			// The quota frees up when the oldest in-window post ages out.
			remaining := oldest.Add(time.Hour).Sub(now)
			retryAfter = int(math.Ceil(remaining.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
		}
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrContentEmpty
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxPostLength {
		return nil, ErrContentTooLong
	}

	username, err := s.store.GetUsername(ctx, deviceID)
	registered := err == nil
	if errors.Is(err, storage.ErrNotFound) {
		username = DefaultUsername
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up username: %w", err)
	}

	if req.ParentID != nil {
		if _, err := s.store.GetPost(ctx, *req.ParentID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrParentNotFound
			}
			return nil, fmt.Errorf("failed to check parent post: %w", err)
		}
		// Anonymous top-level posts are fine; joining a thread requires a name.
		if !registered {
			return nil, ErrNameRequired
		}
	}

	post := &models.Post{
		Content:    html.EscapeString(content),
		Username:   username,
		DeviceID:   deviceID,
		CreatedAt:  now,
		ParentID:   req.ParentID,
		Suspicious: looksLikeLink(content),
	}
	if err := s.store.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to store post: %w", err)
	}

	if removed, err := s.store.PrunePosts(ctx, now.Add(-s.cfg.Retention), s.cfg.MaxPosts); err != nil {
		slog.Warn("board retention sweep failed", "error", err)
	} else if removed > 0 {
		slog.Debug("board retention sweep removed posts", "count", removed)
	}

	return post, nil
}

// ListPosts returns the board from the caller's point of view. Hidden posts
// keep their slot but have their content veiled; the author still sees the
// original text. Expired posts are swept before listing.
func (s *Service) ListPosts(ctx context.Context, deviceID string) ([]*models.PostView, error) {
	now := s.now()
	if _, err := s.store.PrunePosts(ctx, now.Add(-s.cfg.Retention), s.cfg.MaxPosts); err != nil {
		slog.Warn("board retention sweep failed", "error", err)
	}

	posts, err := s.store.Posts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	views := make([]*models.PostView, 0, len(posts))
	for _, p := range posts {
		views = append(views, s.viewOf(p, deviceID))
	}
	return views, nil
}

func (s *Service) viewOf(p *models.Post, deviceID string) *models.PostView {
	view := &models.PostView{
		ID:          p.ID,
		Content:     p.Content,
		Username:    p.Username,
		CreatedAt:   p.CreatedAt,
		ParentID:    p.ParentID,
		Suspicious:  p.Suspicious,
		Hidden:      p.Hidden,
		ReportCount: p.ReportCount,
		IsOwn:       deviceID != "" && p.DeviceID == deviceID,
	}
	if p.Hidden {
		view.Content = hiddenPlaceholder
		view.ContentHidden = true
		if view.IsOwn {
			view.OriginalContent = p.Content
		}
	}
	return view
}

// RegisterName validates, sanitizes and stores the caller's display name.
// A device registers exactly once and names are unique across devices.
// The sanitized name is returned so clients render exactly what is stored.
func (s *Service) RegisterName(ctx context.Context, deviceID, username string) (string, error) {
	if _, err := s.store.GetUsername(ctx, deviceID); err == nil {
		return "", ErrNameAlreadySet
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("failed to look up username: %w", err)
	}

	name := strings.TrimSpace(username)
	if name == "" {
		return "", ErrUsernameEmpty
	}
	if utf8.RuneCountInString(name) > s.cfg.MaxUsernameLength {
		return "", ErrUsernameTooLong
	}
	if forbiddenNameChars.MatchString(name) {
		return "", ErrUsernameInvalid
	}

	name = html.EscapeString(name)

	taken, err := s.store.UsernameTaken(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to check username availability: %w", err)
	}
	if taken {
		return "", ErrUsernameTaken
	}

	if err := s.store.SaveUsername(ctx, deviceID, name); err != nil {
		return "", fmt.Errorf("failed to save username: %w", err)
	}
	return name, nil
}

// GetName returns the caller's registered display name, or the default when
// none was registered.
func (s *Service) GetName(ctx context.Context, deviceID string) (string, error) {
	name, err := s.store.GetUsername(ctx, deviceID)
	if errors.Is(err, storage.ErrNotFound) {
		return DefaultUsername, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up username: %w", err)
	}
	return name, nil
}

// ReportPost records one report against a post. When the distinct report
// count reaches the hide threshold, the post is hidden and its author is
// banned from posting. Authors cannot report their own posts.
func (s *Service) ReportPost(ctx context.Context, reporterID string, postID int64) (*models.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to load reported post: %w", err)
	}
	if post.DeviceID == reporterID {
		return nil, ErrSelfReport
	}

	count, err := s.store.AddReport(ctx, postID, reporterID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrPostNotFound
		case errors.Is(err, storage.ErrDuplicateReport):
			return nil, ErrAlreadyReported
		default:
			return nil, fmt.Errorf("failed to add report: %w", err)
		}
	}

	post.ReportCount = count
	if count >= s.cfg.HideThreshold && !post.Hidden {
		post.Hidden = true

		until := s.now().Add(s.cfg.BanDuration)
		if err := s.store.SaveBan(ctx, post.DeviceID, until); err != nil {
			return nil, fmt.Errorf("failed to ban author: %w", err)
		}
		slog.Info("post hidden after reports",
			"post_id", post.ID,
			"reports", count,
			"ban_until", until,
		)
	}

	if err := s.store.UpdatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to update reported post: %w", err)
	}
	return post, nil
}
