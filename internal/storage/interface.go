package storage

import (
	"context"
	"time"

	"outfitter/internal/models"
)

// Storage defines the interface for message board persistence. It provides a
// clean abstraction that can be implemented by different backends such as an
// in-memory store, SQLite, or PostgreSQL.
type Storage interface {
	// CreatePost stores a new post and assigns its ID
	CreatePost(ctx context.Context, post *models.Post) error

	// Posts returns all posts ordered oldest first
	Posts(ctx context.Context) ([]*models.Post, error)

	// GetPost retrieves a post by its ID
	GetPost(ctx context.Context, id int64) (*models.Post, error)

	// UpdatePost rewrites a stored post's mutable moderation fields
	UpdatePost(ctx context.Context, post *models.Post) error

	// CountPostsSince counts posts by one author created at or after since
	CountPostsSince(ctx context.Context, deviceID string, since time.Time) (int, error)

	// OldestPostSince returns the creation time of the author's oldest post
	// at or after since. ErrNotFound when the author has none in range.
	OldestPostSince(ctx context.Context, deviceID string, since time.Time) (time.Time, error)

	// PrunePosts deletes posts older than cutoff, then trims the board to the
	// newest maxPosts. It returns how many posts were removed.
	PrunePosts(ctx context.Context, cutoff time.Time, maxPosts int) (int, error)

	// GetUsername returns the registered username for a device
	GetUsername(ctx context.Context, deviceID string) (string, error)

	// SaveUsername stores or replaces a device's username
	SaveUsername(ctx context.Context, deviceID, username string) error

	// UsernameTaken reports whether any device has registered the username
	UsernameTaken(ctx context.Context, username string) (bool, error)

	// AddReport records one reporter's report against a post and returns the
	// post's distinct report count. Repeat reports return ErrDuplicateReport.
	AddReport(ctx context.Context, postID int64, reporterID string) (int, error)

	// GetBan returns when a device's ban expires. ErrNotFound when unbanned.
	GetBan(ctx context.Context, deviceID string) (time.Time, error)

	// SaveBan stores or extends a device ban
	SaveBan(ctx context.Context, deviceID string, until time.Time) error

	// Snapshot returns a full copy of board state for backups
	Snapshot(ctx context.Context) (*models.BoardSnapshot, error)

	// Restore replaces board state with a snapshot, typically at startup
	Restore(ctx context.Context, snap *models.BoardSnapshot) error

	// Close closes the storage connection and cleans up resources
	Close() error
}
