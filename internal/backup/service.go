package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"outfitter/internal/models"
	"outfitter/internal/storage"
)

// Service periodically snapshots board state into a repository file and can
// restore the last snapshot at startup.
type Service struct {
	client *Client
	store  storage.Storage
	path   string
}

// NewService creates a backup service. path is the repository path of the
// snapshot file, e.g. "board_data/board.json".
func NewService(client *Client, store storage.Storage, path string) *Service {
	return &Service{
		client: client,
		store:  store,
		path:   path,
	}
}

// Backup uploads the current board snapshot.
func (s *Service) Backup(ctx context.Context) error {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot board: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	message := fmt.Sprintf("Board backup %s", time.Now().UTC().Format(time.RFC3339))
	if err := s.client.PutFile(ctx, s.path, data, message); err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}
	return nil
}

// Restore loads the last uploaded snapshot into storage. A missing backup
// file is not an error; the board just starts empty.
func (s *Service) Restore(ctx context.Context) error {
	data, _, err := s.client.GetFile(ctx, s.path)
	if errors.Is(err, ErrFileNotFound) {
		slog.Info("no board backup found, starting empty", "path", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	var snap models.BoardSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	if err := s.store.Restore(ctx, &snap); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	slog.Info("board restored from backup", "posts", len(snap.Posts))
	return nil
}

// Run backs up the board on the given interval until the context is done.
// Failures are logged and retried on the next tick.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Backup(ctx); err != nil {
				slog.Error("board backup failed", "error", err)
			}
		}
	}
}
