package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outfitter/internal/models"
)

// backends returns one instance of every backend that can run without
// external infrastructure. Postgres is exercised through the same contract
// in integration environments.
func backends(t *testing.T) map[string]Storage {
	t.Helper()

	sqlite, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sqlite,
	}
}

func newPost(device, content string, at time.Time) *models.Post {
	return &models.Post{
		Content:   content,
		Username:  "anon",
		DeviceID:  device,
		CreatedAt: at,
	}
}

func TestStorage_CreateAndGetPost(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			parent := newPost("dev-1", "first", now)
			require.NoError(t, store.CreatePost(ctx, parent))
			assert.NotZero(t, parent.ID)

			reply := newPost("dev-2", "a reply", now.Add(time.Second))
			reply.ParentID = &parent.ID
			require.NoError(t, store.CreatePost(ctx, reply))
			assert.Greater(t, reply.ID, parent.ID)

			got, err := store.GetPost(ctx, reply.ID)
			require.NoError(t, err)
			assert.Equal(t, "a reply", got.Content)
			assert.Equal(t, "dev-2", got.DeviceID)
			require.NotNil(t, got.ParentID)
			assert.Equal(t, parent.ID, *got.ParentID)
			assert.WithinDuration(t, reply.CreatedAt, got.CreatedAt, time.Microsecond)

			_, err = store.GetPost(ctx, 9999)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStorage_PostsOrderedOldestFirst(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now()

			require.NoError(t, store.CreatePost(ctx, newPost("dev-1", "second", base.Add(time.Minute))))
			require.NoError(t, store.CreatePost(ctx, newPost("dev-1", "first", base)))
			require.NoError(t, store.CreatePost(ctx, newPost("dev-1", "third", base.Add(2*time.Minute))))

			posts, err := store.Posts(ctx)
			require.NoError(t, err)
			require.Len(t, posts, 3)
			assert.Equal(t, "first", posts[0].Content)
			assert.Equal(t, "second", posts[1].Content)
			assert.Equal(t, "third", posts[2].Content)
		})
	}
}

func TestStorage_UpdatePost(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			post := newPost("dev-1", "original", time.Now())
			require.NoError(t, store.CreatePost(ctx, post))

			post.Hidden = true
			post.ReportCount = 3
			require.NoError(t, store.UpdatePost(ctx, post))

			got, err := store.GetPost(ctx, post.ID)
			require.NoError(t, err)
			assert.True(t, got.Hidden)
			assert.Equal(t, 3, got.ReportCount)

			missing := newPost("dev-1", "ghost", time.Now())
			missing.ID = 4242
			assert.ErrorIs(t, store.UpdatePost(ctx, missing), ErrNotFound)
		})
	}
}

func TestStorage_CountAndOldestSince(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now()

			require.NoError(t, store.CreatePost(ctx, newPost("dev-1", "old", base.Add(-2*time.Hour))))
			require.NoError(t, store.CreatePost(ctx, newPost("dev-1", "recent 1", base.Add(-30*time.Minute))))
			require.NoError(t, store.CreatePost(ctx, newPost("dev-1", "recent 2", base.Add(-10*time.Minute))))
			require.NoError(t, store.CreatePost(ctx, newPost("dev-2", "other author", base.Add(-5*time.Minute))))

			since := base.Add(-time.Hour)

			count, err := store.CountPostsSince(ctx, "dev-1", since)
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			oldest, err := store.OldestPostSince(ctx, "dev-1", since)
			require.NoError(t, err)
			assert.WithinDuration(t, base.Add(-30*time.Minute), oldest, time.Microsecond)

			_, err = store.OldestPostSince(ctx, "dev-3", since)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStorage_PrunePosts(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now()

			expired := newPost("dev-1", "expired", base.Add(-100*time.Hour))
			require.NoError(t, store.CreatePost(ctx, expired))
			for i := 0; i < 4; i++ {
				require.NoError(t, store.CreatePost(ctx,
					newPost("dev-1", "live", base.Add(time.Duration(i)*time.Minute))))
			}

			removed, err := store.PrunePosts(ctx, base.Add(-72*time.Hour), 3)
			require.NoError(t, err)
			assert.Equal(t, 2, removed, "one expired plus one over the cap")

			posts, err := store.Posts(ctx)
			require.NoError(t, err)
			assert.Len(t, posts, 3)
			for _, p := range posts {
				assert.Equal(t, "live", p.Content)
			}
		})
	}
}

func TestStorage_Usernames(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.GetUsername(ctx, "dev-1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.SaveUsername(ctx, "dev-1", "skywalker"))
			got, err := store.GetUsername(ctx, "dev-1")
			require.NoError(t, err)
			assert.Equal(t, "skywalker", got)

			require.NoError(t, store.SaveUsername(ctx, "dev-1", "renamed"))
			got, err = store.GetUsername(ctx, "dev-1")
			require.NoError(t, err)
			assert.Equal(t, "renamed", got)

			taken, err := store.UsernameTaken(ctx, "renamed")
			require.NoError(t, err)
			assert.True(t, taken)

			taken, err = store.UsernameTaken(ctx, "skywalker")
			require.NoError(t, err)
			assert.False(t, taken)
		})
	}
}

func TestStorage_Reports(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			post := newPost("author", "contested", time.Now())
			require.NoError(t, store.CreatePost(ctx, post))

			count, err := store.AddReport(ctx, post.ID, "reporter-1")
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			count, err = store.AddReport(ctx, post.ID, "reporter-2")
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			count, err = store.AddReport(ctx, post.ID, "reporter-1")
			assert.ErrorIs(t, err, ErrDuplicateReport)
			assert.Equal(t, 2, count, "duplicate reports never raise the count")

			_, err = store.AddReport(ctx, 9999, "reporter-1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStorage_Bans(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.GetBan(ctx, "dev-1")
			assert.ErrorIs(t, err, ErrNotFound)

			until := time.Now().Add(24 * time.Hour)
			require.NoError(t, store.SaveBan(ctx, "dev-1", until))

			got, err := store.GetBan(ctx, "dev-1")
			require.NoError(t, err)
			assert.WithinDuration(t, until, got, time.Microsecond)

			extended := until.Add(24 * time.Hour)
			require.NoError(t, store.SaveBan(ctx, "dev-1", extended))
			got, err = store.GetBan(ctx, "dev-1")
			require.NoError(t, err)
			assert.WithinDuration(t, extended, got, time.Microsecond)
		})
	}
}

func TestStorage_SnapshotRestoreRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			post := newPost("dev-1", "kept", now)
			require.NoError(t, store.CreatePost(ctx, post))
			require.NoError(t, store.SaveUsername(ctx, "dev-1", "archivist"))
			_, err := store.AddReport(ctx, post.ID, "reporter-1")
			require.NoError(t, err)
			require.NoError(t, store.SaveBan(ctx, "dev-bad", now.Add(time.Hour)))

			snap, err := store.Snapshot(ctx)
			require.NoError(t, err)
			require.Len(t, snap.Posts, 1)
			assert.Equal(t, map[string]string{"dev-1": "archivist"}, snap.Users)
			assert.Equal(t, []string{"reporter-1"}, snap.Reports[post.ID])
			assert.Len(t, snap.Bans, 1)

			// Restore into a fresh backend of the same kind and compare.
			var fresh Storage
			switch name {
			case "memory":
				fresh = NewMemoryStorage()
			case "sqlite":
				s, err := NewSQLiteStorage(":memory:")
				require.NoError(t, err)
				t.Cleanup(func() { s.Close() })
				fresh = s
			}
			require.NoError(t, fresh.Restore(ctx, snap))

			restored, err := fresh.Snapshot(ctx)
			require.NoError(t, err)
			require.Len(t, restored.Posts, 1)
			assert.Equal(t, post.ID, restored.Posts[0].ID)
			assert.Equal(t, "kept", restored.Posts[0].Content)
			assert.Equal(t, snap.Users, restored.Users)
			assert.Equal(t, snap.Reports, restored.Reports)

			// New posts after a restore continue past the restored IDs.
			next := newPost("dev-1", "after restore", now.Add(time.Minute))
			require.NoError(t, fresh.CreatePost(ctx, next))
			assert.Greater(t, next.ID, post.ID)
		})
	}
}

func TestFactory(t *testing.T) {
	f := NewFactory()
	ctx := context.Background()

	mem, err := f.Create(ctx, models.StorageConfig{Type: models.StorageTypeMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, mem)

	sqlite, err := f.Create(ctx, models.StorageConfig{
		Type:     models.StorageTypeSQLite,
		Database: models.DatabaseConfig{DSN: ":memory:"},
	})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStorage{}, sqlite)
	sqlite.Close()

	_, err = f.Create(ctx, models.StorageConfig{Type: "cassandra"})
	assert.Error(t, err)

	assert.Contains(t, f.SupportedBackends(), models.StorageTypePostgres)
}
