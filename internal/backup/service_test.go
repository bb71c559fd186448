package backup

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outfitter/internal/models"
	"outfitter/internal/storage"
)

// fakeGitHub implements just enough of the contents API for the client.
type fakeGitHub struct {
	mu       sync.Mutex
	files    map[string][]byte // path -> raw content
	shas     map[string]string
	puts     int
	conflict bool // force one 409 on the next PUT
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		files: make(map[string][]byte),
		shas:  make(map[string]string),
	}
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		path := r.URL.Path[len("/repos/owner/repo/contents/"):]

		switch r.Method {
		case http.MethodGet:
			content, ok := f.files[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{
				"sha":     f.shas[path],
				"content": base64.StdEncoding.EncodeToString(content),
			})
		case http.MethodPut:
			f.puts++
			if f.conflict {
				f.conflict = false
				w.WriteHeader(http.StatusConflict)
				return
			}
			var req struct {
				Message string `json:"message"`
				Content string `json:"content"`
				SHA     string `json:"sha"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if existing, ok := f.shas[path]; ok && req.SHA != existing {
				w.WriteHeader(http.StatusConflict)
				return
			}
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			require.NoError(t, err)
			f.files[path] = decoded
			f.shas[path] = "sha-" + time.Now().Format("150405.000000000")
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newTestService(t *testing.T) (*Service, *fakeGitHub, storage.Storage) {
	t.Helper()

	gh := newFakeGitHub()
	server := httptest.NewServer(gh.handler(t))
	t.Cleanup(server.Close)

	client := NewClient("test-token", "owner/repo", "main")
	client.baseURL = server.URL

	store := storage.NewMemoryStorage()
	return NewService(client, store, "board_data/board.json"), gh, store
}

func TestBackupAndRestore(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	post := &models.Post{
		Content:   "remember me",
		Username:  "anon",
		DeviceID:  "dev-1",
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.CreatePost(ctx, post))
	require.NoError(t, store.SaveUsername(ctx, "dev-1", "anon"))

	require.NoError(t, svc.Backup(ctx))

	// Wipe and restore into a fresh store behind the same service.
	fresh := storage.NewMemoryStorage()
	svc.store = fresh
	require.NoError(t, svc.Restore(ctx))

	posts, err := fresh.Posts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "remember me", posts[0].Content)

	name, err := fresh.GetUsername(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "anon", name)
}

func TestBackup_RetriesOnConflict(t *testing.T) {
	svc, gh, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.CreatePost(ctx, &models.Post{
		Content: "contended", Username: "anon", DeviceID: "dev-1", CreatedAt: time.Now(),
	}))

	gh.conflict = true
	require.NoError(t, svc.Backup(ctx))
	assert.Equal(t, 2, gh.puts, "conflicted PUT is retried once")
}

func TestBackup_OverwritesExisting(t *testing.T) {
	svc, gh, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.CreatePost(ctx, &models.Post{
		Content: "v1", Username: "anon", DeviceID: "dev-1", CreatedAt: time.Now(),
	}))
	require.NoError(t, svc.Backup(ctx))

	require.NoError(t, store.CreatePost(ctx, &models.Post{
		Content: "v2", Username: "anon", DeviceID: "dev-1", CreatedAt: time.Now(),
	}))
	require.NoError(t, svc.Backup(ctx))

	var snap models.BoardSnapshot
	require.NoError(t, json.Unmarshal(gh.files["board_data/board.json"], &snap))
	assert.Len(t, snap.Posts, 2)
}

func TestRestore_MissingBackupIsNotAnError(t *testing.T) {
	svc, _, store := newTestService(t)

	require.NoError(t, svc.Restore(context.Background()))

	posts, err := store.Posts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, posts)
}
