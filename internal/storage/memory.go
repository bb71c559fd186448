package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"outfitter/internal/models"
)

// MemoryStorage implements the Storage interface with in-memory maps. It is
// the default backend for development and the reference implementation the
// database backends are tested against. All returned posts are copies, so
// callers can never mutate stored state through a read.
type MemoryStorage struct {
	mu      sync.RWMutex
	posts   map[int64]*models.Post
	users   map[string]string
	reports map[int64]map[string]struct{}
	bans    map[string]time.Time
	nextID  int64
}

// NewMemoryStorage creates an empty in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		posts:   make(map[int64]*models.Post),
		users:   make(map[string]string),
		reports: make(map[int64]map[string]struct{}),
		bans:    make(map[string]time.Time),
		nextID:  1,
	}
}

func (ms *MemoryStorage) CreatePost(ctx context.Context, post *models.Post) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	post.ID = ms.nextID
	ms.nextID++

	stored := *post
	ms.posts[stored.ID] = &stored
	return nil
}

func (ms *MemoryStorage) Posts(ctx context.Context) ([]*models.Post, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	posts := make([]*models.Post, 0, len(ms.posts))
	for _, p := range ms.posts {
		cp := *p
		posts = append(posts, &cp)
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID < posts[j].ID
		}
		return posts[i].CreatedAt.Before(posts[j].CreatedAt)
	})
	return posts, nil
}

func (ms *MemoryStorage) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	p, ok := ms.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (ms *MemoryStorage) UpdatePost(ctx context.Context, post *models.Post) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.posts[post.ID]; !ok {
		return ErrNotFound
	}
	cp := *post
	ms.posts[post.ID] = &cp
	return nil
}

func (ms *MemoryStorage) CountPostsSince(ctx context.Context, deviceID string, since time.Time) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	count := 0
	for _, p := range ms.posts {
		if p.DeviceID == deviceID && !p.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (ms *MemoryStorage) OldestPostSince(ctx context.Context, deviceID string, since time.Time) (time.Time, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var oldest time.Time
	for _, p := range ms.posts {
		if p.DeviceID != deviceID || p.CreatedAt.Before(since) {
			continue
		}
		if oldest.IsZero() || p.CreatedAt.Before(oldest) {
			oldest = p.CreatedAt
		}
	}
	if oldest.IsZero() {
		return time.Time{}, ErrNotFound
	}
	return oldest, nil
}

func (ms *MemoryStorage) PrunePosts(ctx context.Context, cutoff time.Time, maxPosts int) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	removed := 0
	for id, p := range ms.posts {
		if p.CreatedAt.Before(cutoff) {
			delete(ms.posts, id)
			delete(ms.reports, id)
			removed++
		}
	}

	if maxPosts > 0 && len(ms.posts) > maxPosts {
		ids := make([]int64, 0, len(ms.posts))
		for id := range ms.posts {
			ids = append(ids, id)
		}
		// Newest posts have the highest IDs; drop from the low end.
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids[:len(ids)-maxPosts] {
			delete(ms.posts, id)
			delete(ms.reports, id)
			removed++
		}
	}

	return removed, nil
}

func (ms *MemoryStorage) GetUsername(ctx context.Context, deviceID string) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	name, ok := ms.users[deviceID]
	if !ok {
		return "", ErrNotFound
	}
	return name, nil
}

func (ms *MemoryStorage) SaveUsername(ctx context.Context, deviceID, username string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.users[deviceID] = username
	return nil
}

func (ms *MemoryStorage) UsernameTaken(ctx context.Context, username string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, name := range ms.users {
		if name == username {
			return true, nil
		}
	}
	return false, nil
}

func (ms *MemoryStorage) AddReport(ctx context.Context, postID int64, reporterID string) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.posts[postID]; !ok {
		return 0, ErrNotFound
	}

	reporters, ok := ms.reports[postID]
	if !ok {
		reporters = make(map[string]struct{})
		ms.reports[postID] = reporters
	}
	if _, dup := reporters[reporterID]; dup {
		return len(reporters), ErrDuplicateReport
	}
	reporters[reporterID] = struct{}{}
	return len(reporters), nil
}

func (ms *MemoryStorage) GetBan(ctx context.Context, deviceID string) (time.Time, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	until, ok := ms.bans[deviceID]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return until, nil
}

func (ms *MemoryStorage) SaveBan(ctx context.Context, deviceID string, until time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.bans[deviceID] = until
	return nil
}

func (ms *MemoryStorage) Snapshot(ctx context.Context) (*models.BoardSnapshot, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	snap := &models.BoardSnapshot{
		Posts:   make([]*models.Post, 0, len(ms.posts)),
		Users:   make(map[string]string, len(ms.users)),
		Reports: make(map[int64][]string, len(ms.reports)),
		Bans:    make(map[string]time.Time, len(ms.bans)),
	}

	for _, p := range ms.posts {
		cp := *p
		snap.Posts = append(snap.Posts, &cp)
	}
	sort.Slice(snap.Posts, func(i, j int) bool { return snap.Posts[i].ID < snap.Posts[j].ID })

	for device, name := range ms.users {
		snap.Users[device] = name
	}
	for postID, reporters := range ms.reports {
		list := make([]string, 0, len(reporters))
		for r := range reporters {
			list = append(list, r)
		}
		sort.Strings(list)
		snap.Reports[postID] = list
	}
	for device, until := range ms.bans {
		snap.Bans[device] = until
	}

	return snap, nil
}

func (ms *MemoryStorage) Restore(ctx context.Context, snap *models.BoardSnapshot) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.posts = make(map[int64]*models.Post, len(snap.Posts))
	ms.users = make(map[string]string, len(snap.Users))
	ms.reports = make(map[int64]map[string]struct{}, len(snap.Reports))
	ms.bans = make(map[string]time.Time, len(snap.Bans))
	ms.nextID = 1

	for _, p := range snap.Posts {
		cp := *p
		ms.posts[cp.ID] = &cp
		if cp.ID >= ms.nextID {
			ms.nextID = cp.ID + 1
		}
	}
	for device, name := range snap.Users {
		ms.users[device] = name
	}
	for postID, reporters := range snap.Reports {
		set := make(map[string]struct{}, len(reporters))
		for _, r := range reporters {
			set[r] = struct{}{}
		}
		ms.reports[postID] = set
	}
	for device, until := range snap.Bans {
		ms.bans[device] = until
	}

	return nil
}

// Close is a no-op for in-memory storage.
func (ms *MemoryStorage) Close() error {
	return nil
}
