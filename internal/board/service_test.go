package board

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outfitter/internal/models"
	"outfitter/internal/storage"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testConfig() models.BoardConfig {
	return models.BoardConfig{
		MaxPostsPerHour:   10,
		MaxPostLength:     300,
		MaxUsernameLength: 20,
		MaxPosts:          100,
		Retention:         72 * time.Hour,
		BanDuration:       24 * time.Hour,
		HideThreshold:     3,
	}
}

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(storage.NewMemoryStorage(), testConfig())
	svc.now = clock.now
	return svc, clock
}

func TestCreatePost_Basic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, "dev-1", &models.CreatePostRequest{Content: "  hello board  "})
	require.NoError(t, err)
	assert.Equal(t, "hello board", post.Content)
	assert.Equal(t, DefaultUsername, post.Username)
	assert.False(t, post.Suspicious)

	views, err := svc.ListPosts(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].IsOwn)

	views, err = svc.ListPosts(ctx, "dev-2")
	require.NoError(t, err)
	assert.False(t, views[0].IsOwn)
}

func TestCreatePost_SanitizesHTML(t *testing.T) {
	svc, _ := newTestService(t)

	post, err := svc.CreatePost(context.Background(), "dev-1",
		&models.CreatePostRequest{Content: `<script>alert("x")</script>`})
	require.NoError(t, err)
	assert.NotContains(t, post.Content, "<script>")
	assert.Contains(t, post.Content, "&lt;script&gt;")
}

func TestCreatePost_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePost(ctx, "dev-1", &models.CreatePostRequest{Content: "   "})
	assert.ErrorIs(t, err, ErrContentEmpty)

	long := make([]rune, 301)
	for i := range long {
		long[i] = 'x'
	}
	_, err = svc.CreatePost(ctx, "dev-1", &models.CreatePostRequest{Content: string(long)})
	assert.ErrorIs(t, err, ErrContentTooLong)

	// Exactly at the limit is fine.
	_, err = svc.CreatePost(ctx, "dev-1", &models.CreatePostRequest{Content: string(long[:300])})
	assert.NoError(t, err)
}

func TestCreatePost_FlagsLinks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		content    string
		suspicious bool
	}{
		{"full url", "check https://example.com/deal now", true},
		{"www prefix", "go to www.example.com", true},
		{"bare domain", "deals at spam.example today", true},
		{"dot and slash", "see deals/today. cheap", true},
		{"plain text", "what a lovely rainy day", false},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post, err := svc.CreatePost(ctx, fmt.Sprintf("dev-%d", i),
				&models.CreatePostRequest{Content: tt.content})
			require.NoError(t, err)
			assert.Equal(t, tt.suspicious, post.Suspicious)
		})
	}
}

func TestCreatePost_Reply(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	parent, err := svc.CreatePost(ctx, "dev-1", &models.CreatePostRequest{Content: "parent"})
	require.NoError(t, err)

	// Replying anonymously is rejected; a registered name is required.
	_, err = svc.CreatePost(ctx, "dev-2",
		&models.CreatePostRequest{Content: "reply", ParentID: &parent.ID})
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.RegisterName(ctx, "dev-2", "Replier")
	require.NoError(t, err)

	reply, err := svc.CreatePost(ctx, "dev-2",
		&models.CreatePostRequest{Content: "reply", ParentID: &parent.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, parent.ID, *reply.ParentID)

	missing := int64(9999)
	_, err = svc.CreatePost(ctx, "dev-2",
		&models.CreatePostRequest{Content: "orphan", ParentID: &missing})
	assert.ErrorIs(t, err, ErrParentNotFound)
}

func TestCreatePost_HourlyQuota(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := svc.CreatePost(ctx, "dev-1", &models.CreatePostRequest{Content: "post"})
		require.NoError(t, err)
		clock.advance(time.Minute)
	}

	// Ten posts in the trailing hour; the oldest is now 10 minutes old, so
	// the quota frees up in 50 minutes.
	_, err := svc.CreatePost(ctx, "dev-1", &models.CreatePostRequest{Content: "one too many"})
	var rateErr *RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 50*60, rateErr.RetryAfter)

	// Another device is unaffected.
	_, err = svc.CreatePost(ctx, "dev-2", &models.CreatePostRequest{Content: "fine"})
	assert.NoError(t, err)

	// Once the oldest post ages out, dev-1 can post again.
	clock.advance(51 * time.Minute)
	_, err = svc.CreatePost(ctx, "dev-1", &models.CreatePostRequest{Content: "welcome back"})
	assert.NoError(t, err)
}

func TestRegisterName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	name, err := svc.GetName(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultUsername, name)

	name, err = svc.RegisterName(ctx, "dev-1", "  Sky & Walker  ")
	require.NoError(t, err)
	assert.Equal(t, "Sky &amp; Walker", name)

	got, err := svc.GetName(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, name, got)

	// Subsequent posts carry the registered name.
	post, err := svc.CreatePost(ctx, "dev-1", &models.CreatePostRequest{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, name, post.Username)
}

func TestRegisterName_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterName(ctx, "dev-1", "   ")
	assert.ErrorIs(t, err, ErrUsernameEmpty)

	_, err = svc.RegisterName(ctx, "dev-1", "this-name-is-way-too-long-for-the-board")
	assert.ErrorIs(t, err, ErrUsernameTooLong)

	for _, name := range []string{"bob<script>", "a>b", `quo"te`, "o'brien", "tick`er"} {
		_, err = svc.RegisterName(ctx, "dev-1", name)
		assert.ErrorIs(t, err, ErrUsernameInvalid, name)
	}
}

func TestRegisterName_OncePerDevice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterName(ctx, "dev-1", "First")
	require.NoError(t, err)

	_, err = svc.RegisterName(ctx, "dev-1", "Second")
	assert.ErrorIs(t, err, ErrNameAlreadySet)

	name, err := svc.GetName(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "First", name)
}

func TestRegisterName_UniqueAcrossDevices(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterName(ctx, "dev-1", "Highlander")
	require.NoError(t, err)

	_, err = svc.RegisterName(ctx, "dev-2", "Highlander")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = svc.RegisterName(ctx, "dev-2", "SomeoneElse")
	assert.NoError(t, err)
}

func TestReportPost_HideAndBan(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, "author", &models.CreatePostRequest{Content: "contested"})
	require.NoError(t, err)

	for i, reporter := range []string{"rep-1", "rep-2"} {
		updated, err := svc.ReportPost(ctx, reporter, post.ID)
		require.NoError(t, err)
		assert.Equal(t, i+1, updated.ReportCount)
		assert.False(t, updated.Hidden)
	}

	updated, err := svc.ReportPost(ctx, "rep-3", post.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.ReportCount)
	assert.True(t, updated.Hidden)

	// The author is banned for the configured duration.
	_, err = svc.CreatePost(ctx, "author", &models.CreatePostRequest{Content: "again"})
	var banErr *BannedError
	require.ErrorAs(t, err, &banErr)
	assert.Equal(t, clock.now().Add(24*time.Hour), banErr.Until)

	// The ban expires.
	clock.advance(25 * time.Hour)
	_, err = svc.CreatePost(ctx, "author", &models.CreatePostRequest{Content: "served my time"})
	assert.NoError(t, err)
}

func TestReportPost_DuplicateAndMissing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, "author", &models.CreatePostRequest{Content: "contested"})
	require.NoError(t, err)

	_, err = svc.ReportPost(ctx, "rep-1", post.ID)
	require.NoError(t, err)

	_, err = svc.ReportPost(ctx, "rep-1", post.ID)
	assert.ErrorIs(t, err, ErrAlreadyReported)

	_, err = svc.ReportPost(ctx, "rep-1", 9999)
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestReportPost_SelfReport(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, "author", &models.CreatePostRequest{Content: "my own post"})
	require.NoError(t, err)

	_, err = svc.ReportPost(ctx, "author", post.ID)
	assert.ErrorIs(t, err, ErrSelfReport)

	// The rejected report leaves no trace on the post.
	updated, err := svc.ReportPost(ctx, "rep-1", post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ReportCount)
}

func TestHiddenPostVeiling(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, "author", &models.CreatePostRequest{Content: "secret sauce"})
	require.NoError(t, err)
	for _, reporter := range []string{"rep-1", "rep-2", "rep-3"} {
		_, err := svc.ReportPost(ctx, reporter, post.ID)
		require.NoError(t, err)
	}

	// A stranger sees the placeholder only.
	views, err := svc.ListPosts(ctx, "stranger")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].ContentHidden)
	assert.NotContains(t, views[0].Content, "secret sauce")
	assert.Empty(t, views[0].OriginalContent)

	// The author still sees what they wrote.
	views, err = svc.ListPosts(ctx, "author")
	require.NoError(t, err)
	assert.Equal(t, "secret sauce", views[0].OriginalContent)
}

func TestRetention(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePost(ctx, "dev-1", &models.CreatePostRequest{Content: "ephemeral"})
	require.NoError(t, err)

	clock.advance(73 * time.Hour)

	views, err := svc.ListPosts(ctx, "dev-1")
	require.NoError(t, err)
	assert.Empty(t, views)
}
