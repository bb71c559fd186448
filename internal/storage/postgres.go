package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"outfitter/internal/models"
)

// PostgresStorage implements the Storage interface on PostgreSQL. It is the
// production backend; timestamps are stored as unix nanoseconds to match the
// other backends exactly.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS posts (
	id           BIGSERIAL PRIMARY KEY,
	content      TEXT    NOT NULL,
	username     TEXT    NOT NULL,
	device_id    TEXT    NOT NULL,
	created_at   BIGINT  NOT NULL,
	parent_id    BIGINT,
	suspicious   BOOLEAN NOT NULL DEFAULT FALSE,
	hidden       BOOLEAN NOT NULL DEFAULT FALSE,
	report_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_posts_device_created ON posts(device_id, created_at);

CREATE TABLE IF NOT EXISTS usernames (
	device_id TEXT PRIMARY KEY,
	username  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	post_id     BIGINT NOT NULL,
	reporter_id TEXT   NOT NULL,
	PRIMARY KEY (post_id, reporter_id)
);

CREATE TABLE IF NOT EXISTS bans (
	device_id TEXT   PRIMARY KEY,
	until     BIGINT NOT NULL
);
`

// NewPostgresStorage creates a new PostgreSQL storage instance and ensures
// the schema exists.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func (ps *PostgresStorage) CreatePost(ctx context.Context, post *models.Post) error {
	err := ps.pool.QueryRow(ctx,
		`INSERT INTO posts (content, username, device_id, created_at, parent_id, suspicious, hidden, report_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		post.Content, post.Username, post.DeviceID, post.CreatedAt.UnixNano(),
		post.ParentID, post.Suspicious, post.Hidden, post.ReportCount).Scan(&post.ID)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) Posts(ctx context.Context) ([]*models.Post, error) {
	rows, err := ps.pool.Query(ctx,
		`SELECT id, content, username, device_id, created_at, parent_id, suspicious, hidden, report_count
		 FROM posts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPgPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (ps *PostgresStorage) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	row := ps.pool.QueryRow(ctx,
		`SELECT id, content, username, device_id, created_at, parent_id, suspicious, hidden, report_count
		 FROM posts WHERE id = $1`, id)

	post, err := scanPgPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return post, err
}

func (ps *PostgresStorage) UpdatePost(ctx context.Context, post *models.Post) error {
	tag, err := ps.pool.Exec(ctx,
		`UPDATE posts SET content = $1, username = $2, suspicious = $3, hidden = $4, report_count = $5 WHERE id = $6`,
		post.Content, post.Username, post.Suspicious, post.Hidden, post.ReportCount, post.ID)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (ps *PostgresStorage) CountPostsSince(ctx context.Context, deviceID string, since time.Time) (int, error) {
	var count int
	err := ps.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM posts WHERE device_id = $1 AND created_at >= $2`,
		deviceID, since.UnixNano()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return count, nil
}

func (ps *PostgresStorage) OldestPostSince(ctx context.Context, deviceID string, since time.Time) (time.Time, error) {
	var oldest *int64
	err := ps.pool.QueryRow(ctx,
		`SELECT MIN(created_at) FROM posts WHERE device_id = $1 AND created_at >= $2`,
		deviceID, since.UnixNano()).Scan(&oldest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to find oldest post: %w", err)
	}
	if oldest == nil {
		return time.Time{}, ErrNotFound
	}
	return time.Unix(0, *oldest), nil
}

func (ps *PostgresStorage) PrunePosts(ctx context.Context, cutoff time.Time, maxPosts int) (int, error) {
	tag, err := ps.pool.Exec(ctx,
		`DELETE FROM posts WHERE created_at < $1`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired posts: %w", err)
	}
	removed := tag.RowsAffected()

	if maxPosts > 0 {
		tag, err = ps.pool.Exec(ctx,
			`DELETE FROM posts WHERE id NOT IN (SELECT id FROM posts ORDER BY created_at DESC, id DESC LIMIT $1)`,
			maxPosts)
		if err != nil {
			return int(removed), fmt.Errorf("failed to trim posts: %w", err)
		}
		removed += tag.RowsAffected()
	}

	if _, err := ps.pool.Exec(ctx,
		`DELETE FROM reports WHERE post_id NOT IN (SELECT id FROM posts)`); err != nil {
		return int(removed), fmt.Errorf("failed to prune orphaned reports: %w", err)
	}

	return int(removed), nil
}

func (ps *PostgresStorage) GetUsername(ctx context.Context, deviceID string) (string, error) {
	var name string
	err := ps.pool.QueryRow(ctx,
		`SELECT username FROM usernames WHERE device_id = $1`, deviceID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get username: %w", err)
	}
	return name, nil
}

func (ps *PostgresStorage) SaveUsername(ctx context.Context, deviceID, username string) error {
	_, err := ps.pool.Exec(ctx,
		`INSERT INTO usernames (device_id, username) VALUES ($1, $2)
		 ON CONFLICT (device_id) DO UPDATE SET username = EXCLUDED.username`,
		deviceID, username)
	if err != nil {
		return fmt.Errorf("failed to save username: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int
	err := ps.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM usernames WHERE username = $1`, username).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return count > 0, nil
}

func (ps *PostgresStorage) AddReport(ctx context.Context, postID int64, reporterID string) (int, error) {
	if _, err := ps.GetPost(ctx, postID); err != nil {
		return 0, err
	}

	tag, err := ps.pool.Exec(ctx,
		`INSERT INTO reports (post_id, reporter_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		postID, reporterID)
	if err != nil {
		return 0, fmt.Errorf("failed to add report: %w", err)
	}

	var count int
	if err := ps.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reports WHERE post_id = $1`, postID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return count, ErrDuplicateReport
	}
	return count, nil
}

func (ps *PostgresStorage) GetBan(ctx context.Context, deviceID string) (time.Time, error) {
	var until int64
	err := ps.pool.QueryRow(ctx,
		`SELECT until FROM bans WHERE device_id = $1`, deviceID).Scan(&until)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get ban: %w", err)
	}
	return time.Unix(0, until), nil
}

func (ps *PostgresStorage) SaveBan(ctx context.Context, deviceID string, until time.Time) error {
	_, err := ps.pool.Exec(ctx,
		`INSERT INTO bans (device_id, until) VALUES ($1, $2)
		 ON CONFLICT (device_id) DO UPDATE SET until = EXCLUDED.until`,
		deviceID, until.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save ban: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) Snapshot(ctx context.Context) (*models.BoardSnapshot, error) {
	posts, err := ps.Posts(ctx)
	if err != nil {
		return nil, err
	}

	snap := &models.BoardSnapshot{
		Posts:   posts,
		Users:   make(map[string]string),
		Reports: make(map[int64][]string),
		Bans:    make(map[string]time.Time),
	}

	rows, err := ps.pool.Query(ctx, `SELECT device_id, username FROM usernames`)
	if err != nil {
		return nil, fmt.Errorf("failed to query usernames: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var device, name string
		if err := rows.Scan(&device, &name); err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}
		snap.Users[device] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reportRows, err := ps.pool.Query(ctx, `SELECT post_id, reporter_id FROM reports ORDER BY post_id, reporter_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer reportRows.Close()
	for reportRows.Next() {
		var postID int64
		var reporter string
		if err := reportRows.Scan(&postID, &reporter); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		snap.Reports[postID] = append(snap.Reports[postID], reporter)
	}
	if err := reportRows.Err(); err != nil {
		return nil, err
	}

	banRows, err := ps.pool.Query(ctx, `SELECT device_id, until FROM bans`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bans: %w", err)
	}
	defer banRows.Close()
	for banRows.Next() {
		var device string
		var until int64
		if err := banRows.Scan(&device, &until); err != nil {
			return nil, fmt.Errorf("failed to scan ban: %w", err)
		}
		snap.Bans[device] = time.Unix(0, until)
	}
	if err := banRows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

func (ps *PostgresStorage) Restore(ctx context.Context, snap *models.BoardSnapshot) error {
	tx, err := ps.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin restore: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"posts", "usernames", "reports", "bans"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, p := range snap.Posts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO posts (id, content, username, device_id, created_at, parent_id, suspicious, hidden, report_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.ID, p.Content, p.Username, p.DeviceID, p.CreatedAt.UnixNano(),
			p.ParentID, p.Suspicious, p.Hidden, p.ReportCount); err != nil {
			return fmt.Errorf("failed to restore post %d: %w", p.ID, err)
		}
	}
	if _, err := tx.Exec(ctx,
		`SELECT setval('posts_id_seq', (SELECT COALESCE(MAX(id), 0) + 1 FROM posts), false)`); err != nil {
		return fmt.Errorf("failed to reset post sequence: %w", err)
	}

	for device, name := range snap.Users {
		if _, err := tx.Exec(ctx,
			`INSERT INTO usernames (device_id, username) VALUES ($1, $2)`, device, name); err != nil {
			return fmt.Errorf("failed to restore username: %w", err)
		}
	}
	for postID, reporters := range snap.Reports {
		for _, reporter := range reporters {
			if _, err := tx.Exec(ctx,
				`INSERT INTO reports (post_id, reporter_id) VALUES ($1, $2)`, postID, reporter); err != nil {
				return fmt.Errorf("failed to restore report: %w", err)
			}
		}
	}
	for device, until := range snap.Bans {
		if _, err := tx.Exec(ctx,
			`INSERT INTO bans (device_id, until) VALUES ($1, $2)`, device, until.UnixNano()); err != nil {
			return fmt.Errorf("failed to restore ban: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

func scanPgPost(row pgx.Row) (*models.Post, error) {
	var post models.Post
	var createdAt int64
	var parentID *int64

	err := row.Scan(&post.ID, &post.Content, &post.Username, &post.DeviceID,
		&createdAt, &parentID, &post.Suspicious, &post.Hidden, &post.ReportCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}

	post.CreatedAt = time.Unix(0, createdAt)
	post.ParentID = parentID
	return &post, nil
}
