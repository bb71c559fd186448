package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"outfitter/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteStorage implements the Storage interface on a local SQLite database.
// Timestamps are stored as integer unix nanoseconds so range comparisons are
// plain integer comparisons.
type SQLiteStorage struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS posts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	content      TEXT    NOT NULL,
	username     TEXT    NOT NULL,
	device_id    TEXT    NOT NULL,
	created_at   INTEGER NOT NULL,
	parent_id    INTEGER,
	suspicious   INTEGER NOT NULL DEFAULT 0,
	hidden       INTEGER NOT NULL DEFAULT 0,
	report_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_posts_device_created ON posts(device_id, created_at);

CREATE TABLE IF NOT EXISTS usernames (
	device_id TEXT PRIMARY KEY,
	username  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	post_id     INTEGER NOT NULL,
	reporter_id TEXT    NOT NULL,
	PRIMARY KEY (post_id, reporter_id)
);

CREATE TABLE IF NOT EXISTS bans (
	device_id TEXT    PRIMARY KEY,
	until     INTEGER NOT NULL
);
`

// NewSQLiteStorage opens (or creates) the database at dsn and ensures the
// schema exists.
func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent access.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (ss *SQLiteStorage) CreatePost(ctx context.Context, post *models.Post) error {
	res, err := ss.db.ExecContext(ctx,
		`INSERT INTO posts (content, username, device_id, created_at, parent_id, suspicious, hidden, report_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		post.Content, post.Username, post.DeviceID, post.CreatedAt.UnixNano(),
		post.ParentID, post.Suspicious, post.Hidden, post.ReportCount)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read post id: %w", err)
	}
	post.ID = id
	return nil
}

func (ss *SQLiteStorage) Posts(ctx context.Context) ([]*models.Post, error) {
	rows, err := ss.db.QueryContext(ctx,
		`SELECT id, content, username, device_id, created_at, parent_id, suspicious, hidden, report_count
		 FROM posts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (ss *SQLiteStorage) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	row := ss.db.QueryRowContext(ctx,
		`SELECT id, content, username, device_id, created_at, parent_id, suspicious, hidden, report_count
		 FROM posts WHERE id = ?`, id)

	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return post, err
}

func (ss *SQLiteStorage) UpdatePost(ctx context.Context, post *models.Post) error {
	res, err := ss.db.ExecContext(ctx,
		`UPDATE posts SET content = ?, username = ?, suspicious = ?, hidden = ?, report_count = ? WHERE id = ?`,
		post.Content, post.Username, post.Suspicious, post.Hidden, post.ReportCount, post.ID)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (ss *SQLiteStorage) CountPostsSince(ctx context.Context, deviceID string, since time.Time) (int, error) {
	var count int
	err := ss.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE device_id = ? AND created_at >= ?`,
		deviceID, since.UnixNano()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return count, nil
}

func (ss *SQLiteStorage) OldestPostSince(ctx context.Context, deviceID string, since time.Time) (time.Time, error) {
	var oldest sql.NullInt64
	err := ss.db.QueryRowContext(ctx,
		`SELECT MIN(created_at) FROM posts WHERE device_id = ? AND created_at >= ?`,
		deviceID, since.UnixNano()).Scan(&oldest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to find oldest post: %w", err)
	}
	if !oldest.Valid {
		return time.Time{}, ErrNotFound
	}
	return time.Unix(0, oldest.Int64), nil
}

func (ss *SQLiteStorage) PrunePosts(ctx context.Context, cutoff time.Time, maxPosts int) (int, error) {
	res, err := ss.db.ExecContext(ctx,
		`DELETE FROM posts WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired posts: %w", err)
	}
	expired, _ := res.RowsAffected()

	var trimmed int64
	if maxPosts > 0 {
		res, err = ss.db.ExecContext(ctx,
			`DELETE FROM posts WHERE id NOT IN (SELECT id FROM posts ORDER BY created_at DESC, id DESC LIMIT ?)`,
			maxPosts)
		if err != nil {
			return int(expired), fmt.Errorf("failed to trim posts: %w", err)
		}
		trimmed, _ = res.RowsAffected()
	}

	if _, err := ss.db.ExecContext(ctx,
		`DELETE FROM reports WHERE post_id NOT IN (SELECT id FROM posts)`); err != nil {
		return int(expired + trimmed), fmt.Errorf("failed to prune orphaned reports: %w", err)
	}

	return int(expired + trimmed), nil
}

func (ss *SQLiteStorage) GetUsername(ctx context.Context, deviceID string) (string, error) {
	var name string
	err := ss.db.QueryRowContext(ctx,
		`SELECT username FROM usernames WHERE device_id = ?`, deviceID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get username: %w", err)
	}
	return name, nil
}

func (ss *SQLiteStorage) SaveUsername(ctx context.Context, deviceID, username string) error {
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO usernames (device_id, username) VALUES (?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET username = excluded.username`,
		deviceID, username)
	if err != nil {
		return fmt.Errorf("failed to save username: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int
	err := ss.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usernames WHERE username = ?`, username).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return count > 0, nil
}

func (ss *SQLiteStorage) AddReport(ctx context.Context, postID int64, reporterID string) (int, error) {
	if _, err := ss.GetPost(ctx, postID); err != nil {
		return 0, err
	}

	res, err := ss.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reports (post_id, reporter_id) VALUES (?, ?)`,
		postID, reporterID)
	if err != nil {
		return 0, fmt.Errorf("failed to add report: %w", err)
	}

	var count int
	if err := ss.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE post_id = ?`, postID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return count, fmt.Errorf("failed to check report result: %w", err)
	}
	if inserted == 0 {
		return count, ErrDuplicateReport
	}
	return count, nil
}

func (ss *SQLiteStorage) GetBan(ctx context.Context, deviceID string) (time.Time, error) {
	var until int64
	err := ss.db.QueryRowContext(ctx,
		`SELECT until FROM bans WHERE device_id = ?`, deviceID).Scan(&until)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get ban: %w", err)
	}
	return time.Unix(0, until), nil
}

func (ss *SQLiteStorage) SaveBan(ctx context.Context, deviceID string, until time.Time) error {
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO bans (device_id, until) VALUES (?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET until = excluded.until`,
		deviceID, until.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save ban: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) Snapshot(ctx context.Context) (*models.BoardSnapshot, error) {
	posts, err := ss.Posts(ctx)
	if err != nil {
		return nil, err
	}

	snap := &models.BoardSnapshot{
		Posts:   posts,
		Users:   make(map[string]string),
		Reports: make(map[int64][]string),
		Bans:    make(map[string]time.Time),
	}

	rows, err := ss.db.QueryContext(ctx, `SELECT device_id, username FROM usernames`)
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

	reportRows, err := ss.db.QueryContext(ctx, `SELECT post_id, reporter_id FROM reports ORDER BY post_id, reporter_id`)
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

	banRows, err := ss.db.QueryContext(ctx, `SELECT device_id, until FROM bans`)
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

func (ss *SQLiteStorage) Restore(ctx context.Context, snap *models.BoardSnapshot) error {
	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin restore: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"posts", "usernames", "reports", "bans"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, p := range snap.Posts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO posts (id, content, username, device_id, created_at, parent_id, suspicious, hidden, report_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Content, p.Username, p.DeviceID, p.CreatedAt.UnixNano(),
			p.ParentID, p.Suspicious, p.Hidden, p.ReportCount); err != nil {
			return fmt.Errorf("failed to restore post %d: %w", p.ID, err)
		}
	}
	for device, name := range snap.Users {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO usernames (device_id, username) VALUES (?, ?)`, device, name); err != nil {
			return fmt.Errorf("failed to restore username: %w", err)
		}
	}
	for postID, reporters := range snap.Reports {
		for _, reporter := range reporters {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO reports (post_id, reporter_id) VALUES (?, ?)`, postID, reporter); err != nil {
				return fmt.Errorf("failed to restore report: %w", err)
			}
		}
	}
	for device, until := range snap.Bans {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bans (device_id, until) VALUES (?, ?)`, device, until.UnixNano()); err != nil {
			return fmt.Errorf("failed to restore ban: %w", err)
		}
	}

	return tx.Commit()
}

// Close closes the storage connection.
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	var createdAt int64
	var parentID sql.NullInt64

	err := row.Scan(&post.ID, &post.Content, &post.Username, &post.DeviceID,
		&createdAt, &parentID, &post.Suspicious, &post.Hidden, &post.ReportCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}

	post.CreatedAt = time.Unix(0, createdAt)
	if parentID.Valid {
		post.ParentID = &parentID.Int64
	}
	return &post, nil
}
