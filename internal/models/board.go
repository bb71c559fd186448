// Package models - Message board entities.
package models

import "time"

// Post is a stored board post. DeviceID is the author's derived identity and
// is never serialized to clients; PostView is the outward shape.
type Post struct {
	ID          int64     `json:"id"`
	Content     string    `json:"content"`
	Username    string    `json:"username"`
	DeviceID    string    `json:"-"`
	CreatedAt   time.Time `json:"timestamp"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	Suspicious  bool      `json:"is_suspicious"`
	Hidden      bool      `json:"is_hidden"`
	ReportCount int       `json:"report_count"`
}

// PostView is a post as served to a client: veiled when hidden or flagged,
// with ownership resolved against the caller's identity.
type PostView struct {
	ID              int64     `json:"id"`
	Content         string    `json:"content"`
	Username        string    `json:"username"`
	CreatedAt       time.Time `json:"timestamp"`
	ParentID        *int64    `json:"parent_id,omitempty"`
	Suspicious      bool      `json:"is_suspicious"`
	Hidden          bool      `json:"is_hidden"`
	ReportCount     int       `json:"report_count"`
	ContentHidden   bool      `json:"content_hidden,omitempty"`
	OriginalContent string    `json:"original_content,omitempty"`
	IsOwn           bool      `json:"is_own"`
}

// Ban records a device-level posting ban.
type Ban struct {
	DeviceID string    `json:"device_id"`
	Until    time.Time `json:"until"`
}

// BoardSnapshot is a full copy of board state, used for GitHub backups.
type BoardSnapshot struct {
	Posts   []*Post             `json:"posts"`
	Users   map[string]string   `json:"users"`   // device ID -> username
	Reports map[int64][]string  `json:"reports"` // post ID -> reporter device IDs
	Bans    map[string]time.Time `json:"bans"`   // device ID -> banned until
}
