// Package backup persists board snapshots to a GitHub repository through the
// contents API, and restores them at startup. The API is small enough that a
// hand-rolled client over net/http is all it takes.
package backup

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.github.com"

// ErrFileNotFound is returned when the backup file does not exist yet.
var ErrFileNotFound = fmt.Errorf("backup file not found")

// Client talks to the GitHub contents API for a single repository.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	repo       string // owner/name
	branch     string
}

// NewClient creates a GitHub contents client.
func NewClient(token, repo, branch string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
		repo:       repo,
		branch:     branch,
	}
}

// SetBaseURL overrides the API endpoint, for GitHub Enterprise or tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

type contentResponse struct {
	SHA     string `json:"sha"`
	Content string `json:"content"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

// GetFile fetches a file's decoded content and blob SHA from the repository.
func (c *Client) GetFile(ctx context.Context, path string) ([]byte, string, error) {
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	if status == http.StatusNotFound {
		return nil, "", ErrFileNotFound
	}
	if status != http.StatusOK {
		return nil, "", fmt.Errorf("github returned status %d for %s", status, path)
	}

	var resp contentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("failed to decode github response: %w", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(stripNewlines(resp.Content))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode file content: %w", err)
	}
	return decoded, resp.SHA, nil
}

// PutFile creates or updates a file. The current blob SHA is fetched first;
// a concurrent writer shows up as a 409, in which case the SHA is refreshed
// and the write retried once.
func (c *Client) PutFile(ctx context.Context, path string, content []byte, message string) error {
	_, sha, err := c.GetFile(ctx, path)
	if err != nil && err != ErrFileNotFound {
		return err
	}

	status, err := c.put(ctx, path, content, message, sha)
	if err != nil {
		return err
	}
	if status == http.StatusConflict {
		if _, sha, err = c.GetFile(ctx, path); err != nil && err != ErrFileNotFound {
			return fmt.Errorf("failed to refresh sha after conflict: %w", err)
		}
		if status, err = c.put(ctx, path, content, message, sha); err != nil {
			return err
		}
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("github returned status %d updating %s", status, path)
	}
	return nil
}

func (c *Client) put(ctx context.Context, path string, content []byte, message, sha string) (int, error) {
	payload, err := json.Marshal(putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.branch,
		SHA:     sha,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode github request: %w", err)
	}

	_, status, err := c.do(ctx, http.MethodPut, path, bytes.NewReader(payload))
	return status, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, int, error) {
	url := fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, c.repo, path)
	if method == http.MethodGet && c.branch != "" {
		url += "?ref=" + c.branch
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build github request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read github response: %w", err)
	}
	return data, resp.StatusCode, nil
}

// The contents API base64-encodes with line breaks.
func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
