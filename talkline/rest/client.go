package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client provides REST API access to the talkline history store.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new REST API client.
// baseURL should be the base URL of the API, e.g., "http://localhost:4000/api".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetToken sets the bearer token for authenticated requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Authentication endpoints

// Login authenticates with existing credentials and returns a token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.post(ctx, "/login", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Directory endpoints

// ListUsers returns every user in the directory, local user included.
func (c *Client) ListUsers(ctx context.Context) ([]DirectoryEntry, error) {
	var resp []DirectoryEntry
	if err := c.get(ctx, "/users", &resp, true); err != nil {
		return nil, err
	}
	return resp, nil
}

// Chat history endpoints

// FetchHistory retrieves the full message history for the pair
// (userID, otherUserID), ordered oldest to newest by the server's
// persistence order. Read-only; safe to call repeatedly.
func (c *Client) FetchHistory(ctx context.Context, userID, otherUserID string) ([]HistoryMessage, error) {
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("otherUserId", otherUserID)

	var resp []HistoryMessage
	if err := c.get(ctx, "/chat/history?"+q.Encode(), &resp, true); err != nil {
		return nil, err
	}
	return resp, nil
}

// AppendMessage persists one message.
func (c *Client) AppendMessage(ctx context.Context, req AppendMessageRequest) error {
	return c.post(ctx, "/chat/message", req, nil, true)
}

// MarkSeen marks all of senderID's messages to recipientID as seen.
// Idempotent: repeated calls with nothing new to mark are no-ops.
func (c *Client) MarkSeen(ctx context.Context, senderID, recipientID string) error {
	return c.post(ctx, "/chat/seen", SeenRequest{SenderID: senderID, RecipientID: recipientID}, nil, true)
}

// Helper methods

func (c *Client) post(ctx context.Context, path string, body, dest any, requireAuth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if requireAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any, requireAuth bool) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if requireAuth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("api error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("http error: %s (status %d)", string(body), resp.StatusCode)
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
