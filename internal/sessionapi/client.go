// Package sessionapi is the HTTP client for the platform's session service.
// The service is the source of truth for session records; the agent only
// mirrors its responses into the local view cache.
package sessionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutorlane/liveclient/internal/identity"
	"github.com/tutorlane/liveclient/internal/models"
)

// APIError carries the remote status classification for a failed call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("session service: %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("session service: %d", e.StatusCode)
}

// envelope matches the service's standard response body.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client calls the session service. A configured agent token is used when
// the request context carries no caller identity.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

// NewClient creates a session service client.
func NewClient(baseURL, token string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *Client) bearer(ctx context.Context) string {
	if id, ok := identity.FromContext(ctx); ok && id.RawToken != "" {
		return id.RawToken
	}
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.bearer(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		// Tolerate non-envelope error bodies from proxies.
		_ = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug("session service error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ConvertToOnline asks the service to convert a scheduled session to a live
// online room. Fails with 403 when the caller is not the session's tutor,
// 409 when already converted, 400 when the lifecycle state does not allow
// conversion.
func (c *Client) ConvertToOnline(ctx context.Context, sessionID uuid.UUID) (*models.OnlineSession, error) {
	var out models.OnlineSession
	if err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID.String()+"/convert", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevertToOffline asks the service to take a converted session back
// offline. Fails with 403 when unauthorized, 400 when the room has ended.
func (c *Client) RevertToOffline(ctx context.Context, sessionID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+sessionID.String()+"/revert", nil, nil, nil)
}

// SessionsByMonth fetches one page of the sessions-in-month listing.
func (c *Client) SessionsByMonth(ctx context.Context, month string, page, size int) (*models.Page, error) {
	q := url.Values{}
	q.Set("month", month)
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("size", fmt.Sprintf("%d", size))
	var out models.Page
	if err := c.do(ctx, http.MethodGet, "/sessions", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentLiveSession fetches the caller's currently live session, or nil
// when none is live. The view behind this endpoint is refreshed
// asynchronously server-side and can lag a successful conversion.
func (c *Client) CurrentLiveSession(ctx context.Context) (*models.OnlineSession, error) {
	var out models.OnlineSession
	err := c.do(ctx, http.MethodGet, "/sessions/live", nil, nil, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if out.RoomID == "" {
		return nil, nil
	}
	return &out, nil
}

// OnlineSessions fetches the online sessions listing.
func (c *Client) OnlineSessions(ctx context.Context) ([]models.OnlineSession, error) {
	var out []models.OnlineSession
	if err := c.do(ctx, http.MethodGet, "/sessions/online", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
