// Package restapi implements domain.Backend against the money-tracker REST API.
package restapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
	"github.com/Anmolmahajn/money-tracker-notifier/internal/subscription"
)

// DefaultTimeout bounds every REST call.
const DefaultTimeout = 10 * time.Second

// maxErrorBody limits how much of an error response is kept in the error.
const maxErrorBody = 512

// Client calls the notification endpoints with the session's bearer token.
type Client struct {
	baseURL    string
	session    *domain.Session
	httpClient *http.Client
}

// New creates a Client. baseURL is the API root, e.g. "http://localhost:8080/api".
func New(baseURL string, session *domain.Session, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		session:    session,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchUnread GET /notifications/unread
func (c *Client) FetchUnread(ctx context.Context) ([]domain.Notification, error) {
	resp, err := c.do(ctx, http.MethodGet, "/notifications/unread")
	if err != nil {
		return nil, fmt.Errorf("fetch unread notifications: %w", err)
	}
	defer resp.Body.Close()

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("fetch unread notifications: decode: %w", err)
	}

	// Same wire format as pushes; records that fail to decode are skipped.
	out := make([]domain.Notification, 0, len(raw))
	for i, item := range raw {
		n, err := subscription.Decode(item)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Int("bytes", len(item)).Msg("baseline record dropped")
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkAsRead PUT /notifications/:id/read
func (c *Client) MarkAsRead(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read")
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	resp.Body.Close()
	return nil
}

// MarkAllAsRead PUT /notifications/mark-all-read
func (c *Client) MarkAllAsRead(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPut, "/notifications/mark-all-read")
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	resp.Body.Close()
	return nil
}

// Delete DELETE /notifications/:id
func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	resp.Body.Close()
	return nil
}

// do sends the request and turns non-2xx responses into errors. On success
// the caller owns resp.Body.
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.session != nil && c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, domain.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
