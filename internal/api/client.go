package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/campusfeed/syncd/internal/events"
	"github.com/campusfeed/syncd/internal/models"
)

// ConnectivityReporter receives observed transport outcomes so the monitor
// can track transitions without probing.
type ConnectivityReporter interface {
	SetOnline(online bool)
}

// Config carries the settings needed to talk to the platform API.
type Config struct {
	BaseURL        string
	BearerToken    string
	RequestTimeout time.Duration
	RatePerSecond  int
}

// Client issues authenticated REST calls against the platform API. It maps
// transport and HTTP failures onto the package's error taxonomy and reports
// outcomes to the connectivity monitor.
type Client struct {
	baseURL  string
	token    string
	timeout  time.Duration
	httpc    *http.Client
	limiter  *rate.Limiter
	bus      *events.Bus
	reporter ConnectivityReporter
}

// NewClient constructs a client. The bus and reporter may be nil in tests.
func NewClient(cfg Config, bus *events.Bus, reporter ConnectivityReporter) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}

	return &Client{
		baseURL:  cfg.BaseURL,
		token:    cfg.BearerToken,
		timeout:  cfg.RequestTimeout,
		httpc:    &http.Client{},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RatePerSecond),
		bus:      bus,
		reporter: reporter,
	}
}

// Relationships fetches the current user's three relationship sublists.
func (c *Client) Relationships(ctx context.Context) (models.Relationships, error) {
	var view models.Relationships
	if err := c.do(ctx, http.MethodGet, "/relationships", nil, &view); err != nil {
		return models.Relationships{}, err
	}
	normalize(&view)
	return view, nil
}

// UserFriends fetches another user's friend list. This read-only view is
// never cached.
func (c *Client) UserFriends(ctx context.Context, userID string) ([]models.UserSummary, error) {
	var resp struct {
		Friends []models.UserSummary `json:"friends"`
	}
	path := "/relationships/user/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Friends, nil
}

// Suggestions fetches a fresh batch of candidate connections.
func (c *Client) Suggestions(ctx context.Context, page, limit int) ([]models.UserSummary, error) {
	var resp struct {
		Suggestions []models.UserSummary `json:"suggestions"`
	}
	path := "/relationships/suggestions?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

// SendRequest creates a pending outgoing request towards targetID and returns
// the created edge.
func (c *Client) SendRequest(ctx context.Context, targetID string) (models.FriendshipEdge, error) {
	body := map[string]string{"targetId": targetID}
	var edge models.FriendshipEdge
	if err := c.do(ctx, http.MethodPost, "/relationships", body, &edge); err != nil {
		return models.FriendshipEdge{}, err
	}
	edge.State = models.EdgePendingOutgoing
	return edge, nil
}

// Accept confirms a pending incoming request.
func (c *Client) Accept(ctx context.Context, relationshipID string) error {
	path := "/relationships/" + url.PathEscape(relationshipID) + "/accept"
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// Reject declines a pending incoming request.
func (c *Client) Reject(ctx context.Context, relationshipID string) error {
	path := "/relationships/" + url.PathEscape(relationshipID) + "/reject"
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// Delete cancels a sent request or removes a friend.
func (c *Client) Delete(ctx context.Context, relationshipID string) error {
	path := "/relationships/" + url.PathEscape(relationshipID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Notifications fetches the inbox.
func (c *Client) Notifications(ctx context.Context) ([]models.Notification, error) {
	var resp struct {
		Notifications []models.Notification `json:"notifications"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Notifications, nil
}

// MarkRead marks one notification read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	path := "/notifications/" + url.PathEscape(id) + "/read"
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// MarkAllRead marks the whole inbox read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil)
}

// Probe reports whether the platform API answers at all. Any HTTP response,
// including an error status, counts as reachable.
func (c *Client) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/relationships", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
		}
		if errors.Is(err, context.Canceled) {
			// Teardown cancellation is not a connectivity signal.
			return fmt.Errorf("%s %s: %w", method, path, context.Canceled)
		}
		c.report(false)
		return fmt.Errorf("%w: %s %s: %v", ErrOffline, method, path, err)
	}
	defer resp.Body.Close()

	c.report(true)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if c.bus != nil {
			c.bus.Publish(events.TopicUnauthorized, events.Unauthorized{Method: method, Path: path})
		}
		return fmt.Errorf("%w: %s %s", ErrUnauthorized, method, path)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s %s", ErrConflict, method, path)
	case resp.StatusCode >= 400:
		return &Error{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response for %s %s: %w", method, path, err)
		}
	}

	return nil
}

func (c *Client) report(online bool) {
	if c.reporter != nil {
		c.reporter.SetOnline(online)
	}
}

func readErrorMessage(r io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&payload); err != nil {
		return ""
	}
	return payload.Error
}

// normalize stamps each edge with the state its sublist implies.
func normalize(view *models.Relationships) {
	for i := range view.Friends {
		view.Friends[i].State = models.EdgeAccepted
	}
	for i := range view.PendingIncoming {
		view.PendingIncoming[i].State = models.EdgePendingIncoming
	}
	for i := range view.PendingOutgoing {
		view.PendingOutgoing[i].State = models.EdgePendingOutgoing
	}
}
