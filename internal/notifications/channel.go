package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/campusfeed/syncd/internal/api"
	"github.com/campusfeed/syncd/internal/cache"
	"github.com/campusfeed/syncd/internal/events"
	"github.com/campusfeed/syncd/internal/models"
)

var (
	// ErrClosed indicates the channel has been torn down.
	ErrClosed = errors.New("notification channel closed")
	// ErrUnknownNotification indicates the id is not present in the inbox.
	ErrUnknownNotification = errors.New("unknown notification")
)

// InboxAPI is the slice of the platform client the channel depends on.
type InboxAPI interface {
	Notifications(ctx context.Context) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

// Connectivity gates every network-issuing call.
type Connectivity interface {
	IsOnline() bool
}

// Inbox is the result of a Load. UnreadCount is always recomputed from the
// list it ships with, never carried over from a previous state.
type Inbox struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
	Source        string                `json:"source"`
	Stale         bool                  `json:"stale"`
	Offline       bool                  `json:"offline"`
}

// Channel synchronizes the notification inbox and the unread counter.
// Read-state mutations apply optimistically and roll back on failure.
type Channel struct {
	api    InboxAPI
	cache  *cache.Cache
	online Connectivity
	bus    *events.Bus
	logger *slog.Logger
	ttl    time.Duration

	mu     sync.Mutex
	items  []models.Notification
	unread int

	closed         atomic.Bool
	refreshing     atomic.Bool
	pendingRefresh atomic.Bool
	unsub          func()
	now            func() time.Time
}

// NewChannel constructs a notification channel.
func NewChannel(inbox InboxAPI, c *cache.Cache, online Connectivity, bus *events.Bus, ttl time.Duration, logger *slog.Logger) *Channel {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	ch := &Channel{
		api:    inbox,
		cache:  c,
		online: online,
		bus:    bus,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
	if bus != nil {
		// A stale serve while offline marks a refresh pending; the reconnect
		// event runs it.
		ch.unsub = bus.Subscribe(events.TopicConnectivity, func(ev events.Event) {
			change, ok := ev.Payload.(events.ConnectivityChanged)
			if ok && change.Online && ch.pendingRefresh.CompareAndSwap(true, false) {
				ch.scheduleRefresh()
			}
		})
	}
	return ch
}

// Load fetches the inbox and recomputes the unread count from the fetched
// list. Offline or on an absorbed failure the cached inbox answers instead.
func (c *Channel) Load(ctx context.Context) (Inbox, error) {
	if c.closed.Load() {
		return Inbox{}, ErrClosed
	}

	if !c.online.IsOnline() {
		inbox := c.serveFromCache(ctx)
		inbox.Offline = true
		if inbox.Stale {
			c.pendingRefresh.Store(true)
		}
		return inbox, nil
	}

	fetched, err := c.api.Notifications(ctx)
	if err != nil {
		if api.Unavailable(err) || isServerError(err) {
			c.notify(events.Notice{Kind: events.NoticeServingCached, Message: "connection problem, showing cached notifications"})
			inbox := c.serveFromCache(ctx)
			if inbox.Stale {
				c.scheduleRefresh()
			}
			return inbox, nil
		}
		return Inbox{}, fmt.Errorf("load notifications: %w", err)
	}

	if c.closed.Load() {
		return Inbox{}, ErrClosed
	}

	c.mu.Lock()
	c.items = fetched
	c.recomputeLocked()
	unread := c.unread
	c.mu.Unlock()

	c.writeThrough(ctx)

	return Inbox{Notifications: c.snapshot(), UnreadCount: unread, Source: "network"}, nil
}

// MarkRead flips one notification to read. The local flip happens first; a
// failed server call restores the prior read state.
func (c *Channel) MarkRead(ctx context.Context, id string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.online.IsOnline() {
		return fmt.Errorf("mark read %s: %w", id, api.ErrOffline)
	}

	c.mu.Lock()
	idx := c.indexOfLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("mark read %s: %w", id, ErrUnknownNotification)
	}
	prior := c.items[idx].IsRead
	c.items[idx].IsRead = true
	c.recomputeLocked()
	c.mu.Unlock()

	if err := c.api.MarkRead(ctx, id); err != nil {
		c.mu.Lock()
		if idx := c.indexOfLocked(id); idx >= 0 {
			c.items[idx].IsRead = prior
			c.recomputeLocked()
		}
		c.mu.Unlock()
		c.notify(events.Notice{Kind: events.NoticeActionFailed, Message: "could not mark notification read"})
		return fmt.Errorf("mark read %s: %w", id, err)
	}

	if c.closed.Load() {
		return ErrClosed
	}

	c.writeThrough(ctx)
	return nil
}

// MarkAllRead flips the whole inbox to read in one state transition. On
// failure the prior read states are restored wholesale.
func (c *Channel) MarkAllRead(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.online.IsOnline() {
		return fmt.Errorf("mark all read: %w", api.ErrOffline)
	}

	c.mu.Lock()
	prior := append([]models.Notification(nil), c.items...)
	for i := range c.items {
		c.items[i].IsRead = true
	}
	c.recomputeLocked()
	c.mu.Unlock()

	if err := c.api.MarkAllRead(ctx); err != nil {
		c.mu.Lock()
		c.items = prior
		c.recomputeLocked()
		c.mu.Unlock()
		c.notify(events.Notice{Kind: events.NoticeActionFailed, Message: "could not mark notifications read"})
		return fmt.Errorf("mark all read: %w", err)
	}

	if c.closed.Load() {
		return ErrClosed
	}

	c.writeThrough(ctx)
	return nil
}

// Unread reports the current unread count.
func (c *Channel) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// Close tears the channel down. In-flight responses arriving afterwards are
// discarded.
func (c *Channel) Close() {
	c.closed.Store(true)
	if c.unsub != nil {
		c.unsub()
	}
}

// scheduleRefresh triggers one background reload unless one is already
// running.
func (c *Channel) scheduleRefresh() {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.refreshing.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := c.Load(ctx); err != nil {
			c.logger.Warn("background refresh failed", "error", err)
		}
	}()
}

// recomputeLocked derives the unread counter from the list. It is never
// incremented or decremented independently, so it cannot drift.
func (c *Channel) recomputeLocked() {
	unread := 0
	for _, n := range c.items {
		if !n.IsRead {
			unread++
		}
	}
	c.unread = unread
}

func (c *Channel) indexOfLocked(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Channel) serveFromCache(ctx context.Context) Inbox {
	inbox := Inbox{Source: "cache", Stale: true}

	entry, err := cache.Get[[]models.Notification](ctx, c.cache, cache.KeyInbox)
	if err != nil {
		return inbox
	}

	inbox.Notifications = entry.Value
	inbox.Stale = c.now().Sub(entry.FetchedAt) >= c.ttl
	for _, n := range entry.Value {
		if !n.IsRead {
			inbox.UnreadCount++
		}
	}

	c.mu.Lock()
	c.items = append([]models.Notification(nil), entry.Value...)
	c.recomputeLocked()
	c.mu.Unlock()

	return inbox
}

func (c *Channel) writeThrough(ctx context.Context) {
	if err := cache.Set(ctx, c.cache, cache.KeyInbox, c.snapshot()); err != nil {
		c.logger.Warn("cache write failed", "key", cache.KeyInbox, "error", err)
	}
}

func (c *Channel) snapshot() []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Notification(nil), c.items...)
}

func (c *Channel) notify(notice events.Notice) {
	if c.bus != nil {
		c.bus.Publish(events.TopicNotice, notice)
	}
}

func isServerError(err error) bool {
	var apiErr *api.Error
	return errors.As(err, &apiErr) && apiErr.IsServerError()
}

// SuppressionPolicy builds the poll suppression predicate for the viewing
// account. Whether administrative accounts should skip recurring polling is a
// product flag, not a hardcoded rule; when enabled, recurring ticks stop
// after the first successful load and only manual refresh remains.
func SuppressionPolicy(role models.Role, suppressAdmins bool) func() bool {
	return func() bool {
		return suppressAdmins && role == models.RoleAdmin
	}
}
