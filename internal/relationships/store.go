package relationships

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

// ErrClosed indicates the store has been torn down; late responses are
// discarded rather than applied.
var ErrClosed = errors.New("relationship store closed")

// PlatformAPI is the slice of the platform client the store depends on.
type PlatformAPI interface {
	Relationships(ctx context.Context) (models.Relationships, error)
	UserFriends(ctx context.Context, userID string) ([]models.UserSummary, error)
	Suggestions(ctx context.Context, page, limit int) ([]models.UserSummary, error)
	SendRequest(ctx context.Context, targetID string) (models.FriendshipEdge, error)
	Accept(ctx context.Context, relationshipID string) error
	Reject(ctx context.Context, relationshipID string) error
	Delete(ctx context.Context, relationshipID string) error
}

// Connectivity gates every network-issuing call.
type Connectivity interface {
	IsOnline() bool
}

// Source records where a served view came from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
)

// View is the result of a Load: the three sublists plus status flags. Load
// always produces a view; when the network cannot answer, the freshest cache
// entries do, flagged accordingly.
type View struct {
	models.Relationships
	Source  Source `json:"source"`
	Stale   bool   `json:"stale"`
	Offline bool   `json:"offline"`
}

// Store holds the canonical local view of the social graph. Mutations apply
// optimistically and either commit on server confirmation or roll back to the
// prior edge on failure, so the view never silently diverges for longer than
// one failed round-trip.
type Store struct {
	api    PlatformAPI
	cache  *cache.Cache
	online Connectivity
	bus    *events.Bus
	logger *slog.Logger
	ttl    time.Duration

	mu   sync.Mutex
	view models.Relationships

	closed         atomic.Bool
	refreshing     atomic.Bool
	pendingRefresh atomic.Bool
	unsub          func()
	now            func() time.Time
}

// NewStore constructs a relationship store. ttl governs how long cached
// relationship lists count as fresh.
func NewStore(platform PlatformAPI, c *cache.Cache, online Connectivity, bus *events.Bus, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		api:    platform,
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
		s.unsub = bus.Subscribe(events.TopicConnectivity, func(ev events.Event) {
			change, ok := ev.Payload.(events.ConnectivityChanged)
			if ok && change.Online && s.pendingRefresh.CompareAndSwap(true, false) {
				s.scheduleRefresh()
			}
		})
	}
	return s
}

// Load returns the current social graph. Online, it fetches from the
// network, replaces the local view atomically, and writes through to the
// cache. Offline or on a failed fetch it serves the freshest cache entries
// instead, flagging staleness; it never fails the caller over a network
// problem.
func (s *Store) Load(ctx context.Context) (View, error) {
	if s.closed.Load() {
		return View{}, ErrClosed
	}

	if !s.online.IsOnline() {
		view := s.serveFromCache(ctx)
		view.Offline = true
		if view.Stale {
			s.pendingRefresh.Store(true)
		}
		return view, nil
	}

	fetched, err := s.api.Relationships(ctx)
	if err != nil {
		if s.recoverable(err) {
			s.notify(events.Notice{Kind: events.NoticeServingCached, Message: "connection problem, showing cached data"})
			view := s.serveFromCache(ctx)
			if view.Stale {
				s.scheduleRefresh()
			}
			return view, nil
		}
		return View{}, fmt.Errorf("load relationships: %w", err)
	}

	if s.closed.Load() {
		return View{}, ErrClosed
	}

	s.mu.Lock()
	s.view = fetched
	s.mu.Unlock()

	s.writeThrough(ctx)

	return View{Relationships: s.snapshot(), Source: SourceNetwork}, nil
}

// LoadUser fetches another user's friend list. The result is read-only and
// deliberately never cached.
func (s *Store) LoadUser(ctx context.Context, userID string) ([]models.UserSummary, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if !s.online.IsOnline() {
		return nil, fmt.Errorf("load user %s: %w", userID, api.ErrOffline)
	}
	return s.api.UserFriends(ctx, userID)
}

// SendRequest creates a pending outgoing request towards targetID. The edge
// appears in pendingOutgoing immediately; a failed server call removes it
// again.
func (s *Store) SendRequest(ctx context.Context, targetID string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.online.IsOnline() {
		return fmt.Errorf("send request to %s: %w", targetID, api.ErrOffline)
	}

	optimistic := models.FriendshipEdge{
		User:      models.UserSummary{ID: targetID},
		State:     models.EdgePendingOutgoing,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	if s.stateOfLocked(targetID) != models.EdgeNone {
		s.mu.Unlock()
		return fmt.Errorf("send request to %s: %w", targetID, api.ErrConflict)
	}
	s.view.PendingOutgoing = append(s.view.PendingOutgoing, optimistic)
	s.mu.Unlock()

	edge, err := s.api.SendRequest(ctx, targetID)
	if err != nil {
		s.mu.Lock()
		s.view.PendingOutgoing = removeEdge(s.view.PendingOutgoing, targetID)
		s.mu.Unlock()
		return s.mutationFailed("send request", targetID, err)
	}

	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	s.view.PendingOutgoing = replaceEdge(s.view.PendingOutgoing, targetID, edge)
	s.mu.Unlock()

	s.writeThrough(ctx)
	return nil
}

// Accept confirms a pending incoming request from targetID, moving the edge
// to friends.
func (s *Store) Accept(ctx context.Context, targetID string) error {
	return s.transition(ctx, "accept", targetID,
		func(prior models.FriendshipEdge) {
			s.view.PendingIncoming = removeEdge(s.view.PendingIncoming, targetID)
			accepted := prior
			accepted.State = models.EdgeAccepted
			s.view.Friends = append(s.view.Friends, accepted)
		},
		func(prior models.FriendshipEdge) {
			s.view.Friends = removeEdge(s.view.Friends, targetID)
			s.view.PendingIncoming = append(s.view.PendingIncoming, prior)
		},
		s.api.Accept,
	)
}

// Reject declines a pending incoming request from targetID.
func (s *Store) Reject(ctx context.Context, targetID string) error {
	return s.transition(ctx, "reject", targetID,
		func(models.FriendshipEdge) {
			s.view.PendingIncoming = removeEdge(s.view.PendingIncoming, targetID)
		},
		func(prior models.FriendshipEdge) {
			s.view.PendingIncoming = append(s.view.PendingIncoming, prior)
		},
		s.api.Reject,
	)
}

// CancelRequest withdraws a pending outgoing request towards targetID.
func (s *Store) CancelRequest(ctx context.Context, targetID string) error {
	return s.transition(ctx, "cancel request", targetID,
		func(models.FriendshipEdge) {
			s.view.PendingOutgoing = removeEdge(s.view.PendingOutgoing, targetID)
		},
		func(prior models.FriendshipEdge) {
			s.view.PendingOutgoing = append(s.view.PendingOutgoing, prior)
		},
		s.api.Delete,
	)
}

// Remove unlinks an accepted friend.
func (s *Store) Remove(ctx context.Context, targetID string) error {
	return s.transition(ctx, "remove", targetID,
		func(models.FriendshipEdge) {
			s.view.Friends = removeEdge(s.view.Friends, targetID)
		},
		func(prior models.FriendshipEdge) {
			s.view.Friends = append(s.view.Friends, prior)
		},
		s.api.Delete,
	)
}

// StateOf reports the current edge state for targetID.
func (s *Store) StateOf(targetID string) models.EdgeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateOfLocked(targetID)
}

// HasEdge reports whether targetID currently holds any edge.
func (s *Store) HasEdge(targetID string) bool {
	return s.StateOf(targetID) != models.EdgeNone
}

// Close tears the store down. In-flight responses arriving afterwards are
// discarded.
func (s *Store) Close() {
	s.closed.Store(true)
	if s.unsub != nil {
		s.unsub()
	}
}

// transition implements the shared optimistic mutation flow: check the
// precondition, apply locally, call the server, and either commit or restore
// the prior edge. The precondition check doubles as the per-edge serializer:
// a concurrent mutation against the same target observes the edge already
// transitioned and fails with a conflict.
func (s *Store) transition(ctx context.Context, op, targetID string, apply, rollback func(models.FriendshipEdge), call func(context.Context, string) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.online.IsOnline() {
		return fmt.Errorf("%s %s: %w", op, targetID, api.ErrOffline)
	}

	expected := expectedStateFor(op)

	s.mu.Lock()
	prior, ok := s.edgeInStateLocked(targetID, expected)
	if !ok {
		s.mu.Unlock()
		s.conflict(op, targetID)
		return fmt.Errorf("%s %s: %w", op, targetID, api.ErrConflict)
	}
	if prior.ID == "" {
		// An edge without a server id is an optimistic insert still awaiting
		// confirmation; there is nothing to address the call at yet.
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", op, targetID, api.ErrConflict)
	}
	apply(prior)
	s.mu.Unlock()

	if err := call(ctx, prior.ID); err != nil {
		s.mu.Lock()
		rollback(prior)
		s.mu.Unlock()
		return s.mutationFailed(op, targetID, err)
	}

	if s.closed.Load() {
		return ErrClosed
	}

	s.writeThrough(ctx)
	return nil
}

func expectedStateFor(op string) models.EdgeState {
	switch op {
	case "accept", "reject":
		return models.EdgePendingIncoming
	case "cancel request":
		return models.EdgePendingOutgoing
	default:
		return models.EdgeAccepted
	}
}

func (s *Store) mutationFailed(op, targetID string, err error) error {
	if errors.Is(err, api.ErrConflict) {
		s.conflict(op, targetID)
	} else {
		s.notify(events.Notice{Kind: events.NoticeActionFailed, Message: op + " failed"})
	}
	return fmt.Errorf("%s %s: %w", op, targetID, err)
}

// conflict handles a local/remote edge-state mismatch: the optimistic change
// is already discarded by the caller, a resync is forced, and the user is
// told the action no longer applies.
func (s *Store) conflict(op, targetID string) {
	s.logger.Warn("edge state conflict", "op", op, "targetId", targetID)
	s.notify(events.Notice{Kind: events.NoticeActionInvalid, Message: "this action is no longer valid"})
	s.scheduleRefresh()
}

// scheduleRefresh triggers one background reload unless one is already
// running.
func (s *Store) scheduleRefresh() {
	if !s.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.refreshing.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := s.Load(ctx); err != nil {
			s.logger.Warn("background refresh failed", "error", err)
		}
	}()
}

func (s *Store) serveFromCache(ctx context.Context) View {
	view := View{Source: SourceCache}
	oldest := s.now()
	found := false

	load := func(key string, dst *[]models.FriendshipEdge) {
		entry, err := cache.Get[[]models.FriendshipEdge](ctx, s.cache, key)
		if err != nil {
			return
		}
		*dst = entry.Value
		found = true
		if entry.FetchedAt.Before(oldest) {
			oldest = entry.FetchedAt
		}
	}

	load(cache.KeyFriends, &view.Friends)
	load(cache.KeyPendingIncoming, &view.PendingIncoming)
	load(cache.KeyPendingOutgoing, &view.PendingOutgoing)

	view.Stale = !found || s.now().Sub(oldest) >= s.ttl

	if found {
		// The working copy must not share backing arrays with the served
		// view; later in-place mutations would corrupt views already handed
		// out.
		s.mu.Lock()
		s.view = models.Relationships{
			Friends:         append([]models.FriendshipEdge(nil), view.Friends...),
			PendingIncoming: append([]models.FriendshipEdge(nil), view.PendingIncoming...),
			PendingOutgoing: append([]models.FriendshipEdge(nil), view.PendingOutgoing...),
		}
		s.mu.Unlock()
	}

	return view
}

// writeThrough persists the current view, one key per sublist.
func (s *Store) writeThrough(ctx context.Context) {
	snap := s.snapshot()

	persist := func(key string, list []models.FriendshipEdge) {
		if err := cache.Set(ctx, s.cache, key, list); err != nil {
			s.logger.Warn("cache write failed", "key", key, "error", err)
		}
	}

	persist(cache.KeyFriends, snap.Friends)
	persist(cache.KeyPendingIncoming, snap.PendingIncoming)
	persist(cache.KeyPendingOutgoing, snap.PendingOutgoing)
}

func (s *Store) snapshot() models.Relationships {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Relationships{
		Friends:         append([]models.FriendshipEdge(nil), s.view.Friends...),
		PendingIncoming: append([]models.FriendshipEdge(nil), s.view.PendingIncoming...),
		PendingOutgoing: append([]models.FriendshipEdge(nil), s.view.PendingOutgoing...),
	}
}

func (s *Store) notify(notice events.Notice) {
	if s.bus != nil {
		s.bus.Publish(events.TopicNotice, notice)
	}
}

func (s *Store) stateOfLocked(targetID string) models.EdgeState {
	if _, ok := findEdge(s.view.Friends, targetID); ok {
		return models.EdgeAccepted
	}
	if _, ok := findEdge(s.view.PendingIncoming, targetID); ok {
		return models.EdgePendingIncoming
	}
	if _, ok := findEdge(s.view.PendingOutgoing, targetID); ok {
		return models.EdgePendingOutgoing
	}
	return models.EdgeNone
}

func (s *Store) edgeInStateLocked(targetID string, state models.EdgeState) (models.FriendshipEdge, bool) {
	var list []models.FriendshipEdge
	switch state {
	case models.EdgeAccepted:
		list = s.view.Friends
	case models.EdgePendingIncoming:
		list = s.view.PendingIncoming
	case models.EdgePendingOutgoing:
		list = s.view.PendingOutgoing
	}
	return findEdge(list, targetID)
}

// recoverable reports whether a load failure should be absorbed by the cache
// path: unreachable network, timeout, or a 5xx.
func (s *Store) recoverable(err error) bool {
	if api.Unavailable(err) {
		return true
	}
	var apiErr *api.Error
	return errors.As(err, &apiErr) && apiErr.IsServerError()
}

func findEdge(list []models.FriendshipEdge, targetID string) (models.FriendshipEdge, bool) {
	for _, edge := range list {
		if edge.User.ID == targetID {
			return edge, true
		}
	}
	return models.FriendshipEdge{}, false
}

func removeEdge(list []models.FriendshipEdge, targetID string) []models.FriendshipEdge {
	out := list[:0]
	for _, edge := range list {
		if edge.User.ID != targetID {
			out = append(out, edge)
		}
	}
	return out
}

func replaceEdge(list []models.FriendshipEdge, targetID string, edge models.FriendshipEdge) []models.FriendshipEdge {
	for i := range list {
		if list[i].User.ID == targetID {
			list[i] = edge
			return list
		}
	}
	return append(list, edge)
}
