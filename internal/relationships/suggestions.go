package relationships

import (
	"context"
	"fmt"
	"sync"

	"github.com/campusfeed/syncd/internal/api"
	"github.com/campusfeed/syncd/internal/models"
)

// Feed serves candidate connections. Suggestions are deliberately never
// cached: every load is a fresh network fetch, and anyone already holding an
// edge is filtered out of the batch.
type Feed struct {
	store *Store
	batch int

	mu   sync.Mutex
	page int
}

// NewFeed constructs a suggestion feed over the store's mutation primitives.
func NewFeed(store *Store, batch int) *Feed {
	if batch <= 0 {
		batch = 20
	}
	return &Feed{store: store, batch: batch}
}

// Load fetches the first page of candidates.
func (f *Feed) Load(ctx context.Context) ([]models.UserSummary, error) {
	f.mu.Lock()
	f.page = 0
	f.mu.Unlock()
	return f.fetch(ctx, 0)
}

// Refresh advances to the next page and fetches it fresh.
func (f *Feed) Refresh(ctx context.Context) ([]models.UserSummary, error) {
	f.mu.Lock()
	f.page++
	page := f.page
	f.mu.Unlock()
	return f.fetch(ctx, page)
}

// Request sends a friend request to a suggested user through the store, so
// the usual optimistic flow and edge preconditions apply.
func (f *Feed) Request(ctx context.Context, targetID string) error {
	return f.store.SendRequest(ctx, targetID)
}

func (f *Feed) fetch(ctx context.Context, page int) ([]models.UserSummary, error) {
	if f.store.closed.Load() {
		return nil, ErrClosed
	}
	if !f.store.online.IsOnline() {
		return nil, fmt.Errorf("load suggestions: %w", api.ErrOffline)
	}

	candidates, err := f.store.api.Suggestions(ctx, page, f.batch)
	if err != nil {
		return nil, fmt.Errorf("load suggestions: %w", err)
	}

	out := candidates[:0]
	for _, candidate := range candidates {
		if !f.store.HasEdge(candidate.ID) {
			out = append(out, candidate)
		}
	}

	return out, nil
}
