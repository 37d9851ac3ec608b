package relationships

import (
	"context"
	"errors"
	"testing"

	"github.com/campusfeed/syncd/internal/api"
	"github.com/campusfeed/syncd/internal/models"
)

func TestFeedLoadIsAlwaysFresh(t *testing.T) {
	platform := &stubAPI{suggestions: []models.UserSummary{{ID: "s1"}, {ID: "s2"}}}
	store, _ := newTestStore(platform, &stubConnectivity{online: true}, nil)
	feed := NewFeed(store, 20)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		batch, err := feed.Load(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(batch) != 2 {
			t.Fatalf("unexpected batch: %+v", batch)
		}
	}
	if platform.suggestionsN != 3 {
		t.Fatalf("expected a network call per load got %d", platform.suggestionsN)
	}
	if platform.lastPage != 0 || platform.lastLimit != 20 {
		t.Fatalf("expected page 0 limit 20 got page=%d limit=%d", platform.lastPage, platform.lastLimit)
	}
}

func TestFeedRefreshAdvancesPage(t *testing.T) {
	platform := &stubAPI{suggestions: []models.UserSummary{{ID: "s1"}}}
	store, _ := newTestStore(platform, &stubConnectivity{online: true}, nil)
	feed := NewFeed(store, 10)
	ctx := context.Background()

	if _, err := feed.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := feed.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if platform.lastPage != 1 || platform.lastLimit != 10 {
		t.Fatalf("expected page 1 limit 10 got page=%d limit=%d", platform.lastPage, platform.lastLimit)
	}

	if _, err := feed.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if platform.lastPage != 2 {
		t.Fatalf("expected page 2 got %d", platform.lastPage)
	}

	// Load rewinds to the first page.
	if _, err := feed.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if platform.lastPage != 0 {
		t.Fatalf("expected page 0 got %d", platform.lastPage)
	}
}

func TestFeedFiltersExistingEdges(t *testing.T) {
	platform := &stubAPI{
		relationships: models.Relationships{
			Friends:         []models.FriendshipEdge{edge("e1", "u1", models.EdgeAccepted)},
			PendingOutgoing: []models.FriendshipEdge{edge("e3", "u3", models.EdgePendingOutgoing)},
		},
		suggestions: []models.UserSummary{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}},
	}
	store, _ := newTestStore(platform, &stubConnectivity{online: true}, nil)
	feed := NewFeed(store, 20)
	ctx := context.Background()

	if _, err := store.Load(ctx); err != nil {
		t.Fatalf("load relationships: %v", err)
	}

	batch, err := feed.Load(ctx)
	if err != nil {
		t.Fatalf("load suggestions: %v", err)
	}
	if len(batch) != 1 || batch[0].ID != "u2" {
		t.Fatalf("expected only the unconnected candidate got %+v", batch)
	}
}

func TestFeedOffline(t *testing.T) {
	store, _ := newTestStore(&stubAPI{}, &stubConnectivity{online: false}, nil)
	feed := NewFeed(store, 20)

	if _, err := feed.Load(context.Background()); !errors.Is(err, api.ErrOffline) {
		t.Fatalf("expected offline got %v", err)
	}
}

func TestFeedClosedStore(t *testing.T) {
	store, _ := newTestStore(&stubAPI{}, &stubConnectivity{online: true}, nil)
	feed := NewFeed(store, 20)
	store.Close()

	if _, err := feed.Load(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed got %v", err)
	}
}

func TestFeedRequestGoesThroughStore(t *testing.T) {
	platform := &stubAPI{sendEdge: edge("e9", "u9", models.EdgePendingOutgoing)}
	store, _ := newTestStore(platform, &stubConnectivity{online: true}, nil)
	feed := NewFeed(store, 20)

	if err := feed.Request(context.Background(), "u9"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if store.StateOf("u9") != models.EdgePendingOutgoing {
		t.Fatalf("expected pending outgoing edge got %q", store.StateOf("u9"))
	}
}
