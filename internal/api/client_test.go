package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/campusfeed/syncd/internal/events"
	"github.com/campusfeed/syncd/internal/models"
)

type stubReporter struct {
	mu       sync.Mutex
	statuses []bool
}

func (r *stubReporter) SetOnline(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, online)
}

func (r *stubReporter) last() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return false, false
	}
	return r.statuses[len(r.statuses)-1], true
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *events.Bus, *stubReporter) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	bus := events.NewBus()
	reporter := &stubReporter{}
	client := NewClient(Config{
		BaseURL:     server.URL,
		BearerToken: "token-123",
	}, bus, reporter)

	return client, bus, reporter
}

func TestClientSendsAuthAndRequestIDHeaders(t *testing.T) {
	var gotAuth, gotRequestID string
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-Id")
		_ = json.NewEncoder(w).Encode(models.Relationships{})
	}))

	if _, err := client.Relationships(context.Background()); err != nil {
		t.Fatalf("relationships: %v", err)
	}
	if gotAuth != "Bearer token-123" {
		t.Fatalf("unexpected authorization header: %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatal("expected a request id header")
	}
}

func TestClientRelationshipsNormalizesStates(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.Relationships{
			Friends:         []models.FriendshipEdge{{ID: "e1", User: models.UserSummary{ID: "u1"}}},
			PendingIncoming: []models.FriendshipEdge{{ID: "e2", User: models.UserSummary{ID: "u2"}}},
			PendingOutgoing: []models.FriendshipEdge{{ID: "e3", User: models.UserSummary{ID: "u3"}}},
		})
	}))

	view, err := client.Relationships(context.Background())
	if err != nil {
		t.Fatalf("relationships: %v", err)
	}
	if view.Friends[0].State != models.EdgeAccepted {
		t.Fatalf("expected accepted state got %q", view.Friends[0].State)
	}
	if view.PendingIncoming[0].State != models.EdgePendingIncoming {
		t.Fatalf("expected pending incoming state got %q", view.PendingIncoming[0].State)
	}
	if view.PendingOutgoing[0].State != models.EdgePendingOutgoing {
		t.Fatalf("expected pending outgoing state got %q", view.PendingOutgoing[0].State)
	}
}

func TestClientSendRequestStampsOutgoingState(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["targetId"] != "u7" {
			t.Errorf("unexpected target: %q", body["targetId"])
		}
		_ = json.NewEncoder(w).Encode(models.FriendshipEdge{ID: "e7", User: models.UserSummary{ID: "u7"}})
	}))

	edge, err := client.SendRequest(context.Background(), "u7")
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	if edge.ID != "e7" || edge.State != models.EdgePendingOutgoing {
		t.Fatalf("unexpected edge: %+v", edge)
	}
}

func TestClientConflictStatus(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	err := client.Accept(context.Background(), "e1")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict got %v", err)
	}
}

func TestClientUnauthorizedPublishesEvent(t *testing.T) {
	client, bus, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	var mu sync.Mutex
	var published []events.Unauthorized
	bus.Subscribe(events.TopicUnauthorized, func(ev events.Event) {
		mu.Lock()
		published = append(published, ev.Payload.(events.Unauthorized))
		mu.Unlock()
	})

	_, err := client.Notifications(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(published) != 1 || published[0].Path != "/notifications" {
		t.Fatalf("unexpected unauthorized events: %+v", published)
	}
}

func TestClientServerErrorCarriesStatusAndMessage(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "storage down"})
	}))

	_, err := client.Notifications(context.Background())

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error got %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Message != "storage down" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if !apiErr.IsServerError() {
		t.Fatal("expected server error classification")
	}
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BaseURL:        server.URL,
		RequestTimeout: 20 * time.Millisecond,
	}, nil, nil)

	_, err := client.Relationships(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout got %v", err)
	}
}

func TestClientTransportFailureReportsOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	reporter := &stubReporter{}
	client := NewClient(Config{BaseURL: server.URL}, nil, reporter)

	_, err := client.Relationships(context.Background())
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("expected offline got %v", err)
	}
	online, ok := reporter.last()
	if !ok || online {
		t.Fatalf("expected offline report got online=%v recorded=%v", online, ok)
	}
}

func TestClientParentCancellationNotReportedOffline(t *testing.T) {
	started := make(chan struct{})
	client, _, reporter := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.Relationships(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to surface got %v", err)
	}
	if errors.Is(err, ErrOffline) {
		t.Fatalf("expected cancellation not to classify as offline: %v", err)
	}
	if _, recorded := reporter.last(); recorded {
		t.Fatal("expected no connectivity report for a canceled request")
	}
}

func TestClientAnyResponseReportsOnline(t *testing.T) {
	client, _, reporter := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	if _, err := client.Notifications(context.Background()); err == nil {
		t.Fatal("expected an error for 502")
	}
	online, ok := reporter.last()
	if !ok || !online {
		t.Fatalf("expected online report got online=%v recorded=%v", online, ok)
	}
}

func TestClientProbe(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	if !client.Probe(context.Background()) {
		t.Fatal("expected any response to count as reachable")
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	down.Close()
	unreachable := NewClient(Config{BaseURL: down.URL}, nil, nil)
	if unreachable.Probe(context.Background()) {
		t.Fatal("expected refused connection to count as unreachable")
	}
}

func TestClientSuggestionsPagination(t *testing.T) {
	var gotPage, gotLimit string
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPage = r.URL.Query().Get("page")
		gotLimit = r.URL.Query().Get("limit")
		_ = json.NewEncoder(w).Encode(map[string][]models.UserSummary{
			"suggestions": {{ID: "u1"}},
		})
	}))

	batch, err := client.Suggestions(context.Background(), 2, 20)
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if gotPage != "2" || gotLimit != "20" {
		t.Fatalf("unexpected pagination: page=%q limit=%q", gotPage, gotLimit)
	}
	if len(batch) != 1 || batch[0].ID != "u1" {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}
