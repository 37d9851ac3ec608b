package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/campusfeed/syncd/internal/config"
	"github.com/campusfeed/syncd/internal/handlers"
)

func testConfig() config.Config {
	return config.Config{
		AppPort:      8090,
		APIBaseURL:   "http://localhost:9",
		ViewerRole:   "student",
		CacheBackend: config.CacheBackendMemory,

		RelationshipTTL:      5 * time.Minute,
		NotificationTTL:      5 * time.Minute,
		RelationshipInterval: time.Hour,
		NotificationInterval: time.Hour,
		ProbeInterval:        time.Hour,
		RequestTimeout:       time.Second,

		OutboundRatePerSec:  10,
		SuggestionBatchSize: 20,
	}
}

func TestBuildEngineMemoryBackend(t *testing.T) {
	eng, err := buildEngine(context.Background(), testConfig(), slog.Default())
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	if eng.bus == nil || eng.monitor == nil || eng.client == nil {
		t.Fatal("expected transport components wired")
	}
	if eng.graph == nil || eng.feed == nil || eng.inbox == nil || eng.scheduler == nil {
		t.Fatal("expected engine components wired")
	}
	if eng.pool != nil {
		t.Fatal("expected no database pool for the memory backend")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := eng.shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestEngineStartAndShutdown(t *testing.T) {
	cfg := testConfig()
	logger := slog.Default()

	eng, err := buildEngine(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	if err := eng.start(cfg, logger); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Both poll channels must be registered and tickable.
	for _, channel := range []string{handlers.ChannelRelationships, handlers.ChannelNotifications} {
		if _, err := eng.scheduler.Tick(channel); err != nil {
			t.Fatalf("tick %s: %v", channel, err)
		}
	}

	deps := eng.dependencies()
	if deps.Graph == nil || deps.Suggestions == nil || deps.Inbox == nil {
		t.Fatal("expected handler dependencies wired")
	}
	if deps.Scheduler == nil || deps.Connectivity == nil || deps.Limiter == nil {
		t.Fatal("expected operational dependencies wired")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eng.shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
