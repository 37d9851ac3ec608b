package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusfeed/syncd/internal/api"
	"github.com/campusfeed/syncd/internal/cache"
	"github.com/campusfeed/syncd/internal/config"
	"github.com/campusfeed/syncd/internal/connectivity"
	"github.com/campusfeed/syncd/internal/db"
	"github.com/campusfeed/syncd/internal/events"
	"github.com/campusfeed/syncd/internal/handlers"
	"github.com/campusfeed/syncd/internal/logging"
	"github.com/campusfeed/syncd/internal/middleware"
	"github.com/campusfeed/syncd/internal/models"
	"github.com/campusfeed/syncd/internal/notifications"
	"github.com/campusfeed/syncd/internal/poll"
	"github.com/campusfeed/syncd/internal/relationships"
)

// engine aggregates the wired components of the sync engine.
type engine struct {
	bus       *events.Bus
	monitor   *connectivity.Monitor
	client    *api.Client
	graph     *relationships.Store
	feed      *relationships.Feed
	inbox     *notifications.Channel
	scheduler *poll.Scheduler

	pool        *pgxpool.Pool
	unsubscribe []func()
}

// buildEngine wires together concrete implementations of every component.
func buildEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (*engine, error) {
	bus := events.NewBus()
	monitor := connectivity.NewMonitor(bus, logger)

	client := api.NewClient(api.Config{
		BaseURL:        cfg.APIBaseURL,
		BearerToken:    cfg.BearerToken,
		RequestTimeout: cfg.RequestTimeout,
		RatePerSecond:  cfg.OutboundRatePerSec,
	}, bus, monitor)

	var (
		store cache.Store
		pool  *pgxpool.Pool
	)
	switch cfg.CacheBackend {
	case config.CacheBackendPostgres:
		var err error
		pool, err = db.Connect(ctx, cfg.DatabaseURL, db.Settings{
			MaxConns:       int32(cfg.DatabaseMaxConns),
			ConnectTimeout: cfg.DatabaseConnectTimeout,
		})
		if err != nil {
			return nil, err
		}
		pg := cache.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		store = pg
	default:
		store = cache.NewMemoryStore()
	}

	staleness := cache.New(store)
	graph := relationships.NewStore(client, staleness, monitor, bus, cfg.RelationshipTTL, logger)
	feed := relationships.NewFeed(graph, cfg.SuggestionBatchSize)
	inbox := notifications.NewChannel(client, staleness, monitor, bus, cfg.NotificationTTL, logger)

	return &engine{
		bus:       bus,
		monitor:   monitor,
		client:    client,
		graph:     graph,
		feed:      feed,
		inbox:     inbox,
		scheduler: poll.NewScheduler(logger),
		pool:      pool,
	}, nil
}

// start launches the poll channels and the connectivity probe loop.
func (e *engine) start(cfg config.Config, logger *slog.Logger) error {
	relationshipCycle := func(ctx context.Context) error {
		ctx, span := logging.StartSpan(ctx, "poll.relationships")
		defer span.End()
		_, err := e.graph.Load(ctx)
		return err
	}
	if err := e.scheduler.Schedule(handlers.ChannelRelationships, cfg.RelationshipInterval, relationshipCycle); err != nil {
		return fmt.Errorf("schedule relationship channel: %w", err)
	}

	policy := notifications.SuppressionPolicy(models.Role(cfg.ViewerRole), cfg.SuppressAdminPolling)
	notificationCycle := func(ctx context.Context) error {
		ctx, span := logging.StartSpan(ctx, "poll.notifications")
		defer span.End()
		_, err := e.inbox.Load(ctx)
		return err
	}
	if err := e.scheduler.Schedule(handlers.ChannelNotifications, cfg.NotificationInterval, notificationCycle, poll.WithSuppression(policy)); err != nil {
		return fmt.Errorf("schedule notification channel: %w", err)
	}

	e.unsubscribe = append(e.unsubscribe,
		e.bus.Subscribe(events.TopicUnauthorized, func(ev events.Event) {
			logger.Error("platform rejected credentials, session collaborator must re-authenticate", "event", ev.Payload)
		}),
		e.bus.Subscribe(events.TopicNotice, func(ev events.Event) {
			if notice, ok := ev.Payload.(events.Notice); ok {
				logger.Info("notice", "kind", notice.Kind, "message", notice.Message, "sticky", notice.Sticky)
			}
		}),
	)

	e.monitor.StartProbing(cfg.ProbeInterval, func(ctx context.Context) bool {
		return e.client.Probe(ctx)
	})

	return nil
}

// shutdown tears everything down in dependency order: timers first, so no
// poll cycle starts against closing stores.
func (e *engine) shutdown(ctx context.Context) error {
	err := e.scheduler.Shutdown(ctx)

	e.graph.Close()
	e.inbox.Close()
	e.monitor.Stop()

	for _, cancel := range e.unsubscribe {
		cancel()
	}
	if e.pool != nil {
		e.pool.Close()
	}

	return err
}

// dependencies exposes the engine to the local HTTP API.
func (e *engine) dependencies() handlers.Dependencies {
	return handlers.Dependencies{
		Graph:        e.graph,
		Suggestions:  e.feed,
		Inbox:        e.inbox,
		Scheduler:    e.scheduler,
		Connectivity: e.monitor,
		Limiter:      middleware.NewKeyRateLimiter(6, time.Minute, 3, 10*time.Minute),
	}
}
