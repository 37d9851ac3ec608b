package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/campusfeed/syncd/internal/config"
	"github.com/campusfeed/syncd/internal/handlers"
	"github.com/campusfeed/syncd/internal/httpserver"
	"github.com/campusfeed/syncd/internal/middleware"
)

// Run bootstraps the syncd daemon.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve or sync")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "sync":
		return syncOnce(ctx)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	eng, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := eng.start(cfg, logger); err != nil {
		return err
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, eng.dependencies())

	handler := middleware.RequestLogger(logger)(mux)
	srv := httpserver.New(cfg.AppPort, handler)

	logger.Info("starting local sync api", "port", cfg.AppPort, "role", cfg.ViewerRole)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	return eng.shutdown(shutdownCtx)
}

// syncOnce performs a single synchronization pass and prints the combined
// view. Useful for debugging connectivity and credentials.
func syncOnce(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	eng, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
		defer cancel()
		_ = eng.shutdown(shutdownCtx)
	}()

	view, err := eng.graph.Load(ctx)
	if err != nil {
		return fmt.Errorf("sync relationships: %w", err)
	}

	inbox, err := eng.inbox.Load(ctx)
	if err != nil {
		return fmt.Errorf("sync notifications: %w", err)
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	return out.Encode(map[string]any{
		"relationships": view,
		"notifications": inbox,
	})
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
