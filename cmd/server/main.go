package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bangvv/chatappcloudflare/internal/broker"
	"github.com/bangvv/chatappcloudflare/internal/config"
	"github.com/bangvv/chatappcloudflare/internal/logging"
	"github.com/bangvv/chatappcloudflare/internal/metrics"
	"github.com/bangvv/chatappcloudflare/internal/server"
	"github.com/bangvv/chatappcloudflare/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet at this point
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.BuildTime, runtime.Version()).Set(1)
	slog.Info("Starting", "env", cfg.AppEnv, "version", info.Version, "port", cfg.Port)

	clock := clockwork.NewRealClock()
	shards := broker.NewRegistry(cfg.RegionList(), cfg.DefaultRegion, cfg.OverflowThreshold, clock)
	srv := server.NewServer(cfg, shards, clock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
		return
	}

	// Drain HTTP first so no new sessions arrive while shards close.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}
	shards.Stop()
	slog.Info("Shutdown complete")
}
