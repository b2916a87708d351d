// Package server exposes the HTTP surface: the WebSocket chat endpoint
// that feeds the shard brokers, plus health, metrics and version
// endpoints.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/bangvv/chatappcloudflare/internal/broker"
	"github.com/bangvv/chatappcloudflare/internal/config"
	apperrors "github.com/bangvv/chatappcloudflare/internal/errors"
)

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	shards    *broker.Registry
	limits    *ConnectionLimits
	clock     clockwork.Clock
	startTime time.Time
}

func NewServer(cfg *config.Config, shards *broker.Registry, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:   e,
		config: cfg,
		shards: shards,
		limits: NewConnectionLimits(cfg.MaxWebSocketConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionRatePerIP, cfg.ConnectionBurstPerIP),
		clock:  clock,

		startTime: clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
