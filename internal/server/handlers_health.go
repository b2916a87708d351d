package server

import (
	"github.com/labstack/echo/v4"

	"github.com/bangvv/chatappcloudflare/internal/broker"
	"github.com/bangvv/chatappcloudflare/internal/version"
)

func (s *Server) handleIndex(c echo.Context) error {
	return c.JSON(200, map[string]any{
		"service": "anonymous chat",
		"chat":    "/chat",
		"health":  "/health/live",
	})
}

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := s.clock.Since(s.startTime).Seconds()
	return c.JSON(200, map[string]any{
		"status": "ok",
		"uptime": uptime,
	})
}

// handleReadiness polls every shard broker for a stats snapshot. A
// shard that fails to answer within the command timeout reports
// negative counts, which marks the instance unready.
func (s *Server) handleReadiness(c echo.Context) error {
	shards := make([]broker.Stats, 0)
	healthy := true
	for _, b := range s.shards.All() {
		stats := b.Stats()
		if stats.Waiting < 0 {
			healthy = false
		}
		shards = append(shards, stats)
	}

	if !healthy {
		return c.JSON(503, map[string]any{
			"status": "unhealthy",
			"shards": shards,
		})
	}

	return c.JSON(200, map[string]any{
		"status": "ready",
		"shards": shards,
	})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(200, version.Get())
}
