package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/bangvv/chatappcloudflare/internal/broker"
	"github.com/bangvv/chatappcloudflare/internal/correlation"
	apperrors "github.com/bangvv/chatappcloudflare/internal/errors"
	"github.com/bangvv/chatappcloudflare/internal/metrics"
	"github.com/bangvv/chatappcloudflare/internal/protocol"
	"github.com/bangvv/chatappcloudflare/internal/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // anonymous chat, no origin restriction
	},
}

// handleChat upgrades the request to a WebSocket, admits the
// participant to the shard selected by its region key, and pumps
// inbound frames into the broker until the connection closes.
func (s *Server) handleChat(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		return apperrors.RateLimitedError("connection limit reached").WithContext("reason", string(reason))
	}
	defer s.limits.Release(ip)

	// All attributes are caller-supplied and opaque; missing fields
	// pass through as empty values rather than being rejected.
	profile := broker.Profile{
		Name:       c.QueryParam("name"),
		Age:        c.QueryParam("age"),
		Gender:     c.QueryParam("gender"),
		LookingFor: c.QueryParam("lookingFor"),
		Region:     c.QueryParam("region"),
		RemoteAddr: ip,
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrader has already written the HTTP error response.
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		return nil
	}

	ctx := correlation.WithID(c.Request().Context(), correlation.NewID())

	conn := transport.NewConn(ws, s.clock)
	shard := s.shards.Get(profile.Region)

	sessionID, err := shard.Admit(profile, conn)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to admit session", "shard", shard.Name(), "error", err)
		conn.Close(protocol.CloseInternalError, "internal error")
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		return nil
	}

	metrics.WebSocketConnectionsTotal.WithLabelValues("success").Inc()
	metrics.WebSocketConnectionsCurrent.Inc()
	defer metrics.WebSocketConnectionsCurrent.Dec()

	slog.InfoContext(ctx, "WebSocket connected", "shard", shard.Name(), "session_id", sessionID.String())

	// Read pump — blocks until the connection closes.
	for {
		_, data, readErr := ws.ReadMessage()
		if readErr != nil {
			code, reason := closeDetails(readErr)
			shard.HandleDisconnect(sessionID, code, reason)
			conn.Close(websocket.CloseNormalClosure, "")
			slog.InfoContext(ctx, "WebSocket closed", "session_id", sessionID.String(), "close_code", code)
			return nil
		}
		shard.HandleMessage(sessionID, data)
	}
}

func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
