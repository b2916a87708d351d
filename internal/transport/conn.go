// Package transport adapts a gorilla WebSocket connection to the
// broker's Conn interface: a dedicated write goroutine drains a
// buffered send channel, keeps the peer alive with pings and enforces
// write deadlines. The broker itself never touches the socket.
package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/bangvv/chatappcloudflare/internal/broker"
	"github.com/bangvv/chatappcloudflare/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

var (
	// ErrClosed is returned by Send after the connection has been closed.
	ErrClosed = errors.New("connection closed")
	// ErrBufferFull is returned by Send when the outbound buffer is full.
	// The message is dropped; delivery is best-effort by contract.
	ErrBufferFull = errors.New("send buffer full")
)

// Conn wraps a WebSocket connection behind the broker's Conn interface.
type Conn struct {
	ws    *websocket.Conn
	clock clockwork.Clock

	sendCh   chan []byte
	doneCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	open     atomic.Bool
}

var _ broker.Conn = (*Conn)(nil)

// NewConn wraps an upgraded WebSocket connection and starts its writer.
func NewConn(ws *websocket.Conn, clock clockwork.Clock) *Conn {
	c := &Conn{
		ws:     ws,
		clock:  clock,
		sendCh: make(chan []byte, messageBufferSize),
		doneCh: make(chan struct{}),
	}
	c.open.Store(true)
	c.configurePongHandler()
	c.wg.Add(1)
	go c.run()
	return c
}

// Send queues a message for delivery without blocking. A full buffer or
// closed connection drops the message and reports the reason.
func (c *Conn) Send(data []byte) error {
	if !c.open.Load() {
		return ErrClosed
	}
	select {
	case c.sendCh <- data:
		return nil
	default:
		metrics.WebSocketSendDrops.Inc()
		return ErrBufferFull
	}
}

// IsOpen reports whether the connection still accepts sends.
func (c *Conn) IsOpen() bool {
	return c.open.Load()
}

// Close writes a close frame with the given code and reason, then tears
// the connection down. Safe to call more than once.
func (c *Conn) Close(code int, reason string) {
	c.stopOnce.Do(func() {
		c.open.Store(false)

		// Stop the writer before touching the socket: gorilla permits
		// only one concurrent writer.
		close(c.doneCh)
		c.wg.Wait()

		msg := websocket.FormatCloseMessage(code, reason)
		c.updateWriteDeadline()
		_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
		_ = c.ws.Close()
	})
}

func (c *Conn) run() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case msg, ok := <-c.sendCh:
			if !ok {
				return
			}
			c.updateWriteDeadline()
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.open.Store(false)
				return
			}
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				c.open.Store(false)
				return
			}
		case <-c.doneCh:
			return
		}
	}
}

func (c *Conn) configurePongHandler() {
	c.updateReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		return nil
	})
}

func (c *Conn) updateWriteDeadline() {
	_ = c.ws.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *Conn) updateReadDeadline() {
	_ = c.ws.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}
