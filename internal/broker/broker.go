// Package broker implements the matchmaking engine: it admits waiting
// participants, pairs them into rooms, relays traffic inside a pairing
// and tears pairings down on disconnect or report.
//
// Each Broker is a single shard. All state lives behind one goroutine
// fed by a command channel, so every public operation executes as an
// indivisible step and no caller can observe a half-updated pool or
// room table.
package broker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/bangvv/chatappcloudflare/internal/metrics"
	"github.com/bangvv/chatappcloudflare/internal/protocol"
)

const (
	commandBufferSize = 256
	commandTimeout    = 5 * time.Second
	stopTimeout       = 10 * time.Second
)

// brokerCmd is the command interface for the Broker actor.
type brokerCmd interface{ isBrokerCmd() }

type baseBrokerCmd struct{}

func (baseBrokerCmd) isBrokerCmd() {}

type admitCmd struct {
	baseBrokerCmd
	profile Profile
	conn    Conn
	reply   chan uuid.UUID
}

type messageCmd struct {
	baseBrokerCmd
	sessionID uuid.UUID
	data      []byte
}

type disconnectCmd struct {
	baseBrokerCmd
	sessionID uuid.UUID
	code      int
	reason    string
}

type statsCmd struct {
	baseBrokerCmd
	reply chan Stats
}

type stopCmd struct {
	baseBrokerCmd
}

// Stats is a point-in-time snapshot of one shard.
type Stats struct {
	Shard   string `json:"shard"`
	Waiting int    `json:"waiting"`
	Rooms   int    `json:"rooms"`
}

// Broker owns the waiting pool and room table of one shard.
type Broker struct {
	name     string
	overflow int
	clock    clockwork.Clock

	cmdCh chan brokerCmd
	done  chan struct{}

	// Actor-confined state. Touched only by the run goroutine.
	waiting  []*Session
	rooms    map[uuid.UUID]*Room
	sessions map[uuid.UUID]*Session
}

// New creates a shard broker and starts its command loop.
// overflowThreshold is the waiting-pool size above which any two
// sessions are force-paired regardless of preference.
func New(name string, overflowThreshold int, clock clockwork.Clock) *Broker {
	b := &Broker{
		name:     name,
		overflow: overflowThreshold,
		clock:    clock,
		cmdCh:    make(chan brokerCmd, commandBufferSize),
		done:     make(chan struct{}),
		rooms:    make(map[uuid.UUID]*Room),
		sessions: make(map[uuid.UUID]*Session),
	}
	go b.run()
	return b
}

// Name returns the shard name this broker serves.
func (b *Broker) Name() string { return b.name }

// Admit registers a new participant, places it in the waiting pool and
// triggers a matching pass. It returns the allocated session id, or an
// error if the broker did not answer within the command timeout.
func (b *Broker) Admit(profile Profile, conn Conn) (uuid.UUID, error) {
	reply := make(chan uuid.UUID, 1)
	b.cmdCh <- admitCmd{profile: profile, conn: conn, reply: reply}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case id := <-reply:
		return id, nil
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("admit command timed out after %v", commandTimeout)
	}
}

// HandleMessage dispatches a raw inbound payload for the given session.
// Malformed and unknown payloads are silently discarded.
func (b *Broker) HandleMessage(sessionID uuid.UUID, data []byte) {
	b.cmdCh <- messageCmd{sessionID: sessionID, data: data}
}

// HandleDisconnect tears down whatever the session occupies: its
// waiting-pool slot, or its room together with a partner notification.
func (b *Broker) HandleDisconnect(sessionID uuid.UUID, code int, reason string) {
	b.cmdCh <- disconnectCmd{sessionID: sessionID, code: code, reason: reason}
}

// Stats returns a snapshot of the shard. Because commands are processed
// in order, Stats also acts as a barrier: it returns only after every
// previously submitted command has been handled.
func (b *Broker) Stats() Stats {
	reply := make(chan Stats, 1)
	b.cmdCh <- statsCmd{reply: reply}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case s := <-reply:
		return s
	case <-timer.Chan():
		slog.Warn("Stats command timed out", "shard", b.name, "timeout", commandTimeout)
		return Stats{Shard: b.name, Waiting: -1, Rooms: -1}
	}
}

// Stop shuts the broker down, closing every remaining connection.
// Blocks until the command loop has exited or the stop timeout passes.
func (b *Broker) Stop() {
	b.cmdCh <- stopCmd{}

	timer := b.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-b.done:
		slog.Info("Broker stopped", "shard", b.name)
	case <-timer.Chan():
		slog.Warn("Broker stop timeout exceeded", "shard", b.name, "timeout", stopTimeout)
	}
}

func (b *Broker) run() {
	defer close(b.done)

	for cmd := range b.cmdCh {
		if _, ok := cmd.(stopCmd); ok {
			b.handleStop()
			return
		}
		b.dispatch(cmd)
		metrics.BrokerCommandChannelDepth.WithLabelValues(b.name).Set(float64(len(b.cmdCh)))
	}
}

// dispatch runs one command with panic isolation: a failure while
// handling one session must not corrupt the pool or room table for the
// others, so the offending session is evicted and its connection closed
// with the generic internal fault code.
func (b *Broker) dispatch(cmd brokerCmd) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broker command panic recovered", "shard", b.name, "panic", r, "command_type", fmt.Sprintf("%T", cmd))
			metrics.BrokerPanicsTotal.Inc()
			b.evictAfterPanic(cmd)
		}
	}()

	switch c := cmd.(type) {
	case admitCmd:
		b.handleAdmit(c)
	case messageCmd:
		b.handleMessage(c)
	case disconnectCmd:
		b.handleDisconnect(c)
	case statsCmd:
		c.reply <- Stats{Shard: b.name, Waiting: len(b.waiting), Rooms: len(b.rooms)}
	default:
		slog.Warn("Broker received unknown command type", "shard", b.name, "command_type", fmt.Sprintf("%T", cmd))
	}
}

func (b *Broker) handleAdmit(c admitCmd) {
	s := &Session{
		ID:      uuid.New(),
		Profile: c.profile,
		Conn:    c.conn,
		state:   StateWaiting,
	}
	b.sessions[s.ID] = s
	b.waiting = append(b.waiting, s)

	// Reply before matching so a panic inside tryMatch cannot strand the caller.
	c.reply <- s.ID

	slog.Info("Session admitted",
		"shard", b.name,
		"session_id", s.ID.String(),
		"remote_addr", s.Profile.RemoteAddr,
		"waiting", len(b.waiting),
	)
	metrics.SessionsAdmittedTotal.WithLabelValues(b.name).Inc()

	b.tryMatch()
	b.updateGauges()
}

func (b *Broker) handleMessage(c messageCmd) {
	s, ok := b.sessions[c.sessionID]
	if !ok {
		return
	}

	ev, ok := protocol.DecodeInbound(c.data)
	if !ok {
		metrics.DiscardedPayloadsTotal.WithLabelValues(b.name).Inc()
		return
	}

	switch e := ev.(type) {
	case protocol.ChatInbound:
		b.relayChat(s, e.RoomID, e.Message)
	case protocol.ReportInbound:
		b.handleReport(s)
	}
	b.updateGauges()
}

func (b *Broker) handleDisconnect(c disconnectCmd) {
	s, ok := b.sessions[c.sessionID]
	if !ok {
		return
	}

	slog.Info("Session disconnected",
		"shard", b.name,
		"session_id", s.ID.String(),
		"state", s.state.String(),
		"close_code", c.code,
		"close_reason", c.reason,
	)

	switch s.state {
	case StateWaiting:
		b.removeWaiting(s.ID)
	case StatePaired:
		b.notifyPartnerLeft(s)
		b.removeRoom(s.roomID)
	}

	// The room teardown above already evicts both members; this covers
	// the waiting case and the defensive room-missing case.
	s.state = StateClosed
	delete(b.sessions, s.ID)
	b.updateGauges()
}

func (b *Broker) handleStop() {
	slog.Info("Broker shutting down", "shard", b.name, "waiting", len(b.waiting), "rooms", len(b.rooms))

	for _, s := range b.sessions {
		s.state = StateClosed
		s.Conn.Close(protocol.CloseInternalError, "server shutting down")
	}
	b.waiting = nil
	b.rooms = make(map[uuid.UUID]*Room)
	b.sessions = make(map[uuid.UUID]*Session)
	b.updateGauges()
}

// notifyPartnerLeft sends a partner_left notice to the other member of
// the leaver's room, best-effort. A missing room or partner is a no-op.
func (b *Broker) notifyPartnerLeft(leaver *Session) {
	room, ok := b.rooms[leaver.roomID]
	if !ok {
		return
	}
	partner := room.partnerOf(leaver.ID)
	if partner == nil || !partner.Conn.IsOpen() {
		return
	}

	payload, err := protocol.PartnerLeft()
	if err != nil {
		slog.Error("Failed to marshal partner_left event", "error", err)
		return
	}
	if err := partner.Conn.Send(payload); err != nil {
		slog.Debug("Failed to notify partner of disconnect", "shard", b.name, "session_id", partner.ID.String(), "error", err)
		metrics.PartnerNotifyFailures.WithLabelValues(b.name).Inc()
	}
}

// removeWaiting drops the session with the given id from the pool,
// preserving the order of the rest.
func (b *Broker) removeWaiting(sessionID uuid.UUID) {
	for i, s := range b.waiting {
		if s.ID == sessionID {
			b.waiting = append(b.waiting[:i], b.waiting[i+1:]...)
			return
		}
	}
}

// removeRoom deletes the room and evicts both members from the session
// table. Missing rooms are tolerated as a no-op.
func (b *Broker) removeRoom(roomID uuid.UUID) {
	room, ok := b.rooms[roomID]
	if !ok {
		return
	}
	delete(b.rooms, roomID)
	for _, member := range room.members() {
		member.state = StateClosed
		delete(b.sessions, member.ID)
	}
	slog.Info("Room removed", "shard", b.name, "room_id", roomID.String())
}

// evictAfterPanic isolates a failed command to its own session.
func (b *Broker) evictAfterPanic(cmd brokerCmd) {
	var sessionID uuid.UUID
	var conn Conn

	switch c := cmd.(type) {
	case admitCmd:
		conn = c.conn
		// The reply may not have been sent yet; never leave the caller hanging.
		select {
		case c.reply <- uuid.Nil:
		default:
		}
		// The session may already be in the pool if the panic hit mid-match.
		for id, s := range b.sessions {
			if s.Conn == c.conn {
				sessionID = id
				break
			}
		}
	case messageCmd:
		sessionID = c.sessionID
	case disconnectCmd:
		sessionID = c.sessionID
	default:
		return
	}

	if s, ok := b.sessions[sessionID]; ok {
		conn = s.Conn
		if s.state == StateWaiting {
			b.removeWaiting(s.ID)
		} else if s.state == StatePaired {
			b.removeRoom(s.roomID)
		}
		s.state = StateClosed
		delete(b.sessions, s.ID)
	}
	if conn != nil {
		conn.Close(protocol.CloseInternalError, "internal error")
	}
	b.updateGauges()
}

func (b *Broker) updateGauges() {
	metrics.WaitingSessions.WithLabelValues(b.name).Set(float64(len(b.waiting)))
	metrics.ActiveRooms.WithLabelValues(b.name).Set(float64(len(b.rooms)))
}
