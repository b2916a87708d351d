package broker

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/bangvv/chatappcloudflare/internal/metrics"
	"github.com/bangvv/chatappcloudflare/internal/protocol"
)

// matchMode labels how a pairing came about, for metrics.
type matchMode string

const (
	matchPreference matchMode = "preference"
	matchOverflow   matchMode = "overflow"
)

// tryMatch scans the waiting pool for the first compatible pair (i, j)
// with i < j and repeats until no further pair is found. First-fit in
// arrival order. Each pairing shrinks the pool by two, so the scan
// always terminates.
func (b *Broker) tryMatch() {
	for i := 0; i < len(b.waiting); i++ {
		for j := i + 1; j < len(b.waiting); j++ {
			ok, mode := b.canMatch(b.waiting[i], b.waiting[j])
			if !ok {
				continue
			}

			a, p := b.waiting[i], b.waiting[j]
			// Remove the higher index first so the lower stays valid.
			b.waiting = append(b.waiting[:j], b.waiting[j+1:]...)
			b.waiting = append(b.waiting[:i], b.waiting[i+1:]...)
			b.createRoom(a, p, mode)

			// The pool shrank; rescan from the same outer position.
			i--
			break
		}
	}
}

// canMatch reports whether two waiting sessions may be paired: either
// both preferences are mutually satisfied, or the pool has grown past
// the overflow threshold and any two sessions are forced together.
// Pool size is read at scan time, not from a snapshot.
func (b *Broker) canMatch(a, p *Session) (bool, matchMode) {
	if a.Profile.LookingFor == p.Profile.Gender && p.Profile.LookingFor == a.Profile.Gender {
		return true, matchPreference
	}
	if len(b.waiting) > b.overflow {
		return true, matchOverflow
	}
	return false, ""
}

// createRoom binds two sessions into a new room and notifies both with
// the partner's public profile and the shared room id.
func (b *Broker) createRoom(a, p *Session, mode matchMode) {
	room := &Room{ID: uuid.New(), A: a, B: p}
	b.rooms[room.ID] = room

	a.state, p.state = StatePaired, StatePaired
	a.roomID, p.roomID = room.ID, room.ID

	b.notifyMatched(a, p, room.ID)
	b.notifyMatched(p, a, room.ID)

	slog.Info("Room created",
		"shard", b.name,
		"room_id", room.ID.String(),
		"session_a", a.ID.String(),
		"session_b", p.ID.String(),
		"mode", string(mode),
	)
	metrics.MatchesTotal.WithLabelValues(b.name, string(mode)).Inc()
}

func (b *Broker) notifyMatched(to, partner *Session, roomID uuid.UUID) {
	if !to.Conn.IsOpen() {
		return
	}

	payload, err := protocol.Matched(partner.Profile.Public(), roomID)
	if err != nil {
		slog.Error("Failed to marshal matched event", "error", err)
		return
	}
	if err := to.Conn.Send(payload); err != nil {
		slog.Debug("Failed to deliver matched event", "shard", b.name, "session_id", to.ID.String(), "error", err)
		metrics.PartnerNotifyFailures.WithLabelValues(b.name).Inc()
	}
}
