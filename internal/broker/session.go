package broker

import (
	"github.com/google/uuid"

	"github.com/bangvv/chatappcloudflare/internal/protocol"
)

// Conn is the broker's view of one bidirectional client connection.
// Implementations are supplied by the transport layer; the broker never
// constructs one. Send is fire-and-forget and must not block.
type Conn interface {
	Send(data []byte) error
	Close(code int, reason string)
	IsOpen() bool
}

// State tracks where a session currently lives.
type State int

const (
	// StateWaiting means the session sits in the waiting pool, unpaired.
	StateWaiting State = iota
	// StatePaired means the session is a member of exactly one room.
	StatePaired
	// StateClosed is terminal; the session is gone from all collections.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StatePaired:
		return "paired"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Profile carries the caller-supplied attributes of a participant.
// All fields are opaque to the broker; no validation beyond presence.
type Profile struct {
	Name       string
	Age        string
	Gender     string
	LookingFor string
	Region     string
	// RemoteAddr is used only for moderation logging, never disclosed to a peer.
	RemoteAddr string
}

// Public returns the slice of the profile a matched partner may see.
func (p Profile) Public() protocol.PartnerInfo {
	return protocol.PartnerInfo{Name: p.Name, Gender: p.Gender}
}

// Session is the broker's record of one connected participant.
// All fields except ID and Profile are mutated only by the owning
// broker goroutine.
type Session struct {
	ID      uuid.UUID
	Profile Profile
	Conn    Conn

	state  State
	roomID uuid.UUID
}
