package broker

import "github.com/google/uuid"

// Room binds exactly two paired sessions. Rooms are immutable after
// creation; teardown deletes the room as a whole.
type Room struct {
	ID uuid.UUID
	A  *Session
	B  *Session
}

// partnerOf returns the other member of the room, or nil when the given
// session is not a member.
func (r *Room) partnerOf(sessionID uuid.UUID) *Session {
	switch sessionID {
	case r.A.ID:
		return r.B
	case r.B.ID:
		return r.A
	default:
		return nil
	}
}

// members returns both sessions of the room.
func (r *Room) members() [2]*Session {
	return [2]*Session{r.A, r.B}
}
