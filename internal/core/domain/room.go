package domain

import "time"

// ConnID identifies one signaling connection. Assigned by the coordinator
// at join time; a browser tab that rejoins gets a fresh ID.
type ConnID string

// Room tracks the membership of one named call room. Rooms are transient:
// created on first join, deleted when the last member leaves.
type Room struct {
	Name         string
	Participants []Participant
	CreatedAt    time.Time
}

// Participant is one room member, in join order.
type Participant struct {
	ID       ConnID    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"-"`
}

// RoomCapacity is the number of members a room holds. A third joiner is
// rejected outright rather than left in the ambiguous no-initiator state.
const RoomCapacity = 2

// Size returns the current member count.
func (r *Room) Size() int {
	return len(r.Participants)
}

// Member reports whether the connection is part of the room.
func (r *Room) Member(id ConnID) bool {
	for _, p := range r.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}
