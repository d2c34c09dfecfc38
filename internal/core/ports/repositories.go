package ports

import (
	"context"

	"paircall/internal/core/domain"
)

// RoomRegistry owns room membership. Implementations must serialize
// membership mutations per room so concurrent join/leave on the same key
// never lose updates.
type RoomRegistry interface {
	// Join adds the connection to the room, creating the room if absent.
	// Returns whether the caller is the initiator (first member) and the
	// membership size after the join. Returns domain.ErrRoomFull when the
	// room already holds two members.
	Join(ctx context.Context, room string, id domain.ConnID, name string) (initiator bool, size int, err error)

	// Leave removes the connection from whatever room it joined and
	// returns that room's name and remaining size. The room entry is
	// deleted when the size reaches zero. Unknown connections return
	// domain.ErrConnNotFound.
	Leave(ctx context.Context, id domain.ConnID) (room string, remaining int, err error)

	// Participants returns the room's members ordered by join time.
	Participants(ctx context.Context, room string) ([]domain.Participant, error)

	// RoomOf returns the room a connection belongs to.
	RoomOf(ctx context.Context, id domain.ConnID) (string, error)

	// Rooms returns the number of live rooms.
	Rooms(ctx context.Context) (int, error)
}
