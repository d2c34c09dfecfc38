package memory

import (
	"context"
	"sync"
	"time"

	"paircall/internal/core/domain"
	"paircall/internal/core/ports"
)

// MemoryRoomRegistry keeps room membership in process memory. One
// registry-wide mutex serializes all membership mutations, which
// trivially satisfies the per-room serialization requirement.
type MemoryRoomRegistry struct {
	rooms map[string]*domain.Room
	conns map[domain.ConnID]string
	mu    sync.RWMutex
}

func NewMemoryRoomRegistry() ports.RoomRegistry {
	return &MemoryRoomRegistry{
		rooms: make(map[string]*domain.Room),
		conns: make(map[domain.ConnID]string),
	}
}

func (r *MemoryRoomRegistry) Join(ctx context.Context, room string, id domain.ConnID, name string) (bool, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; exists {
		return false, 0, domain.ErrAlreadyJoined
	}

	entry, exists := r.rooms[room]
	if !exists {
		entry = &domain.Room{Name: room, CreatedAt: time.Now()}
		r.rooms[room] = entry
	}

	if entry.Size() >= domain.RoomCapacity {
		return false, entry.Size(), domain.ErrRoomFull
	}

	initiator := entry.Size() == 0
	entry.Participants = append(entry.Participants, domain.Participant{
		ID:       id,
		Name:     name,
		JoinedAt: time.Now(),
	})
	r.conns[id] = room

	return initiator, entry.Size(), nil
}

func (r *MemoryRoomRegistry) Leave(ctx context.Context, id domain.ConnID) (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.conns[id]
	if !exists {
		return "", 0, domain.ErrConnNotFound
	}
	delete(r.conns, id)

	entry, exists := r.rooms[room]
	if !exists {
		return room, 0, nil
	}

	for i, p := range entry.Participants {
		if p.ID == id {
			entry.Participants = append(entry.Participants[:i], entry.Participants[i+1:]...)
			break
		}
	}

	remaining := entry.Size()
	if remaining == 0 {
		// Rooms are transient; the last leaver takes the room with it.
		delete(r.rooms, room)
	}
	return room, remaining, nil
}

func (r *MemoryRoomRegistry) Participants(ctx context.Context, room string) ([]domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.rooms[room]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}

	out := make([]domain.Participant, len(entry.Participants))
	copy(out, entry.Participants)
	return out, nil
}

func (r *MemoryRoomRegistry) RoomOf(ctx context.Context, id domain.ConnID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.conns[id]
	if !exists {
		return "", domain.ErrConnNotFound
	}
	return room, nil
}

func (r *MemoryRoomRegistry) Rooms(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), nil
}
