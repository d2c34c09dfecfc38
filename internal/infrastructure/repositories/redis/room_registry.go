package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"paircall/internal/core/domain"
	"paircall/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisRoomRegistry stores room membership as JSON blobs so multiple
// coordinator restarts do not lose rooms. Mutations are serialized by a
// process-local mutex; a single coordinator instance owns the keyspace.
type RedisRoomRegistry struct {
	client *redis.Client
	prefix string
	mu     sync.Mutex
}

func NewRedisRoomRegistry(client *redis.Client) ports.RoomRegistry {
	return &RedisRoomRegistry{
		client: client,
		prefix: "paircall:",
	}
}

func (r *RedisRoomRegistry) roomKey(room string) string {
	return r.prefix + "room:" + room
}

func (r *RedisRoomRegistry) connKey(id domain.ConnID) string {
	return r.prefix + "conn:" + string(id)
}

func (r *RedisRoomRegistry) roomsKey() string {
	return r.prefix + "rooms"
}

func (r *RedisRoomRegistry) loadRoom(ctx context.Context, room string) (*domain.Room, error) {
	data, err := r.client.Get(ctx, r.roomKey(room)).Result()
	if err == redis.Nil {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room from Redis: %w", err)
	}

	var entry domain.Room
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &entry, nil
}

func (r *RedisRoomRegistry) saveRoom(ctx context.Context, entry *domain.Room) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}
	if err := r.client.Set(ctx, r.roomKey(entry.Name), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set room in Redis: %w", err)
	}
	return r.client.SAdd(ctx, r.roomsKey(), entry.Name).Err()
}

func (r *RedisRoomRegistry) Join(ctx context.Context, room string, id domain.ConnID, name string) (bool, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if exists, err := r.client.Exists(ctx, r.connKey(id)).Result(); err != nil {
		return false, 0, fmt.Errorf("failed to check connection: %w", err)
	} else if exists > 0 {
		return false, 0, domain.ErrAlreadyJoined
	}

	entry, err := r.loadRoom(ctx, room)
	if err == domain.ErrRoomNotFound {
		entry = &domain.Room{Name: room, CreatedAt: time.Now()}
	} else if err != nil {
		return false, 0, err
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

	if err := r.saveRoom(ctx, entry); err != nil {
		return false, 0, err
	}
	if err := r.client.Set(ctx, r.connKey(id), room, 0).Err(); err != nil {
		return false, 0, fmt.Errorf("failed to map connection: %w", err)
	}
	return initiator, entry.Size(), nil
}

func (r *RedisRoomRegistry) Leave(ctx context.Context, id domain.ConnID) (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.client.Get(ctx, r.connKey(id)).Result()
	if err == redis.Nil {
		return "", 0, domain.ErrConnNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to resolve connection: %w", err)
	}
	if err := r.client.Del(ctx, r.connKey(id)).Err(); err != nil {
		return "", 0, fmt.Errorf("failed to unmap connection: %w", err)
	}

	entry, err := r.loadRoom(ctx, room)
	if err == domain.ErrRoomNotFound {
		return room, 0, nil
	}
	if err != nil {
		return "", 0, err
	}

	for i, p := range entry.Participants {
		if p.ID == id {
			entry.Participants = append(entry.Participants[:i], entry.Participants[i+1:]...)
			break
		}
	}

	remaining := entry.Size()
	if remaining == 0 {
		if err := r.client.Del(ctx, r.roomKey(room)).Err(); err != nil {
			return "", 0, fmt.Errorf("failed to delete room: %w", err)
		}
		if err := r.client.SRem(ctx, r.roomsKey(), room).Err(); err != nil {
			return "", 0, fmt.Errorf("failed to deindex room: %w", err)
		}
		return room, 0, nil
	}

	if err := r.saveRoom(ctx, entry); err != nil {
		return "", 0, err
	}
	return room, remaining, nil
}

func (r *RedisRoomRegistry) Participants(ctx context.Context, room string) ([]domain.Participant, error) {
	entry, err := r.loadRoom(ctx, room)
	if err != nil {
		return nil, err
	}
	return entry.Participants, nil
}

func (r *RedisRoomRegistry) RoomOf(ctx context.Context, id domain.ConnID) (string, error) {
	room, err := r.client.Get(ctx, r.connKey(id)).Result()
	if err == redis.Nil {
		return "", domain.ErrConnNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve connection: %w", err)
	}
	return room, nil
}

func (r *RedisRoomRegistry) Rooms(ctx context.Context) (int, error) {
	count, err := r.client.SCard(ctx, r.roomsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count rooms: %w", err)
	}
	return int(count), nil
}
