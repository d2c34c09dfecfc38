package services

import (
	"context"
	"encoding/json"
	"errors"

	"paircall/internal/core/domain"
	"paircall/internal/core/ports"
	"paircall/pkg/tracing"

	"go.uber.org/zap"
)

// Message kinds exchanged with clients. The coordinator treats the
// negotiation kinds as opaque: payloads are relayed verbatim.
const (
	MsgJoinRoom         = "join-room"
	MsgRoomJoined       = "room-joined"
	MsgParticipants     = "participants"
	MsgPeerJoined       = "peer-joined"
	MsgReady            = "ready"
	MsgOffer            = "offer"
	MsgAnswer           = "answer"
	MsgCandidate        = "candidate"
	MsgLeft             = "left"
	MsgPeerDisconnected = "peer-disconnected"
	MsgError            = "error"
)

// RelayKinds are the message kinds the coordinator forwards without
// inspection.
var RelayKinds = map[string]bool{
	MsgReady:     true,
	MsgOffer:     true,
	MsgAnswer:    true,
	MsgCandidate: true,
}

// RoomJoinedPayload acknowledges a join and assigns the initiator role.
type RoomJoinedPayload struct {
	Initiator bool `json:"initiator"`
}

// RoomMetrics counts room lifecycle events.
type RoomMetrics interface {
	RoomCreated()
	RoomDeleted()
}

// Coordinator owns room membership bookkeeping and relays negotiation
// messages between the two parties of a room. It never inspects
// negotiation payloads; correctness rests on consistent membership
// accounting, which the injected registry serializes per room.
type Coordinator struct {
	registry  ports.RoomRegistry
	messenger ports.Messenger
	metrics   RoomMetrics // optional
	logger    *zap.SugaredLogger
}

// NewCoordinator creates a coordinator over the given registry and
// outbound messenger.
func NewCoordinator(registry ports.RoomRegistry, messenger ports.Messenger, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		registry:  registry,
		messenger: messenger,
		logger:    logger,
	}
}

// SetMetrics attaches an optional room lifecycle counter.
func (c *Coordinator) SetMetrics(m RoomMetrics) {
	c.metrics = m
}

// Join adds the connection to the room. The joiner learns whether it is
// the initiator, every member receives the refreshed participant list,
// and when membership reaches two the existing member is told a peer
// arrived. A join on a full room is refused with an error message.
func (c *Coordinator) Join(ctx context.Context, id domain.ConnID, room, name string) error {
	ctx, span := tracing.TraceSignal(ctx, "join", room, string(id))
	defer span.End()

	initiator, size, err := c.registry.Join(ctx, room, id, name)
	if errors.Is(err, domain.ErrRoomFull) {
		c.logger.Infow("join refused, room full", "room", room, "conn_id", id)
		return c.messenger.Send(id, MsgError, map[string]string{"message": "room is full"})
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return err
	}

	c.logger.Infow("joined room", "room", room, "conn_id", id, "name", name, "initiator", initiator, "size", size)

	if initiator && c.metrics != nil {
		c.metrics.RoomCreated()
	}

	if err := c.messenger.Send(id, MsgRoomJoined, RoomJoinedPayload{Initiator: initiator}); err != nil {
		c.logger.Warnw("failed to ack join", "conn_id", id, "error", err)
	}

	c.broadcastParticipants(ctx, room)

	if size == domain.RoomCapacity {
		c.sendToOthers(ctx, room, id, MsgPeerJoined, nil)
	}
	return nil
}

// Relay forwards a negotiation payload verbatim to every other member
// of the room, preserving the message kind. Unknown kinds are dropped.
func (c *Coordinator) Relay(ctx context.Context, from domain.ConnID, kind, room string, payload json.RawMessage) error {
	if !RelayKinds[kind] {
		c.logger.Warnw("dropping unknown relay kind", "kind", kind, "conn_id", from)
		return nil
	}
	if room == "" {
		var err error
		room, err = c.registry.RoomOf(ctx, from)
		if err != nil {
			return err
		}
	}
	c.sendToOthers(ctx, room, from, kind, payload)
	return nil
}

// Leave removes the connection from its room, refreshes the participant
// list for the remaining member and notifies it of the departure. Leaving
// with no prior join is a no-op.
func (c *Coordinator) Leave(ctx context.Context, id domain.ConnID) error {
	room, remaining, err := c.registry.Leave(ctx, id)
	if errors.Is(err, domain.ErrConnNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	ctx, span := tracing.TraceSignal(ctx, "leave", room, string(id))
	defer span.End()

	c.logger.Infow("left room", "room", room, "conn_id", id, "remaining", remaining)

	if remaining == 0 && c.metrics != nil {
		c.metrics.RoomDeleted()
	}

	if remaining > 0 {
		c.broadcastParticipants(ctx, room)
		c.broadcast(ctx, room, MsgPeerDisconnected, nil)
	}
	return nil
}

// Rooms reports the number of live rooms.
func (c *Coordinator) Rooms(ctx context.Context) (int, error) {
	return c.registry.Rooms(ctx)
}

func (c *Coordinator) broadcastParticipants(ctx context.Context, room string) {
	participants, err := c.registry.Participants(ctx, room)
	if err != nil {
		c.logger.Warnw("failed to load participants", "room", room, "error", err)
		return
	}
	for _, p := range participants {
		if err := c.messenger.Send(p.ID, MsgParticipants, participants); err != nil {
			c.logger.Warnw("failed to send participants", "conn_id", p.ID, "error", err)
		}
	}
}

func (c *Coordinator) broadcast(ctx context.Context, room, kind string, payload interface{}) {
	participants, err := c.registry.Participants(ctx, room)
	if err != nil {
		return
	}
	for _, p := range participants {
		if err := c.messenger.Send(p.ID, kind, payload); err != nil {
			c.logger.Warnw("failed to broadcast", "kind", kind, "conn_id", p.ID, "error", err)
		}
	}
}

func (c *Coordinator) sendToOthers(ctx context.Context, room string, exclude domain.ConnID, kind string, payload interface{}) {
	participants, err := c.registry.Participants(ctx, room)
	if err != nil {
		return
	}
	for _, p := range participants {
		if p.ID == exclude {
			continue
		}
		if err := c.messenger.Send(p.ID, kind, payload); err != nil {
			c.logger.Warnw("failed to relay", "kind", kind, "conn_id", p.ID, "error", err)
		}
	}
}
