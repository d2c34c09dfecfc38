package services

import (
	"context"
	"sync"

	"paircall/internal/core/domain"
	"paircall/internal/core/ports"
	"paircall/pkg/validation"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Session drives the per-client negotiation sequence: it reacts to
// coordinator events arriving on the relay channel and owns the PeerLink
// for the current negotiation. Event handling is sequential; long-running
// steps (offer/answer generation) happen inline on the event loop, and
// races with the remote side are absorbed by the ready re-signal.
type Session struct {
	channel  ports.RelayChannel
	links    ports.PeerLinkFactory
	media    ports.MediaSource
	recorder *Recorder // optional
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	room      string
	name      string
	initiator bool
	state     domain.SessionState
	link      ports.PeerLink

	onState func(domain.SessionState)
}

// NewSession wires a session over its collaborators. The recorder may be
// nil when the client does not capture.
func NewSession(channel ports.RelayChannel, links ports.PeerLinkFactory, media ports.MediaSource, recorder *Recorder, logger *zap.SugaredLogger) *Session {
	return &Session{
		channel:  channel,
		links:    links,
		media:    media,
		recorder: recorder,
		logger:   logger,
		state:    domain.StateDisconnected,
	}
}

// OnStateChange registers an observer for session state transitions.
func (s *Session) OnStateChange(fn func(domain.SessionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = fn
}

// State returns the current negotiation state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initiator reports the role assigned by the coordinator.
func (s *Session) Initiator() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initiator
}

// Join validates the inputs client-side (the coordinator never rejects)
// and announces the join intent.
func (s *Session) Join(room, name string) error {
	if err := validation.ValidateRoomName(room); err != nil {
		return err
	}
	if err := validation.ValidateDisplayName(name); err != nil {
		return err
	}

	s.mu.Lock()
	s.room = room
	s.name = name
	s.mu.Unlock()

	return s.channel.SendJoin(room, name)
}

// Run processes coordinator events until the channel closes or the
// context is cancelled. On return the session is Disconnected.
func (s *Session) Run(ctx context.Context) error {
	defer s.transition(domain.StateDisconnected)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-s.channel.Receive():
			if !ok {
				return nil
			}
			s.handle(ctx, msg)
		}
	}
}

// Leave tears down the negotiation, announces the departure and stops
// capture. Already-started uploads and the scheduled reassembly run to
// completion in the background.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()

	s.teardownLink()

	if err := s.channel.SendLeft(room); err != nil {
		s.logger.Warnw("failed to signal left", "error", err)
	}
	if s.recorder != nil && s.recorder.Recording() {
		if err := s.recorder.Stop(ctx); err != nil {
			s.logger.Warnw("failed to stop capture on leave", "error", err)
		}
	}
	// Local tracks are owned by the session; a leave ends their life.
	if err := s.media.Close(); err != nil {
		s.logger.Warnw("failed to close media source", "error", err)
	}

	s.transition(domain.StateDisconnected)
	return nil
}

func (s *Session) handle(ctx context.Context, msg ports.InboundMessage) {
	switch msg.Type {
	case MsgRoomJoined:
		s.handleRoomJoined(ctx, msg.Initiator)
	case MsgParticipants:
		s.logger.Infow("participants updated", "count", len(msg.Participants))
	case MsgPeerJoined:
		s.handlePeerJoined()
	case MsgReady:
		s.handleReady(ctx)
	case MsgOffer:
		s.handleOffer(ctx, msg)
	case MsgAnswer:
		s.handleAnswer(msg)
	case MsgCandidate:
		s.handleCandidate(msg)
	case MsgPeerDisconnected, MsgLeft:
		s.handlePeerGone()
	case MsgError:
		s.logger.Warnw("coordinator error", "message", msg.Err)
		s.transition(domain.StateDisconnected)
	default:
		s.logger.Debugw("ignoring message", "type", msg.Type)
	}
}

// handleRoomJoined constructs the PeerLink with the local tracks
// attached. The initiator waits; the responder always joins second, so
// it signals ready immediately instead of waiting for a trigger.
func (s *Session) handleRoomJoined(ctx context.Context, initiator bool) {
	s.mu.Lock()
	s.initiator = initiator
	room := s.room
	s.mu.Unlock()

	if initiator {
		s.transition(domain.StateWaiting)
	} else {
		s.transition(domain.StateConnecting)
	}

	if err := s.ensureLink(ctx); err != nil {
		s.logger.Errorw("failed to create peer link", "error", err)
		return
	}

	if !initiator {
		if err := s.channel.SendReady(room); err != nil {
			s.logger.Warnw("failed to signal ready", "error", err)
		}
	}
}

// handlePeerJoined re-signals ready: the responder's own ready can race
// ahead of this side's link construction, and a second ready makes the
// initiator produce the offer once both links exist.
func (s *Session) handlePeerJoined() {
	s.mu.Lock()
	room := s.room
	hasLink := s.link != nil
	s.mu.Unlock()

	if !hasLink {
		return
	}
	if err := s.channel.SendReady(room); err != nil {
		s.logger.Warnw("failed to signal ready", "error", err)
	}
}

func (s *Session) handleReady(ctx context.Context) {
	s.mu.Lock()
	initiator := s.initiator
	link := s.link
	room := s.room
	s.mu.Unlock()

	if !initiator || link == nil {
		return
	}

	offer, err := link.CreateOffer(ctx)
	if err != nil {
		s.logger.Errorw("failed to create offer", "error", err)
		return
	}
	if err := s.channel.SendOffer(room, offer); err != nil {
		s.logger.Warnw("failed to send offer", "error", err)
	}
}

func (s *Session) handleOffer(ctx context.Context, msg ports.InboundMessage) {
	if msg.Offer == nil {
		return
	}
	if s.State() == domain.StateConnected {
		return
	}

	// A late joiner can receive the offer before its own join ack
	// created a link; construct one lazily.
	if err := s.ensureLink(ctx); err != nil {
		s.logger.Errorw("failed to create peer link for offer", "error", err)
		return
	}

	s.mu.Lock()
	link := s.link
	room := s.room
	s.mu.Unlock()

	if err := link.SetRemoteDescription(*msg.Offer); err != nil {
		s.logger.Errorw("failed to apply offer", "error", err)
		return
	}
	answer, err := link.CreateAnswer(ctx)
	if err != nil {
		s.logger.Errorw("failed to create answer", "error", err)
		return
	}
	if err := s.channel.SendAnswer(room, answer); err != nil {
		s.logger.Warnw("failed to send answer", "error", err)
	}
}

func (s *Session) handleAnswer(msg ports.InboundMessage) {
	if msg.Answer == nil {
		return
	}
	s.mu.Lock()
	link := s.link
	s.mu.Unlock()
	if link == nil {
		return
	}
	if err := link.SetRemoteDescription(*msg.Answer); err != nil {
		s.logger.Errorw("failed to apply answer", "error", err)
	}
}

// handleCandidate applies the candidate only once a remote description
// exists; the transport buffers or ignores anything late or out of order.
func (s *Session) handleCandidate(msg ports.InboundMessage) {
	if msg.Candidate == nil {
		return
	}
	s.mu.Lock()
	link := s.link
	s.mu.Unlock()
	if link == nil || !link.HasRemoteDescription() {
		return
	}
	if err := link.AddCandidate(*msg.Candidate); err != nil {
		s.logger.Warnw("failed to add candidate", "error", err)
	}
}

// handlePeerGone discards the link but stays in the room so a future
// peer can arrive and renegotiate from scratch.
func (s *Session) handlePeerGone() {
	s.teardownLink()
	s.transition(domain.StatePeerLeft)
	s.transition(domain.StateDisconnected)
}

func (s *Session) ensureLink(ctx context.Context) error {
	s.mu.Lock()
	if s.link != nil {
		s.mu.Unlock()
		return nil
	}
	room := s.room
	s.mu.Unlock()

	link, err := s.links.NewLink(ctx, s.media.Tracks())
	if err != nil {
		return err
	}

	link.OnCandidate(func(candidate webrtc.ICECandidateInit) {
		if err := s.channel.SendCandidate(room, candidate); err != nil {
			s.logger.Warnw("failed to relay candidate", "error", err)
		}
	})
	link.OnStateChange(func(state domain.LinkState) {
		s.handleLinkState(state)
	})

	s.mu.Lock()
	if s.link != nil {
		// Lost the race against another construction; discard ours.
		s.mu.Unlock()
		_ = link.Close()
		return nil
	}
	s.link = link
	s.mu.Unlock()
	return nil
}

// handleLinkState maps transport-reported connection states onto session
// transitions. Terminal failure drops straight back to Disconnected; no
// renegotiation is attempted, a human re-triggers join.
func (s *Session) handleLinkState(state domain.LinkState) {
	switch state {
	case domain.LinkConnected:
		s.transition(domain.StateConnected)
	case domain.LinkFailed, domain.LinkDisconnected:
		s.teardownLink()
		s.transition(domain.StateDisconnected)
	}
}

func (s *Session) teardownLink() {
	s.mu.Lock()
	link := s.link
	s.link = nil
	s.mu.Unlock()

	if link != nil {
		if err := link.Close(); err != nil {
			s.logger.Warnw("failed to close peer link", "error", err)
		}
	}
}

func (s *Session) transition(next domain.SessionState) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	fn := s.onState
	s.mu.Unlock()

	s.logger.Infow("session state changed", "from", prev, "to", next)
	if fn != nil {
		fn(next)
	}
}
