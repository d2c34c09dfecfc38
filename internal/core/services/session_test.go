package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"paircall/internal/core/domain"
	"paircall/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap/zaptest"
)

// fakeChannel records outbound sends and lets tests push inbound events.
type fakeChannel struct {
	mu      sync.Mutex
	sends   []string // message kinds in send order
	offers  []webrtc.SessionDescription
	answers []webrtc.SessionDescription
	inbound chan ports.InboundMessage
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{inbound: make(chan ports.InboundMessage, 16)}
}

func (c *fakeChannel) record(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, kind)
}

func (c *fakeChannel) SendJoin(room, name string) error { c.record(MsgJoinRoom); return nil }
func (c *fakeChannel) SendReady(room string) error      { c.record(MsgReady); return nil }
func (c *fakeChannel) SendLeft(room string) error       { c.record(MsgLeft); return nil }

func (c *fakeChannel) SendOffer(room string, offer webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, MsgOffer)
	c.offers = append(c.offers, offer)
	return nil
}

func (c *fakeChannel) SendAnswer(room string, answer webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, MsgAnswer)
	c.answers = append(c.answers, answer)
	return nil
}

func (c *fakeChannel) SendCandidate(room string, candidate webrtc.ICECandidateInit) error {
	c.record(MsgCandidate)
	return nil
}

func (c *fakeChannel) Receive() <-chan ports.InboundMessage { return c.inbound }
func (c *fakeChannel) Close() error                         { close(c.inbound); return nil }

func (c *fakeChannel) sent(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sends {
		if s == kind {
			n++
		}
	}
	return n
}

// fakeLink is a scriptable PeerLink.
type fakeLink struct {
	mu          sync.Mutex
	remote      *webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	closed      bool
	onCandidate func(webrtc.ICECandidateInit)
	onState     func(domain.LinkState)
}

func (l *fakeLink) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (l *fakeLink) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (l *fakeLink) SetRemoteDescription(desc webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remote = &desc
	return nil
}

func (l *fakeLink) HasRemoteDescription() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remote != nil
}

func (l *fakeLink) AddCandidate(candidate webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, candidate)
	return nil
}

func (l *fakeLink) OnCandidate(fn func(webrtc.ICECandidateInit)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCandidate = fn
}

func (l *fakeLink) OnStateChange(fn func(domain.LinkState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onState = fn
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) reportState(state domain.LinkState) {
	l.mu.Lock()
	fn := l.onState
	l.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *fakeLink) candidateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.candidates)
}

type fakeLinkFactory struct {
	mu    sync.Mutex
	links []*fakeLink
}

func (f *fakeLinkFactory) NewLink(ctx context.Context, tracks []webrtc.TrackLocal) (ports.PeerLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	link := &fakeLink{}
	f.links = append(f.links, link)
	return link, nil
}

func (f *fakeLinkFactory) link(i int) *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.links) {
		return nil
	}
	return f.links[i]
}

func (f *fakeLinkFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.links)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func newTestSession(t *testing.T) (*Session, *fakeChannel, *fakeLinkFactory, context.CancelFunc) {
	t.Helper()
	channel := newFakeChannel()
	links := &fakeLinkFactory{}
	session := NewSession(channel, links, newFakeMedia(), nil, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	go session.Run(ctx)
	return session, channel, links, cancel
}

func TestInitiatorWaitsThenOffersOnReady(t *testing.T) {
	session, channel, links, cancel := newTestSession(t)
	defer cancel()

	if err := session.Join("lobby", "alice"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	channel.inbound <- ports.InboundMessage{Type: MsgRoomJoined, Initiator: true}
	eventually(t, func() bool { return session.State() == domain.StateWaiting }, "initiator should wait for a peer")
	eventually(t, func() bool { return links.count() == 1 }, "link should be constructed on join ack")

	if channel.sent(MsgReady) != 0 {
		t.Fatal("initiator must not signal ready")
	}
	if !session.Initiator() {
		t.Fatal("session should report the initiator role")
	}

	channel.inbound <- ports.InboundMessage{Type: MsgReady}
	eventually(t, func() bool { return channel.sent(MsgOffer) == 1 }, "ready should trigger the offer")
}

func TestResponderSignalsReadyAndAnswers(t *testing.T) {
	session, channel, links, cancel := newTestSession(t)
	defer cancel()

	session.Join("lobby", "bob")

	channel.inbound <- ports.InboundMessage{Type: MsgRoomJoined, Initiator: false}
	eventually(t, func() bool { return session.State() == domain.StateConnecting }, "responder should go connecting")
	eventually(t, func() bool { return channel.sent(MsgReady) == 1 }, "responder should signal ready")

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote"}
	channel.inbound <- ports.InboundMessage{Type: MsgOffer, Offer: &offer}
	eventually(t, func() bool { return channel.sent(MsgAnswer) == 1 }, "offer should be answered")

	link := links.link(0)
	if !link.HasRemoteDescription() {
		t.Fatal("offer must be applied as the remote description")
	}
}

func TestOfferBuildsLinkLazily(t *testing.T) {
	session, channel, links, cancel := newTestSession(t)
	defer cancel()

	session.Join("lobby", "bob")

	// The offer outruns the join ack; the link must be built on demand.
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 early"}
	channel.inbound <- ports.InboundMessage{Type: MsgOffer, Offer: &offer}

	eventually(t, func() bool { return links.count() == 1 }, "offer should construct the link lazily")
	eventually(t, func() bool { return channel.sent(MsgAnswer) == 1 }, "early offer should still be answered")
}

func TestCandidateIgnoredBeforeRemoteDescription(t *testing.T) {
	session, channel, links, cancel := newTestSession(t)
	defer cancel()

	session.Join("lobby", "alice")
	channel.inbound <- ports.InboundMessage{Type: MsgRoomJoined, Initiator: true}
	eventually(t, func() bool { return links.count() == 1 }, "link should exist")

	candidate := webrtc.ICECandidateInit{Candidate: "candidate:early"}
	channel.inbound <- ports.InboundMessage{Type: MsgCandidate, Candidate: &candidate}

	// Candidates before the remote description are dropped, not queued.
	time.Sleep(50 * time.Millisecond)
	if links.link(0).candidateCount() != 0 {
		t.Fatal("candidate before remote description must be ignored")
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}
	channel.inbound <- ports.InboundMessage{Type: MsgAnswer, Answer: &answer}
	eventually(t, func() bool { return links.link(0).HasRemoteDescription() }, "answer should be applied")

	channel.inbound <- ports.InboundMessage{Type: MsgCandidate, Candidate: &candidate}
	eventually(t, func() bool { return links.link(0).candidateCount() == 1 }, "candidate after remote description should be applied")
}

func TestLinkConnectedMovesSessionToConnected(t *testing.T) {
	session, channel, links, cancel := newTestSession(t)
	defer cancel()

	session.Join("lobby", "alice")
	channel.inbound <- ports.InboundMessage{Type: MsgRoomJoined, Initiator: true}
	eventually(t, func() bool { return links.count() == 1 }, "link should exist")

	links.link(0).reportState(domain.LinkConnected)
	eventually(t, func() bool { return session.State() == domain.StateConnected }, "link connectivity should surface as Connected")
}

func TestPeerDisconnectedTearsDownLink(t *testing.T) {
	session, channel, links, cancel := newTestSession(t)
	defer cancel()

	session.Join("lobby", "alice")
	channel.inbound <- ports.InboundMessage{Type: MsgRoomJoined, Initiator: true}
	eventually(t, func() bool { return links.count() == 1 }, "link should exist")

	var states []domain.SessionState
	var mu sync.Mutex
	session.OnStateChange(func(s domain.SessionState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	channel.inbound <- ports.InboundMessage{Type: MsgPeerDisconnected}
	eventually(t, func() bool { return links.link(0).isClosed() }, "link should be closed on peer departure")
	eventually(t, func() bool { return session.State() == domain.StateDisconnected }, "session should settle disconnected")

	mu.Lock()
	defer mu.Unlock()
	sawPeerLeft := false
	for _, s := range states {
		if s == domain.StatePeerLeft {
			sawPeerLeft = true
		}
	}
	if !sawPeerLeft {
		t.Fatalf("expected a PeerLeft transition, got %v", states)
	}
}

func TestPeerJoinedResignalsReady(t *testing.T) {
	session, channel, links, cancel := newTestSession(t)
	defer cancel()

	session.Join("lobby", "alice")
	channel.inbound <- ports.InboundMessage{Type: MsgRoomJoined, Initiator: true}
	eventually(t, func() bool { return links.count() == 1 }, "link should exist")

	channel.inbound <- ports.InboundMessage{Type: MsgPeerJoined}
	eventually(t, func() bool { return channel.sent(MsgReady) == 1 }, "peer arrival should re-signal ready")
}

func TestCoordinatorErrorDisconnects(t *testing.T) {
	session, channel, _, cancel := newTestSession(t)
	defer cancel()

	session.Join("full", "carol")
	channel.inbound <- ports.InboundMessage{Type: MsgRoomJoined, Initiator: true}
	eventually(t, func() bool { return session.State() == domain.StateWaiting }, "should be waiting")

	channel.inbound <- ports.InboundMessage{Type: MsgError, Err: "room is full"}
	eventually(t, func() bool { return session.State() == domain.StateDisconnected }, "error should disconnect")
}

func TestJoinValidatesInputs(t *testing.T) {
	session, _, _, cancel := newTestSession(t)
	defer cancel()

	if err := session.Join("bad room!", "alice"); err == nil {
		t.Fatal("invalid room name must be rejected")
	}
	if err := session.Join("lobby", string(make([]byte, 100))); err == nil {
		t.Fatal("over-long display name must be rejected")
	}
}

func TestLeaveAnnouncesAndClosesLink(t *testing.T) {
	session, channel, links, cancel := newTestSession(t)
	defer cancel()

	session.Join("lobby", "alice")
	channel.inbound <- ports.InboundMessage{Type: MsgRoomJoined, Initiator: true}
	eventually(t, func() bool { return links.count() == 1 }, "link should exist")

	if err := session.Leave(context.Background()); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if channel.sent(MsgLeft) != 1 {
		t.Fatal("leave must announce the departure")
	}
	if !links.link(0).isClosed() {
		t.Fatal("leave must close the link")
	}
	if session.State() != domain.StateDisconnected {
		t.Fatalf("state after leave = %v", session.State())
	}
}
