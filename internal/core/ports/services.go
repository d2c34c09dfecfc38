package ports

import (
	"context"
	"time"

	"paircall/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// Messenger delivers coordinator-originated messages to connections.
// The websocket transport implements it; tests substitute a recorder.
type Messenger interface {
	Send(id domain.ConnID, msgType string, payload interface{}) error
}

// RelayChannel is the client side of the signaling transport: typed
// outbound sends plus a stream of inbound messages.
type RelayChannel interface {
	SendJoin(room, name string) error
	SendReady(room string) error
	SendOffer(room string, offer webrtc.SessionDescription) error
	SendAnswer(room string, answer webrtc.SessionDescription) error
	SendCandidate(room string, candidate webrtc.ICECandidateInit) error
	SendLeft(room string) error
	Receive() <-chan InboundMessage
	Close() error
}

// InboundMessage is one coordinator-to-client signaling message.
type InboundMessage struct {
	Type         string
	Initiator    bool
	Participants []domain.Participant
	Offer        *webrtc.SessionDescription
	Answer       *webrtc.SessionDescription
	Candidate    *webrtc.ICECandidateInit
	Err          string
}

// PeerLink is the per-session handle to the negotiated media connection.
// It borrows tracks from the media source and never outlives one
// negotiation: the session discards it on leave or peer departure.
type PeerLink interface {
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	HasRemoteDescription() bool
	AddCandidate(candidate webrtc.ICECandidateInit) error
	OnCandidate(fn func(webrtc.ICECandidateInit))
	OnStateChange(fn func(domain.LinkState))
	Close() error
}

// PeerLinkFactory builds a fresh PeerLink with the local tracks attached.
type PeerLinkFactory interface {
	NewLink(ctx context.Context, tracks []webrtc.TrackLocal) (PeerLink, error)
}

// MediaSource produces the local media: tracks for the peer link and,
// while capturing, fixed-interval encoded segments.
type MediaSource interface {
	// Tracks returns the local tracks to attach to a PeerLink. The
	// source keeps ownership; links only borrow them.
	Tracks() []webrtc.TrackLocal

	// StartCapture begins emitting one segment per interval on the
	// returned channel. The channel closes after StopCapture.
	StartCapture(ctx context.Context, interval time.Duration) (<-chan domain.Segment, error)

	// StopCapture stops segment emission.
	StopCapture()

	// Close releases the underlying media.
	Close() error
}

// ObjectStore is the durable blob storage contract the capture pipeline
// relies on: list/upload/sign/remove, keyed by path-like names.
type ObjectStore interface {
	// List returns every object under the prefix, including nested
	// ones. Names are relative to the prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, keys []string) error
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Name string // path relative to the listed prefix
	Size int64
}

// UploadOptions mirror the store's upload knobs.
type UploadOptions struct {
	Overwrite   bool
	ContentType string
}
