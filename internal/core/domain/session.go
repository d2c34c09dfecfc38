package domain

// SessionState is the negotiation state of one client session.
type SessionState string

const (
	// StateDisconnected is the initial and terminal state.
	StateDisconnected SessionState = "disconnected"
	// StateWaiting: joined as initiator, waiting for a peer to arrive.
	StateWaiting SessionState = "waiting"
	// StateConnecting: joined as responder, negotiation in progress.
	StateConnecting SessionState = "connecting"
	// StateConnected: the media path is established.
	StateConnected SessionState = "connected"
	// StatePeerLeft: the remote side left; the session stays in the room
	// so a future peer can arrive.
	StatePeerLeft SessionState = "peer-left"
)

// LinkState is the condensed connection state of a PeerLink, reported by
// the transport layer.
type LinkState string

const (
	LinkConnected    LinkState = "connected"
	LinkDisconnected LinkState = "disconnected"
	LinkFailed       LinkState = "failed"
	LinkClosed       LinkState = "closed"
)
