package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"paircall/internal/core/domain"
	"paircall/internal/core/ports"
	"paircall/pkg/config"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// LinkFactory builds PeerLinks over a shared pion API configuration.
type LinkFactory struct {
	config webrtc.Configuration
	logger *zap.SugaredLogger
}

// NewLinkFactory derives the pion configuration from the application
// config. An empty ICE server list means host candidates only, which is
// what tests and single-host runs want.
func NewLinkFactory(cfg *config.Config, logger *zap.SugaredLogger) *LinkFactory {
	var servers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}

	return &LinkFactory{
		config: webrtc.Configuration{
			ICEServers:   servers,
			SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
		},
		logger: logger,
	}
}

// NewLink creates a peer connection with the local tracks attached and
// the read loops running. Candidates trickle through OnCandidate as ICE
// gathers them.
func (f *LinkFactory) NewLink(ctx context.Context, tracks []webrtc.TrackLocal) (ports.PeerLink, error) {
	api := webrtc.NewAPI(webrtc.WithSettingEngine(webrtc.SettingEngine{}))
	pc, err := api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	link := &peerLink{
		pc:     pc,
		logger: f.logger,
	}

	for _, track := range tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("failed to add track %s: %w", track.ID(), err)
		}
		go link.readSenderReports(sender)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // gathering finished
		}
		link.mu.Lock()
		fn := link.onCandidate
		link.mu.Unlock()
		if fn != nil {
			fn(c.ToJSON())
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		link.handleConnectionState(state)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		f.logger.Infow("remote track started",
			"track_id", track.ID(),
			"codec", track.Codec().MimeType,
		)
		go link.readRemoteTrack(track)
	})

	return link, nil
}

// peerLink wraps one pion PeerConnection for the lifetime of one
// negotiation.
type peerLink struct {
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger

	mu          sync.Mutex
	closed      bool
	onCandidate func(webrtc.ICECandidateInit)
	onState     func(domain.LinkState)
}

func (l *peerLink) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}
	return offer, nil
}

func (l *peerLink) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}
	return answer, nil
}

func (l *peerLink) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(desc)
}

func (l *peerLink) HasRemoteDescription() bool {
	return l.pc.RemoteDescription() != nil
}

func (l *peerLink) AddCandidate(candidate webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(candidate)
}

func (l *peerLink) OnCandidate(fn func(webrtc.ICECandidateInit)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCandidate = fn
}

func (l *peerLink) OnStateChange(fn func(domain.LinkState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onState = fn
}

func (l *peerLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	return l.pc.Close()
}

func (l *peerLink) handleConnectionState(state webrtc.PeerConnectionState) {
	var mapped domain.LinkState
	switch state {
	case webrtc.PeerConnectionStateConnected:
		mapped = domain.LinkConnected
	case webrtc.PeerConnectionStateDisconnected:
		mapped = domain.LinkDisconnected
	case webrtc.PeerConnectionStateFailed:
		mapped = domain.LinkFailed
	case webrtc.PeerConnectionStateClosed:
		mapped = domain.LinkClosed
	default:
		return // intermediate states are not surfaced
	}

	l.logger.Infow("peer connection state changed", "state", state.String())

	l.mu.Lock()
	fn := l.onState
	l.mu.Unlock()
	if fn != nil {
		fn(mapped)
	}
}

// readRemoteTrack drains inbound RTP. The media itself is consumed by
// the remote side of the call; here the packets only feed liveness
// logging and byte accounting.
func (l *peerLink) readRemoteTrack(track *webrtc.TrackRemote) {
	var bytesReceived uint64
	buf := make([]byte, 1500)
	pkt := &rtp.Packet{}

	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.logger.Debugw("remote track read ended", "track_id", track.ID(), "error", err)
			}
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			l.logger.Debugw("dropping malformed RTP packet", "track_id", track.ID(), "error", err)
			continue
		}
		bytesReceived += uint64(len(pkt.Payload))
	}
}

// readSenderReports drains RTCP from the sender so interceptors run.
// Receiver reports carry the peer's view of our stream quality.
func (l *peerLink) readSenderReports(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, packet := range packets {
			if report, ok := packet.(*rtcp.ReceiverReport); ok {
				for _, r := range report.Reports {
					if r.FractionLost > 0 {
						l.logger.Debugw("peer reported packet loss",
							"fraction_lost", r.FractionLost,
							"jitter", r.Jitter,
						)
					}
				}
			}
		}
	}
}
