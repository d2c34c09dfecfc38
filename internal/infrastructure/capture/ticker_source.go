package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paircall/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// TickerSource is a synthetic MediaSource for the headless client: it
// exposes static local tracks for the peer link and, while capturing,
// emits one fixed-size segment per interval. Segment indices are
// monotonic for the lifetime of the source and never reused, even
// across capture restarts.
type TickerSource struct {
	audioTrack *webrtc.TrackLocalStaticSample
	videoTrack *webrtc.TrackLocalStaticSample

	segmentSize int
	logger      *zap.SugaredLogger

	mu        sync.Mutex
	nextIndex int
	cancel    context.CancelFunc
	closed    bool
}

const defaultSegmentSize = 64 * 1024

func NewTickerSource(logger *zap.SugaredLogger) (*TickerSource, error) {
	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"paircall-audio",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video",
		"paircall-video",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}

	return &TickerSource{
		audioTrack:  audioTrack,
		videoTrack:  videoTrack,
		segmentSize: defaultSegmentSize,
		logger:      logger,
	}, nil
}

// SetSegmentSize overrides the synthetic segment payload size.
func (s *TickerSource) SetSegmentSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segmentSize = size
}

func (s *TickerSource) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.audioTrack, s.videoTrack}
}

// StartCapture emits one segment per interval until StopCapture or the
// context ends. The channel closes once emission stops.
func (s *TickerSource) StartCapture(ctx context.Context, interval time.Duration) (<-chan domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, domain.ErrLinkClosed
	}
	if s.cancel != nil {
		return nil, domain.ErrRecording
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	out := make(chan domain.Segment, 4)
	go s.emit(ctx, interval, out)
	return out, nil
}

func (s *TickerSource) emit(ctx context.Context, interval time.Duration, out chan<- domain.Segment) {
	defer close(out)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// The window between the last tick and the stop is still
			// recorded media; flush it as one final partial segment.
			out <- s.nextSegment()
			return
		case <-ticker.C:
			out <- s.nextSegment()
		}
	}
}

func (s *TickerSource) nextSegment() domain.Segment {
	s.mu.Lock()
	index := s.nextIndex
	s.nextIndex++
	size := s.segmentSize
	s.mu.Unlock()

	// Deterministic filler payload tagged by index, enough to make
	// concatenation order observable downstream.
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(index + i)
	}
	return domain.Segment{Index: index, Data: data}
}

// StopCapture stops segment emission. Safe to call when not capturing.
func (s *TickerSource) StopCapture() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Close stops capture permanently. Tracks remain valid for reads until
// the peer connection closes.
func (s *TickerSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}
