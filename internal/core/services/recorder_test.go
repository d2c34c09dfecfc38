package services

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"paircall/internal/core/domain"
	"paircall/internal/infrastructure/storage"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap/zaptest"
)

// fakeMedia hands out a test-controlled segment channel.
type fakeMedia struct {
	mu       sync.Mutex
	segments chan domain.Segment
	stopped  bool
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{segments: make(chan domain.Segment, 16)}
}

func (m *fakeMedia) Tracks() []webrtc.TrackLocal { return nil }

func (m *fakeMedia) StartCapture(ctx context.Context, interval time.Duration) (<-chan domain.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments = make(chan domain.Segment, 16)
	m.stopped = false
	return m.segments, nil
}

func (m *fakeMedia) StopCapture() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		close(m.segments)
	}
}

func (m *fakeMedia) Close() error {
	m.StopCapture()
	return nil
}

func (m *fakeMedia) emit(index int, data string) {
	m.mu.Lock()
	ch := m.segments
	m.mu.Unlock()
	ch <- domain.Segment{Index: index, Data: []byte(data)}
}

func newTestRecorder(t *testing.T) (*Recorder, *storage.MemoryStore, *fakeMedia) {
	t.Helper()

	store := storage.NewMemoryStore()
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)
	store.SetBaseURL(srv.URL)

	media := newFakeMedia()
	recorder := NewRecorder(store, media, RecorderConfig{
		SegmentInterval: 10 * time.Millisecond,
		SettleDelay:     time.Second,
		Extension:       "webm",
		ContentType:     "video/webm",
		SignedURLTTL:    time.Minute,
	}, nil, zaptest.NewLogger(t).Sugar())

	return recorder, store, media
}

func waitForKeys(t *testing.T, store *storage.MemoryStore, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if len(store.Keys()) >= want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d objects, have %v", want, store.Keys())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func waitDone(t *testing.T, recorder *Recorder) {
	t.Helper()
	select {
	case <-recorder.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for finalization")
	}
}

func TestRecorderCombinesSegmentsInIndexOrder(t *testing.T) {
	recorder, store, media := newTestRecorder(t)
	ctx := context.Background()

	if err := recorder.Start(ctx, "alice", "Alice Smith"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session := recorder.Session()

	media.emit(0, "AAA")
	media.emit(1, "BBB")
	media.emit(2, "CCC")
	waitForKeys(t, store, 3)

	if err := recorder.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	waitDone(t, recorder)

	keys := store.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected only the combined artifact to remain, got %v", keys)
	}
	artifact := keys[0]
	if !strings.HasPrefix(artifact, session.Prefix()+domain.CombinedPrefix) {
		t.Fatalf("artifact key %q not under session prefix", artifact)
	}
	if !strings.Contains(artifact, "Alice_Smith") {
		t.Fatalf("artifact key %q must embed the sanitized name", artifact)
	}

	data, _ := store.Get(artifact)
	if string(data) != "AAABBBCCC" {
		t.Fatalf("artifact content = %q, want concatenation in index order", data)
	}
}

func TestRecorderSkipsFailedUploads(t *testing.T) {
	recorder, store, media := newTestRecorder(t)
	ctx := context.Background()

	store.FailUpload = func(key string) bool {
		return strings.HasSuffix(key, "part_1.webm")
	}

	if err := recorder.Start(ctx, "alice", "alice"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	media.emit(0, "AAA")
	media.emit(1, "BBB")
	media.emit(2, "CCC")
	waitForKeys(t, store, 2)

	if err := recorder.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	waitDone(t, recorder)

	keys := store.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one artifact, got %v", keys)
	}
	data, _ := store.Get(keys[0])
	if string(data) != "AAACCC" {
		t.Fatalf("partial artifact content = %q, want surviving segments in order", data)
	}

	// The local buffer still holds everything, failed upload included.
	buffered := recorder.Buffered()
	if len(buffered) != 3 {
		t.Fatalf("expected 3 buffered segments, got %d", len(buffered))
	}
}

func TestRecorderStopWithoutSegmentsIsNoop(t *testing.T) {
	recorder, store, _ := newTestRecorder(t)
	ctx := context.Background()

	if err := recorder.Start(ctx, "alice", "alice"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := recorder.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	waitDone(t, recorder)

	if keys := store.Keys(); len(keys) != 0 {
		t.Fatalf("no artifact expected, got %v", keys)
	}
}

func TestRecorderKeepsOriginalsWhenArtifactUploadFails(t *testing.T) {
	recorder, store, media := newTestRecorder(t)
	ctx := context.Background()

	store.FailUpload = func(key string) bool {
		return strings.Contains(key, domain.CombinedPrefix)
	}

	if err := recorder.Start(ctx, "alice", "alice"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	media.emit(0, "AAA")
	media.emit(1, "BBB")
	waitForKeys(t, store, 2)

	if err := recorder.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	waitDone(t, recorder)

	// Both originals survive for a later retry.
	keys := store.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected both originals preserved, got %v", keys)
	}
	for _, key := range keys {
		if strings.Contains(key, domain.CombinedPrefix) {
			t.Fatalf("no combined artifact expected, got %v", keys)
		}
	}
}

func TestReassemblyIsIdempotent(t *testing.T) {
	recorder, store, media := newTestRecorder(t)
	ctx := context.Background()

	if err := recorder.Start(ctx, "alice", "alice"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session := recorder.Session()

	media.emit(0, "AAA")
	waitForKeys(t, store, 1)

	if err := recorder.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	waitDone(t, recorder)

	before := store.Keys()
	if len(before) != 1 {
		t.Fatalf("expected one artifact, got %v", before)
	}

	// A second run over the same session finds no segments and leaves
	// the published artifact alone.
	if err := recorder.reassemble(ctx, session); err != nil {
		t.Fatalf("re-run failed: %v", err)
	}
	after := store.Keys()
	if len(after) != 1 || after[0] != before[0] {
		t.Fatalf("re-run must not change the store: before=%v after=%v", before, after)
	}
}

func TestBackToBackSessionsFinalizeIndependently(t *testing.T) {
	recorder, store, media := newTestRecorder(t)
	ctx := context.Background()

	if err := recorder.Start(ctx, "alice", "first"); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	first := recorder.Session()
	media.emit(0, "AAA")
	waitForKeys(t, store, 1)

	if err := recorder.Stop(ctx); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	firstDone := recorder.Done()

	// Restart while the previous stop may still be settling. The new
	// session's uploads must not feed into the old session's wait.
	if err := recorder.Start(ctx, "alice", "second"); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	second := recorder.Session()
	if second.ID == first.ID {
		t.Fatalf("session id %q reused across captures", second.ID)
	}
	media.emit(0, "BBB")

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := store.Get(second.SegmentKey(0)); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for second session's segment, have %v", store.Keys())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := recorder.Stop(ctx); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	select {
	case <-firstDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first finalization")
	}
	waitDone(t, recorder)

	keys := store.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected one artifact per session, got %v", keys)
	}
	byPrefix := map[string]string{}
	for _, key := range keys {
		data, _ := store.Get(key)
		switch {
		case strings.HasPrefix(key, first.Prefix()+domain.CombinedPrefix):
			byPrefix["first"] = string(data)
		case strings.HasPrefix(key, second.Prefix()+domain.CombinedPrefix):
			byPrefix["second"] = string(data)
		default:
			t.Fatalf("unexpected key %q", key)
		}
	}
	if byPrefix["first"] != "AAA" || byPrefix["second"] != "BBB" {
		t.Fatalf("artifacts crossed sessions: %v", byPrefix)
	}
}

func TestRecorderRejectsDoubleStart(t *testing.T) {
	recorder, _, _ := newTestRecorder(t)
	ctx := context.Background()

	if err := recorder.Start(ctx, "alice", "alice"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := recorder.Start(ctx, "alice", "alice"); err != domain.ErrRecording {
		t.Fatalf("expected ErrRecording, got %v", err)
	}
	if err := recorder.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := recorder.Stop(ctx); err != domain.ErrNotRecording {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
}
