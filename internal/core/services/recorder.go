package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"paircall/internal/core/domain"
	"paircall/internal/core/ports"
	"paircall/pkg/retry"
	"paircall/pkg/tracing"
	"paircall/pkg/utils"

	"go.uber.org/zap"
)

// CaptureMetrics receives capture pipeline observations. Implemented by
// the Prometheus collector; nil disables reporting.
type CaptureMetrics interface {
	SegmentUploaded(bytes int)
	SegmentUploadFailed()
	ReassemblyCompleted(duration time.Duration, artifactBytes int)
}

// RecorderConfig carries the capture policy knobs.
type RecorderConfig struct {
	SegmentInterval time.Duration // slicing interval (policy: 5s)
	SettleDelay     time.Duration // bound on waiting for in-flight uploads after stop (policy: 3s)
	Extension       string        // segment/artifact file extension
	ContentType     string
	SignedURLTTL    time.Duration
}

// Recorder runs the chunked capture pipeline: it slices the media source
// into ordered segments, uploads each durably and asynchronously, and on
// stop reassembles everything into one combined artifact.
//
// Uploads are fire-and-forget relative to the capture loop but tracked
// in a WaitGroup, so stop waits on the real outstanding count instead of
// sleeping blindly; the settle delay caps that wait.
type Recorder struct {
	store  ports.ObjectStore
	media  ports.MediaSource
	cfg    RecorderConfig
	logger *zap.SugaredLogger

	httpClient *http.Client
	retryCfg   retry.Config
	metrics    CaptureMetrics

	mu       sync.Mutex
	active   *activeCapture
	buffered []domain.Segment
	done     chan struct{}
}

// activeCapture pairs a capture session with its upload tracking. The
// WaitGroup belongs to exactly one session, so a capture started while
// a previous stop is still settling never extends the old wait.
type activeCapture struct {
	session *domain.CaptureSession
	uploads sync.WaitGroup
}

// NewRecorder creates a recorder. metrics may be nil.
func NewRecorder(store ports.ObjectStore, media ports.MediaSource, cfg RecorderConfig, metrics CaptureMetrics, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{
		store:      store,
		media:      media,
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryCfg:   retry.DefaultConfig(),
		metrics:    metrics,
	}
}

// Recording reports whether a capture session is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Session returns the current capture session, or nil.
func (r *Recorder) Session() *domain.CaptureSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil
	}
	return r.active.session
}

// Buffered returns the locally retained segments in arrival order. The
// buffer survives upload failures so a local dump is always possible.
func (r *Recorder) Buffered() []domain.Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Segment, len(r.buffered))
	copy(out, r.buffered)
	return out
}

// Done is closed when the finalization of the most recent Stop has run
// to completion (successfully or not). Nil before the first Stop.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Start begins a new capture session for the given owner.
func (r *Recorder) Start(ctx context.Context, owner, name string) error {
	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return domain.ErrRecording
	}
	ac := &activeCapture{session: domain.NewCaptureSession(owner, name, r.cfg.Extension)}
	r.active = ac
	r.buffered = nil
	r.mu.Unlock()

	segments, err := r.media.StartCapture(ctx, r.cfg.SegmentInterval)
	if err != nil {
		r.mu.Lock()
		r.active = nil
		r.mu.Unlock()
		return fmt.Errorf("failed to start capture: %w", err)
	}

	r.logger.Infow("capture started",
		"capture_id", ac.session.ID,
		"owner", owner,
		"segment_interval", r.cfg.SegmentInterval,
	)

	go r.captureLoop(ctx, ac, segments)
	return nil
}

// Stop ends the capture session and schedules reassembly. It returns
// immediately; the fetch-concatenate-publish-cleanup sequence runs in
// the background and survives caller cancellation, so segments already
// uploaded are never orphaned by a leave.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	ac := r.active
	if ac == nil {
		r.mu.Unlock()
		return domain.ErrNotRecording
	}
	r.active = nil
	done := make(chan struct{})
	r.done = done
	r.mu.Unlock()

	r.media.StopCapture()
	r.logger.Infow("capture stopped", "capture_id", ac.session.ID)

	finalizeCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		r.settle(ac)
		if err := r.reassemble(finalizeCtx, ac.session); err != nil {
			r.logger.Errorw("reassembly failed",
				"capture_id", ac.session.ID,
				"error", err,
			)
		}
	}()
	return nil
}

// captureLoop drains segments from the source. Each segment is buffered
// locally and uploaded concurrently; upload latency or failure never
// stalls the loop, and indices are never reused.
func (r *Recorder) captureLoop(ctx context.Context, ac *activeCapture, segments <-chan domain.Segment) {
	for segment := range segments {
		r.mu.Lock()
		r.buffered = append(r.buffered, segment)
		ac.session.Outcomes[segment.Index] = domain.SegmentPending
		r.mu.Unlock()

		ac.uploads.Add(1)
		go r.uploadSegment(ctx, ac, segment)
	}
}

// uploadSegment pushes one segment. Failures are logged and skipped:
// the index is spent either way, leaving a gap rather than reordering.
func (r *Recorder) uploadSegment(ctx context.Context, ac *activeCapture, segment domain.Segment) {
	defer ac.uploads.Done()

	session := ac.session
	key := session.SegmentKey(segment.Index)
	err := r.store.Upload(ctx, key, segment.Data, ports.UploadOptions{
		Overwrite:   true,
		ContentType: r.cfg.ContentType,
	})

	r.mu.Lock()
	if err != nil {
		session.Outcomes[segment.Index] = domain.SegmentFailed
	} else {
		session.Outcomes[segment.Index] = domain.SegmentUploaded
	}
	r.mu.Unlock()

	if err != nil {
		if r.metrics != nil {
			r.metrics.SegmentUploadFailed()
		}
		r.logger.Warnw("segment upload failed, skipping",
			"capture_id", session.ID,
			"index", segment.Index,
			"error", err,
		)
		return
	}

	if r.metrics != nil {
		r.metrics.SegmentUploaded(len(segment.Data))
	}
	r.logger.Debugw("segment uploaded",
		"capture_id", session.ID,
		"index", segment.Index,
		"bytes", len(segment.Data),
	)
}

// settle waits for in-flight uploads, bounded by the settle delay. The
// bound keeps a wedged upload from blocking reassembly forever; a
// segment that lands after the bound is treated like a failed upload.
func (r *Recorder) settle(ac *activeCapture) {
	if r.cfg.SettleDelay <= 0 {
		return
	}

	settled := make(chan struct{})
	go func() {
		ac.uploads.Wait()
		close(settled)
	}()

	select {
	case <-settled:
	case <-time.After(r.cfg.SettleDelay):
		r.logger.Warnw("settle delay elapsed with uploads still in flight",
			"capture_id", ac.session.ID,
		)
	}
}

// reassemble lists the session's persisted segments, fetches them in
// index order over signed URLs, concatenates them into one artifact,
// publishes it and deletes the originals. Originals are only removed
// after the artifact upload succeeded, so a failed attempt can be
// retried from persisted state; a successful prior run leaves nothing
// to list, making re-runs no-ops.
func (r *Recorder) reassemble(ctx context.Context, session *domain.CaptureSession) error {
	start := time.Now()
	ctx, span := tracing.TraceReassembly(ctx, "run", session.ID)
	defer span.End()

	var objects []ports.ObjectInfo
	err := retry.Do(ctx, r.retryCfg, func() error {
		var listErr error
		objects, listErr = r.store.List(ctx, session.Prefix())
		return listErr
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to list segments: %w", err)
	}

	indices := make([]int, 0, len(objects))
	for _, obj := range objects {
		if !domain.IsSegmentName(obj.Name, session.Ext) {
			continue
		}
		idx, _ := domain.ParseSegmentIndex(obj.Name)
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	if len(indices) == 0 {
		r.logger.Infow("no segments persisted, skipping reassembly", "capture_id", session.ID)
		return nil
	}

	// A gap means some upload failed; the artifact is knowingly partial.
	if indices[len(indices)-1] != len(indices)-1 {
		r.logger.Warnw("segment sequence has gaps, artifact will be partial",
			"capture_id", session.ID,
			"segments", len(indices),
			"highest_index", indices[len(indices)-1],
		)
	}

	var combined bytes.Buffer
	keys := make([]string, 0, len(indices))
	for _, idx := range indices {
		key := session.SegmentKey(idx)
		data, err := r.fetchSegment(ctx, key)
		if err != nil {
			tracing.RecordError(ctx, err)
			return fmt.Errorf("failed to fetch segment %d: %w", idx, err)
		}
		combined.Write(data)
		keys = append(keys, key)
	}

	artifactKey := fmt.Sprintf("%s/%s/%s%s_%s.%s",
		session.Owner,
		session.ID,
		domain.CombinedPrefix,
		utils.SanitizeName(session.Name),
		utils.ArtifactTimestamp(time.Now()),
		session.Ext,
	)

	err = r.store.Upload(ctx, artifactKey, combined.Bytes(), ports.UploadOptions{
		Overwrite:   true,
		ContentType: r.cfg.ContentType,
	})
	if err != nil {
		// Originals stay put so a later attempt can start over.
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to upload combined artifact: %w", err)
	}

	if err := r.store.Remove(ctx, keys); err != nil {
		r.logger.Warnw("failed to delete original segments",
			"capture_id", session.ID,
			"error", err,
		)
	}

	if r.metrics != nil {
		r.metrics.ReassemblyCompleted(time.Since(start), combined.Len())
	}
	r.logger.Infow("reassembly complete",
		"capture_id", session.ID,
		"artifact", artifactKey,
		"segments", len(keys),
		"bytes", combined.Len(),
		"duration", time.Since(start),
	)
	return nil
}

// fetchSegment signs a short-lived URL and downloads the content.
// Read-only, so transient failures are retried.
func (r *Recorder) fetchSegment(ctx context.Context, key string) ([]byte, error) {
	url, err := r.store.SignedURL(ctx, key, r.cfg.SignedURLTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign url for %s: %w", key, err)
	}

	var data []byte
	err = retry.Do(ctx, r.retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, key)
		}
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
