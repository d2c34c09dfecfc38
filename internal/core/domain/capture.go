package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"paircall/pkg/utils"
)

// SegmentStatus is the upload outcome of one capture segment.
type SegmentStatus string

const (
	SegmentPending   SegmentStatus = "pending"
	SegmentUploaded  SegmentStatus = "uploaded"
	SegmentFailed    SegmentStatus = "failed"
)

// Segment is one fixed-duration slice of encoded capture output.
type Segment struct {
	Index int
	Data  []byte
}

// CaptureSession groups all segments of one start-to-stop recording.
type CaptureSession struct {
	ID        string
	Owner     string
	Name      string // display name, sanitized into the artifact key
	Ext       string // segment file extension, e.g. "webm"
	StartedAt time.Time
	Outcomes  map[int]SegmentStatus
}

// NewCaptureSession creates a session with a timestamp-derived identifier.
func NewCaptureSession(owner, name, ext string) *CaptureSession {
	return &CaptureSession{
		ID:        utils.GenerateCaptureID(),
		Owner:     owner,
		Name:      name,
		Ext:       ext,
		StartedAt: time.Now(),
		Outcomes:  make(map[int]SegmentStatus),
	}
}

// Prefix is the object-store prefix holding this session's segments.
func (cs *CaptureSession) Prefix() string {
	return cs.Owner + "/" + cs.ID + "/"
}

// SegmentKey builds the object key for one segment index.
func (cs *CaptureSession) SegmentKey(index int) string {
	return fmt.Sprintf("%s/%s/part_%d.%s", cs.Owner, cs.ID, index, cs.Ext)
}

const segmentPrefix = "part_"

// ParseSegmentIndex extracts the numeric index from a segment object name
// like "part_3.webm". Returns false for names that are not segments.
func ParseSegmentIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, segmentPrefix) {
		return 0, false
	}
	rest := strings.TrimPrefix(name, segmentPrefix)
	dot := strings.IndexByte(rest, '.')
	if dot <= 0 {
		return 0, false
	}
	idx, err := strconv.Atoi(rest[:dot])
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// IsSegmentName reports whether an object name follows the segment
// naming convention for the given extension.
func IsSegmentName(name, ext string) bool {
	if !strings.HasSuffix(name, "."+ext) {
		return false
	}
	_, ok := ParseSegmentIndex(name)
	return ok
}

// CombinedPrefix marks combined artifact object names.
const CombinedPrefix = "combined_"

// IsCombinedName reports whether an object name is a combined artifact.
func IsCombinedName(name, ext string) bool {
	return strings.HasPrefix(name, CombinedPrefix) && strings.HasSuffix(name, "."+ext)
}
