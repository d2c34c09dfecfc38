package utils

import (
	"strings"
	"time"
)

// ArtifactTimestamp formats a time for embedding in object keys:
// RFC3339 with ':' and '.' replaced so the key stays path-safe.
func ArtifactTimestamp(t time.Time) string {
	s := t.UTC().Format(time.RFC3339)
	s = strings.ReplaceAll(s, ":", "-")
	s = strings.ReplaceAll(s, ".", "-")
	return s
}

// FormatTimestamp formats timestamp in ISO 8601 format.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

// Now returns current time (useful for mocking in tests).
var Now = time.Now
