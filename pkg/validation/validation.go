package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// RoomNameRegex validates room name format.
	RoomNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateRoomName validates a room name before it reaches the
// coordinator. The coordinator itself never rejects input; the caller
// layer owns validation.
func ValidateRoomName(room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return fmt.Errorf("room name is required")
	}
	if len(room) > 100 {
		return fmt.Errorf("room name is too long (max 100 characters)")
	}
	if !RoomNameRegex.MatchString(room) {
		return fmt.Errorf("room name contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateDisplayName validates a participant display name.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("display name is too long (max 64 characters)")
	}
	return nil
}
