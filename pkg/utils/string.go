package utils

import (
	"strings"
	"unicode"
)

// SanitizeName reduces a display name to a key-safe token: every rune
// outside [a-zA-Z0-9] becomes '_'. Empty input yields "user".
func SanitizeName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "user"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) && r < 128 || unicode.IsDigit(r) && r < 128 {
			return r
		}
		return '_'
	}, name)
}

// TruncateString truncates a string to max length.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// IsEmpty checks if string is empty or only whitespace.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}
