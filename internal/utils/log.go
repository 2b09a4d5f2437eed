package utils

import "strings"

// TruncateForLog collapses whitespace runs into single spaces so multi-line
// text stays on one log line, then shortens it to limit runes, appending an
// ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
