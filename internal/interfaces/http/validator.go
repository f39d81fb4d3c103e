package http

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageLength = 4000
	MaxHistoryTurns  = 50
	DefaultUsageDays = 7
	MaxUsageDays     = 90
)

// SanitizeString removes null bytes and invalid UTF-8.
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return s
}

// TruncateString cuts s to at most maxLen runes.
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}

// ValidateLength checks the rune count of s against the bounds.
func ValidateLength(s string, min, max int) bool {
	l := utf8.RuneCountInString(s)
	return l >= min && l <= max
}

// ParseDays reads a days query value, falling back to the default for
// anything missing or outside 1..MaxUsageDays.
func ParseDays(raw string) int {
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > MaxUsageDays {
		return DefaultUsageDays
	}
	return days
}
