package utils

import (
	"fmt"
	"strings"
	"time"
)

// layouts accepted for transaction timestamps, most specific first.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp returns a time from the provided string or an error. Values without a
// zone are read as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parse time: %w", lastErr)
}

// FormatISO renders t as an ISO-8601 timestamp.
func FormatISO(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// DurationMilliseconds converts a duration to fractional milliseconds.
func DurationMilliseconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
