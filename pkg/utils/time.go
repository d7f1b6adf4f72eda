package utils

import (
	"fmt"
	"time"
)

// FormatCallDuration renders elapsed call seconds as M:SS, or H:MM:SS once
// past one hour.
func FormatCallDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// IsExpired checks if a timestamp is expired
func IsExpired(timestamp time.Time, ttl time.Duration) bool {
	return Since(timestamp) > ttl
}

// Now returns current time (useful for mocking in tests)
var Now = time.Now

// Since returns time since given time
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}
