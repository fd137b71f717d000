package utils

import (
	"time"
)

// ParseDuration safely parses a duration string like "10s", falling back on
// empty, invalid or non-positive input
func ParseDuration(d string, fallback time.Duration) time.Duration {
	if d == "" {
		return fallback
	}
	duration, err := time.ParseDuration(d)
	if err != nil || duration <= 0 {
		return fallback
	}
	return duration
}

// FirstPositive returns the first value greater than zero, or 0
func FirstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
