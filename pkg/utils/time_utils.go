package utils

import "time"

// Timestamps are stored as epoch seconds throughout the schema.
func NowUnixSeconds() int64 { return time.Now().Unix() }

func FormatRFC3339(t int64) string {
	if t <= 0 {
		return ""
	}
	return time.Unix(t, 0).UTC().Format(time.RFC3339)
}
