package model

import "time"

// DefaultStaleAfter is how long a processing attempt may go without
// finishing before it is treated as abandoned.
const DefaultStaleAfter = 8 * time.Minute

// IsStale reports whether a processing attempt that began at startedAt has
// outlived threshold as of now. A nil start time is never stale.
func IsStale(now time.Time, startedAt *time.Time, threshold time.Duration) bool {
	if startedAt == nil {
		return false
	}
	return now.Sub(*startedAt) > threshold
}
