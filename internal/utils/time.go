package utils

import "time"

// NowUTC returns current time in UTC timezone.
func NowUTC() time.Time {
	return time.Now().UTC()
}
