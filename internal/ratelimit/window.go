// Package ratelimit holds the pure window arithmetic behind the OTP
// quota counters. No I/O happens here; callers read the stored window
// start, ask whether it expired, and commit any reset themselves.
package ratelimit

import "time"

const (
	HourWindow = time.Hour
	DayWindow  = 24 * time.Hour
)

// IsWindowExpired reports whether a counting window that started at
// windowStart is over at now. A nil start means the window was never
// opened and counts as expired, so the caller may safely reset to zero.
func IsWindowExpired(windowStart *time.Time, now time.Time, window time.Duration) bool {
	if windowStart == nil {
		return true
	}
	return now.Sub(*windowStart) >= window
}

func IsHourWindowExpired(windowStart *time.Time, now time.Time) bool {
	return IsWindowExpired(windowStart, now, HourWindow)
}

func IsDayWindowExpired(windowStart *time.Time, now time.Time) bool {
	return IsWindowExpired(windowStart, now, DayWindow)
}

// EffectiveCount normalizes a stored counter against its window: an
// expired window contributes zero, a live one contributes the stored
// count unchanged.
func EffectiveCount(stored int, windowStart *time.Time, now time.Time, window time.Duration) int {
	if IsWindowExpired(windowStart, now, window) {
		return 0
	}
	return stored
}
