// Package clock provides the millisecond/second timestamps used throughout
// the hedge trader for BBO freshness checks and order bookkeeping.
package clock

import "time"

// NowMs returns the current wall-clock time in Unix milliseconds.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// NowSec returns the current wall-clock time in Unix seconds.
func NowSec() int64 {
	return time.Now().Unix()
}

// SinceMs returns the number of milliseconds elapsed since tMs.
func SinceMs(tMs int64) int64 {
	return NowMs() - tMs
}
