// Package clock provides the monotonic microsecond clock used by the
// timer wheel, sync buffer and job queue to schedule and pace work.
package clock

import "time"

var start = time.Now()

// NowUS returns a monotonically increasing microsecond timestamp. The
// origin is process start, not the Unix epoch; callers only ever
// subtract two NowUS values, never interpret one as wall-clock time.
func NowUS() int64 {
	return time.Since(start).Microseconds()
}

// SleepUS blocks the calling goroutine for n microseconds.
func SleepUS(n int64) {
	time.Sleep(time.Duration(n) * time.Microsecond)
}

// DeadlineUS returns the clock.NowUS() value n microseconds from now.
func DeadlineUS(n int64) int64 {
	return NowUS() + n
}
