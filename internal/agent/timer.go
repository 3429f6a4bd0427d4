package agent

import "time"

// intervalTimer gates a periodic task on elapsed time since it last fired.
// time.Time carries a monotonic reading, so wall-clock jumps don't break
// the comparison.
type intervalTimer struct {
	interval time.Duration
	last     time.Time
}

func newIntervalTimer(interval time.Duration, now time.Time) *intervalTimer {
	return &intervalTimer{interval: interval, last: now}
}

// Due reports whether the interval has elapsed, and arms the next one.
func (t *intervalTimer) Due(now time.Time) bool {
	if now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}
