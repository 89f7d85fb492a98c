package models

import "time"

// Timer is written once when the host starts the game. Every reader derives
// the remaining time from it instead of counting down on its own.
type Timer struct {
	StartTime   int64 `json:"startTime"` // epoch ms
	Duration    int   `json:"duration"`  // seconds
	Initialized bool  `json:"initialized"`
}

// Remaining returns the whole seconds left at now, never negative.
func (t *Timer) Remaining(now time.Time) int {
	if t == nil || !t.Initialized {
		return 0
	}
	elapsed := now.UnixMilli() - t.StartTime
	left := int64(t.Duration)*1000 - elapsed
	if left <= 0 {
		return 0
	}
	return int((left + 999) / 1000)
}

// Deadline is the wall-clock instant the timer runs out.
func (t *Timer) Deadline() time.Time {
	return time.UnixMilli(t.StartTime).Add(time.Duration(t.Duration) * time.Second)
}

func (t *Timer) Expired(now time.Time) bool {
	return t != nil && t.Initialized && !now.Before(t.Deadline())
}
