package core

import (
	"fmt"
	"time"
)

// Countdown is the remaining time of a cycle split for display.
type Countdown struct {
	RemainingSeconds int
	Minutes          string
	Seconds          string
}

// Title renders the countdown as MM:SS.
func (c Countdown) Title() string {
	return c.Minutes + ":" + c.Seconds
}

// DeriveCountdown computes the remaining time from a target and the elapsed seconds.
func DeriveCountdown(targetSeconds, elapsedSeconds int) Countdown {
	remaining := targetSeconds - elapsedSeconds
	if remaining < 0 {
		remaining = 0
	}
	return Countdown{
		RemainingSeconds: remaining,
		Minutes:          fmt.Sprintf("%02d", remaining/60),
		Seconds:          fmt.Sprintf("%02d", remaining%60),
	}
}

// ElapsedSince returns the whole seconds between start and now, never negative.
// Elapsed time is always derived from the two absolute timestamps so delayed or
// skipped ticks do not accumulate drift.
func ElapsedSince(start, now time.Time) int {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
