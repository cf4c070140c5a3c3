package estimates

import "time"

const (
	msPerHour   = 3600000
	msPerMinute = 60000
	msPerSecond = 1000
)

// WaitPeriod is the structured payload returned while a document's cooldown
// window is still open.
type WaitPeriod struct {
	RemainingMs         int64     `json:"remainingMs"`
	RemainingHours      int64     `json:"remainingHours"`
	RemainingMinutes    int64     `json:"remainingMinutes"`
	RemainingSeconds    int64     `json:"remainingSeconds"`
	ProcessingStartedAt time.Time `json:"processingStartedAt"`
	CanGenerateAt       time.Time `json:"canGenerateAt"`
}

// NewWaitPeriod buckets the remaining cooldown into whole hours, minutes and
// seconds by integer division of the millisecond remainder.
func NewWaitPeriod(startedAt time.Time, cooldown time.Duration, now time.Time) WaitPeriod {
	canGenerateAt := startedAt.Add(cooldown)
	remaining := canGenerateAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	ms := remaining.Milliseconds()
	return WaitPeriod{
		RemainingMs:         ms,
		RemainingHours:      ms / msPerHour,
		RemainingMinutes:    (ms % msPerHour) / msPerMinute,
		RemainingSeconds:    (ms % msPerMinute) / msPerSecond,
		ProcessingStartedAt: startedAt.UTC(),
		CanGenerateAt:       canGenerateAt.UTC(),
	}
}

// Active reports whether the cooldown still blocks a new attempt.
func (w WaitPeriod) Active() bool { return w.RemainingMs > 0 }
