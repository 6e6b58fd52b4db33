package epochs

import (
	"time"
)

// EpochDuration is fixed across the whole system. Pools differ only in their
// start date, never in epoch length.
const EpochDuration = 7 * 24 * time.Hour

// Clock maps timestamps to epoch indexes for one pool. Epoch 0 is the time
// before the pool's start date; the first real epoch is 1. Boundaries are
// deterministic and gapless: an epoch can never be skipped or resized.
type Clock struct {
	StartDate time.Time
}

func NewClock(startDate time.Time) Clock {
	return Clock{StartDate: startDate}
}

// EpochOf returns the epoch index containing ts, or 0 if ts precedes the
// pool's start date.
func (c Clock) EpochOf(ts time.Time) uint64 {
	if ts.Before(c.StartDate) {
		return 0
	}
	return uint64(ts.Sub(c.StartDate)/EpochDuration) + 1
}

// EpochBounds returns the [start, end) interval of an epoch. Epoch 0 has no
// meaningful bounds; callers are expected to pass index >= 1.
func (c Clock) EpochBounds(index uint64) (time.Time, time.Time) {
	end := c.StartDate.Add(time.Duration(index) * EpochDuration)
	return end.Add(-EpochDuration), end
}

// Started reports whether ts is at or past the pool's start date.
func (c Clock) Started(ts time.Time) bool {
	return !ts.Before(c.StartDate)
}
