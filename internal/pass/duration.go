package pass

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInterval means time in precedes time out. Callers decide
// whether to display "Invalid" or reject the edit; the span is never
// clamped to zero.
var ErrInvalidInterval = errors.New("time in precedes time out")

// Duration is the time a student has spent (or spent) out of class.
// Final is false while the pass is still open and the value was
// computed against "now".
type Duration struct {
	Elapsed time.Duration
	Final   bool
}

// Between computes the duration of a pass. When timeIn is nil the pass
// is ongoing and now is used as the end of the interval. now is always
// an explicit argument so the function stays deterministic.
func Between(timeOut time.Time, timeIn *time.Time, now time.Time) (Duration, error) {
	end := now
	final := false
	if timeIn != nil {
		end = *timeIn
		final = true
	}

	elapsed := end.Sub(timeOut)
	if elapsed < 0 {
		return Duration{}, ErrInvalidInterval
	}
	return Duration{Elapsed: elapsed, Final: final}, nil
}

// Breakdown splits the duration into whole hours, minutes and seconds.
// Sub-second remainder is truncated.
func (d Duration) Breakdown() (hours, minutes, seconds int) {
	total := int(d.Elapsed / time.Second)
	return total / 3600, (total % 3600) / 60, total % 60
}

// String renders the compact "Xh Ym Zs" form, omitting zero-valued
// leading units ("7m 0s", "42s").
func (d Duration) String() string {
	hours, minutes, seconds := d.Breakdown()
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// TotalMinutes returns the whole-minute total, used for filtering and
// sorting ("duration >= N minutes").
func (d Duration) TotalMinutes() int {
	return int(d.Elapsed / time.Minute)
}
