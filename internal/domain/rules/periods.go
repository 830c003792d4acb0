package rules

import (
	"time"

	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
)

// NextResetAt returns the first period boundary strictly after now:
// next UTC midnight for daily periods, first of the next month for monthly.
func NextResetAt(now time.Time, kind enums.PeriodKind) time.Time {
	now = now.UTC()
	switch kind {
	case enums.PeriodDaily:
		return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	case enums.PeriodMonthly:
		return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	}
}

// PeriodElapsed reports whether a counter with the given reset timestamp is
// stale at now. A zero resetAt (counter never initialised) counts as elapsed.
func PeriodElapsed(now, resetAt time.Time) bool {
	if resetAt.IsZero() {
		return true
	}
	return !now.UTC().Before(resetAt.UTC())
}
