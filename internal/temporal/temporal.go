// Package temporal computes logging delay, retrospective flags and
// documentation gaps over stored event dates. It performs no I/O.
package temporal

import (
	"fmt"
	"strings"
	"time"

	"github.com/yourorg/evidencelog/internal/records"
)

// DefaultRetroThresholdDays is the delay above which a record is flagged as
// retrospective without a declared reason.
const DefaultRetroThresholdDays = 7

// DaysDelayed returns the whole-day distance between the event date and the
// UTC calendar day of createdAt. It is never negative.
func DaysDelayed(eventDate records.Date, createdAt time.Time) int {
	d := records.DaysBetween(eventDate, records.DateOf(createdAt))
	if d < 0 {
		return 0
	}
	return d
}

// Retrospective assesses records at creation time.
type Retrospective struct {
	ThresholdDays int
}

// Assess returns the context to attach, or nil when the record is neither
// delayed past the threshold nor carries a declared reason or note.
func (r Retrospective) Assess(eventDate records.Date, createdAt time.Time, declared records.Declared, now time.Time) *records.RetrospectiveContext {
	threshold := r.ThresholdDays
	if threshold <= 0 {
		threshold = DefaultRetroThresholdDays
	}
	days := DaysDelayed(eventDate, createdAt)
	if days <= threshold && declared.IsZero() {
		return nil
	}
	reason := declared.Reason
	if reason == "" {
		reason = records.RetroDelayedEntry
	}
	return &records.RetrospectiveContext{
		DaysDelayed: days,
		FlaggedAt:   now.UTC(),
		Reason:      reason,
		Note:        strings.TrimSpace(declared.Note),
	}
}

// AssessRetrospective applies the default threshold.
func AssessRetrospective(eventDate records.Date, createdAt time.Time, declared records.Declared, now time.Time) *records.RetrospectiveContext {
	return Retrospective{}.Assess(eventDate, createdAt, declared, now)
}

// DelayLabel renders a delay in days for reports.
func DelayLabel(days int) string {
	switch {
	case days <= 0:
		return "same day"
	case days == 1:
		return "1 day later"
	default:
		return fmt.Sprintf("%d days later", days)
	}
}
