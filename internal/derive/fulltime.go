package derive

import "github.com/yourorg/evidencelog/internal/records"

// Full-time thresholds.
const (
	MinPostureHours         = 6.0
	MinConcentrationMinutes = 30
	MaxBadDaysPer30         = 2.0
	MaxStoppedEarlyFraction = 0.5
)

// FullTime is the three-part full-time work determination. Capable is the
// AND of the three conditions.
type FullTime struct {
	Capable              bool    `json:"capable"`
	PostureHoursOK       bool    `json:"postureHoursOk"`
	ConcentrationOK      bool    `json:"concentrationOk"`
	AttendanceOK         bool    `json:"attendanceOk"`
	PostureHours         float64 `json:"postureHours"`
	ConcentrationMinutes int     `json:"concentrationMinutes"`
	BadDaysPer30         float64 `json:"badDaysPer30"`
	StoppedEarlyFraction float64 `json:"stoppedEarlyFraction"`
}

// PostureHours is sitting hours plus the smaller of standing and walking
// hours, since stand/walk time needs both.
func PostureHours(r Result) float64 {
	hours := func(d records.Capacity) float64 {
		if c, ok := r.Claim(d); ok && c.HoursPerDay != nil {
			return *c.HoursPerDay
		}
		return DefaultPostureHours
	}
	standWalk := hours(records.CapacityStanding)
	if walk := hours(records.CapacityWalking); walk < standWalk {
		standWalk = walk
	}
	return hours(records.CapacitySitting) + standWalk
}

// PostureHoursOK reports whether sustained posture hours reach a workday.
func PostureHoursOK(r Result) bool {
	return PostureHours(r) >= MinPostureHours
}

// ConcentrationMinutes is the sustained concentration span of r.
func ConcentrationMinutes(r Result) int {
	if c, ok := r.Claim(records.CapacityConcentration); ok && c.MaxMinutes != nil {
		return *c.MaxMinutes
	}
	return DefaultConcentrationMinutes
}

// ConcentrationOK reports whether the span reaches the minimum task length.
func ConcentrationOK(r Result) bool {
	return ConcentrationMinutes(r) >= MinConcentrationMinutes
}

// BadDaysPer30 normalizes bad days to a 30-day month.
func BadDaysPer30(logs []*records.DailyLog, windowDays int) float64 {
	if windowDays <= 0 {
		return 0
	}
	bad := 0
	for _, l := range logs {
		if l.BadDay {
			bad++
		}
	}
	return float64(bad) * 30 / float64(windowDays)
}

// StoppedEarlyFraction is the share of activities abandoned part way.
func StoppedEarlyFraction(logs []*records.ActivityLog) float64 {
	if len(logs) == 0 {
		return 0
	}
	stopped := 0
	for _, a := range logs {
		if a.StoppedEarly {
			stopped++
		}
	}
	return float64(stopped) / float64(len(logs))
}

// AttendanceOK is false when absences or pace problems are unpredictable.
func AttendanceOK(badDaysPer30, stoppedEarly float64) bool {
	return badDaysPer30 < MaxBadDaysPer30 && stoppedEarly <= MaxStoppedEarlyFraction
}

func assessFullTime(r Result, w window) FullTime {
	ft := FullTime{
		PostureHours:         PostureHours(r),
		ConcentrationMinutes: ConcentrationMinutes(r),
		BadDaysPer30:         BadDaysPer30(w.daily, w.days),
		StoppedEarlyFraction: StoppedEarlyFraction(w.activities),
	}
	ft.PostureHoursOK = PostureHoursOK(r)
	ft.ConcentrationOK = ConcentrationOK(r)
	ft.AttendanceOK = AttendanceOK(ft.BadDaysPer30, ft.StoppedEarlyFraction)
	ft.Capable = ft.PostureHoursOK && ft.ConcentrationOK && ft.AttendanceOK
	return ft
}
