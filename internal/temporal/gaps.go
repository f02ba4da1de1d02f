package temporal

import (
	"sort"

	"github.com/yourorg/evidencelog/internal/records"
)

// Gap is a contiguous run of days with no record. StartDate and EndDate are
// both undocumented days.
type Gap struct {
	StartDate  records.Date `json:"startDate"`
	EndDate    records.Date `json:"endDate"`
	LengthDays int          `json:"lengthDays"`
}

// Bounds optionally limits the range FindGaps considers.
type Bounds struct {
	Start *records.Date
	End   *records.Date
}

// FindGaps returns the silences in dates of at least minGapDays missing days.
// Input order and duplicates do not matter. Dates outside supplied bounds are
// ignored; bounds add a leading and trailing gap.
func FindGaps(dates []records.Date, minGapDays int, bounds Bounds) []Gap {
	if minGapDays < 1 {
		minGapDays = 1
	}
	days := uniqueDays(dates, bounds)

	var startDay, endDay int
	hasStart, hasEnd := bounds.Start != nil, bounds.End != nil
	if hasStart {
		startDay = records.DayNumber(*bounds.Start)
	}
	if hasEnd {
		endDay = records.DayNumber(*bounds.End)
	}
	if hasStart && hasEnd && endDay < startDay {
		return []Gap{}
	}

	gaps := []Gap{}
	if len(days) == 0 {
		if hasStart && hasEnd && endDay-startDay+1 >= minGapDays {
			gaps = append(gaps, gapBetween(startDay, endDay))
		}
		return gaps
	}

	if hasStart && days[0]-startDay >= minGapDays {
		gaps = append(gaps, gapBetween(startDay, days[0]-1))
	}
	for i := 1; i < len(days); i++ {
		prev, cur := days[i-1], days[i]
		if cur-prev-1 >= minGapDays {
			gaps = append(gaps, gapBetween(prev+1, cur-1))
		}
	}
	last := days[len(days)-1]
	if hasEnd && endDay-last >= minGapDays {
		gaps = append(gaps, gapBetween(last+1, endDay))
	}
	return gaps
}

func uniqueDays(dates []records.Date, bounds Bounds) []int {
	seen := make(map[int]struct{}, len(dates))
	out := make([]int, 0, len(dates))
	for _, d := range dates {
		n := records.DayNumber(d)
		if bounds.Start != nil && n < records.DayNumber(*bounds.Start) {
			continue
		}
		if bounds.End != nil && n > records.DayNumber(*bounds.End) {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func gapBetween(startDay, endDay int) Gap {
	start := dateFromDay(startDay)
	end := dateFromDay(endDay)
	return Gap{StartDate: start, EndDate: end, LengthDays: endDay - startDay}
}

var epoch = records.MustDate("1970-01-01")

func dateFromDay(n int) records.Date {
	return records.AddDays(epoch, n)
}

// ExplainedGap pairs a gap with the user's explanation, if one exists for the
// exact same interval.
type ExplainedGap struct {
	Gap
	Explanation *records.GapExplanation `json:"explanation,omitempty"`
}

// Explained reports whether an explanation was matched.
func (g ExplainedGap) Explained() bool { return g.Explanation != nil }

// Explain matches gaps to explanations by exact start and end date.
func Explain(gaps []Gap, explanations []records.GapExplanation) []ExplainedGap {
	type key struct{ start, end int }
	index := make(map[key]records.GapExplanation, len(explanations))
	for _, e := range explanations {
		k := key{records.DayNumber(e.StartDate), records.DayNumber(e.EndDate)}
		if _, dup := index[k]; !dup {
			index[k] = e
		}
	}
	out := make([]ExplainedGap, 0, len(gaps))
	for _, g := range gaps {
		eg := ExplainedGap{Gap: g}
		if e, ok := index[key{records.DayNumber(g.StartDate), records.DayNumber(g.EndDate)}]; ok {
			e := e
			eg.Explanation = &e
		}
		out = append(out, eg)
	}
	return out
}
