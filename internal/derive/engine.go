// Package derive turns logged records and declared limitations into
// classified functional-capacity claims, each citing the records behind it.
package derive

import (
	"sort"

	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/records"
)

// EvidenceSampleSize caps the ids cited by one claim. EvidenceTotal on the
// claim keeps the full count.
const EvidenceSampleSize = 5

// Input is the record set a derivation runs over.
type Input struct {
	ProfileID   string
	From        *records.Date
	To          *records.Date
	Daily       []*records.DailyLog
	Activities  []*records.ActivityLog
	Limitations []records.Limitation
}

// Claim is one derived capacity statement.
type Claim struct {
	Dimension          records.Capacity `json:"dimension"`
	Restricted         bool             `json:"restricted"`
	Level              Level            `json:"level"`
	MaxMinutes         *int             `json:"maxMinutes,omitempty"`
	HoursPerDay        *float64         `json:"hoursPerDay,omitempty"`
	MaxLiftLbs         *float64         `json:"maxLiftLbs,omitempty"`
	Evidence           []string         `json:"evidence"`
	EvidenceTotal      int              `json:"evidenceTotal"`
	QualifyingFraction float64          `json:"qualifyingFraction"`
	LimitationID       string           `json:"limitationId,omitempty"`
}

// Result is the full output of one derivation.
type Result struct {
	ProfileID   string        `json:"profileId"`
	From        *records.Date `json:"from,omitempty"`
	To          *records.Date `json:"to,omitempty"`
	RecordCount int           `json:"recordCount"`
	Claims      []Claim       `json:"claims"`
	LiftLbs     float64       `json:"liftLbs"`
	Rating      WorkRating    `json:"rating"`
	FullTime    FullTime      `json:"fullTime"`
}

// Claim returns the claim for a dimension.
func (r Result) Claim(d records.Capacity) (Claim, bool) {
	for _, c := range r.Claims {
		if c.Dimension == d {
			return c, true
		}
	}
	return Claim{}, false
}

// window is the filtered record set.
type window struct {
	daily      []*records.DailyLog
	activities []*records.ActivityLog
	days       int
}

// Derive runs every dimension rule over the records in the input window.
// A window with no records is an InsufficientData error.
func Derive(in Input) (Result, error) {
	w := filterWindow(in)
	if len(w.daily)+len(w.activities) == 0 {
		return Result{}, faults.InsufficientData("no records in the requested window")
	}

	limitations := activeLimitations(in.Limitations)
	claims := make([]Claim, 0, len(dimensionRules))
	for _, rule := range dimensionRules {
		claims = append(claims, deriveDimension(rule, w, limitations[rule.Dimension]))
	}

	res := Result{
		ProfileID:   in.ProfileID,
		From:        in.From,
		To:          in.To,
		RecordCount: len(w.daily) + len(w.activities),
		Claims:      claims,
	}
	res.LiftLbs = liftCapacity(res)
	res.Rating = RatingFor(res.LiftLbs)
	res.FullTime = assessFullTime(res, w)

	if err := validateEvidence(res, w, in.Limitations); err != nil {
		return Result{}, err
	}
	return res, nil
}

func filterWindow(in Input) window {
	inside := func(d records.Date) bool {
		if in.From != nil && records.DaysBetween(*in.From, d) < 0 {
			return false
		}
		if in.To != nil && records.DaysBetween(d, *in.To) < 0 {
			return false
		}
		return true
	}
	var w window
	first, last := 0, 0
	seen := false
	track := func(d records.Date) {
		n := records.DayNumber(d)
		if !seen || n < first {
			first = n
		}
		if !seen || n > last {
			last = n
		}
		seen = true
	}
	for _, l := range in.Daily {
		if l != nil && inside(l.EventDate) {
			w.daily = append(w.daily, l)
			track(l.EventDate)
		}
	}
	for _, a := range in.Activities {
		if a != nil && inside(a.EventDate) {
			w.activities = append(w.activities, a)
			track(a.EventDate)
		}
	}
	switch {
	case in.From != nil && in.To != nil:
		w.days = records.DaysBetween(*in.From, *in.To) + 1
	case seen:
		w.days = last - first + 1
	}
	return w
}

func activeLimitations(all []records.Limitation) map[records.Capacity]*records.Limitation {
	out := map[records.Capacity]*records.Limitation{}
	sorted := append([]records.Limitation(nil), all...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })
	for i := range sorted {
		l := sorted[i]
		if !l.Active {
			continue
		}
		if _, ok := out[l.Category]; !ok {
			out[l.Category] = &l
		}
	}
	return out
}

// citation is a record that qualified for a dimension.
type citation struct {
	id       string
	date     records.Date
	severity int
}

func deriveDimension(rule dimensionRule, w window, limitation *records.Limitation) Claim {
	var dailyHits []citation
	for _, l := range w.daily {
		if sev, ok := dailyQualifies(rule, l); ok {
			dailyHits = append(dailyHits, citation{id: l.ID, date: l.EventDate, severity: sev})
		}
	}
	var activityHits []citation
	var measured []*records.ActivityLog
	postureTotal := 0
	for _, a := range w.activities {
		if !postureMatches(rule, a.Posture) {
			continue
		}
		postureTotal++
		if a.ImpactSeverity >= HighImpactSeverity || a.StoppedEarly {
			activityHits = append(activityHits, citation{id: a.ID, date: a.EventDate, severity: a.ImpactSeverity})
			measured = append(measured, a)
		}
	}

	dailyMajority := len(w.daily) > 0 && 2*len(dailyHits) > len(w.daily)
	activityMajority := postureTotal > 0 && 2*len(activityHits) > postureTotal
	fraction := 0.0
	if len(w.daily) > 0 {
		fraction = float64(len(dailyHits)) / float64(len(w.daily))
	}

	if !dailyMajority && !activityMajority && limitation == nil {
		return unrestricted(rule.Dimension, fraction)
	}

	hits := append(append([]citation{}, dailyHits...), activityHits...)
	sort.SliceStable(hits, func(i, j int) bool {
		if d := records.DaysBetween(hits[j].date, hits[i].date); d != 0 {
			return d < 0
		}
		return hits[i].id < hits[j].id
	})

	level := LevelModerate
	if len(hits) > 0 {
		sum := 0
		for _, h := range hits {
			sum += h.severity
		}
		level = levelFor(float64(sum) / float64(len(hits)))
	}

	evidence := make([]string, 0, EvidenceSampleSize)
	total := len(hits)
	claim := Claim{
		Dimension:          rule.Dimension,
		Restricted:         true,
		Level:              level,
		QualifyingFraction: fraction,
	}
	if limitation != nil {
		evidence = append(evidence, limitation.ID)
		claim.LimitationID = limitation.ID
		total++
	}
	for _, h := range hits {
		if len(evidence) == EvidenceSampleSize {
			break
		}
		evidence = append(evidence, h.id)
	}
	claim.Evidence = evidence
	claim.EvidenceTotal = total
	applyValue(&claim, limitation, measured)
	return claim
}

func dailyQualifies(rule dimensionRule, l *records.DailyLog) (int, bool) {
	best, ok := 0, false
	for _, entry := range l.Symptoms {
		for _, th := range rule.Symptoms {
			if entry.Symptom == th.Symptom && entry.Severity >= th.MinSeverity {
				if !ok || entry.Severity > best {
					best = entry.Severity
				}
				ok = true
			}
		}
	}
	return best, ok
}

func postureMatches(rule dimensionRule, p records.Posture) bool {
	for _, candidate := range rule.Postures {
		if candidate == p {
			return true
		}
	}
	return false
}

func unrestricted(d records.Capacity, fraction float64) Claim {
	c := Claim{Dimension: d, Level: LevelNone, Evidence: []string{}, QualifyingFraction: fraction}
	switch d {
	case records.CapacityLifting, records.CapacityCarrying:
		c.MaxLiftLbs = float64Ptr(DefaultLiftLbs)
	case records.CapacityConcentration:
		c.MaxMinutes = intPtr(DefaultConcentrationMinutes)
	default:
		c.HoursPerDay = float64Ptr(DefaultPostureHours)
	}
	return c
}

// applyValue sets the measured bound of a restricted claim. A declared
// limitation wins, then the shortest or lightest qualifying activity, then
// the level table.
func applyValue(c *Claim, limitation *records.Limitation, measured []*records.ActivityLog) {
	limits := limitsByLevel[c.Level]
	switch c.Dimension {
	case records.CapacityLifting, records.CapacityCarrying:
		lbs := limits.LiftLbs
		if w, ok := lightestWeight(measured); ok {
			lbs = w
		}
		if limitation != nil && limitation.MaxWeightLbs != nil {
			lbs = *limitation.MaxWeightLbs
		}
		c.MaxLiftLbs = float64Ptr(lbs)
	case records.CapacityConcentration:
		minutes := limits.ConcentrationMinutes
		if m, ok := shortestDuration(measured); ok {
			minutes = m
		}
		if limitation != nil && limitation.MaxDurationMinutes != nil {
			minutes = *limitation.MaxDurationMinutes
		}
		c.MaxMinutes = intPtr(minutes)
	default:
		minutes := limits.PostureMinutes
		if m, ok := shortestDuration(measured); ok {
			minutes = m
		}
		if limitation != nil && limitation.MaxDurationMinutes != nil {
			minutes = *limitation.MaxDurationMinutes
		}
		c.MaxMinutes = intPtr(minutes)
		c.HoursPerDay = float64Ptr(limits.PostureHours)
	}
}

func shortestDuration(logs []*records.ActivityLog) (int, bool) {
	best, ok := 0, false
	for _, a := range logs {
		if a.DurationMinutes > 0 && (!ok || a.DurationMinutes < best) {
			best, ok = a.DurationMinutes, true
		}
	}
	return best, ok
}

func lightestWeight(logs []*records.ActivityLog) (float64, bool) {
	best, ok := 0.0, false
	for _, a := range logs {
		if a.WeightLbs != nil && (!ok || *a.WeightLbs < best) {
			best, ok = *a.WeightLbs, true
		}
	}
	return best, ok
}

// liftCapacity is the lower of the lifting and carrying bounds.
func liftCapacity(r Result) float64 {
	lbs := DefaultLiftLbs
	for _, d := range []records.Capacity{records.CapacityLifting, records.CapacityCarrying} {
		if c, ok := r.Claim(d); ok && c.MaxLiftLbs != nil && *c.MaxLiftLbs < lbs {
			lbs = *c.MaxLiftLbs
		}
	}
	return lbs
}

// validateEvidence checks that every cited id is in the derivation input.
func validateEvidence(r Result, w window, limitations []records.Limitation) error {
	known := map[string]bool{}
	for _, l := range w.daily {
		known[l.ID] = true
	}
	for _, a := range w.activities {
		known[a.ID] = true
	}
	for _, l := range limitations {
		known[l.ID] = true
	}
	for _, c := range r.Claims {
		if len(c.Evidence) > EvidenceSampleSize {
			return faults.Integrity("claim exceeds evidence sample size", map[string]string{"dimension": string(c.Dimension)})
		}
		for _, id := range c.Evidence {
			if !known[id] {
				return faults.Integrity("claim cites a record outside the input", map[string]string{
					"dimension": string(c.Dimension),
					"id":        id,
				})
			}
		}
	}
	return nil
}

func intPtr(v int) *int             { return &v }
func float64Ptr(v float64) *float64 { return &v }
