// Package report assembles the evidence report from stored records and the
// outputs of the temporal analyzer and derivation engine. It renders what it
// is given and infers nothing.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/derive"
	"github.com/yourorg/evidencelog/internal/evidence"
	"github.com/yourorg/evidencelog/internal/ledger"
	"github.com/yourorg/evidencelog/internal/records"
	"github.com/yourorg/evidencelog/internal/temporal"
)

// Section titles in the only order they are ever rendered.
const (
	SectionInfo       = "Report Info"
	SectionSummary    = "Data Summary"
	SectionRawLogs    = "Raw Logs"
	SectionCare       = "Medications & Appointments"
	SectionMetrics    = "Variability Metrics"
	SectionNarratives = "Narrative Drafts"
	SectionDisclaimer = "Disclaimer"
)

// SectionOrder lists every section title in render order.
var SectionOrder = []string{
	SectionInfo,
	SectionSummary,
	SectionRawLogs,
	SectionCare,
	SectionMetrics,
	SectionNarratives,
	SectionDisclaimer,
}

const disclaimer = "This report reproduces self-recorded symptom and activity logs with their system timestamps. " +
	"Derived capacity statements are rule-based drafts that cite the records they rest on; they are not medical opinions. " +
	"Finalized records are never edited in place; later corrections are listed as revisions beneath the original entry."

// Input is everything the assembler renders.
type Input struct {
	ProfileID    string
	GeneratedAt  time.Time
	Location     *time.Location
	From         *records.Date
	To           *records.Date
	Mode         evidence.ModeConfig
	Daily        []*records.DailyLog
	Activities   []*records.ActivityLog
	Revisions    []ledger.Revision
	Gaps         []temporal.ExplainedGap
	Medications  []records.Medication
	Appointments []records.Appointment
	Derivation   *derive.Result
	// DerivationError is shown in place of narratives when derivation failed.
	DerivationError string
}

// Report is the assembled document.
type Report struct {
	Info         Info
	Summary      Summary
	Entries      []Entry
	Medications  []records.Medication
	Appointments []records.Appointment
	Metrics      Metrics
	Narratives   []Narrative
	Disclaimer   string
}

type Info struct {
	ProfileID    string
	GeneratedAt  string
	Window       string
	EvidenceMode string
}

type Summary struct {
	DailyLogs       int
	ActivityLogs    int
	Finalized       int
	Drafts          int
	Revisions       int
	Stamped         int
	Retrospective   int
	Gaps            int
	UnexplainedGaps int
	FirstDate       string
	LastDate        string
}

// EntryKind distinguishes raw-log lines.
type EntryKind string

const (
	EntryDaily    EntryKind = "daily"
	EntryActivity EntryKind = "activity"
	EntryGap      EntryKind = "gap"
)

// Entry is one line of the raw log listing: a record with every integrity
// annotation, or a gap marker.
type Entry struct {
	Kind              EntryKind
	ID                string
	EventDate         string
	CreatedAt         string
	UpdatedAt         string
	EvidenceTimestamp string
	DelayDays         int
	DelayLabel        string
	Status            string
	FinalizedAt       string
	Retrospective     string
	Details           []string
	Revisions         []RevisionLine
	Gap               *GapLine
}

type RevisionLine struct {
	CreatedAt string
	FieldPath string
	Original  string
	New       string
	Reason    string
}

type GapLine struct {
	StartDate   string
	EndDate     string
	LengthDays  int
	Explanation string
}

// Marker renders the inline gap marker.
func (g GapLine) Marker() string {
	line := fmt.Sprintf("[GAP] %s to %s (%d days)", g.StartDate, g.EndDate, g.LengthDays)
	if g.Explanation == "" {
		return line + " unexplained"
	}
	return line + " explained: " + g.Explanation
}

type Narrative struct {
	Dimension string
	Text      string
	Evidence  []string
}

// Assemble builds the report. Entries run in chronological order; gap
// markers sit at their start date.
func Assemble(in Input) Report {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	revsByLog := map[string][]ledger.Revision{}
	for _, rev := range in.Revisions {
		revsByLog[rev.LogID] = append(revsByLog[rev.LogID], rev)
	}

	type keyed struct {
		day     int
		gap     bool
		created time.Time
		entry   Entry
	}
	var rows []keyed
	summary := Summary{DailyLogs: len(in.Daily), ActivityLogs: len(in.Activities), Revisions: len(in.Revisions)}
	first, last := 0, 0
	seen := false
	note := func(h *records.Header) {
		if h.Finalized {
			summary.Finalized++
		} else {
			summary.Drafts++
		}
		if h.EvidenceTimestamp != nil {
			summary.Stamped++
		}
		if h.RetrospectiveContext != nil {
			summary.Retrospective++
		}
		n := records.DayNumber(h.EventDate)
		if !seen || n < first {
			first = n
			summary.FirstDate = h.EventDate.String()
		}
		if !seen || n > last {
			last = n
			summary.LastDate = h.EventDate.String()
		}
		seen = true
	}

	for _, l := range in.Daily {
		note(&l.Header)
		e := headerEntry(EntryDaily, &l.Header, revsByLog[l.ID])
		e.Details = dailyDetails(l)
		rows = append(rows, keyed{day: records.DayNumber(l.EventDate), created: l.CreatedAt, entry: e})
	}
	for _, a := range in.Activities {
		note(&a.Header)
		e := headerEntry(EntryActivity, &a.Header, revsByLog[a.ID])
		e.Details = activityDetails(a)
		rows = append(rows, keyed{day: records.DayNumber(a.EventDate), created: a.CreatedAt, entry: e})
	}
	for _, g := range in.Gaps {
		summary.Gaps++
		line := &GapLine{StartDate: g.StartDate.String(), EndDate: g.EndDate.String(), LengthDays: g.LengthDays}
		if g.Explanation != nil {
			line.Explanation = g.Explanation.Note
		} else {
			summary.UnexplainedGaps++
		}
		rows = append(rows, keyed{day: records.DayNumber(g.StartDate), gap: true, entry: Entry{Kind: EntryGap, EventDate: line.StartDate, Gap: line}})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.day != b.day {
			return a.day < b.day
		}
		if a.gap != b.gap {
			return a.gap
		}
		if !a.created.Equal(b.created) {
			return a.created.Before(b.created)
		}
		return a.entry.ID < b.entry.ID
	})
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry)
	}

	return Report{
		Info: Info{
			ProfileID:    in.ProfileID,
			GeneratedAt:  in.GeneratedAt.In(loc).Format("2006-01-02 15:04 MST"),
			Window:       windowLabel(in.From, in.To),
			EvidenceMode: modeLabel(in.Mode),
		},
		Summary:      summary,
		Entries:      entries,
		Medications:  append([]records.Medication{}, in.Medications...),
		Appointments: sortedAppointments(in.Appointments),
		Metrics:      computeMetrics(in.Daily, in.Activities),
		Narratives:   narratives(in.Derivation, in.DerivationError),
		Disclaimer:   disclaimer,
	}
}

func headerEntry(kind EntryKind, h *records.Header, revs []ledger.Revision) Entry {
	delay := temporal.DaysDelayed(h.EventDate, h.CreatedAt)
	e := Entry{
		Kind:       kind,
		ID:         h.ID,
		EventDate:  h.EventDate.String(),
		CreatedAt:  clock.Format(h.CreatedAt),
		UpdatedAt:  clock.Format(h.UpdatedAt),
		DelayDays:  delay,
		DelayLabel: temporal.DelayLabel(delay),
		Status:     "draft",
	}
	if h.EvidenceTimestamp != nil {
		e.EvidenceTimestamp = clock.Format(*h.EvidenceTimestamp)
	}
	if h.Finalized {
		e.Status = "finalized"
		if len(revs) > 0 {
			e.Status = fmt.Sprintf("finalized, %d revision(s)", len(revs))
		}
	}
	if h.FinalizedAt != nil {
		e.FinalizedAt = clock.Format(*h.FinalizedAt)
	}
	if rc := h.RetrospectiveContext; rc != nil {
		e.Retrospective = fmt.Sprintf("logged %s (%s), flagged %s", temporal.DelayLabel(rc.DaysDelayed), rc.Reason, clock.Format(rc.FlaggedAt))
		if rc.Note != "" {
			e.Retrospective += ": " + rc.Note
		}
	}
	ordered := append([]ledger.Revision(nil), revs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].Seq < ordered[j].Seq
	})
	for _, rev := range ordered {
		e.Revisions = append(e.Revisions, RevisionLine{
			CreatedAt: clock.Format(rev.CreatedAt),
			FieldPath: rev.FieldPath,
			Original:  string(rev.OriginalValue),
			New:       string(rev.NewValue),
			Reason:    rev.Reason,
		})
	}
	return e
}

func dailyDetails(l *records.DailyLog) []string {
	out := []string{fmt.Sprintf("overall severity %d/10", l.OverallSeverity)}
	if l.BadDay {
		out = append(out, "bad day: unable to function")
	}
	for _, s := range l.Symptoms {
		line := fmt.Sprintf("%s %d/10", strings.ReplaceAll(string(s.Symptom), "_", " "), s.Severity)
		if s.Note != "" {
			line += " (" + s.Note + ")"
		}
		out = append(out, line)
	}
	if l.Notes != "" {
		out = append(out, "notes: "+l.Notes)
	}
	return out
}

func activityDetails(a *records.ActivityLog) []string {
	out := []string{fmt.Sprintf("%s, %s for %d min", a.Activity, a.Posture, a.DurationMinutes)}
	if a.WeightLbs != nil {
		out = append(out, fmt.Sprintf("weight %g lbs", *a.WeightLbs))
	}
	out = append(out, fmt.Sprintf("impact %d/10", a.ImpactSeverity))
	if a.StoppedEarly {
		out = append(out, "stopped early")
	}
	if a.RecoveryHours > 0 {
		out = append(out, fmt.Sprintf("recovery %g h", a.RecoveryHours))
	}
	if a.Notes != "" {
		out = append(out, "notes: "+a.Notes)
	}
	return out
}

func windowLabel(from, to *records.Date) string {
	switch {
	case from != nil && to != nil:
		return from.String() + " to " + to.String()
	case from != nil:
		return "from " + from.String()
	case to != nil:
		return "through " + to.String()
	default:
		return "all records"
	}
}

func modeLabel(m evidence.ModeConfig) string {
	if !m.Enabled {
		return "disabled"
	}
	if m.EnabledAt != nil {
		return "enabled since " + clock.Format(*m.EnabledAt)
	}
	return "enabled"
}

func sortedAppointments(in []records.Appointment) []records.Appointment {
	out := append([]records.Appointment{}, in...)
	sort.SliceStable(out, func(i, j int) bool {
		return records.DaysBetween(out[j].Date, out[i].Date) < 0
	})
	return out
}
