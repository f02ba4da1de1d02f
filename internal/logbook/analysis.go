package logbook

import (
	"context"
	"errors"

	"github.com/yourorg/evidencelog/internal/derive"
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/ledger"
	"github.com/yourorg/evidencelog/internal/records"
	"github.com/yourorg/evidencelog/internal/report"
	"github.com/yourorg/evidencelog/internal/temporal"
)

// Window is an optional inclusive date range.
type Window struct {
	From *records.Date
	To   *records.Date
}

// ParseWindow reads YYYY-MM-DD bounds. Empty strings leave a side open.
func ParseWindow(from, to string) (Window, error) {
	var w Window
	var items []faults.ValidationItem
	if from != "" {
		d, err := records.ParseDate(from)
		if err != nil {
			items = append(items, faults.ValidationItem{Code: "LOG-WIN-001", Path: "from", Message: "invalid date: " + from})
		} else {
			w.From = &d
		}
	}
	if to != "" {
		d, err := records.ParseDate(to)
		if err != nil {
			items = append(items, faults.ValidationItem{Code: "LOG-WIN-001", Path: "to", Message: "invalid date: " + to})
		} else {
			w.To = &d
		}
	}
	if len(items) == 0 && w.From != nil && w.To != nil && records.DaysBetween(*w.From, *w.To) < 0 {
		items = append(items, faults.ValidationItem{Code: "LOG-WIN-002", Path: "to", Message: "to must be on or after from"})
	}
	if len(items) > 0 {
		return Window{}, faults.Validation("invalid date window", items...)
	}
	return w, nil
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d records.Date) bool {
	if w.From != nil && records.DaysBetween(*w.From, d) < 0 {
		return false
	}
	if w.To != nil && records.DaysBetween(d, *w.To) < 0 {
		return false
	}
	return true
}

// Snapshot is every stored item of a profile that falls in a window.
type Snapshot struct {
	ProfileID    string
	Window       Window
	Daily        []*records.DailyLog
	Activities   []*records.ActivityLog
	Revisions    []ledger.Revision
	Limitations  []records.Limitation
	Explanations []records.GapExplanation
	Medications  []records.Medication
	Appointments []records.Appointment
}

// Snapshot loads the profile's collections and filters logs, revisions and
// appointments to the window.
func (s *Service) Snapshot(ctx context.Context, profileID string, w Window) (Snapshot, error) {
	profileID, err := requireProfile(profileID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{ProfileID: profileID, Window: w}
	daily, err := s.DailyLogs(ctx, profileID)
	if err != nil {
		return Snapshot{}, err
	}
	activities, err := s.ActivityLogs(ctx, profileID)
	if err != nil {
		return Snapshot{}, err
	}
	revs, err := s.revisions.All(ctx, profileID)
	if err != nil {
		return Snapshot{}, err
	}
	if snap.Limitations, err = s.Limitations(ctx, profileID); err != nil {
		return Snapshot{}, err
	}
	if snap.Explanations, err = s.GapExplanations(ctx, profileID); err != nil {
		return Snapshot{}, err
	}
	if snap.Medications, err = s.Medications(ctx, profileID); err != nil {
		return Snapshot{}, err
	}
	appointments, err := s.Appointments(ctx, profileID)
	if err != nil {
		return Snapshot{}, err
	}

	inWindow := map[string]bool{}
	for _, l := range daily {
		if w.Contains(l.EventDate) {
			snap.Daily = append(snap.Daily, l)
			inWindow[l.ID] = true
		}
	}
	for _, a := range activities {
		if w.Contains(a.EventDate) {
			snap.Activities = append(snap.Activities, a)
			inWindow[a.ID] = true
		}
	}
	for _, rev := range revs {
		if inWindow[rev.LogID] {
			snap.Revisions = append(snap.Revisions, rev)
		}
	}
	for _, a := range appointments {
		if w.Contains(a.Date) {
			snap.Appointments = append(snap.Appointments, a)
		}
	}
	return snap, nil
}

func (snap Snapshot) dates() []records.Date {
	out := make([]records.Date, 0, len(snap.Daily)+len(snap.Activities))
	for _, l := range snap.Daily {
		out = append(out, l.EventDate)
	}
	for _, a := range snap.Activities {
		out = append(out, a.EventDate)
	}
	return out
}

func (s *Service) gaps(snap Snapshot) []temporal.ExplainedGap {
	found := temporal.FindGaps(snap.dates(), s.opts.MinGapDays, temporal.Bounds{Start: snap.Window.From, End: snap.Window.To})
	return temporal.Explain(found, snap.Explanations)
}

// Gaps reports undocumented intervals across daily and activity logs,
// each paired with its explanation when one exists.
func (s *Service) Gaps(ctx context.Context, profileID string, w Window) ([]temporal.ExplainedGap, error) {
	snap, err := s.Snapshot(ctx, profileID, w)
	if err != nil {
		return nil, err
	}
	return s.gaps(snap), nil
}

func derivationInput(snap Snapshot) derive.Input {
	return derive.Input{
		ProfileID:   snap.ProfileID,
		From:        snap.Window.From,
		To:          snap.Window.To,
		Daily:       snap.Daily,
		Activities:  snap.Activities,
		Limitations: snap.Limitations,
	}
}

func (s *Service) Derive(ctx context.Context, profileID string, w Window) (derive.Result, error) {
	snap, err := s.Snapshot(ctx, profileID, w)
	if err != nil {
		return derive.Result{}, err
	}
	res, err := derive.Derive(derivationInput(snap))
	if err != nil {
		return derive.Result{}, err
	}
	s.logger.InfoContext(ctx, "derivation complete", "profile_id", snap.ProfileID, "records", res.RecordCount, "rating", res.Rating)
	return res, nil
}

// Report assembles the evidence report for a window. An empty window still
// yields a report; its narratives explain why no derivation was drafted.
func (s *Service) Report(ctx context.Context, profileID string, w Window) (report.Report, error) {
	snap, err := s.Snapshot(ctx, profileID, w)
	if err != nil {
		return report.Report{}, err
	}
	return s.ReportFrom(ctx, snap)
}

// ReportFrom assembles a report from an already loaded snapshot.
func (s *Service) ReportFrom(ctx context.Context, snap Snapshot) (report.Report, error) {
	mode, err := s.modes.Current(ctx)
	if err != nil {
		return report.Report{}, err
	}
	now, err := s.now()
	if err != nil {
		return report.Report{}, err
	}
	in := report.Input{
		ProfileID:    snap.ProfileID,
		GeneratedAt:  now,
		Location:     s.opts.Location,
		From:         snap.Window.From,
		To:           snap.Window.To,
		Mode:         mode,
		Daily:        snap.Daily,
		Activities:   snap.Activities,
		Revisions:    snap.Revisions,
		Gaps:         s.gaps(snap),
		Medications:  snap.Medications,
		Appointments: snap.Appointments,
	}
	res, err := derive.Derive(derivationInput(snap))
	switch {
	case err == nil:
		in.Derivation = &res
	case errors.Is(err, faults.ErrInsufficientData):
		in.DerivationError = err.Error()
	default:
		return report.Report{}, err
	}
	return report.Assemble(in), nil
}
