package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// WriteText renders the report as plain text.
func WriteText(w io.Writer, r Report) error {
	var b bytes.Buffer
	heading := func(title string) {
		fmt.Fprintf(&b, "\n== %s ==\n", title)
	}

	heading(SectionInfo)
	fmt.Fprintf(&b, "Profile: %s\nGenerated: %s\nPeriod: %s\nEvidence mode: %s\n",
		r.Info.ProfileID, r.Info.GeneratedAt, r.Info.Window, r.Info.EvidenceMode)

	heading(SectionSummary)
	s := r.Summary
	fmt.Fprintf(&b, "Daily logs: %d\nActivity logs: %d\nFinalized: %d\nDrafts: %d\nRevisions: %d\n",
		s.DailyLogs, s.ActivityLogs, s.Finalized, s.Drafts, s.Revisions)
	fmt.Fprintf(&b, "Evidence-stamped: %d\nRetrospective: %d\nGaps: %d (%d unexplained)\n",
		s.Stamped, s.Retrospective, s.Gaps, s.UnexplainedGaps)
	if s.FirstDate != "" {
		fmt.Fprintf(&b, "Records span: %s to %s\n", s.FirstDate, s.LastDate)
	}

	heading(SectionRawLogs)
	if len(r.Entries) == 0 {
		b.WriteString("(no records)\n")
	}
	for _, e := range r.Entries {
		if e.Gap != nil {
			b.WriteString(e.Gap.Marker() + "\n")
			continue
		}
		fmt.Fprintf(&b, "%s %s [%s] %s\n", e.EventDate, e.Kind, e.ID, e.Status)
		fmt.Fprintf(&b, "  created %s (%s), updated %s\n", e.CreatedAt, e.DelayLabel, e.UpdatedAt)
		if e.EvidenceTimestamp != "" {
			fmt.Fprintf(&b, "  evidence timestamp %s\n", e.EvidenceTimestamp)
		}
		if e.FinalizedAt != "" {
			fmt.Fprintf(&b, "  finalized %s\n", e.FinalizedAt)
		}
		if e.Retrospective != "" {
			fmt.Fprintf(&b, "  retrospective: %s\n", e.Retrospective)
		}
		for _, d := range e.Details {
			fmt.Fprintf(&b, "  - %s\n", d)
		}
		for _, rev := range e.Revisions {
			fmt.Fprintf(&b, "  revision %s %s: %s -> %s (%s)\n", rev.CreatedAt, rev.FieldPath, rev.Original, rev.New, rev.Reason)
		}
	}

	heading(SectionCare)
	if len(r.Medications) == 0 && len(r.Appointments) == 0 {
		b.WriteString("(none recorded)\n")
	}
	for _, m := range r.Medications {
		line := "Medication: " + joinNonEmpty(m.Name, m.Dose, m.Frequency)
		if m.StartDate != nil {
			line += ", from " + m.StartDate.String()
		}
		if m.EndDate != nil {
			line += " until " + m.EndDate.String()
		}
		if m.Notes != "" {
			line += " (" + m.Notes + ")"
		}
		b.WriteString(line + "\n")
	}
	for _, a := range r.Appointments {
		line := fmt.Sprintf("Appointment: %s %s", a.Date.String(), joinNonEmpty(a.Provider, a.Purpose))
		if a.Notes != "" {
			line += " (" + a.Notes + ")"
		}
		b.WriteString(line + "\n")
	}

	heading(SectionMetrics)
	for _, st := range r.Metrics.Series {
		fmt.Fprintf(&b, "%s: n=%d mean=%s median=%s stddev=%s\n", st.Name, st.Count, st.Mean.StringFixed(2), st.Median.StringFixed(2), st.StdDev.StringFixed(2))
		for _, band := range st.Histogram {
			fmt.Fprintf(&b, "  %-5s %s %d\n", band.Label, strings.Repeat("#", band.Count), band.Count)
		}
	}

	heading(SectionNarratives)
	for _, n := range r.Narratives {
		b.WriteString("- " + n.Text + "\n")
	}

	heading(SectionDisclaimer)
	b.WriteString(r.Disclaimer + "\n")

	_, err := w.Write(bytes.TrimLeft(b.Bytes(), "\n"))
	return err
}

// Text renders the report to a string.
func Text(r Report) string {
	var b strings.Builder
	_ = WriteText(&b, r)
	return b.String()
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
