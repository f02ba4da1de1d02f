package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/derive"
	"github.com/yourorg/evidencelog/internal/evidence"
	"github.com/yourorg/evidencelog/internal/ledger"
	"github.com/yourorg/evidencelog/internal/records"
	"github.com/yourorg/evidencelog/internal/temporal"
)

func fixture(t *testing.T) Input {
	t.Helper()
	created := time.Date(2024, 1, 12, 10, 0, 0, 0, time.UTC)
	stamp := created
	finalizedAt := created.Add(time.Hour)
	d1 := &records.DailyLog{
		Header: records.Header{
			ID: "d1", ProfileID: "p1", EventDate: records.MustDate("2024-01-01"),
			CreatedAt: created, UpdatedAt: finalizedAt, EvidenceTimestamp: &stamp,
			Finalized: true, FinalizedAt: &finalizedAt,
			RetrospectiveContext: &records.RetrospectiveContext{DaysDelayed: 11, FlaggedAt: created, Reason: records.RetroDelayedEntry},
		},
		OverallSeverity: 8,
		Symptoms:        []records.SymptomEntry{{Symptom: records.SymptomBackPain, Severity: 8, Note: "after car ride"}},
		BadDay:          true,
	}
	d2 := &records.DailyLog{
		Header:          records.Header{ID: "d2", ProfileID: "p1", EventDate: records.MustDate("2024-01-10"), CreatedAt: time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC), UpdatedAt: time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC)},
		OverallSeverity: 2,
	}
	a1 := &records.ActivityLog{
		Header:   records.Header{ID: "a1", ProfileID: "p1", EventDate: records.MustDate("2024-01-02"), CreatedAt: time.Date(2024, 1, 2, 18, 0, 0, 0, time.UTC), UpdatedAt: time.Date(2024, 1, 2, 18, 0, 0, 0, time.UTC)},
		Activity: "groceries", Posture: records.PostureWalking, DurationMinutes: 25, ImpactSeverity: 7, StoppedEarly: true,
	}
	gaps := temporal.Explain(
		temporal.FindGaps([]records.Date{d1.EventDate, a1.EventDate, d2.EventDate}, 4, temporal.Bounds{}),
		[]records.GapExplanation{{StartDate: records.MustDate("2024-01-03"), EndDate: records.MustDate("2024-01-09"), Note: "hospital stay"}},
	)
	res, err := derive.Derive(derive.Input{ProfileID: "p1", Daily: []*records.DailyLog{d1, d2}, Activities: []*records.ActivityLog{a1}})
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	return Input{
		ProfileID:   "p1",
		GeneratedAt: time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
		Mode:        evidence.ModeConfig{Enabled: true, EnabledAt: &stamp, EnabledBy: "p1"},
		Daily:       []*records.DailyLog{d2, d1},
		Activities:  []*records.ActivityLog{a1},
		Revisions: []ledger.Revision{{
			ID: "r1", LogID: "d1", FieldPath: "overallSeverity", OriginalValue: json.RawMessage("8"), NewValue: json.RawMessage("9"),
			Reason: "recalled", CreatedAt: finalizedAt.Add(time.Hour), Seq: 1,
		}},
		Gaps:         gaps,
		Medications:  []records.Medication{{ID: "m1", Name: "Naproxen", Dose: "500mg", Frequency: "twice daily"}},
		Appointments: []records.Appointment{{ID: "ap1", Date: records.MustDate("2024-01-05"), Provider: "Dr. Lee", Purpose: "follow-up"}},
		Derivation:   &res,
	}
}

func TestAssembleOrdersEntriesChronologically(t *testing.T) {
	r := Assemble(fixture(t))
	var got []string
	for _, e := range r.Entries {
		if e.Gap != nil {
			got = append(got, "gap:"+e.Gap.StartDate)
			continue
		}
		got = append(got, e.ID)
	}
	want := []string{"d1", "a1", "gap:2024-01-03", "d2"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	first := r.Entries[0]
	if first.DelayLabel != "11 days later" || first.EvidenceTimestamp == "" || first.Status != "finalized, 1 revision(s)" {
		t.Fatalf("annotations = %+v", first)
	}
	if first.Retrospective == "" || len(first.Revisions) != 1 {
		t.Fatalf("missing retrospective or revision: %+v", first)
	}
	wantRetro := "logged 11 days later (delayed_entry), flagged " + clock.Format(time.Date(2024, 1, 12, 10, 0, 0, 0, time.UTC))
	if first.Retrospective != wantRetro {
		t.Fatalf("Retrospective = %q, want %q", first.Retrospective, wantRetro)
	}
	if r.Summary.Finalized != 1 || r.Summary.Drafts != 2 || r.Summary.Gaps != 1 || r.Summary.UnexplainedGaps != 0 {
		t.Fatalf("summary = %+v", r.Summary)
	}
}

func TestTextSectionOrder(t *testing.T) {
	out := Text(Assemble(fixture(t)))
	last := -1
	for _, title := range SectionOrder {
		idx := strings.Index(out, "== "+title+" ==")
		if idx < 0 {
			t.Fatalf("missing section %q in:\n%s", title, out)
		}
		if idx < last {
			t.Fatalf("section %q out of order", title)
		}
		last = idx
	}
	if !strings.Contains(out, "[GAP] 2024-01-03 to 2024-01-09 (6 days) explained: hospital stay") {
		t.Fatalf("gap marker missing:\n%s", out)
	}
	if !strings.Contains(out, "Naproxen, 500mg, twice daily") || !strings.Contains(out, "Dr. Lee") {
		t.Fatalf("care section missing:\n%s", out)
	}
	gap := strings.Index(out, "[GAP]")
	if gap < strings.Index(out, "[a1]") || gap > strings.Index(out, "[d2]") {
		t.Fatalf("gap marker not between a1 and d2")
	}
}

func TestDescribe(t *testing.T) {
	s := Describe("x", []int{2, 4, 4, 4, 5, 5, 7, 9})
	if s.Mean.StringFixed(2) != "5.00" || s.Median.StringFixed(2) != "4.50" || s.StdDev.StringFixed(2) != "2.00" {
		t.Fatalf("Describe() = mean %s median %s stddev %s", s.Mean, s.Median, s.StdDev)
	}
	if s.Histogram[0].Count != 1 || s.Histogram[1].Count != 5 || s.Histogram[2].Count != 2 {
		t.Fatalf("histogram = %+v", s.Histogram)
	}
	empty := Describe("none", nil)
	if empty.Count != 0 || !empty.Mean.IsZero() || len(empty.Histogram) != 3 {
		t.Fatalf("empty Describe() = %+v", empty)
	}
}

func TestNarrativesCiteClaimEvidence(t *testing.T) {
	in := fixture(t)
	r := Assemble(in)
	byDim := map[string]Narrative{}
	for _, n := range r.Narratives {
		byDim[n.Dimension] = n
	}
	for _, c := range in.Derivation.Claims {
		n, ok := byDim[string(c.Dimension)]
		if !ok {
			t.Fatalf("no narrative for %s", c.Dimension)
		}
		for _, id := range c.Evidence {
			if !strings.Contains(n.Text, id) {
				t.Fatalf("narrative %q does not cite %s", n.Text, id)
			}
		}
	}
	if _, ok := byDim["full time"]; !ok {
		t.Fatalf("missing full-time narrative")
	}
}

func TestNarrativesWithoutDerivation(t *testing.T) {
	in := fixture(t)
	in.Derivation = nil
	in.DerivationError = "no records in the requested window"
	r := Assemble(in)
	if len(r.Narratives) != 1 || !strings.Contains(r.Narratives[0].Text, "no records") {
		t.Fatalf("narratives = %+v", r.Narratives)
	}
}

func TestHTMLEscapesAndOrders(t *testing.T) {
	in := fixture(t)
	in.Daily[1].Notes = "<script>alert(1)</script>"
	out, err := HTML(Assemble(in))
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	if strings.Contains(out, "<script>alert") {
		t.Fatalf("notes not escaped")
	}
	if strings.Index(out, SectionInfo) > strings.Index(out, SectionDisclaimer) {
		t.Fatalf("sections out of order")
	}
}

func TestWorkbookSheets(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, Assemble(fixture(t))); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	for _, name := range []string{sheetLogs, sheetGaps, sheetClaims} {
		if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
			t.Fatalf("missing sheet %s", name)
		}
	}
	v, err := f.GetCellValue(sheetGaps, "D2")
	if err != nil || v != "hospital stay" {
		t.Fatalf("gap explanation cell = %q, %v", v, err)
	}
	id, _ := f.GetCellValue(sheetLogs, "C2")
	if id != "d1" {
		t.Fatalf("first log row id = %q", id)
	}
}
