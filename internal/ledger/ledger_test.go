package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/records"
	"github.com/yourorg/evidencelog/internal/store"
)

var t0 = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

func draftLog() *records.DailyLog {
	return &records.DailyLog{
		Header: records.Header{
			ID:        "d1",
			ProfileID: "p1",
			EventDate: records.MustDate("2024-01-01"),
			CreatedAt: t0,
			UpdatedAt: t0,
		},
		OverallSeverity: 5,
		Symptoms:        []records.SymptomEntry{{Symptom: records.SymptomBackPain, Severity: 6}},
	}
}

func finalizedLog(t *testing.T) *records.DailyLog {
	t.Helper()
	out, err := Finalize(draftLog(), t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	return out.(*records.DailyLog)
}

type flakyLog struct {
	inner   *StoreRevisionLog
	failOn  int
	appends int
}

func (f *flakyLog) Append(ctx context.Context, rev Revision) error {
	f.appends++
	if f.appends == f.failOn {
		return fmt.Errorf("disk full")
	}
	return f.inner.Append(ctx, rev)
}

func (f *flakyLog) List(ctx context.Context, profileID, logID string) ([]Revision, error) {
	return f.inner.List(ctx, profileID, logID)
}

func newLedger(log RevisionLog) *Ledger {
	l := New(log, clock.NewFixed(t0.Add(48*time.Hour)), nil)
	n := 0
	l.newID = func() string {
		n++
		return fmt.Sprintf("rev-%d", n)
	}
	return l
}

func TestFinalizeRequiresContent(t *testing.T) {
	empty := draftLog()
	empty.Symptoms = nil
	if _, err := Finalize(empty, t0); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("Finalize() error = %v, want validation", err)
	}
	if empty.Finalized {
		t.Fatalf("rejected finalize changed the record")
	}

	empty.Symptoms = []records.SymptomEntry{{Symptom: records.SymptomFatigue, Severity: 3}}
	out, err := Finalize(empty, t0)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if p := CanModify(out); p.Allowed || p.Reason == "" {
		t.Fatalf("CanModify() = %+v, want not allowed", p)
	}
	if p := CanModify(empty); !p.Allowed {
		t.Fatalf("CanModify(draft) = %+v", p)
	}
}

func TestFinalizeTwiceRejected(t *testing.T) {
	fin := finalizedLog(t)
	if _, err := Finalize(fin, t0); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("Finalize() error = %v, want validation", err)
	}
}

func TestFinalizeActivityMinimumContent(t *testing.T) {
	a := &records.ActivityLog{Header: records.Header{ID: "a1"}, Activity: "walk dog"}
	if _, err := Finalize(a, t0); err == nil {
		t.Fatalf("expected zero-duration activity to be rejected")
	}
	a.DurationMinutes = 20
	if _, err := Finalize(a, t0); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
}

func TestClassify(t *testing.T) {
	if _, ok := Classify(draftLog(), nil).(Draft); !ok {
		t.Fatalf("draft classified wrong")
	}
	e, ok := Classify(finalizedLog(t), nil).(Finalized)
	if !ok {
		t.Fatalf("finalized classified wrong")
	}
	if e.Revisions() == nil {
		t.Fatalf("finalized entry must carry a revision list")
	}
}

func TestUpdateDraftInPlace(t *testing.T) {
	l := newLedger(NewStoreRevisionLog(store.NewMemory()))
	orig := draftLog()
	proposed := orig.Clone().(*records.DailyLog)
	proposed.OverallSeverity = 8
	proposed.ID = "tampered"

	res, err := l.UpdateWithRevision(context.Background(), orig, proposed, "")
	if err != nil {
		t.Fatalf("UpdateWithRevision() error = %v", err)
	}
	if res.NeedsRevision {
		t.Fatalf("draft update should not need revision")
	}
	got := res.Record.(*records.DailyLog)
	if got.OverallSeverity != 8 || got.ID != "d1" || !got.UpdatedAt.Equal(t0.Add(48*time.Hour)) {
		t.Fatalf("updated draft = %+v", got)
	}
	if orig.OverallSeverity != 5 {
		t.Fatalf("original mutated")
	}
}

func TestUpdateFinalizedAppendsRevisions(t *testing.T) {
	ctx := context.Background()
	revLog := NewStoreRevisionLog(store.NewMemory())
	l := newLedger(revLog)
	orig := finalizedLog(t)
	proposed := orig.Clone().(*records.DailyLog)
	proposed.OverallSeverity = 9
	proposed.Notes = "worse than recorded"

	res, err := l.UpdateWithRevision(ctx, orig, proposed, "recalled more detail")
	if err != nil {
		t.Fatalf("UpdateWithRevision() error = %v", err)
	}
	if !res.NeedsRevision || res.Attempted != 2 || res.Appended != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Record.(*records.DailyLog).OverallSeverity != 5 {
		t.Fatalf("finalized record changed in place")
	}
	if orig.OverallSeverity != 5 || orig.Notes != "" {
		t.Fatalf("original mutated")
	}

	revs, err := l.Revisions(ctx, "p1", "d1")
	if err != nil {
		t.Fatalf("Revisions() error = %v", err)
	}
	if len(revs) != 2 || revs[0].FieldPath != "notes" || revs[1].FieldPath != "overallSeverity" {
		t.Fatalf("revisions = %+v", revs)
	}
	if string(revs[1].OriginalValue) != "5" || string(revs[1].NewValue) != "9" {
		t.Fatalf("revision values = %s -> %s", revs[1].OriginalValue, revs[1].NewValue)
	}
	var snap records.DailyLog
	if err := json.Unmarshal(revs[0].Snapshot, &snap); err != nil || snap.OverallSeverity != 5 {
		t.Fatalf("snapshot = %+v, err = %v", snap, err)
	}
	if err := VerifyChain(revs); err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
}

func TestUpdateFinalizedRequiresReason(t *testing.T) {
	l := newLedger(NewStoreRevisionLog(store.NewMemory()))
	orig := finalizedLog(t)
	proposed := orig.Clone().(*records.DailyLog)
	proposed.BadDay = true
	if _, err := l.UpdateWithRevision(context.Background(), orig, proposed, "  "); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("UpdateWithRevision() error = %v, want validation", err)
	}
}

func TestUpdateFinalizedNoChangeNeedsNoReason(t *testing.T) {
	log := NewStoreRevisionLog(store.NewMemory())
	l := newLedger(log)
	orig := finalizedLog(t)
	res, err := l.UpdateWithRevision(context.Background(), orig, orig.Clone(), "")
	if err != nil {
		t.Fatalf("UpdateWithRevision() error = %v", err)
	}
	if !res.NeedsRevision || res.Attempted != 0 || res.Appended != 0 || len(res.Revisions) != 0 {
		t.Fatalf("identical proposal should be a no-op: %+v", res)
	}
	revs, err := log.List(context.Background(), "p1", "d1")
	if err != nil || len(revs) != 0 {
		t.Fatalf("List() = %d, %v, want none", len(revs), err)
	}
}

func TestUpdateRejectsSystemFieldChanges(t *testing.T) {
	l := newLedger(NewStoreRevisionLog(store.NewMemory()))
	orig := draftLog()
	proposed := orig.Clone().(*records.DailyLog)
	stamp := t0
	proposed.EvidenceTimestamp = &stamp
	if _, err := l.UpdateWithRevision(context.Background(), orig, proposed, ""); !errors.Is(err, faults.ErrIntegrity) {
		t.Fatalf("UpdateWithRevision() error = %v, want integrity violation", err)
	}

	fin := finalizedLog(t)
	unfin := fin.Clone().(*records.DailyLog)
	unfin.Finalized = false
	if _, err := l.UpdateWithRevision(context.Background(), fin, unfin, "undo"); !errors.Is(err, faults.ErrIntegrity) {
		t.Fatalf("UpdateWithRevision() error = %v, want integrity violation", err)
	}
}

func TestUpdateEmptyEquivalents(t *testing.T) {
	l := newLedger(NewStoreRevisionLog(store.NewMemory()))
	orig := draftLog()
	orig.Symptoms = nil
	proposed := orig.Clone().(*records.DailyLog)
	proposed.Symptoms = []records.SymptomEntry{}
	res, err := l.UpdateWithRevision(context.Background(), orig, proposed, "")
	if err != nil {
		t.Fatalf("UpdateWithRevision() error = %v", err)
	}
	if res.Attempted != 0 || res.Record != records.Record(orig) {
		t.Fatalf("null and empty list should compare equal: %+v", res)
	}
}

func TestUpdatePartialFailure(t *testing.T) {
	ctx := context.Background()
	inner := NewStoreRevisionLog(store.NewMemory())
	l := newLedger(&flakyLog{inner: inner, failOn: 2})
	orig := finalizedLog(t)
	proposed := orig.Clone().(*records.DailyLog)
	proposed.BadDay = true
	proposed.Notes = "second"
	proposed.OverallSeverity = 7

	res, err := l.UpdateWithRevision(ctx, orig, proposed, "correction")
	var partial *PartialRevisionError
	if !errors.As(err, &partial) {
		t.Fatalf("UpdateWithRevision() error = %v, want PartialRevisionError", err)
	}
	if partial.Attempted != 3 || partial.Appended != 1 || partial.FailedField != "notes" {
		t.Fatalf("partial = %+v", partial)
	}
	if len(partial.AppendedFields) != 1 || partial.AppendedFields[0] != "badDay" {
		t.Fatalf("appended fields = %v", partial.AppendedFields)
	}
	if !errors.Is(err, faults.ErrStorage) {
		t.Fatalf("partial error should wrap a storage error: %v", err)
	}
	if res.Appended != 1 || res.Attempted != 3 {
		t.Fatalf("result counts = %+v", res)
	}
	revs, _ := inner.List(ctx, "p1", "d1")
	if len(revs) != 1 {
		t.Fatalf("already-appended revisions should remain, got %d", len(revs))
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	ctx := context.Background()
	l := newLedger(NewStoreRevisionLog(store.NewMemory()))
	orig := finalizedLog(t)
	proposed := orig.Clone().(*records.DailyLog)
	proposed.OverallSeverity = 2
	proposed.BadDay = true
	if _, err := l.UpdateWithRevision(ctx, orig, proposed, "fix"); err != nil {
		t.Fatalf("UpdateWithRevision() error = %v", err)
	}
	revs, _ := l.Revisions(ctx, "p1", "d1")
	revs[0].Reason = "rewritten"
	if err := VerifyChain(revs); !errors.Is(err, faults.ErrIntegrity) {
		t.Fatalf("VerifyChain() error = %v, want integrity", err)
	}
}

func TestRevisionsAscending(t *testing.T) {
	ctx := context.Background()
	revLog := NewStoreRevisionLog(store.NewMemory())
	fixed := clock.NewFixed(t0.Add(72 * time.Hour))
	l := New(revLog, fixed, nil)
	orig := finalizedLog(t)

	first := orig.Clone().(*records.DailyLog)
	first.OverallSeverity = 6
	if _, err := l.UpdateWithRevision(ctx, orig, first, "one"); err != nil {
		t.Fatalf("UpdateWithRevision() error = %v", err)
	}
	fixed.Advance(time.Hour)
	second := orig.Clone().(*records.DailyLog)
	second.BadDay = true
	if _, err := l.UpdateWithRevision(ctx, orig, second, "two"); err != nil {
		t.Fatalf("UpdateWithRevision() error = %v", err)
	}

	revs, err := l.Revisions(ctx, "p1", "d1")
	if err != nil {
		t.Fatalf("Revisions() error = %v", err)
	}
	if len(revs) != 2 || revs[0].Reason != "one" || revs[1].Reason != "two" {
		t.Fatalf("revisions = %+v", revs)
	}
	if revs[1].PrevHash != revs[0].Hash || revs[1].Seq != 2 {
		t.Fatalf("chain not linked: %+v", revs)
	}

	e, err := l.Entry(ctx, orig)
	if err != nil {
		t.Fatalf("Entry() error = %v", err)
	}
	if fin, ok := e.(Finalized); !ok || len(fin.Revisions()) != 2 {
		t.Fatalf("Entry() = %#v", e)
	}
}

func TestDeleteLogRemovesHistory(t *testing.T) {
	ctx := context.Background()
	revLog := NewStoreRevisionLog(store.NewMemory())
	l := newLedger(revLog)
	orig := finalizedLog(t)
	proposed := orig.Clone().(*records.DailyLog)
	proposed.BadDay = true
	if _, err := l.UpdateWithRevision(ctx, orig, proposed, "x"); err != nil {
		t.Fatalf("UpdateWithRevision() error = %v", err)
	}
	n, err := revLog.DeleteLog(ctx, "p1", "d1")
	if err != nil || n != 1 {
		t.Fatalf("DeleteLog() = %d, %v", n, err)
	}
	if revs, _ := revLog.List(ctx, "p1", "d1"); len(revs) != 0 {
		t.Fatalf("revisions left: %+v", revs)
	}
}

func TestGuardCollection(t *testing.T) {
	fin := finalizedLog(t)
	draft := draftLog()
	draft.ID = "d2"
	before := []*records.DailyLog{fin, draft}

	editedDraft := draft.Clone().(*records.DailyLog)
	editedDraft.Notes = "fine"
	if err := GuardCollection(before, []*records.DailyLog{fin, editedDraft}); err != nil {
		t.Fatalf("GuardCollection() error = %v", err)
	}

	if err := GuardCollection(before, []*records.DailyLog{draft}); err != nil {
		t.Fatalf("deletion rejected: %v", err)
	}

	bypass := fin.Clone().(*records.DailyLog)
	bypass.OverallSeverity = 1
	if err := GuardCollection(before, []*records.DailyLog{bypass, draft}); !errors.Is(err, faults.ErrIntegrity) {
		t.Fatalf("GuardCollection() error = %v, want integrity violation", err)
	}

	restamped := draft.Clone().(*records.DailyLog)
	ts := t0
	restamped.EvidenceTimestamp = &ts
	if err := GuardCollection(before, []*records.DailyLog{fin, restamped}); !errors.Is(err, faults.ErrIntegrity) {
		t.Fatalf("GuardCollection() error = %v, want integrity violation", err)
	}

	finalizing, _ := Finalize(draft, t0)
	if err := GuardCollection(before, []*records.DailyLog{fin, finalizing.(*records.DailyLog)}); err != nil {
		t.Fatalf("finalize write rejected: %v", err)
	}
}
