package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/store"
)

func TestTrailChainsEntries(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-1")
	trail := NewTrail(NewStoreRecorder(store.NewMemory()), nil, nil)

	first, err := trail.Record(ctx, "p1", "log.create", "d1", "")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	second, err := trail.Record(ctx, "p1", "log.finalize", "d1", "")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if first.PrevHash != "" || second.PrevHash != first.Hash {
		t.Fatalf("chain not linked: %+v %+v", first, second)
	}
	if second.CorrID != "corr-1" || second.Actor != "p1" {
		t.Fatalf("entry = %+v", second)
	}

	entries, err := trail.Entries(ctx, "p1")
	if err != nil || len(entries) != 2 {
		t.Fatalf("Entries() = %d, %v", len(entries), err)
	}
	if err := Verify(entries); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	entries[0].Action = "log.delete"
	if err := Verify(entries); !errors.Is(err, faults.ErrIntegrity) {
		t.Fatalf("Verify() error = %v, want integrity", err)
	}
}

func TestTrailProfilesIndependent(t *testing.T) {
	ctx := context.Background()
	trail := NewTrail(NewMemoryRecorder(), nil, nil)
	_, _ = trail.Record(ctx, "p1", "a", "x", "")
	e, _ := trail.Record(WithActor(ctx, "key:abc"), "p2", "a", "x", "")
	if e.PrevHash != "" || e.Actor != "key:abc" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestNilTrailIsNoop(t *testing.T) {
	var trail *Trail
	if _, err := trail.Record(context.Background(), "p1", "a", "x", ""); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
}

func TestTrailUsesInjectedClock(t *testing.T) {
	at := time.Date(2024, 1, 12, 10, 0, 0, 0, time.UTC)
	trail := NewTrail(NewMemoryRecorder(), clock.NewFixed(at), nil)
	e, err := trail.Record(context.Background(), "p1", "log.create", "d1", "")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !e.Ts.Equal(at) {
		t.Fatalf("Ts = %s, want %s", e.Ts, at)
	}

	broken := NewTrail(NewMemoryRecorder(), clock.Broken{}, nil)
	if _, err := broken.Record(context.Background(), "p1", "log.create", "d1", ""); !errors.Is(err, clock.ErrUnavailable) {
		t.Fatalf("Record() error = %v, want clock failure", err)
	}
}
