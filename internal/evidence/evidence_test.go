package evidence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/records"
	"github.com/yourorg/evidencelog/internal/store"
)

func TestStampDisabledLeavesRecord(t *testing.T) {
	log := &records.DailyLog{Header: records.Header{ID: "d1"}}
	out, err := Stamp(log, ModeConfig{}, clock.Broken{})
	if err != nil {
		t.Fatalf("Stamp() error = %v", err)
	}
	if out.Meta().EvidenceTimestamp != nil {
		t.Fatalf("expected no evidence timestamp")
	}
}

func TestStampEnabledCopies(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 123456789, time.UTC)
	log := &records.DailyLog{Header: records.Header{ID: "d1"}}
	out, err := Stamp(log, ModeConfig{Enabled: true}, clock.NewFixed(at))
	if err != nil {
		t.Fatalf("Stamp() error = %v", err)
	}
	ts := out.Meta().EvidenceTimestamp
	if ts == nil || !ts.Equal(at.Truncate(time.Millisecond)) {
		t.Fatalf("EvidenceTimestamp = %v, want %v", ts, at.Truncate(time.Millisecond))
	}
	if log.EvidenceTimestamp != nil {
		t.Fatalf("input record mutated")
	}
}

func TestStampClockFailureFails(t *testing.T) {
	log := &records.ActivityLog{Header: records.Header{ID: "a1"}}
	out, err := Stamp(log, ModeConfig{Enabled: true}, clock.Broken{})
	if !errors.Is(err, clock.ErrUnavailable) {
		t.Fatalf("Stamp() error = %v, want ErrUnavailable", err)
	}
	if out != nil {
		t.Fatalf("expected no record on failure")
	}
}

func TestStampKeepsExistingStamp(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	log := &records.DailyLog{Header: records.Header{EvidenceTimestamp: &first}}
	out, err := Stamp(log, ModeConfig{Enabled: true}, clock.NewFixed(first.AddDate(0, 1, 0)))
	if err != nil {
		t.Fatalf("Stamp() error = %v", err)
	}
	if !out.Meta().EvidenceTimestamp.Equal(first) {
		t.Fatalf("stamp overwritten: %v", out.Meta().EvidenceTimestamp)
	}
}

func TestModeLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	at := time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC)
	svc := NewModeService(s, clock.NewFixed(at), nil)

	cfg, err := svc.Current(ctx)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if cfg.Enabled {
		t.Fatalf("mode should start disabled")
	}

	cfg, err = svc.Activate(ctx, "p1")
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if !cfg.Enabled || cfg.EnabledBy != "p1" || cfg.EnabledAt == nil || !cfg.EnabledAt.Equal(at) {
		t.Fatalf("Activate() = %+v", cfg)
	}
	got, _ := svc.Current(ctx)
	if !got.Enabled {
		t.Fatalf("Current() after activate = %+v", got)
	}

	if _, err := svc.Deactivate(ctx); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	got, _ = svc.Current(ctx)
	if got.Enabled {
		t.Fatalf("Current() after deactivate = %+v", got)
	}
}

func TestModeActivateWritesOnlySingleton(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	unstamped := []records.DailyLog{{Header: records.Header{ID: "d1", ProfileID: "p1"}}}
	if err := store.Save(ctx, s, "p1", store.DailyLogs, unstamped); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	before := s.Raw("p1", store.DailyLogs)

	svc := NewModeService(s, clock.NewFixed(time.Now()), nil)
	if _, err := svc.Activate(ctx, "p1"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if string(s.Raw("p1", store.DailyLogs)) != string(before) {
		t.Fatalf("activation rewrote records")
	}
}

func TestModeActivateRequiresProfile(t *testing.T) {
	svc := NewModeService(store.NewMemory(), clock.NewFixed(time.Now()), nil)
	if _, err := svc.Activate(context.Background(), " "); err == nil {
		t.Fatalf("expected validation error")
	}
}
