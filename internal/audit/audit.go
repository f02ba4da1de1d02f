// Package audit keeps a per-profile, hash-chained, append-only log of
// actions taken on evidence.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/store"
)

// Entry is one audit record. Hash covers every other field and PrevHash.
type Entry struct {
	AuditID   string    `json:"auditId"`
	CorrID    string    `json:"corrId"`
	ProfileID string    `json:"profileId"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject"`
	Digest    string    `json:"digest,omitempty"`
	Ts        time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"prevHash"`
}

// Recorder stores audit entries.
type Recorder interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, profileID string) ([]Entry, error)
}

// HashChain links entry to the profile's last entry and appends it.
func HashChain(ctx context.Context, rec Recorder, entry Entry) (Entry, error) {
	existing, err := rec.List(ctx, entry.ProfileID)
	if err != nil {
		return Entry{}, err
	}
	if n := len(existing); n > 0 {
		entry.PrevHash = existing[n-1].Hash
	}
	entry.Hash = hashEntry(entry)
	return entry, rec.Append(ctx, entry)
}

func hashEntry(e Entry) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%s",
		e.AuditID, e.CorrID, e.ProfileID, e.Actor, e.Action, e.Subject, e.Digest,
		e.Ts.UTC().Format(time.RFC3339Nano), e.PrevHash)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the chain of one profile's entries in stored order.
func Verify(entries []Entry) error {
	prev := ""
	for _, e := range entries {
		if e.PrevHash != prev || hashEntry(e) != e.Hash {
			return faults.Integrity("audit chain is broken", map[string]string{"auditId": e.AuditID})
		}
		prev = e.Hash
	}
	return nil
}

// Trail appends entries with a correlation id taken from the context.
type Trail struct {
	rec    Recorder
	clock  clock.Clock
	logger *slog.Logger
}

// NewTrail stamps entries with c. A nil clock reads the system time.
func NewTrail(rec Recorder, c clock.Clock, logger *slog.Logger) *Trail {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = clock.System{}
	}
	return &Trail{rec: rec, clock: c, logger: logger}
}

// Record appends one action. A nil trail records nothing.
func (t *Trail) Record(ctx context.Context, profileID, action, subject, digest string) (Entry, error) {
	if t == nil || t.rec == nil {
		return Entry{}, nil
	}
	now, err := t.clock.Now()
	if err != nil {
		t.logger.WarnContext(ctx, "audit clock unavailable", "action", action, "subject", subject, "error", err)
		return Entry{}, fmt.Errorf("read clock: %w", err)
	}
	entry := Entry{
		AuditID:   uuid.NewString(),
		CorrID:    CorrelationID(ctx),
		ProfileID: profileID,
		Actor:     actorOr(ActorFrom(ctx), profileID),
		Action:    action,
		Subject:   subject,
		Digest:    digest,
		Ts:        now,
	}
	stored, err := HashChain(ctx, t.rec, entry)
	if err != nil {
		t.logger.WarnContext(ctx, "audit append failed", "action", action, "subject", subject, "error", err)
		return Entry{}, err
	}
	return stored, nil
}

// Entries lists a profile's audit log in append order.
func (t *Trail) Entries(ctx context.Context, profileID string) ([]Entry, error) {
	if t == nil || t.rec == nil {
		return []Entry{}, nil
	}
	return t.rec.List(ctx, profileID)
}

func actorOr(actor, fallback string) string {
	if actor != "" {
		return actor
	}
	if fallback != "" {
		return fallback
	}
	return "system"
}

// CorrelationLogger returns a logger tagged with the correlation and
// profile ids.
func CorrelationLogger(logger *slog.Logger, corrID, profileID string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("corrId", corrID, "profileId", profileID)
}

// StoreRecorder keeps entries in the audit_log collection.
type StoreRecorder struct {
	store store.Store
}

func NewStoreRecorder(s store.Store) *StoreRecorder {
	return &StoreRecorder{store: s}
}

func (r *StoreRecorder) Append(ctx context.Context, entry Entry) error {
	all, err := store.Load[Entry](ctx, r.store, entry.ProfileID, store.AuditLog)
	if err != nil {
		return err
	}
	return store.Save(ctx, r.store, entry.ProfileID, store.AuditLog, append(all, entry))
}

func (r *StoreRecorder) List(ctx context.Context, profileID string) ([]Entry, error) {
	return store.Load[Entry](ctx, r.store, profileID, store.AuditLog)
}

// MemoryRecorder is an in-process Recorder.
type MemoryRecorder struct {
	mu        sync.Mutex
	byProfile map[string][]Entry
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{byProfile: map[string][]Entry{}}
}

func (m *MemoryRecorder) Append(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byProfile[entry.ProfileID] = append(m.byProfile[entry.ProfileID], entry)
	return nil
}

func (m *MemoryRecorder) List(_ context.Context, profileID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry{}, m.byProfile[profileID]...), nil
}

var (
	_ Recorder = (*StoreRecorder)(nil)
	_ Recorder = (*MemoryRecorder)(nil)
)
