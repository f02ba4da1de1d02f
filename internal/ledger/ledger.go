package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/records"
)

// UpdateResult describes what UpdateWithRevision did.
type UpdateResult struct {
	// NeedsRevision is true when the record was finalized and the change
	// went to the revision log instead of the record.
	NeedsRevision bool
	// Record is what the caller must store: the updated draft, or the
	// untouched finalized original.
	Record         records.Record
	Revisions      []Revision
	Attempted      int
	Appended       int
	AppendedFields []string
}

// PartialRevisionError reports a revision batch that stopped part way.
// Revisions appended before the failure stay in the log.
type PartialRevisionError struct {
	LogID          string
	Attempted      int
	Appended       int
	AppendedFields []string
	FailedField    string
	Cause          error
}

func (e *PartialRevisionError) Error() string {
	return fmt.Sprintf("revision append for log %s stopped at field %s after %d/%d: %v",
		e.LogID, e.FailedField, e.Appended, e.Attempted, e.Cause)
}

func (e *PartialRevisionError) Unwrap() error { return e.Cause }

// Ledger applies edits according to each record's lifecycle state.
type Ledger struct {
	revisions RevisionLog
	clock     clock.Clock
	logger    *slog.Logger
	newID     func() string
}

func New(revisions RevisionLog, c clock.Clock, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		revisions: revisions,
		clock:     c,
		logger:    logger,
		newID:     func() string { return uuid.NewString() },
	}
}

// Entry classifies r, loading its revisions when it is finalized.
func (l *Ledger) Entry(ctx context.Context, r records.Record) (Entry, error) {
	if !r.Meta().Finalized {
		return Classify(r, nil), nil
	}
	revs, err := l.Revisions(ctx, r.Meta().ProfileID, r.Meta().ID)
	if err != nil {
		return nil, err
	}
	return Classify(r, revs), nil
}

// Finalize closes r using the ledger clock.
func (l *Ledger) Finalize(ctx context.Context, r records.Record) (records.Record, error) {
	now, err := l.clock.Now()
	if err != nil {
		return nil, fmt.Errorf("read clock: %w", err)
	}
	out, err := Finalize(r, now)
	if err != nil {
		return nil, err
	}
	l.logger.InfoContext(ctx, "record finalized", "log_id", r.Meta().ID, "kind", r.Kind())
	return out, nil
}

// UpdateWithRevision applies proposed to original. Drafts change in place;
// finalized records stay untouched and every changed field becomes one
// revision. Appends are not atomic: on failure a *PartialRevisionError
// names the fields already appended, and the result reports the counts.
func (l *Ledger) UpdateWithRevision(ctx context.Context, original, proposed records.Record, reason string) (UpdateResult, error) {
	changes, err := proposedChanges(original, proposed)
	if err != nil {
		return UpdateResult{}, err
	}
	now, err := l.clock.Now()
	if err != nil {
		return UpdateResult{}, fmt.Errorf("read clock: %w", err)
	}

	if _, ok := Classify(original, nil).(Draft); ok {
		if len(changes) == 0 {
			return UpdateResult{Record: original}, nil
		}
		updated := proposed.Clone()
		h := updated.Meta()
		h.ID = original.Meta().ID
		h.ProfileID = original.Meta().ProfileID
		h.UpdatedAt = now
		return UpdateResult{Record: updated, Attempted: len(changes)}, nil
	}

	result := UpdateResult{NeedsRevision: true, Record: original, Attempted: len(changes)}
	if len(changes) == 0 {
		return result, nil
	}
	if err := requireReason(reason); err != nil {
		return UpdateResult{}, err
	}
	snapshot, err := json.Marshal(original)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("snapshot %s: %w", original.Meta().ID, err)
	}
	meta := original.Meta()
	log := l.logger.With("log_id", meta.ID, "profile_id", meta.ProfileID)
	for _, c := range changes {
		rev := Revision{
			ID:            l.newID(),
			LogID:         meta.ID,
			LogKind:       original.Kind(),
			ProfileID:     meta.ProfileID,
			FieldPath:     c.Path,
			OriginalValue: c.Original,
			NewValue:      c.Proposed,
			Reason:        strings.TrimSpace(reason),
			CreatedAt:     now,
			Snapshot:      snapshot,
		}
		stored, err := chain(ctx, l.revisions, rev)
		if err != nil {
			log.WarnContext(ctx, "revision append failed", "field", c.Path, "appended", result.Appended, "attempted", result.Attempted, "error", err)
			return result, &PartialRevisionError{
				LogID:          meta.ID,
				Attempted:      result.Attempted,
				Appended:       result.Appended,
				AppendedFields: append([]string{}, result.AppendedFields...),
				FailedField:    c.Path,
				Cause:          faults.Storage("append revision", err),
			}
		}
		result.Revisions = append(result.Revisions, stored)
		result.Appended++
		result.AppendedFields = append(result.AppendedFields, c.Path)
	}
	log.InfoContext(ctx, "revisions appended", "count", result.Appended)
	return result, nil
}

// Revisions returns a log's revisions ordered by creation ascending.
func (l *Ledger) Revisions(ctx context.Context, profileID, logID string) ([]Revision, error) {
	revs, err := l.revisions.List(ctx, profileID, logID)
	if err != nil {
		return nil, faults.Storage("list revisions", err)
	}
	sortByCreated(revs)
	return revs, nil
}
