// Package ledger enforces the draft/finalized lifecycle of log records and
// turns edits to finalized records into append-only revisions.
package ledger

import (
	"strings"
	"time"

	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/records"
)

// Entry is a record in exactly one lifecycle state: Draft or Finalized.
type Entry interface {
	Record() records.Record
	State() State
	entry()
}

// State names a lifecycle state.
type State string

const (
	StateDraft     State = "draft"
	StateFinalized State = "finalized"
)

// Draft is a record that may still be edited in place.
type Draft struct {
	record records.Record
}

func (d Draft) Record() records.Record { return d.record }
func (Draft) State() State             { return StateDraft }
func (Draft) entry()                   {}

// Finalized is a closed record together with its ordered revision history.
type Finalized struct {
	record    records.Record
	revisions []Revision
}

func (f Finalized) Record() records.Record { return f.record }
func (Finalized) State() State             { return StateFinalized }
func (Finalized) entry()                   {}

// Revisions returns the history in append order. Never nil.
func (f Finalized) Revisions() []Revision {
	return append([]Revision{}, f.revisions...)
}

// Classify wraps r in its lifecycle state. Revisions are only meaningful for
// finalized records and are ignored for drafts.
func Classify(r records.Record, revisions []Revision) Entry {
	if !r.Meta().Finalized {
		return Draft{record: r}
	}
	return Finalized{record: r, revisions: append([]Revision{}, revisions...)}
}

// Permission is the advisory answer to CanModify.
type Permission struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CanModify reports whether r may still be edited in place.
func CanModify(r records.Record) Permission {
	if r.Meta().Finalized {
		return Permission{Allowed: false, Reason: "record is finalized; changes are recorded as revisions"}
	}
	return Permission{Allowed: true}
}

// Finalize closes r to direct edits. It returns a finalized copy and leaves r
// untouched, so a rejected call never half-finalizes anything.
func Finalize(r records.Record, now time.Time) (records.Record, error) {
	if r.Meta().Finalized {
		return nil, faults.Validation("record is already finalized", faults.ValidationItem{
			Code:    "LEDGER-FIN-001",
			Path:    "finalized",
			Message: "record " + r.Meta().ID + " is already finalized",
		})
	}
	if err := r.MinimumContent(); err != nil {
		return nil, err
	}
	out := r.Clone()
	at := now.UTC()
	h := out.Meta()
	h.Finalized = true
	h.FinalizedAt = &at
	h.UpdatedAt = at
	return out, nil
}

func requireReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return faults.Validation("a reason is required to revise a finalized record", faults.ValidationItem{
			Code:    "LEDGER-REV-001",
			Path:    "reason",
			Message: "reason is required",
		})
	}
	return nil
}
