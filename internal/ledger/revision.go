package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/records"
	"github.com/yourorg/evidencelog/internal/store"
)

// Revision is one field-level change to a finalized record. Revisions are
// chained per log: Hash covers the content and PrevHash.
type Revision struct {
	ID            string          `json:"id"`
	LogID         string          `json:"logId"`
	LogKind       records.Kind    `json:"logKind"`
	ProfileID     string          `json:"profileId"`
	FieldPath     string          `json:"fieldPath"`
	OriginalValue json.RawMessage `json:"originalValue"`
	NewValue      json.RawMessage `json:"newValue"`
	Reason        string          `json:"reason"`
	CreatedAt     time.Time       `json:"createdAt"`
	Snapshot      json.RawMessage `json:"snapshot"`
	Seq           int             `json:"seq"`
	PrevHash      string          `json:"prevHash"`
	Hash          string          `json:"hash"`
}

// RevisionLog is the append-only revision collaborator.
type RevisionLog interface {
	Append(ctx context.Context, rev Revision) error
	List(ctx context.Context, profileID, logID string) ([]Revision, error)
}

// chain links rev to the last revision of the same log and appends it.
func chain(ctx context.Context, log RevisionLog, rev Revision) (Revision, error) {
	existing, err := log.List(ctx, rev.ProfileID, rev.LogID)
	if err != nil {
		return Revision{}, err
	}
	rev.Seq = 1
	if n := len(existing); n > 0 {
		last := existing[n-1]
		rev.PrevHash = last.Hash
		rev.Seq = last.Seq + 1
	}
	rev.Hash = hashRevision(rev)
	return rev, log.Append(ctx, rev)
}

func hashRevision(rev Revision) string {
	snap := sha256.Sum256(rev.Snapshot)
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		rev.ID, rev.LogID, rev.ProfileID, rev.FieldPath,
		rev.OriginalValue, rev.NewValue, rev.Reason,
		rev.CreatedAt.UTC().Format(time.RFC3339Nano),
		hex.EncodeToString(snap[:]), rev.Seq, rev.PrevHash)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// VerifyChain recomputes the hash chain of one log's revisions.
func VerifyChain(revs []Revision) error {
	ordered := sortedBySeq(revs)
	prev := ""
	for i, rev := range ordered {
		meta := map[string]string{"revisionId": rev.ID, "logId": rev.LogID}
		if rev.Seq != i+1 {
			return faults.Integrity("revision sequence has a hole", meta)
		}
		if rev.PrevHash != prev {
			return faults.Integrity("revision chain is broken", meta)
		}
		if hashRevision(rev) != rev.Hash {
			return faults.Integrity("revision content does not match its hash", meta)
		}
		prev = rev.Hash
	}
	return nil
}

func sortedBySeq(revs []Revision) []Revision {
	out := append([]Revision(nil), revs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// sortByCreated orders ascending by creation time, then append order.
func sortByCreated(revs []Revision) {
	sort.SliceStable(revs, func(i, j int) bool {
		if !revs[i].CreatedAt.Equal(revs[j].CreatedAt) {
			return revs[i].CreatedAt.Before(revs[j].CreatedAt)
		}
		return revs[i].Seq < revs[j].Seq
	})
}

// StoreRevisionLog keeps every revision of a profile in the revisions
// collection.
type StoreRevisionLog struct {
	store store.Store
}

func NewStoreRevisionLog(s store.Store) *StoreRevisionLog {
	return &StoreRevisionLog{store: s}
}

func (l *StoreRevisionLog) Append(ctx context.Context, rev Revision) error {
	all, err := store.Load[Revision](ctx, l.store, rev.ProfileID, store.Revisions)
	if err != nil {
		return err
	}
	for _, existing := range all {
		if existing.ID == rev.ID {
			return faults.Integrity("revision ids are append-only", map[string]string{"revisionId": rev.ID})
		}
	}
	all = append(all, rev)
	return store.Save(ctx, l.store, rev.ProfileID, store.Revisions, all)
}

func (l *StoreRevisionLog) List(ctx context.Context, profileID, logID string) ([]Revision, error) {
	all, err := store.Load[Revision](ctx, l.store, profileID, store.Revisions)
	if err != nil {
		return nil, err
	}
	out := []Revision{}
	for _, rev := range all {
		if rev.LogID == logID {
			out = append(out, rev)
		}
	}
	return out, nil
}

// All returns every revision of a profile in stored order.
func (l *StoreRevisionLog) All(ctx context.Context, profileID string) ([]Revision, error) {
	return store.Load[Revision](ctx, l.store, profileID, store.Revisions)
}

// DeleteLog removes the whole history of one log. It is only used when the
// log itself is deleted.
func (l *StoreRevisionLog) DeleteLog(ctx context.Context, profileID, logID string) (int, error) {
	all, err := store.Load[Revision](ctx, l.store, profileID, store.Revisions)
	if err != nil {
		return 0, err
	}
	kept := all[:0]
	removed := 0
	for _, rev := range all {
		if rev.LogID == logID {
			removed++
			continue
		}
		kept = append(kept, rev)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := store.Save(ctx, l.store, profileID, store.Revisions, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

var _ RevisionLog = (*StoreRevisionLog)(nil)
