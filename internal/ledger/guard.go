package ledger

import (
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/records"
)

// creationFields are fixed once a record is first stored, finalized or not.
var creationFields = map[string]bool{
	"createdAt":            true,
	"evidenceTimestamp":    true,
	"retrospectiveContext": true,
}

// GuardCollection checks a whole-collection write before it reaches the
// store. Finalized records must come back byte-for-byte equal or not at all,
// and no record may change its creation fields or be un-finalized.
// Removing a record is allowed; that is whole-record deletion.
func GuardCollection[T records.Record](before, after []T) error {
	index := make(map[string]T, len(before))
	for _, r := range before {
		index[r.Meta().ID] = r
	}
	for _, next := range after {
		prev, ok := index[next.Meta().ID]
		if !ok {
			continue
		}
		changes, err := diffFields(prev, next, nil)
		if err != nil {
			return err
		}
		for _, c := range changes {
			if prev.Meta().Finalized || creationFields[c.Path] {
				return faults.Integrity("write would alter protected evidence", map[string]string{
					"id":    prev.Meta().ID,
					"field": c.Path,
				})
			}
		}
	}
	return nil
}
