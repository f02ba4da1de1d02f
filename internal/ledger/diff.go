package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/records"
)

// excludedFields are never diffed.
var excludedFields = map[string]bool{
	"id":        true,
	"profileId": true,
	"updatedAt": true,
}

// systemFields may only be set by the system, through Finalize or at
// creation. A proposal that changes one is an integrity violation.
var systemFields = map[string]bool{
	"createdAt":            true,
	"evidenceTimestamp":    true,
	"finalized":            true,
	"finalizedAt":          true,
	"retrospectiveContext": true,
}

// FieldChange is one differing top-level field.
type FieldChange struct {
	Path     string
	Original json.RawMessage
	Proposed json.RawMessage
}

func fieldsOf(r records.Record) (map[string]json.RawMessage, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode %s record: %w", r.Kind(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", r.Kind(), err)
	}
	return fields, nil
}

// diffFields compares every top-level JSON field of a and b, sorted by path.
// Null, missing, empty string and empty array compare equal.
func diffFields(a, b records.Record, skip map[string]bool) ([]FieldChange, error) {
	fa, err := fieldsOf(a)
	if err != nil {
		return nil, err
	}
	fb, err := fieldsOf(b)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(fa)+len(fb))
	seen := map[string]bool{}
	for _, m := range []map[string]json.RawMessage{fa, fb} {
		for k := range m {
			if !seen[k] && !skip[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	var changes []FieldChange
	for _, k := range keys {
		eq, err := sameValue(fa[k], fb[k])
		if err != nil {
			return nil, fmt.Errorf("compare %s: %w", k, err)
		}
		if !eq {
			changes = append(changes, FieldChange{Path: k, Original: orNull(fa[k]), Proposed: orNull(fb[k])})
		}
	}
	return changes, nil
}

func sameValue(a, b json.RawMessage) (bool, error) {
	if bytes.Equal(a, b) {
		return true, nil
	}
	var va, vb any
	if len(a) > 0 {
		if err := json.Unmarshal(a, &va); err != nil {
			return false, err
		}
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &vb); err != nil {
			return false, err
		}
	}
	if isEmpty(va) && isEmpty(vb) {
		return true, nil
	}
	return reflect.DeepEqual(va, vb), nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	return false
}

func orNull(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return json.RawMessage("null")
	}
	return v
}

// proposedChanges diffs a proposal against the stored original. It rejects
// kind or identity mismatches and any change to a system field.
func proposedChanges(original, proposed records.Record) ([]FieldChange, error) {
	if original.Kind() != proposed.Kind() {
		return nil, faults.Validation("record kind mismatch", faults.ValidationItem{
			Code:    "LEDGER-UPD-001",
			Path:    "kind",
			Message: fmt.Sprintf("cannot apply %s changes to a %s record", proposed.Kind(), original.Kind()),
		})
	}
	changes, err := diffFields(original, proposed, excludedFields)
	if err != nil {
		return nil, err
	}
	writable := changes[:0]
	var touched []string
	for _, c := range changes {
		if systemFields[c.Path] {
			touched = append(touched, c.Path)
			continue
		}
		writable = append(writable, c)
	}
	if len(touched) > 0 {
		return nil, faults.Integrity("proposal changes system-managed fields", map[string]string{
			"id":     original.Meta().ID,
			"fields": strings.Join(touched, ","),
		})
	}
	return writable, nil
}
