// Package store persists whole per-profile collections as opaque payloads.
//
// Every mutation in the evidence core loads a collection, changes it in
// memory and writes the whole collection back. There is no row-level
// locking; the last whole-collection write wins.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yourorg/evidencelog/internal/faults"
)

// Collection names a logical per-profile collection.
type Collection string

const (
	DailyLogs       Collection = "daily_logs"
	ActivityLogs    Collection = "activity_logs"
	Limitations     Collection = "limitations"
	Revisions       Collection = "revisions"
	GapExplanations Collection = "gap_explanations"
	Medications     Collection = "medications"
	Appointments    Collection = "appointments"
	AuditLog        Collection = "audit_log"
	EvidenceMode    Collection = "evidence_mode"
	AccessKeys      Collection = "access_keys"
)

// GlobalProfile keys process-wide singletons such as the evidence mode.
const GlobalProfile = "_global"

var ErrInvalidKey = errors.New("profile id and collection are required")

// Store reads and writes whole collections. Get returns nil, nil for a
// collection that was never written.
type Store interface {
	Get(ctx context.Context, profileID string, collection Collection) ([]byte, error)
	Put(ctx context.Context, profileID string, collection Collection, payload []byte) error
}

// Load decodes a collection into a slice. Missing collections are empty.
func Load[T any](ctx context.Context, s Store, profileID string, collection Collection) ([]T, error) {
	payload, err := s.Get(ctx, profileID, collection)
	if err != nil {
		return nil, faults.Storage(fmt.Sprintf("get %s", collection), err)
	}
	if len(payload) == 0 {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, faults.Storage(fmt.Sprintf("decode %s", collection), err)
	}
	return items, nil
}

// Save encodes and writes a whole collection.
func Save[T any](ctx context.Context, s Store, profileID string, collection Collection, items []T) error {
	if items == nil {
		items = []T{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return faults.Storage(fmt.Sprintf("encode %s", collection), err)
	}
	if err := s.Put(ctx, profileID, collection, payload); err != nil {
		return faults.Storage(fmt.Sprintf("put %s", collection), err)
	}
	return nil
}

// LoadValue decodes a singleton value. ok is false when nothing is stored.
func LoadValue[T any](ctx context.Context, s Store, profileID string, collection Collection) (T, bool, error) {
	var v T
	payload, err := s.Get(ctx, profileID, collection)
	if err != nil {
		return v, false, faults.Storage(fmt.Sprintf("get %s", collection), err)
	}
	if len(payload) == 0 {
		return v, false, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, false, faults.Storage(fmt.Sprintf("decode %s", collection), err)
	}
	return v, true, nil
}

// SaveValue writes a singleton value.
func SaveValue[T any](ctx context.Context, s Store, profileID string, collection Collection, v T) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return faults.Storage(fmt.Sprintf("encode %s", collection), err)
	}
	if err := s.Put(ctx, profileID, collection, payload); err != nil {
		return faults.Storage(fmt.Sprintf("put %s", collection), err)
	}
	return nil
}

func checkKey(profileID string, collection Collection) error {
	if strings.TrimSpace(profileID) == "" || strings.TrimSpace(string(collection)) == "" {
		return ErrInvalidKey
	}
	return nil
}
