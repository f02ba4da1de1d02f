package faults

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := Validation("bad input", ValidationItem{Code: "REC-001", Path: "eventDate", Message: "required"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error to match sentinel")
	}
	if errors.Is(err, ErrIntegrity) {
		t.Fatalf("validation error must not match integrity sentinel")
	}
}

func TestStorageKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("save: %w", Storage("put daily_logs", cause))
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage code")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to remain reachable")
	}
	if code, ok := CodeOf(err); !ok || code != CodeStorage {
		t.Fatalf("CodeOf() = %v, %v", code, ok)
	}
}

func TestStorageDoesNotDoubleWrap(t *testing.T) {
	inner := Storage("get", errors.New("io"))
	if got := Storage("outer", inner); got != inner {
		t.Fatalf("expected existing storage error to be returned as-is")
	}
	if Storage("noop", nil) != nil {
		t.Fatalf("expected nil for nil cause")
	}
}
