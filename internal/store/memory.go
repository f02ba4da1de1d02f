package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Store for tests and ephemeral runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: map[string][]byte{}}
}

func (m *Memory) Get(ctx context.Context, profileID string, collection Collection) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkKey(profileID, collection); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.data[memoryKey(profileID, collection)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), payload...), nil
}

func (m *Memory) Put(ctx context.Context, profileID string, collection Collection, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(profileID, collection); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[memoryKey(profileID, collection)] = append([]byte(nil), payload...)
	return nil
}

// Raw returns the bytes held for a key, for inspecting what reached storage.
func (m *Memory) Raw(profileID string, collection Collection) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.data[memoryKey(profileID, collection)]...)
}

func memoryKey(profileID string, collection Collection) string {
	return fmt.Sprintf("%s/%s", profileID, collection)
}
