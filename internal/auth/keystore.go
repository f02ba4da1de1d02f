package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/store"
)

// StoreKeys keeps every key in the global access_keys collection.
type StoreKeys struct {
	mu     sync.Mutex
	store  store.Store
	hasher Hasher
	cfg    Config
	clock  clock.Clock
}

func NewStoreKeys(s store.Store, cfg Config, c clock.Clock) *StoreKeys {
	return &StoreKeys{store: s, hasher: NewHasher(cfg), cfg: cfg, clock: c}
}

func (k *StoreKeys) load(ctx context.Context) ([]AccessKey, error) {
	return store.Load[AccessKey](ctx, k.store, store.GlobalProfile, store.AccessKeys)
}

func (k *StoreKeys) save(ctx context.Context, keys []AccessKey) error {
	return store.Save(ctx, k.store, store.GlobalProfile, store.AccessKeys, keys)
}

func (k *StoreKeys) now() (time.Time, error) {
	now, err := k.clock.Now()
	if err != nil {
		return time.Time{}, fmt.Errorf("read clock: %w", err)
	}
	return now, nil
}

func (k *StoreKeys) issue(profileID, name string, scopes []string, now time.Time) (AccessKey, string, error) {
	raw, prefix, err := GenerateKey()
	if err != nil {
		return AccessKey{}, "", err
	}
	hash, err := k.hasher.Hash(raw)
	if err != nil {
		return AccessKey{}, "", err
	}
	return AccessKey{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Name:      name,
		KeyPrefix: prefix,
		KeyHash:   hash,
		Scopes:    append([]string{}, scopes...),
		CreatedAt: now,
	}, raw, nil
}

func (k *StoreKeys) Create(ctx context.Context, profileID, name string, scopes []string, expiresAt *time.Time) (AccessKey, string, error) {
	profileID = strings.TrimSpace(profileID)
	if err := checkKeyRequest(profileID, name, scopes); err != nil {
		return AccessKey{}, "", err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	now, err := k.now()
	if err != nil {
		return AccessKey{}, "", err
	}
	key, raw, err := k.issue(profileID, strings.TrimSpace(name), scopes, now)
	if err != nil {
		return AccessKey{}, "", err
	}
	key.ExpiresAt = expiresAt
	keys, err := k.load(ctx)
	if err != nil {
		return AccessKey{}, "", err
	}
	if err := k.save(ctx, append(keys, key)); err != nil {
		return AccessKey{}, "", err
	}
	return key, raw, nil
}

func (k *StoreKeys) Validate(ctx context.Context, rawKey string) (AccessKey, error) {
	prefix := ExtractKeyPrefix(rawKey)
	if prefix == "" {
		return AccessKey{}, ErrMalformedKey
	}
	keys, err := k.load(ctx)
	if err != nil {
		return AccessKey{}, err
	}
	now, err := k.now()
	if err != nil {
		return AccessKey{}, err
	}
	for _, key := range keys {
		if key.KeyPrefix != prefix || !k.hasher.Verify(rawKey, key.KeyHash) {
			continue
		}
		if key.RevokedAt != nil {
			return key, ErrKeyRevoked
		}
		if key.ExpiresAt != nil && !now.Before(*key.ExpiresAt) {
			return key, ErrKeyExpired
		}
		return key, nil
	}
	return AccessKey{}, ErrInvalidAccessKey
}

func (k *StoreKeys) Get(ctx context.Context, keyID string) (AccessKey, error) {
	keys, err := k.load(ctx)
	if err != nil {
		return AccessKey{}, err
	}
	for _, key := range keys {
		if key.ID == keyID {
			return key, nil
		}
	}
	return AccessKey{}, ErrKeyNotFound
}

func (k *StoreKeys) Rotate(ctx context.Context, keyID string) (AccessKey, string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	keys, err := k.load(ctx)
	if err != nil {
		return AccessKey{}, "", err
	}
	i := indexOf(keys, keyID)
	if i < 0 {
		return AccessKey{}, "", ErrKeyNotFound
	}
	if keys[i].RevokedAt != nil {
		return AccessKey{}, "", ErrKeyRevoked
	}
	now, err := k.now()
	if err != nil {
		return AccessKey{}, "", err
	}
	next, raw, err := k.issue(keys[i].ProfileID, keys[i].Name, keys[i].Scopes, now)
	if err != nil {
		return AccessKey{}, "", err
	}
	next.RotatedFrom = keys[i].ID
	grace := now.Add(k.cfg.RotationGrace)
	if keys[i].ExpiresAt == nil || keys[i].ExpiresAt.After(grace) {
		keys[i].ExpiresAt = &grace
	}
	keys[i].Rotated = true
	if err := k.save(ctx, append(keys, next)); err != nil {
		return AccessKey{}, "", err
	}
	return next, raw, nil
}

func (k *StoreKeys) Revoke(ctx context.Context, keyID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	keys, err := k.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(keys, keyID)
	if i < 0 {
		return ErrKeyNotFound
	}
	if keys[i].RevokedAt != nil {
		return nil
	}
	now, err := k.now()
	if err != nil {
		return err
	}
	keys[i].RevokedAt = &now
	return k.save(ctx, keys)
}

func (k *StoreKeys) List(ctx context.Context, profileID string) ([]AccessKey, error) {
	keys, err := k.load(ctx)
	if err != nil {
		return nil, err
	}
	out := []AccessKey{}
	for _, key := range keys {
		if key.ProfileID == profileID {
			out = append(out, key)
		}
	}
	return out, nil
}

// Touch records the last use of a key. Unknown ids are ignored.
func (k *StoreKeys) Touch(ctx context.Context, keyID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	keys, err := k.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(keys, keyID)
	if i < 0 {
		return nil
	}
	now, err := k.now()
	if err != nil {
		return err
	}
	keys[i].LastUsedAt = &now
	return k.save(ctx, keys)
}

func checkKeyRequest(profileID, name string, scopes []string) error {
	var items []faults.ValidationItem
	if profileID == "" {
		items = append(items, faults.ValidationItem{Code: "AUTH-KEY-001", Path: "profileId", Message: "profileId is required"})
	}
	if strings.TrimSpace(name) == "" {
		items = append(items, faults.ValidationItem{Code: "AUTH-KEY-002", Path: "name", Message: "name is required"})
	}
	if len(scopes) == 0 {
		items = append(items, faults.ValidationItem{Code: "AUTH-KEY-003", Path: "scopes", Message: "at least one scope is required"})
	}
	for i, s := range scopes {
		if !knownScope(s) {
			items = append(items, faults.ValidationItem{Code: "AUTH-KEY-004", Path: fmt.Sprintf("scopes[%d]", i), Message: "unknown scope " + s})
		}
	}
	if len(items) > 0 {
		return faults.Validation("invalid access key request", items...)
	}
	return nil
}

func indexOf(keys []AccessKey, id string) int {
	for i, key := range keys {
		if key.ID == id {
			return i
		}
	}
	return -1
}

var _ KeyStore = (*StoreKeys)(nil)
