// Package auth issues and checks per-profile access keys for the HTTP API.
package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrKeyRequired       = errors.New("access key required")
	ErrInvalidAccessKey  = errors.New("invalid access key")
	ErrKeyExpired        = errors.New("access key expired")
	ErrKeyRevoked        = errors.New("access key revoked")
	ErrKeyNotFound       = errors.New("access key not found")
	ErrInsufficientScope = errors.New("insufficient scope")
)

// AccessKey is a stored key. KeyHash never leaves the store; use Public.
type AccessKey struct {
	ID          string     `json:"id"`
	ProfileID   string     `json:"profileId"`
	Name        string     `json:"name"`
	KeyPrefix   string     `json:"keyPrefix"`
	KeyHash     string     `json:"keyHash"`
	Scopes      []string   `json:"scopes"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
	Rotated     bool       `json:"rotated,omitempty"`
	RotatedFrom string     `json:"rotatedFrom,omitempty"`
}

// KeyInfo is the public view of an AccessKey.
type KeyInfo struct {
	ID          string     `json:"id"`
	ProfileID   string     `json:"profileId"`
	Name        string     `json:"name"`
	KeyPrefix   string     `json:"keyPrefix"`
	Scopes      []string   `json:"scopes"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
	Rotated     bool       `json:"rotated,omitempty"`
	RotatedFrom string     `json:"rotatedFrom,omitempty"`
}

func (k AccessKey) Public() KeyInfo {
	return KeyInfo{
		ID:          k.ID,
		ProfileID:   k.ProfileID,
		Name:        k.Name,
		KeyPrefix:   k.KeyPrefix,
		Scopes:      append([]string{}, k.Scopes...),
		ExpiresAt:   k.ExpiresAt,
		LastUsedAt:  k.LastUsedAt,
		CreatedAt:   k.CreatedAt,
		RevokedAt:   k.RevokedAt,
		Rotated:     k.Rotated,
		RotatedFrom: k.RotatedFrom,
	}
}

// Scopes a key may carry. "*" grants every scope on the key's own profile.
const (
	ScopeLogsRead    = "logs:read"
	ScopeLogsWrite   = "logs:write"
	ScopeReportsRead = "reports:read"
	ScopeExport      = "export:write"
	ScopeModeWrite   = "mode:write"
	ScopeKeysWrite   = "keys:write"
	ScopeAll         = "*"
)

// AllScopes lists every scope short of "*".
func AllScopes() []string {
	return []string{ScopeLogsRead, ScopeLogsWrite, ScopeReportsRead, ScopeExport, ScopeModeWrite, ScopeKeysWrite}
}

func knownScope(s string) bool {
	if s == ScopeAll {
		return true
	}
	for _, known := range AllScopes() {
		if s == known {
			return true
		}
	}
	return false
}

// Actor is the authenticated key behind a request.
type Actor struct {
	ProfileID string   `json:"profileId"`
	KeyID     string   `json:"keyId"`
	KeyName   string   `json:"keyName"`
	Scopes    []string `json:"scopes"`
}

func (a *Actor) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope || s == ScopeAll {
			return true
		}
	}
	return false
}

// CanAccess reports whether the actor may act on profileID. Keys are bound
// to one profile; ScopeAll widens scopes only.
func (a *Actor) CanAccess(profileID string) bool {
	return a.ProfileID == profileID
}

type actorKey struct{}

func ActorFromContext(ctx context.Context) (*Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(*Actor)
	return actor, ok
}

func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// KeyStore persists access keys.
type KeyStore interface {
	// Create returns the stored key and the raw key, which is shown once.
	Create(ctx context.Context, profileID, name string, scopes []string, expiresAt *time.Time) (AccessKey, string, error)
	// Validate resolves a raw key. Expired and revoked keys come back with
	// the matching error so callers can still attribute the attempt.
	Validate(ctx context.Context, rawKey string) (AccessKey, error)
	Get(ctx context.Context, keyID string) (AccessKey, error)
	// Rotate issues a replacement and lets the old key live for the
	// rotation window.
	Rotate(ctx context.Context, keyID string) (AccessKey, string, error)
	Revoke(ctx context.Context, keyID string) error
	List(ctx context.Context, profileID string) ([]AccessKey, error)
	Touch(ctx context.Context, keyID string) error
}
