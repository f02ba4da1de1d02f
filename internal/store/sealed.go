package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sealVersion  byte = 1
	sealSaltSize      = 16
	sealKeySize       = chacha20poly1305.KeySize
)

// ErrSealed is returned when a payload cannot be opened with the passphrase.
var ErrSealed = errors.New("sealed payload could not be opened")

// SealParams tunes the Argon2id key derivation.
type SealParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultSealParams mirrors the access-key hashing defaults.
var DefaultSealParams = SealParams{Time: 1, Memory: 64 * 1024, Threads: 4}

// Sealed encrypts every payload before it reaches the inner store.
//
// Layout of a sealed payload: version(1) | salt(16) | nonce(24) | ciphertext.
// The profile and collection are bound as associated data, so a payload
// copied under another key fails to open.
type Sealed struct {
	inner      Store
	passphrase []byte
	params     SealParams
	salt       []byte

	mu   sync.Mutex
	keys map[string][]byte
}

// NewSealed wraps inner. An empty passphrase is rejected.
func NewSealed(inner Store, passphrase string, params SealParams) (*Sealed, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner store is required")
	}
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is required")
	}
	if params.Time == 0 {
		params = DefaultSealParams
	}
	salt := make([]byte, sealSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return &Sealed{
		inner:      inner,
		passphrase: []byte(passphrase),
		params:     params,
		salt:       salt,
		keys:       map[string][]byte{},
	}, nil
}

func (s *Sealed) Get(ctx context.Context, profileID string, collection Collection) ([]byte, error) {
	payload, err := s.inner.Get(ctx, profileID, collection)
	if err != nil || len(payload) == 0 {
		return payload, err
	}
	return s.open(payload, associatedData(profileID, collection))
}

func (s *Sealed) Put(ctx context.Context, profileID string, collection Collection, payload []byte) error {
	sealed, err := s.seal(payload, associatedData(profileID, collection))
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, profileID, collection, sealed)
}

func (s *Sealed) seal(plain, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key(s.salt))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := make([]byte, 0, 1+sealSaltSize+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, sealVersion)
	out = append(out, s.salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, ad), nil
}

func (s *Sealed) open(payload, ad []byte) ([]byte, error) {
	header := 1 + sealSaltSize + chacha20poly1305.NonceSizeX
	if len(payload) < header || payload[0] != sealVersion {
		return nil, ErrSealed
	}
	salt := payload[1 : 1+sealSaltSize]
	nonce := payload[1+sealSaltSize : header]
	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, payload[header:], ad)
	if err != nil {
		return nil, ErrSealed
	}
	return plain, nil
}

// key derives and caches the key for a salt.
func (s *Sealed) key(salt []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[string(salt)]; ok {
		return k
	}
	k := argon2.IDKey(s.passphrase, salt, s.params.Time, s.params.Memory, s.params.Threads, sealKeySize)
	s.keys[string(salt)] = k
	return k
}

func associatedData(profileID string, collection Collection) []byte {
	return []byte(profileID + "\x00" + string(collection))
}

var _ Store = (*Sealed)(nil)
