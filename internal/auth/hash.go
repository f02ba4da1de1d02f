package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

type HashAlgorithm string

const (
	AlgorithmBcrypt HashAlgorithm = "bcrypt"
	AlgorithmArgon2 HashAlgorithm = "argon2"
)

// KeyPrefix marks raw access keys.
const KeyPrefix = "evk_"

// prefixLen is how much of the key body is kept in clear for lookup.
const prefixLen = 8

var ErrMalformedKey = errors.New("malformed access key")

// GenerateKey returns a raw key and its lookup prefix.
func GenerateKey() (rawKey, prefix string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(buf)
	return KeyPrefix + body, body[:prefixLen], nil
}

// ExtractKeyPrefix returns the lookup prefix of a raw key, or "".
func ExtractKeyPrefix(rawKey string) string {
	body, ok := keyBody(rawKey)
	if !ok || len(body) < prefixLen {
		return ""
	}
	return body[:prefixLen]
}

func keyBody(rawKey string) (string, bool) {
	if !strings.HasPrefix(rawKey, KeyPrefix) {
		return "", false
	}
	return strings.TrimPrefix(rawKey, KeyPrefix), true
}

// Hasher hashes and verifies keys with the configured algorithm. Verify
// detects the algorithm from the stored hash, so changing the setting does
// not lock out existing keys.
type Hasher struct {
	cfg Config
}

func NewHasher(cfg Config) Hasher {
	return Hasher{cfg: cfg}
}

func (h Hasher) Hash(rawKey string) (string, error) {
	body, ok := keyBody(rawKey)
	if !ok {
		return "", ErrMalformedKey
	}
	if HashAlgorithm(h.cfg.HashAlgorithm) == AlgorithmBcrypt {
		cost := h.cfg.BcryptCost
		if cost == 0 {
			cost = bcrypt.DefaultCost
		}
		sum, err := bcrypt.GenerateFromPassword([]byte(body), cost)
		if err != nil {
			return "", fmt.Errorf("bcrypt: %w", err)
		}
		return string(sum), nil
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	p := argonParams{memory: h.cfg.Argon2Memory, time: h.cfg.Argon2Time, threads: h.cfg.Argon2Threads}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		d := DefaultConfig()
		p = argonParams{memory: d.Argon2Memory, time: d.Argon2Time, threads: d.Argon2Threads}
	}
	sum := argon2.IDKey([]byte(body), salt, p.time, p.memory, p.threads, 32)
	return p.encode(salt, sum), nil
}

func (h Hasher) Verify(rawKey, stored string) bool {
	body, ok := keyBody(rawKey)
	if !ok {
		return false
	}
	switch {
	case strings.HasPrefix(stored, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(body)) == nil
	case strings.HasPrefix(stored, "$argon2id$"):
		p, salt, want, err := parseArgon2(stored)
		if err != nil {
			return false
		}
		got := argon2.IDKey([]byte(body), salt, p.time, p.memory, p.threads, uint32(len(want)))
		return subtle.ConstantTimeCompare(got, want) == 1
	}
	return false
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

// encode renders the PHC string $argon2id$v=19$m=..,t=..,p=..$salt$hash.
func (p argonParams) encode(salt, sum []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum))
}

func parseArgon2(encoded string) (argonParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return argonParams{}, nil, nil, ErrMalformedKey
	}
	var p argonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return argonParams{}, nil, nil, err
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argonParams{}, nil, nil, err
	}
	sum, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argonParams{}, nil, nil, err
	}
	return p, salt, sum, nil
}
