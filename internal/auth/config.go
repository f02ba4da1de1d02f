package auth

import "time"

// Config holds access-key settings. Fields carry env tags relative to the
// EVIDENCE_AUTH_ prefix.
type Config struct {
	Enabled bool `env:"ENABLED" envDefault:"false"`
	// HashAlgorithm is bcrypt or argon2.
	HashAlgorithm string        `env:"HASH_ALGORITHM" envDefault:"argon2"`
	BcryptCost    int           `env:"BCRYPT_COST" envDefault:"12"`
	Argon2Time    uint32        `env:"ARGON2_TIME" envDefault:"1"`
	Argon2Memory  uint32        `env:"ARGON2_MEMORY" envDefault:"65536"`
	Argon2Threads uint8         `env:"ARGON2_THREADS" envDefault:"4"`
	RotationGrace time.Duration `env:"KEY_ROTATION_WINDOW" envDefault:"24h"`
	// RatePerMinute limits each key. Zero disables limiting.
	RatePerMinute int `env:"RATE_PER_MIN" envDefault:"120"`
}

// DefaultConfig matches the envDefault tags.
func DefaultConfig() Config {
	return Config{
		HashAlgorithm: string(AlgorithmArgon2),
		BcryptCost:    12,
		Argon2Time:    1,
		Argon2Memory:  64 * 1024,
		Argon2Threads: 4,
		RotationGrace: 24 * time.Hour,
		RatePerMinute: 120,
	}
}
