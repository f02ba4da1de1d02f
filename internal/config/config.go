// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/yourorg/evidencelog/internal/auth"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	// DBPath selects the SQLite file. Empty keeps everything in memory.
	DBPath string `env:"DB_PATH"`
	// Passphrase seals stored payloads at rest when set.
	Passphrase string `env:"PASSPHRASE"`

	MinGapDays         int `env:"MIN_GAP_DAYS" envDefault:"3"`
	RetroThresholdDays int `env:"RETRO_THRESHOLD_DAYS" envDefault:"7"`
	// ReportTZ is the zone report dates are printed in.
	ReportTZ string `env:"REPORT_TZ" envDefault:"UTC"`

	PDFEnabled      bool          `env:"PDF_ENABLED" envDefault:"false"`
	PDFChromiumPath string        `env:"PDF_CHROMIUM_PATH"`
	PDFTimeout      time.Duration `env:"PDF_TIMEOUT" envDefault:"15s"`

	// ExportsPerMinute throttles bundle exports per profile. Zero disables it.
	ExportsPerMinute int   `env:"RATE_PER_MIN" envDefault:"6"`
	MaxBodyBytes     int64 `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	Auth auth.Config `envPrefix:"AUTH_"`
}

// Prefix is prepended to every variable name.
const Prefix = "EVIDENCE_"

// Load reads an optional .env file and then the environment. Variables
// already set win over the file.
func Load(dotenv ...string) (Config, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, path := range dotenv {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return Parse(env.Options{Prefix: Prefix})
}

// Parse reads the environment with the given options.
func Parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves ReportTZ.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReportTZ)
	if err != nil {
		return nil, fmt.Errorf("report timezone %q: %w", c.ReportTZ, err)
	}
	return loc, nil
}

func (c Config) validate() error {
	var errs []error
	if c.MinGapDays < 1 {
		errs = append(errs, fmt.Errorf("%sMIN_GAP_DAYS must be at least 1", Prefix))
	}
	if c.RetroThresholdDays < 1 {
		errs = append(errs, fmt.Errorf("%sRETRO_THRESHOLD_DAYS must be at least 1", Prefix))
	}
	if c.ExportsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("%sRATE_PER_MIN must not be negative", Prefix))
	}
	switch auth.HashAlgorithm(c.Auth.HashAlgorithm) {
	case auth.AlgorithmArgon2, auth.AlgorithmBcrypt:
	default:
		errs = append(errs, fmt.Errorf("%sAUTH_HASH_ALGORITHM must be argon2 or bcrypt", Prefix))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
