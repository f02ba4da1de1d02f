// Package evidence stamps new records with an immutable evidence time and
// manages the process-wide evidence mode.
package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/store"
)

// ModeConfig is the evidence-mode singleton. The zero value is disabled.
type ModeConfig struct {
	Enabled   bool       `json:"enabled"`
	EnabledAt *time.Time `json:"enabledAt,omitempty"`
	EnabledBy string     `json:"enabledBy,omitempty"`
}

// ModeService reads and toggles the evidence mode. It only ever writes the
// singleton; existing records are never touched.
type ModeService struct {
	store  store.Store
	clock  clock.Clock
	logger *slog.Logger
}

func NewModeService(s store.Store, c clock.Clock, logger *slog.Logger) *ModeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModeService{store: s, clock: c, logger: logger}
}

// Current returns the stored config, or the disabled default when nothing
// has been written yet.
func (m *ModeService) Current(ctx context.Context) (ModeConfig, error) {
	cfg, _, err := store.LoadValue[ModeConfig](ctx, m.store, store.GlobalProfile, store.EvidenceMode)
	if err != nil {
		return ModeConfig{}, err
	}
	return cfg, nil
}

// Activate enables evidence mode on behalf of profileID.
func (m *ModeService) Activate(ctx context.Context, profileID string) (ModeConfig, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return ModeConfig{}, faults.Validation("profile id is required", faults.ValidationItem{
			Code: "EVID-MODE-001", Path: "profileId", Message: "profileId is required",
		})
	}
	now, err := m.clock.Now()
	if err != nil {
		return ModeConfig{}, fmt.Errorf("read clock: %w", err)
	}
	cfg := ModeConfig{Enabled: true, EnabledAt: &now, EnabledBy: profileID}
	if err := store.SaveValue(ctx, m.store, store.GlobalProfile, store.EvidenceMode, cfg); err != nil {
		return ModeConfig{}, err
	}
	m.logger.InfoContext(ctx, "evidence mode activated", "profile_id", profileID, "enabled_at", clock.Format(now))
	return cfg, nil
}

// Deactivate disables evidence mode. Stamps already set stay in place.
func (m *ModeService) Deactivate(ctx context.Context) (ModeConfig, error) {
	cfg := ModeConfig{}
	if err := store.SaveValue(ctx, m.store, store.GlobalProfile, store.EvidenceMode, cfg); err != nil {
		return ModeConfig{}, err
	}
	m.logger.InfoContext(ctx, "evidence mode deactivated")
	return cfg, nil
}
