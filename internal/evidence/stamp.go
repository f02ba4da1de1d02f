package evidence

import (
	"fmt"

	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/records"
)

// Stamp returns a copy of r carrying an evidence timestamp when mode is
// enabled, and r itself otherwise. It must only be called before the first
// persist. A record that already carries a stamp keeps it.
func Stamp(r records.Record, mode ModeConfig, c clock.Clock) (records.Record, error) {
	if !mode.Enabled {
		return r, nil
	}
	if r.Meta().EvidenceTimestamp != nil {
		return r, nil
	}
	now, err := c.Now()
	if err != nil {
		return nil, fmt.Errorf("stamp evidence time: %w", err)
	}
	out := r.Clone()
	ts := clock.Normalize(now)
	out.Meta().EvidenceTimestamp = &ts
	return out, nil
}
