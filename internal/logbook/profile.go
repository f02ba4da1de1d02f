package logbook

import (
	"context"

	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/records"
	"github.com/yourorg/evidencelog/internal/store"
)

func (s *Service) AddLimitation(ctx context.Context, profileID string, in records.LimitationInput) (records.Limitation, error) {
	profileID, err := requireProfile(profileID)
	if err != nil {
		return records.Limitation{}, err
	}
	l, err := in.Build()
	if err != nil {
		return records.Limitation{}, err
	}
	now, err := s.now()
	if err != nil {
		return records.Limitation{}, err
	}
	l.ID = s.newID()
	l.ProfileID = profileID
	l.CreatedAt = now
	l.UpdatedAt = now
	all, err := store.Load[records.Limitation](ctx, s.store, profileID, store.Limitations)
	if err != nil {
		return records.Limitation{}, err
	}
	if err := store.Save(ctx, s.store, profileID, store.Limitations, append(all, l)); err != nil {
		return records.Limitation{}, err
	}
	s.record(ctx, profileID, "limitation.create", l.ID, string(l.Category))
	return l, nil
}

func (s *Service) Limitations(ctx context.Context, profileID string) ([]records.Limitation, error) {
	return store.Load[records.Limitation](ctx, s.store, profileID, store.Limitations)
}

// DeactivateLimitation stops a limitation from feeding derivations. The
// declaration itself is kept.
func (s *Service) DeactivateLimitation(ctx context.Context, profileID, id string) (records.Limitation, error) {
	all, err := s.Limitations(ctx, profileID)
	if err != nil {
		return records.Limitation{}, err
	}
	for i := range all {
		if all[i].ID != id {
			continue
		}
		if !all[i].Active {
			return all[i], nil
		}
		now, err := s.now()
		if err != nil {
			return records.Limitation{}, err
		}
		all[i].Active = false
		all[i].UpdatedAt = now
		if err := store.Save(ctx, s.store, profileID, store.Limitations, all); err != nil {
			return records.Limitation{}, err
		}
		s.record(ctx, profileID, "limitation.deactivate", id, string(all[i].Category))
		return all[i], nil
	}
	return records.Limitation{}, faults.NotFound("limitation", id)
}

// ExplainGap stores a rationale for an exact interval. Explaining the same
// interval again replaces the earlier note.
func (s *Service) ExplainGap(ctx context.Context, profileID string, in records.GapExplanationInput) (records.GapExplanation, error) {
	profileID, err := requireProfile(profileID)
	if err != nil {
		return records.GapExplanation{}, err
	}
	g, err := in.Build()
	if err != nil {
		return records.GapExplanation{}, err
	}
	now, err := s.now()
	if err != nil {
		return records.GapExplanation{}, err
	}
	g.CreatedAt = now
	all, err := s.GapExplanations(ctx, profileID)
	if err != nil {
		return records.GapExplanation{}, err
	}
	kept := all[:0]
	for _, e := range all {
		if records.SameDate(e.StartDate, g.StartDate) && records.SameDate(e.EndDate, g.EndDate) {
			continue
		}
		kept = append(kept, e)
	}
	if err := store.Save(ctx, s.store, profileID, store.GapExplanations, append(kept, g)); err != nil {
		return records.GapExplanation{}, err
	}
	s.record(ctx, profileID, "gap.explain", g.StartDate.String()+".."+g.EndDate.String(), "")
	return g, nil
}

func (s *Service) GapExplanations(ctx context.Context, profileID string) ([]records.GapExplanation, error) {
	return store.Load[records.GapExplanation](ctx, s.store, profileID, store.GapExplanations)
}

func (s *Service) AddMedication(ctx context.Context, profileID string, in records.MedicationInput) (records.Medication, error) {
	profileID, err := requireProfile(profileID)
	if err != nil {
		return records.Medication{}, err
	}
	m, err := in.Build()
	if err != nil {
		return records.Medication{}, err
	}
	now, err := s.now()
	if err != nil {
		return records.Medication{}, err
	}
	m.ID = s.newID()
	m.ProfileID = profileID
	m.CreatedAt = now
	all, err := s.Medications(ctx, profileID)
	if err != nil {
		return records.Medication{}, err
	}
	if err := store.Save(ctx, s.store, profileID, store.Medications, append(all, m)); err != nil {
		return records.Medication{}, err
	}
	return m, nil
}

func (s *Service) Medications(ctx context.Context, profileID string) ([]records.Medication, error) {
	return store.Load[records.Medication](ctx, s.store, profileID, store.Medications)
}

func (s *Service) AddAppointment(ctx context.Context, profileID string, in records.AppointmentInput) (records.Appointment, error) {
	profileID, err := requireProfile(profileID)
	if err != nil {
		return records.Appointment{}, err
	}
	a, err := in.Build()
	if err != nil {
		return records.Appointment{}, err
	}
	now, err := s.now()
	if err != nil {
		return records.Appointment{}, err
	}
	a.ID = s.newID()
	a.ProfileID = profileID
	a.CreatedAt = now
	all, err := s.Appointments(ctx, profileID)
	if err != nil {
		return records.Appointment{}, err
	}
	if err := store.Save(ctx, s.store, profileID, store.Appointments, append(all, a)); err != nil {
		return records.Appointment{}, err
	}
	return a, nil
}

func (s *Service) Appointments(ctx context.Context, profileID string) ([]records.Appointment, error) {
	return store.Load[records.Appointment](ctx, s.store, profileID, store.Appointments)
}
