package records

import (
	"strings"

	"github.com/yourorg/evidencelog/internal/faults"
)

// Declared is a user-supplied backdating reason captured at creation.
type Declared struct {
	Reason RetroReason
	Note   string
}

// IsZero reports whether nothing was declared.
func (d Declared) IsZero() bool {
	return d.Reason == "" && strings.TrimSpace(d.Note) == ""
}

type SymptomInput struct {
	Symptom  string `json:"symptom" validate:"required,oneof=back_pain neck_pain hip_pain leg_pain joint_pain headache migraine fatigue brain_fog dizziness nausea weakness numbness shortness_of_breath anxiety depression"`
	Severity int    `json:"severity" validate:"gte=0,lte=10"`
	Note     string `json:"note" validate:"max=1000"`
}

// DailyLogInput is the writable content of a daily log.
type DailyLogInput struct {
	EventDate           string         `json:"eventDate" validate:"required,datetime=2006-01-02"`
	OverallSeverity     int            `json:"overallSeverity" validate:"gte=0,lte=10"`
	Symptoms            []SymptomInput `json:"symptoms" validate:"max=50,dive"`
	BadDay              bool           `json:"badDay"`
	Notes               string         `json:"notes" validate:"max=4000"`
	RetrospectiveReason string         `json:"retrospectiveReason" validate:"omitempty,oneof=delayed_entry recalled_from_notes too_unwell_to_log device_unavailable other"`
	RetrospectiveNote   string         `json:"retrospectiveNote" validate:"max=1000"`
}

func (in DailyLogInput) Declared() Declared {
	return Declared{Reason: RetroReason(in.RetrospectiveReason), Note: in.RetrospectiveNote}
}

// Build validates the input and returns a record with content and event
// date set. System fields are left for the caller.
func (in DailyLogInput) Build() (*DailyLog, error) {
	return in.ApplyTo(&DailyLog{})
}

// ApplyTo returns a copy of original with the input's content applied.
func (in DailyLogInput) ApplyTo(original *DailyLog) (*DailyLog, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	date, err := parseRequiredDate("eventDate", in.EventDate)
	if err != nil {
		return nil, err
	}
	out := original.Clone().(*DailyLog)
	out.EventDate = date
	out.OverallSeverity = in.OverallSeverity
	out.BadDay = in.BadDay
	out.Notes = strings.TrimSpace(in.Notes)
	out.Symptoms = make([]SymptomEntry, 0, len(in.Symptoms))
	for _, s := range in.Symptoms {
		out.Symptoms = append(out.Symptoms, SymptomEntry{
			Symptom:  Symptom(s.Symptom),
			Severity: s.Severity,
			Note:     strings.TrimSpace(s.Note),
		})
	}
	return out, nil
}

// ActivityLogInput is the writable content of an activity log.
type ActivityLogInput struct {
	EventDate           string   `json:"eventDate" validate:"required,datetime=2006-01-02"`
	Activity            string   `json:"activity" validate:"max=200"`
	Posture             string   `json:"posture" validate:"required,oneof=sitting standing walking lifting carrying concentrating"`
	DurationMinutes     int      `json:"durationMinutes" validate:"gte=0,lte=1440"`
	WeightLbs           *float64 `json:"weightLbs" validate:"omitempty,gte=0,lte=500"`
	ImpactSeverity      int      `json:"impactSeverity" validate:"gte=0,lte=10"`
	StoppedEarly        bool     `json:"stoppedEarly"`
	RecoveryHours       float64  `json:"recoveryHours" validate:"gte=0,lte=168"`
	Notes               string   `json:"notes" validate:"max=4000"`
	RetrospectiveReason string   `json:"retrospectiveReason" validate:"omitempty,oneof=delayed_entry recalled_from_notes too_unwell_to_log device_unavailable other"`
	RetrospectiveNote   string   `json:"retrospectiveNote" validate:"max=1000"`
}

func (in ActivityLogInput) Declared() Declared {
	return Declared{Reason: RetroReason(in.RetrospectiveReason), Note: in.RetrospectiveNote}
}

func (in ActivityLogInput) Build() (*ActivityLog, error) {
	return in.ApplyTo(&ActivityLog{})
}

func (in ActivityLogInput) ApplyTo(original *ActivityLog) (*ActivityLog, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	date, err := parseRequiredDate("eventDate", in.EventDate)
	if err != nil {
		return nil, err
	}
	out := original.Clone().(*ActivityLog)
	out.EventDate = date
	out.Activity = strings.TrimSpace(in.Activity)
	out.Posture = Posture(in.Posture)
	out.DurationMinutes = in.DurationMinutes
	out.WeightLbs = nil
	if in.WeightLbs != nil {
		w := *in.WeightLbs
		out.WeightLbs = &w
	}
	out.ImpactSeverity = in.ImpactSeverity
	out.StoppedEarly = in.StoppedEarly
	out.RecoveryHours = in.RecoveryHours
	out.Notes = strings.TrimSpace(in.Notes)
	return out, nil
}

// LimitationInput declares a functional limitation.
type LimitationInput struct {
	Category           string   `json:"category" validate:"required,oneof=sitting standing walking lifting carrying concentration"`
	Description        string   `json:"description" validate:"required,max=1000"`
	MaxDurationMinutes *int     `json:"maxDurationMinutes" validate:"omitempty,gte=1,lte=1440"`
	MaxWeightLbs       *float64 `json:"maxWeightLbs" validate:"omitempty,gte=0,lte=500"`
}

func (in LimitationInput) Build() (Limitation, error) {
	if err := Validate(in); err != nil {
		return Limitation{}, err
	}
	l := Limitation{
		Category:    Capacity(in.Category),
		Description: strings.TrimSpace(in.Description),
		Active:      true,
	}
	if in.MaxDurationMinutes != nil {
		v := *in.MaxDurationMinutes
		l.MaxDurationMinutes = &v
	}
	if in.MaxWeightLbs != nil {
		v := *in.MaxWeightLbs
		l.MaxWeightLbs = &v
	}
	return l, nil
}

// GapExplanationInput explains an exact undocumented interval.
type GapExplanationInput struct {
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Note      string `json:"note" validate:"required,max=2000"`
}

func (in GapExplanationInput) Build() (GapExplanation, error) {
	if err := Validate(in); err != nil {
		return GapExplanation{}, err
	}
	start, err := parseRequiredDate("startDate", in.StartDate)
	if err != nil {
		return GapExplanation{}, err
	}
	end, err := parseRequiredDate("endDate", in.EndDate)
	if err != nil {
		return GapExplanation{}, err
	}
	if DaysBetween(start, end) < 0 {
		return GapExplanation{}, faults.Validation("request validation failed", faults.ValidationItem{
			Code:    "REC-GAP-001",
			Path:    "endDate",
			Message: "endDate must be on or after startDate",
		})
	}
	return GapExplanation{StartDate: start, EndDate: end, Note: strings.TrimSpace(in.Note)}, nil
}

type MedicationInput struct {
	Name      string  `json:"name" validate:"required,max=200"`
	Dose      string  `json:"dose" validate:"max=200"`
	Frequency string  `json:"frequency" validate:"max=200"`
	StartDate *string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   *string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Notes     string  `json:"notes" validate:"max=2000"`
}

func (in MedicationInput) Build() (Medication, error) {
	if err := Validate(in); err != nil {
		return Medication{}, err
	}
	start, err := parseOptionalDate("startDate", in.StartDate)
	if err != nil {
		return Medication{}, err
	}
	end, err := parseOptionalDate("endDate", in.EndDate)
	if err != nil {
		return Medication{}, err
	}
	return Medication{
		Name:      strings.TrimSpace(in.Name),
		Dose:      strings.TrimSpace(in.Dose),
		Frequency: strings.TrimSpace(in.Frequency),
		StartDate: start,
		EndDate:   end,
		Notes:     strings.TrimSpace(in.Notes),
	}, nil
}

type AppointmentInput struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Provider string `json:"provider" validate:"required,max=200"`
	Purpose  string `json:"purpose" validate:"max=500"`
	Notes    string `json:"notes" validate:"max=2000"`
}

func (in AppointmentInput) Build() (Appointment, error) {
	if err := Validate(in); err != nil {
		return Appointment{}, err
	}
	date, err := parseRequiredDate("date", in.Date)
	if err != nil {
		return Appointment{}, err
	}
	return Appointment{
		Date:     date,
		Provider: strings.TrimSpace(in.Provider),
		Purpose:  strings.TrimSpace(in.Purpose),
		Notes:    strings.TrimSpace(in.Notes),
	}, nil
}
