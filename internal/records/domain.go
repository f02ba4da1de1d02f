// Package records holds the logged evidence types and their input contracts.
package records

import (
	"strings"
	"time"

	"github.com/yourorg/evidencelog/internal/faults"
)

// Kind identifies a record collection.
type Kind string

const (
	KindDaily    Kind = "daily"
	KindActivity Kind = "activity"
)

// Symptom is a closed set of trackable symptoms.
type Symptom string

const (
	SymptomBackPain          Symptom = "back_pain"
	SymptomNeckPain          Symptom = "neck_pain"
	SymptomHipPain           Symptom = "hip_pain"
	SymptomLegPain           Symptom = "leg_pain"
	SymptomJointPain         Symptom = "joint_pain"
	SymptomHeadache          Symptom = "headache"
	SymptomMigraine          Symptom = "migraine"
	SymptomFatigue           Symptom = "fatigue"
	SymptomBrainFog          Symptom = "brain_fog"
	SymptomDizziness         Symptom = "dizziness"
	SymptomNausea            Symptom = "nausea"
	SymptomWeakness          Symptom = "weakness"
	SymptomNumbness          Symptom = "numbness"
	SymptomShortnessOfBreath Symptom = "shortness_of_breath"
	SymptomAnxiety           Symptom = "anxiety"
	SymptomDepression        Symptom = "depression"
)

// Symptoms lists every trackable symptom.
func Symptoms() []Symptom {
	return []Symptom{
		SymptomBackPain, SymptomNeckPain, SymptomHipPain, SymptomLegPain,
		SymptomJointPain, SymptomHeadache, SymptomMigraine, SymptomFatigue,
		SymptomBrainFog, SymptomDizziness, SymptomNausea, SymptomWeakness,
		SymptomNumbness, SymptomShortnessOfBreath, SymptomAnxiety, SymptomDepression,
	}
}

// Posture is the body position or demand an activity exercised.
type Posture string

const (
	PostureSitting       Posture = "sitting"
	PostureStanding      Posture = "standing"
	PostureWalking       Posture = "walking"
	PostureLifting       Posture = "lifting"
	PostureCarrying      Posture = "carrying"
	PostureConcentrating Posture = "concentrating"
)

// Capacity is a functional-capacity dimension.
type Capacity string

const (
	CapacitySitting       Capacity = "sitting"
	CapacityStanding      Capacity = "standing"
	CapacityWalking       Capacity = "walking"
	CapacityLifting       Capacity = "lifting"
	CapacityCarrying      Capacity = "carrying"
	CapacityConcentration Capacity = "concentration"
)

// Capacities lists every dimension in report order.
func Capacities() []Capacity {
	return []Capacity{
		CapacitySitting,
		CapacityStanding,
		CapacityWalking,
		CapacityLifting,
		CapacityCarrying,
		CapacityConcentration,
	}
}

// RetroReason explains why a record was logged after the fact.
type RetroReason string

const (
	RetroDelayedEntry      RetroReason = "delayed_entry"
	RetroRecalledFromNotes RetroReason = "recalled_from_notes"
	RetroTooUnwellToLog    RetroReason = "too_unwell_to_log"
	RetroDeviceUnavailable RetroReason = "device_unavailable"
	RetroOther             RetroReason = "other"
)

// RetrospectiveContext flags a record logged well after its event date.
type RetrospectiveContext struct {
	DaysDelayed int         `json:"daysDelayed"`
	FlaggedAt   time.Time   `json:"flaggedAt"`
	Reason      RetroReason `json:"reason"`
	Note        string      `json:"note,omitempty"`
}

// Header carries the system-managed integrity fields of a log record.
type Header struct {
	ID                   string                `json:"id"`
	ProfileID            string                `json:"profileId"`
	EventDate            Date                  `json:"eventDate"`
	CreatedAt            time.Time             `json:"createdAt"`
	UpdatedAt            time.Time             `json:"updatedAt"`
	EvidenceTimestamp    *time.Time            `json:"evidenceTimestamp,omitempty"`
	Finalized            bool                  `json:"finalized"`
	FinalizedAt          *time.Time            `json:"finalizedAt,omitempty"`
	RetrospectiveContext *RetrospectiveContext `json:"retrospectiveContext,omitempty"`
}

// Record is implemented by every log kind handled by the ledger.
type Record interface {
	Kind() Kind
	Meta() *Header
	// MinimumContent reports whether the record holds enough content to be
	// finalized.
	MinimumContent() error
	Clone() Record
}

// SymptomEntry is one symptom observation inside a daily log.
type SymptomEntry struct {
	Symptom  Symptom `json:"symptom"`
	Severity int     `json:"severity"`
	Note     string  `json:"note,omitempty"`
}

// DailyLog is the once-a-day symptom record.
type DailyLog struct {
	Header
	OverallSeverity int            `json:"overallSeverity"`
	Symptoms        []SymptomEntry `json:"symptoms"`
	BadDay          bool           `json:"badDay"`
	Notes           string         `json:"notes,omitempty"`
}

func (l *DailyLog) Kind() Kind    { return KindDaily }
func (l *DailyLog) Meta() *Header { return &l.Header }

func (l *DailyLog) MinimumContent() error {
	if len(l.Symptoms) == 0 {
		return faults.Validation("daily log cannot be finalized without a symptom entry", faults.ValidationItem{
			Code:    "LEDGER-FIN-002",
			Path:    "symptoms",
			Message: "at least one symptom entry is required",
		})
	}
	return nil
}

func (l *DailyLog) Clone() Record {
	c := *l
	c.Header = l.Header.clone()
	c.Symptoms = append([]SymptomEntry(nil), l.Symptoms...)
	return &c
}

// MaxSeverity returns the highest symptom severity in the log.
func (l *DailyLog) MaxSeverity() int {
	highest := 0
	for _, s := range l.Symptoms {
		if s.Severity > highest {
			highest = s.Severity
		}
	}
	return highest
}

// ActivityLog records one attempted activity and its cost.
type ActivityLog struct {
	Header
	Activity        string   `json:"activity"`
	Posture         Posture  `json:"posture"`
	DurationMinutes int      `json:"durationMinutes"`
	WeightLbs       *float64 `json:"weightLbs,omitempty"`
	ImpactSeverity  int      `json:"impactSeverity"`
	StoppedEarly    bool     `json:"stoppedEarly"`
	RecoveryHours   float64  `json:"recoveryHours"`
	Notes           string   `json:"notes,omitempty"`
}

func (l *ActivityLog) Kind() Kind    { return KindActivity }
func (l *ActivityLog) Meta() *Header { return &l.Header }

func (l *ActivityLog) MinimumContent() error {
	var items []faults.ValidationItem
	if strings.TrimSpace(l.Activity) == "" {
		items = append(items, faults.ValidationItem{Code: "LEDGER-FIN-003", Path: "activity", Message: "activity is required"})
	}
	if l.DurationMinutes <= 0 {
		items = append(items, faults.ValidationItem{Code: "LEDGER-FIN-004", Path: "durationMinutes", Message: "duration must be positive"})
	}
	if len(items) > 0 {
		return faults.Validation("activity log cannot be finalized without an activity entry", items...)
	}
	return nil
}

func (l *ActivityLog) Clone() Record {
	c := *l
	c.Header = l.Header.clone()
	if l.WeightLbs != nil {
		w := *l.WeightLbs
		c.WeightLbs = &w
	}
	return &c
}

func (h Header) clone() Header {
	c := h
	if h.EvidenceTimestamp != nil {
		t := *h.EvidenceTimestamp
		c.EvidenceTimestamp = &t
	}
	if h.FinalizedAt != nil {
		t := *h.FinalizedAt
		c.FinalizedAt = &t
	}
	if h.RetrospectiveContext != nil {
		r := *h.RetrospectiveContext
		c.RetrospectiveContext = &r
	}
	return c
}

// Limitation is a declared functional limitation.
type Limitation struct {
	ID                 string    `json:"id"`
	ProfileID          string    `json:"profileId"`
	Category           Capacity  `json:"category"`
	Description        string    `json:"description"`
	MaxDurationMinutes *int      `json:"maxDurationMinutes,omitempty"`
	MaxWeightLbs       *float64  `json:"maxWeightLbs,omitempty"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// GapExplanation is the user's rationale for an exact undocumented interval.
type GapExplanation struct {
	StartDate Date      `json:"startDate"`
	EndDate   Date      `json:"endDate"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

// Medication is rendered verbatim in reports.
type Medication struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profileId"`
	Name      string    `json:"name"`
	Dose      string    `json:"dose,omitempty"`
	Frequency string    `json:"frequency,omitempty"`
	StartDate *Date     `json:"startDate,omitempty"`
	EndDate   *Date     `json:"endDate,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Appointment is rendered verbatim in reports.
type Appointment struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profileId"`
	Date      Date      `json:"date"`
	Provider  string    `json:"provider"`
	Purpose   string    `json:"purpose,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
