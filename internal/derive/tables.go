package derive

import "github.com/yourorg/evidencelog/internal/records"

// Level is the ordered severity of a restriction.
type Level string

const (
	LevelNone     Level = "none"
	LevelMild     Level = "mild"
	LevelModerate Level = "moderate"
	LevelMarked   Level = "marked"
	LevelExtreme  Level = "extreme"
)

var levelRank = map[Level]int{
	LevelNone:     0,
	LevelMild:     1,
	LevelModerate: 2,
	LevelMarked:   3,
	LevelExtreme:  4,
}

// Rank orders levels from none to extreme.
func (l Level) Rank() int { return levelRank[l] }

// symptomThreshold qualifies a daily log when the symptom reaches MinSeverity.
type symptomThreshold struct {
	Symptom     records.Symptom
	MinSeverity int
}

// dimensionRule holds the qualifying signals of one dimension. Symptoms are
// sorted by name.
type dimensionRule struct {
	Dimension records.Capacity
	Symptoms  []symptomThreshold
	Postures  []records.Posture
}

var dimensionRules = []dimensionRule{
	{
		Dimension: records.CapacitySitting,
		Symptoms: []symptomThreshold{
			{records.SymptomBackPain, 6},
			{records.SymptomHipPain, 6},
			{records.SymptomNumbness, 6},
		},
		Postures: []records.Posture{records.PostureSitting},
	},
	{
		Dimension: records.CapacityStanding,
		Symptoms: []symptomThreshold{
			{records.SymptomBackPain, 6},
			{records.SymptomDizziness, 5},
			{records.SymptomHipPain, 6},
			{records.SymptomJointPain, 6},
			{records.SymptomLegPain, 6},
			{records.SymptomWeakness, 6},
		},
		Postures: []records.Posture{records.PostureStanding},
	},
	{
		Dimension: records.CapacityWalking,
		Symptoms: []symptomThreshold{
			{records.SymptomDizziness, 5},
			{records.SymptomFatigue, 7},
			{records.SymptomHipPain, 6},
			{records.SymptomJointPain, 6},
			{records.SymptomLegPain, 6},
			{records.SymptomShortnessOfBreath, 5},
		},
		Postures: []records.Posture{records.PostureWalking},
	},
	{
		Dimension: records.CapacityLifting,
		Symptoms: []symptomThreshold{
			{records.SymptomBackPain, 5},
			{records.SymptomJointPain, 6},
			{records.SymptomNeckPain, 6},
			{records.SymptomWeakness, 5},
		},
		Postures: []records.Posture{records.PostureLifting},
	},
	{
		Dimension: records.CapacityCarrying,
		Symptoms: []symptomThreshold{
			{records.SymptomBackPain, 5},
			{records.SymptomJointPain, 6},
			{records.SymptomShortnessOfBreath, 6},
			{records.SymptomWeakness, 5},
		},
		Postures: []records.Posture{records.PostureCarrying},
	},
	{
		Dimension: records.CapacityConcentration,
		Symptoms: []symptomThreshold{
			{records.SymptomAnxiety, 7},
			{records.SymptomBrainFog, 5},
			{records.SymptomDepression, 7},
			{records.SymptomFatigue, 7},
			{records.SymptomHeadache, 7},
			{records.SymptomMigraine, 5},
		},
		Postures: []records.Posture{records.PostureConcentrating},
	},
}

// HighImpactSeverity qualifies an activity log on its own.
const HighImpactSeverity = 7

// severityBand maps a mean qualifying severity to a level. Ascending; the
// first band whose MaxSeverity is not exceeded wins.
type severityBand struct {
	MaxSeverity float64
	Level       Level
}

var severityLadder = []severityBand{
	{5, LevelMild},
	{6.5, LevelModerate},
	{8.5, LevelMarked},
	{10, LevelExtreme},
}

func levelFor(meanSeverity float64) Level {
	for _, b := range severityLadder {
		if meanSeverity <= b.MaxSeverity {
			return b.Level
		}
	}
	return LevelExtreme
}

// levelLimits are the fallback values of a restricted dimension when neither
// a limitation nor an activity log gives a measured bound.
type levelLimits struct {
	PostureMinutes       int
	PostureHours         float64
	LiftLbs              float64
	ConcentrationMinutes int
}

var limitsByLevel = map[Level]levelLimits{
	LevelMild:     {PostureMinutes: 60, PostureHours: 6, LiftLbs: 50, ConcentrationMinutes: 60},
	LevelModerate: {PostureMinutes: 30, PostureHours: 4, LiftLbs: 20, ConcentrationMinutes: 30},
	LevelMarked:   {PostureMinutes: 15, PostureHours: 2, LiftLbs: 10, ConcentrationMinutes: 15},
	LevelExtreme:  {PostureMinutes: 5, PostureHours: 1, LiftLbs: 5, ConcentrationMinutes: 10},
}

// Unrestricted defaults.
const (
	DefaultPostureHours         = 8.0
	DefaultLiftLbs              = 100.0
	DefaultConcentrationMinutes = 120
)

// WorkRating is the strength classification of a lifting capacity.
type WorkRating string

const (
	RatingSedentary WorkRating = "sedentary"
	RatingLight     WorkRating = "light"
	RatingMedium    WorkRating = "medium"
	RatingHeavy     WorkRating = "heavy"
	RatingVeryHeavy WorkRating = "very_heavy"
)

type liftThreshold struct {
	MaxLbs float64
	Rating WorkRating
}

var liftThresholds = []liftThreshold{
	{10, RatingSedentary},
	{20, RatingLight},
	{50, RatingMedium},
	{100, RatingHeavy},
}

// RatingFor returns the first tier whose bound lbs does not exceed. A value
// exactly on a bound takes the lower tier.
func RatingFor(lbs float64) WorkRating {
	for _, t := range liftThresholds {
		if lbs <= t.MaxLbs {
			return t.Rating
		}
	}
	return RatingVeryHeavy
}
