package report

import (
	"fmt"
	"strings"

	"github.com/yourorg/evidencelog/internal/derive"
	"github.com/yourorg/evidencelog/internal/records"
)

// narratives turns each derived claim into one sentence. The wording is
// fixed per claim shape; nothing is added that the claim does not carry.
func narratives(res *derive.Result, derivationErr string) []Narrative {
	if res == nil {
		msg := "No capacity statements were derived for this period."
		if derivationErr != "" {
			msg = "No capacity statements were derived: " + derivationErr + "."
		}
		return []Narrative{{Dimension: "derivation", Text: msg}}
	}
	out := make([]Narrative, 0, len(res.Claims)+2)
	for _, c := range res.Claims {
		out = append(out, Narrative{Dimension: string(c.Dimension), Text: claimSentence(c), Evidence: append([]string{}, c.Evidence...)})
	}
	out = append(out, Narrative{
		Dimension: "work capacity",
		Text:      fmt.Sprintf("Lifting and carrying up to %g lbs corresponds to %s work.", res.LiftLbs, strings.ReplaceAll(string(res.Rating), "_", " ")),
	})
	out = append(out, Narrative{Dimension: "full time", Text: fullTimeSentence(res.FullTime)})
	return out
}

func claimSentence(c derive.Claim) string {
	name := capitalize(string(c.Dimension))
	if !c.Restricted {
		return fmt.Sprintf("%s: no restriction is documented in this period.", name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s is restricted (%s)", name, c.Level)
	switch c.Dimension {
	case records.CapacityLifting, records.CapacityCarrying:
		if c.MaxLiftLbs != nil {
			fmt.Fprintf(&b, ", up to %g lbs", *c.MaxLiftLbs)
		}
	default:
		if c.MaxMinutes != nil {
			fmt.Fprintf(&b, ", about %d minutes at a time", *c.MaxMinutes)
		}
		if c.HoursPerDay != nil {
			fmt.Fprintf(&b, ", %g hours per day", *c.HoursPerDay)
		}
	}
	b.WriteString(".")
	if len(c.Evidence) > 0 {
		fmt.Fprintf(&b, " See %s (%d of %d supporting items cited).", strings.Join(c.Evidence, ", "), len(c.Evidence), c.EvidenceTotal)
	}
	return b.String()
}

func fullTimeSentence(ft derive.FullTime) string {
	if ft.Capable {
		return fmt.Sprintf("Full-time work conditions are met: %g posture hours, %d minute concentration span, %.1f bad days per 30.",
			ft.PostureHours, ft.ConcentrationMinutes, ft.BadDaysPer30)
	}
	var failed []string
	if !ft.PostureHoursOK {
		failed = append(failed, fmt.Sprintf("sustained posture %g of 6 hours", ft.PostureHours))
	}
	if !ft.ConcentrationOK {
		failed = append(failed, fmt.Sprintf("concentration span %d of 30 minutes", ft.ConcentrationMinutes))
	}
	if !ft.AttendanceOK {
		failed = append(failed, fmt.Sprintf("attendance (%.1f bad days per 30, %.0f%% of activities stopped early)", ft.BadDaysPer30, ft.StoppedEarlyFraction*100))
	}
	return "Full-time work conditions are not met: " + strings.Join(failed, "; ") + "."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
