package report

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/yourorg/evidencelog/internal/records"
)

// Band is one histogram bucket over a 0-10 scale, inclusive on both ends.
type Band struct {
	Label string
	Min   int
	Max   int
	Count int
}

var bands = []Band{
	{Label: "0-3", Min: 0, Max: 3},
	{Label: "4-6", Min: 4, Max: 6},
	{Label: "7-10", Min: 7, Max: 10},
}

// Stats describes one series. Values are rounded to two places.
type Stats struct {
	Name      string
	Count     int
	Mean      decimal.Decimal
	Median    decimal.Decimal
	StdDev    decimal.Decimal
	Histogram []Band
}

type Metrics struct {
	Series []Stats
}

func computeMetrics(daily []*records.DailyLog, activities []*records.ActivityLog) Metrics {
	severity := make([]int, 0, len(daily))
	for _, l := range daily {
		severity = append(severity, l.OverallSeverity)
	}
	impact := make([]int, 0, len(activities))
	for _, a := range activities {
		impact = append(impact, a.ImpactSeverity)
	}
	return Metrics{Series: []Stats{
		Describe("Overall severity", severity),
		Describe("Activity impact", impact),
	}}
}

// Describe computes mean, median, population standard deviation and the
// banded histogram of values.
func Describe(name string, values []int) Stats {
	s := Stats{Name: name, Count: len(values), Mean: decimal.Zero, Median: decimal.Zero, StdDev: decimal.Zero}
	s.Histogram = make([]Band, len(bands))
	copy(s.Histogram, bands)
	if len(values) == 0 {
		return s
	}

	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	sum := decimal.Zero
	for _, v := range sorted {
		sum = sum.Add(decimal.NewFromInt(int64(v)))
		for i := range s.Histogram {
			if v >= s.Histogram[i].Min && v <= s.Histogram[i].Max {
				s.Histogram[i].Count++
			}
		}
	}
	n := decimal.NewFromInt(int64(len(sorted)))
	mean := sum.Div(n)

	mid := len(sorted) / 2
	median := decimal.NewFromInt(int64(sorted[mid]))
	if len(sorted)%2 == 0 {
		median = decimal.NewFromInt(int64(sorted[mid-1] + sorted[mid])).Div(decimal.NewFromInt(2))
	}

	variance := decimal.Zero
	for _, v := range sorted {
		d := decimal.NewFromInt(int64(v)).Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(n)
	vf, _ := variance.Float64()

	s.Mean = mean.Round(2)
	s.Median = median.Round(2)
	s.StdDev = decimal.NewFromFloat(math.Sqrt(vf)).Round(2)
	return s
}
