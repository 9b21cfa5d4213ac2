package analysis

import (
	"math"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
)

// Observation required before findings are shown: either 48 distinct logged
// hours or 2 calendar days.
const (
	MinLoggedHours = 48
	MinUniqueDays  = 2
)

type Sufficiency struct {
	LoggedHours       int     `json:"logged_hours"`
	UniqueDays        int     `json:"unique_days"`
	Sufficient        bool    `json:"sufficient"`
	CompletionPercent float64 `json:"completion_percent"`
}

type hourKey struct {
	day  string
	hour int
}

// CheckSufficiency counts distinct (date, hour) pairs and distinct dates.
func CheckSufficiency(events []*diary.Event) Sufficiency {
	hours := make(map[hourKey]struct{})
	days := make(map[string]struct{})
	for _, e := range events {
		hours[hourKey{e.OccurredOn, e.Hour()}] = struct{}{}
		days[e.OccurredOn] = struct{}{}
	}

	s := Sufficiency{LoggedHours: len(hours), UniqueDays: len(days)}
	s.Sufficient = s.LoggedHours >= MinLoggedHours || s.UniqueDays >= MinUniqueDays
	byHours := float64(s.LoggedHours) / MinLoggedHours * 100
	byDays := float64(s.UniqueDays) / MinUniqueDays * 100
	s.CompletionPercent = math.Min(100, math.Max(byHours, byDays))
	return s
}
