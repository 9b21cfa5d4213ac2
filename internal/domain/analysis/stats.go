// Package analysis holds the pure diary computations (statistics, the
// data-sufficiency gate and the clinical pattern battery) plus the service
// and HTTP surface that run them over a patient's stored events.
package analysis

import (
	"math"
	"sort"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
)

// DayWindow is the half-open range of hours [StartHour, EndHour) counted as
// daytime. Voids outside it are night voids.
type DayWindow struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// DefaultDayWindow is 06:00-22:00.
var DefaultDayWindow = DayWindow{StartHour: 6, EndHour: 22}

func (w DayWindow) IsDay(hour int) bool {
	return hour >= w.StartHour && hour < w.EndHour
}

// UrgentThreshold is the urgency score from which a void counts as urgent.
const UrgentThreshold = 4

// Stats is an aggregate over one event subset. It is never stored on its own
// and is recomputed on demand.
type Stats struct {
	TotalVoids         int     `json:"total_voids"`
	TotalLeakages      int     `json:"total_leakages"`
	TotalIntake        int     `json:"total_intake_ml"`
	TotalVoidedVolume  int     `json:"total_voided_ml"`
	MedianVolume       int     `json:"median_volume_ml"`
	MinVolume          int     `json:"min_volume_ml"`
	MaxVolume          int     `json:"max_volume_ml"`
	DayVoids           int     `json:"day_voids"`
	NightVoids         int     `json:"night_voids"`
	UrgentVoids        int     `json:"urgent_voids"`
	UniqueDays         int     `json:"unique_days"`
	AvgVoidsPerDay     float64 `json:"avg_voids_per_day"`
	AvgLeakagesPerDay  float64 `json:"avg_leakages_per_day"`
	TotalLeakageWeight float64 `json:"total_leakage_weight_g"`
}

// ComputeStats aggregates events. Only the given events are considered and
// the result depends on nothing else, so repeated calls agree.
func ComputeStats(events []*diary.Event, window DayWindow) Stats {
	var s Stats
	var volumes []int
	days := make(map[string]struct{})

	for _, e := range events {
		days[e.OccurredOn] = struct{}{}
		switch e.Kind {
		case diary.KindVoid:
			s.TotalVoids++
			if v := e.Volume(); v > 0 {
				volumes = append(volumes, v)
				s.TotalVoidedVolume += v
			}
			if window.IsDay(e.Hour()) {
				s.DayVoids++
			} else {
				s.NightVoids++
			}
			if e.Urgency != nil && *e.Urgency >= UrgentThreshold {
				s.UrgentVoids++
			}
		case diary.KindIntake:
			s.TotalIntake += e.Volume()
		case diary.KindLeakage:
			s.TotalLeakages++
			if e.LeakageWeightGrams != nil {
				s.TotalLeakageWeight += *e.LeakageWeightGrams
			}
		}
	}

	if len(volumes) > 0 {
		sort.Ints(volumes)
		// Upper median: index n/2 for even n as well.
		s.MedianVolume = volumes[len(volumes)/2]
		s.MinVolume = volumes[0]
		s.MaxVolume = volumes[len(volumes)-1]
	}

	s.UniqueDays = len(days)
	denom := float64(max(1, s.UniqueDays))
	s.AvgVoidsPerDay = round1(float64(s.TotalVoids) / denom)
	s.AvgLeakagesPerDay = round1(float64(s.TotalLeakages) / denom)
	return s
}

// UrgencyRate is the share of voids with urgency at or above UrgentThreshold.
func (s Stats) UrgencyRate() float64 {
	return float64(s.UrgentVoids) / float64(max(1, s.TotalVoids))
}

// DailyVoidedVolume is the mean voided volume per observed day.
func (s Stats) DailyVoidedVolume() float64 {
	return float64(s.TotalVoidedVolume) / float64(max(1, s.UniqueDays))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
