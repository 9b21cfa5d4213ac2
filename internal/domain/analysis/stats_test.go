package analysis

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
)

func void(on, at string, ml int) *diary.Event {
	return &diary.Event{OccurredOn: on, OccurredAt: at, Kind: diary.KindVoid, VolumeMl: &ml}
}

func urgentVoid(on, at string, ml, urgency int) *diary.Event {
	e := void(on, at, ml)
	e.Urgency = &urgency
	return e
}

func leak(on, at, trigger string) *diary.Event {
	return &diary.Event{OccurredOn: on, OccurredAt: at, Kind: diary.KindLeakage, Trigger: &trigger}
}

func intake(on, at string, ml int) *diary.Event {
	return &diary.Event{OccurredOn: on, OccurredAt: at, Kind: diary.KindIntake, VolumeMl: &ml}
}

func TestComputeStats_Empty(t *testing.T) {
	s := ComputeStats(nil, DefaultDayWindow)
	if !reflect.DeepEqual(s, Stats{}) {
		t.Errorf("expected zero stats, got %+v", s)
	}
}

func TestComputeStats_UpperMedian(t *testing.T) {
	events := []*diary.Event{
		void("2024-03-05", "08:00", 400),
		void("2024-03-05", "10:00", 100),
		void("2024-03-05", "12:00", 300),
		void("2024-03-05", "14:00", 200),
	}
	s := ComputeStats(events, DefaultDayWindow)
	if s.MedianVolume != 300 {
		t.Errorf("expected median 300, got %d", s.MedianVolume)
	}
	if s.MinVolume != 100 || s.MaxVolume != 400 {
		t.Errorf("expected min 100 max 400, got %d %d", s.MinVolume, s.MaxVolume)
	}
}

func TestComputeStats_ZeroVolumeCountedButExcluded(t *testing.T) {
	events := []*diary.Event{
		void("2024-03-05", "08:00", 0),
		{OccurredOn: "2024-03-05", OccurredAt: "09:00", Kind: diary.KindVoid},
		void("2024-03-05", "10:00", 250),
	}
	s := ComputeStats(events, DefaultDayWindow)
	if s.TotalVoids != 3 {
		t.Errorf("expected 3 voids, got %d", s.TotalVoids)
	}
	if s.MedianVolume != 250 || s.MinVolume != 250 {
		t.Errorf("expected zero volumes excluded, got median %d min %d", s.MedianVolume, s.MinVolume)
	}
}

func TestComputeStats_NoVolumesGivesZeroMinMax(t *testing.T) {
	s := ComputeStats([]*diary.Event{leak("2024-03-05", "08:00", "cough")}, DefaultDayWindow)
	if s.MinVolume != 0 || s.MaxVolume != 0 || s.MedianVolume != 0 {
		t.Errorf("expected zeros, got %+v", s)
	}
}

func TestComputeStats_DayNightPartition(t *testing.T) {
	var events []*diary.Event
	for h := 0; h < 24; h++ {
		events = append(events, void("2024-03-05", fmt.Sprintf("%02d:30", h), 200))
	}
	for _, w := range []DayWindow{DefaultDayWindow, {StartHour: 7, EndHour: 23}, {StartHour: 0, EndHour: 24}} {
		s := ComputeStats(events, w)
		if s.DayVoids+s.NightVoids != s.TotalVoids {
			t.Errorf("%+v: day %d + night %d != total %d", w, s.DayVoids, s.NightVoids, s.TotalVoids)
		}
		if want := w.EndHour - w.StartHour; s.DayVoids != want {
			t.Errorf("%+v: expected %d day voids, got %d", w, want, s.DayVoids)
		}
	}
}

func TestComputeStats_DayBoundaries(t *testing.T) {
	events := []*diary.Event{
		void("2024-03-05", "05:59", 200),
		void("2024-03-05", "06:00", 200),
		void("2024-03-05", "21:59", 200),
		void("2024-03-05", "22:00", 200),
	}
	s := ComputeStats(events, DefaultDayWindow)
	if s.DayVoids != 2 || s.NightVoids != 2 {
		t.Errorf("expected 2 day 2 night, got %d %d", s.DayVoids, s.NightVoids)
	}
}

func TestComputeStats_RatesPerDay(t *testing.T) {
	events := []*diary.Event{
		void("2024-03-05", "08:00", 200),
		void("2024-03-05", "12:00", 200),
		void("2024-03-06", "08:00", 200),
		void("2024-03-07", "08:00", 200),
		leak("2024-03-07", "09:00", "cough"),
		intake("2024-03-07", "10:00", 500),
		intake("2024-03-07", "11:00", 250),
	}
	s := ComputeStats(events, DefaultDayWindow)
	if s.UniqueDays != 3 {
		t.Fatalf("expected 3 days, got %d", s.UniqueDays)
	}
	if s.AvgVoidsPerDay != 1.3 {
		t.Errorf("expected 1.3 voids/day, got %v", s.AvgVoidsPerDay)
	}
	if s.AvgLeakagesPerDay != 0.3 {
		t.Errorf("expected 0.3 leakages/day, got %v", s.AvgLeakagesPerDay)
	}
	if s.TotalIntake != 750 {
		t.Errorf("expected 750 ml intake, got %d", s.TotalIntake)
	}
	if s.TotalVoidedVolume != 800 {
		t.Errorf("expected 800 ml voided, got %d", s.TotalVoidedVolume)
	}
}

func TestComputeStats_LeakageWeightPrecedence(t *testing.T) {
	dry, wet := 15.0, 45.0
	large := diary.SeverityLarge
	e := &diary.Event{
		OccurredOn: "2024-03-05", OccurredAt: "09:00", Kind: diary.KindLeakage,
		DryPadWeightGrams: &dry, WetPadWeightGrams: &wet, LeakageSeverity: &large,
	}
	e.DeriveLeakageWeight()
	if *e.LeakageWeightGrams != 30 {
		t.Fatalf("expected derived weight 30, got %v", *e.LeakageWeightGrams)
	}
	s := ComputeStats([]*diary.Event{e, leak("2024-03-05", "10:00", "cough")}, DefaultDayWindow)
	if s.TotalLeakageWeight != 30 {
		t.Errorf("expected total weight 30, got %v", s.TotalLeakageWeight)
	}
	if s.TotalLeakages != 2 {
		t.Errorf("expected 2 leakages, got %d", s.TotalLeakages)
	}
}

func TestComputeStats_Deterministic(t *testing.T) {
	events := []*diary.Event{
		urgentVoid("2024-03-05", "08:00", 180, 5),
		void("2024-03-05", "23:00", 220),
		leak("2024-03-06", "09:00", "sneeze"),
	}
	a := ComputeStats(events, DefaultDayWindow)
	b := ComputeStats(events, DefaultDayWindow)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected identical results, got %+v and %+v", a, b)
	}
}

func TestStats_UrgencyRateFloorsDenominator(t *testing.T) {
	if r := (Stats{}).UrgencyRate(); r != 0 {
		t.Errorf("expected 0, got %v", r)
	}
	if v := (Stats{TotalVoidedVolume: 3000}).DailyVoidedVolume(); v != 3000 {
		t.Errorf("expected 3000, got %v", v)
	}
}
