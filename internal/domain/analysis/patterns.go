package analysis

import (
	"fmt"
	"strings"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
)

type Probability string

const (
	ProbabilityHigh     Probability = "high"
	ProbabilityModerate Probability = "moderate"
	ProbabilityLow      Probability = "low"
)

// ClinicalPattern is one finding of the heuristic battery. It is a screening
// signal, not a diagnosis.
type ClinicalPattern struct {
	Name           string      `json:"name"`
	Probability    Probability `json:"probability"`
	Reasoning      string      `json:"reasoning"`
	Recommendation string      `json:"recommendation"`
}

// Audience selects which heuristics run. The patient view carries one check
// that the clinician view and recording blocks leave out.
type Audience string

const (
	AudiencePatient   Audience = "patient"
	AudienceClinician Audience = "clinician"
)

func ParseAudience(s string) (Audience, error) {
	switch a := Audience(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return AudiencePatient, nil
	case AudiencePatient, AudienceClinician:
		return a, nil
	default:
		return "", fmt.Errorf("unknown audience %q", s)
	}
}

const (
	PatternOAB                = "Overactive Bladder (OAB)"
	PatternStressIncontinence = "Stress Urinary Incontinence"
	PatternUrgeIncontinence   = "Urge Incontinence"
	PatternNocturia           = "Nocturia"
	PatternPolyuria           = "Polyuria"
	PatternIncompleteEmptying = "Possible Incomplete Emptying"
	PatternNoConcerns         = "No Concerning Patterns"
)

// Heuristic thresholds.
const (
	oabVoidsPerDay        = 8.0
	oabUrgencyRate        = 0.3
	oabHighUrgencyRate    = 0.5
	oabMedianVolumeMl     = 200
	stressHighRate        = 0.7
	stressModerateRate    = 0.4
	urgeHighCount         = 3
	nocturiaPerDay        = 2
	nocturiaHighPerDay    = 3
	polyuriaDailyMl       = 2500.0
	polyuriaHighDailyMl   = 3000.0
	incompleteMedianMl    = 150
	incompleteVoidsPerDay = 10.0
)

// StressTriggers are leakage triggers that indicate raised abdominal pressure.
var StressTriggers = map[string]bool{
	"cough": true, "sneeze": true, "laugh": true, "exercise": true, "lifting": true,
}

const UrgeTrigger = "urgency"

const disclaimer = " This is not a diagnosis."

// Input is what every heuristic sees.
type Input struct {
	Events []*diary.Event
	Stats  Stats
}

// Heuristic is one predicate+scorer pair. Check returns false when the
// pattern does not apply. Audiences limits where it runs; empty means all.
type Heuristic struct {
	Name      string
	Audiences []Audience
	Check     func(in Input) (ClinicalPattern, bool)
}

func (h Heuristic) appliesTo(a Audience) bool {
	if len(h.Audiences) == 0 {
		return true
	}
	for _, x := range h.Audiences {
		if x == a {
			return true
		}
	}
	return false
}

// Battery is evaluated in this order and the findings keep it.
var Battery = []Heuristic{
	{Name: PatternOAB, Check: checkOAB},
	{Name: PatternStressIncontinence, Check: checkStress},
	{Name: PatternUrgeIncontinence, Check: checkUrge},
	{Name: PatternNocturia, Check: checkNocturia},
	{Name: PatternPolyuria, Check: checkPolyuria},
	{Name: PatternIncompleteEmptying, Audiences: []Audience{AudiencePatient}, Check: checkIncompleteEmptying},
}

// Evaluate runs the battery for the patient audience.
func Evaluate(events []*diary.Event, stats Stats) []ClinicalPattern {
	return EvaluateFor(AudiencePatient, events, stats)
}

// EvaluateFor runs every heuristic that applies to audience. When none fires
// and at least one event exists the result is the single No Concerning
// Patterns finding; with no events it is empty.
func EvaluateFor(audience Audience, events []*diary.Event, stats Stats) []ClinicalPattern {
	in := Input{Events: events, Stats: stats}
	out := []ClinicalPattern{}
	for _, h := range Battery {
		if !h.appliesTo(audience) {
			continue
		}
		if p, ok := h.Check(in); ok {
			out = append(out, p)
		}
	}
	if len(out) == 0 && len(events) > 0 {
		out = append(out, noConcerns(stats))
	}
	return out
}

func pct(rate float64) float64 {
	return round1(rate * 100)
}

func checkOAB(in Input) (ClinicalPattern, bool) {
	s := in.Stats
	rate := s.UrgencyRate()
	if !(s.AvgVoidsPerDay > oabVoidsPerDay && (rate > oabUrgencyRate || s.MedianVolume < oabMedianVolumeMl)) {
		return ClinicalPattern{}, false
	}
	prob := ProbabilityModerate
	if rate > oabHighUrgencyRate {
		prob = ProbabilityHigh
	}
	return ClinicalPattern{
		Name:        PatternOAB,
		Probability: prob,
		Reasoning: fmt.Sprintf(
			"%.1f voids per day (ICS threshold: more than 8), %.1f%% of voids with urgency %d or higher, median voided volume %d ml.",
			s.AvgVoidsPerDay, pct(rate), UrgentThreshold, s.MedianVolume),
		Recommendation: "Discuss bladder training and urgency suppression techniques with your healthcare provider." + disclaimer,
	}, true
}

func leakages(events []*diary.Event) []*diary.Event {
	var out []*diary.Event
	for _, e := range events {
		if e.Kind == diary.KindLeakage {
			out = append(out, e)
		}
	}
	return out
}

func checkStress(in Input) (ClinicalPattern, bool) {
	leaks := leakages(in.Events)
	stress := 0
	for _, e := range leaks {
		if StressTriggers[e.TriggerName()] {
			stress++
		}
	}
	if stress == 0 {
		return ClinicalPattern{}, false
	}
	rate := float64(stress) / float64(len(leaks))
	prob := ProbabilityLow
	switch {
	case rate > stressHighRate:
		prob = ProbabilityHigh
	case rate > stressModerateRate:
		prob = ProbabilityModerate
	}
	return ClinicalPattern{
		Name:        PatternStressIncontinence,
		Probability: prob,
		Reasoning: fmt.Sprintf(
			"%d of %d leakage episodes (%.1f%%) occurred with physical strain such as coughing, sneezing, laughing, exercise or lifting.",
			stress, len(leaks), pct(rate)),
		Recommendation: "Pelvic floor muscle training is first-line treatment for stress leakage; ask about a referral to a pelvic floor physiotherapist." + disclaimer,
	}, true
}

func checkUrge(in Input) (ClinicalPattern, bool) {
	urge := 0
	for _, e := range leakages(in.Events) {
		if e.TriggerName() == UrgeTrigger {
			urge++
		}
	}
	if urge == 0 {
		return ClinicalPattern{}, false
	}
	prob := ProbabilityModerate
	if urge > urgeHighCount {
		prob = ProbabilityHigh
	}
	return ClinicalPattern{
		Name:        PatternUrgeIncontinence,
		Probability: prob,
		Reasoning: fmt.Sprintf(
			"%d leakage episodes were preceded by a sudden urge to void (more than %d suggests a consistent pattern).",
			urge, urgeHighCount),
		Recommendation: "Timed voiding and bladder training can reduce urge leakage; review fluid and caffeine intake with your healthcare provider." + disclaimer,
	}, true
}

func checkNocturia(in Input) (ClinicalPattern, bool) {
	s := in.Stats
	days := max(1, s.UniqueDays)
	if s.NightVoids < nocturiaPerDay*days {
		return ClinicalPattern{}, false
	}
	prob := ProbabilityModerate
	if s.NightVoids >= nocturiaHighPerDay*days {
		prob = ProbabilityHigh
	}
	return ClinicalPattern{
		Name:        PatternNocturia,
		Probability: prob,
		Reasoning: fmt.Sprintf(
			"%d night-time voids over %d days (%.1f per night). Two or more voids per night is considered clinically bothersome (ICS).",
			s.NightVoids, days, round1(float64(s.NightVoids)/float64(days))),
		Recommendation: "Reduce fluid intake in the evening and empty the bladder before bed; persistent nocturia should be assessed by a healthcare provider." + disclaimer,
	}, true
}

func checkPolyuria(in Input) (ClinicalPattern, bool) {
	daily := in.Stats.DailyVoidedVolume()
	if daily <= polyuriaDailyMl {
		return ClinicalPattern{}, false
	}
	prob := ProbabilityModerate
	if daily > polyuriaHighDailyMl {
		prob = ProbabilityHigh
	}
	return ClinicalPattern{
		Name:        PatternPolyuria,
		Probability: prob,
		Reasoning: fmt.Sprintf(
			"Average voided volume of %.0f ml per day over %d days exceeds %.0f ml (ICS: more than 40 ml/kg per 24 hours).",
			daily, max(1, in.Stats.UniqueDays), polyuriaDailyMl),
		Recommendation: "Review total fluid intake; high urine output can have medical causes such as diabetes and should be checked by a healthcare provider." + disclaimer,
	}, true
}

func checkIncompleteEmptying(in Input) (ClinicalPattern, bool) {
	s := in.Stats
	if !(s.MedianVolume < incompleteMedianMl && s.AvgVoidsPerDay > incompleteVoidsPerDay) {
		return ClinicalPattern{}, false
	}
	return ClinicalPattern{
		Name:        PatternIncompleteEmptying,
		Probability: ProbabilityModerate,
		Reasoning: fmt.Sprintf(
			"Small median voided volume of %d ml (below %d ml) with %.1f voids per day may indicate the bladder is not emptying fully.",
			s.MedianVolume, incompleteMedianMl, s.AvgVoidsPerDay),
		Recommendation: "A post-void residual measurement can confirm whether the bladder empties completely." + disclaimer,
	}, true
}

func noConcerns(s Stats) ClinicalPattern {
	return ClinicalPattern{
		Name:        PatternNoConcerns,
		Probability: ProbabilityLow,
		Reasoning: fmt.Sprintf(
			"%.1f voids per day, median voided volume %d ml, %d night-time voids and %d leakage episodes are within the ranges checked.",
			s.AvgVoidsPerDay, s.MedianVolume, s.NightVoids, s.TotalLeakages),
		Recommendation: "Keep logging to build a complete picture, and contact a healthcare provider if symptoms change." + disclaimer,
	}
}
