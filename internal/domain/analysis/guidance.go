package analysis

import (
	"github.com/google/uuid"
)

type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// Profile is the demographic data the analysis needs beyond the diary.
type Profile struct {
	PatientID   uuid.UUID `json:"patient_id"`
	DisplayName string    `json:"display_name,omitempty"`
	NationalID  string    `json:"national_id,omitempty"`
}

func (p *Profile) Sex() Sex {
	if p == nil {
		return SexUnknown
	}
	return SexFromNationalID(p.NationalID)
}

var (
	nidWeights1 = [9]int{3, 7, 6, 1, 8, 9, 4, 5, 2}
	nidWeights2 = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}
)

func mod11(digits []int, weights []int) (int, bool) {
	sum := 0
	for i, w := range weights {
		sum += digits[i] * w
	}
	k := 11 - sum%11
	switch k {
	case 11:
		return 0, true
	case 10:
		return 0, false
	}
	return k, true
}

// SexFromNationalID reads sex from an 11-digit Norwegian national identity
// number. Both mod-11 control digits must be valid; the third digit of the
// individual number (position 9) is odd for men. Anything else is unknown.
func SexFromNationalID(id string) Sex {
	if len(id) != 11 {
		return SexUnknown
	}
	digits := make([]int, 11)
	for i, r := range id {
		if r < '0' || r > '9' {
			return SexUnknown
		}
		digits[i] = int(r - '0')
	}
	k1, ok := mod11(digits, nidWeights1[:])
	if !ok || k1 != digits[9] {
		return SexUnknown
	}
	k2, ok := mod11(digits, nidWeights2[:])
	if !ok || k2 != digits[10] {
		return SexUnknown
	}
	if digits[8]%2 == 1 {
		return SexMale
	}
	return SexFemale
}

// Guidance is supplementary content shown next to the findings. It is keyed
// off the findings, never fed back into them.
type Guidance struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Pattern string `json:"pattern"`
}

var maleNocturiaGuidance = Guidance{
	Title: "Night-time urination in men",
	Body: "In men, frequent night-time urination is often related to an enlarged prostate. " +
		"A weak stream, hesitancy or a feeling of incomplete emptying are worth mentioning to your doctor, " +
		"who may suggest a prostate examination or a PSA blood test.",
	Pattern: PatternNocturia,
}

// SupplementaryGuidance adds sex-specific content to findings. A high or
// moderate Nocturia finding for a male patient adds prostate guidance.
func SupplementaryGuidance(patterns []ClinicalPattern, sex Sex) []Guidance {
	out := []Guidance{}
	if sex != SexMale {
		return out
	}
	for _, p := range patterns {
		if p.Name == PatternNocturia && (p.Probability == ProbabilityHigh || p.Probability == ProbabilityModerate) {
			out = append(out, maleNocturiaGuidance)
			break
		}
	}
	return out
}
