package scoring

import (
	"math"
	"strings"
)

const (
	PriorityHigh     = "High"
	PriorityModerate = "Moderate"
	PriorityLow      = "Low"
)

// Sections is the completeness checklist. Each field reports whether the
// corresponding part of a patient's intake is present.
type Sections struct {
	BasicInfo        bool
	Demographics     bool
	HealthHistory    bool
	CancerAssessment bool // at least one site assessment
	VHI              bool
	VoiceRecordings  bool // at least one recording
}

func (s Sections) completed() int {
	n := 0
	for _, ok := range []bool{s.BasicInfo, s.Demographics, s.HealthHistory, s.CancerAssessment, s.VHI, s.VoiceRecordings} {
		if ok {
			n++
		}
	}
	return n
}

// ChecklistSize is the denominator of CompletenessPercentage.
const ChecklistSize = 6

// CompletenessPercentage is the share of checklist sections present, rounded
// to the nearest integer.
func CompletenessPercentage(s Sections) int {
	return int(math.Round(float64(s.completed()) / ChecklistSize * 100))
}

// PriorityInput carries the facts PriorityLevel depends on. VHITotal is nil
// when no usable VHI assessment exists.
type PriorityInput struct {
	VHITotal            *int
	TobaccoAffirmative  bool
	AlcoholAffirmative  bool
	HasCancerAssessment bool
}

// PriorityLevel evaluates the High conditions first; Moderate is only
// assigned when none of them matched.
func PriorityLevel(in PriorityInput) string {
	if (in.VHITotal != nil && *in.VHITotal > 60) || in.TobaccoAffirmative || in.HasCancerAssessment {
		return PriorityHigh
	}
	if (in.VHITotal != nil && *in.VHITotal > 30) || in.AlcoholAffirmative {
		return PriorityModerate
	}
	return PriorityLow
}

var affirmativeAnswers = map[string]bool{
	"yes":     true,
	"y":       true,
	"true":    true,
	"current": true,
}

// IsAffirmative reports whether a questionnaire answer means "yes".
func IsAffirmative(answer string) bool {
	return affirmativeAnswers[strings.ToLower(strings.TrimSpace(answer))]
}
