// Package scoring holds the pure calculators used across intake, profile
// aggregation and export: VHI subscores and severity, assessment
// completeness, and clinical priority.
package scoring

import (
	"fmt"
	"sort"

	"github.com/voiceintake/intake/internal/platform/apperr"
)

const (
	// VHIItemsPerSubscale is the number of questions in each VHI subscale.
	VHIItemsPerSubscale = 10
	VHIMinItemScore     = 0
	VHIMaxItemScore     = 4

	SeverityMild     = "Mild"
	SeverityModerate = "Moderate"
	SeveritySevere   = "Severe"

	mildUpperBound     = 30
	moderateUpperBound = 60
)

// VHIResult holds the derived scores of one VHI questionnaire.
type VHIResult struct {
	FunctionalSubscore int    `json:"functionalSubscore"`
	PhysicalSubscore   int    `json:"physicalSubscore"`
	EmotionalSubscore  int    `json:"emotionalSubscore"`
	TotalScore         int    `json:"totalScore"`
	Severity           string `json:"severity"`
}

// VHIScores validates the three subscale maps and derives subscores, total and
// severity. Every violation across all three maps is reported in a single
// validation error.
func VHIScores(functional, physical, emotional map[string]int) (VHIResult, error) {
	var violations []string
	violations = append(violations, checkSubscale("functionalScores", functional)...)
	violations = append(violations, checkSubscale("physicalScores", physical)...)
	violations = append(violations, checkSubscale("emotionalScores", emotional)...)
	if len(violations) > 0 {
		return VHIResult{}, apperr.Validation("invalid VHI responses", violations)
	}

	res := VHIResult{
		FunctionalSubscore: sum(functional),
		PhysicalSubscore:   sum(physical),
		EmotionalSubscore:  sum(emotional),
	}
	res.TotalScore = res.FunctionalSubscore + res.PhysicalSubscore + res.EmotionalSubscore
	res.Severity = Severity(res.TotalScore)
	return res, nil
}

// Severity bands a VHI total: <=30 Mild, 31-60 Moderate, >60 Severe.
func Severity(total int) string {
	switch {
	case total <= mildUpperBound:
		return SeverityMild
	case total <= moderateUpperBound:
		return SeverityModerate
	default:
		return SeveritySevere
	}
}

func checkSubscale(name string, scores map[string]int) []string {
	if scores == nil {
		return []string{fmt.Sprintf("%s is required", name)}
	}

	var out []string
	if len(scores) != VHIItemsPerSubscale {
		out = append(out, fmt.Sprintf("%s must contain exactly %d answers, got %d", name, VHIItemsPerSubscale, len(scores)))
	}

	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := scores[k]; v < VHIMinItemScore || v > VHIMaxItemScore {
			out = append(out, fmt.Sprintf("%s[%s] must be between %d and %d, got %d", name, k, VHIMinItemScore, VHIMaxItemScore, v))
		}
	}
	return out
}

func sum(scores map[string]int) int {
	total := 0
	for _, v := range scores {
		total += v
	}
	return total
}
