package scoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceintake/intake/internal/platform/apperr"
)

// answers builds a 10-item subscale whose values sum to total.
func answers(prefix string, total int) map[string]int {
	m := make(map[string]int, VHIItemsPerSubscale)
	for i := 1; i <= VHIItemsPerSubscale; i++ {
		v := 0
		if total > 0 {
			v = total
			if v > VHIMaxItemScore {
				v = VHIMaxItemScore
			}
			total -= v
		}
		m[fmt.Sprintf("%s%d", prefix, i)] = v
	}
	return m
}

func TestVHIScores_P100Scenario(t *testing.T) {
	res, err := VHIScores(answers("F", 25), answers("P", 20), answers("E", 10))
	require.NoError(t, err)

	assert.Equal(t, 25, res.FunctionalSubscore)
	assert.Equal(t, 20, res.PhysicalSubscore)
	assert.Equal(t, 10, res.EmotionalSubscore)
	assert.Equal(t, 55, res.TotalScore)
	assert.Equal(t, SeverityModerate, res.Severity)
}

func TestVHIScores_TotalIsSumOfSubscores(t *testing.T) {
	for f := 0; f <= 40; f += 7 {
		for p := 0; p <= 40; p += 9 {
			for e := 0; e <= 40; e += 13 {
				res, err := VHIScores(answers("F", f), answers("P", p), answers("E", e))
				require.NoError(t, err)
				assert.Equal(t, res.FunctionalSubscore+res.PhysicalSubscore+res.EmotionalSubscore, res.TotalScore)
				assert.Equal(t, f+p+e, res.TotalScore)
			}
		}
	}
}

func TestVHIScores_ReportsEveryViolation(t *testing.T) {
	functional := answers("F", 10)
	functional["F1"] = 5
	functional["F2"] = -1

	physical := answers("P", 10)
	delete(physical, "P10")

	_, err := VHIScores(functional, physical, nil)
	require.Error(t, err)

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Len(t, appErr.Violations, 4)
	assert.Contains(t, appErr.Violations, "functionalScores[F1] must be between 0 and 4, got 5")
	assert.Contains(t, appErr.Violations, "functionalScores[F2] must be between 0 and 4, got -1")
	assert.Contains(t, appErr.Violations, "physicalScores must contain exactly 10 answers, got 9")
	assert.Contains(t, appErr.Violations, "emotionalScores is required")
}

func TestVHIScores_RejectsExtraItems(t *testing.T) {
	functional := answers("F", 0)
	functional["F11"] = 0
	_, err := VHIScores(functional, answers("P", 0), answers("E", 0))
	assert.Error(t, err)
}

func TestSeverity_Boundaries(t *testing.T) {
	cases := map[int]string{
		0:   SeverityMild,
		30:  SeverityMild,
		31:  SeverityModerate,
		60:  SeverityModerate,
		61:  SeveritySevere,
		120: SeveritySevere,
	}
	for total, want := range cases {
		assert.Equal(t, want, Severity(total), "total=%d", total)
	}
}

func TestCompletenessPercentage(t *testing.T) {
	assert.Equal(t, 0, CompletenessPercentage(Sections{}))
	assert.Equal(t, 33, CompletenessPercentage(Sections{Demographics: true, VHI: true}))
	assert.Equal(t, 50, CompletenessPercentage(Sections{BasicInfo: true, Demographics: true, VHI: true}))
	assert.Equal(t, 100, CompletenessPercentage(Sections{
		BasicInfo: true, Demographics: true, HealthHistory: true,
		CancerAssessment: true, VHI: true, VoiceRecordings: true,
	}))
}

func TestCompletenessPercentage_Monotonic(t *testing.T) {
	setters := []func(*Sections){
		func(s *Sections) { s.BasicInfo = true },
		func(s *Sections) { s.Demographics = true },
		func(s *Sections) { s.HealthHistory = true },
		func(s *Sections) { s.CancerAssessment = true },
		func(s *Sections) { s.VHI = true },
		func(s *Sections) { s.VoiceRecordings = true },
	}
	for mask := 0; mask < 1<<len(setters); mask++ {
		var base Sections
		for i, set := range setters {
			if mask&(1<<i) != 0 {
				set(&base)
			}
		}
		for i, set := range setters {
			if mask&(1<<i) != 0 {
				continue
			}
			grown := base
			set(&grown)
			assert.GreaterOrEqual(t, CompletenessPercentage(grown), CompletenessPercentage(base))
		}
	}
}

func intPtr(v int) *int { return &v }

func TestPriorityLevel(t *testing.T) {
	tests := []struct {
		name string
		in   PriorityInput
		want string
	}{
		{"nothing", PriorityInput{}, PriorityLow},
		{"vhi 30", PriorityInput{VHITotal: intPtr(30)}, PriorityLow},
		{"vhi 31", PriorityInput{VHITotal: intPtr(31)}, PriorityModerate},
		{"vhi 60", PriorityInput{VHITotal: intPtr(60)}, PriorityModerate},
		{"vhi 61", PriorityInput{VHITotal: intPtr(61)}, PriorityHigh},
		{"tobacco", PriorityInput{TobaccoAffirmative: true}, PriorityHigh},
		{"alcohol", PriorityInput{AlcoholAffirmative: true}, PriorityModerate},
		{"cancer", PriorityInput{HasCancerAssessment: true}, PriorityHigh},
		{"alcohol and tobacco", PriorityInput{AlcoholAffirmative: true, TobaccoAffirmative: true}, PriorityHigh},
		{"alcohol and low vhi", PriorityInput{AlcoholAffirmative: true, VHITotal: intPtr(5)}, PriorityModerate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PriorityLevel(tt.in))
		})
	}
}

func TestIsAffirmative(t *testing.T) {
	for _, s := range []string{"Yes", "yes", " YES ", "Current", "true"} {
		assert.True(t, IsAffirmative(s), s)
	}
	for _, s := range []string{"No", "", "Former", "N/A"} {
		assert.False(t, IsAffirmative(s), s)
	}
}
