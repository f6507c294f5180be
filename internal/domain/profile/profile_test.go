package profile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceintake/intake/internal/domain/intake"
	"github.com/voiceintake/intake/internal/domain/scoring"
	"github.com/voiceintake/intake/internal/domain/voice"
	"github.com/voiceintake/intake/internal/platform/apperr"
	"github.com/voiceintake/intake/internal/platform/httpx"
)

type fakeSource struct {
	patient      *intake.Patient
	demographics *intake.Demographics
	history      *intake.HealthHistory
	oral         *intake.OralCancerAssessment
	larynx       *intake.ThroatAssessment
	pharynx      *intake.ThroatAssessment
	vhi          []*intake.VHIAssessment
	grbas        []*intake.GRBASRating
	recordings   []*voice.Recording
	historyErr   error
}

func (f *fakeSource) Patient(_ context.Context, userID string) (*intake.Patient, error) {
	if f.patient == nil || f.patient.UserID != userID {
		return nil, apperr.NotFound("patient", userID)
	}
	return f.patient, nil
}

func (f *fakeSource) Demographics(context.Context, string) (*intake.Demographics, error) {
	return f.demographics, nil
}

func (f *fakeSource) HealthHistory(context.Context, string) (*intake.HealthHistory, error) {
	return f.history, f.historyErr
}

func (f *fakeSource) OralCancer(context.Context, string) (*intake.OralCancerAssessment, error) {
	return f.oral, nil
}

func (f *fakeSource) ThroatCancer(_ context.Context, _ string, site string) (*intake.ThroatAssessment, error) {
	if site == intake.SiteLarynx {
		return f.larynx, nil
	}
	return f.pharynx, nil
}

func (f *fakeSource) VHIAssessments(context.Context, string) ([]*intake.VHIAssessment, error) {
	return f.vhi, nil
}

func (f *fakeSource) GRBASRatings(context.Context, string) ([]*intake.GRBASRating, error) {
	return f.grbas, nil
}

func (f *fakeSource) Recordings(context.Context, string) ([]*voice.Recording, error) {
	return f.recordings, nil
}

var day = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func at(hours int) time.Time { return day.Add(time.Duration(hours) * time.Hour) }

// items spreads total over ten answers in 0..4.
func items(prefix string, total int) map[string]int {
	m := make(map[string]int, 10)
	for i := 1; i <= 10; i++ {
		v := total / 10
		if i <= total%10 {
			v++
		}
		m[fmt.Sprintf("%s%d", prefix, i)] = v
	}
	return m
}

func vhiWith(f, p, e int, completed time.Time) *intake.VHIAssessment {
	return &intake.VHIAssessment{
		ID:                 uuid.New(),
		FunctionalScores:   items("F", f),
		PhysicalScores:     items("P", p),
		EmotionalScores:    items("E", e),
		FunctionalSubscore: f,
		PhysicalSubscore:   p,
		EmotionalSubscore:  e,
		TotalScore:         f + p + e,
		Language:           intake.LanguageEnglish,
		DateCompleted:      completed,
	}
}

func recording(task, lang string, seconds float64, when time.Time) *voice.Recording {
	return &voice.Recording{
		ID: uuid.New(), UserID: "P-100", SessionID: "S-1", TaskType: task, Language: lang,
		DurationSeconds: seconds, RecordingDate: when, AudioFilePath: "uploads/recordings/" + task + ".wav",
	}
}

func basePatient() *intake.Patient {
	return &intake.Patient{UserID: "P-100", ParticipantName: "Asha Menon", ConsentAccepted: true, CreatedAt: day}
}

func aggregate(t *testing.T, src *fakeSource, opts Options) *Profile {
	t.Helper()
	p, err := NewAggregator(src, zerolog.Nop()).Aggregate(context.Background(), "P-100", opts)
	require.NoError(t, err)
	return p
}

func TestAggregate_NotFound(t *testing.T) {
	_, err := NewAggregator(&fakeSource{}, zerolog.Nop()).Aggregate(context.Background(), "nobody", Options{})
	assert.True(t, apperr.IsNotFound(err))
}

func TestAggregate_AbsentSectionsAreNil(t *testing.T) {
	p := aggregate(t, &fakeSource{patient: basePatient()}, Options{})

	assert.Nil(t, p.Demographics)
	assert.Nil(t, p.HealthHistory)
	assert.Nil(t, p.VoiceHandicapIndex)
	assert.False(t, p.CancerAssessments.Any())
	assert.Empty(t, p.Timeline)
	assert.NotNil(t, p.GRBASRatings)
	assert.Equal(t, 17, p.AnalysisNotes.CompletenessPercentage)
	assert.Equal(t, scoring.PriorityLow, p.AnalysisNotes.PriorityLevel)
	require.Len(t, p.AnalysisNotes.VoiceConcerns, 1)
	assert.Equal(t, "No Voice Recordings", p.AnalysisNotes.VoiceConcerns[0].Type)
}

func TestAggregate_ScenarioP100(t *testing.T) {
	src := &fakeSource{
		patient:      basePatient(),
		demographics: &intake.Demographics{ID: uuid.New(), CreatedAt: at(1)},
		vhi:          []*intake.VHIAssessment{vhiWith(25, 20, 10, at(2))},
	}
	p := aggregate(t, src, Options{})

	require.NotNil(t, p.VoiceHandicapIndex)
	assert.Equal(t, 55, p.VoiceHandicapIndex.TotalScore)
	assert.Equal(t, scoring.SeverityModerate, p.VoiceHandicapIndex.Severity)
	// basic info, demographics and VHI: 3 of 6.
	assert.Equal(t, 50, p.AnalysisNotes.CompletenessPercentage)
	assert.Equal(t, scoring.PriorityModerate, p.AnalysisNotes.PriorityLevel)

	var types []string
	for _, r := range p.AnalysisNotes.Recommendations {
		types = append(types, r.Type)
	}
	assert.Equal(t, []string{"Complete Assessment", "Voice Therapy Evaluation"}, types)
}

func TestAggregate_TimelineSortedAndStable(t *testing.T) {
	src := &fakeSource{
		patient:      basePatient(),
		demographics: &intake.Demographics{ID: uuid.New(), CreatedAt: at(5)},
		history:      &intake.HealthHistory{ID: uuid.New(), CreatedAt: at(1)},
		grbas: []*intake.GRBASRating{
			{ID: uuid.New(), TaskNumber: 1, EvaluationDate: at(3)},
			{ID: uuid.New(), TaskNumber: 2, EvaluationDate: at(3)},
		},
		recordings: []*voice.Recording{
			recording(voice.TaskFreeSpeech, voice.LangEnglish, 30, at(4)),
			recording(voice.TaskProlongedVowel, voice.LangEnglish, 10, at(2)),
		},
	}
	p := aggregate(t, src, Options{})

	var got []string
	for _, e := range p.Timeline {
		got = append(got, e.Type)
	}
	assert.Equal(t, []string{
		EventHealthHistory, EventRecording, EventGRBAS, EventGRBAS, EventRecording, EventDemographics,
	}, got)
	assert.Contains(t, p.Timeline[2].Summary, "task 1")
	assert.Contains(t, p.Timeline[3].Summary, "task 2")

	for i := 1; i < len(p.Timeline); i++ {
		assert.False(t, p.Timeline[i].Date.Before(p.Timeline[i-1].Date))
	}
}

func TestAggregate_VoiceAnalysis(t *testing.T) {
	src := &fakeSource{
		patient: basePatient(),
		recordings: []*voice.Recording{
			recording(voice.TaskMalayalamWords, voice.LangMalayalam, 12, at(3)),
			recording(voice.TaskProlongedVowel, voice.LangEnglish, 8, at(1)),
			recording(voice.TaskProlongedVowel, voice.LangEnglish, 9.5, at(2)),
		},
	}
	p := aggregate(t, src, Options{DownloadURL: func(r *voice.Recording) string {
		return "/api/admin/recordings/" + r.ID.String() + "/download"
	}})

	va := p.VoiceAnalysis
	assert.InDelta(t, 29.5, va.TotalDuration, 1e-9)
	assert.Equal(t, []string{voice.TaskProlongedVowel, voice.TaskMalayalamWords}, va.TaskTypes)
	assert.Equal(t, []string{voice.LangEnglish, voice.LangMalayalam}, va.Languages)
	require.Len(t, va.Recordings, 3)
	assert.Equal(t, at(1), va.Recordings[0].RecordingDate)
	assert.Contains(t, va.Recordings[0].DownloadURL, va.Recordings[0].ID.String())

	require.Len(t, p.AnalysisNotes.VoiceConcerns, 1)
	assert.Equal(t, "Limited Voice Sample", p.AnalysisNotes.VoiceConcerns[0].Type)
}

func TestAggregate_MalformedVHIIsUnavailable(t *testing.T) {
	bad := vhiWith(30, 30, 10, at(2))
	bad.PhysicalSubscore = 0 // stored subscore no longer matches the items
	src := &fakeSource{
		patient:      basePatient(),
		demographics: &intake.Demographics{ID: uuid.New(), CreatedAt: at(1)},
		vhi:          []*intake.VHIAssessment{bad},
	}
	p := aggregate(t, src, Options{})

	assert.Nil(t, p.VoiceHandicapIndex)
	assert.Contains(t, p.Unavailable, "voiceHandicapIndex")
	assert.NotNil(t, p.Demographics)
	assert.Equal(t, scoring.PriorityLow, p.AnalysisNotes.PriorityLevel)
	for _, c := range p.AnalysisNotes.VoiceConcerns {
		assert.NotContains(t, c.Type, "Voice Handicap")
	}
}

func TestAggregate_MissingItemMapIsUnavailable(t *testing.T) {
	bad := vhiWith(10, 10, 10, at(2))
	bad.EmotionalScores = nil
	p := aggregate(t, &fakeSource{patient: basePatient(), vhi: []*intake.VHIAssessment{bad}}, Options{})
	assert.Nil(t, p.VoiceHandicapIndex)
}

func TestAggregate_RelatedLoadErrorIsUnavailable(t *testing.T) {
	src := &fakeSource{patient: basePatient(), historyErr: errors.New("decode failure")}
	p := aggregate(t, src, Options{})
	assert.Nil(t, p.HealthHistory)
	assert.Equal(t, []string{"healthHistory"}, p.Unavailable)
}

func TestAggregate_DateRange(t *testing.T) {
	src := &fakeSource{
		patient: basePatient(),
		vhi: []*intake.VHIAssessment{
			vhiWith(40, 20, 10, at(48)),
			vhiWith(5, 5, 5, at(2)),
		},
		recordings: []*voice.Recording{
			recording(voice.TaskFreeSpeech, voice.LangEnglish, 90, at(1)),
			recording(voice.TaskBreathSounds, voice.LangEnglish, 15, at(50)),
		},
	}
	p := aggregate(t, src, Options{Range: httpx.DateRange{Start: day, End: at(24)}})

	require.NotNil(t, p.VoiceHandicapIndex)
	assert.Equal(t, 15, p.VoiceHandicapIndex.TotalScore)
	assert.Equal(t, 1, p.VoiceHandicapIndex.AssessmentCount)
	require.Len(t, p.VoiceAnalysis.Recordings, 1)
	assert.Equal(t, voice.TaskFreeSpeech, p.VoiceAnalysis.Recordings[0].TaskType)
	assert.Len(t, p.Timeline, 2)
}

func TestNotes_RiskFactors(t *testing.T) {
	src := &fakeSource{
		patient: basePatient(),
		history: &intake.HealthHistory{ID: uuid.New(), CreatedAt: at(1), HealthHistoryFields: intake.HealthHistoryFields{
			TobaccoUse: "No", CurrentTobaccoStatus: "Current", AlcoholUse: "Yes", VoiceUse: "Professional",
		}},
		pharynx: &intake.ThroatAssessment{ID: uuid.New(), Site: intake.SitePharynx, CreatedAt: at(2)},
	}
	p := aggregate(t, src, Options{})

	var got []string
	for _, r := range p.AnalysisNotes.RiskFactors {
		got = append(got, r.Type+":"+r.Severity)
	}
	assert.Equal(t, []string{
		"Tobacco Use:High", "Alcohol Use:Moderate", "Professional Voice Use:Low", "Cancer Assessment:High",
	}, got)
	assert.Equal(t, scoring.PriorityHigh, p.AnalysisNotes.PriorityLevel)

	var recs []string
	for _, r := range p.AnalysisNotes.Recommendations {
		recs = append(recs, r.Type)
	}
	assert.Equal(t, []string{"Complete Assessment", "Risk Factor Management", "Oncology Consultation"}, recs)
}
