// Package admin serves the administrator dashboard: login, patient analysis,
// statistics, recordings and exports.
package admin

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voiceintake/intake/internal/domain/profile"
	"github.com/voiceintake/intake/internal/domain/voice"
	"github.com/voiceintake/intake/internal/platform/auth"
	"github.com/voiceintake/intake/internal/platform/reporting"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AdminInfo struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Admin     AdminInfo `json:"admin"`
}

func newLoginResponse(t *auth.Token) *LoginResponse {
	return &LoginResponse{
		Token:     t.AccessToken,
		ExpiresAt: t.ExpiresAt,
		Admin:     AdminInfo{Username: t.Username, Role: t.Role},
	}
}

// -- Patient analysis --

// AnalysisSummary aggregates the patients of one analysis page.
type AnalysisSummary struct {
	TotalPatients          int     `json:"totalPatients"`
	PatientsWithRecordings int     `json:"patientsWithRecordings"`
	TotalRecordings        int     `json:"totalRecordings"`
	AverageCompleteness    float64 `json:"averageCompleteness"`
}

type PatientAnalysis struct {
	Patients []*profile.Profile `json:"patients"`
	Summary  AnalysisSummary    `json:"summary"`
	Total    int                `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
	HasMore  bool               `json:"hasMore"`
}

func summarize(profiles []*profile.Profile, total int) AnalysisSummary {
	s := AnalysisSummary{TotalPatients: total}
	if len(profiles) == 0 {
		return s
	}
	sum := 0
	for _, p := range profiles {
		if n := len(p.VoiceAnalysis.Recordings); n > 0 {
			s.PatientsWithRecordings++
			s.TotalRecordings += n
		}
		sum += p.AnalysisNotes.CompletenessPercentage
	}
	s.AverageCompleteness = float64(sum) / float64(len(profiles))
	return s
}

// -- Cohort export --

// CohortData is the inline form of a cohort export.
type CohortData struct {
	Patients       any `json:"patients"`
	AnalysisReport any `json:"analysisReport"`
}

// -- Statistics --

type TableCounts struct {
	Patients        int `json:"patients"`
	Demographics    int `json:"demographics"`
	HealthHistories int `json:"healthHistories"`
	OralCancer      int `json:"oralCancer"`
	LarynxCancer    int `json:"larynxCancer"`
	PharynxCancer   int `json:"pharynxCancer"`
	VHIAssessments  int `json:"vhiAssessments"`
	GRBASRatings    int `json:"grbasRatings"`
	VoiceRecordings int `json:"voiceRecordings"`
	TaskAssignments int `json:"taskAssignments"`
}

type CompletionAnalysis struct {
	FullyComplete       int `json:"fullyComplete"`
	PartiallyComplete   int `json:"partiallyComplete"`
	MinimalData         int `json:"minimalData"`
	WithVoiceRecordings int `json:"withVoiceRecordings"`
}

type TaskLanguageCount struct {
	TaskType string `json:"taskType"`
	Language string `json:"language"`
	Total    int    `json:"total"`
}

type ConditionCount struct {
	Condition string `json:"condition"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
}

type Statistics struct {
	Counts               TableCounts         `json:"counts"`
	VHISeverity          map[string]int      `json:"vhiSeverityDistribution"`
	Completion           CompletionAnalysis  `json:"completionAnalysis"`
	RecordingTasks       []TaskLanguageCount `json:"recordingTasks"`
	ConditionAssignments []ConditionCount    `json:"conditionAssignments"`
	GeneratedAt          time.Time           `json:"generatedAt"`
}

func tableCounts(r *reporting.MeasureReport) TableCounts {
	if len(r.Results) == 0 {
		return TableCounts{}
	}
	row := r.Results[0]
	return TableCounts{
		Patients:        reporting.Int(row, "patients"),
		Demographics:    reporting.Int(row, "demographics"),
		HealthHistories: reporting.Int(row, "health_histories"),
		OralCancer:      reporting.Int(row, "oral_cancer"),
		LarynxCancer:    reporting.Int(row, "larynx_cancer"),
		PharynxCancer:   reporting.Int(row, "pharynx_cancer"),
		VHIAssessments:  reporting.Int(row, "vhi_assessments"),
		GRBASRatings:    reporting.Int(row, "grbas_ratings"),
		VoiceRecordings: reporting.Int(row, "voice_recordings"),
		TaskAssignments: reporting.Int(row, "task_assignments"),
	}
}

func completion(r *reporting.MeasureReport) CompletionAnalysis {
	if len(r.Results) == 0 {
		return CompletionAnalysis{}
	}
	row := r.Results[0]
	return CompletionAnalysis{
		FullyComplete:       reporting.Int(row, "fully_complete"),
		PartiallyComplete:   reporting.Int(row, "partially_complete"),
		MinimalData:         reporting.Int(row, "minimal_data"),
		WithVoiceRecordings: reporting.Int(row, "with_voice_recordings"),
	}
}

func severityDistribution(r *reporting.MeasureReport) map[string]int {
	out := map[string]int{"Mild": 0, "Moderate": 0, "Severe": 0}
	for _, row := range r.Results {
		if s, ok := row["severity"].(string); ok {
			out[s] = reporting.Int(row, "total")
		}
	}
	return out
}

func text(row map[string]any, key string) string {
	if s, ok := row[key].(string); ok {
		return s
	}
	return ""
}

// -- Recordings --

// RecordingView is a recording as listed on the dashboard.
type RecordingView struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"userId"`
	ParticipantName string    `json:"participantName"`
	SessionID       string    `json:"sessionId"`
	TaskType        string    `json:"taskType"`
	Language        string    `json:"language"`
	DurationSeconds float64   `json:"duration"`
	FileSize        int64     `json:"fileSize"`
	RecordingDate   time.Time `json:"recordingDate"`
	DownloadURL     string    `json:"downloadUrl"`
	DownloadWAVURL  string    `json:"downloadWavUrl"`
}

// PatientRecordings groups one patient's recordings.
type PatientRecordings struct {
	UserID          string          `json:"userId"`
	ParticipantName string          `json:"participantName"`
	TotalDuration   float64         `json:"totalDuration"`
	TaskTypes       []string        `json:"taskTypes"`
	Languages       []string        `json:"languages"`
	Recordings      []RecordingView `json:"recordings"`
}

type RecordingSummary struct {
	TotalRecordings      int            `json:"totalRecordings"`
	TotalPatients        int            `json:"totalPatients"`
	TotalDuration        float64        `json:"totalDuration"`
	TaskDistribution     map[string]int `json:"taskDistribution"`
	LanguageDistribution map[string]int `json:"languageDistribution"`
}

type RecordingsOverview struct {
	Recordings []RecordingView     `json:"recordings"`
	ByPatient  []PatientRecordings `json:"byPatient"`
	Summary    RecordingSummary    `json:"summary"`
}

// DownloadURL is the admin download route of a recording.
func DownloadURL(id uuid.UUID) string {
	return fmt.Sprintf("/api/admin/recordings/%s/download", id)
}

func downloadWAVURL(id uuid.UUID) string {
	return DownloadURL(id) + "-wav"
}

func newRecordingView(r *voice.Recording) RecordingView {
	return RecordingView{
		ID:              r.ID,
		UserID:          r.UserID,
		ParticipantName: r.ParticipantName,
		SessionID:       r.SessionID,
		TaskType:        r.TaskType,
		Language:        r.Language,
		DurationSeconds: r.DurationSeconds,
		FileSize:        r.FileSize,
		RecordingDate:   r.RecordingDate,
		DownloadURL:     DownloadURL(r.ID),
		DownloadWAVURL:  downloadWAVURL(r.ID),
	}
}

// overview groups recordings by patient in order of first appearance.
func overview(recs []*voice.Recording) *RecordingsOverview {
	o := &RecordingsOverview{
		Recordings: make([]RecordingView, 0, len(recs)),
		ByPatient:  []PatientRecordings{},
		Summary: RecordingSummary{
			TaskDistribution:     map[string]int{},
			LanguageDistribution: map[string]int{},
		},
	}
	groups := map[string]int{}
	for _, r := range recs {
		v := newRecordingView(r)
		o.Recordings = append(o.Recordings, v)
		o.Summary.TotalDuration += r.DurationSeconds
		o.Summary.TaskDistribution[r.TaskType]++
		o.Summary.LanguageDistribution[r.Language]++

		i, ok := groups[r.UserID]
		if !ok {
			i = len(o.ByPatient)
			groups[r.UserID] = i
			o.ByPatient = append(o.ByPatient, PatientRecordings{
				UserID:          r.UserID,
				ParticipantName: r.ParticipantName,
				TaskTypes:       []string{},
				Languages:       []string{},
			})
		}
		g := &o.ByPatient[i]
		g.Recordings = append(g.Recordings, v)
		g.TotalDuration += r.DurationSeconds
		g.TaskTypes = appendUnique(g.TaskTypes, r.TaskType)
		g.Languages = appendUnique(g.Languages, r.Language)
	}
	o.Summary.TotalRecordings = len(recs)
	o.Summary.TotalPatients = len(o.ByPatient)
	return o
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// -- Clinical notes --

// ClinicalNotes are a clinician's annotations for a patient. They are
// validated and echoed back; they are not stored.
type ClinicalNotes struct {
	DoctorNotes      string `json:"doctorNotes"`
	Diagnosis        string `json:"diagnosis"`
	TreatmentPlan    string `json:"treatmentPlan"`
	FollowUpRequired *bool  `json:"followUpRequired,omitempty"`
	Priority         string `json:"priority,omitempty"`
	Recommendations  string `json:"recommendations"`
}

type SubmittedNotes struct {
	UserID string `json:"userId"`
	ClinicalNotes
	SubmittedBy string    `json:"submittedBy,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// MaxNoteLength bounds each free-text note field, in characters.
const MaxNoteLength = 5000

var notePriorities = map[string]bool{"": true, "High": true, "Moderate": true, "Low": true}

func (n *ClinicalNotes) violations() []string {
	var out []string
	fields := []struct {
		name, value string
	}{
		{"doctorNotes", n.DoctorNotes},
		{"diagnosis", n.Diagnosis},
		{"treatmentPlan", n.TreatmentPlan},
		{"recommendations", n.Recommendations},
	}
	empty := true
	for _, f := range fields {
		if strings.TrimSpace(f.value) != "" {
			empty = false
		}
		if l := len([]rune(f.value)); l > MaxNoteLength {
			out = append(out, fmt.Sprintf("%s must be at most %d characters, got %d", f.name, MaxNoteLength, l))
		}
	}
	if empty {
		out = append(out, "at least one of doctorNotes, diagnosis, treatmentPlan or recommendations is required")
	}
	if !notePriorities[n.Priority] {
		out = append(out, fmt.Sprintf("priority must be High, Moderate or Low, got %q", n.Priority))
	}
	return out
}
