// Package profile joins a patient's scattered intake records into one
// PatientProfile: the nested assessments, a chronological timeline, a
// recording summary and the derived clinical notes used by the admin
// dashboard and by exports.
package profile

import (
	"time"

	"github.com/google/uuid"

	"github.com/voiceintake/intake/internal/domain/intake"
)

// BasicInfo is the flat identity block of a profile.
type BasicInfo struct {
	UserID           string    `json:"userId"`
	ParticipantName  string    `json:"participantName"`
	WitnessName      string    `json:"witnessName,omitempty"`
	ConsentAccepted  bool      `json:"consentAccepted"`
	RegistrationDate time.Time `json:"registrationDate"`
}

// CancerAssessments holds one optional assessment per site. The sites are
// independent; a patient may have any combination.
type CancerAssessments struct {
	Oral    *intake.OralCancerAssessment `json:"oralCancer"`
	Larynx  *intake.ThroatAssessment     `json:"larynxHypopharynx"`
	Pharynx *intake.ThroatAssessment     `json:"pharynxCancer"`
}

func (c CancerAssessments) Any() bool {
	return c.Oral != nil || c.Larynx != nil || c.Pharynx != nil
}

// VoiceHandicap is the patient's most recent usable VHI assessment.
type VoiceHandicap struct {
	ID                 uuid.UUID      `json:"id"`
	FunctionalSubscore int            `json:"functionalSubscore"`
	PhysicalSubscore   int            `json:"physicalSubscore"`
	EmotionalSubscore  int            `json:"emotionalSubscore"`
	TotalScore         int            `json:"totalScore"`
	Severity           string         `json:"severity"`
	FunctionalScores   map[string]int `json:"functionalScores"`
	PhysicalScores     map[string]int `json:"physicalScores"`
	EmotionalScores    map[string]int `json:"emotionalScores"`
	Language           string         `json:"language"`
	DateCompleted      time.Time      `json:"dateCompleted"`
	// AssessmentCount is how many VHI assessments the patient has in total.
	AssessmentCount int `json:"assessmentCount"`
}

// Timeline event types.
const (
	EventDemographics  = "Demographics"
	EventHealthHistory = "Health History"
	EventOralCancer    = "Oral Cancer Assessment"
	EventLarynx        = "Larynx/Hypopharynx Assessment"
	EventPharynx       = "Pharynx Cancer Assessment"
	EventVHI           = "VHI Assessment"
	EventGRBAS         = "GRBAS Rating"
	EventRecording     = "Voice Recording"
)

type TimelineEvent struct {
	Type    string    `json:"type"`
	Date    time.Time `json:"date"`
	RefID   string    `json:"refId,omitempty"`
	Summary string    `json:"summary,omitempty"`
}

// RecordingEntry is one recording in the voice analysis.
type RecordingEntry struct {
	ID              uuid.UUID `json:"id"`
	SessionID       string    `json:"sessionId"`
	TaskType        string    `json:"taskType"`
	Language        string    `json:"language"`
	DurationSeconds float64   `json:"duration"`
	FilePath        string    `json:"filePath"`
	RecordingDate   time.Time `json:"recordingDate"`
	DownloadURL     string    `json:"downloadUrl,omitempty"`
}

// VoiceAnalysis summarizes the recordings. TaskTypes and Languages are unique
// in order of first occurrence; Recordings are chronological.
type VoiceAnalysis struct {
	TotalDuration float64          `json:"totalDuration"`
	TaskTypes     []string         `json:"taskTypes"`
	Languages     []string         `json:"languages"`
	Recordings    []RecordingEntry `json:"chronologicalOrder"`
}

// FirstRecording and LastRecording return the bounds of the recording dates.
func (v VoiceAnalysis) FirstRecording() (time.Time, bool) {
	if len(v.Recordings) == 0 {
		return time.Time{}, false
	}
	return v.Recordings[0].RecordingDate, true
}

func (v VoiceAnalysis) LastRecording() (time.Time, bool) {
	if len(v.Recordings) == 0 {
		return time.Time{}, false
	}
	return v.Recordings[len(v.Recordings)-1].RecordingDate, true
}

// Severity and priority labels used by the clinical notes.
const (
	LevelHigh     = "High"
	LevelModerate = "Moderate"
	LevelMedium   = "Medium"
	LevelLow      = "Low"
)

type RiskFactor struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Details  string `json:"details,omitempty"`
}

type VoiceConcern struct {
	Type     string `json:"type"`
	Score    *int   `json:"score,omitempty"`
	Details  string `json:"details,omitempty"`
	Priority string `json:"priority"`
}

type Recommendation struct {
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
}

type AnalysisNotes struct {
	CompletenessPercentage int              `json:"completenessPercentage"`
	PriorityLevel          string           `json:"priorityLevel"`
	RiskFactors            []RiskFactor     `json:"riskFactors"`
	VoiceConcerns          []VoiceConcern   `json:"voiceConcerns"`
	Recommendations        []Recommendation `json:"recommendations"`
}

// Profile is the aggregated view of one patient. Absent assessments are nil
// and render as JSON null.
type Profile struct {
	BasicInfo          BasicInfo             `json:"basicInfo"`
	Demographics       *intake.Demographics  `json:"demographics"`
	HealthHistory      *intake.HealthHistory `json:"healthHistory"`
	CancerAssessments  CancerAssessments     `json:"cancerAssessments"`
	VoiceHandicapIndex *VoiceHandicap        `json:"voiceHandicapIndex"`
	GRBASRatings       []*intake.GRBASRating `json:"grbasRatings"`
	Timeline           []TimelineEvent       `json:"timeline"`
	VoiceAnalysis      VoiceAnalysis         `json:"voiceAnalysis"`
	AnalysisNotes      AnalysisNotes         `json:"analysisNotes"`

	// Unavailable names related records that could not be used. The rest of
	// the profile is computed without them.
	Unavailable []string `json:"unavailable,omitempty"`
}

// DisplayName is the participant name, or the userId when the name is blank.
func (p *Profile) DisplayName() string {
	if p.BasicInfo.ParticipantName != "" {
		return p.BasicInfo.ParticipantName
	}
	return p.BasicInfo.UserID
}

// TobaccoAffirmative reports tobacco use from the health history.
func (p *Profile) TobaccoAffirmative() bool {
	return p.HealthHistory != nil && (isYes(p.HealthHistory.TobaccoUse) || isYes(p.HealthHistory.CurrentTobaccoStatus))
}

func (p *Profile) AlcoholAffirmative() bool {
	return p.HealthHistory != nil && isYes(p.HealthHistory.AlcoholUse)
}

// ProfessionalVoiceUse reports whether the patient uses their voice
// professionally.
func (p *Profile) ProfessionalVoiceUse() bool {
	if p.HealthHistory == nil {
		return false
	}
	return isProfessional(p.HealthHistory.VoiceUse)
}

// VHITotal is nil when no usable VHI assessment exists.
func (p *Profile) VHITotal() *int {
	if p.VoiceHandicapIndex == nil {
		return nil
	}
	t := p.VoiceHandicapIndex.TotalScore
	return &t
}
