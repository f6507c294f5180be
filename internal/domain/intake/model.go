package intake

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voiceintake/intake/internal/domain/scoring"
)

// SessionRef identifies the patient and data-collection session a form
// belongs to, with the client-side timing of the form.
type SessionRef struct {
	UserID      string     `json:"userId"`
	SessionID   string     `json:"sessionId"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// DurationMinutes is the whole number of minutes between StartedAt and
// CompletedAt, or nil when either is missing.
func (s SessionRef) DurationMinutes() *int {
	return DurationMinutes(s.StartedAt, s.CompletedAt)
}

func DurationMinutes(started, completed *time.Time) *int {
	if started == nil || completed == nil {
		return nil
	}
	m := int(math.Round(completed.Sub(*started).Minutes()))
	return &m
}

func (s SessionRef) violations() []string {
	var out []string
	if strings.TrimSpace(s.UserID) == "" {
		out = append(out, "userId is required")
	}
	if strings.TrimSpace(s.SessionID) == "" {
		out = append(out, "sessionId is required")
	}
	if s.StartedAt != nil && s.CompletedAt != nil && s.CompletedAt.Before(*s.StartedAt) {
		out = append(out, "completedAt must not be before startedAt")
	}
	return out
}

// -- Patient --

// Patient is the onboarding record every other intake row hangs off.
type Patient struct {
	UserID          string    `json:"userId"`
	ParticipantName string    `json:"participantName"`
	WitnessName     string    `json:"witnessName,omitempty"`
	ConsentAccepted bool      `json:"consentAccepted"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type OnboardingRequest struct {
	UserID          string `json:"userId"`
	ParticipantName string `json:"participantName"`
	WitnessName     string `json:"witnessName,omitempty"`
	ConsentAccepted *bool  `json:"consentAccepted"`
}

// PatientUpdate is the set of patient fields an administrator may change.
type PatientUpdate struct {
	ParticipantName *string `json:"participantName,omitempty"`
	WitnessName     *string `json:"witnessName,omitempty"`
	ConsentAccepted *bool   `json:"consentAccepted,omitempty"`
}

// -- Demographics --

type Demographics struct {
	ID                 uuid.UUID `json:"id"`
	SessionRef
	DurationMinutes    *int       `json:"durationMinutes,omitempty"`
	RespondentIdentity string     `json:"respondentIdentity"`
	Country            string     `json:"country,omitempty"`
	State              string     `json:"state,omitempty"`
	District           string     `json:"district,omitempty"`
	City               string     `json:"city,omitempty"`
	Pincode            string     `json:"pincode,omitempty"`
	Gender             string     `json:"gender,omitempty"`
	Age                *int       `json:"age,omitempty"`
	Education          string     `json:"education,omitempty"`
	Employment         string     `json:"employment,omitempty"`
	Occupation         string     `json:"occupation,omitempty"`
	Income             string     `json:"income,omitempty"`
	MaritalStatus      string     `json:"maritalStatus,omitempty"`
	Residence          string     `json:"residence,omitempty"`
	HouseholdSize      *int       `json:"householdSize,omitempty"`
	Transport          string     `json:"transport,omitempty"`
	Disability         []string   `json:"disability"`
	Consented          bool       `json:"consented"`
	FormDate           *time.Time `json:"date,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

type DemographicsAddress struct {
	Country  string `json:"country,omitempty"`
	State    string `json:"state,omitempty"`
	District string `json:"district,omitempty"`
	City     string `json:"city,omitempty"`
	Pincode  string `json:"pincode,omitempty"`
}

type DemographicsPersonal struct {
	Gender        string `json:"gender,omitempty"`
	Age           *int   `json:"age,omitempty"`
	Education     string `json:"education,omitempty"`
	Employment    string `json:"employment,omitempty"`
	Occupation    string `json:"occupation,omitempty"`
	Income        string `json:"income,omitempty"`
	MaritalStatus string `json:"maritalStatus,omitempty"`
}

type DemographicsSocioeconomic struct {
	Residence     string   `json:"residence,omitempty"`
	HouseholdSize *int     `json:"householdSize,omitempty"`
	Transport     string   `json:"transport,omitempty"`
	Disability    []string `json:"disability,omitempty"`
}

type DemographicsRequest struct {
	SessionRef
	RespondentIdentity string                    `json:"respondentIdentity"`
	Address            DemographicsAddress       `json:"address"`
	Personal           DemographicsPersonal      `json:"personal"`
	Socioeconomic      DemographicsSocioeconomic `json:"socioeconomic"`
	Consented          bool                      `json:"consented"`
	Date               string                    `json:"date,omitempty"`
}

// -- Health history --

// HealthHistoryFields are the questionnaire answers of the health history
// ("confounder") form.
type HealthHistoryFields struct {
	TobaccoUse           string   `json:"tobaccoUse"`
	TobaccoForms         []string `json:"tobaccoForms"`
	CurrentTobaccoStatus string   `json:"currentTobaccoStatus,omitempty"`
	AlcoholUse           string   `json:"alcoholUse"`
	AlcoholFrequency     string   `json:"alcoholFrequency,omitempty"`
	AlcoholRehab         string   `json:"alcoholRehab,omitempty"`
	SubstanceUse         string   `json:"substanceUse"`
	SubstanceType        string   `json:"substanceType,omitempty"`
	SubstanceRecovery    string   `json:"substanceRecovery,omitempty"`
	CaffeinePerDay       string   `json:"caffeinePerDay,omitempty"`
	WaterIntake          string   `json:"waterIntake,omitempty"`
	DentalProblem        string   `json:"dentalProblem,omitempty"`
	Dentures             string   `json:"dentures,omitempty"`
	Allergies            string   `json:"allergies,omitempty"`
	MedicalConditions    []string `json:"medicalConditions"`
	Medications          []string `json:"medications"`
	MedicalOther         string   `json:"medicalOther,omitempty"`
	MedicationOther      string   `json:"medicationOther,omitempty"`
	Menstruate           string   `json:"menstruate,omitempty"`
	MenstrualStatus      string   `json:"menstrualStatus,omitempty"`
	VoiceUse             string   `json:"voiceUse"`
	VoiceOccupation      string   `json:"voiceOccupation,omitempty"`
	VoiceHours           string   `json:"voiceHours,omitempty"`
	FatigueScore         *int     `json:"fatigueScore,omitempty"`
	DifficultyToday      string   `json:"difficultyToday,omitempty"`
}

type HealthHistory struct {
	ID uuid.UUID `json:"id"`
	SessionRef
	DurationMinutes *int `json:"durationMinutes,omitempty"`
	HealthHistoryFields
	CreatedAt time.Time `json:"createdAt"`
}

type HealthHistoryRequest struct {
	SessionRef
	HealthHistoryFields
}

// -- Cancer site assessments --

const (
	SiteOral    = "oral"
	SiteLarynx  = "larynx"
	SitePharynx = "pharynx"
)

// Checklist is a checkbox group: option name to checked.
type Checklist map[string]bool

// Checked lists the checked options in allowed order, then any others sorted.
func (c Checklist) Checked(order []string) []string {
	var out []string
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		seen[k] = true
		if c[k] {
			out = append(out, k)
		}
	}
	var extra []string
	for k, v := range c {
		if v && !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// OralSections are the checkbox groups of the oral cancer form.
type OralSections struct {
	Diagnosis          Checklist `json:"diagnosis,omitempty"`
	ConfirmedBy        Checklist `json:"confirmedBy,omitempty"`
	TumorSite          Checklist `json:"tumorSite,omitempty"`
	RiskFactors        Checklist `json:"riskFactors,omitempty"`
	MedicalHistory     Checklist `json:"medicalHistory,omitempty"`
	Symptoms           Checklist `json:"symptoms,omitempty"`
	Treatments         Checklist `json:"treatments,omitempty"`
	SurgeryDetails     Checklist `json:"surgeryDetails,omitempty"`
	Reconstruction     Checklist `json:"reconstruction,omitempty"`
	MarginStatus       Checklist `json:"marginStatus,omitempty"`
	RadiationTarget    Checklist `json:"radiationTarget,omitempty"`
	RadiationTechnique Checklist `json:"radiationTechnique,omitempty"`
	FollowupStatus     Checklist `json:"followupStatus,omitempty"`
}

var oralSectionOptions = []struct {
	name    string
	options []string
	get     func(*OralSections) Checklist
}{
	{"diagnosis", []string{"yes", "no", "notCertain"}, func(s *OralSections) Checklist { return s.Diagnosis }},
	{"confirmedBy", []string{"clinicalExam", "biopsy", "imaging"}, func(s *OralSections) Checklist { return s.ConfirmedBy }},
	{"tumorSite", []string{"buccalMucosa", "tongue", "floorOfMouth", "alveolus", "retromolar", "hardPalate", "lip", "other"}, func(s *OralSections) Checklist { return s.TumorSite }},
	{"riskFactors", []string{"tobaccoSmoke", "tobaccoChew", "alcohol", "betelNut", "poorHygiene", "hpv", "other"}, func(s *OralSections) Checklist { return s.RiskFactors }},
	{"medicalHistory", []string{"diabetes", "hypertension", "cardio", "lung", "immuno", "priorCancer", "other"}, func(s *OralSections) Checklist { return s.MedicalHistory }},
	{"symptoms", []string{"ulcer", "pain", "trismus", "dysphagia", "odynophagia", "alteredSpeech", "oralBleeding", "neckSwelling", "weightLoss"}, func(s *OralSections) Checklist { return s.Symptoms }},
	{"treatments", []string{"surgery", "radiotherapy", "chemotherapy", "concurrent", "immunotherapy", "palliative", "noTreatment"}, func(s *OralSections) Checklist { return s.Treatments }},
	{"surgeryDetails", []string{"wideExcision", "mandibulectomy", "maxillectomy", "neckDissection"}, func(s *OralSections) Checklist { return s.SurgeryDetails }},
	{"reconstruction", []string{"none", "localFlap", "freeFlap"}, func(s *OralSections) Checklist { return s.Reconstruction }},
	{"marginStatus", []string{"clear", "close", "involved"}, func(s *OralSections) Checklist { return s.MarginStatus }},
	{"radiationTarget", []string{"primary", "neck", "both"}, func(s *OralSections) Checklist { return s.RadiationTarget }},
	{"radiationTechnique", []string{"imrt", "d3crt", "other"}, func(s *OralSections) Checklist { return s.RadiationTechnique }},
	{"followupStatus", []string{"noDisease", "persistent", "recurrent", "metastatic", "deceased"}, func(s *OralSections) Checklist { return s.FollowupStatus }},
}

func optionsOf(section string) []string {
	for _, s := range oralSectionOptions {
		if s.name == section {
			return s.options
		}
	}
	return nil
}

func (s *OralSections) violations() []string {
	var out []string
	for _, sec := range oralSectionOptions {
		allowed := make(map[string]bool, len(sec.options))
		for _, o := range sec.options {
			allowed[o] = true
		}
		var unknown []string
		for k := range sec.get(s) {
			if !allowed[k] {
				unknown = append(unknown, k)
			}
		}
		sort.Strings(unknown)
		for _, k := range unknown {
			out = append(out, fmt.Sprintf("%s has unknown option %q", sec.name, k))
		}
	}
	return out
}

// OralDetails are the free-text and single-choice fields of the oral form.
type OralDetails struct {
	TumorSiteOther string `json:"tumorSiteOther,omitempty"`
	TStage         string `json:"tStage,omitempty"`
	NStage         string `json:"nStage,omitempty"`
	MStage         string `json:"mStage,omitempty"`
	ClinicalStage  string `json:"clinicalStage,omitempty"`
	RadiationDose  string `json:"radiationDose,omitempty"`
	ChemoAgent     string `json:"chemoAgent,omitempty"`
	ChemoSchedule  string `json:"chemoSchedule,omitempty"`
	FollowupDate   string `json:"followupDate,omitempty"`
	Tracheostomy   string `json:"tracheostomy,omitempty"`
	Feeding        string `json:"feeding,omitempty"`
	Speech         string `json:"speech,omitempty"`
}

var oralOutcomeChoices = []struct {
	name    string
	choices []string
	get     func(*OralDetails) string
}{
	{"tracheostomy", []string{"yes", "no", "temp"}, func(d *OralDetails) string { return d.Tracheostomy }},
	{"feeding", []string{"full", "modified", "ng", "gastro"}, func(d *OralDetails) string { return d.Feeding }},
	{"speech", []string{"normal", "effort", "nonverbal", "aid"}, func(d *OralDetails) string { return d.Speech }},
}

func (d *OralDetails) violations() []string {
	var out []string
	for _, o := range oralOutcomeChoices {
		v := o.get(d)
		if v == "" {
			continue
		}
		ok := false
		for _, c := range o.choices {
			if v == c {
				ok = true
				break
			}
		}
		if !ok {
			out = append(out, fmt.Sprintf("%s must be one of %s, got %q", o.name, strings.Join(o.choices, ", "), v))
		}
	}
	return out
}

type OralCancerAssessment struct {
	ID uuid.UUID `json:"id"`
	SessionRef
	DurationMinutes *int `json:"durationMinutes,omitempty"`
	OralSections
	OralDetails
	CreatedAt time.Time `json:"createdAt"`
}

type OralCancerRequest struct {
	SessionRef
	OralSections
	OralDetails
}

var oralDiagnosisLabels = map[string]string{"yes": "Yes", "no": "No", "notCertain": "Not Certain"}

// DiagnosisSummary renders the checked diagnosis options, or "" when none are.
func (a *OralCancerAssessment) DiagnosisSummary() string {
	var labels []string
	for _, k := range a.Diagnosis.Checked(optionsOf("diagnosis")) {
		if l, ok := oralDiagnosisLabels[k]; ok {
			labels = append(labels, l)
		} else {
			labels = append(labels, k)
		}
	}
	return strings.Join(labels, ", ")
}

func (a *OralCancerAssessment) TreatmentSummary() string {
	return strings.Join(a.Treatments.Checked(optionsOf("treatments")), ", ")
}

// StringList decodes either a JSON string or an array of strings. A scalar
// becomes a one-element list.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*l = StringList{}
		} else {
			*l = StringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("expected a string or an array of strings")
	}
	*l = many
	return nil
}

// ThroatFields are the fields of the larynx/hypopharynx and pharynx forms.
type ThroatFields struct {
	DiagnosisConfirmed      string     `json:"diagnosisConfirmed"`
	DiagnosisMethods        []string   `json:"diagnosisMethods"`
	TumorSite               []string   `json:"tumorSite"`
	TumorLaterality         string     `json:"tumorLaterality,omitempty"`
	Histology               []string   `json:"histology"`
	TumorGrade              []string   `json:"tumorGrade"`
	TStage                  string     `json:"tStage,omitempty"`
	NStage                  string     `json:"nStage,omitempty"`
	MStage                  string     `json:"mStage,omitempty"`
	ClinicalStage           string     `json:"clinicalStage,omitempty"`
	RiskFactors             []string   `json:"riskFactors"`
	MedicalHistory          []string   `json:"medicalHistory"`
	Symptoms                []string   `json:"symptoms"`
	FunctionalVoice         *int       `json:"functionalVoice,omitempty"`
	FunctionalSwallowing    *int       `json:"functionalSwallowing,omitempty"`
	FunctionalBreathing     *int       `json:"functionalBreathing,omitempty"`
	FunctionalNutrition     *int       `json:"functionalNutrition,omitempty"`
	FunctionalAirway        *int       `json:"functionalAirway,omitempty"`
	TreatmentModalities     []string   `json:"treatmentModalities"`
	TreatmentSurgeryDetails []string   `json:"treatmentSurgeryDetails"`
	TreatmentReconstruction []string   `json:"treatmentReconstruction"`
	TreatmentMarginStatus   []string   `json:"treatmentMarginStatus"`
	RadiationDose           string     `json:"radiationDose,omitempty"`
	RadiationTarget         []string   `json:"radiationTarget"`
	RadiationTechnique      []string   `json:"radiationTechnique"`
	ChemoAgents             string     `json:"chemoAgents,omitempty"`
	ChemoSchedule           string     `json:"chemoSchedule,omitempty"`
	ChemoCompleted          string     `json:"chemoCompleted,omitempty"`
	FollowupDate            string     `json:"followupDate,omitempty"`
	FollowupStatus          StringList `json:"followupStatus"`
	OutcomeTracheostomy     []string   `json:"outcomeTracheostomy"`
	OutcomeFeeding          []string   `json:"outcomeFeeding"`
	OutcomeSpeech           []string   `json:"outcomeSpeech"`
}

const (
	FunctionalMin = 0
	FunctionalMax = 4
)

func (f *ThroatFields) violations() []string {
	var out []string
	if strings.TrimSpace(f.DiagnosisConfirmed) == "" {
		out = append(out, "diagnosisConfirmed is required")
	}
	if len(f.FollowupStatus) == 0 {
		out = append(out, "followupStatus is required")
	}
	for _, fn := range []struct {
		name string
		v    *int
	}{
		{"functionalVoice", f.FunctionalVoice},
		{"functionalSwallowing", f.FunctionalSwallowing},
		{"functionalBreathing", f.FunctionalBreathing},
		{"functionalNutrition", f.FunctionalNutrition},
		{"functionalAirway", f.FunctionalAirway},
	} {
		if fn.v != nil && (*fn.v < FunctionalMin || *fn.v > FunctionalMax) {
			out = append(out, fmt.Sprintf("%s must be between %d and %d, got %d", fn.name, FunctionalMin, FunctionalMax, *fn.v))
		}
	}
	return out
}

// ThroatAssessment is a larynx/hypopharynx or pharynx assessment, told apart
// by Site.
type ThroatAssessment struct {
	ID   uuid.UUID `json:"id"`
	Site string    `json:"site"`
	SessionRef
	DurationMinutes    *int   `json:"durationMinutes,omitempty"`
	RespondentIdentity string `json:"respondentIdentity"`
	ThroatFields
	CreatedAt time.Time `json:"createdAt"`
}

type ThroatRequest struct {
	SessionRef
	RespondentIdentity string `json:"respondentIdentity,omitempty"`
	ThroatFields
}

func (a *ThroatAssessment) DiagnosisSummary() string { return a.DiagnosisConfirmed }

func (a *ThroatAssessment) TreatmentSummary() string {
	return strings.Join(a.TreatmentModalities, ", ")
}

// -- VHI --

const (
	LanguageEnglish   = "english"
	LanguageMalayalam = "malayalam"
)

type VHIAssessment struct {
	ID                 uuid.UUID      `json:"id"`
	UserID             string         `json:"userId"`
	SessionID          string         `json:"sessionId"`
	FunctionalScores   map[string]int `json:"functionalScores"`
	PhysicalScores     map[string]int `json:"physicalScores"`
	EmotionalScores    map[string]int `json:"emotionalScores"`
	FunctionalSubscore int            `json:"functionalSubscore"`
	PhysicalSubscore   int            `json:"physicalSubscore"`
	EmotionalSubscore  int            `json:"emotionalSubscore"`
	TotalScore         int            `json:"totalScore"`
	Language           string         `json:"language"`
	DurationMinutes    *int           `json:"durationMinutes,omitempty"`
	DateCompleted      time.Time      `json:"dateCompleted"`
	CreatedAt          time.Time      `json:"createdAt"`
}

// Severity bands the stored total.
func (v *VHIAssessment) Severity() string { return scoring.Severity(v.TotalScore) }

type VHIRequest struct {
	SessionRef
	FunctionalScores map[string]int `json:"functionalScores"`
	PhysicalScores   map[string]int `json:"physicalScores"`
	EmotionalScores  map[string]int `json:"emotionalScores"`
	Language         string         `json:"language,omitempty"`
}

// -- GRBAS --

const (
	GRBASMin = 0
	GRBASMax = 3
)

type GRBASRating struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"userId"`
	SessionID      string    `json:"sessionId"`
	TaskNumber     int       `json:"taskNumber"`
	GScore         int       `json:"gScore"`
	RScore         int       `json:"rScore"`
	BScore         int       `json:"bScore"`
	AScore         int       `json:"aScore"`
	SScore         int       `json:"sScore"`
	ClinicianName  string    `json:"clinicianName"`
	EvaluationDate time.Time `json:"evaluationDate"`
	Comments       string    `json:"comments,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type GRBASRequest struct {
	UserID         string     `json:"userId"`
	SessionID      string     `json:"sessionId"`
	TaskNumber     *int       `json:"taskNumber"`
	GScore         *int       `json:"gScore"`
	RScore         *int       `json:"rScore"`
	BScore         *int       `json:"bScore"`
	AScore         *int       `json:"aScore"`
	SScore         *int       `json:"sScore"`
	ClinicianName  string     `json:"clinicianName"`
	EvaluationDate *time.Time `json:"evaluationDate,omitempty"`
	Comments       string     `json:"comments,omitempty"`
}

func (r *GRBASRequest) violations() []string {
	var out []string
	if strings.TrimSpace(r.UserID) == "" {
		out = append(out, "userId is required")
	}
	if strings.TrimSpace(r.SessionID) == "" {
		out = append(out, "sessionId is required")
	}
	if r.TaskNumber == nil {
		out = append(out, "taskNumber is required")
	} else if *r.TaskNumber < 1 {
		out = append(out, fmt.Sprintf("taskNumber must be at least 1, got %d", *r.TaskNumber))
	}
	for _, s := range []struct {
		name string
		v    *int
	}{
		{"gScore", r.GScore}, {"rScore", r.RScore}, {"bScore", r.BScore}, {"aScore", r.AScore}, {"sScore", r.SScore},
	} {
		switch {
		case s.v == nil:
			out = append(out, s.name+" is required")
		case *s.v < GRBASMin || *s.v > GRBASMax:
			out = append(out, fmt.Sprintf("%s must be between %d and %d, got %d", s.name, GRBASMin, GRBASMax, *s.v))
		}
	}
	if strings.TrimSpace(r.ClinicianName) == "" {
		out = append(out, "clinicianName is required")
	}
	return out
}
