package export

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/voiceintake/intake/internal/domain/profile"
)

// NA is written for every value the profile does not have.
const NA = "N/A"

// Columns is the fixed column order of a flattened profile.
var Columns = []string{
	"patient_id",
	"participant_name",
	"registration_date",
	"consent_status",
	"witness_name",

	"gender",
	"age",
	"education",
	"occupation",
	"employment",
	"income",
	"marital_status",
	"household_size",
	"location_country",
	"location_state",
	"location_district",
	"location_city",
	"location_pincode",
	"residence_type",
	"transport",
	"disability",

	"tobacco_use",
	"tobacco_forms",
	"current_tobacco_status",
	"alcohol_use",
	"alcohol_frequency",
	"alcohol_rehabilitation",
	"substance_use",
	"substance_type",
	"substance_recovery",
	"caffeine_per_day",
	"water_intake",
	"medical_conditions",
	"current_medications",
	"allergies",
	"dental_problems",
	"dentures",
	"professional_voice_use",
	"voice_occupation",
	"daily_voice_hours",
	"fatigue_score",
	"difficulty_today",

	"oral_cancer_diagnosis",
	"oral_cancer_treatment",
	"larynx_cancer_diagnosis",
	"larynx_cancer_treatment",
	"pharynx_cancer_diagnosis",
	"pharynx_cancer_treatment",

	"vhi_total_score",
	"vhi_functional_score",
	"vhi_physical_score",
	"vhi_emotional_score",
	"vhi_severity",
	"vhi_date_completed",

	"total_recordings",
	"recording_tasks",
	"total_recording_duration_seconds",
	"languages_recorded",
	"first_recording_date",
	"last_recording_date",

	"grbas_ratings_count",

	"demographics_completed",
	"health_history_completed",
	"cancer_assessment_completed",
	"vhi_completed",
	"voice_recordings_available",
	"completeness_percentage",
	"priority_level",

	"doctor_notes",
	"diagnosis",
	"treatment_plan",
	"follow_up_required",
	"recommendations",
}

// ClinicianColumns are left blank for manual annotation.
var ClinicianColumns = map[string]bool{
	"doctor_notes":       true,
	"diagnosis":          true,
	"treatment_plan":     true,
	"follow_up_required": true,
	"recommendations":    true,
}

// Record is one flattened profile. Values line up with Columns.
type Record []string

// Get returns the value of a column, or "" for an unknown column.
func (r Record) Get(column string) string {
	for i, c := range Columns {
		if c == column && i < len(r) {
			return r[i]
		}
	}
	return ""
}

// MarshalJSON writes the record as an object with keys in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(c)
		buf.Write(k)
		buf.WriteByte(':')
		v := ""
		if i < len(r) {
			v = r[i]
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Flatten renders a profile into a Record. It only reads the profile, so the
// same profile always gives the same record.
func Flatten(p *profile.Profile) Record {
	v := make(map[string]string, len(Columns))

	v["patient_id"] = str(p.BasicInfo.UserID)
	v["participant_name"] = str(p.BasicInfo.ParticipantName)
	v["registration_date"] = timestamp(p.BasicInfo.RegistrationDate)
	v["consent_status"] = "Not Accepted"
	if p.BasicInfo.ConsentAccepted {
		v["consent_status"] = "Accepted"
	}
	v["witness_name"] = str(p.BasicInfo.WitnessName)

	if d := p.Demographics; d != nil {
		v["gender"] = str(d.Gender)
		v["age"] = intPtr(d.Age)
		v["education"] = str(d.Education)
		v["occupation"] = str(d.Occupation)
		v["employment"] = str(d.Employment)
		v["income"] = str(d.Income)
		v["marital_status"] = str(d.MaritalStatus)
		v["household_size"] = intPtr(d.HouseholdSize)
		v["location_country"] = str(d.Country)
		v["location_state"] = str(d.State)
		v["location_district"] = str(d.District)
		v["location_city"] = str(d.City)
		v["location_pincode"] = str(d.Pincode)
		v["residence_type"] = str(d.Residence)
		v["transport"] = str(d.Transport)
		v["disability"] = list(d.Disability)
	}

	if h := p.HealthHistory; h != nil {
		v["tobacco_use"] = str(h.TobaccoUse)
		v["tobacco_forms"] = list(h.TobaccoForms)
		v["current_tobacco_status"] = str(h.CurrentTobaccoStatus)
		v["alcohol_use"] = str(h.AlcoholUse)
		v["alcohol_frequency"] = str(h.AlcoholFrequency)
		v["alcohol_rehabilitation"] = str(h.AlcoholRehab)
		v["substance_use"] = str(h.SubstanceUse)
		v["substance_type"] = str(h.SubstanceType)
		v["substance_recovery"] = str(h.SubstanceRecovery)
		v["caffeine_per_day"] = str(h.CaffeinePerDay)
		v["water_intake"] = str(h.WaterIntake)
		v["medical_conditions"] = list(h.MedicalConditions)
		v["current_medications"] = list(h.Medications)
		v["allergies"] = str(h.Allergies)
		v["dental_problems"] = str(h.DentalProblem)
		v["dentures"] = str(h.Dentures)
		v["professional_voice_use"] = str(h.VoiceUse)
		v["voice_occupation"] = str(h.VoiceOccupation)
		v["daily_voice_hours"] = str(h.VoiceHours)
		v["fatigue_score"] = intPtr(h.FatigueScore)
		v["difficulty_today"] = str(h.DifficultyToday)
	}

	if o := p.CancerAssessments.Oral; o != nil {
		v["oral_cancer_diagnosis"] = str(o.DiagnosisSummary())
		v["oral_cancer_treatment"] = str(o.TreatmentSummary())
	}
	if l := p.CancerAssessments.Larynx; l != nil {
		v["larynx_cancer_diagnosis"] = str(l.DiagnosisSummary())
		v["larynx_cancer_treatment"] = str(l.TreatmentSummary())
	}
	if ph := p.CancerAssessments.Pharynx; ph != nil {
		v["pharynx_cancer_diagnosis"] = str(ph.DiagnosisSummary())
		v["pharynx_cancer_treatment"] = str(ph.TreatmentSummary())
	}

	if vhi := p.VoiceHandicapIndex; vhi != nil {
		v["vhi_total_score"] = strconv.Itoa(vhi.TotalScore)
		v["vhi_functional_score"] = strconv.Itoa(vhi.FunctionalSubscore)
		v["vhi_physical_score"] = strconv.Itoa(vhi.PhysicalSubscore)
		v["vhi_emotional_score"] = strconv.Itoa(vhi.EmotionalSubscore)
		v["vhi_severity"] = str(vhi.Severity)
		v["vhi_date_completed"] = timestamp(vhi.DateCompleted)
	}

	va := p.VoiceAnalysis
	v["total_recordings"] = strconv.Itoa(len(va.Recordings))
	v["recording_tasks"] = list(va.TaskTypes)
	v["total_recording_duration_seconds"] = seconds(va.TotalDuration)
	v["languages_recorded"] = list(va.Languages)
	if first, ok := va.FirstRecording(); ok {
		v["first_recording_date"] = timestamp(first)
	}
	if last, ok := va.LastRecording(); ok {
		v["last_recording_date"] = timestamp(last)
	}

	v["grbas_ratings_count"] = strconv.Itoa(len(p.GRBASRatings))

	sections := profile.Sections(p)
	v["demographics_completed"] = yesNo(sections.Demographics)
	v["health_history_completed"] = yesNo(sections.HealthHistory)
	v["cancer_assessment_completed"] = yesNo(sections.CancerAssessment)
	v["vhi_completed"] = yesNo(sections.VHI)
	v["voice_recordings_available"] = yesNo(sections.VoiceRecordings)

	notes := profile.Notes(p)
	v["completeness_percentage"] = strconv.Itoa(notes.CompletenessPercentage)
	v["priority_level"] = str(notes.PriorityLevel)

	rec := make(Record, len(Columns))
	for i, c := range Columns {
		switch {
		case ClinicianColumns[c]:
			rec[i] = ""
		case v[c] == "":
			rec[i] = NA
		default:
			rec[i] = v[c]
		}
	}
	return rec
}

func str(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return NA
	}
	return s
}

func list(items []string) string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return NA
	}
	return strings.Join(out, ", ")
}

func intPtr(n *int) string {
	if n == nil {
		return NA
	}
	return strconv.Itoa(*n)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return NA
	}
	return t.UTC().Format(time.RFC3339)
}

func seconds(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
