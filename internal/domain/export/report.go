package export

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/voiceintake/intake/internal/domain/profile"
)

// Report statuses recorded in the manifest and README.
const (
	ReportFull        = "full"
	ReportFallback    = "fallback"
	ReportUnavailable = "unavailable"
)

// ReportOutcome describes which report an export contains.
type ReportOutcome struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// RenderFunc renders a report for one profile.
type RenderFunc func(p *profile.Profile, generatedAt time.Time) ([]byte, error)

var errEmptyReport = errors.New("renderer produced an empty document")

// reportDoc wraps fpdf with the few layout helpers both reports use. Text
// goes through a cp1252 translator because only the core fonts are used.
type reportDoc struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func newReportDoc(title string, generatedAt time.Time) *reportDoc {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.SetTitle(title, true)
	pdf.SetCreator("voice intake", true)
	pdf.SetCreationDate(generatedAt)
	pdf.AliasNbPages("")
	d := &reportDoc{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-14)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	return d
}

func (d *reportDoc) title(text, sub string) {
	d.pdf.SetFont("Helvetica", "B", 18)
	d.pdf.CellFormat(0, 10, d.tr(text), "", 1, "C", false, 0, "")
	if sub != "" {
		d.pdf.SetFont("Helvetica", "", 10)
		d.pdf.CellFormat(0, 6, d.tr(sub), "", 1, "C", false, 0, "")
	}
	d.pdf.Ln(6)
}

func (d *reportDoc) heading(text string) {
	d.pdf.Ln(2)
	d.pdf.SetFont("Helvetica", "B", 13)
	d.pdf.CellFormat(0, 8, d.tr(text), "B", 1, "L", false, 0, "")
	d.pdf.Ln(2)
}

func (d *reportDoc) field(label, value string) {
	if strings.TrimSpace(value) == "" {
		value = NA
	}
	d.pdf.SetFont("Helvetica", "B", 10)
	d.pdf.CellFormat(55, 6, d.tr(label+":"), "", 0, "L", false, 0, "")
	d.pdf.SetFont("Helvetica", "", 10)
	d.pdf.MultiCell(0, 6, d.tr(value), "", "L", false)
}

func (d *reportDoc) text(size float64, s string) {
	d.pdf.SetFont("Helvetica", "", size)
	d.pdf.MultiCell(0, 5, d.tr(s), "", "L", false)
}

func (d *reportDoc) output() ([]byte, error) {
	if err := d.pdf.Error(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, errEmptyReport
	}
	return buf.Bytes(), nil
}

// RenderFullReport renders the narrative patient report.
func RenderFullReport(p *profile.Profile, generatedAt time.Time) ([]byte, error) {
	d := newReportDoc("Comprehensive Patient Report", generatedAt)
	d.title("Comprehensive Patient Report", "Generated on "+generatedAt.UTC().Format("2006-01-02 15:04 MST"))

	d.heading("Patient Information")
	d.field("Name", p.BasicInfo.ParticipantName)
	d.field("Patient ID", p.BasicInfo.UserID)
	d.field("Witness", p.BasicInfo.WitnessName)
	d.field("Consent", map[bool]string{true: "Accepted", false: "Not Accepted"}[p.BasicInfo.ConsentAccepted])
	d.field("Registration Date", dateOrNA(p.BasicInfo.RegistrationDate))

	if dm := p.Demographics; dm != nil {
		d.heading("Demographics")
		d.field("Gender", dm.Gender)
		d.field("Age", optInt(dm.Age))
		d.field("Education", dm.Education)
		d.field("Occupation", dm.Occupation)
		d.field("Employment", dm.Employment)
		d.field("Income", dm.Income)
		d.field("Marital Status", dm.MaritalStatus)
		d.field("Location", joinKnown(dm.City, dm.District, dm.State, dm.Country))
	}

	if h := p.HealthHistory; h != nil {
		d.heading("Health History")
		d.field("Tobacco Use", joinKnown(h.TobaccoUse, h.CurrentTobaccoStatus))
		d.field("Tobacco Forms", strings.Join(h.TobaccoForms, ", "))
		d.field("Alcohol Use", joinKnown(h.AlcoholUse, h.AlcoholFrequency))
		d.field("Medical Conditions", strings.Join(h.MedicalConditions, ", "))
		d.field("Medications", strings.Join(h.Medications, ", "))
		d.field("Professional Voice Use", h.VoiceUse)
		d.field("Voice Hours per Day", h.VoiceHours)
	}

	if v := p.VoiceHandicapIndex; v != nil {
		d.heading("Voice Handicap Index (VHI-30)")
		d.field("Total Score", strconv.Itoa(v.TotalScore))
		d.field("Functional", strconv.Itoa(v.FunctionalSubscore))
		d.field("Physical", strconv.Itoa(v.PhysicalSubscore))
		d.field("Emotional", strconv.Itoa(v.EmotionalSubscore))
		d.field("Severity", v.Severity)
		d.field("Completed", dateOrNA(v.DateCompleted))
	}

	va := p.VoiceAnalysis
	d.heading("Voice Recordings")
	if len(va.Recordings) == 0 {
		d.text(10, "No voice recordings are available for this patient.")
	} else {
		d.field("Total Recordings", strconv.Itoa(len(va.Recordings)))
		d.field("Task Types", strings.Join(va.TaskTypes, ", "))
		d.field("Languages", strings.Join(va.Languages, ", "))
		d.field("Total Duration", fmt.Sprintf("%s s (%d min)", seconds(va.TotalDuration), int(math.Round(va.TotalDuration/60))))
		d.pdf.Ln(2)
		for i, r := range va.Recordings {
			d.text(9, fmt.Sprintf("%d. %s  Task: %s  Language: %s  Duration: %ss",
				i+1, dateOrNA(r.RecordingDate), r.TaskType, r.Language, seconds(r.DurationSeconds)))
		}
	}

	if ca := p.CancerAssessments; ca.Any() {
		d.heading("Cancer Assessments")
		if ca.Oral != nil {
			d.field("Oral Cavity", joinKnown(ca.Oral.DiagnosisSummary(), ca.Oral.TreatmentSummary()))
		}
		if ca.Larynx != nil {
			d.field("Larynx/Hypopharynx", joinKnown(ca.Larynx.DiagnosisSummary(), ca.Larynx.TreatmentSummary()))
		}
		if ca.Pharynx != nil {
			d.field("Pharynx", joinKnown(ca.Pharynx.DiagnosisSummary(), ca.Pharynx.TreatmentSummary()))
		}
	}

	d.heading("Clinician Ratings")
	d.field("GRBAS Ratings", strconv.Itoa(len(p.GRBASRatings)))

	notes := profile.Notes(p)
	d.heading("Analysis")
	d.field("Completeness", fmt.Sprintf("%d%%", notes.CompletenessPercentage))
	d.field("Priority", notes.PriorityLevel)
	for _, r := range notes.RiskFactors {
		d.text(10, fmt.Sprintf("Risk: %s (%s) %s", r.Type, r.Severity, r.Details))
	}
	for _, c := range notes.VoiceConcerns {
		d.text(10, fmt.Sprintf("Concern: %s (%s priority)", c.Type, c.Priority))
	}
	for _, r := range notes.Recommendations {
		d.text(10, fmt.Sprintf("Recommendation: %s. %s", r.Type, r.Description))
	}

	d.heading("Clinical Notes")
	for _, label := range []string{"Doctor Notes", "Diagnosis", "Treatment Plan", "Follow-up Required", "Recommendations"} {
		d.pdf.SetFont("Helvetica", "B", 10)
		d.pdf.CellFormat(0, 6, label+":", "", 1, "L", false, 0, "")
		d.pdf.CellFormat(0, 10, "", "B", 1, "L", false, 0, "")
		d.pdf.Ln(2)
	}

	return d.output()
}

// RenderSummaryReport renders the one-page report used when the full report
// cannot be produced.
func RenderSummaryReport(p *profile.Profile, generatedAt time.Time) ([]byte, error) {
	d := newReportDoc("Patient Summary Report", generatedAt)
	d.title("Patient Summary Report", "Generated on "+generatedAt.UTC().Format("2006-01-02 15:04 MST"))

	d.heading("Patient")
	d.field("Name", p.BasicInfo.ParticipantName)
	d.field("Patient ID", p.BasicInfo.UserID)

	s := profile.Sections(p)
	d.heading("Assessment Completion")
	d.field("Demographics", yesNo(s.Demographics))
	d.field("Health History", yesNo(s.HealthHistory))
	d.field("Cancer Assessment", yesNo(s.CancerAssessment))
	d.field("Voice Handicap Index", yesNo(s.VHI))
	d.field("Voice Recordings", yesNo(s.VoiceRecordings))

	d.pdf.Ln(4)
	d.text(10, "The detailed report could not be generated. See "+singleCSVEntry+" for the complete patient data.")
	return d.output()
}

func dateOrNA(t time.Time) string {
	if t.IsZero() {
		return NA
	}
	return t.UTC().Format("2006-01-02")
}

func optInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func joinKnown(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
