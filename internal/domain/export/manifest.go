package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/voiceintake/intake/internal/domain/profile"
	"github.com/voiceintake/intake/internal/domain/scoring"
)

type ManifestPatient struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type ManifestRecording struct {
	FileName      string    `json:"fileName"`
	TaskType      string    `json:"taskType"`
	Language      string    `json:"language"`
	Duration      float64   `json:"duration"`
	RecordingDate time.Time `json:"recordingDate"`
}

type SkippedRecording struct {
	RecordingID string `json:"recordingId"`
	Reason      string `json:"reason"`
	Detail      string `json:"detail,omitempty"`
}

// Manifest describes the contents of a single-patient archive. SampleRate
// is zero when recordings keep their original format.
type Manifest struct {
	PatientInfo     ManifestPatient     `json:"patientInfo"`
	ExportDate      time.Time           `json:"exportDate"`
	TotalRecordings int                 `json:"totalRecordings"`
	AudioFormat     string              `json:"audioFormat"`
	SampleRate      int                 `json:"sampleRate,omitempty"`
	Report          ReportOutcome       `json:"report"`
	Recordings      []ManifestRecording `json:"recordings"`
	Skipped         []SkippedRecording  `json:"skipped"`
}

type GuideFile struct {
	Participant string `json:"participant"`
	ManifestRecording
}

// AudioGuide lists the recordings of a cohort archive.
type AudioGuide struct {
	ExportDate   time.Time          `json:"exportDate"`
	TotalFiles   int                `json:"totalFiles"`
	AudioFormat  string             `json:"audioFormat"`
	SampleRate   int                `json:"sampleRate,omitempty"`
	Instructions string             `json:"instructions"`
	Files        []GuideFile        `json:"files"`
	Skipped      []SkippedRecording `json:"skipped"`
}

const audioGuideInstructions = "Audio files are organized by participant ID and task type. " +
	"Listen to recordings chronologically for each patient to assess voice progression."

type ExportParameters struct {
	StartDate    *time.Time `json:"startDate,omitempty"`
	EndDate      *time.Time `json:"endDate,omitempty"`
	Format       string     `json:"format"`
	IncludeAudio bool       `json:"includeAudio"`
	AudioFormat  string     `json:"audioFormat"`
	SampleRate   int        `json:"sampleRate"`
}

type PatientSummary struct {
	WithVoiceRecordings int     `json:"withVoiceRecordings"`
	HighPriority        int     `json:"highPriority"`
	ModeratePriority    int     `json:"moderatePriority"`
	LowPriority         int     `json:"lowPriority"`
	AverageCompleteness float64 `json:"averageCompleteness"`
}

type RiskFactorAnalysis struct {
	TobaccoUsers           int `json:"tobaccoUsers"`
	AlcoholUsers           int `json:"alcoholUsers"`
	ProfessionalVoiceUsers int `json:"professionalVoiceUsers"`
}

type VHIDistribution struct {
	Mild     int `json:"mild"`
	Moderate int `json:"moderate"`
	Severe   int `json:"severe"`
}

// AnalysisReport summarizes a cohort.
type AnalysisReport struct {
	ExportDate                time.Time          `json:"exportDate"`
	TotalPatients             int                `json:"totalPatients"`
	ExportParameters          ExportParameters   `json:"exportParameters"`
	PatientSummary            PatientSummary     `json:"patientSummary"`
	RiskFactorAnalysis        RiskFactorAnalysis `json:"riskFactorAnalysis"`
	VoiceHandicapDistribution VHIDistribution    `json:"voiceHandicapDistribution"`
}

// BuildAnalysisReport computes the cohort summary. Opts should already be
// normalized.
func BuildAnalysisReport(profiles []*profile.Profile, opts Options, at time.Time) AnalysisReport {
	r := AnalysisReport{
		ExportDate:    at.UTC(),
		TotalPatients: len(profiles),
		ExportParameters: ExportParameters{
			Format:       opts.Format,
			IncludeAudio: opts.IncludeAudio,
			AudioFormat:  opts.AudioFormat,
			SampleRate:   opts.SampleRate,
		},
	}
	if !opts.Range.Start.IsZero() {
		s := opts.Range.Start.UTC()
		r.ExportParameters.StartDate = &s
	}
	if !opts.Range.End.IsZero() {
		e := opts.Range.End.UTC()
		r.ExportParameters.EndDate = &e
	}

	completeness := 0
	for _, p := range profiles {
		notes := profile.Notes(p)
		completeness += notes.CompletenessPercentage
		switch notes.PriorityLevel {
		case scoring.PriorityHigh:
			r.PatientSummary.HighPriority++
		case scoring.PriorityModerate:
			r.PatientSummary.ModeratePriority++
		default:
			r.PatientSummary.LowPriority++
		}
		if len(p.VoiceAnalysis.Recordings) > 0 {
			r.PatientSummary.WithVoiceRecordings++
		}
		if p.TobaccoAffirmative() {
			r.RiskFactorAnalysis.TobaccoUsers++
		}
		if p.AlcoholAffirmative() {
			r.RiskFactorAnalysis.AlcoholUsers++
		}
		if p.ProfessionalVoiceUse() {
			r.RiskFactorAnalysis.ProfessionalVoiceUsers++
		}
		if v := p.VoiceHandicapIndex; v != nil {
			switch v.Severity {
			case scoring.SeverityMild:
				r.VoiceHandicapDistribution.Mild++
			case scoring.SeverityModerate:
				r.VoiceHandicapDistribution.Moderate++
			case scoring.SeveritySevere:
				r.VoiceHandicapDistribution.Severe++
			}
		}
	}
	if len(profiles) > 0 {
		r.PatientSummary.AverageCompleteness = float64(completeness) / float64(len(profiles))
	}
	return r
}

func marshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// zipEntry is either a file in the work directory (Path) or in-memory Data.
type zipEntry struct {
	Name string
	Path string
	Data []byte
}

func buildZip(entries []zipEntry, modified time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			zw.Close()
			return nil, fmt.Errorf("add %s: %w", e.Name, err)
		}
		if e.Path == "" {
			_, err = w.Write(e.Data)
		} else {
			err = copyFile(w, e.Path)
		}
		if err != nil {
			zw.Close()
			return nil, fmt.Errorf("write %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func copyFile(w io.Writer, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func singleReadme(p *profile.Profile, m *Manifest, opts Options) string {
	var b strings.Builder
	b.WriteString("COMPREHENSIVE PATIENT DATA EXPORT\n")
	b.WriteString("=================================\n\n")
	fmt.Fprintf(&b, "Patient: %s\n", p.DisplayName())
	fmt.Fprintf(&b, "Patient ID: %s\n", p.BasicInfo.UserID)
	fmt.Fprintf(&b, "Export Date: %s\n\n", m.ExportDate.Format(time.RFC3339))

	b.WriteString("FILES INCLUDED\n--------------\n")
	fmt.Fprintf(&b, "- %s: complete patient data, one row, for spreadsheet analysis\n", singleCSVEntry)
	switch m.Report.Status {
	case ReportFull:
		fmt.Fprintf(&b, "- %s: detailed clinical report\n", singleReportEntry)
	case ReportFallback:
		fmt.Fprintf(&b, "- %s: summary report only; the detailed report failed (%s)\n", singleReportEntry, m.Report.Error)
	default:
		fmt.Fprintf(&b, "- no report: report generation failed (%s). Use %s for full detail.\n", m.Report.Error, singleCSVEntry)
	}
	fmt.Fprintf(&b, "- %s: recording metadata and report status\n", manifestEntry)
	if m.TotalRecordings > 0 {
		fmt.Fprintf(&b, "- %s/: %d voice recording(s)\n", singleAudioDir, m.TotalRecordings)
	} else if opts.IncludeAudio {
		b.WriteString("- no voice recordings could be included\n")
	}
	b.WriteString("\n")

	b.WriteString("CSV DATA\n--------\n")
	b.WriteString("Demographics, health history, cancer assessments, VHI scores, the voice\n")
	b.WriteString("recording summary, completion flags, completeness and priority. Missing\n")
	fmt.Fprintf(&b, "values are written as %q.\n", NA)
	b.WriteString(clinicianNote())
	b.WriteString("\n")

	if m.TotalRecordings > 0 {
		b.WriteString("VOICE RECORDINGS\n----------------\n")
		if m.AudioFormat == AudioWAV {
			fmt.Fprintf(&b, "Recordings are mono 16-bit PCM WAV at %d Hz.\n", m.SampleRate)
		} else {
			b.WriteString("Recordings are in the format they were uploaded in.\n")
		}
		b.WriteString("Files are named <patient>_<task>_<date>.\n")
	}
	if len(m.Skipped) > 0 {
		fmt.Fprintf(&b, "%d recording(s) were left out; see the manifest for reasons.\n", len(m.Skipped))
	}
	return b.String()
}

func cohortReadme(r AnalysisReport, g *AudioGuide, workbookStatus string, opts Options) string {
	var b strings.Builder
	b.WriteString("PATIENT COHORT EXPORT FOR CLINICAL ANALYSIS\n")
	b.WriteString("===========================================\n\n")
	fmt.Fprintf(&b, "Export Date: %s\n", r.ExportDate.Format(time.RFC3339))
	fmt.Fprintf(&b, "Patients: %d\n", r.TotalPatients)
	if p := r.ExportParameters; p.StartDate != nil || p.EndDate != nil {
		fmt.Fprintf(&b, "Date Range: %s to %s\n", dateParam(p.StartDate), dateParam(p.EndDate))
	}
	b.WriteString("\nFILES INCLUDED\n--------------\n")
	fmt.Fprintf(&b, "- %s: one row per patient\n", cohortCSVEntry)
	if workbookStatus == "included" {
		fmt.Fprintf(&b, "- %s: the same data as a workbook\n", cohortWorkbookEntry)
	} else {
		fmt.Fprintf(&b, "- no workbook (%s)\n", workbookStatus)
	}
	fmt.Fprintf(&b, "- %s: cohort summary, risk factors, VHI distribution\n", cohortReportEntry)
	if g != nil && g.TotalFiles > 0 {
		fmt.Fprintf(&b, "- %s/<userId>/: %d recording(s)\n", cohortAudioDir, g.TotalFiles)
		fmt.Fprintf(&b, "- %s: recording metadata\n", cohortGuideEntry)
		b.WriteString("  Folders are named after the user id; ids that clean up to the same\n")
		b.WriteString("  folder name get a _2, _3 suffix. The guide maps each file to its user id.\n")
	}
	if g != nil && len(g.Skipped) > 0 {
		fmt.Fprintf(&b, "%d recording(s) were left out.\n", len(g.Skipped))
	}
	b.WriteString("\n")
	b.WriteString(clinicianNote())
	b.WriteString("\nSUMMARY\n-------\n")
	fmt.Fprintf(&b, "High priority: %d\nModerate priority: %d\nLow priority: %d\n",
		r.PatientSummary.HighPriority, r.PatientSummary.ModeratePriority, r.PatientSummary.LowPriority)
	fmt.Fprintf(&b, "Average completeness: %.1f%%\n", r.PatientSummary.AverageCompleteness)
	if opts.IncludeAudio && opts.AudioFormat == AudioWAV {
		fmt.Fprintf(&b, "\nRecordings are mono 16-bit PCM WAV at %d Hz.\n", opts.SampleRate)
	}
	return b.String()
}

// clinicianNote names the CSV columns exported empty for the care team.
func clinicianNote() string {
	var cols []string
	for _, c := range Columns {
		if ClinicianColumns[c] {
			cols = append(cols, c)
		}
	}
	return "The clinician columns (" + strings.Join(cols, ", ") + ") are exported empty\n" +
		"for manual annotation; no clinician input is collected at intake.\n"
}

func dateParam(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.Format("2006-01-02")
}
