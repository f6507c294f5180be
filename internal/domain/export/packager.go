// Package export packages aggregated patient profiles into downloadable
// artifacts: a CSV, a PDF report, converted audio and a ZIP archive with a
// manifest and README.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/voiceintake/intake/internal/domain/profile"
	"github.com/voiceintake/intake/internal/platform/apperr"
	"github.com/voiceintake/intake/internal/platform/audio"
	"github.com/voiceintake/intake/internal/platform/blobstore"
	"github.com/voiceintake/intake/internal/platform/httpx"
	"github.com/voiceintake/intake/internal/platform/metrics"
)

const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
	FormatZIP = "zip"

	AudioWAV      = "wav"
	AudioOriginal = "original"
)

// Archive entry names.
const (
	singleCSVEntry    = "patient_complete_data.csv"
	singleReportEntry = "patient_detailed_report.pdf"
	singleAudioDir    = "voice_recordings"
	manifestEntry     = "voice_recordings/recording_manifest.json"
	readmeEntry       = "README.txt"

	cohortCSVEntry      = "comprehensive_patient_data_for_doctors.csv"
	cohortWorkbookEntry = "comprehensive_patient_data_for_doctors.xlsx"
	cohortReportEntry   = "patient_analysis_report.json"
	cohortGuideEntry    = "audio_analysis_guide.json"
	cohortAudioDir      = "patient_recordings"
)

// Reasons a recording is left out of an export.
const (
	SkipMissingFile     = "missing_file"
	SkipUnreadable      = "unreadable"
	SkipTranscodeFailed = "transcode_failed"
)

// Options control one export.
type Options struct {
	Format       string
	IncludeAudio bool
	AudioFormat  string
	SampleRate   int
	// Range is recorded in the cohort analysis report. Single-patient
	// exports apply it to the profile's dated sections.
	Range httpx.DateRange
}

// Normalize fills defaults and validates the options, listing every problem.
func (o *Options) Normalize(defaultSampleRate int) error {
	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	o.AudioFormat = strings.ToLower(strings.TrimSpace(o.AudioFormat))
	if o.Format == "" {
		o.Format = FormatZIP
	}
	if o.AudioFormat == "" {
		o.AudioFormat = AudioWAV
	}
	if o.SampleRate == 0 {
		o.SampleRate = defaultSampleRate
	}

	var violations []string
	switch o.Format {
	case FormatCSV, FormatPDF, FormatZIP:
	default:
		violations = append(violations, fmt.Sprintf("format must be one of csv, pdf, zip, got %q", o.Format))
	}
	switch o.AudioFormat {
	case AudioWAV, AudioOriginal:
	default:
		violations = append(violations, fmt.Sprintf("audioFormat must be wav or original, got %q", o.AudioFormat))
	}
	if o.SampleRate < 8000 || o.SampleRate > 192000 {
		violations = append(violations, fmt.Sprintf("sampleRate must be between 8000 and 192000, got %d", o.SampleRate))
	}
	if len(violations) > 0 {
		return apperr.Validation("invalid export options", violations)
	}
	return nil
}

// Artifact is a finished export held in memory. The work directory it was
// assembled in is already gone.
type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
	Report      ReportOutcome
	// Manifest is set for single-patient archives.
	Manifest *Manifest
	// Guide is set for cohort archives.
	Guide *AudioGuide
}

// Transcoder converts a recording to mono 16-bit PCM WAV.
type Transcoder interface {
	Transcode(ctx context.Context, source, target string, sampleRate int) (string, error)
}

// Packager builds export artifacts. It holds no per-export state; every
// export gets its own WorkDir.
type Packager struct {
	blobs             blobstore.BlobStore
	transcoder        Transcoder
	tmpRoot           string
	defaultSampleRate int
	logger            zerolog.Logger
	now               func() time.Time

	renderFull     RenderFunc
	renderFallback RenderFunc
}

func NewPackager(blobs blobstore.BlobStore, transcoder Transcoder, tmpRoot string, logger zerolog.Logger) *Packager {
	return &Packager{
		blobs:             blobs,
		transcoder:        transcoder,
		tmpRoot:           tmpRoot,
		defaultSampleRate: audio.DefaultSampleRate,
		logger:            logger.With().Str("component", "export").Logger(),
		now:               time.Now,
		renderFull:        RenderFullReport,
		renderFallback:    RenderSummaryReport,
	}
}

// SetDefaultSampleRate sets the rate used when an export does not name one.
func (p *Packager) SetDefaultSampleRate(rate int) {
	if rate > 0 {
		p.defaultSampleRate = rate
	}
}

// ExportSingle packages one patient. Steps run in a fixed order: flatten,
// CSV, report, audio, assembly. A failing report or recording degrades the
// result but does not abort it.
func (p *Packager) ExportSingle(ctx context.Context, prof *profile.Profile, opts Options) (art *Artifact, err error) {
	start := p.now()
	if err := opts.Normalize(p.defaultSampleRate); err != nil {
		return nil, err
	}
	defer func() { metrics.RecordExport("single", opts.Format, err == nil, time.Since(start)) }()

	log := p.logger.With().Str("user_id", prof.BasicInfo.UserID).Str("format", opts.Format).Logger()
	stem := Sanitize(prof.DisplayName())

	wd, err := NewWorkDir(p.tmpRoot, "export")
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer func() {
		if cerr := wd.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("removing export work dir")
		}
	}()

	record := Flatten(prof)
	csvData, err := RenderCSV([]Record{record})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if opts.Format == FormatCSV {
		return &Artifact{FileName: csvDownloadName(stem), ContentType: "text/csv; charset=utf-8", Data: csvData}, nil
	}

	reportData, outcome := p.renderReport(prof, start, log)
	if opts.Format == FormatPDF {
		if reportData == nil {
			return nil, apperr.Dependency("report renderer", errors.New(outcome.Error))
		}
		return &Artifact{FileName: reportDownloadName(stem), ContentType: "application/pdf", Data: reportData, Report: outcome}, nil
	}

	entries := make([]zipEntry, 0, 8)
	csvPath, err := wd.WriteFile(singleCSVEntry, csvData)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	entries = append(entries, zipEntry{Name: singleCSVEntry, Path: csvPath})
	if reportData != nil {
		reportPath, err := wd.WriteFile(singleReportEntry, reportData)
		if err != nil {
			return nil, apperr.Storage(err)
		}
		entries = append(entries, zipEntry{Name: singleReportEntry, Path: reportPath})
	}

	manifest := &Manifest{
		PatientInfo: ManifestPatient{Name: prof.BasicInfo.ParticipantName, ID: prof.BasicInfo.UserID},
		ExportDate:  start.UTC(),
		AudioFormat: opts.AudioFormat,
		Report:      outcome,
		Recordings:  []ManifestRecording{},
		Skipped:     []SkippedRecording{},
	}
	if opts.AudioFormat == AudioWAV {
		manifest.SampleRate = opts.SampleRate
	}

	if opts.IncludeAudio {
		dir, err := wd.Mkdir(singleAudioDir)
		if err != nil {
			return nil, apperr.Storage(err)
		}
		files, skipped := p.collectAudio(ctx, wd, dir, prof, stem, opts, log)
		for _, f := range files {
			entries = append(entries, zipEntry{Name: path.Join(singleAudioDir, f.FileName), Path: f.Path})
			manifest.Recordings = append(manifest.Recordings, f.ManifestRecording)
		}
		manifest.Skipped = append(manifest.Skipped, skipped...)
	}
	manifest.TotalRecordings = len(manifest.Recordings)

	manifestData, err := marshalIndent(manifest)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	entries = append(entries, zipEntry{Name: manifestEntry, Data: manifestData})
	entries = append(entries, zipEntry{Name: readmeEntry, Data: []byte(singleReadme(prof, manifest, opts))})

	data, err := buildZip(entries, start)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	log.Info().Int("recordings", manifest.TotalRecordings).Int("skipped", len(manifest.Skipped)).
		Str("report", outcome.Status).Msg("patient export assembled")
	return &Artifact{
		FileName:    zipDownloadName(stem),
		ContentType: "application/zip",
		Data:        data,
		Report:      outcome,
		Manifest:    manifest,
	}, nil
}

// ExportCohort packages many patients into one timestamp-named archive. The
// format must be csv or zip.
func (p *Packager) ExportCohort(ctx context.Context, profiles []*profile.Profile, opts Options) (art *Artifact, err error) {
	start := p.now()
	if err := opts.Normalize(p.defaultSampleRate); err != nil {
		return nil, err
	}
	if opts.Format == FormatPDF {
		return nil, apperr.Validation("invalid export options", []string{"format must be csv or zip for a cohort export"})
	}
	if len(profiles) == 0 {
		return nil, ErrNoData
	}
	defer func() { metrics.RecordExport("cohort", opts.Format, err == nil, time.Since(start)) }()

	log := p.logger.With().Str("export", "cohort").Int("patients", len(profiles)).Logger()

	wd, err := NewWorkDir(p.tmpRoot, "cohort")
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer func() {
		if cerr := wd.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("removing export work dir")
		}
	}()

	records := make([]Record, len(profiles))
	for i, prof := range profiles {
		records[i] = Flatten(prof)
	}
	csvData, err := RenderCSV(records)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if opts.Format == FormatCSV {
		return &Artifact{FileName: cohortCSVName(start), ContentType: "text/csv; charset=utf-8", Data: csvData}, nil
	}

	entries := []zipEntry{{Name: cohortCSVEntry, Data: csvData}}
	workbookStatus := "included"
	if xlsx, err := RenderWorkbook(records); err != nil {
		log.Warn().Err(err).Msg("workbook rendering failed, archive will contain the CSV only")
		workbookStatus = "unavailable: " + err.Error()
	} else {
		entries = append(entries, zipEntry{Name: cohortWorkbookEntry, Data: xlsx})
	}

	report := BuildAnalysisReport(profiles, opts, start)
	reportData, err := marshalIndent(report)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	entries = append(entries, zipEntry{Name: cohortReportEntry, Data: reportData})

	var guide *AudioGuide
	if opts.IncludeAudio {
		guide = &AudioGuide{
			ExportDate:   start.UTC(),
			AudioFormat:  opts.AudioFormat,
			Instructions: audioGuideInstructions,
			Files:        []GuideFile{},
			Skipped:      []SkippedRecording{},
		}
		if opts.AudioFormat == AudioWAV {
			guide.SampleRate = opts.SampleRate
		}
		// Distinct user ids can sanitize to the same folder name.
		folders := nameSet{}
		for _, prof := range profiles {
			folder := folders.unique(Sanitize(prof.BasicInfo.UserID), "")
			dir, err := wd.Mkdir(cohortAudioDir, folder)
			if err != nil {
				return nil, apperr.Storage(err)
			}
			files, skipped := p.collectAudio(ctx, wd, dir, prof, Sanitize(prof.DisplayName()), opts, log)
			for _, f := range files {
				entries = append(entries, zipEntry{Name: path.Join(cohortAudioDir, folder, f.FileName), Path: f.Path})
				guide.Files = append(guide.Files, GuideFile{Participant: prof.BasicInfo.UserID, ManifestRecording: f.ManifestRecording})
			}
			guide.Skipped = append(guide.Skipped, skipped...)
		}
		guide.TotalFiles = len(guide.Files)
		if guide.TotalFiles > 0 {
			guideData, err := marshalIndent(guide)
			if err != nil {
				return nil, apperr.Internal(err)
			}
			entries = append(entries, zipEntry{Name: cohortGuideEntry, Data: guideData})
		}
	}

	entries = append(entries, zipEntry{Name: readmeEntry, Data: []byte(cohortReadme(report, guide, workbookStatus, opts))})

	data, err := buildZip(entries, start)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	log.Info().Int("entries", len(entries)).Msg("cohort export assembled")
	return &Artifact{
		FileName:    CohortArchiveName(start),
		ContentType: "application/zip",
		Data:        data,
		Guide:       guide,
	}, nil
}

// ErrNoData is returned for a cohort export with no patients.
var ErrNoData = &apperr.AppError{
	Err:        errors.New("no patient data"),
	Message:    "no patient data matches the export filters",
	Code:       "NO_DATA",
	HTTPStatus: http.StatusNotFound,
}

// renderReport tries the full report, then the summary. Both failing is
// recorded in the outcome; the caller continues without a report.
func (p *Packager) renderReport(prof *profile.Profile, at time.Time, log zerolog.Logger) ([]byte, ReportOutcome) {
	data, err := p.renderFull(prof, at)
	if err == nil {
		metrics.RecordReportStatus(ReportFull)
		return data, ReportOutcome{Status: ReportFull}
	}
	log.Warn().Err(err).Msg("full report failed, rendering summary report")

	data, ferr := p.renderFallback(prof, at)
	if ferr == nil {
		metrics.RecordReportStatus(ReportFallback)
		return data, ReportOutcome{Status: ReportFallback, Error: err.Error()}
	}
	log.Error().Err(ferr).Msg("summary report failed, exporting without a report")
	metrics.RecordReportStatus(ReportUnavailable)
	return nil, ReportOutcome{Status: ReportUnavailable, Error: fmt.Sprintf("full report: %v; summary report: %v", err, ferr)}
}

type audioFile struct {
	ManifestRecording
	Path string
}

// collectAudio copies or transcodes every recording of prof into dir.
// Recordings whose source is missing or cannot be converted are skipped.
func (p *Packager) collectAudio(ctx context.Context, wd *WorkDir, dir string, prof *profile.Profile, stem string, opts Options, log zerolog.Logger) ([]audioFile, []SkippedRecording) {
	var files []audioFile
	var skipped []SkippedRecording
	names := nameSet{}

	for _, rec := range prof.VoiceAnalysis.Recordings {
		if err := ctx.Err(); err != nil {
			skipped = append(skipped, SkippedRecording{RecordingID: rec.ID.String(), Reason: SkipUnreadable, Detail: err.Error()})
			continue
		}
		f, reason, err := p.exportRecording(ctx, wd, dir, rec, stem, names, opts)
		if err != nil {
			log.Warn().Err(err).Str("recording_id", rec.ID.String()).Str("reason", reason).Msg("recording left out of export")
			metrics.RecordSkippedRecording(reason)
			skipped = append(skipped, SkippedRecording{RecordingID: rec.ID.String(), Reason: reason, Detail: err.Error()})
			continue
		}
		files = append(files, *f)
	}
	return files, skipped
}

func (p *Packager) exportRecording(ctx context.Context, wd *WorkDir, dir string, rec profile.RecordingEntry, stem string, names nameSet, opts Options) (*audioFile, string, error) {
	src, _, err := p.blobs.Open(ctx, rec.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, SkipMissingFile, err
		}
		return nil, SkipUnreadable, err
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(rec.FilePath))
	if ext == "" {
		ext = ".mp3"
	}
	base := fmt.Sprintf("%s_%s_%s", stem, Sanitize(rec.TaskType), recordingDay(rec.RecordingDate))

	var name, target string
	if opts.AudioFormat == AudioOriginal {
		name = names.unique(base, ext)
		target = filepath.Join(dir, name)
		if err := copyTo(target, src); err != nil {
			return nil, SkipUnreadable, err
		}
	} else {
		staged := wd.Join(".staging-" + rec.ID.String() + ext)
		if err := copyTo(staged, src); err != nil {
			return nil, SkipUnreadable, err
		}
		defer os.Remove(staged)

		name = names.unique(base, ".wav")
		target = filepath.Join(dir, name)
		if _, err := p.transcoder.Transcode(ctx, staged, target, opts.SampleRate); err != nil {
			return nil, SkipTranscodeFailed, err
		}
	}

	return &audioFile{
		ManifestRecording: ManifestRecording{
			FileName:      name,
			TaskType:      rec.TaskType,
			Language:      rec.Language,
			Duration:      rec.DurationSeconds,
			RecordingDate: rec.RecordingDate,
		},
		Path: target,
	}, "", nil
}

func recordingDay(t time.Time) string {
	if t.IsZero() {
		return "undated"
	}
	return t.UTC().Format("2006-01-02")
}

// copyTo writes r to a new file at dst. A failed copy leaves no file behind.
func copyTo(dst string, r io.Reader) (err error) {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()
	_, err = io.Copy(f, r)
	return err
}
