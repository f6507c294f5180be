package admin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voiceintake/intake/internal/domain/export"
	"github.com/voiceintake/intake/internal/domain/intake"
	"github.com/voiceintake/intake/internal/domain/profile"
	"github.com/voiceintake/intake/internal/domain/voice"
	"github.com/voiceintake/intake/internal/platform/apperr"
	"github.com/voiceintake/intake/internal/platform/audio"
	"github.com/voiceintake/intake/internal/platform/auth"
	"github.com/voiceintake/intake/internal/platform/httpx"
	"github.com/voiceintake/intake/internal/platform/reporting"
	"github.com/voiceintake/intake/pkg/pagination"
)

// PatientStore is the part of the intake service the dashboard uses.
type PatientStore interface {
	GetPatient(ctx context.Context, userID string) (*intake.Patient, error)
	SearchPatients(ctx context.Context, q intake.PatientQuery) ([]*intake.Patient, int, error)
	UpdatePatient(ctx context.Context, userID string, u intake.PatientUpdate) (*intake.Patient, error)
	DeletePatient(ctx context.Context, userID string) error
}

type ProfileBuilder interface {
	Aggregate(ctx context.Context, userID string, opts profile.Options) (*profile.Profile, error)
}

type RecordingStore interface {
	SearchRecordings(ctx context.Context, q voice.RecordingQuery) ([]*voice.Recording, error)
	PatientRecordings(ctx context.Context, userID string) ([]*voice.Recording, error)
	GetRecording(ctx context.Context, id uuid.UUID) (*voice.Recording, error)
	OpenRecording(ctx context.Context, rec *voice.Recording) (io.ReadCloser, error)
}

type Exporter interface {
	ExportSingle(ctx context.Context, prof *profile.Profile, opts export.Options) (*export.Artifact, error)
	ExportCohort(ctx context.Context, profiles []*profile.Profile, opts export.Options) (*export.Artifact, error)
}

type MeasureEvaluator interface {
	Evaluate(ctx context.Context, id string) (*reporting.MeasureReport, error)
}

type Authenticator interface {
	Login(username, password string) (*auth.Token, bool, error)
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Patients   PatientStore
	Profiles   ProfileBuilder
	Recordings RecordingStore
	Exporter   Exporter
	Measures   MeasureEvaluator
	Auth       Authenticator
	Transcoder export.Transcoder
	// TmpRoot is where WAV downloads are staged.
	TmpRoot           string
	DefaultSampleRate int
}

type Service struct {
	patients   PatientStore
	profiles   ProfileBuilder
	recordings RecordingStore
	exporter   Exporter
	measures   MeasureEvaluator
	auth       Authenticator
	transcoder export.Transcoder
	tmpRoot    string
	sampleRate int
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(d Deps, logger zerolog.Logger) *Service {
	rate := d.DefaultSampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	return &Service{
		patients:   d.Patients,
		profiles:   d.Profiles,
		recordings: d.Recordings,
		exporter:   d.Exporter,
		measures:   d.Measures,
		auth:       d.Auth,
		transcoder: d.Transcoder,
		tmpRoot:    d.TmpRoot,
		sampleRate: rate,
		logger:     logger.With().Str("component", "admin").Logger(),
		now:        time.Now,
	}
}

// -- Login --

func (s *Service) Login(req LoginRequest) (*LoginResponse, error) {
	var violations []string
	if strings.TrimSpace(req.Username) == "" {
		violations = append(violations, "username is required")
	}
	if req.Password == "" {
		violations = append(violations, "password is required")
	}
	if len(violations) > 0 {
		return nil, apperr.Validation("invalid login request", violations)
	}
	tok, ok, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		s.logger.Warn().Str("username", req.Username).Msg("admin login rejected")
		return nil, apperr.Unauthorized("invalid credentials")
	}
	return newLoginResponse(tok), nil
}

// -- Patient analysis --

// AnalysisQuery selects the patients of the analysis view. Range filters on
// registration date.
type AnalysisQuery struct {
	PatientID string
	Range     httpx.DateRange
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

var analysisSortKeys = map[string]bool{"createdAt": true, "participantName": true, "userId": true}

func sortViolations(sortBy, sortOrder string, keys map[string]bool) []string {
	var out []string
	if sortBy != "" && !keys[sortBy] {
		allowed := make([]string, 0, len(keys))
		for k := range keys {
			allowed = append(allowed, k)
		}
		sort.Strings(allowed)
		out = append(out, fmt.Sprintf("sortBy must be one of %s, got %q", strings.Join(allowed, ", "), sortBy))
	}
	switch strings.ToLower(sortOrder) {
	case "", "asc", "desc":
	default:
		out = append(out, fmt.Sprintf("sortOrder must be asc or desc, got %q", sortOrder))
	}
	return out
}

func profileOptions(r httpx.DateRange) profile.Options {
	return profile.Options{
		Range:       r,
		DownloadURL: func(rec *voice.Recording) string { return DownloadURL(rec.ID) },
	}
}

func (s *Service) AnalyzePatients(ctx context.Context, q AnalysisQuery) (*PatientAnalysis, error) {
	if v := sortViolations(q.SortBy, q.SortOrder, analysisSortKeys); len(v) > 0 {
		return nil, apperr.Validation("invalid analysis query", v)
	}
	patients, total, err := s.patients.SearchPatients(ctx, intake.PatientQuery{
		Term:      strings.TrimSpace(q.PatientID),
		From:      q.Range.Start,
		To:        q.Range.End,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
	if err != nil {
		return nil, err
	}
	profiles, err := s.aggregateAll(ctx, patients, profileOptions(httpx.DateRange{}))
	if err != nil {
		return nil, err
	}
	return &PatientAnalysis{
		Patients: profiles,
		Summary:  summarize(profiles, total),
		Total:    total,
		Limit:    q.Limit,
		Offset:   q.Offset,
		HasMore:  pagination.Params{Limit: q.Limit, Offset: q.Offset}.HasMore(len(patients), total),
	}, nil
}

// aggregateAll builds a profile for every patient. A patient deleted after
// the search is left out.
func (s *Service) aggregateAll(ctx context.Context, patients []*intake.Patient, opts profile.Options) ([]*profile.Profile, error) {
	out := make([]*profile.Profile, 0, len(patients))
	for _, pt := range patients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := s.profiles.Aggregate(ctx, pt.UserID, opts)
		if apperr.IsNotFound(err) {
			s.logger.Debug().Str("user_id", pt.UserID).Msg("patient vanished during aggregation")
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) PatientProfile(ctx context.Context, userID string, r httpx.DateRange) (*profile.Profile, error) {
	return s.profiles.Aggregate(ctx, userID, profileOptions(r))
}

// -- Exports --

func (s *Service) ExportPatient(ctx context.Context, userID string, opts export.Options) (*export.Artifact, error) {
	p, err := s.profiles.Aggregate(ctx, userID, profileOptions(opts.Range))
	if err != nil {
		return nil, err
	}
	return s.exporter.ExportSingle(ctx, p, opts)
}

// cohort aggregates every patient registered inside r, oldest first.
func (s *Service) cohort(ctx context.Context, r httpx.DateRange) ([]*profile.Profile, error) {
	patients, _, err := s.patients.SearchPatients(ctx, intake.PatientQuery{
		From:      r.Start,
		To:        r.End,
		SortBy:    "createdAt",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, err
	}
	return s.aggregateAll(ctx, patients, profileOptions(httpx.DateRange{}))
}

func (s *Service) ExportCohort(ctx context.Context, opts export.Options) (*export.Artifact, error) {
	profiles, err := s.cohort(ctx, opts.Range)
	if err != nil {
		return nil, err
	}
	return s.exporter.ExportCohort(ctx, profiles, opts)
}

// CohortData is the inline (format=json) form of a cohort export.
func (s *Service) CohortData(ctx context.Context, opts export.Options) (*CohortData, error) {
	opts.Format = ""
	if err := opts.Normalize(s.sampleRate); err != nil {
		return nil, err
	}
	opts.Format = "json"
	profiles, err := s.cohort(ctx, opts.Range)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, export.ErrNoData
	}
	rows := make([]export.Record, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, export.Flatten(p))
	}
	return &CohortData{
		Patients:       rows,
		AnalysisReport: export.BuildAnalysisReport(profiles, opts, s.now()),
	}, nil
}

// -- Statistics --

func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	reports := map[string]*reporting.MeasureReport{}
	for _, id := range []string{
		reporting.MeasureTableCounts,
		reporting.MeasureVHISeverity,
		reporting.MeasureCompletion,
		reporting.MeasureRecordingTasks,
		reporting.MeasureConditionAssignments,
	} {
		r, err := s.measures.Evaluate(ctx, id)
		if err != nil {
			if _, ok := apperr.As(err); ok {
				return nil, err
			}
			return nil, apperr.Dependency("reporting", err)
		}
		reports[id] = r
	}

	st := &Statistics{
		Counts:               tableCounts(reports[reporting.MeasureTableCounts]),
		VHISeverity:          severityDistribution(reports[reporting.MeasureVHISeverity]),
		Completion:           completion(reports[reporting.MeasureCompletion]),
		RecordingTasks:       []TaskLanguageCount{},
		ConditionAssignments: []ConditionCount{},
		GeneratedAt:          s.now().UTC(),
	}
	for _, row := range reports[reporting.MeasureRecordingTasks].Results {
		st.RecordingTasks = append(st.RecordingTasks, TaskLanguageCount{
			TaskType: text(row, "task_type"),
			Language: text(row, "language"),
			Total:    reporting.Int(row, "total"),
		})
	}
	for _, row := range reports[reporting.MeasureConditionAssignments].Results {
		st.ConditionAssignments = append(st.ConditionAssignments, ConditionCount{
			Condition: text(row, "condition"),
			Status:    text(row, "status"),
			Total:     reporting.Int(row, "total"),
		})
	}
	return st, nil
}

// -- Recordings --

var recordingSortKeys = map[string]bool{"recordingDate": true, "userId": true, "taskType": true, "duration": true}

func (s *Service) Recordings(ctx context.Context, q voice.RecordingQuery) (*RecordingsOverview, error) {
	if v := sortViolations(q.SortBy, q.SortOrder, recordingSortKeys); len(v) > 0 {
		return nil, apperr.Validation("invalid recording query", v)
	}
	recs, err := s.recordings.SearchRecordings(ctx, q)
	if err != nil {
		return nil, err
	}
	return overview(recs), nil
}

func (s *Service) PatientRecordings(ctx context.Context, userID string) ([]RecordingView, error) {
	recs, err := s.recordings.PatientRecordings(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]RecordingView, 0, len(recs))
	for _, r := range recs {
		out = append(out, newRecordingView(r))
	}
	return out, nil
}

// OpenRecording opens the stored file of a recording. The caller closes the
// reader.
func (s *Service) OpenRecording(ctx context.Context, id uuid.UUID) (*voice.Recording, io.ReadCloser, error) {
	rec, err := s.recordings.GetRecording(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.recordings.OpenRecording(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	return rec, rc, nil
}

// WAVFile is a transcoded recording staged in its own work directory.
// Close removes both.
type WAVFile struct {
	Name string
	Size int64
	*os.File
	wd *export.WorkDir
}

func (f *WAVFile) Close() error {
	err := f.File.Close()
	if werr := f.wd.Close(); err == nil {
		err = werr
	}
	return err
}

// RecordingWAV transcodes a recording to WAV at sampleRate, or at the
// default rate when sampleRate is zero.
func (s *Service) RecordingWAV(ctx context.Context, id uuid.UUID, sampleRate int) (_ *WAVFile, err error) {
	if sampleRate == 0 {
		sampleRate = s.sampleRate
	}
	if sampleRate < 8000 || sampleRate > 192000 {
		return nil, apperr.Validation("invalid download request",
			[]string{fmt.Sprintf("sampleRate must be between 8000 and 192000, got %d", sampleRate)})
	}
	rec, rc, err := s.OpenRecording(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	wd, err := export.NewWorkDir(s.tmpRoot, "wav")
	if err != nil {
		return nil, apperr.Storage(err)
	}
	defer func() {
		if err != nil {
			wd.Close()
		}
	}()

	ext := strings.ToLower(filepath.Ext(rec.AudioFilePath))
	if ext == "" {
		ext = ".mp3"
	}
	source := wd.Join("source" + ext)
	if err = stage(source, rc); err != nil {
		return nil, apperr.Storage(err)
	}
	target, err := s.transcoder.Transcode(ctx, source, wd.Join("recording.wav"), sampleRate)
	if err != nil {
		return nil, audio.AppError(err)
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, apperr.Storage(err)
	}
	name := fmt.Sprintf("%s_%s_%s.wav", export.Sanitize(rec.ParticipantName), export.Sanitize(rec.TaskType),
		rec.RecordingDate.UTC().Format("2006-01-02"))
	return &WAVFile{Name: name, Size: info.Size(), File: f, wd: wd}, nil
}

func stage(dst string, r io.Reader) error {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// -- Patient management --

func (s *Service) UpdatePatient(ctx context.Context, userID string, u intake.PatientUpdate) (*intake.Patient, error) {
	return s.patients.UpdatePatient(ctx, userID, u)
}

func (s *Service) DeletePatient(ctx context.Context, userID string) error {
	if err := s.patients.DeletePatient(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Msg("patient deleted")
	return nil
}

// SubmitNotes validates clinical notes for an existing patient and returns
// them stamped with the submission time.
func (s *Service) SubmitNotes(ctx context.Context, userID, submittedBy string, n ClinicalNotes) (*SubmittedNotes, error) {
	if v := n.violations(); len(v) > 0 {
		return nil, apperr.Validation("invalid clinical notes", v)
	}
	if _, err := s.patients.GetPatient(ctx, userID); err != nil {
		return nil, err
	}
	return &SubmittedNotes{
		UserID:        userID,
		ClinicalNotes: n,
		SubmittedBy:   submittedBy,
		SubmittedAt:   s.now().UTC(),
	}, nil
}
