package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voiceintake/intake/internal/domain/intake"
	"github.com/voiceintake/intake/internal/platform/apperr"
	"github.com/voiceintake/intake/internal/platform/blobstore"
	"github.com/voiceintake/intake/internal/platform/db"
	"github.com/voiceintake/intake/internal/platform/metrics"
)

// PatientLookup resolves the patient a submission belongs to.
type PatientLookup interface {
	GetByUserID(ctx context.Context, userID string) (*intake.Patient, error)
}

type Service struct {
	recordings  RecordingRepository
	assignments AssignmentRepository
	progress    ProgressRepository
	feedback    FeedbackRepository
	patients    PatientLookup
	blobs       blobstore.BlobStore
	txb         db.TxBeginner
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(
	recordings RecordingRepository,
	assignments AssignmentRepository,
	progress ProgressRepository,
	feedback FeedbackRepository,
	patients PatientLookup,
	blobs blobstore.BlobStore,
	logger zerolog.Logger,
) *Service {
	return &Service{
		recordings:  recordings,
		assignments: assignments,
		progress:    progress,
		feedback:    feedback,
		patients:    patients,
		blobs:       blobs,
		logger:      logger,
		now:         time.Now,
	}
}

// SetTxBeginner makes multi-row writes transactional.
func (s *Service) SetTxBeginner(b db.TxBeginner) {
	s.txb = b
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txb == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.txb, fn)
}

func (s *Service) requirePatient(ctx context.Context, userID string) error {
	_, err := s.patients.GetByUserID(ctx, userID)
	return err
}

func sessionViolations(userID, sessionID string) []string {
	var out []string
	if strings.TrimSpace(userID) == "" {
		out = append(out, "userId is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		out = append(out, "sessionId is required")
	}
	return out
}

// -- Recordings --

// UploadRecording stores the audio in the blob store, then records its
// metadata. A task assignment for the same session, if any, gets the task
// marked completed in the same transaction. The stored file is removed when
// the metadata cannot be written.
func (s *Service) UploadRecording(ctx context.Context, up RecordingUpload) (*Recording, error) {
	violations := sessionViolations(up.UserID, up.SessionID)
	if !validTaskType(up.TaskType) {
		violations = append(violations, fmt.Sprintf("taskType %q is not a known task", up.TaskType))
	}
	if !validLanguage(up.Language) {
		violations = append(violations, "language must be en or ml")
	}
	if up.DurationSeconds < 0 {
		violations = append(violations, "durationSeconds must not be negative")
	}
	if up.Content == nil {
		violations = append(violations, "audio file is required")
	}
	if len(violations) > 0 {
		metrics.RecordFormSubmission("recording", false)
		return nil, apperr.Validation("invalid recording submission", violations)
	}
	if err := s.requirePatient(ctx, up.UserID); err != nil {
		return nil, err
	}

	obj, err := s.blobs.Save(ctx, up.FileName, up.Content)
	if err != nil {
		metrics.RecordFormSubmission("recording", false)
		return nil, uploadErr(err)
	}

	now := s.now().UTC()
	rec := &Recording{
		UserID:          up.UserID,
		SessionID:       up.SessionID,
		TaskType:        up.TaskType,
		Language:        up.Language,
		AudioFilePath:   obj.RelPath,
		OriginalName:    up.FileName,
		FileSize:        obj.Size,
		FileHash:        obj.Hash,
		DurationSeconds: up.DurationSeconds,
		RecordingDate:   now,
	}
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.recordings.Create(ctx, rec); err != nil {
			return err
		}
		return s.markTask(ctx, rec.UserID, rec.SessionID, rec.TaskType, rec.Language, now)
	})
	metrics.RecordFormSubmission("recording", err == nil)
	if err != nil {
		if delErr := s.blobs.Delete(ctx, obj.RelPath); delErr != nil {
			s.logger.Warn().Err(delErr).Str("path", obj.RelPath).Msg("failed to remove orphaned recording file")
		}
		return nil, err
	}
	return rec, nil
}

func uploadErr(err error) error {
	switch {
	case errors.Is(err, blobstore.ErrUnsupportedFormat):
		return apperr.Validation("invalid recording submission",
			[]string{"audio file type must be one of .mp3, .wav, .m4a, .aac"})
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return apperr.Validation("invalid recording submission",
			[]string{fmt.Sprintf("audio file exceeds the %dMB limit", blobstore.DefaultMaxFileSize>>20)})
	case errors.Is(err, blobstore.ErrMissingFileName):
		return apperr.Validation("invalid recording submission", []string{"audio file name is required"})
	}
	return apperr.Storage(err)
}

// markTask appends a completed task to the session's assignment. A session
// without an assignment is not an error.
func (s *Service) markTask(ctx context.Context, userID, sessionID, taskType, language string, at time.Time) error {
	a, err := s.assignments.GetBySession(ctx, userID, sessionID)
	if apperr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !a.markCompleted(taskType, language, at) {
		return nil
	}
	return s.assignments.UpdateProgress(ctx, a)
}

func (s *Service) SessionRecordings(ctx context.Context, userID, sessionID string) ([]*Recording, error) {
	if v := sessionViolations(userID, sessionID); len(v) > 0 {
		return nil, apperr.Validation("invalid recording query", v)
	}
	return s.recordings.ListBySession(ctx, userID, sessionID)
}

// PatientRecordings lists a patient's recordings, newest first.
func (s *Service) PatientRecordings(ctx context.Context, userID string) ([]*Recording, error) {
	if err := s.requirePatient(ctx, userID); err != nil {
		return nil, err
	}
	return s.recordings.ListByUserID(ctx, userID)
}

func (s *Service) SearchRecordings(ctx context.Context, q RecordingQuery) ([]*Recording, error) {
	return s.recordings.Search(ctx, q)
}

func (s *Service) GetRecording(ctx context.Context, id uuid.UUID) (*Recording, error) {
	return s.recordings.GetByID(ctx, id)
}

// OpenRecording opens the stored audio of rec. A missing file is NotFound.
func (s *Service) OpenRecording(ctx context.Context, rec *Recording) (io.ReadCloser, error) {
	rc, _, err := s.blobs.Open(ctx, rec.AudioFilePath)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return rc, nil
}

// -- Task assignments --

func (s *Service) CreateAssignment(ctx context.Context, req AssignmentRequest) (*TaskAssignment, error) {
	violations := sessionViolations(req.UserID, req.SessionID)
	tasks, ok := TasksFor(req.Condition)
	if !ok {
		violations = append(violations, "condition must be one of oral_cancer, larynx_hypopharynx, pharynx_cancer, other")
	}
	if len(violations) > 0 {
		return nil, apperr.Validation("invalid task assignment", violations)
	}
	if err := s.requirePatient(ctx, req.UserID); err != nil {
		return nil, err
	}

	a := &TaskAssignment{
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		Condition:      req.Condition,
		AssignedTasks:  tasks,
		CompletedTasks: []CompletedTask{},
		Status:         StatusPending,
	}
	if err := s.assignments.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) GetAssignment(ctx context.Context, userID, sessionID string) (*TaskAssignment, error) {
	return s.assignments.GetBySession(ctx, userID, sessionID)
}

// CompleteTask marks a task done without a recording upload.
func (s *Service) CompleteTask(ctx context.Context, req CompleteTaskRequest) (*TaskAssignment, error) {
	violations := sessionViolations(req.UserID, req.SessionID)
	if !validTaskType(req.TaskType) {
		violations = append(violations, fmt.Sprintf("taskType %q is not a known task", req.TaskType))
	}
	if !validLanguage(req.Language) {
		violations = append(violations, "language must be en or ml")
	}
	if len(violations) > 0 {
		return nil, apperr.Validation("invalid task completion", violations)
	}

	var out *TaskAssignment
	err := s.inTx(ctx, func(ctx context.Context) error {
		a, err := s.assignments.GetBySession(ctx, req.UserID, req.SessionID)
		if err != nil {
			return err
		}
		if a.markCompleted(req.TaskType, req.Language, s.now().UTC()) {
			if err := s.assignments.UpdateProgress(ctx, a); err != nil {
				return err
			}
		}
		out = a
		return nil
	})
	return out, err
}

// -- Session progress --

func (s *Service) SaveProgress(ctx context.Context, req ProgressRequest) (*SessionProgress, error) {
	violations := sessionViolations(req.UserID, req.SessionID)
	if strings.TrimSpace(req.CurrentPage) == "" {
		violations = append(violations, "currentPage is required")
	}
	if len(req.ProgressData) == 0 || string(req.ProgressData) == "null" {
		violations = append(violations, "progressData is required")
	}
	if len(violations) > 0 {
		return nil, apperr.Validation("invalid session progress", violations)
	}
	if err := s.requirePatient(ctx, req.UserID); err != nil {
		return nil, err
	}
	p := &SessionProgress{
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		CurrentPage:  req.CurrentPage,
		ProgressData: req.ProgressData,
	}
	if err := s.progress.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// FetchProgress returns saved progress for a session that is not yet
// complete. A completed or unknown session is NotFound.
func (s *Service) FetchProgress(ctx context.Context, userID, sessionID string) (*SessionProgress, error) {
	if v := sessionViolations(userID, sessionID); len(v) > 0 {
		return nil, apperr.Validation("invalid session progress query", v)
	}
	return s.progress.GetIncomplete(ctx, userID, sessionID)
}

func (s *Service) CompleteProgress(ctx context.Context, key SessionKey) error {
	if v := sessionViolations(key.UserID, key.SessionID); len(v) > 0 {
		return apperr.Validation("invalid session progress", v)
	}
	return s.progress.MarkComplete(ctx, key.UserID, key.SessionID)
}

// -- Session feedback --

// SubmitFeedback stores the patient's rating of a session and closes its
// assignment.
func (s *Service) SubmitFeedback(ctx context.Context, req FeedbackRequest) (*SessionFeedback, error) {
	var violations []string
	assignmentID, err := uuid.Parse(strings.TrimSpace(req.AssignmentID))
	if req.AssignmentID == "" {
		violations = append(violations, "assignmentId is required")
	} else if err != nil {
		violations = append(violations, "assignmentId must be a UUID")
	}
	for _, r := range []struct {
		name string
		v    *int
	}{
		{"clarityRating", req.ClarityRating},
		{"usabilityRating", req.UsabilityRating},
		{"fatigueRating", req.FatigueRating},
		{"engagementRating", req.EngagementRating},
	} {
		if r.v != nil && (*r.v < RatingMin || *r.v > RatingMax) {
			violations = append(violations, fmt.Sprintf("%s must be between %d and %d, got %d", r.name, RatingMin, RatingMax, *r.v))
		}
	}
	if len(violations) > 0 {
		metrics.RecordFormSubmission("session feedback", false)
		return nil, apperr.Validation("invalid session feedback", violations)
	}

	f := &SessionFeedback{
		AssignmentID:      assignmentID,
		ClarityRating:     req.ClarityRating,
		UsabilityRating:   req.UsabilityRating,
		FatigueRating:     req.FatigueRating,
		EngagementRating:  req.EngagementRating,
		Comments:          req.Comments,
		AssistanceNeeded:  req.AssistanceNeeded,
		AssistanceDetails: req.AssistanceDetails,
	}
	err = s.inTx(ctx, func(ctx context.Context) error {
		a, err := s.assignments.GetByID(ctx, assignmentID)
		if err != nil {
			return err
		}
		if err := s.feedback.Create(ctx, f); err != nil {
			return err
		}
		if a.Status == StatusCompleted {
			return nil
		}
		a.Status = StatusCompleted
		return s.assignments.UpdateProgress(ctx, a)
	})
	metrics.RecordFormSubmission("session feedback", err == nil)
	if err != nil {
		return nil, err
	}
	return f, nil
}
