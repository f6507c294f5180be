package voice

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voiceintake/intake/internal/platform/apperr"
	"github.com/voiceintake/intake/internal/platform/db"
)

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func mapWriteErr(err error, resource, userID string) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return apperr.Conflict(fmt.Sprintf("%s already exists for user %s", resource, userID))
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("patient", userID)
	}
	return err
}

func mapReadErr(err error, resource, id string) error {
	if db.IsNoRows(err) {
		return apperr.NotFound(resource, id)
	}
	return err
}

// -- Recording Repository --

type recordingRepoPG struct {
	pool db.Querier
}

func NewRecordingRepo(pool *pgxpool.Pool) RecordingRepository {
	return &recordingRepoPG{pool: pool}
}

func (r *recordingRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const recordingColumns = `v.id, v.user_id, v.session_id, v.task_type, v.language, v.audio_file_path,
	COALESCE(v.original_name, ''), COALESCE(v.file_size, 0), COALESCE(v.file_hash, ''),
	v.duration_seconds, v.recording_date, v.created_at`

func scanRecording(row pgx.Row, extra ...any) (*Recording, error) {
	var rec Recording
	dest := []any{
		&rec.ID, &rec.UserID, &rec.SessionID, &rec.TaskType, &rec.Language, &rec.AudioFilePath,
		&rec.OriginalName, &rec.FileSize, &rec.FileHash,
		&rec.DurationSeconds, &rec.RecordingDate, &rec.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordingRepoPG) Create(ctx context.Context, rec *Recording) error {
	rec.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO voice_recordings (id, user_id, session_id, task_type, language, audio_file_path,
			original_name, file_size, file_hash, duration_seconds, recording_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		rec.ID, rec.UserID, rec.SessionID, rec.TaskType, rec.Language, rec.AudioFilePath,
		nullable(rec.OriginalName), rec.FileSize, nullable(rec.FileHash), rec.DurationSeconds, rec.RecordingDate,
	).Scan(&rec.CreatedAt)
	return mapWriteErr(err, "recording", rec.UserID)
}

func (r *recordingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Recording, error) {
	rec, err := scanRecording(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordingColumns+` FROM voice_recordings v WHERE v.id = $1`, id))
	if err != nil {
		return nil, mapReadErr(err, "recording", id.String())
	}
	return rec, nil
}

func (r *recordingRepoPG) list(ctx context.Context, withName bool, query string, args ...any) ([]*Recording, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Recording
	for rows.Next() {
		var name string
		var extra []any
		if withName {
			extra = []any{&name}
		}
		rec, err := scanRecording(rows, extra...)
		if err != nil {
			return nil, err
		}
		rec.ParticipantName = name
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *recordingRepoPG) ListByUserID(ctx context.Context, userID string) ([]*Recording, error) {
	return r.list(ctx, false, `SELECT `+recordingColumns+` FROM voice_recordings v
		WHERE v.user_id = $1 ORDER BY v.recording_date DESC, v.created_at DESC`, userID)
}

func (r *recordingRepoPG) ListBySession(ctx context.Context, userID, sessionID string) ([]*Recording, error) {
	return r.list(ctx, false, `SELECT `+recordingColumns+` FROM voice_recordings v
		WHERE v.user_id = $1 AND v.session_id = $2 ORDER BY v.recording_date, v.created_at`, userID, sessionID)
}

var recordingSortColumns = map[string]string{
	"recordingDate": "v.recording_date",
	"userId":        "v.user_id",
	"taskType":      "v.task_type",
	"duration":      "v.duration_seconds",
}

func recordingOrderBy(sortBy, sortOrder string) string {
	col, ok := recordingSortColumns[sortBy]
	if !ok {
		col = "v.recording_date"
	}
	dir := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		dir = "ASC"
	}
	return col + " " + dir + ", v.id"
}

func (r *recordingRepoPG) Search(ctx context.Context, q RecordingQuery) ([]*Recording, error) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if q.UserID != "" {
		add("v.user_id = $%d", q.UserID)
	}
	if q.TaskType != "" {
		add("v.task_type = $%d", q.TaskType)
	}
	if q.PatientSearch != "" {
		args = append(args, "%"+q.PatientSearch+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(p.participant_name ILIKE $%d OR v.user_id ILIKE $%d)", n, n))
	}
	if !q.From.IsZero() {
		add("v.recording_date >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("v.recording_date <= $%d", q.To)
	}

	query := `SELECT ` + recordingColumns + `, p.participant_name
		FROM voice_recordings v JOIN patients p ON p.user_id = v.user_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + recordingOrderBy(q.SortBy, q.SortOrder)
	return r.list(ctx, true, query, args...)
}

// -- Task Assignment Repository --

type assignmentRepoPG struct {
	pool db.Querier
}

func NewAssignmentRepo(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepoPG{pool: pool}
}

func (r *assignmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const assignmentColumns = `id, user_id, session_id, condition, assigned_tasks, completed_tasks, status, created_at, updated_at`

func scanAssignment(row pgx.Row) (*TaskAssignment, error) {
	var a TaskAssignment
	if err := row.Scan(&a.ID, &a.UserID, &a.SessionID, &a.Condition, &a.AssignedTasks, &a.CompletedTasks,
		&a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepoPG) Create(ctx context.Context, a *TaskAssignment) error {
	a.ID = uuid.New()
	if a.CompletedTasks == nil {
		a.CompletedTasks = []CompletedTask{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO task_assignments (id, user_id, session_id, condition, assigned_tasks, completed_tasks, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		a.ID, a.UserID, a.SessionID, a.Condition, a.AssignedTasks, a.CompletedTasks, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return mapWriteErr(err, "task assignment", a.UserID)
}

func (r *assignmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TaskAssignment, error) {
	a, err := scanAssignment(r.conn(ctx).QueryRow(ctx, `SELECT `+assignmentColumns+` FROM task_assignments WHERE id = $1`, id))
	if err != nil {
		return nil, mapReadErr(err, "task assignment", id.String())
	}
	return a, nil
}

func (r *assignmentRepoPG) GetBySession(ctx context.Context, userID, sessionID string) (*TaskAssignment, error) {
	a, err := scanAssignment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM task_assignments WHERE user_id = $1 AND session_id = $2`, userID, sessionID))
	if err != nil {
		return nil, mapReadErr(err, "task assignment", userID+"/"+sessionID)
	}
	return a, nil
}

func (r *assignmentRepoPG) UpdateProgress(ctx context.Context, a *TaskAssignment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE task_assignments SET completed_tasks = $2, status = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.CompletedTasks, a.Status,
	).Scan(&a.UpdatedAt)
	return mapReadErr(err, "task assignment", a.ID.String())
}

// -- Session Progress Repository --

type progressRepoPG struct {
	pool db.Querier
}

func NewProgressRepo(pool *pgxpool.Pool) ProgressRepository {
	return &progressRepoPG{pool: pool}
}

func (r *progressRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

// Upsert relies on UNIQUE (user_id, session_id) so concurrent saves for the
// same session never produce two rows.
func (r *progressRepoPG) Upsert(ctx context.Context, p *SessionProgress) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO session_progress (id, user_id, session_id, current_page, progress_data, is_complete)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (user_id, session_id) DO UPDATE
			SET current_page = EXCLUDED.current_page,
			    progress_data = EXCLUDED.progress_data,
			    is_complete = FALSE,
			    updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		uuid.New(), p.UserID, p.SessionID, p.CurrentPage, p.ProgressData,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	p.IsComplete = false
	return mapWriteErr(err, "session progress", p.UserID)
}

func (r *progressRepoPG) GetIncomplete(ctx context.Context, userID, sessionID string) (*SessionProgress, error) {
	var p SessionProgress
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, session_id, current_page, progress_data, is_complete, created_at, updated_at
		FROM session_progress
		WHERE user_id = $1 AND session_id = $2 AND NOT is_complete`, userID, sessionID,
	).Scan(&p.ID, &p.UserID, &p.SessionID, &p.CurrentPage, &p.ProgressData, &p.IsComplete, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapReadErr(err, "session progress", userID+"/"+sessionID)
	}
	return &p, nil
}

func (r *progressRepoPG) MarkComplete(ctx context.Context, userID, sessionID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE session_progress SET is_complete = TRUE, updated_at = NOW()
		WHERE user_id = $1 AND session_id = $2`, userID, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("session progress", userID+"/"+sessionID)
	}
	return nil
}

// -- Session Feedback Repository --

type feedbackRepoPG struct {
	pool db.Querier
}

func NewFeedbackRepo(pool *pgxpool.Pool) FeedbackRepository {
	return &feedbackRepoPG{pool: pool}
}

func (r *feedbackRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

func (r *feedbackRepoPG) Create(ctx context.Context, f *SessionFeedback) error {
	f.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO session_feedback (id, assignment_id, clarity_rating, usability_rating, fatigue_rating,
			engagement_rating, comments, assistance_needed, assistance_details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		f.ID, f.AssignmentID, f.ClarityRating, f.UsabilityRating, f.FatigueRating, f.EngagementRating,
		nullable(f.Comments), f.AssistanceNeeded, nullable(f.AssistanceDetails),
	).Scan(&f.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("task assignment", f.AssignmentID.String())
	}
	return err
}
