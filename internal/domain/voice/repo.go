package voice

import (
	"context"

	"github.com/google/uuid"
)

type RecordingRepository interface {
	Create(ctx context.Context, r *Recording) error
	GetByID(ctx context.Context, id uuid.UUID) (*Recording, error)
	// ListByUserID returns a patient's recordings, newest first.
	ListByUserID(ctx context.Context, userID string) ([]*Recording, error)
	// ListBySession returns one session's recordings in capture order.
	ListBySession(ctx context.Context, userID, sessionID string) ([]*Recording, error)
	Search(ctx context.Context, q RecordingQuery) ([]*Recording, error)
}

type AssignmentRepository interface {
	Create(ctx context.Context, a *TaskAssignment) error
	GetByID(ctx context.Context, id uuid.UUID) (*TaskAssignment, error)
	GetBySession(ctx context.Context, userID, sessionID string) (*TaskAssignment, error)
	// UpdateProgress persists CompletedTasks and Status.
	UpdateProgress(ctx context.Context, a *TaskAssignment) error
}

type ProgressRepository interface {
	// Upsert inserts or replaces the row for (UserID, SessionID) and resets
	// IsComplete.
	Upsert(ctx context.Context, p *SessionProgress) error
	GetIncomplete(ctx context.Context, userID, sessionID string) (*SessionProgress, error)
	MarkComplete(ctx context.Context, userID, sessionID string) error
}

type FeedbackRepository interface {
	Create(ctx context.Context, f *SessionFeedback) error
}
