package intake

import (
	"context"
	"time"
)

// PatientQuery filters the patient list used by the admin dashboard.
type PatientQuery struct {
	// Term matches the exact userId or a case-insensitive substring of the
	// participant name.
	Term      string
	From      time.Time
	To        time.Time
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

// PatientRepository defines the persistence interface for patients.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByUserID(ctx context.Context, userID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, userID string) error
	Search(ctx context.Context, q PatientQuery) ([]*Patient, int, error)
}

type DemographicsRepository interface {
	Create(ctx context.Context, d *Demographics) error
	GetByUserID(ctx context.Context, userID string) (*Demographics, error)
}

type HealthHistoryRepository interface {
	Create(ctx context.Context, h *HealthHistory) error
	GetByUserID(ctx context.Context, userID string) (*HealthHistory, error)
}

type OralCancerRepository interface {
	Create(ctx context.Context, a *OralCancerAssessment) error
	GetByUserID(ctx context.Context, userID string) (*OralCancerAssessment, error)
}

// ThroatCancerRepository stores larynx and pharynx assessments, one per site
// per patient.
type ThroatCancerRepository interface {
	Create(ctx context.Context, a *ThroatAssessment) error
	GetByUserID(ctx context.Context, userID, site string) (*ThroatAssessment, error)
}

type VHIRepository interface {
	Create(ctx context.Context, v *VHIAssessment) error
	// ListByUserID returns assessments newest first.
	ListByUserID(ctx context.Context, userID string) ([]*VHIAssessment, error)
}

type GRBASRepository interface {
	Create(ctx context.Context, r *GRBASRating) error
	// ListBySession returns ratings ordered by task number.
	ListBySession(ctx context.Context, userID, sessionID string) ([]*GRBASRating, error)
	ListByUserID(ctx context.Context, userID string) ([]*GRBASRating, error)
}
