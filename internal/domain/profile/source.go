package profile

import (
	"context"

	"github.com/voiceintake/intake/internal/domain/intake"
	"github.com/voiceintake/intake/internal/domain/voice"
	"github.com/voiceintake/intake/internal/platform/apperr"
)

// Source loads the records of one patient. Single-row lookups return
// (nil, nil) when the row does not exist.
type Source interface {
	Patient(ctx context.Context, userID string) (*intake.Patient, error)
	Demographics(ctx context.Context, userID string) (*intake.Demographics, error)
	HealthHistory(ctx context.Context, userID string) (*intake.HealthHistory, error)
	OralCancer(ctx context.Context, userID string) (*intake.OralCancerAssessment, error)
	ThroatCancer(ctx context.Context, userID, site string) (*intake.ThroatAssessment, error)
	// VHIAssessments are newest first.
	VHIAssessments(ctx context.Context, userID string) ([]*intake.VHIAssessment, error)
	GRBASRatings(ctx context.Context, userID string) ([]*intake.GRBASRating, error)
	Recordings(ctx context.Context, userID string) ([]*voice.Recording, error)
}

// RepoSource reads a profile from the intake and voice repositories.
type RepoSource struct {
	Patients     intake.PatientRepository
	Demographic  intake.DemographicsRepository
	Histories    intake.HealthHistoryRepository
	Oral         intake.OralCancerRepository
	Throat       intake.ThroatCancerRepository
	VHI          intake.VHIRepository
	GRBAS        intake.GRBASRepository
	VoiceRecords voice.RecordingRepository
}

func optional[T any](v *T, err error) (*T, error) {
	if apperr.IsNotFound(err) {
		return nil, nil
	}
	return v, err
}

func (s *RepoSource) Patient(ctx context.Context, userID string) (*intake.Patient, error) {
	return s.Patients.GetByUserID(ctx, userID)
}

func (s *RepoSource) Demographics(ctx context.Context, userID string) (*intake.Demographics, error) {
	return optional(s.Demographic.GetByUserID(ctx, userID))
}

func (s *RepoSource) HealthHistory(ctx context.Context, userID string) (*intake.HealthHistory, error) {
	return optional(s.Histories.GetByUserID(ctx, userID))
}

func (s *RepoSource) OralCancer(ctx context.Context, userID string) (*intake.OralCancerAssessment, error) {
	return optional(s.Oral.GetByUserID(ctx, userID))
}

func (s *RepoSource) ThroatCancer(ctx context.Context, userID, site string) (*intake.ThroatAssessment, error) {
	return optional(s.Throat.GetByUserID(ctx, userID, site))
}

func (s *RepoSource) VHIAssessments(ctx context.Context, userID string) ([]*intake.VHIAssessment, error) {
	return s.VHI.ListByUserID(ctx, userID)
}

func (s *RepoSource) GRBASRatings(ctx context.Context, userID string) ([]*intake.GRBASRating, error) {
	return s.GRBAS.ListByUserID(ctx, userID)
}

func (s *RepoSource) Recordings(ctx context.Context, userID string) ([]*voice.Recording, error) {
	return s.VoiceRecords.ListByUserID(ctx, userID)
}
