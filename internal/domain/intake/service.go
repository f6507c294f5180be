package intake

import (
	"context"
	"strings"
	"time"

	"github.com/voiceintake/intake/internal/domain/scoring"
	"github.com/voiceintake/intake/internal/platform/apperr"
	"github.com/voiceintake/intake/internal/platform/db"
	"github.com/voiceintake/intake/internal/platform/metrics"
)

type Service struct {
	patients     PatientRepository
	demographics DemographicsRepository
	histories    HealthHistoryRepository
	oral         OralCancerRepository
	throat       ThroatCancerRepository
	vhi          VHIRepository
	grbas        GRBASRepository
	txb          db.TxBeginner
	now          func() time.Time
}

func NewService(
	patients PatientRepository,
	demographics DemographicsRepository,
	histories HealthHistoryRepository,
	oral OralCancerRepository,
	throat ThroatCancerRepository,
	vhi VHIRepository,
	grbas GRBASRepository,
) *Service {
	return &Service{
		patients:     patients,
		demographics: demographics,
		histories:    histories,
		oral:         oral,
		throat:       throat,
		vhi:          vhi,
		grbas:        grbas,
		now:          time.Now,
	}
}

// SetTxBeginner enables transactional patient deletion.
func (s *Service) SetTxBeginner(b db.TxBeginner) {
	s.txb = b
}

func validationErr(form string, violations []string) error {
	metrics.RecordFormSubmission(form, false)
	return apperr.Validation("invalid "+form+" submission", violations)
}

// requirePatient returns NotFound when the form names an unknown patient.
func (s *Service) requirePatient(ctx context.Context, userID string) error {
	_, err := s.patients.GetByUserID(ctx, userID)
	return err
}

func recordResult(form string, err error) {
	metrics.RecordFormSubmission(form, err == nil)
}

// -- Patient --

func (s *Service) Onboard(ctx context.Context, req OnboardingRequest) (*Patient, error) {
	var violations []string
	if strings.TrimSpace(req.UserID) == "" {
		violations = append(violations, "userId is required")
	}
	if strings.TrimSpace(req.ParticipantName) == "" {
		violations = append(violations, "participantName is required")
	}
	if req.ConsentAccepted == nil {
		violations = append(violations, "consentAccepted is required")
	}
	if len(violations) > 0 {
		return nil, validationErr("onboarding", violations)
	}

	p := &Patient{
		UserID:          strings.TrimSpace(req.UserID),
		ParticipantName: strings.TrimSpace(req.ParticipantName),
		WitnessName:     strings.TrimSpace(req.WitnessName),
		ConsentAccepted: *req.ConsentAccepted,
	}
	err := s.patients.Create(ctx, p)
	recordResult("onboarding", err)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, userID string) (*Patient, error) {
	return s.patients.GetByUserID(ctx, userID)
}

func (s *Service) SearchPatients(ctx context.Context, q PatientQuery) ([]*Patient, int, error) {
	return s.patients.Search(ctx, q)
}

// UpdatePatient applies the non-nil fields of u.
func (s *Service) UpdatePatient(ctx context.Context, userID string, u PatientUpdate) (*Patient, error) {
	p, err := s.patients.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.ParticipantName != nil {
		name := strings.TrimSpace(*u.ParticipantName)
		if name == "" {
			return nil, apperr.Validation("invalid patient update", []string{"participantName must not be empty"})
		}
		p.ParticipantName = name
	}
	if u.WitnessName != nil {
		p.WitnessName = strings.TrimSpace(*u.WitnessName)
	}
	if u.ConsentAccepted != nil {
		p.ConsentAccepted = *u.ConsentAccepted
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient removes the patient and, through the schema's cascades, every
// row that references it. The delete runs in a transaction when one is
// available.
func (s *Service) DeletePatient(ctx context.Context, userID string) error {
	if s.txb == nil {
		return s.patients.Delete(ctx, userID)
	}
	return db.WithTx(ctx, s.txb, func(ctx context.Context) error {
		if _, err := s.patients.GetByUserID(ctx, userID); err != nil {
			return err
		}
		return s.patients.Delete(ctx, userID)
	})
}

// -- Demographics --

var formDateLayouts = []string{"2006-01-02", time.RFC3339}

func parseFormDate(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	for _, layout := range formDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, true
		}
	}
	return nil, false
}

func (s *Service) SubmitDemographics(ctx context.Context, req DemographicsRequest) (*Demographics, error) {
	violations := req.SessionRef.violations()
	if strings.TrimSpace(req.RespondentIdentity) == "" {
		violations = append(violations, "respondentIdentity is required")
	}
	if req.Personal.Age != nil && (*req.Personal.Age < 0 || *req.Personal.Age > 130) {
		violations = append(violations, "personal.age must be between 0 and 130")
	}
	if req.Socioeconomic.HouseholdSize != nil && *req.Socioeconomic.HouseholdSize < 1 {
		violations = append(violations, "socioeconomic.householdSize must be at least 1")
	}
	formDate, ok := parseFormDate(req.Date)
	if !ok {
		violations = append(violations, "date must be YYYY-MM-DD")
	}
	if len(violations) > 0 {
		return nil, validationErr("demographics", violations)
	}
	if err := s.requirePatient(ctx, req.UserID); err != nil {
		return nil, err
	}

	d := &Demographics{
		SessionRef:         req.SessionRef,
		DurationMinutes:    req.SessionRef.DurationMinutes(),
		RespondentIdentity: req.RespondentIdentity,
		Country:            req.Address.Country,
		State:              req.Address.State,
		District:           req.Address.District,
		City:               req.Address.City,
		Pincode:            req.Address.Pincode,
		Gender:             req.Personal.Gender,
		Age:                req.Personal.Age,
		Education:          req.Personal.Education,
		Employment:         req.Personal.Employment,
		Occupation:         req.Personal.Occupation,
		Income:             req.Personal.Income,
		MaritalStatus:      req.Personal.MaritalStatus,
		Residence:          req.Socioeconomic.Residence,
		HouseholdSize:      req.Socioeconomic.HouseholdSize,
		Transport:          req.Socioeconomic.Transport,
		Disability:         req.Socioeconomic.Disability,
		Consented:          req.Consented,
		FormDate:           formDate,
	}
	err := s.demographics.Create(ctx, d)
	recordResult("demographics", err)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// -- Health history --

func (s *Service) SubmitHealthHistory(ctx context.Context, req HealthHistoryRequest) (*HealthHistory, error) {
	violations := req.SessionRef.violations()
	for _, f := range []struct{ name, v string }{
		{"tobaccoUse", req.TobaccoUse},
		{"alcoholUse", req.AlcoholUse},
		{"substanceUse", req.SubstanceUse},
		{"voiceUse", req.VoiceUse},
	} {
		if strings.TrimSpace(f.v) == "" {
			violations = append(violations, f.name+" is required")
		}
	}
	if req.FatigueScore != nil && (*req.FatigueScore < 0 || *req.FatigueScore > 10) {
		violations = append(violations, "fatigueScore must be between 0 and 10")
	}
	if len(violations) > 0 {
		return nil, validationErr("health history", violations)
	}
	if err := s.requirePatient(ctx, req.UserID); err != nil {
		return nil, err
	}

	h := &HealthHistory{
		SessionRef:          req.SessionRef,
		DurationMinutes:     req.SessionRef.DurationMinutes(),
		HealthHistoryFields: req.HealthHistoryFields,
	}
	err := s.histories.Create(ctx, h)
	recordResult("health history", err)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// -- Cancer site assessments --

func (s *Service) SubmitOralCancer(ctx context.Context, req OralCancerRequest) (*OralCancerAssessment, error) {
	violations := req.SessionRef.violations()
	violations = append(violations, req.OralSections.violations()...)
	violations = append(violations, req.OralDetails.violations()...)
	if len(violations) > 0 {
		return nil, validationErr("oral cancer", violations)
	}
	if err := s.requirePatient(ctx, req.UserID); err != nil {
		return nil, err
	}

	a := &OralCancerAssessment{
		SessionRef:      req.SessionRef,
		DurationMinutes: req.SessionRef.DurationMinutes(),
		OralSections:    req.OralSections,
		OralDetails:     req.OralDetails,
	}
	err := s.oral.Create(ctx, a)
	recordResult("oral cancer", err)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SubmitThroatCancer stores a larynx/hypopharynx or pharynx assessment.
func (s *Service) SubmitThroatCancer(ctx context.Context, site string, req ThroatRequest) (*ThroatAssessment, error) {
	if site != SiteLarynx && site != SitePharynx {
		return nil, apperr.BadRequest("unknown assessment site " + site)
	}
	form := site + " cancer"
	violations := req.SessionRef.violations()
	violations = append(violations, req.ThroatFields.violations()...)
	if len(violations) > 0 {
		return nil, validationErr(form, violations)
	}
	if err := s.requirePatient(ctx, req.UserID); err != nil {
		return nil, err
	}

	a := &ThroatAssessment{
		Site:               site,
		SessionRef:         req.SessionRef,
		DurationMinutes:    req.SessionRef.DurationMinutes(),
		RespondentIdentity: req.RespondentIdentity,
		ThroatFields:       req.ThroatFields,
	}
	if a.RespondentIdentity == "" {
		a.RespondentIdentity = "Patient"
	}
	if a.ChemoCompleted == "" {
		a.ChemoCompleted = "No"
	}
	err := s.throat.Create(ctx, a)
	recordResult(form, err)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// -- VHI --

var vhiLanguages = map[string]string{
	"":                LanguageEnglish,
	"en":              LanguageEnglish,
	LanguageEnglish:   LanguageEnglish,
	"ml":              LanguageMalayalam,
	LanguageMalayalam: LanguageMalayalam,
}

// SubmitVHI scores the questionnaire and stores it with its derived values.
func (s *Service) SubmitVHI(ctx context.Context, req VHIRequest) (*VHIAssessment, error) {
	violations := req.SessionRef.violations()
	lang, ok := vhiLanguages[strings.ToLower(strings.TrimSpace(req.Language))]
	if !ok {
		violations = append(violations, "language must be english or malayalam")
	}
	res, err := scoring.VHIScores(req.FunctionalScores, req.PhysicalScores, req.EmotionalScores)
	if appErr, isApp := apperr.As(err); isApp {
		violations = append(violations, appErr.Violations...)
	} else if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		return nil, validationErr("VHI", violations)
	}
	if err := s.requirePatient(ctx, req.UserID); err != nil {
		return nil, err
	}

	completed := s.now().UTC()
	if req.CompletedAt != nil {
		completed = req.CompletedAt.UTC()
	}
	v := &VHIAssessment{
		UserID:             req.UserID,
		SessionID:          req.SessionID,
		FunctionalScores:   req.FunctionalScores,
		PhysicalScores:     req.PhysicalScores,
		EmotionalScores:    req.EmotionalScores,
		FunctionalSubscore: res.FunctionalSubscore,
		PhysicalSubscore:   res.PhysicalSubscore,
		EmotionalSubscore:  res.EmotionalSubscore,
		TotalScore:         res.TotalScore,
		Language:           lang,
		DurationMinutes:    req.SessionRef.DurationMinutes(),
		DateCompleted:      completed,
	}
	err = s.vhi.Create(ctx, v)
	recordResult("VHI", err)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// VHIHistory lists a patient's assessments, newest first.
func (s *Service) VHIHistory(ctx context.Context, userID string) ([]*VHIAssessment, error) {
	if err := s.requirePatient(ctx, userID); err != nil {
		return nil, err
	}
	return s.vhi.ListByUserID(ctx, userID)
}

// -- GRBAS --

func (s *Service) SubmitGRBAS(ctx context.Context, req GRBASRequest) (*GRBASRating, error) {
	if violations := req.violations(); len(violations) > 0 {
		return nil, validationErr("GRBAS", violations)
	}
	if err := s.requirePatient(ctx, req.UserID); err != nil {
		return nil, err
	}

	evaluated := s.now().UTC()
	if req.EvaluationDate != nil {
		evaluated = req.EvaluationDate.UTC()
	}
	g := &GRBASRating{
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		TaskNumber:     *req.TaskNumber,
		GScore:         *req.GScore,
		RScore:         *req.RScore,
		BScore:         *req.BScore,
		AScore:         *req.AScore,
		SScore:         *req.SScore,
		ClinicianName:  strings.TrimSpace(req.ClinicianName),
		EvaluationDate: evaluated,
		Comments:       req.Comments,
	}
	err := s.grbas.Create(ctx, g)
	recordResult("GRBAS", err)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) GRBASForSession(ctx context.Context, userID, sessionID string) ([]*GRBASRating, error) {
	return s.grbas.ListBySession(ctx, userID, sessionID)
}
