package intake

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

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// mapWriteErr turns constraint failures into the error taxonomy: a duplicate
// row is a conflict and a missing parent patient is not-found.
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

// -- Patient Repository --

type patientRepoPG struct {
	pool db.Querier
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const patientColumns = `user_id, participant_name, COALESCE(witness_name, ''), consent_accepted, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.UserID, &p.ParticipantName, &p.WitnessName, &p.ConsentAccepted, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (user_id, participant_name, witness_name, consent_accepted)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		p.UserID, p.ParticipantName, nullable(p.WitnessName), p.ConsentAccepted,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapWriteErr(err, "patient", p.UserID)
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE user_id = $1`, userID))
	if err != nil {
		return nil, mapReadErr(err, "patient", userID)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET participant_name = $2, witness_name = $3, consent_accepted = $4, updated_at = NOW()
		WHERE user_id = $1
		RETURNING updated_at`,
		p.UserID, p.ParticipantName, nullable(p.WitnessName), p.ConsentAccepted,
	).Scan(&p.UpdatedAt)
	return mapReadErr(err, "patient", p.UserID)
}

// Delete removes the patient. Dependent rows go with it through ON DELETE CASCADE.
func (r *patientRepoPG) Delete(ctx context.Context, userID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", userID)
	}
	return nil
}

var patientSortColumns = map[string]string{
	"createdAt":       "created_at",
	"participantName": "participant_name",
	"userId":          "user_id",
}

// patientOrderBy whitelists the sort column and direction.
func patientOrderBy(sortBy, sortOrder string) string {
	col, ok := patientSortColumns[sortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		dir = "ASC"
	}
	return col + " " + dir + ", user_id ASC"
}

func (r *patientRepoPG) Search(ctx context.Context, q PatientQuery) ([]*Patient, int, error) {
	var where []string
	var args []any
	idx := 1

	if q.Term != "" {
		where = append(where, fmt.Sprintf("(user_id = $%d OR participant_name ILIKE $%d)", idx, idx+1))
		args = append(args, q.Term, "%"+q.Term+"%")
		idx += 2
	}
	if !q.From.IsZero() {
		where = append(where, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, q.From)
		idx++
	}
	if !q.To.IsZero() {
		where = append(where, fmt.Sprintf("created_at <= $%d", idx))
		args = append(args, q.To)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM patients"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + patientColumns + " FROM patients" + whereClause + " ORDER BY " + patientOrderBy(q.SortBy, q.SortOrder)
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// -- Demographics Repository --

type demographicsRepoPG struct {
	pool db.Querier
}

func NewDemographicsRepo(pool *pgxpool.Pool) DemographicsRepository {
	return &demographicsRepoPG{pool: pool}
}

func (r *demographicsRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const demographicsColumns = `id, user_id, session_id, started_at, completed_at, duration_minutes,
	respondent_identity, COALESCE(country, ''), COALESCE(state, ''), COALESCE(district, ''),
	COALESCE(city, ''), COALESCE(pincode, ''), COALESCE(gender, ''), age,
	COALESCE(education, ''), COALESCE(employment, ''), COALESCE(occupation, ''),
	COALESCE(income, ''), COALESCE(marital_status, ''), COALESCE(residence, ''),
	household_size, COALESCE(transport, ''), disability, consented, form_date, created_at`

func (r *demographicsRepoPG) Create(ctx context.Context, d *Demographics) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO demographics (
			id, user_id, session_id, started_at, completed_at, duration_minutes,
			respondent_identity, country, state, district, city, pincode,
			gender, age, education, employment, occupation, income, marital_status,
			residence, household_size, transport, disability, consented, form_date
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25
		) RETURNING created_at`,
		d.ID, d.UserID, d.SessionID, d.StartedAt, d.CompletedAt, d.DurationMinutes,
		d.RespondentIdentity, nullable(d.Country), nullable(d.State), nullable(d.District), nullable(d.City), nullable(d.Pincode),
		nullable(d.Gender), d.Age, nullable(d.Education), nullable(d.Employment), nullable(d.Occupation), nullable(d.Income), nullable(d.MaritalStatus),
		nullable(d.Residence), d.HouseholdSize, nullable(d.Transport), nonNil(d.Disability), d.Consented, d.FormDate,
	).Scan(&d.CreatedAt)
	return mapWriteErr(err, "demographics", d.UserID)
}

func (r *demographicsRepoPG) GetByUserID(ctx context.Context, userID string) (*Demographics, error) {
	var d Demographics
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+demographicsColumns+` FROM demographics WHERE user_id = $1`, userID).Scan(
		&d.ID, &d.UserID, &d.SessionID, &d.StartedAt, &d.CompletedAt, &d.DurationMinutes,
		&d.RespondentIdentity, &d.Country, &d.State, &d.District,
		&d.City, &d.Pincode, &d.Gender, &d.Age,
		&d.Education, &d.Employment, &d.Occupation,
		&d.Income, &d.MaritalStatus, &d.Residence,
		&d.HouseholdSize, &d.Transport, &d.Disability, &d.Consented, &d.FormDate, &d.CreatedAt,
	)
	if err != nil {
		return nil, mapReadErr(err, "demographics", userID)
	}
	return &d, nil
}

// -- Health History Repository --

type healthHistoryRepoPG struct {
	pool db.Querier
}

func NewHealthHistoryRepo(pool *pgxpool.Pool) HealthHistoryRepository {
	return &healthHistoryRepoPG{pool: pool}
}

func (r *healthHistoryRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const healthHistoryColumns = `id, user_id, session_id, started_at, completed_at, duration_minutes,
	tobacco_use, tobacco_forms, COALESCE(current_tobacco_status, ''),
	alcohol_use, COALESCE(alcohol_frequency, ''), COALESCE(alcohol_rehab, ''),
	substance_use, COALESCE(substance_type, ''), COALESCE(substance_recovery, ''),
	COALESCE(caffeine_per_day, ''), COALESCE(water_intake, ''), COALESCE(dental_problem, ''),
	COALESCE(dentures, ''), COALESCE(allergies, ''), medical_conditions, medications,
	COALESCE(medical_other, ''), COALESCE(medication_other, ''), COALESCE(menstruate, ''),
	COALESCE(menstrual_status, ''), voice_use, COALESCE(voice_occupation, ''),
	COALESCE(voice_hours, ''), fatigue_score, COALESCE(difficulty_today, ''), created_at`

func (r *healthHistoryRepoPG) Create(ctx context.Context, h *HealthHistory) error {
	h.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO health_histories (
			id, user_id, session_id, started_at, completed_at, duration_minutes,
			tobacco_use, tobacco_forms, current_tobacco_status,
			alcohol_use, alcohol_frequency, alcohol_rehab,
			substance_use, substance_type, substance_recovery,
			caffeine_per_day, water_intake, dental_problem,
			dentures, allergies, medical_conditions, medications,
			medical_other, medication_other, menstruate,
			menstrual_status, voice_use, voice_occupation,
			voice_hours, fatigue_score, difficulty_today
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, $22,
			$23, $24, $25,
			$26, $27, $28,
			$29, $30, $31
		) RETURNING created_at`,
		h.ID, h.UserID, h.SessionID, h.StartedAt, h.CompletedAt, h.DurationMinutes,
		h.TobaccoUse, nonNil(h.TobaccoForms), nullable(h.CurrentTobaccoStatus),
		h.AlcoholUse, nullable(h.AlcoholFrequency), nullable(h.AlcoholRehab),
		h.SubstanceUse, nullable(h.SubstanceType), nullable(h.SubstanceRecovery),
		nullable(h.CaffeinePerDay), nullable(h.WaterIntake), nullable(h.DentalProblem),
		nullable(h.Dentures), nullable(h.Allergies), nonNil(h.MedicalConditions), nonNil(h.Medications),
		nullable(h.MedicalOther), nullable(h.MedicationOther), nullable(h.Menstruate),
		nullable(h.MenstrualStatus), h.VoiceUse, nullable(h.VoiceOccupation),
		nullable(h.VoiceHours), h.FatigueScore, nullable(h.DifficultyToday),
	).Scan(&h.CreatedAt)
	return mapWriteErr(err, "health history", h.UserID)
}

func (r *healthHistoryRepoPG) GetByUserID(ctx context.Context, userID string) (*HealthHistory, error) {
	var h HealthHistory
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+healthHistoryColumns+` FROM health_histories WHERE user_id = $1`, userID).Scan(
		&h.ID, &h.UserID, &h.SessionID, &h.StartedAt, &h.CompletedAt, &h.DurationMinutes,
		&h.TobaccoUse, &h.TobaccoForms, &h.CurrentTobaccoStatus,
		&h.AlcoholUse, &h.AlcoholFrequency, &h.AlcoholRehab,
		&h.SubstanceUse, &h.SubstanceType, &h.SubstanceRecovery,
		&h.CaffeinePerDay, &h.WaterIntake, &h.DentalProblem,
		&h.Dentures, &h.Allergies, &h.MedicalConditions, &h.Medications,
		&h.MedicalOther, &h.MedicationOther, &h.Menstruate,
		&h.MenstrualStatus, &h.VoiceUse, &h.VoiceOccupation,
		&h.VoiceHours, &h.FatigueScore, &h.DifficultyToday, &h.CreatedAt,
	)
	if err != nil {
		return nil, mapReadErr(err, "health history", userID)
	}
	return &h, nil
}

// -- Oral Cancer Repository --

type oralCancerRepoPG struct {
	pool db.Querier
}

func NewOralCancerRepo(pool *pgxpool.Pool) OralCancerRepository {
	return &oralCancerRepoPG{pool: pool}
}

func (r *oralCancerRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const oralColumns = `id, user_id, session_id, started_at, completed_at, duration_minutes, sections,
	COALESCE(tumor_site_other, ''), COALESCE(t_stage, ''), COALESCE(n_stage, ''), COALESCE(m_stage, ''),
	COALESCE(clinical_stage, ''), COALESCE(radiation_dose, ''), COALESCE(chemo_agent, ''),
	COALESCE(chemo_schedule, ''), COALESCE(followup_date, ''), COALESCE(tracheostomy, ''),
	COALESCE(feeding, ''), COALESCE(speech, ''), created_at`

func (r *oralCancerRepoPG) Create(ctx context.Context, a *OralCancerAssessment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO oral_cancer_assessments (
			id, user_id, session_id, started_at, completed_at, duration_minutes, sections,
			tumor_site_other, t_stage, n_stage, m_stage,
			clinical_stage, radiation_dose, chemo_agent,
			chemo_schedule, followup_date, tracheostomy,
			feeding, speech
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17,
			$18, $19
		) RETURNING created_at`,
		a.ID, a.UserID, a.SessionID, a.StartedAt, a.CompletedAt, a.DurationMinutes, a.OralSections,
		nullable(a.TumorSiteOther), nullable(a.TStage), nullable(a.NStage), nullable(a.MStage),
		nullable(a.ClinicalStage), nullable(a.RadiationDose), nullable(a.ChemoAgent),
		nullable(a.ChemoSchedule), nullable(a.FollowupDate), nullable(a.Tracheostomy),
		nullable(a.Feeding), nullable(a.Speech),
	).Scan(&a.CreatedAt)
	return mapWriteErr(err, "oral cancer assessment", a.UserID)
}

func (r *oralCancerRepoPG) GetByUserID(ctx context.Context, userID string) (*OralCancerAssessment, error) {
	var a OralCancerAssessment
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+oralColumns+` FROM oral_cancer_assessments WHERE user_id = $1`, userID).Scan(
		&a.ID, &a.UserID, &a.SessionID, &a.StartedAt, &a.CompletedAt, &a.DurationMinutes, &a.OralSections,
		&a.TumorSiteOther, &a.TStage, &a.NStage, &a.MStage,
		&a.ClinicalStage, &a.RadiationDose, &a.ChemoAgent,
		&a.ChemoSchedule, &a.FollowupDate, &a.Tracheostomy,
		&a.Feeding, &a.Speech, &a.CreatedAt,
	)
	if err != nil {
		return nil, mapReadErr(err, "oral cancer assessment", userID)
	}
	return &a, nil
}

// -- Throat Cancer Repository --

type throatCancerRepoPG struct {
	pool db.Querier
}

func NewThroatCancerRepo(pool *pgxpool.Pool) ThroatCancerRepository {
	return &throatCancerRepoPG{pool: pool}
}

func (r *throatCancerRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const throatColumns = `id, site, user_id, session_id, started_at, completed_at, duration_minutes,
	respondent_identity, diagnosis_confirmed, diagnosis_methods, tumor_site, COALESCE(tumor_laterality, ''),
	histology, tumor_grade, COALESCE(t_stage, ''), COALESCE(n_stage, ''), COALESCE(m_stage, ''),
	COALESCE(clinical_stage, ''), risk_factors, medical_history, symptoms,
	functional_voice, functional_swallowing, functional_breathing, functional_nutrition, functional_airway,
	treatment_modalities, treatment_surgery_details, treatment_reconstruction, treatment_margin_status,
	COALESCE(radiation_dose, ''), radiation_target, radiation_technique,
	COALESCE(chemo_agents, ''), COALESCE(chemo_schedule, ''), chemo_completed,
	COALESCE(followup_date, ''), followup_status,
	outcome_tracheostomy, outcome_feeding, outcome_speech, created_at`

func (r *throatCancerRepoPG) Create(ctx context.Context, a *ThroatAssessment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO throat_cancer_assessments (
			id, site, user_id, session_id, started_at, completed_at, duration_minutes,
			respondent_identity, diagnosis_confirmed, diagnosis_methods, tumor_site, tumor_laterality,
			histology, tumor_grade, t_stage, n_stage, m_stage,
			clinical_stage, risk_factors, medical_history, symptoms,
			functional_voice, functional_swallowing, functional_breathing, functional_nutrition, functional_airway,
			treatment_modalities, treatment_surgery_details, treatment_reconstruction, treatment_margin_status,
			radiation_dose, radiation_target, radiation_technique,
			chemo_agents, chemo_schedule, chemo_completed,
			followup_date, followup_status,
			outcome_tracheostomy, outcome_feeding, outcome_speech
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $19, $20, $21,
			$22, $23, $24, $25, $26,
			$27, $28, $29, $30,
			$31, $32, $33,
			$34, $35, $36,
			$37, $38,
			$39, $40, $41
		) RETURNING created_at`,
		a.ID, a.Site, a.UserID, a.SessionID, a.StartedAt, a.CompletedAt, a.DurationMinutes,
		a.RespondentIdentity, a.DiagnosisConfirmed, nonNil(a.DiagnosisMethods), nonNil(a.TumorSite), nullable(a.TumorLaterality),
		nonNil(a.Histology), nonNil(a.TumorGrade), nullable(a.TStage), nullable(a.NStage), nullable(a.MStage),
		nullable(a.ClinicalStage), nonNil(a.RiskFactors), nonNil(a.MedicalHistory), nonNil(a.Symptoms),
		a.FunctionalVoice, a.FunctionalSwallowing, a.FunctionalBreathing, a.FunctionalNutrition, a.FunctionalAirway,
		nonNil(a.TreatmentModalities), nonNil(a.TreatmentSurgeryDetails), nonNil(a.TreatmentReconstruction), nonNil(a.TreatmentMarginStatus),
		nullable(a.RadiationDose), nonNil(a.RadiationTarget), nonNil(a.RadiationTechnique),
		nullable(a.ChemoAgents), nullable(a.ChemoSchedule), a.ChemoCompleted,
		nullable(a.FollowupDate), nonNil(a.FollowupStatus),
		nonNil(a.OutcomeTracheostomy), nonNil(a.OutcomeFeeding), nonNil(a.OutcomeSpeech),
	).Scan(&a.CreatedAt)
	return mapWriteErr(err, a.Site+" cancer assessment", a.UserID)
}

func (r *throatCancerRepoPG) GetByUserID(ctx context.Context, userID, site string) (*ThroatAssessment, error) {
	var a ThroatAssessment
	var followup []string
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+throatColumns+` FROM throat_cancer_assessments WHERE user_id = $1 AND site = $2`, userID, site,
	).Scan(
		&a.ID, &a.Site, &a.UserID, &a.SessionID, &a.StartedAt, &a.CompletedAt, &a.DurationMinutes,
		&a.RespondentIdentity, &a.DiagnosisConfirmed, &a.DiagnosisMethods, &a.TumorSite, &a.TumorLaterality,
		&a.Histology, &a.TumorGrade, &a.TStage, &a.NStage, &a.MStage,
		&a.ClinicalStage, &a.RiskFactors, &a.MedicalHistory, &a.Symptoms,
		&a.FunctionalVoice, &a.FunctionalSwallowing, &a.FunctionalBreathing, &a.FunctionalNutrition, &a.FunctionalAirway,
		&a.TreatmentModalities, &a.TreatmentSurgeryDetails, &a.TreatmentReconstruction, &a.TreatmentMarginStatus,
		&a.RadiationDose, &a.RadiationTarget, &a.RadiationTechnique,
		&a.ChemoAgents, &a.ChemoSchedule, &a.ChemoCompleted,
		&a.FollowupDate, &followup,
		&a.OutcomeTracheostomy, &a.OutcomeFeeding, &a.OutcomeSpeech, &a.CreatedAt,
	)
	if err != nil {
		return nil, mapReadErr(err, site+" cancer assessment", userID)
	}
	a.FollowupStatus = followup
	return &a, nil
}

// -- VHI Repository --

type vhiRepoPG struct {
	pool db.Querier
}

func NewVHIRepo(pool *pgxpool.Pool) VHIRepository {
	return &vhiRepoPG{pool: pool}
}

func (r *vhiRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const vhiColumns = `id, user_id, session_id, functional_scores, physical_scores, emotional_scores,
	functional_subscore, physical_subscore, emotional_subscore, total_score,
	language, duration_minutes, date_completed, created_at`

func scanVHI(row pgx.Row) (*VHIAssessment, error) {
	var v VHIAssessment
	err := row.Scan(
		&v.ID, &v.UserID, &v.SessionID, &v.FunctionalScores, &v.PhysicalScores, &v.EmotionalScores,
		&v.FunctionalSubscore, &v.PhysicalSubscore, &v.EmotionalSubscore, &v.TotalScore,
		&v.Language, &v.DurationMinutes, &v.DateCompleted, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *vhiRepoPG) Create(ctx context.Context, v *VHIAssessment) error {
	v.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO vhi_assessments (
			id, user_id, session_id, functional_scores, physical_scores, emotional_scores,
			functional_subscore, physical_subscore, emotional_subscore, total_score,
			language, duration_minutes, date_completed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`,
		v.ID, v.UserID, v.SessionID, v.FunctionalScores, v.PhysicalScores, v.EmotionalScores,
		v.FunctionalSubscore, v.PhysicalSubscore, v.EmotionalSubscore, v.TotalScore,
		v.Language, v.DurationMinutes, v.DateCompleted,
	).Scan(&v.CreatedAt)
	return mapWriteErr(err, "VHI assessment", v.UserID)
}

func (r *vhiRepoPG) ListByUserID(ctx context.Context, userID string) ([]*VHIAssessment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+vhiColumns+` FROM vhi_assessments WHERE user_id = $1 ORDER BY date_completed DESC, created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*VHIAssessment
	for rows.Next() {
		v, err := scanVHI(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// -- GRBAS Repository --

type grbasRepoPG struct {
	pool db.Querier
}

func NewGRBASRepo(pool *pgxpool.Pool) GRBASRepository {
	return &grbasRepoPG{pool: pool}
}

func (r *grbasRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const grbasColumns = `id, user_id, session_id, task_number, g_score, r_score, b_score, a_score, s_score,
	clinician_name, evaluation_date, COALESCE(comments, ''), created_at`

func scanGRBAS(row pgx.Row) (*GRBASRating, error) {
	var g GRBASRating
	err := row.Scan(
		&g.ID, &g.UserID, &g.SessionID, &g.TaskNumber, &g.GScore, &g.RScore, &g.BScore, &g.AScore, &g.SScore,
		&g.ClinicianName, &g.EvaluationDate, &g.Comments, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *grbasRepoPG) Create(ctx context.Context, g *GRBASRating) error {
	g.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO grbas_ratings (
			id, user_id, session_id, task_number, g_score, r_score, b_score, a_score, s_score,
			clinician_name, evaluation_date, comments
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`,
		g.ID, g.UserID, g.SessionID, g.TaskNumber, g.GScore, g.RScore, g.BScore, g.AScore, g.SScore,
		g.ClinicianName, g.EvaluationDate, nullable(g.Comments),
	).Scan(&g.CreatedAt)
	return mapWriteErr(err, "GRBAS rating", g.UserID)
}

func (r *grbasRepoPG) list(ctx context.Context, query string, args ...any) ([]*GRBASRating, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*GRBASRating
	for rows.Next() {
		g, err := scanGRBAS(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *grbasRepoPG) ListBySession(ctx context.Context, userID, sessionID string) ([]*GRBASRating, error) {
	return r.list(ctx, `SELECT `+grbasColumns+` FROM grbas_ratings WHERE user_id = $1 AND session_id = $2 ORDER BY task_number, created_at`, userID, sessionID)
}

func (r *grbasRepoPG) ListByUserID(ctx context.Context, userID string) ([]*GRBASRating, error) {
	return r.list(ctx, `SELECT `+grbasColumns+` FROM grbas_ratings WHERE user_id = $1 ORDER BY evaluation_date, task_number`, userID)
}
