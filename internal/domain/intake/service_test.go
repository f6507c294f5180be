package intake

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceintake/intake/internal/platform/apperr"
)

// -- Mock Repositories --

type mockPatientRepo struct {
	patients map[string]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[string]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.UserID]; ok {
		return apperr.Conflict("patient already exists for user " + p.UserID)
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.patients[p.UserID] = p
	return nil
}

func (m *mockPatientRepo) GetByUserID(_ context.Context, userID string) (*Patient, error) {
	p, ok := m.patients[userID]
	if !ok {
		return nil, apperr.NotFound("patient", userID)
	}
	return p, nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.UserID]; !ok {
		return apperr.NotFound("patient", p.UserID)
	}
	p.UpdatedAt = time.Now()
	m.patients[p.UserID] = p
	return nil
}

func (m *mockPatientRepo) Delete(_ context.Context, userID string) error {
	if _, ok := m.patients[userID]; !ok {
		return apperr.NotFound("patient", userID)
	}
	delete(m.patients, userID)
	return nil
}

func (m *mockPatientRepo) Search(_ context.Context, q PatientQuery) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		if q.Term != "" && p.UserID != q.Term && !strings.Contains(strings.ToLower(p.ParticipantName), strings.ToLower(q.Term)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, len(out), nil
}

type mockDemographicsRepo struct {
	rows map[string]*Demographics
}

func (m *mockDemographicsRepo) Create(_ context.Context, d *Demographics) error {
	if _, ok := m.rows[d.UserID]; ok {
		return apperr.Conflict("demographics already exists for user " + d.UserID)
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	m.rows[d.UserID] = d
	return nil
}

func (m *mockDemographicsRepo) GetByUserID(_ context.Context, userID string) (*Demographics, error) {
	d, ok := m.rows[userID]
	if !ok {
		return nil, apperr.NotFound("demographics", userID)
	}
	return d, nil
}

type mockHealthHistoryRepo struct {
	rows map[string]*HealthHistory
}

func (m *mockHealthHistoryRepo) Create(_ context.Context, h *HealthHistory) error {
	if _, ok := m.rows[h.UserID]; ok {
		return apperr.Conflict("health history already exists for user " + h.UserID)
	}
	h.ID = uuid.New()
	m.rows[h.UserID] = h
	return nil
}

func (m *mockHealthHistoryRepo) GetByUserID(_ context.Context, userID string) (*HealthHistory, error) {
	h, ok := m.rows[userID]
	if !ok {
		return nil, apperr.NotFound("health history", userID)
	}
	return h, nil
}

type mockOralRepo struct {
	rows map[string]*OralCancerAssessment
}

func (m *mockOralRepo) Create(_ context.Context, a *OralCancerAssessment) error {
	if _, ok := m.rows[a.UserID]; ok {
		return apperr.Conflict("oral cancer assessment already exists for user " + a.UserID)
	}
	a.ID = uuid.New()
	m.rows[a.UserID] = a
	return nil
}

func (m *mockOralRepo) GetByUserID(_ context.Context, userID string) (*OralCancerAssessment, error) {
	a, ok := m.rows[userID]
	if !ok {
		return nil, apperr.NotFound("oral cancer assessment", userID)
	}
	return a, nil
}

type mockThroatRepo struct {
	rows map[string]*ThroatAssessment
}

func (m *mockThroatRepo) Create(_ context.Context, a *ThroatAssessment) error {
	key := a.UserID + "/" + a.Site
	if _, ok := m.rows[key]; ok {
		return apperr.Conflict(a.Site + " cancer assessment already exists for user " + a.UserID)
	}
	a.ID = uuid.New()
	m.rows[key] = a
	return nil
}

func (m *mockThroatRepo) GetByUserID(_ context.Context, userID, site string) (*ThroatAssessment, error) {
	a, ok := m.rows[userID+"/"+site]
	if !ok {
		return nil, apperr.NotFound(site+" cancer assessment", userID)
	}
	return a, nil
}

type mockVHIRepo struct {
	rows []*VHIAssessment
}

func (m *mockVHIRepo) Create(_ context.Context, v *VHIAssessment) error {
	v.ID = uuid.New()
	m.rows = append(m.rows, v)
	return nil
}

func (m *mockVHIRepo) ListByUserID(_ context.Context, userID string) ([]*VHIAssessment, error) {
	var out []*VHIAssessment
	for _, v := range m.rows {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateCompleted.After(out[j].DateCompleted) })
	return out, nil
}

type mockGRBASRepo struct {
	rows []*GRBASRating
}

func (m *mockGRBASRepo) Create(_ context.Context, g *GRBASRating) error {
	g.ID = uuid.New()
	m.rows = append(m.rows, g)
	return nil
}

func (m *mockGRBASRepo) ListBySession(_ context.Context, userID, sessionID string) ([]*GRBASRating, error) {
	var out []*GRBASRating
	for _, g := range m.rows {
		if g.UserID == userID && g.SessionID == sessionID {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TaskNumber < out[j].TaskNumber })
	return out, nil
}

func (m *mockGRBASRepo) ListByUserID(_ context.Context, userID string) ([]*GRBASRating, error) {
	var out []*GRBASRating
	for _, g := range m.rows {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

type testRepos struct {
	patients     *mockPatientRepo
	demographics *mockDemographicsRepo
	histories    *mockHealthHistoryRepo
	oral         *mockOralRepo
	throat       *mockThroatRepo
	vhi          *mockVHIRepo
	grbas        *mockGRBASRepo
}

func newTestService() (*Service, *testRepos) {
	r := &testRepos{
		patients:     newMockPatientRepo(),
		demographics: &mockDemographicsRepo{rows: map[string]*Demographics{}},
		histories:    &mockHealthHistoryRepo{rows: map[string]*HealthHistory{}},
		oral:         &mockOralRepo{rows: map[string]*OralCancerAssessment{}},
		throat:       &mockThroatRepo{rows: map[string]*ThroatAssessment{}},
		vhi:          &mockVHIRepo{},
		grbas:        &mockGRBASRepo{},
	}
	svc := NewService(r.patients, r.demographics, r.histories, r.oral, r.throat, r.vhi, r.grbas)
	svc.now = func() time.Time { return time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC) }
	return svc, r
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func seedPatient(t *testing.T, svc *Service, userID string) {
	t.Helper()
	_, err := svc.Onboard(context.Background(), OnboardingRequest{
		UserID: userID, ParticipantName: "Test Patient", ConsentAccepted: boolPtr(true),
	})
	require.NoError(t, err, "seed patient")
}

func scores(prefix string, v int) map[string]int {
	m := make(map[string]int, 10)
	for i := 1; i <= 10; i++ {
		m[fmt.Sprintf("%s%d", prefix, i)] = v
	}
	return m
}

func assertStatus(t *testing.T, err error, want int) *apperr.AppError {
	t.Helper()
	appErr, ok := apperr.As(err)
	require.True(t, ok, "expected AppError with status %d, got %v", want, err)
	require.Equal(t, want, appErr.HTTPStatus, appErr.Message)
	return appErr
}

// -- Tests --

func TestDurationMinutes(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(12*time.Minute + 31*time.Second)
	got := DurationMinutes(&start, &end)
	require.NotNil(t, got)
	assert.Equal(t, 13, *got)
	assert.Nil(t, DurationMinutes(&start, nil), "no completedAt")
}

func TestOnboard_RequiresFields(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Onboard(context.Background(), OnboardingRequest{})
	appErr := assertStatus(t, err, http.StatusBadRequest)
	assert.Len(t, appErr.Violations, 3)
}

func TestOnboard_DuplicateIsConflict(t *testing.T) {
	svc, _ := newTestService()
	seedPatient(t, svc, "P-100")
	_, err := svc.Onboard(context.Background(), OnboardingRequest{
		UserID: "P-100", ParticipantName: "Again", ConsentAccepted: boolPtr(true),
	})
	assertStatus(t, err, http.StatusConflict)
}

func TestSubmitDemographics_FlattensSections(t *testing.T) {
	svc, repos := newTestService()
	seedPatient(t, svc, "P-100")

	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(7 * time.Minute)
	d, err := svc.SubmitDemographics(context.Background(), DemographicsRequest{
		SessionRef:         SessionRef{UserID: "P-100", SessionID: "S-1", StartedAt: &start, CompletedAt: &end},
		RespondentIdentity: "Patient",
		Address:            DemographicsAddress{Country: "India", State: "Kerala", City: "Kochi"},
		Personal:           DemographicsPersonal{Gender: "Female", Age: intPtr(54)},
		Socioeconomic:      DemographicsSocioeconomic{Residence: "Urban", Disability: []string{"None"}},
		Date:               "2026-04-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "Kerala", d.State)
	assert.Equal(t, "Female", d.Gender)
	assert.Equal(t, "Urban", d.Residence)
	require.NotNil(t, d.DurationMinutes)
	assert.Equal(t, 7, *d.DurationMinutes)
	require.NotNil(t, d.FormDate)
	assert.Equal(t, 1, d.FormDate.Day())
	assert.Contains(t, repos.demographics.rows, "P-100")

	_, err = svc.SubmitDemographics(context.Background(), DemographicsRequest{
		SessionRef:         SessionRef{UserID: "P-100", SessionID: "S-2"},
		RespondentIdentity: "Patient",
	})
	assertStatus(t, err, http.StatusConflict)
}

func TestSubmitDemographics_UnknownPatient(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.SubmitDemographics(context.Background(), DemographicsRequest{
		SessionRef:         SessionRef{UserID: "ghost", SessionID: "S-1"},
		RespondentIdentity: "Patient",
	})
	assertStatus(t, err, http.StatusNotFound)
}

func TestSubmitHealthHistory_ReportsEveryMissingAnswer(t *testing.T) {
	svc, _ := newTestService()
	seedPatient(t, svc, "P-100")
	_, err := svc.SubmitHealthHistory(context.Background(), HealthHistoryRequest{
		SessionRef:          SessionRef{UserID: "P-100", SessionID: "S-1"},
		HealthHistoryFields: HealthHistoryFields{TobaccoUse: "Yes"},
	})
	appErr := assertStatus(t, err, http.StatusBadRequest)
	assert.Equal(t, []string{"alcoholUse is required", "substanceUse is required", "voiceUse is required"}, appErr.Violations)
}

func TestSubmitOralCancer_RejectsUnknownOptions(t *testing.T) {
	svc, _ := newTestService()
	seedPatient(t, svc, "P-100")
	_, err := svc.SubmitOralCancer(context.Background(), OralCancerRequest{
		SessionRef:   SessionRef{UserID: "P-100", SessionID: "S-1"},
		OralSections: OralSections{Diagnosis: Checklist{"yes": true, "maybe": true}},
		OralDetails:  OralDetails{Feeding: "tube"},
	})
	appErr := assertStatus(t, err, http.StatusBadRequest)
	assert.Len(t, appErr.Violations, 2)
}

func TestSubmitOralCancer_Summaries(t *testing.T) {
	svc, _ := newTestService()
	seedPatient(t, svc, "P-100")
	a, err := svc.SubmitOralCancer(context.Background(), OralCancerRequest{
		SessionRef: SessionRef{UserID: "P-100", SessionID: "S-1"},
		OralSections: OralSections{
			Diagnosis:  Checklist{"yes": true},
			Treatments: Checklist{"chemotherapy": true, "surgery": true, "palliative": false},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Yes", a.DiagnosisSummary())
	assert.Equal(t, "surgery, chemotherapy", a.TreatmentSummary(), "option order")
}

func TestSubmitThroatCancer_SitesAreIndependent(t *testing.T) {
	svc, _ := newTestService()
	seedPatient(t, svc, "P-100")
	req := ThroatRequest{
		SessionRef:   SessionRef{UserID: "P-100", SessionID: "S-1"},
		ThroatFields: ThroatFields{DiagnosisConfirmed: "Yes", FollowupStatus: StringList{"noDisease"}},
	}
	larynx, err := svc.SubmitThroatCancer(context.Background(), SiteLarynx, req)
	require.NoError(t, err)
	assert.Equal(t, "No", larynx.ChemoCompleted)
	assert.Equal(t, "Patient", larynx.RespondentIdentity)

	_, err = svc.SubmitThroatCancer(context.Background(), SitePharynx, req)
	require.NoError(t, err)
	_, err = svc.SubmitThroatCancer(context.Background(), SiteLarynx, req)
	assertStatus(t, err, http.StatusConflict)
}

func TestSubmitThroatCancer_Validation(t *testing.T) {
	svc, _ := newTestService()
	seedPatient(t, svc, "P-100")
	_, err := svc.SubmitThroatCancer(context.Background(), SiteLarynx, ThroatRequest{
		SessionRef:   SessionRef{UserID: "P-100", SessionID: "S-1"},
		ThroatFields: ThroatFields{FunctionalVoice: intPtr(5)},
	})
	appErr := assertStatus(t, err, http.StatusBadRequest)
	assert.Len(t, appErr.Violations, 3)
}

func TestSubmitVHI_ComputesScores(t *testing.T) {
	svc, _ := newTestService()
	seedPatient(t, svc, "P-100")
	v, err := svc.SubmitVHI(context.Background(), VHIRequest{
		SessionRef:       SessionRef{UserID: "P-100", SessionID: "S-1"},
		FunctionalScores: scores("F", 2),
		PhysicalScores:   scores("P", 2),
		EmotionalScores:  scores("E", 1),
		Language:         "ml",
	})
	require.NoError(t, err)
	assert.Equal(t, 50, v.TotalScore)
	assert.Equal(t, 20, v.FunctionalSubscore)
	assert.Equal(t, 10, v.EmotionalSubscore)
	assert.Equal(t, "Moderate", v.Severity())
	assert.Equal(t, LanguageMalayalam, v.Language)
	assert.True(t, v.DateCompleted.Equal(svc.now()), "dateCompleted defaults to now, got %s", v.DateCompleted)
}

func TestSubmitVHI_CombinesViolations(t *testing.T) {
	svc, _ := newTestService()
	bad := scores("F", 1)
	bad["F3"] = 9
	_, err := svc.SubmitVHI(context.Background(), VHIRequest{
		SessionRef:       SessionRef{UserID: "P-100"},
		FunctionalScores: bad,
		PhysicalScores:   scores("P", 0),
		EmotionalScores:  scores("E", 0),
		Language:         "french",
	})
	appErr := assertStatus(t, err, http.StatusBadRequest)
	assert.Len(t, appErr.Violations, 3, "sessionId, language and range violations")
}

func TestVHIHistory_NewestFirst(t *testing.T) {
	svc, _ := newTestService()
	seedPatient(t, svc, "P-100")
	for i, day := range []int{3, 1, 2} {
		completed := time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC)
		_, err := svc.SubmitVHI(context.Background(), VHIRequest{
			SessionRef:       SessionRef{UserID: "P-100", SessionID: fmt.Sprintf("S-%d", i), CompletedAt: &completed},
			FunctionalScores: scores("F", 0), PhysicalScores: scores("P", 0), EmotionalScores: scores("E", 0),
		})
		require.NoError(t, err, "submit %d", i)
	}
	list, err := svc.VHIHistory(context.Background(), "P-100")
	require.NoError(t, err)
	var days []int
	for _, v := range list {
		days = append(days, v.DateCompleted.Day())
	}
	assert.Equal(t, []int{3, 2, 1}, days)
}

func TestSubmitGRBAS_ReportsEveryViolation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.SubmitGRBAS(context.Background(), GRBASRequest{
		UserID: "P-100", SessionID: "S-1", TaskNumber: intPtr(0),
		GScore: intPtr(4), RScore: intPtr(1), BScore: intPtr(-1), AScore: intPtr(0),
	})
	appErr := assertStatus(t, err, http.StatusBadRequest)
	assert.Equal(t, []string{
		"taskNumber must be at least 1, got 0",
		"gScore must be between 0 and 3, got 4",
		"bScore must be between 0 and 3, got -1",
		"sScore is required",
		"clinicianName is required",
	}, appErr.Violations)
}

func TestGRBASForSession_OrderedByTask(t *testing.T) {
	svc, _ := newTestService()
	seedPatient(t, svc, "P-100")
	for _, n := range []int{3, 1, 2} {
		_, err := svc.SubmitGRBAS(context.Background(), GRBASRequest{
			UserID: "P-100", SessionID: "S-1", TaskNumber: intPtr(n),
			GScore: intPtr(1), RScore: intPtr(1), BScore: intPtr(1), AScore: intPtr(1), SScore: intPtr(1),
			ClinicianName: "Dr. Rao",
		})
		require.NoError(t, err, "submit task %d", n)
	}
	list, err := svc.GRBASForSession(context.Background(), "P-100", "S-1")
	require.NoError(t, err)
	var tasks []int
	for _, g := range list {
		tasks = append(tasks, g.TaskNumber)
	}
	assert.Equal(t, []int{1, 2, 3}, tasks)
}

func TestUpdatePatient(t *testing.T) {
	svc, _ := newTestService()
	seedPatient(t, svc, "P-100")
	name := "Renamed"
	p, err := svc.UpdatePatient(context.Background(), "P-100", PatientUpdate{ParticipantName: &name, ConsentAccepted: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.ParticipantName)
	assert.False(t, p.ConsentAccepted)

	empty := " "
	_, err = svc.UpdatePatient(context.Background(), "P-100", PatientUpdate{ParticipantName: &empty})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestDeletePatient(t *testing.T) {
	svc, repos := newTestService()
	seedPatient(t, svc, "P-100")
	require.NoError(t, svc.DeletePatient(context.Background(), "P-100"))
	assert.NotContains(t, repos.patients.patients, "P-100")
	assert.ErrorIs(t, svc.DeletePatient(context.Background(), "P-100"), apperr.ErrNotFound, "second delete")
}

func TestStringList_AcceptsScalar(t *testing.T) {
	var l StringList
	require.NoError(t, l.UnmarshalJSON([]byte(`"recurrent"`)))
	assert.Equal(t, StringList{"recurrent"}, l)

	require.NoError(t, l.UnmarshalJSON([]byte(`["a","b"]`)))
	assert.Len(t, l, 2)

	assert.Error(t, l.UnmarshalJSON([]byte(`42`)), "number")
}
