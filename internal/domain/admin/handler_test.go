package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceintake/intake/internal/platform/apperr"
	"github.com/voiceintake/intake/internal/platform/auth"
)

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func newTestHandler(t *testing.T) (*testEnv, *echo.Echo) {
	t.Helper()
	env := newTestService(t)
	env.seed()
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	jwt := auth.JWTMiddleware(auth.JWTConfig{Issuer: testIssuer, SigningKey: testKey})
	NewHandler(env.svc).RegisterRoutes(e.Group("/api"), jwt, passthrough)
	return env, e
}

func do(e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, e *echo.Echo) string {
	t.Helper()
	rec := do(e, http.MethodPost, "/api/admin/login", "", `{"username":"`+testAdmin+`","password":"`+testPasswd+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Data LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data.Token
}

// decodeData unmarshals the data member of a success envelope.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	body := struct {
		Data any `json:"data"`
	}{Data: v}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
}

func TestHandler_Login(t *testing.T) {
	_, e := newTestHandler(t)
	rec := do(e, http.MethodPost, "/api/admin/login", "", `{"username":"`+testAdmin+`","password":"`+testPasswd+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"admin":{"username":"clinic-admin","role":"admin"}`)
}

func TestHandler_Login_WrongPassword(t *testing.T) {
	_, e := newTestHandler(t)
	rec := do(e, http.MethodPost, "/api/admin/login", "", `{"username":"`+testAdmin+`","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Login_UnknownField(t *testing.T) {
	_, e := newTestHandler(t)
	rec := do(e, http.MethodPost, "/api/admin/login", "", `{"username":"a","password":"b","role":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_RequiresToken(t *testing.T) {
	_, e := newTestHandler(t)
	for _, path := range []string{
		"/api/admin/patient-analysis",
		"/api/admin/statistics",
		"/api/admin/recordings",
		"/api/admin/patient/P-1/profile",
	} {
		assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, path, "", "").Code, path)
	}
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/api/admin/statistics", "not-a-jwt", "").Code, "bad token")
}

func TestHandler_PatientAnalysis(t *testing.T) {
	_, e := newTestHandler(t)
	tok := login(t, e)

	rec := do(e, http.MethodGet, "/api/admin/patient-analysis?limit=2&sortBy=userId", tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Patients []json.RawMessage `json:"patients"`
		Total    int               `json:"total"`
		HasMore  bool              `json:"hasMore"`
	}
	decodeData(t, rec, &page)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Patients, 2)
	assert.True(t, page.HasMore)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/api/admin/patient-analysis?sortBy=password", tok, "").Code, "unknown sort key")
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/api/admin/patient-analysis?startDate=yesterday", tok, "").Code, "bad date")
}

func TestHandler_PatientProfile(t *testing.T) {
	_, e := newTestHandler(t)
	tok := login(t, e)

	rec := do(e, http.MethodGet, "/api/admin/patient/P-1/profile", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"downloadUrl":"/api/admin/recordings/`)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/admin/patient/nobody/profile", tok, "").Code)
}

func TestHandler_ExportPatient(t *testing.T) {
	_, e := newTestHandler(t)
	tok := login(t, e)

	rec := do(e, http.MethodGet, "/api/admin/patient/P-1/export?format=zip&includeAudio=true", tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `attachment; filename="P-1_complete_export.zip"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.Equal(t, "full", rec.Header().Get("X-Report-Status"))
	assert.Equal(t, "PK-single", rec.Body.String())

	rec = do(e, http.MethodGet, "/api/admin/patient/P-1/export?includeAudio=maybe&sampleRate=fast", tok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "includeAudio")
	assert.Contains(t, rec.Body.String(), "sampleRate")
}

func TestHandler_ExportPatient_AudioByDefault(t *testing.T) {
	env, e := newTestHandler(t)
	tok := login(t, e)

	rec := do(e, http.MethodGet, "/api/admin/patient/P-1/export", tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.exporter.lastOpts.IncludeAudio, "omitted includeAudio means audio is included")

	rec = do(e, http.MethodGet, "/api/admin/patient/P-1/export?includeAudio=false", tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, env.exporter.lastOpts.IncludeAudio)
}

func TestHandler_ExportCohort(t *testing.T) {
	env, e := newTestHandler(t)
	tok := login(t, e)

	rec := do(e, http.MethodGet, "/api/admin/export-comprehensive?startDate=2026-02-01", tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, env.exporter.cohorts)
	assert.Equal(t, []string{"P-2", "P-3"}, env.exporter.cohorts[0])
	assert.True(t, env.exporter.lastOpts.IncludeAudio, "cohort exports include audio by default")

	rec = do(e, http.MethodGet, "/api/admin/export-comprehensive?format=json&endDate=2026-01-31", tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"analysisReport"`)
	assert.Contains(t, rec.Body.String(), `"patient_id":"P-1"`)

	rec = do(e, http.MethodGet, "/api/admin/export-comprehensive?startDate=2030-01-01", tok, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NO_DATA")
}

func TestHandler_Recordings(t *testing.T) {
	_, e := newTestHandler(t)
	tok := login(t, e)

	rec := do(e, http.MethodGet, "/api/admin/recordings?taskType=vowel_a", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var overview RecordingsOverview
	decodeData(t, rec, &overview)
	assert.Equal(t, 2, overview.Summary.TotalRecordings)
	assert.Equal(t, 2, overview.Summary.TotalPatients)

	rec = do(e, http.MethodGet, "/api/admin/patient/P-1/recordings", tok, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "counting")
}

func TestHandler_DownloadRecording(t *testing.T) {
	env, e := newTestHandler(t)
	tok := login(t, e)
	r := env.recordings.list[1]

	rec := do(e, http.MethodGet, "/api/admin/recordings/"+r.ID.String()+"/download", tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "one two", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), ".m4a")

	missing := env.recordings.list[2]
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/admin/recordings/"+missing.ID.String()+"/download", tok, "").Code, "missing file")
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/api/admin/recordings/not-a-uuid/download", tok, "").Code)
}

func TestHandler_DownloadWAV(t *testing.T) {
	env, e := newTestHandler(t)
	tok := login(t, e)
	r := env.recordings.list[0]

	rec := do(e, http.MethodGet, "/api/admin/recordings/"+r.ID.String()+"/download-wav?sampleRate=16000", tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "RIFFaaa", rec.Body.String())
	assert.Equal(t, "audio/wav", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "7", rec.Header().Get(echo.HeaderContentLength))
}

func TestHandler_ClinicalNotes(t *testing.T) {
	_, e := newTestHandler(t)
	tok := login(t, e)

	rec := do(e, http.MethodPost, "/api/admin/patient/P-1/clinical-notes", tok, `{"diagnosis":"nodules","followUpRequired":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"submittedAt"`)
	assert.Contains(t, rec.Body.String(), `"submittedBy":"clinic-admin"`)
}

func TestHandler_UpdateAndDeletePatient(t *testing.T) {
	env, e := newTestHandler(t)
	tok := login(t, e)

	rec := do(e, http.MethodPut, "/api/admin/patient/P-1", tok, `{"participantName":"Asha M"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Asha M", env.patients.patients["P-1"].ParticipantName)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPut, "/api/admin/patient/P-1", tok, `{"userId":"P-9"}`).Code, "unknown field")

	assert.Equal(t, http.StatusOK, do(e, http.MethodDelete, "/api/admin/patient/P-3", tok, "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodDelete, "/api/admin/patient/P-3", tok, "").Code, "second delete")
}
