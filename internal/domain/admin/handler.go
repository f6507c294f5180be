package admin

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/voiceintake/intake/internal/domain/export"
	"github.com/voiceintake/intake/internal/domain/intake"
	"github.com/voiceintake/intake/internal/domain/voice"
	"github.com/voiceintake/intake/internal/platform/apperr"
	"github.com/voiceintake/intake/internal/platform/auth"
	"github.com/voiceintake/intake/internal/platform/blobstore"
	"github.com/voiceintake/intake/internal/platform/httpx"
	"github.com/voiceintake/intake/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the dashboard under api/admin. Login is public and
// passes through loginLimit; every other route requires an admin bearer
// token. The protected group is returned so further admin-only handlers can
// be mounted on it.
func (h *Handler) RegisterRoutes(api *echo.Group, jwt, loginLimit echo.MiddlewareFunc) *echo.Group {
	g := api.Group("/admin")
	g.POST("/login", h.Login, loginLimit)

	protected := g.Group("", jwt, auth.RequireRole(auth.RoleAdmin))
	protected.GET("/patient-analysis", h.PatientAnalysis)
	protected.GET("/statistics", h.Statistics)
	protected.GET("/export-comprehensive", h.ExportCohort)

	protected.GET("/patient/:id/profile", h.PatientProfile)
	protected.GET("/patient/:id/export", h.ExportPatient)
	protected.GET("/patient/:id/recordings", h.PatientRecordings)
	protected.POST("/patient/:id/clinical-notes", h.SubmitNotes)
	protected.PUT("/patient/:id", h.UpdatePatient)
	protected.DELETE("/patient/:id", h.DeletePatient)

	protected.GET("/recordings", h.Recordings)
	protected.GET("/recordings/:id/download", h.DownloadRecording)
	protected.GET("/recordings/:id/download-wav", h.DownloadWAV)
	return protected
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := httpx.DecodeStrict(c, &req); err != nil {
		return err
	}
	resp, err := h.svc.Login(req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Login successful", resp)
}

func (h *Handler) PatientAnalysis(c echo.Context) error {
	r, err := httpx.ParseDateRange(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	analysis, err := h.svc.AnalyzePatients(c.Request().Context(), AnalysisQuery{
		PatientID: c.QueryParam("patientId"),
		Range:     r,
		SortBy:    c.QueryParam("sortBy"),
		SortOrder: c.QueryParam("sortOrder"),
		Limit:     p.Limit,
		Offset:    p.Offset,
	})
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Patient analysis retrieved", analysis)
}

func (h *Handler) PatientProfile(c echo.Context) error {
	r, err := httpx.ParseDateRange(c)
	if err != nil {
		return err
	}
	p, err := h.svc.PatientProfile(c.Request().Context(), c.Param("id"), r)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Patient profile retrieved", p)
}

// exportOptions reads the export query parameters. Audio is included
// unless includeAudio is explicitly false.
func exportOptions(c echo.Context) (export.Options, error) {
	opts := export.Options{
		Format:       c.QueryParam("format"),
		AudioFormat:  c.QueryParam("audioFormat"),
		IncludeAudio: true,
	}
	var violations []string
	if s := c.QueryParam("includeAudio"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			violations = append(violations, fmt.Sprintf("includeAudio must be true or false, got %q", s))
		}
		opts.IncludeAudio = v
	}
	if s := c.QueryParam("sampleRate"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			violations = append(violations, fmt.Sprintf("sampleRate must be an integer, got %q", s))
		}
		opts.SampleRate = v
	}
	if len(violations) > 0 {
		return opts, apperr.Validation("invalid export options", violations)
	}
	r, err := httpx.ParseDateRange(c)
	if err != nil {
		return opts, err
	}
	opts.Range = r
	return opts, nil
}

func (h *Handler) ExportPatient(c echo.Context) error {
	opts, err := exportOptions(c)
	if err != nil {
		return err
	}
	art, err := h.svc.ExportPatient(c.Request().Context(), c.Param("id"), opts)
	if err != nil {
		return err
	}
	return sendArtifact(c, art)
}

func (h *Handler) ExportCohort(c echo.Context) error {
	opts, err := exportOptions(c)
	if err != nil {
		return err
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		data, err := h.svc.CohortData(c.Request().Context(), opts)
		if err != nil {
			return err
		}
		return httpx.OK(c, http.StatusOK, "Cohort data retrieved", data)
	}
	art, err := h.svc.ExportCohort(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	return sendArtifact(c, art)
}

func attachment(c echo.Context, name string) {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
}

func sendArtifact(c echo.Context, art *export.Artifact) error {
	attachment(c, art.FileName)
	if art.Report.Status != "" {
		c.Response().Header().Set("X-Report-Status", art.Report.Status)
	}
	return c.Blob(http.StatusOK, art.ContentType, art.Data)
}

func (h *Handler) Statistics(c echo.Context) error {
	st, err := h.svc.Statistics(c.Request().Context())
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Statistics retrieved", st)
}

func (h *Handler) Recordings(c echo.Context) error {
	r, err := httpx.ParseDateRange(c)
	if err != nil {
		return err
	}
	o, err := h.svc.Recordings(c.Request().Context(), voice.RecordingQuery{
		UserID:        c.QueryParam("userId"),
		TaskType:      c.QueryParam("taskType"),
		PatientSearch: c.QueryParam("patientSearch"),
		From:          r.Start,
		To:            r.End,
		SortBy:        c.QueryParam("sortBy"),
		SortOrder:     c.QueryParam("sortOrder"),
	})
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Recordings retrieved", o)
}

func (h *Handler) PatientRecordings(c echo.Context) error {
	list, err := h.svc.PatientRecordings(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Recordings retrieved", list)
}

func recordingID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("invalid recording id: " + c.Param("id"))
	}
	return id, nil
}

func (h *Handler) DownloadRecording(c echo.Context) error {
	id, err := recordingID(c)
	if err != nil {
		return err
	}
	rec, rc, err := h.svc.OpenRecording(c.Request().Context(), id)
	if err != nil {
		return err
	}
	defer rc.Close()
	attachment(c, recordingFileName(rec))
	return c.Stream(http.StatusOK, blobstore.ContentTypeFor(rec.AudioFilePath), rc)
}

func recordingFileName(rec *voice.Recording) string {
	if rec.OriginalName != "" {
		return export.Sanitize(rec.OriginalName)
	}
	name := rec.AudioFilePath
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return export.Sanitize(name)
}

func (h *Handler) DownloadWAV(c echo.Context) error {
	id, err := recordingID(c)
	if err != nil {
		return err
	}
	rate := 0
	if s := c.QueryParam("sampleRate"); s != "" {
		if rate, err = strconv.Atoi(s); err != nil {
			return apperr.Validation("invalid download request", []string{fmt.Sprintf("sampleRate must be an integer, got %q", s)})
		}
	}
	wav, err := h.svc.RecordingWAV(c.Request().Context(), id, rate)
	if err != nil {
		return err
	}
	// The staged file and its directory go away once the body is written.
	defer wav.Close()
	attachment(c, wav.Name)
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(wav.Size, 10))
	return c.Stream(http.StatusOK, "audio/wav", io.Reader(wav.File))
}

func (h *Handler) SubmitNotes(c echo.Context) error {
	var notes ClinicalNotes
	if err := httpx.DecodeStrict(c, &notes); err != nil {
		return err
	}
	out, err := h.svc.SubmitNotes(c.Request().Context(), c.Param("id"),
		auth.UserIDFromContext(c.Request().Context()), notes)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Clinical notes submitted", out)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var u intake.PatientUpdate
	if err := httpx.DecodeStrict(c, &u); err != nil {
		return err
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), c.Param("id"), u)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Patient updated", p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.svc.DeletePatient(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Patient and related records deleted", nil)
}
