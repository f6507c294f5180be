package voice

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/voiceintake/intake/internal/platform/apperr"
	"github.com/voiceintake/intake/internal/platform/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the recording and session endpoints used by the
// intake app.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/voice-recordings", h.UploadRecording)
	api.GET("/voice-recordings/instructions/:language", h.Instructions)
	api.GET("/voice-recordings/:userId/:sessionId", h.SessionRecordings)

	api.POST("/task-assignments", h.CreateAssignment)
	api.POST("/task-assignments/complete", h.CompleteTask)
	api.GET("/task-assignments/:userId/:sessionId", h.GetAssignment)

	api.POST("/session-progress/save", h.SaveProgress)
	api.GET("/session-progress/fetch", h.FetchProgress)
	api.POST("/session-progress/complete", h.CompleteProgress)

	api.POST("/session-feedback", h.SubmitFeedback)
}

func (h *Handler) UploadRecording(c echo.Context) error {
	fh, err := c.FormFile("audio")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.PayloadTooLarge(maxErr.Limit)
		}
		return apperr.Validation("invalid recording submission", []string{"audio file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.Storage(err)
	}
	defer f.Close()

	duration := c.FormValue("durationSeconds")
	if duration == "" {
		duration = c.FormValue("duration")
	}
	var seconds float64
	if duration != "" {
		seconds, err = strconv.ParseFloat(strings.TrimSpace(duration), 64)
		if err != nil {
			return apperr.Validation("invalid recording submission", []string{"durationSeconds must be a number"})
		}
	}

	rec, err := h.svc.UploadRecording(c.Request().Context(), RecordingUpload{
		UserID:          c.FormValue("userId"),
		SessionID:       c.FormValue("sessionId"),
		TaskType:        c.FormValue("taskType"),
		Language:        c.FormValue("language"),
		DurationSeconds: seconds,
		FileName:        fh.Filename,
		Content:         f,
	})
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, "Recording saved successfully", rec)
}

func (h *Handler) Instructions(c echo.Context) error {
	lang, list, ok := InstructionsFor(c.Param("language"))
	if !ok {
		return apperr.NotFound("instructions for language", c.Param("language"))
	}
	return httpx.OK(c, http.StatusOK, "Instructions retrieved", map[string]any{
		"language":     lang,
		"instructions": list,
	})
}

func (h *Handler) SessionRecordings(c echo.Context) error {
	list, err := h.svc.SessionRecordings(c.Request().Context(), c.Param("userId"), c.Param("sessionId"))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*Recording{}
	}
	return httpx.OK(c, http.StatusOK, "Recordings retrieved", map[string]any{
		"count":      len(list),
		"recordings": list,
	})
}

func (h *Handler) CreateAssignment(c echo.Context) error {
	var req AssignmentRequest
	if err := httpx.DecodeStrict(c, &req); err != nil {
		return err
	}
	a, err := h.svc.CreateAssignment(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, "Task assignment created", a)
}

func (h *Handler) GetAssignment(c echo.Context) error {
	a, err := h.svc.GetAssignment(c.Request().Context(), c.Param("userId"), c.Param("sessionId"))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Task assignment retrieved", a)
}

func (h *Handler) CompleteTask(c echo.Context) error {
	var req CompleteTaskRequest
	if err := httpx.DecodeStrict(c, &req); err != nil {
		return err
	}
	a, err := h.svc.CompleteTask(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Task marked completed", a)
}

func (h *Handler) SaveProgress(c echo.Context) error {
	var req ProgressRequest
	if err := httpx.DecodeStrict(c, &req); err != nil {
		return err
	}
	p, err := h.svc.SaveProgress(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Progress saved successfully", p)
}

func (h *Handler) FetchProgress(c echo.Context) error {
	p, err := h.svc.FetchProgress(c.Request().Context(), c.QueryParam("userId"), c.QueryParam("sessionId"))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Progress retrieved", p)
}

func (h *Handler) CompleteProgress(c echo.Context) error {
	var key SessionKey
	if err := httpx.DecodeStrict(c, &key); err != nil {
		return err
	}
	if err := h.svc.CompleteProgress(c.Request().Context(), key); err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Session marked as complete", nil)
}

func (h *Handler) SubmitFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := httpx.DecodeStrict(c, &req); err != nil {
		return err
	}
	f, err := h.svc.SubmitFeedback(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, "Session feedback submitted successfully", f)
}
