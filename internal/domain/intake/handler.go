package intake

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/voiceintake/intake/internal/platform/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the patient-facing form endpoints. They are not
// behind admin auth; the intake app submits them directly.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/onboarding", h.Onboard)
	api.GET("/onboarding/:userId", h.GetPatient)
	api.POST("/demographics", h.SubmitDemographics)
	api.POST("/confounder", h.SubmitHealthHistory)
	api.POST("/oral-cancer", h.SubmitOralCancer)
	api.POST("/larynx", h.SubmitLarynx)
	api.POST("/pharynx", h.SubmitPharynx)
	api.POST("/vhi", h.SubmitVHI)
	api.GET("/vhi/history/:userId", h.VHIHistory)
	api.POST("/grbas", h.SubmitGRBAS)
	api.GET("/grbas/:userId/:sessionId", h.GRBASForSession)
}

func (h *Handler) Onboard(c echo.Context) error {
	var req OnboardingRequest
	if err := httpx.DecodeStrict(c, &req); err != nil {
		return err
	}
	p, err := h.svc.Onboard(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, "Onboarding completed", p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Patient found", p)
}

func (h *Handler) SubmitDemographics(c echo.Context) error {
	var req DemographicsRequest
	if err := httpx.DecodeStrict(c, &req); err != nil {
		return err
	}
	d, err := h.svc.SubmitDemographics(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, "Demographics saved successfully", d)
}

func (h *Handler) SubmitHealthHistory(c echo.Context) error {
	var req HealthHistoryRequest
	if err := httpx.DecodeStrict(c, &req); err != nil {
		return err
	}
	hh, err := h.svc.SubmitHealthHistory(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, "Health history saved successfully", hh)
}

func (h *Handler) SubmitOralCancer(c echo.Context) error {
	var req OralCancerRequest
	if err := httpx.DecodeStrict(c, &req); err != nil {
		return err
	}
	a, err := h.svc.SubmitOralCancer(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, "Oral cancer data saved successfully", a)
}

func (h *Handler) SubmitLarynx(c echo.Context) error {
	return h.submitThroat(c, SiteLarynx, "Larynx/Hypopharynx data saved successfully")
}

func (h *Handler) SubmitPharynx(c echo.Context) error {
	return h.submitThroat(c, SitePharynx, "Pharynx data saved successfully")
}

func (h *Handler) submitThroat(c echo.Context, site, message string) error {
	var req ThroatRequest
	if err := httpx.DecodeStrict(c, &req); err != nil {
		return err
	}
	a, err := h.svc.SubmitThroatCancer(c.Request().Context(), site, req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, message, a)
}

func (h *Handler) SubmitVHI(c echo.Context) error {
	var req VHIRequest
	if err := httpx.DecodeStrict(c, &req); err != nil {
		return err
	}
	v, err := h.svc.SubmitVHI(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, "VHI assessment saved successfully", v)
}

func (h *Handler) VHIHistory(c echo.Context) error {
	list, err := h.svc.VHIHistory(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*VHIAssessment{}
	}
	return httpx.OK(c, http.StatusOK, "VHI history retrieved", list)
}

func (h *Handler) SubmitGRBAS(c echo.Context) error {
	var req GRBASRequest
	if err := httpx.DecodeStrict(c, &req); err != nil {
		return err
	}
	g, err := h.svc.SubmitGRBAS(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, "GRBAS rating saved successfully", g)
}

func (h *Handler) GRBASForSession(c echo.Context) error {
	list, err := h.svc.GRBASForSession(c.Request().Context(), c.Param("userId"), c.Param("sessionId"))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*GRBASRating{}
	}
	return httpx.OK(c, http.StatusOK, "GRBAS ratings retrieved", list)
}
