package decision

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/urocare/pathway/internal/domain/patient"
	"github.com/urocare/pathway/internal/platform/auth"
	"github.com/urocare/pathway/internal/platform/validation"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – all clinical staff
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleUrologist, auth.RoleNurse, auth.RoleCoordinator))
	readGroup.GET("/patients/:id/recommendations", h.GetRecommendations)
	readGroup.GET("/recommendations/:id", h.GetRecommendation)

	// Write endpoints – admin, urologist
	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleUrologist))
	writeGroup.POST("/patients/:id/recommendations", h.CreateRecommendation)
	writeGroup.PUT("/recommendations/:id/status", h.UpdateStatus)
}

type createRequest struct {
	Type               string  `json:"type"`
	Priority           string  `json:"priority" validate:"omitempty,oneof=low medium high"`
	Text               string  `json:"text" validate:"required"`
	GuidelineReference *string `json:"guideline_reference"`
	EvidenceLevel      *string `json:"evidence_level"`
	Action             *string `json:"action"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted dismissed"`
}

func (h *Handler) GetRecommendations(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	res, err := h.svc.RecommendationsFor(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetRecommendation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.GetRecommendation(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "recommendation not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) CreateRecommendation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r := &Recommendation{
		PatientID:          id,
		Type:               req.Type,
		Priority:           req.Priority,
		Text:               req.Text,
		GuidelineReference: req.GuidelineReference,
		EvidenceLevel:      req.EvidenceLevel,
		Action:             req.Action,
	}
	if err := h.svc.CreateRecommendation(c.Request().Context(), r); err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	switch err := h.svc.UpdateStatus(ctx, id, req.Status); {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "recommendation not found")
	case errors.Is(err, ErrNotPending):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	r, err := h.svc.GetRecommendation(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}
