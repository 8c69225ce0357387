package pathway

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/urocare/pathway/internal/domain/patient"
	"github.com/urocare/pathway/internal/platform/auth"
	"github.com/urocare/pathway/internal/platform/validation"
	"github.com/urocare/pathway/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Checks and audit reads – all clinical staff
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleUrologist, auth.RoleNurse, auth.RoleCoordinator))
	readGroup.POST("/pathways/validate", h.ValidatePathway)
	readGroup.POST("/pathways/compliance", h.CheckPathwayCompliance)
	readGroup.POST("/investigations/compliance", h.CheckInvestigationCompliance)
	readGroup.GET("/patients/:id/pathway-logs", h.ListValidationLogs)
	readGroup.GET("/patients/:id/compliance-logs", h.ListComplianceLogs)

	// Pathway changes – admin, urologist
	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleUrologist))
	writeGroup.POST("/patients/:id/pathway", h.ApplyTransition)
}

type transitionRequest struct {
	PatientID   string  `json:"patient_id" validate:"required,uuid"`
	FromPathway *string `json:"from_pathway" validate:"omitempty,pathway"`
	ToPathway   string  `json:"to_pathway" validate:"required,pathway"`
}

type investigationRequest struct {
	PatientID         string `json:"patient_id" validate:"required,uuid"`
	InvestigationType string `json:"investigation_type" validate:"required"`
	InvestigationName string `json:"investigation_name"`
}

type applyRequest struct {
	ToPathway string `json:"to_pathway" validate:"required,pathway"`
	Force     bool   `json:"force"`
}

// bindTransition decodes and validates the request, defaulting from_pathway
// to the stored pathway.
func (h *Handler) bindTransition(c echo.Context) (uuid.UUID, string, string, error) {
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return uuid.Nil, "", "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(req); err != nil {
		return uuid.Nil, "", "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id := uuid.MustParse(req.PatientID)
	if req.FromPathway != nil {
		return id, *req.FromPathway, req.ToPathway, nil
	}
	from, err := h.svc.CurrentPathway(c.Request().Context(), id)
	if errors.Is(err, patient.ErrNotFound) {
		return uuid.Nil, "", "", echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	// Any other lookup error leaves from empty; the checks themselves degrade.
	return id, from, req.ToPathway, nil
}

func (h *Handler) ValidatePathway(c echo.Context) error {
	id, from, to, err := h.bindTransition(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.svc.Validate(c.Request().Context(), id, from, to))
}

func (h *Handler) CheckPathwayCompliance(c echo.Context) error {
	id, from, to, err := h.bindTransition(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.svc.CheckPathway(c.Request().Context(), id, from, to))
}

func (h *Handler) CheckInvestigationCompliance(c echo.Context) error {
	var req investigationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res := h.svc.CheckInvestigation(c.Request().Context(), uuid.MustParse(req.PatientID), req.InvestigationType, req.InvestigationName)
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ApplyTransition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req applyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validation.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if req.Force && !auth.HasRole(ctx, auth.RoleAdmin) {
		return echo.NewHTTPError(http.StatusForbidden, "only admin may force a pathway change")
	}

	t, err := h.svc.ApplyTransition(ctx, id, req.ToPathway, req.Force)
	switch {
	case errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrNoChange):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !t.Applied {
		return c.JSON(http.StatusUnprocessableEntity, t)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListValidationLogs(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ValidationLogs(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListComplianceLogs(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ComplianceLogs(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
