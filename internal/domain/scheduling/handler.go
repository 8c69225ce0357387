package scheduling

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/urocare/pathway/internal/platform/auth"
	"github.com/urocare/pathway/pkg/pagination"
)

type Handler struct {
	sched Runner
	state func() Status
	runs  RunRepository
	appts AppointmentRepository
}

func NewHandler(sched *Scheduler, runs RunRepository, appts AppointmentRepository) *Handler {
	return &Handler{sched: sched, state: sched.Status, runs: runs, appts: appts}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – all clinical staff
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleUrologist, auth.RoleNurse, auth.RoleCoordinator))
	readGroup.GET("/patients/:id/appointments", h.ListAppointments)
	readGroup.GET("/scheduler/status", h.GetStatus)
	readGroup.GET("/scheduler/runs", h.ListRuns)

	// Operator trigger – admin only
	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/scheduler/run", h.TriggerRun)
}

type runRequest struct {
	Force bool `json:"force"`
}

func (h *Handler) TriggerRun(c echo.Context) error {
	var req runRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	// the run outlives a dropped client connection
	run, err := h.sched.Run(context.WithoutCancel(c.Request().Context()), TriggerManual, req.Force)
	switch {
	case errors.Is(err, ErrLocked):
		return echo.NewHTTPError(http.StatusConflict, "scheduler is already running")
	case errors.Is(err, ErrAlreadyRan):
		return echo.NewHTTPError(http.StatusConflict, "scheduler already ran today; pass force to run again")
	case err != nil && run == nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// a failed run is still recorded and returned
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.state())
}

func (h *Handler) ListRuns(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.runs.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListAppointments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.appts.ListByPatient(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
