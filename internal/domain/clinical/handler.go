package clinical

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Anup697028/mediwise-chat/internal/domain/identity"
	"github.com/Anup697028/mediwise-chat/internal/domain/scheduling"
	"github.com/Anup697028/mediwise-chat/internal/platform/auth"
)

type Actors interface {
	Actor(ctx context.Context, userID string) (*identity.User, error)
}

type Handler struct {
	svc    *Service
	actors Actors
}

func NewHandler(svc *Service, actors Actors) *Handler {
	return &Handler{svc: svc, actors: actors}
}

func (h *Handler) RegisterRoutes(api *echo.Group, session echo.MiddlewareFunc) {
	doctorOnly := auth.RequireRole(string(identity.RoleDoctor))
	api.GET("/consultations", h.ListConsultations, session)
	api.POST("/consultations", h.RecordConsultation, session, doctorOnly)
	api.GET("/prescriptions", h.ListPrescriptions, session)
}

func (h *Handler) actor(c echo.Context) (*identity.User, error) {
	ctx := c.Request().Context()
	return h.actors.Actor(ctx, auth.UserIDFromContext(ctx))
}

func (h *Handler) ListConsultations(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	items, err := h.svc.GetConsultations(c.Request().Context(), actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) RecordConsultation(c echo.Context) error {
	var req ConsultationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	con, err := h.svc.RecordConsultation(c.Request().Context(), actor, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, con)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	items, err := h.svc.GetPrescriptions(c.Request().Context(), actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidConsultation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, scheduling.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
