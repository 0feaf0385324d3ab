package scheduling

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Anup697028/mediwise-chat/internal/domain/identity"
	"github.com/Anup697028/mediwise-chat/internal/platform/auth"
)

// Actors resolves the verified token subject to the signed-in user.
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

// RegisterRoutes mounts the doctor directory on api and the appointment
// routes behind session.
func (h *Handler) RegisterRoutes(api *echo.Group, session echo.MiddlewareFunc) {
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.GET("/doctors/:id/slots", h.ListSlots)

	patientOnly := auth.RequireRole(string(identity.RolePatient))
	g := api.Group("/appointments", session)
	g.GET("", h.ListAppointments)
	g.POST("", h.BookAppointment, patientOnly)
	g.GET("/:id", h.GetAppointment)
	g.POST("/:id/pay", h.CompletePayment, patientOnly)
	g.POST("/:id/cancel", h.CancelAppointment)
}

func (h *Handler) actor(c echo.Context) (*identity.User, error) {
	ctx := c.Request().Context()
	return h.actors.Actor(ctx, auth.UserIDFromContext(ctx))
}

// -- Doctors --

func (h *Handler) ListDoctors(c echo.Context) error {
	docs, err := h.svc.GetDoctors(c.Request().Context(), c.QueryParam("specialty"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	doc, err := h.svc.GetDoctorByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) ListSlots(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	slots, err := h.svc.AvailableTimes(c.Request().Context(), c.Param("id"), date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctorId": c.Param("id"),
		"date":     date,
		"slots":    slots,
	})
}

// -- Appointments --

func (h *Handler) ListAppointments(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	items, err := h.svc.GetAppointments(c.Request().Context(), actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	a, err := h.svc.BookAppointment(c.Request().Context(), actor, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) CompletePayment(c echo.Context) error {
	var req struct {
		PaymentMethodID string `json:"paymentMethodId"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	a, err := h.svc.CompletePayment(c.Request().Context(), actor, c.Param("id"), req.PaymentMethodID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAppointment):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrAppointmentNotFound), errors.Is(err, ErrDoctorNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
