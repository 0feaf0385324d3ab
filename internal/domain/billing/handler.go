package billing

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

// RegisterRoutes mounts the payment method routes behind session.
func (h *Handler) RegisterRoutes(api *echo.Group, session echo.MiddlewareFunc) {
	g := api.Group("/payment-methods", session, auth.RequireRole(string(identity.RolePatient)))
	g.GET("", h.List)
	g.POST("", h.Add)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Remove)
}

func (h *Handler) actor(c echo.Context) (*identity.User, error) {
	ctx := c.Request().Context()
	return h.actors.Actor(ctx, auth.UserIDFromContext(ctx))
}

func (h *Handler) List(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	methods, err := h.svc.ListPaymentMethods(c.Request().Context(), actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, methods)
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	pm, err := h.svc.GetPaymentMethod(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pm)
}

func (h *Handler) Add(c echo.Context) error {
	var in NewPaymentMethod
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	pm, err := h.svc.AddPaymentMethod(c.Request().Context(), actor, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, pm)
}

func (h *Handler) Remove(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	if err := h.svc.RemovePaymentMethod(c.Request().Context(), actor, c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidPaymentMethod):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrPaymentMethodNotFound), errors.Is(err, identity.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
