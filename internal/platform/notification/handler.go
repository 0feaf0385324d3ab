package notification

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Anup697028/mediwise-chat/pkg/pagination"
)

// Handler exposes the notification log over HTTP via Echo.
type Handler struct {
	manager *Manager
}

// NewHandler creates a new Handler.
func NewHandler(mgr *Manager) *Handler {
	return &Handler{manager: mgr}
}

// RegisterRoutes registers all notification routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications/stats", h.HandleStats)
	g.GET("/notifications/:id", h.HandleGet)
	g.GET("/notifications", h.HandleList)
	g.POST("/notifications/:id/retry", h.HandleRetry)
}

// HandleGet handles GET /notifications/:id.
func (h *Handler) HandleGet(c echo.Context) error {
	n, err := h.manager.GetNotification(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, n)
}

// HandleList handles GET /notifications?recipient=&limit=&offset=.
func (h *Handler) HandleList(c echo.Context) error {
	p := pagination.FromContext(c)
	all := h.manager.ListByRecipient(c.Request().Context(), c.QueryParam("recipient"))
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(all, p), len(all), p.Limit, p.Offset))
}

// HandleRetry handles POST /notifications/:id/retry.
func (h *Handler) HandleRetry(c echo.Context) error {
	id := c.Param("id")
	err := h.manager.Retry(c.Request().Context(), id)
	switch {
	case errors.Is(err, ErrNotificationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotRetryable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	// A failed resend is still reported with the notification's new state.
	n, _ := h.manager.GetNotification(c.Request().Context(), id)
	return c.JSON(http.StatusOK, n)
}

// HandleStats handles GET /notifications/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.NotificationStats(c.Request().Context()))
}
