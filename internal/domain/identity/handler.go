package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Anup697028/mediwise-chat/internal/platform/auth"
)

type Handler struct {
	svc     *Service
	tokens  *auth.TokenIssuer
	revoked *auth.TokenRevocationStore
}

func NewHandler(svc *Service, tokens *auth.TokenIssuer, revoked *auth.TokenRevocationStore) *Handler {
	return &Handler{svc: svc, tokens: tokens, revoked: revoked}
}

// RegisterRoutes mounts the sign-in routes on api and the routes that need a
// live session behind session. authMiddleware, typically a rate limiter, wraps
// every /auth route.
func (h *Handler) RegisterRoutes(api *echo.Group, session echo.MiddlewareFunc, authMiddleware ...echo.MiddlewareFunc) {
	a := api.Group("/auth", authMiddleware...)
	a.POST("/login", h.Login)
	a.POST("/register", h.Register)
	a.POST("/otp/send", h.SendOTP)
	a.POST("/otp/verify", h.VerifyOTP)
	a.POST("/otp/login", h.LoginWithOTP)
	a.POST("/otp/register", h.RegisterWithOTP)
	a.POST("/biometric/login", h.LoginWithBiometric)

	a.PUT("/biometric", h.UpdateBiometricPreference, session)
	a.POST("/logout", h.Logout, session)
	a.GET("/me", h.Me, session)
	api.PUT("/profile", h.UpdateProfile, session)
}

// SessionResponse is returned by every call that signs a user in.
type SessionResponse struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Role     Role   `json:"role,omitempty"`
	OTP      string `json:"otp,omitempty"`
}

type otpRequest struct {
	Identifier string `json:"identifier"`
	Method     string `json:"method"`
	OTP        string `json:"otp,omitempty"`
}

func (h *Handler) signedIn(c echo.Context, status int, u *User) error {
	token, exp, err := h.tokens.Issue(u.ID, string(u.Role))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(status, SessionResponse{User: u, Token: token, ExpiresAt: exp})
}

// -- Sign in --

func (h *Handler) Login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return h.signedIn(c, http.StatusOK, u)
}

func (h *Handler) Register(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Register(c.Request().Context(), req.Email, req.Password, req.Name, req.Role)
	if err != nil {
		return httpError(err)
	}
	return h.signedIn(c, http.StatusCreated, u)
}

func (h *Handler) SendOTP(c echo.Context) error {
	var req otpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.SendOTP(c.Request().Context(), req.Identifier, req.Method)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) VerifyOTP(c echo.Context) error {
	var req otpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ok, err := h.svc.VerifyOTP(c.Request().Context(), req.Identifier, req.OTP)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"valid": ok})
}

func (h *Handler) LoginWithOTP(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.LoginWithOTP(c.Request().Context(), req.Email, req.Password, req.OTP)
	if err != nil {
		return httpError(err)
	}
	return h.signedIn(c, http.StatusOK, u)
}

func (h *Handler) RegisterWithOTP(c echo.Context) error {
	var req OTPRegistration
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.RegisterWithOTP(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]*User{"user": u})
}

func (h *Handler) LoginWithBiometric(c echo.Context) error {
	u, err := h.svc.LoginWithBiometric(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return h.signedIn(c, http.StatusOK, u)
}

// -- Session bound --

func (h *Handler) actor(c echo.Context) (*User, error) {
	ctx := c.Request().Context()
	return h.svc.Actor(ctx, auth.UserIDFromContext(ctx))
}

func (h *Handler) UpdateBiometricPreference(c echo.Context) error {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	u, err := h.svc.UpdateBiometricPreference(c.Request().Context(), actor, req.Enabled)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	if jti, exp := auth.TokenFromContext(ctx); jti != "" && h.revoked != nil {
		h.revoked.Revoke(jti, exp)
	}
	if err := h.svc.Logout(ctx); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, actor)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var req ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := h.actor(c)
	if err != nil {
		return httpError(err)
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), actor, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

// httpError maps identity errors to HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMissingIdentifier):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidOTP):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrBiometricNotEnrolled):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUserAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrTooManyAttempts), errors.Is(err, ErrCooldownActive):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
