// Package handlers exposes the HTTP surface of the auth service.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alexivashchenko/auth-service/internal/common"
	"github.com/alexivashchenko/auth-service/internal/logging"
	"github.com/alexivashchenko/auth-service/internal/server/config"
	"github.com/alexivashchenko/auth-service/internal/server/metrics"
	"github.com/alexivashchenko/auth-service/internal/server/services"
)

// refreshCookiePath covers both /auth/refresh and /auth/logout, so the
// cookie travels with the only two requests that need it.
const refreshCookiePath = "/auth"

// ApiError is the uniform error body returned by every endpoint.
type ApiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	service *services.AuthService
	logger  logging.Logger
	cfg     *config.Config
}

func NewAuthHandler(service *services.AuthService, logger logging.Logger, cfg *config.Config) *AuthHandler {
	return &AuthHandler{service: service, logger: logger, cfg: cfg}
}

// writeError maps domain errors onto HTTP statuses and stable error codes.
func (h *AuthHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, ApiError{Code: "VALIDATION_ERROR", Message: err.Error()})
	case errors.Is(err, common.ErrInvalidCredentials):
		c.AbortWithStatusJSON(http.StatusUnauthorized, ApiError{Code: "INVALID_CREDENTIALS", Message: common.ErrInvalidCredentials.Error()})
	case errors.Is(err, common.ErrInvalidRefreshToken):
		c.AbortWithStatusJSON(http.StatusUnauthorized, ApiError{Code: "INVALID_REFRESH_TOKEN", Message: common.ErrInvalidRefreshToken.Error()})
	case errors.Is(err, common.ErrUserAlreadyExists):
		c.AbortWithStatusJSON(http.StatusConflict, ApiError{Code: "USER_ALREADY_EXISTS", Message: common.ErrUserAlreadyExists.Error()})
	case errors.Is(err, common.ErrorNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, ApiError{Code: "NOT_FOUND", Message: "not found"})
	default:
		h.logger.Error(c.Request.Context(), "internal error", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ApiError{Code: "INTERNAL_ERROR", Message: "internal error"})
	}
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(common.RefreshTokenCookieName, token,
		int(h.cfg.RefreshTokenValidityDuration.Seconds()),
		refreshCookiePath, "", h.cfg.CookieSecure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(common.RefreshTokenCookieName, "", -1,
		refreshCookiePath, "", h.cfg.CookieSecure, true)
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ApiError{Code: "VALIDATION_ERROR", Message: "email and password are required"})
		return
	}

	user, err := h.service.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("register", "failure").Inc()
		h.writeError(c, err)
		return
	}

	metrics.AuthAttempts.WithLabelValues("register", "success").Inc()
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "email": user.Email})
}

// Login handles POST /auth/login. The refresh token travels only in an
// HttpOnly cookie; the body carries the access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ApiError{Code: "VALIDATION_ERROR", Message: "email and password are required"})
		return
	}

	pair, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		h.writeError(c, err)
		return
	}

	metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": pair.AccessToken})
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(common.RefreshTokenCookieName)
	if err != nil || refreshToken == "" {
		metrics.AuthAttempts.WithLabelValues("refresh", "failure").Inc()
		h.writeError(c, common.ErrInvalidRefreshToken)
		return
	}

	pair, err := h.service.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("refresh", "failure").Inc()
		h.writeError(c, err)
		return
	}

	metrics.AuthAttempts.WithLabelValues("refresh", "success").Inc()
	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": pair.AccessToken})
}

// Logout handles POST /auth/logout. It revokes the presented token when
// there is one and always clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(common.RefreshTokenCookieName)

	if err := h.service.Logout(c.Request.Context(), refreshToken); err != nil {
		h.writeError(c, err)
		return
	}

	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

// Me handles GET /auth/me for an authenticated caller.
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString(userIDKey)

	user, err := h.service.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        user.ID,
		"email":     user.Email,
		"createdAt": user.CreatedAt,
	})
}
