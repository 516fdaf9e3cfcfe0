package handler

import (
	"errors"
	"net/http"
	"strings"

	appsession "github.com/enercompare/backend/internal/application/session"
	"github.com/enercompare/backend/internal/domain/shared"
	"github.com/enercompare/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionCookieName is the cookie carrying the signed session token
const SessionCookieName = "enercompare_session"

// AuthHandler serves the session and third-party authorization endpoints
type AuthHandler struct {
	BaseHandler
	sessions *appsession.Service
	logger   *zap.Logger
}

// NewAuthHandler creates an auth handler
func NewAuthHandler(sessions *appsession.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, logger: logger}
}

// RegisterRoutes registers auth routes on the API group
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/session", h.CreateSession)
		auth.POST("/authorize", h.Authorize)
		auth.GET("/authorize", h.AuthorizationStatus)
		auth.GET("/callback", h.Callback)
	}
}

// CreateSession issues a fresh session and its signed token. The token is
// returned in the body and set as a cookie for browser clients.
func (h *AuthHandler) CreateSession(c *gin.Context) {
	token, record, err := h.sessions.IssueSession(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to issue session", zap.Error(err))
		h.InternalError(c)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, token, 0, "/", "", false, true)

	c.JSON(http.StatusOK, gin.H{
		"sessionToken": token,
		"sessionId":    record.SessionID,
	})
}

// Authorize starts the third-party authorization handshake
func (h *AuthHandler) Authorize(c *gin.Context) {
	grant, err := h.sessions.BeginAuthorization(c.Request.Context(), sessionToken(c))
	if err != nil {
		if errors.Is(err, shared.ErrNoSession) {
			h.Unauthorized(c, dto.ErrCodeNoSession, "No valid session")
			return
		}
		h.logger.Error("failed to begin authorization", zap.Error(err))
		h.InternalError(c)
		return
	}

	c.JSON(http.StatusOK, grant)
}

// AuthorizationStatus returns the session's authorization state without
// mutating anything
func (h *AuthHandler) AuthorizationStatus(c *gin.Context) {
	record, err := h.sessions.AuthorizationStatus(c.Request.Context(), sessionToken(c))
	if err != nil {
		h.Unauthorized(c, dto.ErrCodeNoSession, "No valid session")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":     record.SessionID,
		"status":        record.Status,
		"authStartedAt": record.AuthStartedAt,
	})
}

// Callback completes the handshake when the third party redirects back with
// the state token. State tokens are single-use; a replay gets 401.
func (h *AuthHandler) Callback(c *gin.Context) {
	state := c.Query("state")
	if state == "" {
		h.BadRequest(c, "Missing state parameter")
		return
	}

	record, err := h.sessions.CompleteAuthorization(c.Request.Context(), state, c.Query("customer_id"))
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNoSession):
			h.Unauthorized(c, dto.ErrCodeNoSession, "Unknown or expired state")
		case errors.Is(err, shared.ErrInvalidTransition):
			h.ErrorWithCode(c, dto.ErrCodeInvalidState, "Session cannot be authorized in its current state")
		default:
			h.logger.Error("failed to complete authorization", zap.Error(err))
			h.InternalError(c)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sessionId": record.SessionID,
		"status":    record.Status,
	})
}

// sessionToken extracts the signed session token from the Authorization
// header or the session cookie
func sessionToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie(SessionCookieName); err == nil {
		return cookie
	}
	return ""
}
