package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sudokim/skku-chat/internal/auth"
	"github.com/sudokim/skku-chat/internal/middleware"
	"github.com/sudokim/skku-chat/internal/repositories"
	"github.com/sudokim/skku-chat/internal/telemetry"
)

// AuthHandler manages account endpoints.
type AuthHandler struct {
	auth    *auth.Service
	emitter *telemetry.AuditEmitter
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(authService *auth.Service, emitter *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{auth: authService, emitter: emitter}
}

// SignUp creates an account.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req struct {
		ID          string `json:"id" binding:"required"`
		Email       string `json:"email" binding:"required"`
		Password    string `json:"password" binding:"required"`
		DisplayName string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.auth.SignUp(c.Request.Context(), req.ID, req.Email, req.Password, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		case errors.Is(err, repositories.ErrUserDuplicate):
			c.JSON(http.StatusConflict, gin.H{"error": "id or email already taken"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create account"})
		}
		return
	}

	h.emitter.Emit(c.Request.Context(), "INFO", "account created", requestIDFromContext(c), &user.ID)
	c.JSON(http.StatusCreated, user)
}

// SignIn checks credentials and returns a session token.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, token, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign in"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// SignOut revokes the caller's session token.
func (h *AuthHandler) SignOut(c *gin.Context) {
	token := middleware.BearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}

	if err := h.auth.SignOut(c.Request.Context(), token); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign out"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Me returns the signed-in account.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := c.Get("user")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// RequestPasswordReset creates a reset token for the account. The response
// does not reveal whether the email exists.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil &&
		!errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not request reset"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "reset link requested"})
}

// ResetPassword consumes a reset token and sets a new password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired token"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not reset password"})
		return
	}
	c.Status(http.StatusNoContent)
}

// RequestEmailLink creates a passwordless sign-in token.
func (h *AuthHandler) RequestEmailLink(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.auth.RequestEmailLink(c.Request.Context(), req.Email); err != nil &&
		!errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not request link"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sign-in link requested"})
}

// CompleteEmailLink redeems a passwordless token and returns a session.
func (h *AuthHandler) CompleteEmailLink(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, token, err := h.auth.CompleteEmailLink(c.Request.Context(), req.Email, req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired token"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not complete sign-in"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// UpdateDisplayName changes the caller's display name.
func (h *AuthHandler) UpdateDisplayName(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	if err := h.auth.UpdateDisplayName(c.Request.Context(), userID, req.DisplayName); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update display name"})
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAccount removes the caller's account. Room memberships are not
// cleaned up.
func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	userID := c.GetString("userID")
	if err := h.auth.DeleteAccount(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete account"})
		return
	}

	h.emitter.Emit(c.Request.Context(), "INFO", "account deleted", requestIDFromContext(c), &userID)
	c.Status(http.StatusNoContent)
}
