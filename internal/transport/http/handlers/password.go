package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nepalwears/account-service/internal/transport/http/middleware"
	"github.com/nepalwears/account-service/internal/usecase"
)

// PasswordHandler exposes endpoints for password lifecycle management.
type PasswordHandler struct {
	passwords *usecase.PasswordService
}

// NewPasswordHandler constructs PasswordHandler.
func NewPasswordHandler(passwords *usecase.PasswordService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords}
}

// Change godoc
// @Summary Change the password for the authenticated account
// @Description Verifies the current password and replaces it. Recently used passwords are rejected, and existing bearer tokens stop working.
// @Tags Password
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body ChangePasswordRequest true "Password change payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/users/change-password [put]
func (h *PasswordHandler) Change(c *gin.Context) {
	account, ok := middleware.GetAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid change password payload"))
		return
	}

	if err := h.passwords.Change(c.Request.Context(), account.ID, req.CurrentPassword, req.NewPassword); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrValidation, Status: http.StatusBadRequest, Message: "current and new passwords are required"},
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "current password is incorrect"},
			{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "new password does not meet requirements"},
			{Err: usecase.ErrPasswordReuse, Status: http.StatusBadRequest, Message: "new password was used recently, pick another"},
		}, http.StatusInternalServerError, "failed to change password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed, log in again with the new password"})
}

// Forgot godoc
// @Summary Request a password reset link
// @Description Emails a short-lived reset link. Always returns an accepted response to avoid account enumeration.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body ForgotPasswordRequest true "Forgot password payload"
// @Success 202 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/users/forgot-password [post]
func (h *PasswordHandler) Forgot(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid forgot password payload"))
		return
	}

	if err := h.passwords.Forgot(c.Request.Context(), strings.TrimSpace(req.Email)); err != nil {
		if errors.Is(err, usecase.ErrValidation) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email address is required"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to process reset request"))
		return
	}

	c.JSON(http.StatusAccepted, MessageResponse{Message: "if the address is registered, a reset link is on its way"})
}

// Reset godoc
// @Summary Set a new password with a reset token
// @Description Consumes the emailed reset token and replaces the password. The token expires ten minutes after issue.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Reset password payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/users/reset-password [post]
func (h *PasswordHandler) Reset(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset password payload"))
		return
	}

	if err := h.passwords.Reset(c.Request.Context(), strings.TrimSpace(req.Token), req.NewPassword); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrValidation, Status: http.StatusBadRequest, Message: "reset token and new password are required"},
			{Err: usecase.ErrResetTokenInvalid, Status: http.StatusBadRequest, Message: "reset link is invalid or already used"},
			{Err: usecase.ErrResetTokenExpired, Status: http.StatusBadRequest, Message: "reset link has expired, request a new one"},
			{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "new password does not meet requirements"},
			{Err: usecase.ErrPasswordReuse, Status: http.StatusBadRequest, Message: "new password was used recently, pick another"},
		}, http.StatusInternalServerError, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password reset, log in with the new password"})
}
