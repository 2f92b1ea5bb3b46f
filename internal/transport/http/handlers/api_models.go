package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nepalwears/account-service/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// AccountSummary is the public view of an account. Credential material never
// leaves the service.
type AccountSummary struct {
	ID            string      `json:"id"`
	Username      string      `json:"username"`
	Email         string      `json:"email"`
	Avatar        string      `json:"avatar,omitempty"`
	Role          domain.Role `json:"role"`
	EmailVerified bool        `json:"email_verified"`
	MFAEnabled    bool        `json:"mfa_enabled"`
	CreatedAt     time.Time   `json:"created_at"`
}

func newAccountSummary(account domain.Account) AccountSummary {
	return AccountSummary{
		ID:            account.ID,
		Username:      account.Username,
		Email:         account.Email,
		Avatar:        account.Avatar,
		Role:          account.Role,
		EmailVerified: account.EmailVerified,
		MFAEnabled:    account.MFAEnabled,
		CreatedAt:     account.CreatedAt,
	}
}

// SignupRequest defines the payload for the signup endpoint.
type SignupRequest struct {
	Username     string `json:"username" binding:"required"`
	Email        string `json:"email" binding:"required"`
	Password     string `json:"password" binding:"required"`
	Avatar       string `json:"avatar"`
	CaptchaToken string `json:"captcha_token"`
}

// SignupResponse describes a successful registration. The account stays
// unusable until the emailed verification link is followed.
type SignupResponse struct {
	Message string         `json:"message"`
	Account AccountSummary `json:"account"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Identifier   string `json:"identifier" binding:"required"`
	Password     string `json:"password" binding:"required"`
	CaptchaToken string `json:"captcha_token"`
}

// LoginResponse describes the response returned for a completed login.
type LoginResponse struct {
	Token   string         `json:"token,omitempty"`
	Account AccountSummary `json:"account"`
}

// MFAPendingResponse is returned when a login still needs the one-time code.
// The camelCase keys are the published contract the storefront consumes.
type MFAPendingResponse struct {
	MFARequired bool   `json:"mfaRequired"`
	UserID      string `json:"userId"`
	Message     string `json:"message"`
}

// VerifyMFARequest carries the one-time code for the second login step. The
// userId echoes the value handed out by MFAPendingResponse.
type VerifyMFARequest struct {
	UserID string `json:"userId" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// MFASetupResponse returns the enrollment artifacts for a freshly provisioned
// authenticator secret.
type MFASetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// ChangePasswordRequest defines the payload for an authenticated password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ForgotPasswordRequest starts the reset flow for the given address.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetPasswordRequest completes the reset flow with the emailed token.
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ProfileUpdateRequest carries partial profile changes. Omitted fields keep
// their current values.
type ProfileUpdateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
}

// AdminCreateRequest defines the payload for administrative account creation.
type AdminCreateRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

// AccountListResponse wraps the admin listing.
type AccountListResponse struct {
	Accounts []AccountSummary `json:"accounts"`
	Total    int              `json:"total"`
}
