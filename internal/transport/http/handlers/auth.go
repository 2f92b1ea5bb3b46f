package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nepalwears/account-service/internal/infra/config"
	"github.com/nepalwears/account-service/internal/repository"
	"github.com/nepalwears/account-service/internal/usecase"
)

// AuthHandler exposes signup, verification, and login endpoints.
type AuthHandler struct {
	auth         *usecase.AuthService
	registration *usecase.RegistrationService
	jwtCfg       config.JWTSettings
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, registration *usecase.RegistrationService, jwtCfg config.JWTSettings) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		registration: registration,
		jwtCfg:       jwtCfg,
	}
}

// Signup godoc
// @Summary Register a new customer account
// @Description Creates an account and emails a verification link. The account cannot log in until the link is followed.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Signup payload"
// @Success 201 {object} SignupResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/users/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	if h.registration == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "registration service unavailable"))
		return
	}

	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid signup payload"))
		return
	}

	account, err := h.registration.Register(c.Request.Context(), usecase.RegisterInput{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.TrimSpace(req.Email),
		Password:     req.Password,
		Avatar:       strings.TrimSpace(req.Avatar),
		CaptchaToken: req.CaptchaToken,
	})
	if err != nil {
		var dup *repository.DuplicateIdentityError
		if errors.As(err, &dup) {
			switch dup.Field {
			case "email":
				c.JSON(http.StatusConflict, NewErrorResponse(c, "email already registered"))
			case "username":
				c.JSON(http.StatusConflict, NewErrorResponse(c, "username already taken"))
			default:
				c.JSON(http.StatusConflict, NewErrorResponse(c, "username or email already exists"))
			}
			return
		}

		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrValidation, Status: http.StatusBadRequest, Message: "username, email, and password are required"},
			{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "password does not meet requirements"},
			{Err: usecase.ErrCaptchaRequired, Status: http.StatusBadRequest, Message: "captcha verification failed"},
		}, http.StatusInternalServerError, "failed to register account")
		return
	}

	c.JSON(http.StatusCreated, SignupResponse{
		Message: "verification email sent",
		Account: newAccountSummary(account),
	})
}

// VerifyEmail godoc
// @Summary Confirm an email address
// @Description Consumes the verification token from the signup email and activates the account.
// @Tags Authentication
// @Produce json
// @Param token path string true "Verification token"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/users/verify-email/{token} [get]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	if h.registration == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "registration service unavailable"))
		return
	}

	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "verification token is required"))
		return
	}

	if _, err := h.registration.VerifyEmail(c.Request.Context(), token); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrVerificationTokenInvalid, Status: http.StatusBadRequest, Message: "verification link is invalid or already used"},
		}, http.StatusInternalServerError, "failed to verify email")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "email verified, you can now log in"})
}

// Login godoc
// @Summary Authenticate with identifier and password
// @Description Verifies credentials behind a CAPTCHA gate. Accounts with MFA receive an emailed one-time code and must call verify-mfa.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login payload"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/users/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), strings.TrimSpace(req.Identifier), req.Password, req.CaptchaToken)
	if err != nil {
		RespondWithMappedError(c, err, loginErrorCases(), http.StatusInternalServerError, "failed to log in")
		return
	}

	if result.MFARequired {
		c.JSON(http.StatusOK, MFAPendingResponse{
			MFARequired: true,
			UserID:      result.Account.ID,
			Message:     "a one-time code was sent to your email",
		})
		return
	}

	h.respondWithSession(c, result)
}

// VerifyMFA godoc
// @Summary Complete a login with a one-time code
// @Description Validates the emailed TOTP code and issues the bearer token. Confirms a pending authenticator enrollment on first success.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body VerifyMFARequest true "MFA verification payload"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/users/verify-mfa [post]
func (h *AuthHandler) VerifyMFA(c *gin.Context) {
	var req VerifyMFARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid mfa payload"))
		return
	}

	result, err := h.auth.VerifyMFA(c.Request.Context(), strings.TrimSpace(req.UserID), strings.TrimSpace(req.Code))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrValidation, Status: http.StatusBadRequest, Message: "user id and one-time code are required"},
			{Err: usecase.ErrInvalidOTP, Status: http.StatusBadRequest, Message: "one-time code is incorrect"},
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
			{Err: usecase.ErrAccountLocked, Status: http.StatusForbidden, Message: "account temporarily locked, try again later"},
			{Err: usecase.ErrMFANotConfigured, Status: http.StatusBadRequest, Message: "mfa is not configured for this account"},
		}, http.StatusInternalServerError, "failed to verify one-time code")
		return
	}

	h.respondWithSession(c, result)
}

// respondWithSession returns the bearer token in the body, or sets it as an
// HTTP-only cookie when cookie mode is configured.
func (h *AuthHandler) respondWithSession(c *gin.Context, result usecase.LoginResult) {
	resp := LoginResponse{Account: newAccountSummary(result.Account)}

	if h.jwtCfg.CookieMode {
		maxAge := int(h.jwtCfg.TokenTTL.Seconds())
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(h.jwtCfg.CookieName, result.Token, maxAge, "/", "", true, true)
	} else {
		resp.Token = result.Token
	}

	c.JSON(http.StatusOK, resp)
}

func loginErrorCases() []ErrorCase {
	return []ErrorCase{
		{Err: usecase.ErrValidation, Status: http.StatusBadRequest, Message: "identifier and password are required"},
		{Err: usecase.ErrCaptchaRequired, Status: http.StatusBadRequest, Message: "captcha verification failed"},
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
		{Err: usecase.ErrAccountLocked, Status: http.StatusForbidden, Message: "account temporarily locked, try again later"},
		{Err: usecase.ErrEmailNotVerified, Status: http.StatusForbidden, Message: "email address is not verified"},
		{Err: usecase.ErrPasswordExpired, Status: http.StatusForbidden, Message: "password expired, use the reset flow to set a new one"},
	}
}
