package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nepalwears/account-service/internal/core/domain"
	"github.com/nepalwears/account-service/internal/repository"
	"github.com/nepalwears/account-service/internal/transport/http/middleware"
	"github.com/nepalwears/account-service/internal/usecase"
)

// AccountHandler exposes profile, MFA management, and admin endpoints.
type AccountHandler struct {
	accounts *usecase.AccountService
}

// NewAccountHandler constructs AccountHandler.
func NewAccountHandler(accounts *usecase.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Me godoc
// @Summary Fetch the authenticated account
// @Tags Account
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} AccountSummary
// @Failure 401 {object} ErrorResponse
// @Router /api/users/me [get]
func (h *AccountHandler) Me(c *gin.Context) {
	account, ok := middleware.GetAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	c.JSON(http.StatusOK, newAccountSummary(account))
}

// UpdateMe godoc
// @Summary Update the authenticated account's profile
// @Description Applies partial profile changes. Omitted fields keep their current values.
// @Tags Account
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body ProfileUpdateRequest true "Profile update payload"
// @Success 200 {object} AccountSummary
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/users/me [put]
func (h *AccountHandler) UpdateMe(c *gin.Context) {
	account, ok := middleware.GetAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid profile payload"))
		return
	}

	updated, err := h.accounts.UpdateProfile(c.Request.Context(), account.ID, usecase.ProfileUpdate{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Avatar:   strings.TrimSpace(req.Avatar),
	})
	if err != nil {
		respondWithAccountError(c, err, "failed to update profile")
		return
	}

	c.JSON(http.StatusOK, newAccountSummary(updated))
}

// SetupMFA godoc
// @Summary Provision a new authenticator secret
// @Description Generates a TOTP secret and provisioning URI. The enrollment stays pending until a code is verified at login.
// @Tags Account
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} MFASetupResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/users/setup-mfa [post]
func (h *AccountHandler) SetupMFA(c *gin.Context) {
	account, ok := middleware.GetAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	key, err := h.accounts.SetupMFA(c.Request.Context(), account.ID)
	if err != nil {
		respondWithAccountError(c, err, "failed to provision authenticator")
		return
	}

	c.JSON(http.StatusOK, MFASetupResponse{
		Secret:          key.Secret,
		ProvisioningURI: key.ProvisioningURI,
	})
}

// DisableMFA godoc
// @Summary Disable the second factor
// @Description Turns MFA off and discards the stored secret.
// @Tags Account
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/users/disable-mfa [post]
func (h *AccountHandler) DisableMFA(c *gin.Context) {
	account, ok := middleware.GetAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.accounts.DisableMFA(c.Request.Context(), account.ID); err != nil {
		respondWithAccountError(c, err, "failed to disable mfa")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "mfa disabled"})
}

// AdminList godoc
// @Summary List all accounts
// @Tags Admin
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} AccountListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/users [get]
func (h *AccountHandler) AdminList(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list accounts"))
		return
	}

	summaries := make([]AccountSummary, 0, len(accounts))
	for _, account := range accounts {
		summaries = append(summaries, newAccountSummary(account))
	}

	c.JSON(http.StatusOK, AccountListResponse{
		Accounts: summaries,
		Total:    len(summaries),
	})
}

// AdminGet godoc
// @Summary Fetch an account by ID
// @Tags Admin
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Account ID"
// @Success 200 {object} AccountSummary
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/users/{id} [get]
func (h *AccountHandler) AdminGet(c *gin.Context) {
	account, err := h.accounts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithAccountError(c, err, "failed to fetch account")
		return
	}

	c.JSON(http.StatusOK, newAccountSummary(account))
}

// AdminCreate godoc
// @Summary Create an account directly
// @Description Creates a pre-verified account without the email verification round trip. Intended for staff provisioning.
// @Tags Admin
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body AdminCreateRequest true "Account creation payload"
// @Success 201 {object} AccountSummary
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/users [post]
func (h *AccountHandler) AdminCreate(c *gin.Context) {
	var req AdminCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid account payload"))
		return
	}

	account, err := h.accounts.AdminCreate(c.Request.Context(), usecase.AdminCreateInput{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Role:     domain.Role(strings.TrimSpace(req.Role)),
	})
	if err != nil {
		respondWithAccountError(c, err, "failed to create account")
		return
	}

	c.JSON(http.StatusCreated, newAccountSummary(account))
}

// AdminDelete godoc
// @Summary Delete an account
// @Tags Admin
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Account ID"
// @Success 204 {string} string ""
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/users/{id} [delete]
func (h *AccountHandler) AdminDelete(c *gin.Context) {
	if err := h.accounts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondWithAccountError(c, err, "failed to delete account")
		return
	}

	c.Status(http.StatusNoContent)
}

func respondWithAccountError(c *gin.Context, err error, fallback string) {
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
		{Err: usecase.ErrValidation, Status: http.StatusBadRequest, Message: "required fields are missing"},
		{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "password does not meet requirements"},
		{Err: usecase.ErrInvalidRole, Status: http.StatusBadRequest, Message: "unknown role"},
	}, http.StatusInternalServerError, fallback)
}
