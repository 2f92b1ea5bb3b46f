package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nepalwears/account-service/internal/core/domain"
	"github.com/nepalwears/account-service/internal/core/port"
	"github.com/nepalwears/account-service/internal/infra/config"
	"github.com/nepalwears/account-service/internal/repository"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireAuth validates the bearer token, loads the account, and rejects
// tokens issued before the last password change. The token travels in the
// Authorization header, or in an HTTP-only cookie when cookie mode is on.
func RequireAuth(issuer port.TokenIssuer, accounts port.AccountRepository, jwtCfg config.JWTSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractToken(c, jwtCfg)
		if !ok {
			return
		}

		claims, err := issuer.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, port.ErrExpiredToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "access token expired"))
			case errors.Is(err, port.ErrInvalidToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid access token"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "authentication failed"))
			}
			return
		}

		account, err := accounts.GetByID(c.Request.Context(), claims.AccountID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "account no longer exists"))
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "authentication failed"))
			return
		}

		// Tokens issued before the password watermark are dead. The watermark
		// is truncated to seconds because JWT iat has second resolution.
		if claims.IssuedAt.Before(account.CredentialChangedAt.Truncate(time.Second)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "password changed recently, please log in again"))
			return
		}

		c.Set(AccountKey, *account)

		c.Next()
	}
}

func extractToken(c *gin.Context, jwtCfg config.JWTSettings) (string, bool) {
	if jwtCfg.CookieMode {
		token, err := c.Cookie(jwtCfg.CookieName)
		if err != nil || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing access token cookie"))
			return "", false
		}
		return strings.TrimSpace(token), true
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "missing authorization header"))
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "missing access token"))
		return "", false
	}

	return token, true
}

// RequireRole rejects authenticated requests whose account holds none of the
// given roles. Must run after RequireAuth.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := GetAccount(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		for _, role := range roles {
			if account.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden,
			newErrorResponse(c, "insufficient permissions"))
	}
}
