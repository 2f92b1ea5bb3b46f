package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nepalwears/account-service/internal/core/domain"
	"github.com/nepalwears/account-service/internal/core/port"
	"github.com/nepalwears/account-service/internal/infra/config"
	"github.com/nepalwears/account-service/internal/transport/http/handlers"
	"github.com/nepalwears/account-service/internal/transport/http/middleware"
	"github.com/nepalwears/account-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	Passwords    *usecase.PasswordService
	Accounts     *usecase.AccountService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	Issuer      port.TokenIssuer
	Accounts    port.AccountRepository
	Database    DatabaseChecker
	Cache       CacheChecker
	HTTPMetrics *middleware.HTTPMetrics
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	if deps.Config.App.FrontendURL != "" {
		r.Use(middleware.CORS([]string{deps.Config.App.FrontendURL}))
	}

	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}

	authMiddleware := middleware.RequireAuth(deps.Issuer, deps.Accounts, deps.Config.JWT)
	adminOnly := middleware.RequireRole(domain.RoleAdmin)

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	if deps.Config.Telemetry.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Registration, deps.Config.JWT)
	passwordHandler := handlers.NewPasswordHandler(deps.Services.Passwords)
	accountHandler := handlers.NewAccountHandler(deps.Services.Accounts)

	users := r.Group("/api/users")
	{
		users.POST("/signup", authHandler.Signup)
		users.GET("/verify-email/:token", authHandler.VerifyEmail)

		loginChain := append(buildLoginMiddlewares(deps), authHandler.Login)
		users.POST("/login", loginChain...)
		users.POST("/verify-mfa", authHandler.VerifyMFA)

		resetMiddlewares := buildPasswordResetMiddlewares(deps)
		forgotChain := append(append([]gin.HandlerFunc{}, resetMiddlewares...), passwordHandler.Forgot)
		users.POST("/forgot-password", forgotChain...)
		resetChain := append(append([]gin.HandlerFunc{}, resetMiddlewares...), passwordHandler.Reset)
		users.POST("/reset-password", resetChain...)

		users.GET("/me", authMiddleware, accountHandler.Me)
		users.PUT("/me", authMiddleware, accountHandler.UpdateMe)
		users.POST("/setup-mfa", authMiddleware, accountHandler.SetupMFA)
		users.POST("/disable-mfa", authMiddleware, accountHandler.DisableMFA)
		users.PUT("/change-password", authMiddleware, passwordHandler.Change)

		users.GET("", authMiddleware, adminOnly, accountHandler.AdminList)
		users.POST("", authMiddleware, adminOnly, accountHandler.AdminCreate)
		users.GET("/:id", authMiddleware, adminOnly, accountHandler.AdminGet)
		users.DELETE("/:id", authMiddleware, adminOnly, accountHandler.AdminDelete)
	}

	return r
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return []gin.HandlerFunc{deps.RateLimiter.Limit(middleware.RateLimitRule{
		Name:   "login_ip",
		Limit:  limit,
		Window: window,
	})}
}

func buildPasswordResetMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.PasswordResetMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Hour
	}

	return []gin.HandlerFunc{deps.RateLimiter.Limit(middleware.RateLimitRule{
		Name:   "password_reset_ip",
		Limit:  limit,
		Window: window,
	})}
}
