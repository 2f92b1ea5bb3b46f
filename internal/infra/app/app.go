package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nepalwears/account-service/internal/core/port"
	"github.com/nepalwears/account-service/internal/infra/captcha"
	"github.com/nepalwears/account-service/internal/infra/config"
	"github.com/nepalwears/account-service/internal/infra/database"
	kafkainfra "github.com/nepalwears/account-service/internal/infra/kafka"
	"github.com/nepalwears/account-service/internal/infra/logger"
	"github.com/nepalwears/account-service/internal/infra/mailer"
	redisinfra "github.com/nepalwears/account-service/internal/infra/redis"
	"github.com/nepalwears/account-service/internal/infra/security"
	"github.com/nepalwears/account-service/internal/infra/telemetry"
	postgresrepo "github.com/nepalwears/account-service/internal/repository/postgres"
	redisrepo "github.com/nepalwears/account-service/internal/repository/redis"
	"github.com/nepalwears/account-service/internal/transport/http/middleware"
	"github.com/nepalwears/account-service/internal/transport/http/routes"
	"github.com/nepalwears/account-service/internal/usecase"
)

// Application owns the service's long-lived resources and the HTTP engine.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

// New wires the full dependency graph from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	issuer, err := security.NewJWTIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TokenTTL)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	hasher := security.NewBcryptHasher(cfg.Auth.BcryptCost)
	otpEngine := security.NewTOTPEngine(cfg.Auth.TOTPIssuer, cfg.Auth.TOTPSkewSteps)
	passwordValidator := security.DefaultPasswordValidator()

	var humanVerifier port.HumanVerifier
	if cfg.Captcha.Enabled {
		verifier, err := captcha.NewVerifier(cfg.Captcha.Secret, cfg.Captcha.Timeout)
		if err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init captcha verifier: %w", err)
		}
		humanVerifier = verifier
	} else {
		log.Warn("captcha gate disabled")
	}

	var notifier port.Notifier
	if cfg.SMTP.Host != "" {
		smtp, err := mailer.New(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, log)
		if err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init mailer: %w", err)
		}
		notifier = smtp
	} else {
		log.Info("smtp not configured, logging deliveries instead")
		notifier = mailer.NewLogNotifier(log)
	}

	var eventPublisher port.EventPublisher
	var producer *kafkainfra.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubEventPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubEventPublisher(log)
	}

	var authMetrics *telemetry.AuthMetrics
	var httpMetrics *middleware.HTTPMetrics
	if cfg.Telemetry.MetricsEnabled {
		authMetrics, err = telemetry.NewAuthMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init auth metrics: %w", err)
		}

		httpMetrics, err = middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
		if err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init http metrics: %w", err)
		}
	}

	accountRepo := postgresrepo.NewAccountRepositoryFromPool(pool)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	throttleStore := redisrepo.NewThrottleRepository(redisClient.Client(), redisrepo.ThrottleConfig{
		KeyPrefix: "shop:throttle",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(throttleStore, log)

	authService := usecase.NewAuthService(cfg, accountRepo, hasher, otpEngine, issuer, humanVerifier, notifier, eventPublisher, authMetrics, log)
	registrationService := usecase.NewRegistrationService(cfg, accountRepo, hasher, otpEngine, humanVerifier, notifier, eventPublisher, passwordValidator, authMetrics, log)
	passwordService := usecase.NewPasswordService(cfg, accountRepo, hasher, notifier, eventPublisher, passwordValidator, authMetrics, log)
	accountService := usecase.NewAccountService(cfg, accountRepo, hasher, otpEngine, eventPublisher, passwordValidator, log)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Issuer:      issuer,
		Accounts:    accountRepo,
		Database:    pool,
		Cache:       redisClient,
		HTTPMetrics: httpMetrics,
		Services: routes.ServiceSet{
			Auth:         authService,
			Registration: registrationService,
			Passwords:    passwordService,
			Accounts:     accountService,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			if err := a.producer.Close(); err != nil {
				a.logger.Warn("close kafka producer", zap.Error(err))
			}
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting account service",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
