package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nepalwears/account-service/internal/core/domain"
	"github.com/nepalwears/account-service/internal/core/port"
	"github.com/nepalwears/account-service/internal/infra/config"
	"github.com/nepalwears/account-service/internal/infra/logger"
	"github.com/nepalwears/account-service/internal/infra/security"
	"github.com/nepalwears/account-service/internal/infra/telemetry"
	"github.com/nepalwears/account-service/internal/repository"
)

// Verification tokens are random bytes, hex encoded, stored hashed.
const verifyTokenBytes = 20

var (
	// ErrVerificationTokenInvalid indicates the link token is unknown or already consumed.
	ErrVerificationTokenInvalid = errors.New("verification token invalid")
	// ErrPasswordPolicyViolation indicates the password does not satisfy complexity requirements.
	ErrPasswordPolicyViolation = errors.New("password does not meet complexity requirements")
)

// RegistrationService handles new account onboarding.
type RegistrationService struct {
	cfg       *config.AppConfig
	accounts  port.AccountRepository
	hasher    port.PasswordHasher
	otp       port.OTPEngine
	captcha   port.HumanVerifier
	notifier  port.Notifier
	events    port.EventPublisher
	validator *security.PasswordValidator
	metrics   *telemetry.AuthMetrics
	log       *zap.Logger
	now       func() time.Time
}

// NewRegistrationService constructs a registration service.
func NewRegistrationService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	hasher port.PasswordHasher,
	otp port.OTPEngine,
	captcha port.HumanVerifier,
	notifier port.Notifier,
	events port.EventPublisher,
	validator *security.PasswordValidator,
	metrics *telemetry.AuthMetrics,
	log *zap.Logger,
) *RegistrationService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	return &RegistrationService{
		cfg:       cfg,
		accounts:  accounts,
		hasher:    hasher,
		otp:       otp,
		captcha:   captcha,
		notifier:  notifier,
		events:    events,
		validator: validator,
		metrics:   metrics,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, used in tests.
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	s.now = now
	return s
}

// RegisterInput carries the signup request fields.
type RegisterInput struct {
	Username     string
	Email        string
	Password     string
	Avatar       string
	CaptchaToken string
}

// Register creates a pending account. The account starts unverified with a
// link token emailed to the address, and MFA is provisioned up front so the
// first login already runs the TOTP challenge.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (domain.Account, error) {
	var zero domain.Account

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return zero, fmt.Errorf("%w: username is required", ErrValidation)
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return zero, fmt.Errorf("%w: email is required", ErrValidation)
	}
	if input.Password == "" {
		return zero, fmt.Errorf("%w: password is required", ErrValidation)
	}

	if s.captcha != nil && s.cfg.Captcha.Enabled {
		ok, err := s.captcha.Verify(ctx, input.CaptchaToken)
		if err != nil {
			return zero, fmt.Errorf("verify captcha: %w", err)
		}
		if !ok {
			s.metrics.ObserveCaptchaFailure()
			return zero, ErrCaptchaRequired
		}
	}

	if err := s.validator.Validate(input.Password); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return zero, fmt.Errorf("hash password: %w", err)
	}

	rawToken, err := security.GenerateSecureToken(verifyTokenBytes)
	if err != nil {
		return zero, fmt.Errorf("generate verification token: %w", err)
	}
	tokenHash := security.HashToken(rawToken)

	otpKey, err := s.otp.GenerateSecret(email)
	if err != nil {
		return zero, fmt.Errorf("provision totp secret: %w", err)
	}

	now := s.now()
	account := domain.Account{
		ID:                  uuid.NewString(),
		Username:            username,
		Email:               email,
		Avatar:              strings.TrimSpace(input.Avatar),
		Role:                domain.RoleUser,
		CredentialHash:      hash,
		CredentialChangedAt: now,
		CredentialExpiresAt: now.Add(s.cfg.Auth.PasswordExpiry),
		MFASecret:           &otpKey.Secret,
		MFAEnabled:          true,
		EmailVerifyToken:    &tokenHash,
		CreatedAt:           now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return zero, err
	}

	s.metrics.ObserveRegistration()

	link := fmt.Sprintf("%s/api/users/verify-email/%s", strings.TrimRight(s.cfg.App.PublicURL, "/"), rawToken)
	if s.notifier != nil {
		if err := s.notifier.SendVerificationLink(ctx, email, link); err != nil {
			s.log.Warn("send verification link",
				zap.String("account_id", account.ID),
				zap.String("email", logger.MaskEmail(email)),
				zap.Error(err))
		}
	}

	if s.events != nil {
		event := domain.AccountRegisteredEvent{
			AccountID:    account.ID,
			Username:     account.Username,
			Email:        account.Email,
			Role:         string(account.Role),
			RegisteredAt: now,
		}
		if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
			s.log.Warn("publish event",
				zap.String("event", "account registered"),
				zap.Error(err))
		}
	}

	return account, nil
}

// VerifyEmail consumes a link token and marks the account verified.
func (s *RegistrationService) VerifyEmail(ctx context.Context, rawToken string) (domain.Account, error) {
	var zero domain.Account

	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return zero, fmt.Errorf("%w: verification token is required", ErrValidation)
	}

	account, err := s.accounts.GetByVerifyTokenHash(ctx, security.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return zero, ErrVerificationTokenInvalid
		}
		return zero, fmt.Errorf("lookup verification token: %w", err)
	}

	if err := s.accounts.MarkEmailVerified(ctx, account.ID); err != nil {
		return zero, fmt.Errorf("mark email verified: %w", err)
	}

	account.EmailVerified = true
	account.EmailVerifyToken = nil

	if s.events != nil {
		event := domain.EmailVerifiedEvent{
			AccountID:  account.ID,
			VerifiedAt: s.now(),
		}
		if err := s.events.PublishEmailVerified(ctx, event); err != nil {
			s.log.Warn("publish event",
				zap.String("event", "email verified"),
				zap.Error(err))
		}
	}

	return *account, nil
}
