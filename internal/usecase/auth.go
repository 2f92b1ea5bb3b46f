package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nepalwears/account-service/internal/core/domain"
	"github.com/nepalwears/account-service/internal/core/port"
	"github.com/nepalwears/account-service/internal/infra/config"
	"github.com/nepalwears/account-service/internal/infra/logger"
	"github.com/nepalwears/account-service/internal/infra/telemetry"
	"github.com/nepalwears/account-service/internal/repository"
)

var (
	// ErrValidation indicates missing or malformed input that survived
	// transport-level binding, such as whitespace-only required fields.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidCredentials indicates the provided identifier or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates too many failed attempts put the account in a lockout window.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrEmailNotVerified indicates the account has not consumed its verification link yet.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrPasswordExpired indicates the password passed its expiry and must be reset.
	ErrPasswordExpired = errors.New("password expired")
	// ErrCaptchaRequired indicates the CAPTCHA check did not pass.
	ErrCaptchaRequired = errors.New("captcha verification failed")
	// ErrMFANotConfigured indicates no TOTP secret exists for the account.
	ErrMFANotConfigured = errors.New("mfa not configured")
	// ErrInvalidOTP indicates the one-time code did not match within the allowed drift.
	ErrInvalidOTP = errors.New("invalid one-time code")
)

// LoginResult is the outcome of a successful credential check. Either Token is
// set, or MFARequired is true and the caller must complete the second factor.
type LoginResult struct {
	Token       string
	MFARequired bool
	Account     domain.Account
}

// AuthService coordinates login and second-factor verification.
type AuthService struct {
	cfg      *config.AppConfig
	accounts port.AccountRepository
	hasher   port.PasswordHasher
	otp      port.OTPEngine
	issuer   port.TokenIssuer
	captcha  port.HumanVerifier
	notifier port.Notifier
	events   port.EventPublisher
	metrics  *telemetry.AuthMetrics
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	hasher port.PasswordHasher,
	otp port.OTPEngine,
	issuer port.TokenIssuer,
	captcha port.HumanVerifier,
	notifier port.Notifier,
	events port.EventPublisher,
	metrics *telemetry.AuthMetrics,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		cfg:      cfg,
		accounts: accounts,
		hasher:   hasher,
		otp:      otp,
		issuer:   issuer,
		captcha:  captcha,
		notifier: notifier,
		events:   events,
		metrics:  metrics,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, used in tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Login runs the full credential check. The gates apply in a fixed order:
// CAPTCHA, lookup, lockout, password, email verification, password expiry,
// MFA. Lookup misses and password mismatches are indistinguishable to the
// caller.
func (s *AuthService) Login(ctx context.Context, identifier, password, captchaToken string) (LoginResult, error) {
	var zero LoginResult

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return zero, fmt.Errorf("%w: identifier is required", ErrValidation)
	}
	if password == "" {
		return zero, fmt.Errorf("%w: password is required", ErrValidation)
	}

	if err := s.verifyCaptcha(ctx, captchaToken); err != nil {
		return zero, err
	}

	account, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.ObserveLogin(telemetry.OutcomeInvalidCredentials)
			return zero, ErrInvalidCredentials
		}
		return zero, fmt.Errorf("lookup account: %w", err)
	}

	now := s.now()
	if account.Locked(now) {
		s.metrics.ObserveLogin(telemetry.OutcomeLocked)
		return zero, ErrAccountLocked
	}

	ok, err := s.hasher.Verify(password, account.CredentialHash)
	if err != nil {
		return zero, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.registerFailure(ctx, account)
		s.metrics.ObserveLogin(telemetry.OutcomeInvalidCredentials)
		return zero, ErrInvalidCredentials
	}

	if account.FailedAttempts > 0 || account.MFAFailedAttempts > 0 || account.LockedUntil != nil {
		if err := s.accounts.ResetFailedAttempts(ctx, account.ID); err != nil {
			s.log.Warn("reset failed attempts",
				zap.String("account_id", account.ID),
				zap.Error(err))
		}
	}

	if !account.EmailVerified {
		s.metrics.ObserveLogin(telemetry.OutcomeUnverified)
		return zero, ErrEmailNotVerified
	}

	if account.CredentialExpired(now) {
		s.metrics.ObserveLogin(telemetry.OutcomeExpired)
		return zero, ErrPasswordExpired
	}

	if account.MFAEnabled && account.MFASecret != nil {
		s.sendLoginCode(ctx, account)
		s.metrics.ObserveLogin(telemetry.OutcomeMFARequired)
		return LoginResult{MFARequired: true, Account: *account}, nil
	}

	token, err := s.issuer.Issue(account.ID)
	if err != nil {
		return zero, fmt.Errorf("issue token: %w", err)
	}

	s.metrics.ObserveLogin(telemetry.OutcomeSuccess)

	return LoginResult{Token: token, Account: *account}, nil
}

// VerifyMFA completes the second factor for an account that passed the
// credential check. A matching code also confirms pending enrollments.
func (s *AuthService) VerifyMFA(ctx context.Context, accountID, code string) (LoginResult, error) {
	var zero LoginResult

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return zero, fmt.Errorf("%w: account id is required", ErrValidation)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return zero, fmt.Errorf("%w: one-time code is required", ErrValidation)
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return zero, ErrInvalidCredentials
		}
		return zero, fmt.Errorf("lookup account: %w", err)
	}

	if account.Locked(s.now()) {
		s.metrics.ObserveMFA(telemetry.OutcomeLocked)
		return zero, ErrAccountLocked
	}

	if account.MFASecret == nil || *account.MFASecret == "" {
		return zero, ErrMFANotConfigured
	}

	ok, err := s.otp.Verify(*account.MFASecret, code)
	if err != nil {
		return zero, fmt.Errorf("verify one-time code: %w", err)
	}
	if !ok {
		s.registerMFAFailure(ctx, account)
		s.metrics.ObserveMFA(telemetry.OutcomeFailure)
		return zero, ErrInvalidOTP
	}

	if err := s.accounts.ResetFailedAttempts(ctx, account.ID); err != nil {
		s.log.Warn("reset failed attempts",
			zap.String("account_id", account.ID),
			zap.Error(err))
	}

	if !account.MFAEnabled {
		if err := s.accounts.SetMFAEnabled(ctx, account.ID, true, false); err != nil {
			return zero, fmt.Errorf("enable mfa: %w", err)
		}
		account.MFAEnabled = true
		s.publishMFAStateChanged(ctx, account.ID, true)
	}

	token, err := s.issuer.Issue(account.ID)
	if err != nil {
		return zero, fmt.Errorf("issue token: %w", err)
	}

	s.metrics.ObserveMFA(telemetry.OutcomeSuccess)

	return LoginResult{Token: token, Account: *account}, nil
}

func (s *AuthService) verifyCaptcha(ctx context.Context, token string) error {
	if s.captcha == nil || !s.cfg.Captcha.Enabled {
		return nil
	}

	ok, err := s.captcha.Verify(ctx, token)
	if err != nil {
		return fmt.Errorf("verify captcha: %w", err)
	}
	if !ok {
		s.metrics.ObserveCaptchaFailure()
		return ErrCaptchaRequired
	}

	return nil
}

func (s *AuthService) registerFailure(ctx context.Context, account *domain.Account) {
	attempts, err := s.accounts.IncrementFailedAttempts(ctx, account.ID, s.cfg.Auth.LockoutThreshold, s.cfg.Auth.LockoutDuration)
	if err != nil {
		s.log.Warn("increment failed attempts",
			zap.String("account_id", account.ID),
			zap.Error(err))
		return
	}

	if attempts >= s.cfg.Auth.LockoutThreshold {
		s.metrics.ObserveLockout()
		lockedAt := s.now()
		s.publishEvent(ctx, "account locked", func(ctx context.Context) error {
			return s.events.PublishAccountLocked(ctx, domain.AccountLockedEvent{
				AccountID:      account.ID,
				FailedAttempts: attempts,
				LockedUntil:    lockedAt.Add(s.cfg.Auth.LockoutDuration),
				LockedAt:       lockedAt,
			})
		})
	}
}

func (s *AuthService) registerMFAFailure(ctx context.Context, account *domain.Account) {
	attempts, err := s.accounts.IncrementMFAFailedAttempts(ctx, account.ID, s.cfg.Auth.LockoutThreshold, s.cfg.Auth.LockoutDuration)
	if err != nil {
		s.log.Warn("increment mfa failed attempts",
			zap.String("account_id", account.ID),
			zap.Error(err))
		return
	}

	if attempts >= s.cfg.Auth.LockoutThreshold {
		s.metrics.ObserveLockout()
		lockedAt := s.now()
		s.publishEvent(ctx, "account locked", func(ctx context.Context) error {
			return s.events.PublishAccountLocked(ctx, domain.AccountLockedEvent{
				AccountID:      account.ID,
				FailedAttempts: attempts,
				LockedUntil:    lockedAt.Add(s.cfg.Auth.LockoutDuration),
				LockedAt:       lockedAt,
			})
		})
	}
}

// sendLoginCode emails the current TOTP code so accounts without an
// authenticator app can still complete the challenge. Delivery failures are
// logged and do not abort the login.
func (s *AuthService) sendLoginCode(ctx context.Context, account *domain.Account) {
	if s.notifier == nil || account.MFASecret == nil {
		return
	}

	code, err := s.otp.CurrentCode(*account.MFASecret)
	if err != nil {
		s.log.Warn("generate login code",
			zap.String("account_id", account.ID),
			zap.Error(err))
		return
	}

	if err := s.notifier.SendLoginCode(ctx, account.Email, code); err != nil {
		s.log.Warn("send login code",
			zap.String("account_id", account.ID),
			zap.String("email", logger.MaskEmail(account.Email)),
			zap.Error(err))
	}
}

func (s *AuthService) publishMFAStateChanged(ctx context.Context, accountID string, enabled bool) {
	s.publishEvent(ctx, "mfa state changed", func(ctx context.Context) error {
		return s.events.PublishMFAStateChanged(ctx, domain.MFAStateChangedEvent{
			AccountID: accountID,
			Enabled:   enabled,
			ChangedAt: s.now(),
		})
	})
}

func (s *AuthService) publishEvent(ctx context.Context, name string, publish func(context.Context) error) {
	if s.events == nil {
		return
	}
	if err := publish(ctx); err != nil {
		s.log.Warn("publish event",
			zap.String("event", name),
			zap.Error(err))
	}
}
