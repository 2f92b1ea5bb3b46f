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
	"github.com/nepalwears/account-service/internal/infra/security"
	"github.com/nepalwears/account-service/internal/infra/telemetry"
	"github.com/nepalwears/account-service/internal/repository"
)

// Reset tokens are longer lived secrets than verification links, so they get
// more entropy.
const resetTokenBytes = 32

var (
	// ErrPasswordReuse indicates the new password matches the current one or a recent one.
	ErrPasswordReuse = errors.New("password was used recently")
	// ErrResetTokenInvalid indicates the reset token is unknown or already consumed.
	ErrResetTokenInvalid = errors.New("reset token invalid")
	// ErrResetTokenExpired indicates the reset token exists but its window has passed.
	ErrResetTokenExpired = errors.New("reset token expired")
)

// PasswordService handles the credential lifecycle: change, forgot, reset.
type PasswordService struct {
	cfg       *config.AppConfig
	accounts  port.AccountRepository
	hasher    port.PasswordHasher
	notifier  port.Notifier
	events    port.EventPublisher
	validator *security.PasswordValidator
	metrics   *telemetry.AuthMetrics
	log       *zap.Logger
	now       func() time.Time
}

// NewPasswordService constructs a password lifecycle service.
func NewPasswordService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	hasher port.PasswordHasher,
	notifier port.Notifier,
	events port.EventPublisher,
	validator *security.PasswordValidator,
	metrics *telemetry.AuthMetrics,
	log *zap.Logger,
) *PasswordService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	return &PasswordService{
		cfg:       cfg,
		accounts:  accounts,
		hasher:    hasher,
		notifier:  notifier,
		events:    events,
		validator: validator,
		metrics:   metrics,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, used in tests.
func (s *PasswordService) WithClock(now func() time.Time) *PasswordService {
	s.now = now
	return s
}

// Change replaces the password for an authenticated account. The old password
// must verify, and the new one must not match the current hash or any entry in
// the history window.
func (s *PasswordService) Change(ctx context.Context, accountID, oldPassword, newPassword string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("%w: account id is required", ErrValidation)
	}
	if oldPassword == "" {
		return fmt.Errorf("%w: old password is required", ErrValidation)
	}
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", ErrValidation)
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	ok, err := s.hasher.Verify(oldPassword, account.CredentialHash)
	if err != nil {
		return fmt.Errorf("verify old password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := s.applyNewPassword(ctx, account, newPassword, false); err != nil {
		return err
	}

	s.metrics.ObservePasswordChange("change")
	s.publishPasswordChanged(ctx, account.ID, "owner")

	return nil
}

// Forgot issues a reset token and emails the link. The response to the caller
// is identical whether or not the address belongs to an account.
func (s *PasswordService) Forgot(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Info("password reset requested for unknown address",
				zap.String("email", logger.MaskEmail(email)))
			return nil
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	rawToken, err := security.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.Auth.ResetTokenTTL)
	if err := s.accounts.SetResetToken(ctx, account.ID, security.HashToken(rawToken), expiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password/%s", strings.TrimRight(s.cfg.App.FrontendURL, "/"), rawToken)
	if err := s.notifier.SendResetLink(ctx, account.Email, link); err != nil {
		return fmt.Errorf("send reset link: %w", err)
	}

	s.metrics.ObserveResetRequest()

	if s.events != nil {
		event := domain.PasswordResetRequestedEvent{
			AccountID:   account.ID,
			RequestedAt: now,
			ExpiresAt:   expiresAt,
			MaskedEmail: logger.MaskEmail(account.Email),
		}
		if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
			s.log.Warn("publish event",
				zap.String("event", "password reset requested"),
				zap.Error(err))
		}
	}

	return nil
}

// Reset consumes a reset token and replaces the password. The token is single
// use: a successful reset clears it.
func (s *PasswordService) Reset(ctx context.Context, rawToken, newPassword string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return fmt.Errorf("%w: reset token is required", ErrValidation)
	}
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", ErrValidation)
	}

	account, err := s.accounts.GetByResetTokenHash(ctx, security.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	if account.ResetTokenExpiresAt == nil || account.ResetTokenExpiresAt.Before(s.now()) {
		return ErrResetTokenExpired
	}

	if err := s.applyNewPassword(ctx, account, newPassword, true); err != nil {
		return err
	}

	s.metrics.ObservePasswordChange("reset")
	s.publishPasswordChanged(ctx, account.ID, "reset")

	return nil
}

func (s *PasswordService) applyNewPassword(ctx context.Context, account *domain.Account, newPassword string, clearReset bool) error {
	if err := s.validator.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	reused, err := s.isRecentPassword(ctx, account, newPassword)
	if err != nil {
		return err
	}
	if reused {
		return ErrPasswordReuse
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	update := port.CredentialUpdate{
		AccountID:    account.ID,
		NewHash:      hash,
		PreviousHash: account.CredentialHash,
		ChangedAt:    now,
		ExpiresAt:    now.Add(s.cfg.Auth.PasswordExpiry),
		ClearReset:   clearReset,
		HistoryLimit: s.cfg.Auth.HistorySize,
	}

	if err := s.accounts.UpdateCredential(ctx, update); err != nil {
		return fmt.Errorf("update credential: %w", err)
	}

	return nil
}

// isRecentPassword checks the candidate against the current hash and the
// retained history entries.
func (s *PasswordService) isRecentPassword(ctx context.Context, account *domain.Account, candidate string) (bool, error) {
	ok, err := s.hasher.Verify(candidate, account.CredentialHash)
	if err != nil {
		return false, fmt.Errorf("compare against current password: %w", err)
	}
	if ok {
		return true, nil
	}

	history, err := s.accounts.ListCredentialHistory(ctx, account.ID, s.cfg.Auth.HistorySize)
	if err != nil {
		return false, fmt.Errorf("list credential history: %w", err)
	}

	for _, entry := range history {
		ok, err := s.hasher.Verify(candidate, entry.CredentialHash)
		if err != nil {
			return false, fmt.Errorf("compare against credential history: %w", err)
		}
		if ok {
			return true, nil
		}
	}

	return false, nil
}

func (s *PasswordService) publishPasswordChanged(ctx context.Context, accountID, changedBy string) {
	if s.events == nil {
		return
	}

	event := domain.PasswordChangedEvent{
		AccountID: accountID,
		ChangedAt: s.now(),
		ChangedBy: changedBy,
	}
	if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
		s.log.Warn("publish event",
			zap.String("event", "password changed"),
			zap.Error(err))
	}
}
