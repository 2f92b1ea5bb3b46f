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
	"github.com/nepalwears/account-service/internal/infra/security"
	"github.com/nepalwears/account-service/internal/repository"
)

var (
	// ErrAccountNotFound indicates the requested account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidRole indicates the requested role is not a known value.
	ErrInvalidRole = errors.New("unknown role")
)

// AccountService handles profile management, admin operations, and MFA
// enrollment changes.
type AccountService struct {
	cfg       *config.AppConfig
	accounts  port.AccountRepository
	hasher    port.PasswordHasher
	otp       port.OTPEngine
	events    port.EventPublisher
	validator *security.PasswordValidator
	log       *zap.Logger
	now       func() time.Time
}

// NewAccountService constructs an account management service.
func NewAccountService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	hasher port.PasswordHasher,
	otp port.OTPEngine,
	events port.EventPublisher,
	validator *security.PasswordValidator,
	log *zap.Logger,
) *AccountService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	return &AccountService{
		cfg:       cfg,
		accounts:  accounts,
		hasher:    hasher,
		otp:       otp,
		events:    events,
		validator: validator,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, used in tests.
func (s *AccountService) WithClock(now func() time.Time) *AccountService {
	s.now = now
	return s
}

// Get returns the account for the given id.
func (s *AccountService) Get(ctx context.Context, id string) (domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	return *account, nil
}

// ProfileUpdate carries the mutable identity fields.
type ProfileUpdate struct {
	Username string
	Email    string
	Avatar   string
}

// UpdateProfile changes username, email, or avatar, keeping identity
// uniqueness intact.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (domain.Account, error) {
	var zero domain.Account

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return zero, ErrAccountNotFound
		}
		return zero, fmt.Errorf("lookup account: %w", err)
	}

	username := strings.TrimSpace(update.Username)
	if username == "" {
		username = account.Username
	}
	email := strings.ToLower(strings.TrimSpace(update.Email))
	if email == "" {
		email = account.Email
	}
	avatar := strings.TrimSpace(update.Avatar)
	if avatar == "" {
		avatar = account.Avatar
	}

	if err := s.accounts.UpdateProfile(ctx, id, username, email, avatar); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return zero, ErrAccountNotFound
		}
		return zero, err
	}

	account.Username = username
	account.Email = email
	account.Avatar = avatar

	return *account, nil
}

// List returns every account, newest first. Admin only at the transport layer.
func (s *AccountService) List(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// AdminCreateInput carries the fields for an operator-created account.
type AdminCreateInput struct {
	Username string
	Email    string
	Password string
	Role     domain.Role
}

// AdminCreate provisions an account without the public signup gates. The
// address is treated as verified and no MFA secret is issued until the owner
// enrolls.
func (s *AccountService) AdminCreate(ctx context.Context, input AdminCreateInput) (domain.Account, error) {
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

	role := input.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return zero, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	if err := s.validator.Validate(input.Password); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return zero, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	account := domain.Account{
		ID:                  uuid.NewString(),
		Username:            username,
		Email:               email,
		Role:                role,
		CredentialHash:      hash,
		CredentialChangedAt: now,
		CredentialExpiresAt: now.Add(s.cfg.Auth.PasswordExpiry),
		EmailVerified:       true,
		CreatedAt:           now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return zero, err
	}

	return account, nil
}

// Delete removes an account.
func (s *AccountService) Delete(ctx context.Context, id string) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// SetupMFA provisions a fresh TOTP secret for the account. The enrollment is
// pending until a code verifies; the returned key carries the otpauth URI for
// authenticator apps.
func (s *AccountService) SetupMFA(ctx context.Context, id string) (port.OTPKey, error) {
	var zero port.OTPKey

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return zero, ErrAccountNotFound
		}
		return zero, fmt.Errorf("lookup account: %w", err)
	}

	key, err := s.otp.GenerateSecret(account.Email)
	if err != nil {
		return zero, fmt.Errorf("provision totp secret: %w", err)
	}

	if err := s.accounts.SetMFASecret(ctx, id, key.Secret); err != nil {
		return zero, fmt.Errorf("store totp secret: %w", err)
	}

	return key, nil
}

// DisableMFA turns the second factor off and discards the secret.
func (s *AccountService) DisableMFA(ctx context.Context, id string) error {
	if err := s.accounts.SetMFAEnabled(ctx, id, false, true); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("disable mfa: %w", err)
	}

	if s.events != nil {
		event := domain.MFAStateChangedEvent{
			AccountID: id,
			Enabled:   false,
			ChangedAt: s.now(),
		}
		if err := s.events.PublishMFAStateChanged(ctx, event); err != nil {
			s.log.Warn("publish event",
				zap.String("event", "mfa state changed"),
				zap.Error(err))
		}
	}

	return nil
}
