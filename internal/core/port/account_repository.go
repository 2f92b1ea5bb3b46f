package port

import (
	"context"
	"time"

	"github.com/nepalwears/account-service/internal/core/domain"
)

// CredentialUpdate carries everything that must change atomically when a
// password is set: the new hash, the watermark, the expiry, and the history
// push of the previous hash.
type CredentialUpdate struct {
	AccountID    string
	NewHash      string
	PreviousHash string
	ChangedAt    time.Time
	ExpiresAt    time.Time
	ClearReset   bool
	HistoryLimit int
}

// AccountRepository exposes persistence behavior for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)
	GetByVerifyTokenHash(ctx context.Context, tokenHash string) (*domain.Account, error)
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	Delete(ctx context.Context, id string) error

	// UpdateProfile re-checks username and email uniqueness before commit.
	UpdateProfile(ctx context.Context, id, username, email, avatar string) error
	MarkEmailVerified(ctx context.Context, id string) error
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	SetMFASecret(ctx context.Context, id, secret string) error
	SetMFAEnabled(ctx context.Context, id string, enabled bool, clearSecret bool) error

	// IncrementFailedAttempts atomically bumps the counter and returns the new
	// value, locking the account when it crosses the threshold.
	IncrementFailedAttempts(ctx context.Context, id string, threshold int, lockFor time.Duration) (int, error)
	IncrementMFAFailedAttempts(ctx context.Context, id string, threshold int, lockFor time.Duration) (int, error)
	ResetFailedAttempts(ctx context.Context, id string) error

	// UpdateCredential applies the hash, watermark, expiry, history push, and
	// trim in a single transaction.
	UpdateCredential(ctx context.Context, update CredentialUpdate) error
	ListCredentialHistory(ctx context.Context, accountID string, limit int) ([]domain.CredentialHistoryEntry, error)
}
