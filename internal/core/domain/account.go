package domain

import "time"

// Role enumerates the access levels an account can hold.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account mirrors the persisted representation in the accounts table.
type Account struct {
	ID                  string
	Username            string
	Email               string
	Avatar              string
	Role                Role
	CredentialHash      string
	CredentialChangedAt time.Time
	CredentialExpiresAt time.Time
	FailedAttempts      int
	MFAFailedAttempts   int
	LockedUntil         *time.Time
	MFASecret           *string
	MFAEnabled          bool
	EmailVerified       bool
	EmailVerifyToken    *string
	ResetToken          *string
	ResetTokenExpiresAt *time.Time
	CreatedAt           time.Time
}

// Locked reports whether the account is currently in the locked state.
func (a Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// CredentialExpired reports whether the password has passed its expiry.
func (a Account) CredentialExpired(now time.Time) bool {
	return !a.CredentialExpiresAt.IsZero() && a.CredentialExpiresAt.Before(now)
}

// CredentialHistoryEntry tracks a superseded password hash for reuse prevention.
type CredentialHistoryEntry struct {
	ID             string
	AccountID      string
	CredentialHash string
	SetAt          time.Time
}
