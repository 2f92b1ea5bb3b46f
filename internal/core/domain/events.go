package domain

import "time"

// AccountRegisteredEvent is emitted when a new account is created.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	Username     string
	Email        string
	Role         string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// EmailVerifiedEvent is emitted when an account consumes its verification link.
type EmailVerifiedEvent struct {
	EventID    string
	AccountID  string
	VerifiedAt time.Time
}

// AccountLockedEvent is emitted when repeated failures lock an account.
type AccountLockedEvent struct {
	EventID        string
	AccountID      string
	FailedAttempts int
	LockedUntil    time.Time
	LockedAt       time.Time
}

// PasswordChangedEvent is emitted after a successful password change or reset.
type PasswordChangedEvent struct {
	EventID   string
	AccountID string
	ChangedAt time.Time
	ChangedBy string
	Metadata  map[string]any
}

// PasswordResetRequestedEvent is emitted when a reset link is issued.
type PasswordResetRequestedEvent struct {
	EventID     string
	AccountID   string
	RequestedAt time.Time
	ExpiresAt   time.Time
	MaskedEmail string
	IPAddress   *string
	Metadata    map[string]any
}

// MFAStateChangedEvent is emitted when MFA is enabled or disabled.
type MFAStateChangedEvent struct {
	EventID   string
	AccountID string
	Enabled   bool
	ChangedAt time.Time
}
