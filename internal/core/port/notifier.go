package port

import "context"

// Notifier delivers out-of-band messages to an account's registered address.
// Delivery is best effort: callers log failures and keep their state changes.
type Notifier interface {
	SendVerificationLink(ctx context.Context, email, link string) error
	SendLoginCode(ctx context.Context, email, code string) error
	SendResetLink(ctx context.Context, email, link string) error
}

// HumanVerifier validates a client-supplied proof-of-humanity token against a
// third-party verification service. Unavailability of the service is a
// failure, never a bypass.
type HumanVerifier interface {
	Verify(ctx context.Context, proofToken string) (bool, error)
}
