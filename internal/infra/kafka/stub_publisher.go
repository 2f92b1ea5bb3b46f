package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/nepalwears/account-service/internal/core/domain"
	"github.com/nepalwears/account-service/internal/core/port"
)

// StubEventPublisher logs events instead of sending them to Kafka.
// Used when no brokers are configured, typically in local development.
type StubEventPublisher struct {
	logger *zap.Logger
}

// NewStubEventPublisher constructs a logging-only event publisher.
func NewStubEventPublisher(log *zap.Logger) *StubEventPublisher {
	return &StubEventPublisher{logger: log}
}

func (p *StubEventPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.logger.Info("event publisher stub: account registered",
		zap.String("account_id", event.AccountID),
		zap.String("username", event.Username))
	return nil
}

func (p *StubEventPublisher) PublishEmailVerified(_ context.Context, event domain.EmailVerifiedEvent) error {
	p.logger.Info("event publisher stub: email verified",
		zap.String("account_id", event.AccountID))
	return nil
}

func (p *StubEventPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.logger.Info("event publisher stub: account locked",
		zap.String("account_id", event.AccountID),
		zap.Int("failed_attempts", event.FailedAttempts),
		zap.Time("locked_until", event.LockedUntil))
	return nil
}

func (p *StubEventPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logger.Info("event publisher stub: password changed",
		zap.String("account_id", event.AccountID),
		zap.String("changed_by", event.ChangedBy))
	return nil
}

func (p *StubEventPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.logger.Info("event publisher stub: password reset requested",
		zap.String("account_id", event.AccountID))
	return nil
}

func (p *StubEventPublisher) PublishMFAStateChanged(_ context.Context, event domain.MFAStateChangedEvent) error {
	p.logger.Info("event publisher stub: mfa state changed",
		zap.String("account_id", event.AccountID),
		zap.Bool("enabled", event.Enabled))
	return nil
}

var _ port.EventPublisher = (*StubEventPublisher)(nil)
