package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nepalwears/account-service/internal/core/domain"
	"github.com/nepalwears/account-service/internal/core/port"
	"github.com/nepalwears/account-service/internal/infra/config"
	"github.com/nepalwears/account-service/internal/infra/logger"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, log *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: log}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	AccountID string            `json:"account_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata: map[string]string{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAccountRegistered publishes shop.account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		AccountID    string         `json:"account_id"`
		Username     string         `json:"username"`
		Email        string         `json:"email"`
		Role         string         `json:"role"`
		RegisteredAt time.Time      `json:"registered_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:    event.AccountID,
		Username:     event.Username,
		Email:        logger.MaskEmail(event.Email),
		Role:         event.Role,
		RegisteredAt: event.RegisteredAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "shop.account.registered", event.AccountID, event.RegisteredAt, payload)
}

// PublishEmailVerified publishes shop.account.email_verified events.
func (p *EventPublisher) PublishEmailVerified(ctx context.Context, event domain.EmailVerifiedEvent) error {
	payload := struct {
		AccountID  string    `json:"account_id"`
		VerifiedAt time.Time `json:"verified_at"`
	}{
		AccountID:  event.AccountID,
		VerifiedAt: event.VerifiedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "shop.account.email_verified", event.AccountID, event.VerifiedAt, payload)
}

// PublishAccountLocked publishes shop.account.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		AccountID      string    `json:"account_id"`
		FailedAttempts int       `json:"failed_attempts"`
		LockedUntil    time.Time `json:"locked_until"`
		LockedAt       time.Time `json:"locked_at"`
	}{
		AccountID:      event.AccountID,
		FailedAttempts: event.FailedAttempts,
		LockedUntil:    event.LockedUntil.UTC(),
		LockedAt:       event.LockedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "shop.account.locked", event.AccountID, event.LockedAt, payload)
}

// PublishPasswordChanged publishes shop.account.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		AccountID string         `json:"account_id"`
		ChangedAt time.Time      `json:"changed_at"`
		ChangedBy string         `json:"changed_by"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		AccountID: event.AccountID,
		ChangedAt: event.ChangedAt.UTC(),
		ChangedBy: event.ChangedBy,
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "shop.account.password.changed", event.AccountID, event.ChangedAt, payload)
}

// PublishPasswordResetRequested publishes shop.account.password.reset_requested events.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := struct {
		AccountID   string         `json:"account_id"`
		RequestedAt time.Time      `json:"requested_at"`
		ExpiresAt   time.Time      `json:"expires_at"`
		MaskedEmail string         `json:"masked_email,omitempty"`
		IPAddress   *string        `json:"ip_address,omitempty"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:   event.AccountID,
		RequestedAt: event.RequestedAt.UTC(),
		ExpiresAt:   event.ExpiresAt.UTC(),
		MaskedEmail: event.MaskedEmail,
		IPAddress:   event.IPAddress,
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "shop.account.password.reset_requested", event.AccountID, event.RequestedAt, payload)
}

// PublishMFAStateChanged publishes shop.account.mfa.state_changed events.
func (p *EventPublisher) PublishMFAStateChanged(ctx context.Context, event domain.MFAStateChangedEvent) error {
	payload := struct {
		AccountID string    `json:"account_id"`
		Enabled   bool      `json:"enabled"`
		ChangedAt time.Time `json:"changed_at"`
	}{
		AccountID: event.AccountID,
		Enabled:   event.Enabled,
		ChangedAt: event.ChangedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "shop.account.mfa.state_changed", event.AccountID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
