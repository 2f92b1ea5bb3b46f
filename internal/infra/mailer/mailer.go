package mailer

import (
	"context"
	"fmt"

	mail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/nepalwears/account-service/internal/core/port"
)

// Config carries SMTP transport settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer implements port.Notifier over SMTP. Sends are best effort: the
// caller logs failures and keeps its state changes.
type Mailer struct {
	client *mail.Client
	from   string
	logger *zap.Logger
}

// New constructs a Mailer from SMTP settings.
func New(cfg Config, logger *zap.Logger) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mailer: smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("mailer: from address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []mail.Option{
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mailer: create smtp client: %w", err)
	}

	return &Mailer{client: client, from: cfg.From, logger: logger}, nil
}

// SendVerificationLink delivers the email-verification link.
func (m *Mailer) SendVerificationLink(ctx context.Context, email, link string) error {
	body := fmt.Sprintf("Click to verify your account: %s", link)
	return m.send(ctx, email, "Verify your account", body)
}

// SendLoginCode delivers a one-time login code.
func (m *Mailer) SendLoginCode(ctx context.Context, email, code string) error {
	body := fmt.Sprintf("Your one-time password (OTP) is: %s. It will expire shortly.", code)
	return m.send(ctx, email, "Your OTP Code for Login", body)
}

// SendResetLink delivers the password-reset link.
func (m *Mailer) SendResetLink(ctx context.Context, email, link string) error {
	body := fmt.Sprintf(
		"You have requested to reset your password. Click the link below to reset it:\n\n%s\n\nThis link is valid for 10 minutes.",
		link,
	)
	return m.send(ctx, email, "Password Reset Request", body)
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("mailer: set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mailer: set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mailer: send message: %w", err)
	}

	return nil
}

var _ port.Notifier = (*Mailer)(nil)
