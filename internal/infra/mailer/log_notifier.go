package mailer

import (
	"context"

	"go.uber.org/zap"

	"github.com/nepalwears/account-service/internal/core/port"
	"github.com/nepalwears/account-service/internal/infra/logger"
)

// LogNotifier logs deliveries instead of sending them. Used when SMTP is not
// configured, typically in local development.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

var _ port.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) SendVerificationLink(_ context.Context, email, link string) error {
	n.log.Info("verification link (smtp disabled)",
		zap.String("email", logger.MaskEmail(email)),
		zap.String("link", link),
	)
	return nil
}

func (n *LogNotifier) SendLoginCode(_ context.Context, email, code string) error {
	n.log.Info("login code (smtp disabled)",
		zap.String("email", logger.MaskEmail(email)),
		zap.String("code", code),
	)
	return nil
}

func (n *LogNotifier) SendResetLink(_ context.Context, email, link string) error {
	n.log.Info("reset link (smtp disabled)",
		zap.String("email", logger.MaskEmail(email)),
		zap.String("link", link),
	)
	return nil
}
