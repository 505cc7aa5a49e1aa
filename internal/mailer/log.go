package mailer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaigner/internal/domain"
	"github.com/ignite/campaigner/internal/pkg/logger"
)

// LogSender records sends without delivering anything. It is the default in
// local development and the sender used by most tests.
type LogSender struct{}

// NewLogSender returns a sender that only logs.
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send logs the message and reports success.
func (s *LogSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	logger.Info("email send (log only)",
		"campaign_id", msg.CampaignID,
		"contact_id", msg.ContactID,
		"to", msg.Email,
		"subject", msg.Subject,
	)
	return &domain.SendResult{
		Success:   true,
		MessageID: "log-" + uuid.NewString(),
		SentAt:    time.Now().UTC(),
	}, nil
}
