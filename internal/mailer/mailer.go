// Package mailer delivers rendered campaign emails. Two senders exist: SES
// for production and a log-only sender for local development and tests.
package mailer

import (
	"context"

	"github.com/ignite/campaigner/internal/domain"
)

// Sender delivers one email. Implementations report per-message failures
// through the returned SendResult rather than aborting a whole batch.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
}
