package mail

import (
	"context"
	"log/slog"

	"github.com/mailfold/mailfold/internal/render"
)

// Mailer composes and submits rendered messages. It is the delivery
// pipeline's transport.
type Mailer struct {
	sender    Sender
	transport *Transport
	logger    *slog.Logger
}

// NewMailer creates a Mailer
func NewMailer(sender Sender, transport *Transport, logger *slog.Logger) *Mailer {
	return &Mailer{
		sender:    sender,
		transport: transport,
		logger:    logger,
	}
}

// Send builds the MIME message and submits it to the relay
func (m *Mailer) Send(ctx context.Context, msg *render.Message) error {
	env, err := BuildMessage(msg, m.sender, m.logger)
	if err != nil {
		// A message that cannot be composed will not compose better
		// on retry
		return &DeliveryError{Temporary: false, Message: err.Error()}
	}
	if err := m.transport.Submit(ctx, env); err != nil {
		if IsTemporaryError(err) {
			m.logger.Warn("delivery failed, will retry on the next run",
				"recipient", msg.To, "error", err)
		} else {
			m.logger.Error("delivery rejected permanently",
				"recipient", msg.To, "error", err)
		}
		return err
	}
	return nil
}
