package mail

import (
	"context"

	"github.com/conthop/backend/internal/logging"
)

// LogTransport writes messages to the logger instead of delivering them.
type LogTransport struct {
	log *logging.Logger
}

// NewLogTransport returns a transport for development setups without SMTP.
func NewLogTransport(log *logging.Logger) *LogTransport {
	if log == nil {
		log = logging.Default()
	}
	return &LogTransport{log: log}
}

func (t *LogTransport) Name() string { return "log" }

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	t.log.WithContext(ctx).WithField("to", msg.To).
		WithField("subject", msg.Subject).
		WithField("bytes", len(msg.HTML)).
		Info("email not delivered: log transport")
	return nil
}
