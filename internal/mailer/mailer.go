package mailer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Transport delivers one rendered email. Any error counts as a failure for that recipient only.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, to, subject, body string) error

func (f TransportFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

// LogTransport logs emails instead of sending them.
type LogTransport struct {
	Log logrus.FieldLogger
}

func (t *LogTransport) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.Log.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
		"bytes":   len(body),
	}).Info("📧 email sent (log transport)")
	return nil
}
