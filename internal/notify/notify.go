// Package notify delivers out-of-band messages such as password reset codes.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier sends messages to a user outside the chat connection.
type Notifier interface {
	PasswordReset(ctx context.Context, email, code string) error
}

// LogNotifier writes notifications to the log instead of delivering them.
// Codes are logged at debug level only.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

// PasswordReset records a reset code for email.
func (n *LogNotifier) PasswordReset(ctx context.Context, email, code string) error {
	n.log.Info().Str("email", email).Msg("password reset requested")
	n.log.Debug().Str("email", email).Str("code", code).Msg("password reset code")
	return nil
}
