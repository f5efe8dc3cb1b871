package auth

import (
	"context"
	"log/slog"
)

// Notifier delivers a second-factor code to the account holder.
type Notifier interface {
	SendCode(ctx context.Context, user *User, code string) error
}

// LogNotifier writes codes to the log. Only for development and tests.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) SendCode(ctx context.Context, user *User, code string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "two-factor code issued",
		"username", user.Username,
		"code", code,
	)
	return nil
}
