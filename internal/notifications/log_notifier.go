package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrProviderDown = errors.New("notification provider down")

// LogNotifier writes the invite link to the log instead of sending mail.
// Delay and Fail simulate a slow or broken provider.
type LogNotifier struct {
	log   *slog.Logger
	Delay time.Duration
	Fail  bool
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendInvite(ctx context.Context, msg InviteMessage) error {
	if n.Delay > 0 {
		select {
		case <-time.After(n.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if n.Fail {
		return ErrProviderDown
	}

	n.log.InfoContext(ctx, "notification.invite",
		"invite_id", msg.InviteID,
		"email", msg.Email,
		"nutritionist_id", msg.NutritionistID,
		"accept_url", msg.AcceptURL,
		"expires_at", msg.ExpiresAt,
	)
	return nil
}
