package notifications

import (
	"context"
	"time"
)

type InviteMessage struct {
	InviteID       string
	Email          string
	NutritionistID string
	AcceptURL      string
	ExpiresAt      time.Time
}

type Notifier interface {
	SendInvite(ctx context.Context, msg InviteMessage) error
}
