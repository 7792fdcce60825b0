package invite

import (
	"time"

	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/google/uuid"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusRevoked Status = "revoked"
)

// IsTerminal is true for used and revoked.
func (s Status) IsTerminal() bool {
	return s == StatusUsed || s == StatusRevoked
}

type Invite struct {
	ID             string    `json:"id" bson:"id"`
	Token          string    `json:"token" bson:"token"`
	Email          string    `json:"email" bson:"email"`
	NutritionistID string    `json:"nutritionistId" bson:"nutritionistId"`
	Status         Status    `json:"status" bson:"status"`
	ExpiresAt      time.Time `json:"expiresAt" bson:"expiresAt"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

// IsExpired is evaluated at read time; stored status is not consulted.
func (i Invite) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

type CreateInviteRequest struct {
	Email          string `json:"email" binding:"required,email"`
	ExpiresInHours *int   `json:"expiresInHours" binding:"omitempty,min=1,max=720"`
}

type AcceptInviteRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=120"`
	Password string `json:"password" binding:"required,max=72"`
}

func New(nutritionistID, email string, ttl time.Duration, now time.Time) Invite {
	return Invite{
		ID:             uuid.NewString(),
		Token:          uuid.NewString(),
		Email:          user.NormalizeEmail(email),
		NutritionistID: nutritionistID,
		Status:         StatusActive,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
