package patient

import (
	"time"

	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/google/uuid"
)

// Patient is owned by exactly one nutritionist. OwnerID never changes after creation.
type Patient struct {
	ID        string    `json:"id" bson:"id"`
	OwnerID   string    `json:"ownerId" bson:"ownerId"`
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email" bson:"email"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

type CreatePatientRequest struct {
	Name  string `json:"name" binding:"required,min=1,max=120"`
	Email string `json:"email" binding:"required,email"`
}

// partial update, nil fields are left untouched
type UpdatePatientRequest struct {
	Name  *string `json:"name" binding:"omitempty,min=1,max=120"`
	Email *string `json:"email" binding:"omitempty,email"`
}

func NewFromCreateRequest(ownerID string, req CreatePatientRequest, now time.Time) Patient {
	return Patient{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      req.Name,
		Email:     user.NormalizeEmail(req.Email),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply returns a copy with the request's non-nil fields applied.
func (p Patient) Apply(req UpdatePatientRequest, now time.Time) Patient {
	if req.Name != nil && *req.Name != "" {
		p.Name = *req.Name
	}
	if req.Email != nil && *req.Email != "" {
		p.Email = user.NormalizeEmail(*req.Email)
	}
	p.UpdatedAt = now
	return p
}
