package user

import (
	"strings"
	"time"
)

type Role string

const (
	RoleNutritionist Role = "nutritionist"
	RolePatient      Role = "patient"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleNutritionist, RolePatient:
		return true
	default:
		return false
	}
}

type User struct {
	ID           string    `json:"id" bson:"id"`
	Role         Role      `json:"role" bson:"role"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"passwordHash"` // never expose hash in JSON
	PatientID    string    `json:"patientId,omitempty" bson:"patientId,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Profile is the public view returned by /me and invite acceptance.
type Profile struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	PatientID string `json:"patientId,omitempty"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Role:      u.Role,
		Name:      u.Name,
		Email:     u.Email,
		PatientID: u.PatientID,
	}
}

// NormalizeEmail is the single place emails are folded for lookups and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
