package auth

import "github.com/geocoder89/dinutri/internal/domain/user"

// Actor is the authenticated caller, resolved from a live user record.
type Actor struct {
	ID        string
	Role      user.Role
	Name      string
	Email     string
	PatientID string
}

func ActorFromUser(u user.User) Actor {
	return Actor{
		ID:        u.ID,
		Role:      u.Role,
		Name:      u.Name,
		Email:     u.Email,
		PatientID: u.PatientID,
	}
}

func (a Actor) Profile() user.Profile {
	return user.Profile{
		ID:        a.ID,
		Role:      a.Role,
		Name:      a.Name,
		Email:     a.Email,
		PatientID: a.PatientID,
	}
}
