package service

import (
	"context"
	"testing"

	"github.com/geocoder89/dinutri/internal/auth"
	"github.com/geocoder89/dinutri/internal/domain/patient"
	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatients_ListIsScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.nutritionist(t, "a@dinutri.app", "password123")
	b := f.nutritionist(t, "b@dinutri.app", "password123")

	f.patient(t, a, "ana")
	f.patient(t, a, "bruno")
	f.patient(t, b, "carla")

	got, err := f.patients.List(ctx, a)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, p := range got {
		assert.Equal(t, a.ID, p.OwnerID)
	}
}

func TestPatients_SameEmailUnderDifferentOwners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.nutritionist(t, "a@dinutri.app", "password123")
	b := f.nutritionist(t, "b@dinutri.app", "password123")

	req := patient.CreatePatientRequest{Name: "Ana", Email: "ana@example.com"}
	_, err := f.patients.Create(ctx, a, req)
	require.NoError(t, err)
	_, err = f.patients.Create(ctx, b, req)
	require.NoError(t, err)
}

func TestPatients_GetAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.nutritionist(t, "a@dinutri.app", "password123")
	other := f.nutritionist(t, "b@dinutri.app", "password123")
	p := f.patient(t, owner, "ana")

	self := auth.Actor{ID: "u-self", Role: user.RolePatient, PatientID: p.ID}
	stranger := auth.Actor{ID: "u-other", Role: user.RolePatient, PatientID: "someone-else"}

	tests := []struct {
		name    string
		actor   auth.Actor
		id      string
		wantErr error
	}{
		{"owner", owner, p.ID, nil},
		{"linked patient", self, p.ID, nil},
		{"other nutritionist", other, p.ID, ErrForbidden},
		{"other patient", stranger, p.ID, ErrForbidden},
		{"missing", owner, "nope", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.patients.Get(ctx, tt.actor, tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, p.ID, got.ID)
		})
	}
}

func TestPatients_UpdatePartialAndOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.nutritionist(t, "a@dinutri.app", "password123")
	other := f.nutritionist(t, "b@dinutri.app", "password123")
	p := f.patient(t, owner, "ana")

	_, err := f.patients.Update(ctx, other, p.ID, patient.UpdatePatientRequest{Name: strPtr("x")})
	assert.ErrorIs(t, err, ErrForbidden)

	f.clock.Advance(1)
	got, err := f.patients.Update(ctx, owner, p.ID, patient.UpdatePatientRequest{Email: strPtr("NEW@Example.com")})
	require.NoError(t, err)
	assert.Equal(t, "ana", got.Name)
	assert.Equal(t, "new@example.com", got.Email)
	assert.Equal(t, owner.ID, got.OwnerID)
	assert.True(t, got.UpdatedAt.After(p.UpdatedAt))

	_, err = f.patients.Update(ctx, owner, "missing", patient.UpdatePatientRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPatients_CreateRequiresNutritionist(t *testing.T) {
	f := newFixture(t)
	pat := auth.Actor{ID: "u1", Role: user.RolePatient, PatientID: "p1"}

	_, err := f.patients.Create(context.Background(), pat, patient.CreatePatientRequest{Name: "x", Email: "x@y.z"})
	assert.ErrorIs(t, err, ErrForbidden)
}
