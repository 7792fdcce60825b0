package integration_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/geocoder89/dinutri/internal/domain/invite"
	"github.com/geocoder89/dinutri/internal/domain/patient"
	"github.com/geocoder89/dinutri/internal/domain/prescription"
	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/geocoder89/dinutri/internal/repo"
	"github.com/geocoder89/dinutri/internal/security"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiNutriFlow(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			app := newTestApp(t, store, testConfig())

			runNutritionistFlow(t, app, store)
		})
	}
}

func addNutritionist(t *testing.T, store repo.Store, email, password string) {
	t.Helper()

	hash, err := security.HashPassword(password)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, store.CreateUser(context.Background(), user.User{
		ID:           uuid.NewString(),
		Role:         user.RoleNutritionist,
		Name:         "Other Pro",
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
}

func breakfast() []prescription.Meal {
	return []prescription.Meal{{
		Name: "Breakfast",
		Items: []prescription.Item{{
			Description:   "Oats",
			Amount:        "50g",
			Substitutions: []string{"granola"},
		}},
		Notes: "with water",
	}}
}

func runNutritionistFlow(t *testing.T, app *testApp, store repo.Store) {
	// banner + health
	res := app.do(http.MethodGet, "/api", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, string(res.Body), "DiNutri API running")

	var health map[string]string
	res = app.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, store.Driver(), health["database"])

	// unauthenticated access is refused
	res = app.do(http.MethodGet, "/api/patients", "", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	pro := app.login(seedEmail, seedPassword)

	var me user.Profile
	res = app.do(http.MethodGet, "/api/me", pro, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &me)
	require.Equal(t, user.RoleNutritionist, me.Role)

	// patient
	var alice patient.Patient
	res = app.do(http.MethodPost, "/api/patients", pro, map[string]any{"name": "Alice Doe", "email": "Alice@Example.com"})
	require.Equal(t, http.StatusCreated, res.Code, string(res.Body))
	res.decode(t, &alice)
	assert.Equal(t, me.ID, alice.OwnerID)
	assert.Equal(t, "alice@example.com", alice.Email)

	res = app.do(http.MethodPost, "/api/patients", pro, map[string]any{"name": "No Email"})
	require.Equal(t, http.StatusBadRequest, res.Code)

	// draft A, then publish it in place
	var a prescription.Prescription
	res = app.do(http.MethodPost, "/api/prescriptions", pro, map[string]any{
		"patientId": alice.ID,
		"title":     "Plan A",
		"meals":     breakfast(),
	})
	require.Equal(t, http.StatusCreated, res.Code, string(res.Body))
	res.decode(t, &a)
	require.Equal(t, prescription.StatusDraft, a.Status)
	require.Nil(t, a.PublishedAt)
	require.Len(t, a.Meals, 1)
	require.NotEmpty(t, a.Meals[0].ID)

	res = app.do(http.MethodGet, "/api/patients/"+alice.ID+"/latest", pro, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "null", string(res.Body))

	app.clock.Advance(time.Minute)

	var published prescription.Prescription
	res = app.do(http.MethodPut, "/api/prescriptions/"+a.ID, pro, map[string]any{"status": "published"})
	require.Equal(t, http.StatusOK, res.Code, string(res.Body))
	res.decode(t, &published)
	require.Equal(t, a.ID, published.ID, "a draft is edited in place")
	require.NotNil(t, published.PublishedAt)
	firstPublish := *published.PublishedAt

	// republishing does not restamp
	app.clock.Advance(time.Minute)
	res = app.do(http.MethodPost, "/api/prescriptions/"+a.ID+"/publish", pro, nil)
	require.Equal(t, http.StatusOK, res.Code, string(res.Body))
	res.decode(t, &published)
	require.Equal(t, a.ID, published.ID)
	require.True(t, firstPublish.Equal(*published.PublishedAt))

	// duplicate is a fresh draft with the same content
	var b prescription.Prescription
	res = app.do(http.MethodPost, "/api/prescriptions/"+a.ID+"/duplicate", pro, nil)
	require.Equal(t, http.StatusCreated, res.Code, string(res.Body))
	res.decode(t, &b)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, prescription.StatusDraft, b.Status)
	assert.Nil(t, b.PublishedAt)
	assert.Equal(t, a.Title, b.Title)
	assert.Equal(t, a.Meals, b.Meals)

	var latest prescription.Prescription
	res = app.do(http.MethodGet, "/api/patients/"+alice.ID+"/latest", pro, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &latest)
	require.Equal(t, a.ID, latest.ID, "latest is the published record, not the newer draft")

	// ETag round trip
	res = app.do(http.MethodGet, "/api/prescriptions/"+a.ID, pro, nil)
	require.Equal(t, http.StatusOK, res.Code)
	etag := res.Headers.Get("ETag")
	require.NotEmpty(t, etag)

	notModified := app.doWithHeader(http.MethodGet, "/api/prescriptions/"+a.ID, pro, "If-None-Match", etag)
	require.Equal(t, http.StatusNotModified, notModified.Code)

	// editing a published record creates a new version
	app.clock.Advance(time.Minute)
	var c prescription.Prescription
	res = app.do(http.MethodPut, "/api/prescriptions/"+a.ID, pro, map[string]any{"title": "Plan A v2"})
	require.Equal(t, http.StatusOK, res.Code, string(res.Body))
	res.decode(t, &c)
	require.NotEqual(t, a.ID, c.ID)
	require.Equal(t, a.ID, c.SupersedesID)
	require.Equal(t, prescription.StatusPublished, c.Status)
	require.NotNil(t, c.PublishedAt)

	var original prescription.Prescription
	res = app.do(http.MethodGet, "/api/prescriptions/"+a.ID, pro, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &original)
	require.Equal(t, "Plan A", original.Title, "published snapshot is untouched")

	res = app.do(http.MethodGet, "/api/patients/"+alice.ID+"/latest", pro, nil)
	res.decode(t, &latest)
	require.Equal(t, c.ID, latest.ID)

	// a no-op edit of a published record returns it unchanged
	var same prescription.Prescription
	res = app.do(http.MethodPut, "/api/prescriptions/"+c.ID, pro, map[string]any{"title": "Plan A v2"})
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &same)
	require.Equal(t, c.ID, same.ID)

	var list []prescription.Prescription
	res = app.do(http.MethodGet, "/api/prescriptions?patientId="+alice.ID, pro, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &list)
	require.Len(t, list, 3)

	res = app.do(http.MethodGet, "/api/patients/"+alice.ID+"/prescriptions", pro, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &list)
	require.Len(t, list, 3)

	res = app.do(http.MethodGet, "/api/prescriptions", pro, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	// another nutritionist sees none of it
	addNutritionist(t, store, "other@dinutri.app", "otherpass")
	other := app.login("other@dinutri.app", "otherpass")

	res = app.do(http.MethodGet, "/api/patients/"+alice.ID, other, nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = app.do(http.MethodPut, "/api/prescriptions/"+a.ID, other, map[string]any{"title": "mine"})
	require.Equal(t, http.StatusForbidden, res.Code)

	res = app.do(http.MethodPost, "/api/prescriptions", other, map[string]any{"patientId": alice.ID, "title": "x"})
	require.Equal(t, http.StatusNotFound, res.Code)

	res = app.do(http.MethodGet, "/api/patients", other, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var otherPatients []patient.Patient
	res.decode(t, &otherPatients)
	require.Empty(t, otherPatients)

	runInviteFlow(t, app, pro, alice, a)
}

func runInviteFlow(t *testing.T, app *testApp, pro string, alice patient.Patient, alicePlan prescription.Prescription) {
	var inv invite.Invite
	res := app.do(http.MethodPost, "/api/invites", pro, map[string]any{"email": "bob@example.com", "expiresInHours": 1})
	require.Equal(t, http.StatusCreated, res.Code, string(res.Body))
	res.decode(t, &inv)
	require.Equal(t, invite.StatusActive, inv.Status)
	require.NotEmpty(t, inv.Token)

	// public resolve
	res = app.do(http.MethodGet, "/api/invites/"+inv.Token, "", nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = app.do(http.MethodGet, "/api/invites/not-a-token", "", nil)
	require.Equal(t, http.StatusNotFound, res.Code)

	var bob user.Profile
	res = app.do(http.MethodPost, "/api/invites/"+inv.Token+"/accept", "", map[string]any{"name": "Bob", "password": "bobpass"})
	require.Equal(t, http.StatusCreated, res.Code, string(res.Body))
	res.decode(t, &bob)
	require.Equal(t, user.RolePatient, bob.Role)
	require.NotEmpty(t, bob.PatientID)

	res = app.do(http.MethodPost, "/api/invites/"+inv.Token+"/accept", "", map[string]any{"name": "Bob", "password": "bobpass"})
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "invalid_state", res.errorCode(t))

	res = app.do(http.MethodPost, "/api/invites/"+inv.ID+"/revoke", pro, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "invalid_state", res.errorCode(t))

	res = app.do(http.MethodPost, "/api/invites", pro, map[string]any{"email": "BOB@example.com"})
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "user_exists", res.errorCode(t))

	// bob's view
	bobToken := app.login("bob@example.com", "bobpass")

	var bobMe user.Profile
	res = app.do(http.MethodGet, "/api/me", bobToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &bobMe)
	require.Equal(t, bob.PatientID, bobMe.PatientID)

	var bobPatient patient.Patient
	res = app.do(http.MethodGet, "/api/patients/"+bob.PatientID, bobToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &bobPatient)
	require.Equal(t, "bob@example.com", bobPatient.Email)

	res = app.do(http.MethodGet, "/api/patients/"+bob.PatientID+"/latest", bobToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "null", string(res.Body))

	res = app.do(http.MethodGet, "/api/patients/"+alice.ID, bobToken, nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = app.do(http.MethodGet, "/api/prescriptions/"+alicePlan.ID, bobToken, nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = app.do(http.MethodPost, "/api/patients", bobToken, map[string]any{"name": "Mallory", "email": "m@example.com"})
	require.Equal(t, http.StatusForbidden, res.Code)

	// bob sees published plans addressed to him, not drafts
	var draft, plan prescription.Prescription
	res = app.do(http.MethodPost, "/api/prescriptions", pro, map[string]any{"patientId": bob.PatientID, "title": "Bob draft"})
	require.Equal(t, http.StatusCreated, res.Code)
	res.decode(t, &draft)
	res = app.do(http.MethodPost, "/api/prescriptions", pro, map[string]any{"patientId": bob.PatientID, "title": "Bob plan", "status": "published", "meals": breakfast()})
	require.Equal(t, http.StatusCreated, res.Code)
	res.decode(t, &plan)
	require.NotNil(t, plan.PublishedAt)

	res = app.do(http.MethodGet, "/api/prescriptions/"+draft.ID, bobToken, nil)
	require.Equal(t, http.StatusForbidden, res.Code)
	res = app.do(http.MethodGet, "/api/prescriptions/"+plan.ID, bobToken, nil)
	require.Equal(t, http.StatusOK, res.Code)

	var bobLatest prescription.Prescription
	res = app.do(http.MethodGet, "/api/patients/"+bob.PatientID+"/latest", bobToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &bobLatest)
	require.Equal(t, plan.ID, bobLatest.ID)

	// expiry is judged at read time
	var carol invite.Invite
	res = app.do(http.MethodPost, "/api/invites", pro, map[string]any{"email": "carol@example.com", "expiresInHours": 1})
	require.Equal(t, http.StatusCreated, res.Code)
	res.decode(t, &carol)

	app.clock.Advance(2 * time.Hour)

	res = app.do(http.MethodGet, "/api/invites/"+carol.Token, "", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "invite_expired", res.errorCode(t))

	res = app.do(http.MethodPost, "/api/invites/"+carol.Token+"/accept", "", map[string]any{"name": "Carol", "password": "carolpass"})
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "invite_expired", res.errorCode(t))

	var invites []invite.Invite
	res = app.do(http.MethodGet, "/api/invites", pro, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &invites)
	require.Len(t, invites, 2)

	byID := map[string]invite.Invite{}
	for _, i := range invites {
		byID[i.ID] = i
	}
	assert.Equal(t, invite.StatusUsed, byID[inv.ID].Status)
	assert.Equal(t, invite.StatusActive, byID[carol.ID].Status, "stored status stays active after expiry")

	// an expired but still active invite can be revoked, once
	res = app.do(http.MethodPost, "/api/invites/"+carol.ID+"/revoke", pro, nil)
	require.Equal(t, http.StatusOK, res.Code, string(res.Body))

	res = app.do(http.MethodPost, "/api/invites/"+carol.ID+"/revoke", pro, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "invalid_state", res.errorCode(t))
}

func TestRateLimitOnAPI(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerWindow = 2

	app := newTestApp(t, backends(t)["memory"](t), cfg)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, app.do(http.MethodGet, "/api/health", "", nil).Code)
	}

	res := app.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusTooManyRequests, res.Code)
	require.NotEmpty(t, res.Headers.Get("Retry-After"))

	// probes are outside the limited group
	require.Equal(t, http.StatusOK, app.do(http.MethodGet, "/healthz", "", nil).Code)
}

func TestDocsServed(t *testing.T) {
	app := newTestApp(t, backends(t)["memory"](t), testConfig())

	res := app.do(http.MethodGet, "/docs", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, string(res.Body), "swagger-ui")

	res = app.do(http.MethodGet, "/docs/openapi.yaml", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, string(res.Body), "openapi: 3.0.3")
}

func TestRateLimitIgnoresForwardedHeaderFromClients(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerWindow = 1

	app := newTestApp(t, backends(t)["memory"](t), cfg)

	require.Equal(t, http.StatusOK, app.do(http.MethodGet, "/api/health", "", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, app.do(http.MethodGet, "/api/health", "", nil).Code)

	for _, forwarded := range []string{"1.2.3.4", "5.6.7.8"} {
		res := app.doWithHeader(http.MethodGet, "/api/health", "", "X-Forwarded-For", forwarded)
		assert.Equal(t, http.StatusTooManyRequests, res.Code, forwarded)
	}
}

func TestRateLimitHonoursTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerWindow = 1
	// httptest requests come from 192.0.2.1
	cfg.TrustedProxies = []string{"192.0.2.1"}

	app := newTestApp(t, backends(t)["memory"](t), cfg)

	require.Equal(t, http.StatusOK, app.doWithHeader(http.MethodGet, "/api/health", "", "X-Forwarded-For", "1.2.3.4").Code)
	require.Equal(t, http.StatusTooManyRequests, app.doWithHeader(http.MethodGet, "/api/health", "", "X-Forwarded-For", "1.2.3.4").Code)
	require.Equal(t, http.StatusOK, app.doWithHeader(http.MethodGet, "/api/health", "", "X-Forwarded-For", "5.6.7.8").Code)
}

func TestUnknownRoutesAnswerJSON(t *testing.T) {
	app := newTestApp(t, backends(t)["memory"](t), testConfig())

	res := app.do(http.MethodGet, "/api/nope", "", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "not_found", res.errorCode(t))
	assert.Contains(t, res.Headers.Get("Content-Type"), "application/json")

	res = app.do(http.MethodDelete, "/api/health", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, res.Code)
	assert.Equal(t, "method_not_allowed", res.errorCode(t))
}
