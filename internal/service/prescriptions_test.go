package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/dinutri/internal/auth"
	"github.com/geocoder89/dinutri/internal/domain/prescription"
	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/geocoder89/dinutri/internal/repo"
	"github.com/geocoder89/dinutri/internal/repo/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oneMeal() []prescription.Meal {
	return []prescription.Meal{{
		Name:  "Breakfast",
		Notes: "before 9am",
		Items: []prescription.Item{{
			Description:   "Oats",
			Amount:        "40g",
			Substitutions: []string{"granola", "muesli"},
		}},
	}}
}

func statusPtr(s prescription.Status) *prescription.Status { return &s }

func TestPrescriptions_CreateDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nutritionist(t, "a@dinutri.app", "password123")
	p := f.patient(t, n, "ana")

	got, err := f.prescriptions.Create(ctx, n, prescription.CreatePrescriptionRequest{PatientID: p.ID, Title: "Week 1"})
	require.NoError(t, err)

	assert.Equal(t, prescription.StatusDraft, got.Status)
	assert.Nil(t, got.PublishedAt)
	assert.NotNil(t, got.Meals)
	assert.Empty(t, got.Meals)
	assert.Equal(t, "", got.GeneralNotes)
	assert.Equal(t, n.ID, got.NutritionistID)
}

func TestPrescriptions_CreatePublishedStampsPublishedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nutritionist(t, "a@dinutri.app", "password123")
	p := f.patient(t, n, "ana")

	got, err := f.prescriptions.Create(ctx, n, prescription.CreatePrescriptionRequest{
		PatientID: p.ID, Title: "Week 1", Status: prescription.StatusPublished,
	})
	require.NoError(t, err)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, got.PublishedAt.Equal(f.clock.Now()))
}

func TestPrescriptions_CreateForForeignPatientIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.nutritionist(t, "a@dinutri.app", "password123")
	other := f.nutritionist(t, "b@dinutri.app", "password123")
	p := f.patient(t, owner, "ana")

	_, err := f.prescriptions.Create(ctx, other, prescription.CreatePrescriptionRequest{PatientID: p.ID, Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.prescriptions.Create(ctx, owner, prescription.CreatePrescriptionRequest{PatientID: "missing", Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPrescriptions_ListValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.nutritionist(t, "a@dinutri.app", "password123")
	other := f.nutritionist(t, "b@dinutri.app", "password123")
	p := f.patient(t, owner, "ana")

	_, err := f.prescriptions.List(ctx, owner, "")
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = f.prescriptions.List(ctx, other, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	for i := 0; i < 3; i++ {
		_, err := f.prescriptions.Create(ctx, owner, prescription.CreatePrescriptionRequest{PatientID: p.ID, Title: "t"})
		require.NoError(t, err)
	}
	got, err := f.prescriptions.List(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestPrescriptions_PublishStampsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nutritionist(t, "a@dinutri.app", "password123")
	p := f.patient(t, n, "ana")

	draft, err := f.prescriptions.Create(ctx, n, prescription.CreatePrescriptionRequest{PatientID: p.ID, Title: "Week 1"})
	require.NoError(t, err)

	// draft edits stay in place
	f.clock.Advance(time.Minute)
	edited, err := f.prescriptions.Update(ctx, n, draft.ID, prescription.UpdatePrescriptionRequest{Title: strPtr("Week 1b")})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, edited.ID)
	assert.Nil(t, edited.PublishedAt)

	f.clock.Advance(time.Minute)
	publishTime := f.clock.Now()
	published, err := f.prescriptions.Update(ctx, n, draft.ID, prescription.UpdatePrescriptionRequest{Status: statusPtr(prescription.StatusPublished)})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, published.ID)
	require.NotNil(t, published.PublishedAt)
	assert.True(t, published.PublishedAt.Equal(publishTime))

	// re-saving a published record with nothing new is a no-op
	f.clock.Advance(time.Hour)
	again, err := f.prescriptions.Update(ctx, n, draft.ID, prescription.UpdatePrescriptionRequest{
		Status: statusPtr(prescription.StatusPublished),
		Title:  strPtr("Week 1b"),
	})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, again.ID)
	assert.True(t, again.PublishedAt.Equal(publishTime))

	stored, err := f.prescriptions.Get(ctx, n, draft.ID)
	require.NoError(t, err)
	assert.True(t, stored.PublishedAt.Equal(publishTime))
}

func TestPrescriptions_EditingPublishedCreatesNewVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nutritionist(t, "a@dinutri.app", "password123")
	p := f.patient(t, n, "ana")

	orig, err := f.prescriptions.Create(ctx, n, prescription.CreatePrescriptionRequest{
		PatientID: p.ID, Title: "Week 1", Status: prescription.StatusPublished, Meals: oneMeal(),
	})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	next, err := f.prescriptions.Update(ctx, n, orig.ID, prescription.UpdatePrescriptionRequest{Title: strPtr("Week 2")})
	require.NoError(t, err)

	assert.NotEqual(t, orig.ID, next.ID)
	assert.Equal(t, orig.ID, next.SupersedesID)
	assert.Equal(t, prescription.StatusPublished, next.Status)
	require.NotNil(t, next.PublishedAt)
	assert.True(t, next.PublishedAt.Equal(f.clock.Now()))
	assert.Equal(t, orig.Meals, next.Meals)

	// the old snapshot is untouched
	old, err := f.prescriptions.Get(ctx, n, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, "Week 1", old.Title)
	assert.True(t, old.PublishedAt.Equal(*orig.PublishedAt))

	latest, err := f.prescriptions.LatestPublished(ctx, n, p.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, next.ID, latest.ID)
}

func TestPrescriptions_EditingPublishedAsDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nutritionist(t, "a@dinutri.app", "password123")
	p := f.patient(t, n, "ana")

	orig, err := f.prescriptions.Create(ctx, n, prescription.CreatePrescriptionRequest{
		PatientID: p.ID, Title: "Week 1", Status: prescription.StatusPublished,
	})
	require.NoError(t, err)

	next, err := f.prescriptions.Update(ctx, n, orig.ID, prescription.UpdatePrescriptionRequest{Status: statusPtr(prescription.StatusDraft)})
	require.NoError(t, err)
	assert.NotEqual(t, orig.ID, next.ID)
	assert.Equal(t, prescription.StatusDraft, next.Status)
	assert.Nil(t, next.PublishedAt)

	latest, err := f.prescriptions.LatestPublished(ctx, n, p.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, orig.ID, latest.ID)
}

func TestPrescriptions_UpdateAndDuplicateOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.nutritionist(t, "a@dinutri.app", "password123")
	other := f.nutritionist(t, "b@dinutri.app", "password123")
	p := f.patient(t, owner, "ana")

	rx, err := f.prescriptions.Create(ctx, owner, prescription.CreatePrescriptionRequest{PatientID: p.ID, Title: "t"})
	require.NoError(t, err)

	_, err = f.prescriptions.Update(ctx, other, rx.ID, prescription.UpdatePrescriptionRequest{Title: strPtr("x")})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.prescriptions.Duplicate(ctx, other, rx.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.prescriptions.Duplicate(ctx, owner, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPrescriptions_PatientNeverSeesDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nutritionist(t, "a@dinutri.app", "password123")
	p := f.patient(t, n, "ana")
	self := auth.Actor{ID: "u-ana", Role: user.RolePatient, PatientID: p.ID}
	stranger := auth.Actor{ID: "u-bob", Role: user.RolePatient, PatientID: "other"}

	draft, err := f.prescriptions.Create(ctx, n, prescription.CreatePrescriptionRequest{PatientID: p.ID, Title: "d"})
	require.NoError(t, err)
	pub, err := f.prescriptions.Create(ctx, n, prescription.CreatePrescriptionRequest{
		PatientID: p.ID, Title: "p", Status: prescription.StatusPublished,
	})
	require.NoError(t, err)

	_, err = f.prescriptions.Get(ctx, self, draft.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.prescriptions.Get(ctx, self, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, pub.ID, got.ID)

	_, err = f.prescriptions.Get(ctx, stranger, pub.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPrescriptions_DuplicateScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nutritionist(t, "a@dinutri.app", "password123")
	p := f.patient(t, n, "ana")

	a, err := f.prescriptions.Create(ctx, n, prescription.CreatePrescriptionRequest{
		PatientID: p.ID, Title: "Plan A", Meals: oneMeal(), GeneralNotes: strPtr("drink water"),
	})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	a, err = f.prescriptions.Update(ctx, n, a.ID, prescription.UpdatePrescriptionRequest{Status: statusPtr(prescription.StatusPublished)})
	require.NoError(t, err)
	require.NotNil(t, a.PublishedAt)

	f.clock.Advance(time.Minute)
	b, err := f.prescriptions.Duplicate(ctx, n, a.ID)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, prescription.StatusDraft, b.Status)
	assert.Nil(t, b.PublishedAt)
	assert.Equal(t, a.Title, b.Title)
	assert.Equal(t, a.GeneralNotes, b.GeneralNotes)
	assert.Equal(t, a.Meals, b.Meals)
	assert.True(t, b.CreatedAt.After(a.CreatedAt))

	latest, err := f.prescriptions.LatestPublished(ctx, n, p.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, a.ID, latest.ID)
}

func TestPrescriptions_LatestPublishedPicksNewest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nutritionist(t, "a@dinutri.app", "password123")
	p := f.patient(t, n, "ana")

	none, err := f.prescriptions.LatestPublished(ctx, n, p.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	var lastID string
	for i := 0; i < 4; i++ {
		f.clock.Advance(time.Hour)
		rx, err := f.prescriptions.Create(ctx, n, prescription.CreatePrescriptionRequest{
			PatientID: p.ID, Title: "plan", Status: prescription.StatusPublished,
		})
		require.NoError(t, err)
		lastID = rx.ID
	}

	// a later draft does not count
	f.clock.Advance(time.Hour)
	_, err = f.prescriptions.Create(ctx, n, prescription.CreatePrescriptionRequest{PatientID: p.ID, Title: "draft"})
	require.NoError(t, err)

	latest, err := f.prescriptions.LatestPublished(ctx, n, p.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, lastID, latest.ID)
}

func TestPrescriptions_LatestPublishedAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.nutritionist(t, "a@dinutri.app", "password123")
	other := f.nutritionist(t, "b@dinutri.app", "password123")
	p := f.patient(t, owner, "ana")

	self := auth.Actor{ID: "u-ana", Role: user.RolePatient, PatientID: p.ID}
	stranger := auth.Actor{ID: "u-bob", Role: user.RolePatient, PatientID: "other"}

	_, err := f.prescriptions.LatestPublished(ctx, self, p.ID)
	assert.NoError(t, err)

	_, err = f.prescriptions.LatestPublished(ctx, other, p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.prescriptions.LatestPublished(ctx, stranger, p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.prescriptions.LatestPublished(ctx, owner, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPrescriptions_LatestCacheInvalidatedOnPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nutritionist(t, "a@dinutri.app", "password123")
	p := f.patient(t, n, "ana")

	// prime the cache with a miss
	none, err := f.prescriptions.LatestPublished(ctx, n, p.ID)
	require.NoError(t, err)
	require.Nil(t, none)

	rx, err := f.prescriptions.Create(ctx, n, prescription.CreatePrescriptionRequest{
		PatientID: p.ID, Title: "plan", Status: prescription.StatusPublished,
	})
	require.NoError(t, err)

	latest, err := f.prescriptions.LatestPublished(ctx, n, p.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, rx.ID, latest.ID)
}

// publishOnWrite publishes the record straight in the store right before the
// first draft write lands, as a concurrent request would.
type publishOnWrite struct {
	*memory.Store
	at   time.Time
	once sync.Once
}

func (p *publishOnWrite) UpdatePrescription(ctx context.Context, next prescription.Prescription) error {
	p.once.Do(func() {
		cur, err := p.Store.GetPrescriptionByID(ctx, next.ID)
		if err != nil {
			return
		}
		cur.Status = prescription.StatusPublished
		at := p.at
		cur.PublishedAt = &at
		_ = p.Store.UpdatePrescription(ctx, cur)
	})
	return p.Store.UpdatePrescription(ctx, next)
}

func TestPrescriptions_DraftEditRacingPublishIsVersioned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nutritionist(t, "a@dinutri.app", "password123")
	p := f.patient(t, n, "ana")

	draft, err := f.prescriptions.Create(ctx, n, prescription.CreatePrescriptionRequest{PatientID: p.ID, Title: "Week 1"})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	publishTime := f.clock.Now()
	racing := &publishOnWrite{Store: f.store, at: publishTime}
	svc := NewPrescriptionService(racing, f.store, 0, nil, nil).WithClock(f.clock.Now)

	got, err := svc.Update(ctx, n, draft.ID, prescription.UpdatePrescriptionRequest{Title: strPtr("Week 1b")})
	require.NoError(t, err)

	stored, err := f.store.GetPrescriptionByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, prescription.StatusPublished, stored.Status)
	assert.Equal(t, "Week 1", stored.Title)
	require.NotNil(t, stored.PublishedAt)
	assert.True(t, stored.PublishedAt.Equal(publishTime))

	assert.NotEqual(t, draft.ID, got.ID)
	assert.Equal(t, draft.ID, got.SupersedesID)
	assert.Equal(t, "Week 1b", got.Title)
}

// alwaysPublished refuses every draft write.
type alwaysPublished struct {
	*memory.Store
}

func (alwaysPublished) UpdatePrescription(context.Context, prescription.Prescription) error {
	return repo.ErrStateChanged
}

func TestPrescriptions_DraftEditGivesUpAfterRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.nutritionist(t, "a@dinutri.app", "password123")
	p := f.patient(t, n, "ana")

	draft, err := f.prescriptions.Create(ctx, n, prescription.CreatePrescriptionRequest{PatientID: p.ID, Title: "Week 1"})
	require.NoError(t, err)

	svc := NewPrescriptionService(alwaysPublished{f.store}, f.store, 0, nil, nil).WithClock(f.clock.Now)

	_, err = svc.Update(ctx, n, draft.ID, prescription.UpdatePrescriptionRequest{Title: strPtr("Week 1b")})
	assert.ErrorIs(t, err, ErrInvalidState)
}
