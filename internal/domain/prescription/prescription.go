package prescription

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPublished:
		return true
	default:
		return false
	}
}

type Item struct {
	ID            string   `json:"id" bson:"id"`
	Description   string   `json:"description" bson:"description" binding:"max=500"`
	Amount        string   `json:"amount" bson:"amount" binding:"max=120"`
	Substitutions []string `json:"substitutions" bson:"substitutions" binding:"omitempty,dive,max=500"`
}

type Meal struct {
	ID    string `json:"id" bson:"id"`
	Name  string `json:"name" bson:"name" binding:"max=120"`
	Items []Item `json:"items" bson:"items" binding:"omitempty,dive"`
	Notes string `json:"notes" bson:"notes" binding:"max=2000"`
}

// Prescription is a versioned meal plan. PublishedAt is stamped once, on the
// first transition to published, and never cleared. A published record is a
// snapshot: edits produce a new record whose SupersedesID points back at it.
type Prescription struct {
	ID             string     `json:"id" bson:"id"`
	PatientID      string     `json:"patientId" bson:"patientId"`
	NutritionistID string     `json:"nutritionistId" bson:"nutritionistId"`
	Title          string     `json:"title" bson:"title"`
	Status         Status     `json:"status" bson:"status"`
	Meals          []Meal     `json:"meals" bson:"meals"`
	GeneralNotes   string     `json:"generalNotes" bson:"generalNotes"`
	PublishedAt    *time.Time `json:"publishedAt" bson:"publishedAt"`
	SupersedesID   string     `json:"supersedesId,omitempty" bson:"supersedesId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt" bson:"updatedAt"`
}

type ListFilter struct {
	PatientID      string
	NutritionistID string
}

type CreatePrescriptionRequest struct {
	PatientID    string  `json:"patientId" binding:"required"`
	Title        string  `json:"title" binding:"required,min=1,max=200"`
	Status       Status  `json:"status" binding:"omitempty,oneof=draft published"`
	Meals        []Meal  `json:"meals" binding:"omitempty,dive"`
	GeneralNotes *string `json:"generalNotes" binding:"omitempty,max=5000"`
}

// partial update, nil fields are left untouched
type UpdatePrescriptionRequest struct {
	Title        *string `json:"title" binding:"omitempty,min=1,max=200"`
	Status       *Status `json:"status" binding:"omitempty,oneof=draft published"`
	Meals        *[]Meal `json:"meals" binding:"omitempty,dive"`
	GeneralNotes *string `json:"generalNotes" binding:"omitempty,max=5000"`
}

func (p Prescription) IsPublished() bool {
	return p.Status == StatusPublished
}

// RecencyKey is publishedAt, falling back to createdAt.
func (p Prescription) RecencyKey() time.Time {
	if p.PublishedAt != nil {
		return *p.PublishedAt
	}
	return p.CreatedAt
}

// NewerThan orders records for the latest-published lookup: recency key
// first, then createdAt, then id so the order is total.
func (p Prescription) NewerThan(o Prescription) bool {
	mine, theirs := p.RecencyKey(), o.RecencyKey()
	if !mine.Equal(theirs) {
		return mine.After(theirs)
	}
	if !p.CreatedAt.Equal(o.CreatedAt) {
		return p.CreatedAt.After(o.CreatedAt)
	}
	return p.ID > o.ID
}

func NewFromCreateRequest(nutritionistID string, req CreatePrescriptionRequest, now time.Time) Prescription {
	status := req.Status
	if status == "" {
		status = StatusDraft
	}

	notes := ""
	if req.GeneralNotes != nil {
		notes = *req.GeneralNotes
	}

	p := Prescription{
		ID:             uuid.NewString(),
		PatientID:      req.PatientID,
		NutritionistID: nutritionistID,
		Title:          req.Title,
		Status:         status,
		Meals:          NormalizeMeals(req.Meals),
		GeneralNotes:   notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if status == StatusPublished {
		at := now
		p.PublishedAt = &at
	}
	return p
}

// Duplicate copies title, meals and notes into a fresh draft.
func (p Prescription) Duplicate(now time.Time) Prescription {
	return Prescription{
		ID:             uuid.NewString(),
		PatientID:      p.PatientID,
		NutritionistID: p.NutritionistID,
		Title:          p.Title,
		Status:         StatusDraft,
		Meals:          CloneMeals(p.Meals),
		GeneralNotes:   p.GeneralNotes,
		PublishedAt:    nil,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Apply returns a copy with the request's content fields applied. Status and
// PublishedAt are left for the caller, which owns the lifecycle rules.
func (p Prescription) Apply(req UpdatePrescriptionRequest, now time.Time) Prescription {
	next := p
	next.Meals = CloneMeals(p.Meals)

	if req.Title != nil && *req.Title != "" {
		next.Title = *req.Title
	}
	if req.Meals != nil {
		next.Meals = NormalizeMeals(*req.Meals)
	}
	if req.GeneralNotes != nil {
		next.GeneralNotes = *req.GeneralNotes
	}
	next.UpdatedAt = now
	return next
}

// Changes reports whether applying req to p would alter anything.
func (req UpdatePrescriptionRequest) Changes(p Prescription) bool {
	if req.Title != nil && *req.Title != "" && *req.Title != p.Title {
		return true
	}
	if req.Status != nil && *req.Status != p.Status {
		return true
	}
	if req.GeneralNotes != nil && *req.GeneralNotes != p.GeneralNotes {
		return true
	}
	if req.Meals != nil && !sameMeals(*req.Meals, p.Meals) {
		return true
	}
	return false
}

// NormalizeMeals deep-copies meals, filling missing ids and nil slices.
func NormalizeMeals(meals []Meal) []Meal {
	out := make([]Meal, 0, len(meals))

	for _, m := range meals {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}

		items := make([]Item, 0, len(m.Items))
		for _, it := range m.Items {
			if it.ID == "" {
				it.ID = uuid.NewString()
			}
			subs := make([]string, len(it.Substitutions))
			copy(subs, it.Substitutions)
			it.Substitutions = subs
			items = append(items, it)
		}
		m.Items = items
		out = append(out, m)
	}
	return out
}

// CloneMeals deep-copies meals keeping their ids.
func CloneMeals(meals []Meal) []Meal {
	out := make([]Meal, len(meals))

	for i, m := range meals {
		items := make([]Item, len(m.Items))
		for j, it := range m.Items {
			subs := make([]string, len(it.Substitutions))
			copy(subs, it.Substitutions)
			it.Substitutions = subs
			items[j] = it
		}
		m.Items = items
		out[i] = m
	}
	return out
}

// sameMeals compares meal content. An empty id on the incoming side matches
// any stored id since clients may resend meals without them.
func sameMeals(incoming, stored []Meal) bool {
	if len(incoming) != len(stored) {
		return false
	}

	for i := range incoming {
		a, b := incoming[i], stored[i]
		if (a.ID != "" && a.ID != b.ID) || a.Name != b.Name || a.Notes != b.Notes || len(a.Items) != len(b.Items) {
			return false
		}
		for j := range a.Items {
			x, y := a.Items[j], b.Items[j]
			if (x.ID != "" && x.ID != y.ID) || x.Description != y.Description || x.Amount != y.Amount {
				return false
			}
			if len(x.Substitutions) != len(y.Substitutions) {
				return false
			}
			for k := range x.Substitutions {
				if x.Substitutions[k] != y.Substitutions[k] {
					return false
				}
			}
		}
	}
	return true
}
