package dto

import (
	"time"

	"github.com/noah-isme/sma-visit-api/internal/models"
)

// PurposeSelection carries either a catalog id, the custom sentinel (-1) with
// free text, or nothing to use the module default.
type PurposeSelection struct {
	PurposeID   *int64 `json:"purpose_id,omitempty"`
	PurposeText string `json:"purpose_text,omitempty" validate:"max=255"`
}

// DepartRequest opens a visit for a registered entity.
type DepartRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	EntityID string `json:"entity_id" validate:"required"`
	Actor    string `json:"actor" validate:"required"`
	PurposeSelection
}

// ReturnRequest closes the open visit of an entity.
type ReturnRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	EntityID string `json:"entity_id" validate:"required"`
	Actor    string `json:"actor" validate:"required"`
}

// TransitionResult describes a successful lifecycle transition.
type TransitionResult struct {
	VisitID     string            `json:"visit_id"`
	EntityID    string            `json:"entity_id"`
	Category    models.Category   `json:"category"`
	State       models.VisitState `json:"state"`
	PurposeID   *int64            `json:"purpose_id,omitempty"`
	PurposeName string            `json:"purpose_name"`
	At          time.Time         `json:"at"`
	AtDisplay   string            `json:"at_display"`
	Source      models.Source     `json:"source"`
	NextAction  models.NextAction `json:"next_action"`
}

// GatePassRequest asks for a new gate pass.
type GatePassRequest struct {
	TenantID      string `json:"tenant_id" validate:"required"`
	DisplayName   string `json:"display_name" validate:"required,max=150"`
	ContactNumber string `json:"contact_number" validate:"required,min=6,max=20"`
	Actor         string `json:"actor" validate:"required"`
	PurposeSelection
}

// GatePassResult is returned after a gate pass request is accepted.
type GatePassResult struct {
	PassID      string            `json:"pass_id"`
	VisitID     string            `json:"visit_id"`
	State       models.VisitState `json:"state"`
	PurposeName string            `json:"purpose_name"`
	RequestedAt time.Time         `json:"requested_at"`
}

// WalkInRequest registers an ad-hoc visitor and opens its first visit.
type WalkInRequest struct {
	TenantID      string          `json:"tenant_id" validate:"required"`
	Category      models.Category `json:"category,omitempty"`
	DisplayName   string          `json:"display_name" validate:"required,max=150"`
	ContactNumber string          `json:"contact_number" validate:"max=20"`
	Actor         string          `json:"actor" validate:"required"`
	PurposeSelection
}

// ReEnterRequest opens another visit for a known ad-hoc visitor.
type ReEnterRequest struct {
	TenantID  string `json:"tenant_id" validate:"required"`
	VisitorID string `json:"visitor_id" validate:"required"`
	Actor     string `json:"actor" validate:"required"`
	PurposeSelection
}
