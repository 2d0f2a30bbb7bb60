package models

import "time"

// VisitVariant tags which flavour of the lifecycle state machine applies.
type VisitVariant string

const (
	VariantStandard VisitVariant = "STANDARD"
	VariantGatePass VisitVariant = "GATE_PASS"
)

// ApprovalState tracks the gate-pass approval phase.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "PENDING"
	ApprovalApproved ApprovalState = "APPROVED"
	ApprovalRejected ApprovalState = "REJECTED"
)

// VisitState is the lifecycle state derived from an entity's latest record.
type VisitState string

const (
	StateAvailable       VisitState = "AVAILABLE"
	StateDeparted        VisitState = "DEPARTED"
	StatePendingApproval VisitState = "PENDING_APPROVAL"
	StateReadyForEntry   VisitState = "APPROVED_READY_FOR_ENTRY"
	StateEntered         VisitState = "ENTERED"
	StateExited          VisitState = "EXITED"
	StateRejected        VisitState = "REJECTED"
)

// NextAction is the legal transition from the current state.
type NextAction string

const (
	ActionDepart  NextAction = "DEPART"
	ActionReturn  NextAction = "RETURN"
	ActionApprove NextAction = "APPROVE"
	ActionNone    NextAction = "NONE"
)

// Source names the storage path a visit record lives in.
type Source string

const (
	// SourceWalkIn holds ad-hoc rows carrying identity and visit inline.
	SourceWalkIn Source = "walkin"
	// SourceHistory holds pre-registered entities with separate visit rows.
	SourceHistory Source = "history"
)

// VisitRecord is one departure/return (or approval/entry/exit) cycle.
type VisitRecord struct {
	ID                string         `db:"id" json:"id"`
	EntityID          string         `db:"entity_id" json:"entity_id"`
	TenantID          string         `db:"tenant_id" json:"tenant_id"`
	Category          Category       `db:"category" json:"category"`
	DisplayName       string         `db:"display_name" json:"display_name"`
	ContactNumber     string         `db:"contact_number" json:"contact_number"`
	DepartureTime     *time.Time     `db:"departure_time" json:"departure_time,omitempty"`
	ReturnTime        *time.Time     `db:"return_time" json:"return_time,omitempty"`
	PurposeID         *int64         `db:"purpose_id" json:"purpose_id,omitempty"`
	PurposeName       string         `db:"purpose_name" json:"purpose_name"`
	PurposeCategoryID int            `db:"purpose_category_id" json:"purpose_category_id"`
	ApprovalState     *ApprovalState `db:"approval_state" json:"approval_state,omitempty"`
	ApprovedBy        *string        `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt        *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	CreatedBy         string         `db:"created_by" json:"created_by"`
	UpdatedBy         string         `db:"updated_by" json:"updated_by"`
	IsActive          bool           `db:"is_active" json:"is_active"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the record has departed without returning.
func (v *VisitRecord) IsOpen() bool {
	return v != nil && v.DepartureTime != nil && v.ReturnTime == nil
}

// Approval returns the approval state, treating absent values as not applicable.
func (v *VisitRecord) Approval() ApprovalState {
	if v == nil || v.ApprovalState == nil {
		return ""
	}
	return *v.ApprovalState
}

// WalkInVisit is a Path A row: ad-hoc identity and a single visit inline.
type WalkInVisit struct {
	ID                string     `db:"id" json:"id"`
	TenantID          string     `db:"tenant_id" json:"tenant_id"`
	VisitorID         string     `db:"visitor_id" json:"visitor_id"`
	Category          Category   `db:"category" json:"category"`
	DisplayName       string     `db:"display_name" json:"display_name"`
	ContactNumber     string     `db:"contact_number" json:"contact_number"`
	DepartureTime     *time.Time `db:"departure_time" json:"departure_time,omitempty"`
	ReturnTime        *time.Time `db:"return_time" json:"return_time,omitempty"`
	PurposeID         *int64     `db:"purpose_id" json:"purpose_id,omitempty"`
	PurposeName       string     `db:"purpose_name" json:"purpose_name"`
	PurposeCategoryID int        `db:"purpose_category_id" json:"purpose_category_id"`
	CreatedBy         string     `db:"created_by" json:"created_by"`
	UpdatedBy         string     `db:"updated_by" json:"updated_by"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// VisitRecord projects the walk-in row onto the shared record shape.
func (w WalkInVisit) VisitRecord() VisitRecord {
	return VisitRecord{
		ID:                w.ID,
		EntityID:          w.VisitorID,
		TenantID:          w.TenantID,
		Category:          w.Category,
		DisplayName:       w.DisplayName,
		ContactNumber:     w.ContactNumber,
		DepartureTime:     w.DepartureTime,
		ReturnTime:        w.ReturnTime,
		PurposeID:         w.PurposeID,
		PurposeName:       w.PurposeName,
		PurposeCategoryID: w.PurposeCategoryID,
		CreatedBy:         w.CreatedBy,
		UpdatedBy:         w.UpdatedBy,
		IsActive:          w.IsActive,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
	}
}

// VisitStatus is the read model returned by status queries.
type VisitStatus struct {
	EntityID      string     `json:"entity_id"`
	Category      Category   `json:"category"`
	State         VisitState `json:"state"`
	NextAction    NextAction `json:"next_action"`
	VisitID       string     `json:"visit_id,omitempty"`
	PurposeName   string     `json:"purpose_name,omitempty"`
	DepartureTime *time.Time `json:"departure_time,omitempty"`
	ReturnTime    *time.Time `json:"return_time,omitempty"`
}
