package models

import "time"

// CustomPurposeID is the sentinel selecting a caller-supplied free-text purpose.
const CustomPurposeID int64 = -1

// OtherPurposeLabel groups custom purposes in statistics.
const OtherPurposeLabel = "Other"

// Purpose is a catalog entry explaining why an entity leaves or enters.
type Purpose struct {
	ID         int64     `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"tenant_id"`
	CategoryID int       `db:"category_id" json:"category_id"`
	Name       string    `db:"name" json:"name"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedBy  string    `db:"created_by" json:"created_by"`
	UpdatedBy  string    `db:"updated_by" json:"updated_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// PurposeFilter scopes catalog listing.
type PurposeFilter struct {
	TenantID        string
	CategoryID      int
	IncludeInactive bool
}
