package models

import "time"

// Entity is a trackable subject registered for a tenant.
type Entity struct {
	ID            string    `db:"id" json:"id"`
	TenantID      string    `db:"tenant_id" json:"tenant_id"`
	Category      Category  `db:"category" json:"category"`
	DisplayName   string    `db:"display_name" json:"display_name"`
	ContactNumber string    `db:"contact_number" json:"contact_number"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Tenant scopes every entity, purpose and visit.
type Tenant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
