package dto

// CreatePurposeRequest adds a catalog purpose.
type CreatePurposeRequest struct {
	TenantID   string `json:"tenant_id" validate:"required"`
	CategoryID int    `json:"category_id" validate:"required,min=1"`
	Name       string `json:"name" validate:"required,max=100"`
	Actor      string `json:"actor" validate:"required"`
}

// UpdatePurposeRequest renames a catalog purpose.
type UpdatePurposeRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	ID       int64  `json:"id" validate:"required,min=1"`
	Name     string `json:"name" validate:"required,max=100"`
	Actor    string `json:"actor" validate:"required"`
}

// ResolvedPurpose is the purpose snapshot stored on a visit record.
type ResolvedPurpose struct {
	PurposeID  *int64 `json:"purpose_id,omitempty"`
	Name       string `json:"name"`
	CategoryID int    `json:"category_id"`
}
