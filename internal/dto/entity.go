package dto

import "github.com/noah-isme/sma-visit-api/internal/models"

// RegisterEntityRequest adds a pre-registered trackable subject.
type RegisterEntityRequest struct {
	TenantID      string          `json:"tenant_id" validate:"required"`
	ID            string          `json:"id" validate:"omitempty,max=64"`
	Category      models.Category `json:"category" validate:"required"`
	DisplayName   string          `json:"display_name" validate:"required,max=150"`
	ContactNumber string          `json:"contact_number" validate:"max=20"`
}
