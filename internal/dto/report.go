package dto

import "time"

// TenantFailure records a tenant whose daily report could not be produced.
type TenantFailure struct {
	TenantID string `json:"tenant_id"`
	Code     string `json:"code"`
	Error    string `json:"error"`
}

// RunSummary is the outcome of one scheduled reconciliation run.
type RunSummary struct {
	Date      time.Time       `json:"date"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Succeeded []string        `json:"succeeded"`
	Failed    []TenantFailure `json:"failed,omitempty"`
	Warnings  int             `json:"warnings"`
}
