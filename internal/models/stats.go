package models

import "time"

// ModuleCounts holds the daily counters for one report module.
type ModuleCounts struct {
	Checkins  int `json:"checkins"`
	Checkouts int `json:"checkouts"`
	Inside    int `json:"inside"`
}

// Add sums the checkin and checkout counters of other into c.
func (c ModuleCounts) Add(other ModuleCounts) ModuleCounts {
	return ModuleCounts{
		Checkins:  c.Checkins + other.Checkins,
		Checkouts: c.Checkouts + other.Checkouts,
		Inside:    c.Inside + other.Inside,
	}
}

// PurposeCounts is one row of the per-purpose breakdown.
type PurposeCounts struct {
	PurposeName string `json:"purpose_name"`
	Checkins    int    `json:"checkins"`
	Checkouts   int    `json:"checkouts"`
	Inside      int    `json:"inside"`
}

// CategoryCountRow is a raw per-category aggregate returned by a storage path.
type CategoryCountRow struct {
	Category  Category `db:"category"`
	Checkins  int      `db:"checkins"`
	Checkouts int      `db:"checkouts"`
}

// PurposeCountRow is a raw per-purpose aggregate returned by a storage path.
type PurposeCountRow struct {
	PurposeName string `db:"purpose_name"`
	Checkins    int    `db:"checkins"`
	Checkouts   int    `db:"checkouts"`
}

// StatsSnapshot is everything the aggregator read inside one consistent snapshot.
type StatsSnapshot struct {
	TenantID   string                     `json:"tenant_id"`
	Date       time.Time                  `json:"date"`
	TakenAt    time.Time                  `json:"taken_at"`
	Counts     map[Module]ModuleCounts    `json:"counts"`
	Breakdowns map[Module][]PurposeCounts `json:"breakdowns"`
}

// DiscrepancyKind classifies what the validator corrected or flagged.
type DiscrepancyKind string

const (
	DiscrepancyCheckins  DiscrepancyKind = "PURPOSE_CHECKINS_MISMATCH"
	DiscrepancyCheckouts DiscrepancyKind = "PURPOSE_CHECKOUTS_MISMATCH"
	DiscrepancyInside    DiscrepancyKind = "INSIDE_RECOMPUTED"
)

// Discrepancy is a non-fatal consistency warning.
type Discrepancy struct {
	Module   Module          `json:"module"`
	Kind     DiscrepancyKind `json:"kind"`
	Expected int             `json:"expected"`
	Actual   int             `json:"actual"`
	Message  string          `json:"message"`
}

// UnifiedTotals is the only structure renderers may read.
type UnifiedTotals struct {
	Grand    ModuleCounts               `json:"grand"`
	Modules  map[Module]ModuleCounts    `json:"modules"`
	Purposes map[Module][]PurposeCounts `json:"purposes"`
}

// ValidationResult is the outcome of reconciling a snapshot.
type ValidationResult struct {
	IsValid       bool          `json:"is_valid"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Totals        UnifiedTotals `json:"totals"`
}

// DailyReport is handed to report renderers.
type DailyReport struct {
	TenantID    string        `json:"tenant_id"`
	Date        time.Time     `json:"date"`
	GeneratedAt time.Time     `json:"generated_at"`
	SnapshotAt  time.Time     `json:"snapshot_at"`
	Totals      UnifiedTotals `json:"totals"`
	Warnings    []Discrepancy `json:"warnings,omitempty"`
}
