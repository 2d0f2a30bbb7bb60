package service

import (
	"fmt"

	"github.com/noah-isme/sma-visit-api/internal/models"
)

// Validate reconciles module counts with their purpose breakdowns and returns
// the totals every renderer must read. It never fails: disagreements become
// discrepancies and inside values are recomputed from checkins and checkouts.
func Validate(counts map[models.Module]models.ModuleCounts, breakdowns map[models.Module][]models.PurposeCounts) models.ValidationResult {
	result := models.ValidationResult{
		Discrepancies: []models.Discrepancy{},
		Totals: models.UnifiedTotals{
			Modules:  make(map[models.Module]models.ModuleCounts, len(models.Modules())),
			Purposes: make(map[models.Module][]models.PurposeCounts, len(models.Modules())),
		},
	}

	for _, module := range models.Modules() {
		c := counts[module]
		if expected := c.Checkins - c.Checkouts; c.Inside != expected {
			result.Discrepancies = append(result.Discrepancies, models.Discrepancy{
				Module:   module,
				Kind:     models.DiscrepancyInside,
				Expected: expected,
				Actual:   c.Inside,
				Message:  fmt.Sprintf("%s inside was %d, recomputed as %d", module, c.Inside, expected),
			})
			c.Inside = expected
		}

		purposes := breakdowns[module]
		if len(purposes) > 0 {
			var checkins, checkouts int
			for _, p := range purposes {
				checkins += p.Checkins
				checkouts += p.Checkouts
			}
			if checkins != c.Checkins {
				result.Discrepancies = append(result.Discrepancies, models.Discrepancy{
					Module:   module,
					Kind:     models.DiscrepancyCheckins,
					Expected: c.Checkins,
					Actual:   checkins,
					Message:  fmt.Sprintf("%s purpose checkins sum to %d, module total is %d", module, checkins, c.Checkins),
				})
			}
			if checkouts != c.Checkouts {
				result.Discrepancies = append(result.Discrepancies, models.Discrepancy{
					Module:   module,
					Kind:     models.DiscrepancyCheckouts,
					Expected: c.Checkouts,
					Actual:   checkouts,
					Message:  fmt.Sprintf("%s purpose checkouts sum to %d, module total is %d", module, checkouts, c.Checkouts),
				})
			}
		}

		normalized := make([]models.PurposeCounts, len(purposes))
		for i, p := range purposes {
			p.Inside = clampInside(p.Checkins, p.Checkouts)
			normalized[i] = p
		}

		result.Totals.Modules[module] = c
		result.Totals.Purposes[module] = normalized
		result.Totals.Grand = result.Totals.Grand.Add(c)
	}

	result.IsValid = len(result.Discrepancies) == 0
	return result
}
