package service

import (
	"github.com/noah-isme/sma-visit-api/internal/models"
	appErrors "github.com/noah-isme/sma-visit-api/pkg/errors"
)

// deriveState computes the lifecycle state from the entity's latest record.
func deriveState(variant models.VisitVariant, latest *models.VisitRecord) models.VisitState {
	if variant != models.VariantGatePass {
		if latest.IsOpen() {
			return models.StateDeparted
		}
		return models.StateAvailable
	}
	if latest == nil {
		return models.StateAvailable
	}
	switch latest.Approval() {
	case models.ApprovalPending:
		return models.StatePendingApproval
	case models.ApprovalRejected:
		return models.StateRejected
	case models.ApprovalApproved:
		switch {
		case latest.DepartureTime == nil:
			return models.StateReadyForEntry
		case latest.ReturnTime == nil:
			return models.StateEntered
		default:
			return models.StateExited
		}
	}
	return models.StateAvailable
}

func nextAction(variant models.VisitVariant, state models.VisitState) models.NextAction {
	switch state {
	case models.StateAvailable:
		if variant == models.VariantGatePass {
			return models.ActionNone
		}
		return models.ActionDepart
	case models.StateDeparted, models.StateEntered:
		return models.ActionReturn
	case models.StatePendingApproval:
		return models.ActionApprove
	case models.StateReadyForEntry, models.StateExited:
		return models.ActionDepart
	default:
		return models.ActionNone
	}
}

func guardDepart(variant models.VisitVariant, state models.VisitState) error {
	if variant == models.VariantGatePass && state == models.StateAvailable {
		return appErrors.Clone(appErrors.ErrInvalidState, "gate pass has no approved request")
	}
	switch state {
	case models.StateAvailable, models.StateReadyForEntry, models.StateExited:
		return nil
	case models.StateDeparted, models.StateEntered:
		return appErrors.Clone(appErrors.ErrAlreadyDeparted, "entity already has an open visit")
	case models.StatePendingApproval:
		return appErrors.Clone(appErrors.ErrInvalidState, "gate pass is awaiting approval")
	case models.StateRejected:
		return appErrors.Clone(appErrors.ErrInvalidState, "gate pass was rejected")
	default:
		return appErrors.Clone(appErrors.ErrInvalidState, "departure not allowed")
	}
}

func guardReturn(state models.VisitState) error {
	if state == models.StateDeparted || state == models.StateEntered {
		return nil
	}
	return appErrors.Clone(appErrors.ErrNoOpenVisit, "entity has no open visit")
}

func guardDecision(state models.VisitState) error {
	if state == models.StatePendingApproval {
		return nil
	}
	return appErrors.Clone(appErrors.ErrInvalidState, "gate pass is not pending approval")
}
