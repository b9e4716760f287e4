package needtoknow

import (
	"fmt"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/geo"
)

// Roles that are always notified regardless of distance or filters.
func isCommandRole(role string) bool {
	return role == "command_control" || role == "strategic_command"
}

// EntityLookup resolves COP entities by id. Satisfied by the COP store.
type EntityLookup interface {
	Get(entityID string) (schemas.EntityCOP, bool)
}

// ShouldNotify applies the distance envelope: inside MustNotifyKm the
// decision is must_notify, beyond NeverNotifyKm it is never_notify, and the
// band in between is ambiguous, defaulting to notify pending refinement.
func ShouldNotify(distanceKm float64, th schemas.DistanceThreshold) schemas.NotificationDecision {
	switch {
	case distanceKm < th.MustNotifyKm:
		return schemas.NotificationDecision{
			ShouldNotify: true,
			DecisionType: schemas.DecisionMustNotify,
			DistanceKm:   distanceKm,
			Reasoning:    fmt.Sprintf("Distance %.2f km inside must-notify radius %.2f km. %s", distanceKm, th.MustNotifyKm, th.Reasoning),
		}
	case distanceKm > th.NeverNotifyKm:
		return schemas.NotificationDecision{
			ShouldNotify: false,
			DecisionType: schemas.DecisionNeverNotify,
			DistanceKm:   distanceKm,
			Reasoning:    fmt.Sprintf("Distance %.2f km beyond never-notify radius %.2f km. %s", distanceKm, th.NeverNotifyKm, th.Reasoning),
		}
	default:
		return schemas.NotificationDecision{
			ShouldNotify: true,
			DecisionType: schemas.DecisionAmbiguous,
			DistanceKm:   distanceKm,
			Reasoning:    fmt.Sprintf("Distance %.2f km between notification bounds; defaulting to notify. %s", distanceKm, th.Reasoning),
		}
	}
}

// Decide produces the notification decision for one recipient against one
// assessed threat. Checks run in a fixed order: emergency override, command
// roles, threat-level filter, priority entity types, then the distance
// envelope against the recipient's resolved position.
func (e *Engine) Decide(
	threat schemas.ThreatAssessment,
	entity schemas.EntityCOP,
	recipient schemas.RecipientInfo,
	emergencyOverride bool,
	cop EntityLookup,
) schemas.NotificationDecision {
	if emergencyOverride {
		return schemas.NotificationDecision{
			ShouldNotify: true,
			DecisionType: schemas.DecisionMustNotify,
			Reasoning:    "Emergency override active; all recipients notified",
		}
	}

	if isCommandRole(recipient.OperationalRole) {
		return schemas.NotificationDecision{
			ShouldNotify: true,
			DecisionType: schemas.DecisionMustNotify,
			Reasoning:    fmt.Sprintf("Role %s receives all threat notifications", recipient.OperationalRole),
		}
	}

	if len(recipient.ReceiveThreatLevels) > 0 && !containsLevel(recipient.ReceiveThreatLevels, threat.ThreatLevel) {
		return schemas.NotificationDecision{
			ShouldNotify: false,
			DecisionType: schemas.DecisionNeverNotify,
			Reasoning:    fmt.Sprintf("Threat level %s outside recipient's accepted levels", threat.ThreatLevel),
		}
	}

	if !matchesPriorityTypes(entity.EntityType, recipient.PriorityEntityTypes) {
		return schemas.NotificationDecision{
			ShouldNotify: false,
			DecisionType: schemas.DecisionNeverNotify,
			Reasoning:    fmt.Sprintf("Entity type %s outside recipient's priority types", entity.EntityType),
		}
	}

	loc, ok := e.resolveLocation(recipient, cop)
	th := e.Threshold(entity.EntityType, entity.Classification, recipient.OperationalRole)
	if !ok {
		return schemas.NotificationDecision{
			ShouldNotify: true,
			DecisionType: schemas.DecisionAmbiguous,
			Reasoning:    fmt.Sprintf("Recipient %s position unresolved; defaulting to notify. %s", recipient.RecipientID, th.Reasoning),
		}
	}

	return ShouldNotify(geo.DistanceKm(entity.Location, loc), th)
}

// resolveLocation returns the recipient's current position: the static
// location when present, otherwise the position of its linked mobile COP
// entity.
func (e *Engine) resolveLocation(r schemas.RecipientInfo, cop EntityLookup) (schemas.Location, bool) {
	if r.Location != nil {
		return *r.Location, true
	}
	if r.LinkedEntityID != "" && cop != nil {
		if ent, ok := cop.Get(r.LinkedEntityID); ok {
			return ent.Location, true
		}
	}
	return schemas.Location{}, false
}

func containsLevel(levels []schemas.ThreatLevel, l schemas.ThreatLevel) bool {
	for _, x := range levels {
		if x == l {
			return true
		}
	}
	return false
}
