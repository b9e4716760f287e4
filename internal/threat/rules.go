// Package threat implements deterministic threat-level resolution, numeric
// prioritization scoring, and the evaluator that escalates ambiguous cases
// to the external reasoner.
package threat

import (
	"math"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/needtoknow"
)

// baseScores anchor the numeric score by IFF affiliation.
var baseScores = map[schemas.Classification]float64{
	schemas.ClassHostile:  80,
	schemas.ClassUnknown:  50,
	schemas.ClassNeutral:  20,
	schemas.ClassFriendly: 0,
}

const defaultBaseScore = 30

// typeMultipliers weight the score by platform. Types not listed score 1.0.
var typeMultipliers = map[string]float64{
	"missile":        3.0,
	"fighter":        2.5,
	"bomber":         2.5,
	"aircraft":       2.0,
	"helicopter":     1.8,
	"submarine":      1.6,
	"uav":            1.5,
	"tank":           1.5,
	"artillery":      1.5,
	"destroyer":      1.4,
	"ship":           1.3,
	"ground_vehicle": 1.0,
	"apc":            1.0,
	"infantry":       0.8,
	"person":         0.5,
	"base":           0.3,
	"building":       0.2,
	"infrastructure": 0.2,
}

// Rules resolves obvious threat levels and numeric scores against the
// injected need-to-know threshold engine.
type Rules struct {
	thresholds *needtoknow.Engine
}

// NewRules builds the rule set over the given threshold engine.
func NewRules(thresholds *needtoknow.Engine) *Rules {
	return &Rules{thresholds: thresholds}
}

// ShouldAssess reports whether an entity warrants threat evaluation at all.
// Hostile and unknown contacts always do; friendlies only when moving fast
// enough that the speed itself needs explaining; neutrals not at this stage.
func ShouldAssess(e schemas.EntityCOP) bool {
	switch e.Classification {
	case schemas.ClassHostile, schemas.ClassUnknown:
		return true
	case schemas.ClassFriendly:
		return e.SpeedKmh != nil && *e.SpeedKmh > 800
	default:
		return false
	}
}

// ObviousLevel resolves the categorical threat level for the unambiguous
// cases. distanceKm is the distance to the nearest friendly entity;
// distanceKnown is false when no friendly position is available. The second
// return is false when the case is ambiguous and must go to the reasoner.
func (r *Rules) ObviousLevel(e schemas.EntityCOP, distanceKm float64, distanceKnown bool) (schemas.ThreatLevel, bool) {
	if e.Classification == schemas.ClassFriendly {
		return schemas.ThreatNone, true
	}

	if e.Classification == schemas.ClassNeutral && distanceKnown {
		th := r.thresholds.Threshold(e.EntityType, schemas.ClassNeutral, "")
		if distanceKm > th.NeverNotifyKm {
			return schemas.ThreatNone, true
		}
	}

	if e.Classification == schemas.ClassHostile && e.EntityType == "missile" {
		return schemas.ThreatCritical, true
	}

	if e.Classification == schemas.ClassHostile && isCombatAir(e.EntityType) && distanceKnown {
		th := r.thresholds.Threshold(e.EntityType, schemas.ClassHostile, "")
		if distanceKm < 10 {
			return schemas.ThreatCritical, true
		}
		if distanceKm < 0.5*th.MustNotifyKm {
			return schemas.ThreatHigh, true
		}
	}

	if e.Classification == schemas.ClassUnknown && e.SpeedKmh != nil && *e.SpeedKmh > 700 && distanceKnown {
		th := r.thresholds.Threshold(e.EntityType, schemas.ClassUnknown, "")
		if distanceKm < th.MustNotifyKm {
			return schemas.ThreatHigh, true
		}
	}

	if e.Classification == schemas.ClassHostile && distanceKnown {
		th := r.thresholds.Threshold(e.EntityType, schemas.ClassHostile, "")
		if distanceKm < 0.3*th.MustNotifyKm {
			return schemas.ThreatHigh, true
		}
	}

	if distanceKnown {
		th := r.thresholds.Threshold(e.EntityType, e.Classification, "")
		if distanceKm > th.NeverNotifyKm {
			if e.Classification == schemas.ClassHostile {
				return schemas.ThreatLow, true
			}
			return schemas.ThreatNone, true
		}
	}

	return "", false
}

func isCombatAir(entityType string) bool {
	return entityType == "aircraft" || entityType == "fighter" || entityType == "bomber"
}

// Score computes the numeric prioritization score in [0,100], rounded to
// two decimals. It orders assessments for review and never determines the
// categorical threat level. distanceKm is the distance to the nearest
// friendly; callers with no friendly in range pass the unknown-distance
// sentinel, which lands in the terminal falloff band.
func (r *Rules) Score(e schemas.EntityCOP, distanceKm float64) float64 {
	const confidenceWeight = 0.8

	base, ok := baseScores[e.Classification]
	if !ok {
		base = defaultBaseScore
	}

	typeMult := 1.0
	if m, ok := typeMultipliers[e.EntityType]; ok {
		typeMult = m
	}

	th := r.thresholds.Threshold(e.EntityType, e.Classification, "")
	var distMult float64
	switch {
	case distanceKm < 0.5*th.MustNotifyKm:
		distMult = 2.0
	case distanceKm < th.MustNotifyKm:
		distMult = 1.5
	case distanceKm < th.NeverNotifyKm:
		distMult = 1.0
	case distanceKm < 1.5*th.NeverNotifyKm:
		distMult = 0.7
	default:
		distMult = 0.3
	}

	confFactor := confidenceWeight*e.Confidence + (1 - confidenceWeight)
	score := base * typeMult * distMult * speedMultiplier(e) * confFactor

	return schemas.RoundTo(math.Min(math.Max(score, 0), 100), 2)
}

// speedMultiplier weights the score by observed speed against the entity's
// operating-domain bands. Unknown speed is neutral.
func speedMultiplier(e schemas.EntityCOP) float64 {
	if e.SpeedKmh == nil {
		return 1.0
	}
	speed := *e.SpeedKmh

	switch schemas.CategoryOf(e.EntityType) {
	case schemas.CategoryAir:
		switch {
		case speed > 800:
			return 2.0
		case speed > 500:
			return 1.8
		case speed > 300:
			return 1.3
		case speed > 100:
			return 1.0
		default:
			return 0.7
		}
	case schemas.CategoryGround:
		switch {
		case speed > 60:
			return 1.5
		case speed > 30:
			return 1.2
		case speed > 10:
			return 1.0
		default:
			return 0.8
		}
	case schemas.CategorySea:
		switch {
		case speed > 50:
			return 1.5
		case speed > 20:
			return 1.2
		default:
			return 1.0
		}
	default:
		return 1.0
	}
}
