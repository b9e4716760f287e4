package threat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/geo"
)

// noticeRadiusKm bounds which friendly entities count as affected by a
// threat.
const noticeRadiusKm = 50.0

// unknownDistanceSentinel is reported when no friendly position exists to
// measure against.
const unknownDistanceSentinel = 999999.0

// ruleConfidence is attached to assessments resolved by the deterministic
// rules.
const ruleConfidence = 0.95

// Verdict is the reasoner's answer for an ambiguous case.
type Verdict struct {
	ThreatLevel      schemas.ThreatLevel
	Reasoning        string
	Confidence       float64
	AffectedEntities []string
}

// Reasoner resolves ambiguous threat cases. Implementations may be slow and
// network-bound; the evaluator never calls them while holding COP locks.
type Reasoner interface {
	Reason(ctx context.Context, entity schemas.EntityCOP, nearbyFriendlies []schemas.EntityCOP) (Verdict, error)
}

// Evaluator turns COP entities into threat assessments, using deterministic
// rules first and the injected reasoner only when the rules abstain.
type Evaluator struct {
	rules    *Rules
	reasoner Reasoner
	logger   *zap.Logger
	now      func() time.Time
}

// NewEvaluator builds an Evaluator. reasoner may be nil, in which case
// ambiguous cases resolve to a conservative medium verdict.
func NewEvaluator(rules *Rules, reasoner Reasoner, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		rules:    rules,
		reasoner: reasoner,
		logger:   logger.Named("threat_evaluator"),
		now:      time.Now,
	}
}

// Evaluate assesses one entity against the current picture. It returns nil
// when the entity does not warrant assessment. The cop slice is a snapshot;
// the evaluator never mutates it.
func (ev *Evaluator) Evaluate(ctx context.Context, entity schemas.EntityCOP, cop []schemas.EntityCOP) (*schemas.ThreatAssessment, error) {
	if !ShouldAssess(entity) {
		return nil, nil
	}

	nearby, distances := ev.nearbyFriendlies(entity, cop)
	nearest := unknownDistanceSentinel
	distanceKnown := false
	for _, d := range distances {
		if d < nearest {
			nearest = d
			distanceKnown = true
		}
	}

	assessment := schemas.ThreatAssessment{
		AssessmentID:   fmt.Sprintf("threat_%s_%d", entity.EntityID, ev.now().Unix()),
		ThreatSourceID: entity.EntityID,
		Timestamp:      ev.now().UTC(),
		DistancesKm:    distances,
		ThreatScore:    ev.rules.Score(entity, nearest),
	}
	for _, f := range nearby {
		assessment.AffectedEntities = append(assessment.AffectedEntities, f.EntityID)
	}

	if level, ok := ev.rules.ObviousLevel(entity, nearest, distanceKnown); ok {
		assessment.ThreatLevel = level
		assessment.Confidence = ruleConfidence
		assessment.Reasoning = ev.ruleReasoning(entity, level, nearest, distanceKnown)
		return &assessment, nil
	}

	verdict := ev.resolveAmbiguous(ctx, entity, nearby)
	assessment.ThreatLevel = verdict.ThreatLevel
	assessment.Confidence = verdict.Confidence
	assessment.Reasoning = verdict.Reasoning
	if len(verdict.AffectedEntities) > 0 {
		assessment.AffectedEntities = verdict.AffectedEntities
	}
	return &assessment, nil
}

// resolveAmbiguous consults the reasoner, falling back to a conservative
// medium verdict when it is absent or fails. Reasoner errors are logged,
// never propagated: an unreachable reasoner must not stall the pipeline.
func (ev *Evaluator) resolveAmbiguous(ctx context.Context, entity schemas.EntityCOP, nearby []schemas.EntityCOP) Verdict {
	fallback := Verdict{
		ThreatLevel: schemas.ThreatMedium,
		Reasoning:   fmt.Sprintf("Ambiguous %s contact %s; reasoner unavailable, defaulting to medium", entity.Classification, entity.EntityID),
		Confidence:  0.5,
	}
	if ev.reasoner == nil {
		return fallback
	}

	verdict, err := ev.reasoner.Reason(ctx, entity, nearby)
	if err != nil {
		ev.logger.Warn("Reasoner call failed; using fallback verdict",
			zap.String("entity_id", entity.EntityID),
			zap.Error(err),
		)
		return fallback
	}
	if !verdict.ThreatLevel.Valid() {
		ev.logger.Warn("Reasoner returned unknown threat level; coercing to medium",
			zap.String("entity_id", entity.EntityID),
			zap.String("threat_level", string(verdict.ThreatLevel)),
		)
		verdict.ThreatLevel = schemas.ThreatMedium
	}
	return verdict
}

// nearbyFriendlies returns the friendly entities within the notice radius
// and their distances from the subject, keyed by entity id.
func (ev *Evaluator) nearbyFriendlies(entity schemas.EntityCOP, cop []schemas.EntityCOP) ([]schemas.EntityCOP, map[string]float64) {
	var nearby []schemas.EntityCOP
	distances := make(map[string]float64)
	for _, other := range cop {
		if other.Classification != schemas.ClassFriendly || other.EntityID == entity.EntityID {
			continue
		}
		d := geo.DistanceKm(entity.Location, other.Location)
		if d <= noticeRadiusKm {
			nearby = append(nearby, other)
			distances[other.EntityID] = d
		}
	}
	return nearby, distances
}

func (ev *Evaluator) ruleReasoning(e schemas.EntityCOP, level schemas.ThreatLevel, nearest float64, distanceKnown bool) string {
	if !distanceKnown {
		return fmt.Sprintf("Rule-based assessment: %s %s with no friendly forces in range resolved as %s", e.Classification, e.EntityType, level)
	}
	return fmt.Sprintf("Rule-based assessment: %s %s at %.2f km from nearest friendly resolved as %s", e.Classification, e.EntityType, nearest, level)
}
