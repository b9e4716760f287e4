// Package dissemination composes access control and need-to-know into the
// routing stage: one approved threat in, one OutgoingMessage per authorized
// recipient out, with every rejection recorded by cause.
package dissemination

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/classification"
	"github.com/xkilldash9x/tifda/internal/needtoknow"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Required clearance presumed when the threat's source entity cannot be
// resolved from the COP.
const defaultRequiredClearance = schemas.InfoSecret

// interestAreas maps entity types to the interest area a recipient must
// declare to receive reports about them. Types not listed fall into the
// general tactical picture.
var interestAreas = map[string]string{
	"aircraft":       "aircraft",
	"fighter":        "aircraft",
	"bomber":         "aircraft",
	"helicopter":     "aircraft",
	"uav":            "aircraft",
	"ground_vehicle": "ground",
	"tank":           "ground",
	"apc":            "ground",
	"artillery":      "ground",
	"infantry":       "ground",
	"ship":           "naval",
	"destroyer":      "naval",
	"submarine":      "naval",
	"carrier":        "naval",
	"missile":        "air_defense",
}

const defaultInterestArea = "tactical"

// Stats counts routing outcomes for one Route call, by cause.
type Stats struct {
	Emitted            int
	BlockedThreatLevel int
	BlockedClearance   int
	BlockedNeedToKnow  int
	BlockedDistance    int
	SecurityViolations int
}

// Router fans an approved threat assessment out to the recipient roster.
type Router struct {
	nk         *needtoknow.Engine
	cop        needtoknow.EntityLookup
	recipients []schemas.RecipientInfo
	logger     *zap.Logger
	now        func() time.Time
}

// NewRouter builds a Router over the given roster. The COP lookup resolves
// threat source entities and mobile recipient positions.
func NewRouter(nk *needtoknow.Engine, cop needtoknow.EntityLookup, recipients []schemas.RecipientInfo, logger *zap.Logger) *Router {
	return &Router{
		nk:         nk,
		cop:        cop,
		recipients: recipients,
		logger:     logger.Named("dissemination_router"),
		now:        time.Now,
	}
}

// Route evaluates one approved threat against every registered recipient
// and returns the messages to publish. Security violations are collected in
// the returned error (joined); they block that recipient but never the
// rest of the roster.
func (r *Router) Route(threat schemas.ThreatAssessment, emergencyOverride bool) ([]schemas.OutgoingMessage, Stats, error) {
	var (
		out        []schemas.OutgoingMessage
		stats      Stats
		violations []error
	)

	sourceEntity, sourceKnown := r.resolveSource(threat.ThreatSourceID)
	required := defaultRequiredClearance
	if sourceKnown {
		required = sourceEntity.InfoClassification
	}

	for _, recipient := range r.recipients {
		msg, cause, err := r.routeOne(threat, sourceEntity, sourceKnown, required, recipient, emergencyOverride)
		if err != nil {
			stats.SecurityViolations++
			violations = append(violations, err)
			r.logger.Error("Release blocked by security policy",
				zap.String("assessment_id", threat.AssessmentID),
				zap.String("recipient_id", recipient.RecipientID),
				zap.Error(err),
			)
			continue
		}
		if msg == nil {
			switch cause {
			case causeThreatLevel:
				stats.BlockedThreatLevel++
			case causeClearance:
				stats.BlockedClearance++
			case causeNeedToKnow:
				stats.BlockedNeedToKnow++
			case causeDistance:
				stats.BlockedDistance++
			}
			r.logger.Debug("Recipient filtered out",
				zap.String("assessment_id", threat.AssessmentID),
				zap.String("recipient_id", recipient.RecipientID),
				zap.String("cause", string(cause)),
			)
			continue
		}
		stats.Emitted++
		out = append(out, *msg)
	}

	return out, stats, errors.Join(violations...)
}

type blockCause string

const (
	causeNone        blockCause = ""
	causeThreatLevel blockCause = "threat_level"
	causeClearance   blockCause = "clearance"
	causeNeedToKnow  blockCause = "need_to_know"
	causeDistance    blockCause = "distance"
)

func (r *Router) routeOne(
	threat schemas.ThreatAssessment,
	sourceEntity schemas.EntityCOP,
	sourceKnown bool,
	required schemas.InfoClassification,
	recipient schemas.RecipientInfo,
	emergencyOverride bool,
) (*schemas.OutgoingMessage, blockCause, error) {
	// The enemy-access invariant comes first and is never bypassed, not even
	// by emergency override.
	if err := classification.AuthorizeRelease(recipient, required, false); err != nil {
		var sv *classification.SecurityViolationError
		if errors.As(err, &sv) {
			return nil, causeClearance, err
		}
		// Ordinary clearance miss: overridable in an emergency.
		if !emergencyOverride {
			return nil, causeClearance, nil
		}
	}

	if !emergencyOverride {
		if len(recipient.ReceiveThreatLevels) > 0 && !levelIn(recipient.ReceiveThreatLevels, threat.ThreatLevel) {
			return nil, causeThreatLevel, nil
		}
		if sourceKnown && !r.needToKnow(sourceEntity.EntityType, recipient) {
			return nil, causeNeedToKnow, nil
		}
	}

	if sourceKnown {
		decision := r.nk.Decide(threat, sourceEntity, recipient, emergencyOverride, r.cop)
		if !decision.ShouldNotify {
			return nil, causeDistance, nil
		}
	}

	content, err := r.renderContent(threat, required, recipient)
	if err != nil {
		return nil, causeNone, fmt.Errorf("rendering content for %q: %w", recipient.RecipientID, err)
	}

	ts := r.now().UTC()
	msg := &schemas.OutgoingMessage{
		MessageID:   fmt.Sprintf("msg_%s_%s_%d", threat.AssessmentID, recipient.RecipientID, ts.Unix()),
		DecisionID:  fmt.Sprintf("decision_%s_%s", threat.AssessmentID, recipient.RecipientID),
		RecipientID: recipient.RecipientID,
		FormatType:  recipient.FormatType,
		Content:     content,
		Timestamp:   ts,
	}
	return msg, causeNone, nil
}

// needToKnow applies the interest-area policy. Recipients declaring no
// areas, the "all" wildcard, or a general tactical/operational interest see
// everything; otherwise the entity's mapped area must be declared.
func (r *Router) needToKnow(entityType string, recipient schemas.RecipientInfo) bool {
	if len(recipient.InterestAreas) == 0 {
		return true
	}
	area := interestAreas[entityType]
	if area == "" {
		area = defaultInterestArea
	}
	for _, a := range recipient.InterestAreas {
		if a == "all" || a == area || a == "tactical" || a == "operational" {
			return true
		}
	}
	return false
}

// renderContent serializes the assessment for a recipient, sanitizing it
// when the recipient's clearance sits below the required classification.
func (r *Router) renderContent(threat schemas.ThreatAssessment, required schemas.InfoClassification, recipient schemas.RecipientInfo) (string, error) {
	payload := threat
	if recipient.AccessLevel.MaxViewable().Rank() < required.Rank() {
		payload = threat.Sanitized(recipient.AccessLevel.MaxViewable())
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Router) resolveSource(entityID string) (schemas.EntityCOP, bool) {
	if r.cop == nil {
		return schemas.EntityCOP{}, false
	}
	return r.cop.Get(entityID)
}

func levelIn(levels []schemas.ThreatLevel, l schemas.ThreatLevel) bool {
	for _, x := range levels {
		if x == l {
			return true
		}
	}
	return false
}
