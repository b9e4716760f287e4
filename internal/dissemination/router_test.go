package dissemination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/classification"
	"github.com/xkilldash9x/tifda/internal/needtoknow"
)

type mapLookup map[string]schemas.EntityCOP

func (m mapLookup) Get(id string) (schemas.EntityCOP, bool) {
	e, ok := m[id]
	return e, ok
}

func fixtureThreat() schemas.ThreatAssessment {
	return schemas.ThreatAssessment{
		AssessmentID:     "threat_hx1_1000",
		ThreatLevel:      schemas.ThreatHigh,
		ThreatSourceID:   "hx1",
		AffectedEntities: []string{"base_alpha"},
		Reasoning:        "Hostile fighter 8.00 km from base_alpha",
		Confidence:       0.95,
		Timestamp:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		DistancesKm:      map[string]float64{"base_alpha": 8.0},
	}
}

func fixtureCOP() mapLookup {
	return mapLookup{
		"hx1": {
			EntityID:           "hx1",
			EntityType:         "fighter",
			Classification:     schemas.ClassHostile,
			InfoClassification: schemas.InfoSecret,
			Location:           schemas.NewLocation(40.0, -74.0, nil),
		},
	}
}

func recipient(id string, level schemas.AccessLevel) schemas.RecipientInfo {
	loc := schemas.NewLocation(40.05, -74.0, nil) // ~5.6 km from hx1
	return schemas.RecipientInfo{
		RecipientID:         id,
		AccessLevel:         level,
		OperationalRole:     "tactical",
		PriorityEntityTypes: []string{"all"},
		FormatType:          schemas.FormatJSON,
		Location:            &loc,
	}
}

func newRouter(cop mapLookup, recipients ...schemas.RecipientInfo) *Router {
	nk := needtoknow.NewEngine(needtoknow.DefaultTables())
	return NewRouter(nk, cop, recipients, zap.NewNop())
}

func TestRouteEmitsForClearedNearbyRecipient(t *testing.T) {
	r := newRouter(fixtureCOP(), recipient("base_alpha", schemas.AccessSecret))

	msgs, stats, err := r.Route(fixtureThreat(), false)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, stats.Emitted)

	msg := msgs[0]
	assert.Equal(t, "base_alpha", msg.RecipientID)
	assert.Equal(t, "decision_threat_hx1_1000_base_alpha", msg.DecisionID)
	assert.Contains(t, msg.MessageID, "msg_threat_hx1_1000_base_alpha_")
	assert.Equal(t, schemas.FormatJSON, msg.FormatType)
	// Fully cleared recipients get the detailed reasoning.
	assert.Contains(t, msg.Content, "8.00 km")
}

func TestRouteSanitizesBelowRequiredClearance(t *testing.T) {
	// RESTRICTED clearance cannot read the SECRET source entity.
	rec := recipient("outpost", schemas.AccessRestricted)
	r := newRouter(fixtureCOP(), rec)

	msgs, stats, err := r.Route(fixtureThreat(), false)
	require.NoError(t, err)

	// can_access(restricted, SECRET) fails, so the recipient is blocked.
	assert.Empty(t, msgs)
	assert.Equal(t, 1, stats.BlockedClearance)
}

func TestRouteThreatLevelFilter(t *testing.T) {
	rec := recipient("base_alpha", schemas.AccessSecret)
	rec.ReceiveThreatLevels = []schemas.ThreatLevel{schemas.ThreatCritical}
	r := newRouter(fixtureCOP(), rec)

	msgs, stats, err := r.Route(fixtureThreat(), false)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 1, stats.BlockedThreatLevel)
}

func TestRouteInterestAreaNeedToKnow(t *testing.T) {
	naval := recipient("flotilla", schemas.AccessSecret)
	naval.InterestAreas = []string{"naval"}
	air := recipient("squadron", schemas.AccessSecret)
	air.InterestAreas = []string{"aircraft"}
	catchAll := recipient("hq_watch", schemas.AccessSecret)
	catchAll.InterestAreas = []string{"operational"}

	r := newRouter(fixtureCOP(), naval, air, catchAll)
	msgs, stats, err := r.Route(fixtureThreat(), false)
	require.NoError(t, err)

	require.Len(t, msgs, 2)
	ids := []string{msgs[0].RecipientID, msgs[1].RecipientID}
	assert.ElementsMatch(t, []string{"squadron", "hq_watch"}, ids)
	assert.Equal(t, 1, stats.BlockedNeedToKnow)
}

func TestRouteDistanceBlocksFarRecipient(t *testing.T) {
	far := recipient("remote_depot", schemas.AccessSecret)
	farLoc := schemas.NewLocation(47.0, -74.0, nil) // ~780 km
	far.Location = &farLoc
	r := newRouter(fixtureCOP(), far)

	msgs, stats, err := r.Route(fixtureThreat(), false)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 1, stats.BlockedDistance)
}

func TestRouteUnresolvedSourceDefaultsSecretAndAllows(t *testing.T) {
	rec := recipient("base_alpha", schemas.AccessSecret)
	rec.InterestAreas = []string{"naval"} // would block if the source resolved
	r := newRouter(mapLookup{}, rec)

	threat := fixtureThreat()
	threat.ThreatSourceID = "ghost"
	msgs, stats, err := r.Route(threat, false)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "unresolved source entity defaults to allow")
	assert.Equal(t, 1, stats.Emitted)

	// But the default SECRET clearance requirement still applies.
	low := recipient("lowside", schemas.AccessConfidential)
	r = newRouter(mapLookup{}, low)
	msgs, stats, err = r.Route(threat, false)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 1, stats.BlockedClearance)
}

func TestRouteEnemyAccessHardBlock(t *testing.T) {
	enemy := recipient("adversary_feed", schemas.AccessEnemy)
	r := newRouter(fixtureCOP(), enemy)

	msgs, stats, err := r.Route(fixtureThreat(), false)
	require.Error(t, err)
	var sv *classification.SecurityViolationError
	require.ErrorAs(t, err, &sv)
	assert.Empty(t, msgs)
	assert.Equal(t, 1, stats.SecurityViolations)
}

func TestRouteEmergencyOverrideCannotBypassEnemyBlock(t *testing.T) {
	enemy := recipient("adversary_feed", schemas.AccessEnemy)
	blocked := recipient("outpost", schemas.AccessRestricted)
	far := recipient("remote_depot", schemas.AccessSecret)
	farLoc := schemas.NewLocation(47.0, -74.0, nil)
	far.Location = &farLoc

	r := newRouter(fixtureCOP(), enemy, blocked, far)
	msgs, stats, err := r.Route(fixtureThreat(), true)

	// Override lifts ordinary clearance and distance filters...
	require.Len(t, msgs, 2)
	assert.Equal(t, 2, stats.Emitted)
	// ...but the enemy channel stays hard-blocked.
	require.Error(t, err)
	var sv *classification.SecurityViolationError
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, 1, stats.SecurityViolations)
	for _, m := range msgs {
		assert.NotEqual(t, "adversary_feed", m.RecipientID)
		if m.RecipientID == "outpost" {
			// Under-cleared recipients get the sanitized rendering.
			assert.NotContains(t, m.Content, "8.00 km")
			assert.Contains(t, m.Content, "Threat detected in operational area")
		}
	}
}

func TestRouteEnemyAccessUnclassifiedAllowed(t *testing.T) {
	cop := fixtureCOP()
	src := cop["hx1"]
	src.InfoClassification = schemas.InfoUnclassified
	cop["hx1"] = src

	enemy := recipient("adversary_feed", schemas.AccessEnemy)
	r := newRouter(cop, enemy)

	msgs, stats, err := r.Route(fixtureThreat(), false)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, stats.Emitted)
	assert.Zero(t, stats.SecurityViolations)
}
