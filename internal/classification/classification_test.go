package classification

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/tifda/api/schemas"
)

func testEntity(info schemas.InfoClassification) schemas.EntityCOP {
	return schemas.EntityCOP{
		EntityID:           "radar_001_trk42",
		EntityType:         "fighter",
		Location:           schemas.NewLocation(40.123456, -74.654321, schemas.Float64Ptr(11000)),
		Timestamp:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Classification:     schemas.ClassHostile,
		InfoClassification: info,
		Confidence:         0.87,
		SourceSensors:      []string{"radar_001", "drone_007", "radio_3"},
		Metadata: map[string]any{
			"detection_time":     "2026-03-01T12:00:00Z",
			"last_update":        "2026-03-01T12:00:30Z",
			"raw_sensor_data":    "0xdeadbeef",
			"multimodal_results": "imagery match 0.91",
			"track_quality":      7,
		},
		SpeedKmh: schemas.Float64Ptr(937),
		Heading:  schemas.Float64Ptr(274),
		Comments: "Fast mover inbound from the northeast",
	}
}

func TestCanAccessReadDown(t *testing.T) {
	assert.True(t, CanAccess(schemas.AccessTopSecret, schemas.InfoTopSecret))
	assert.True(t, CanAccess(schemas.AccessTopSecret, schemas.InfoUnclassified))
	assert.True(t, CanAccess(schemas.AccessSecret, schemas.InfoSecret))
	assert.False(t, CanAccess(schemas.AccessSecret, schemas.InfoTopSecret))
	assert.False(t, CanAccess(schemas.AccessRestricted, schemas.InfoConfidential))
	assert.False(t, CanAccess(schemas.AccessLevel("made_up"), schemas.InfoUnclassified))
	assert.False(t, CanAccess(schemas.AccessSecret, schemas.InfoClassification("made_up")))
}

func TestCanAccessMonotonicity(t *testing.T) {
	levels := []schemas.AccessLevel{
		schemas.AccessUnclassified,
		schemas.AccessRestricted,
		schemas.AccessConfidential,
		schemas.AccessSecret,
		schemas.AccessTopSecret,
	}
	classes := []schemas.InfoClassification{
		schemas.InfoUnclassified,
		schemas.InfoRestricted,
		schemas.InfoConfidential,
		schemas.InfoSecret,
		schemas.InfoTopSecret,
	}
	for i, lower := range levels {
		for _, c := range classes {
			if !CanAccess(lower, c) {
				continue
			}
			for _, higher := range levels[i:] {
				assert.True(t, CanAccess(higher, c),
					"%s can read %s but higher level %s cannot", lower, c, higher)
			}
		}
	}
}

func TestEnemyAccessOnlyUnclassified(t *testing.T) {
	assert.True(t, CanAccess(schemas.AccessEnemy, schemas.InfoUnclassified))
	for _, c := range []schemas.InfoClassification{
		schemas.InfoRestricted,
		schemas.InfoConfidential,
		schemas.InfoSecret,
		schemas.InfoTopSecret,
	} {
		assert.False(t, CanAccess(schemas.AccessEnemy, c), "enemy_access must not read %s", c)
	}
}

func TestAuthorizeReleaseEnemy(t *testing.T) {
	enemy := schemas.RecipientInfo{
		RecipientID: "adversary_channel_1",
		AccessLevel: schemas.AccessEnemy,
	}

	require.NoError(t, AuthorizeRelease(enemy, schemas.InfoUnclassified, false))

	err := AuthorizeRelease(enemy, schemas.InfoSecret, false)
	require.Error(t, err)
	var sv *SecurityViolationError
	require.True(t, errors.As(err, &sv))
	assert.Equal(t, "adversary_channel_1", sv.RecipientID)
	assert.Equal(t, schemas.InfoSecret, sv.Classification)

	// Deception flag alone is not enough; the channel must be authorized.
	err = AuthorizeRelease(enemy, schemas.InfoSecret, true)
	require.True(t, errors.As(err, &sv))

	enemy.DeceptionAuthorized = true
	assert.NoError(t, AuthorizeRelease(enemy, schemas.InfoSecret, true))
	// And the flag must be set on the release itself.
	require.Error(t, AuthorizeRelease(enemy, schemas.InfoSecret, false))
}

func TestAuthorizeReleaseOrdinary(t *testing.T) {
	r := schemas.RecipientInfo{RecipientID: "unit_7", AccessLevel: schemas.AccessConfidential}
	assert.NoError(t, AuthorizeRelease(r, schemas.InfoConfidential, false))
	err := AuthorizeRelease(r, schemas.InfoTopSecret, false)
	require.Error(t, err)
	var sv *SecurityViolationError
	assert.False(t, errors.As(err, &sv), "ordinary clearance misses are not security violations")
}

func TestDowngradeNoOpAtOrAboveOriginal(t *testing.T) {
	e := testEntity(schemas.InfoConfidential)
	same := Downgrade(e, schemas.InfoConfidential)
	up := Downgrade(e, schemas.InfoSecret)
	assert.Empty(t, cmp.Diff(e, same))
	assert.Empty(t, cmp.Diff(e, up))
}

func TestDowngradeFromTopSecretToSecret(t *testing.T) {
	e := testEntity(schemas.InfoTopSecret)
	d := Downgrade(e, schemas.InfoSecret)

	assert.Equal(t, schemas.InfoSecret, d.InfoClassification)
	assert.Equal(t, []string{"3 sources"}, d.SourceSensors)
	assert.Equal(t, 950.0, *d.SpeedKmh) // 937 to nearest 50
	assert.Equal(t, 270.0, *d.Heading)  // 274 to nearest 10
	assert.NotContains(t, d.Metadata, "raw_sensor_data")
	assert.NotContains(t, d.Metadata, "multimodal_results")
	assert.Contains(t, d.Metadata, "track_quality")
	// Location untouched at SECRET.
	assert.Equal(t, e.Location.Lat, d.Location.Lat)
	assert.NotNil(t, d.Location.Alt)

	// Original untouched.
	assert.Equal(t, 937.0, *e.SpeedKmh)
	assert.Len(t, e.SourceSensors, 3)
	assert.Contains(t, e.Metadata, "raw_sensor_data")
}

func TestDowngradeToConfidentialIsCumulative(t *testing.T) {
	e := testEntity(schemas.InfoTopSecret)
	d := Downgrade(e, schemas.InfoConfidential)

	// TOP_SECRET stage applied.
	assert.Equal(t, []string{"3 sources"}, d.SourceSensors)
	assert.NotContains(t, d.Metadata, "raw_sensor_data")
	// CONFIDENTIAL stage applied on top.
	assert.Equal(t, 40.12, d.Location.Lat)
	assert.Equal(t, -74.65, d.Location.Lon)
	assert.Nil(t, d.Location.Alt)
	assert.Equal(t, 0.9, d.Confidence)
	assert.Equal(t, map[string]any{
		"detection_time": "2026-03-01T12:00:00Z",
		"last_update":    "2026-03-01T12:00:30Z",
	}, d.Metadata)
}

func TestDowngradeToRestrictedClearsTrackDetail(t *testing.T) {
	e := testEntity(schemas.InfoSecret)
	d := Downgrade(e, schemas.InfoRestricted)

	assert.Nil(t, d.Metadata)
	assert.Nil(t, d.SourceSensors)
	assert.Nil(t, d.SpeedKmh)
	assert.Nil(t, d.Heading)
	assert.Empty(t, d.Comments)
	assert.Equal(t, 40.12, d.Location.Lat)
}

func TestDowngradeToUnclassified(t *testing.T) {
	e := testEntity(schemas.InfoTopSecret)
	d := Downgrade(e, schemas.InfoUnclassified)

	assert.Equal(t, schemas.InfoUnclassified, d.InfoClassification)
	assert.Equal(t, 40.1, d.Location.Lat)
	assert.Equal(t, -74.7, d.Location.Lon)
	assert.Nil(t, d.Location.Alt)
	assert.Equal(t, 0.5, d.Confidence)
	assert.Equal(t, "Location approximate", d.Comments)
	assert.Nil(t, d.SourceSensors)
	assert.Nil(t, d.Metadata)
}

func TestDowngradeTerminalIdempotence(t *testing.T) {
	e := testEntity(schemas.InfoTopSecret)
	once := Downgrade(e, schemas.InfoUnclassified)
	twice := Downgrade(once, schemas.InfoUnclassified)
	assert.Empty(t, cmp.Diff(once, twice))
}

func TestFilterByClearance(t *testing.T) {
	entities := []schemas.EntityCOP{
		testEntity(schemas.InfoTopSecret),
		testEntity(schemas.InfoConfidential),
		testEntity(schemas.InfoUnclassified),
	}

	t.Run("override returns everything untouched", func(t *testing.T) {
		out := FilterByClearance(entities, schemas.AccessRestricted, true)
		require.Len(t, out, 3)
		assert.Empty(t, cmp.Diff(entities, out))
	})

	t.Run("ordinary level downgrades what it cannot view", func(t *testing.T) {
		out := FilterByClearance(entities, schemas.AccessConfidential, false)
		require.Len(t, out, 3)
		assert.Equal(t, schemas.InfoConfidential, out[0].InfoClassification)
		assert.Equal(t, []string{"3 sources"}, out[0].SourceSensors)
		assert.Equal(t, schemas.InfoConfidential, out[1].InfoClassification)
		assert.Equal(t, schemas.InfoUnclassified, out[2].InfoClassification)
		// Originals untouched.
		assert.Equal(t, schemas.InfoTopSecret, entities[0].InfoClassification)
	})

	t.Run("enemy access sees only unclassified, never downgrades", func(t *testing.T) {
		out := FilterByClearance(entities, schemas.AccessEnemy, false)
		require.Len(t, out, 1)
		assert.Equal(t, schemas.InfoUnclassified, out[0].InfoClassification)
	})
}
