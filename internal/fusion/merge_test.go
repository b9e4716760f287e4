package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/tifda/api/schemas"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func report(id, sensor string, lat, lon float64, ts time.Time) schemas.EntityCOP {
	return schemas.EntityCOP{
		EntityID:           id,
		EntityType:         "aircraft",
		Location:           schemas.NewLocation(lat, lon, nil),
		Timestamp:          ts,
		Classification:     schemas.ClassHostile,
		InfoClassification: schemas.InfoSecret,
		Confidence:         0.7,
		SourceSensors:      []string{sensor},
	}
}

func TestIsDuplicateGates(t *testing.T) {
	m := NewMatcher(0, 0)
	base := report("a", "radar_001", 40.0, -74.0, t0)

	t.Run("within all gates", func(t *testing.T) {
		// ~150 m east, 30 s later.
		other := report("b", "drone_002", 40.0, -73.99824, t0.Add(30*time.Second))
		assert.True(t, m.IsDuplicate(base, other))
	})

	t.Run("distance gate at 500m", func(t *testing.T) {
		// ~499 m north.
		near := report("b", "drone_002", 40.004487, -74.0, t0)
		assert.True(t, m.IsDuplicate(base, near))
		// ~520 m north.
		far := report("b", "drone_002", 40.004676, -74.0, t0)
		assert.False(t, m.IsDuplicate(base, far))
	})

	t.Run("time gate at 300s", func(t *testing.T) {
		ok := report("b", "drone_002", 40.0, -74.0, t0.Add(300*time.Second))
		assert.True(t, m.IsDuplicate(base, ok))
		late := report("b", "drone_002", 40.0, -74.0, t0.Add(301*time.Second))
		assert.False(t, m.IsDuplicate(base, late))
		early := report("b", "drone_002", 40.0, -74.0, t0.Add(-301*time.Second))
		assert.False(t, m.IsDuplicate(base, early))
	})

	t.Run("entity type must match", func(t *testing.T) {
		other := report("b", "drone_002", 40.0, -74.0, t0)
		other.EntityType = "helicopter"
		assert.False(t, m.IsDuplicate(base, other))
	})

	t.Run("classification compatibility", func(t *testing.T) {
		other := report("b", "drone_002", 40.0, -74.0, t0)
		other.Classification = schemas.ClassNeutral
		assert.False(t, m.IsDuplicate(base, other), "hostile vs neutral must not merge")

		other.Classification = schemas.ClassUnknown
		assert.True(t, m.IsDuplicate(base, other), "unknown is compatible with anything")
	})
}

func TestFindDuplicateDeterministicOrder(t *testing.T) {
	m := NewMatcher(0, 0)
	incoming := report("new", "radio_3", 40.0, -74.0, t0)

	// Two candidates both satisfy the predicate; the lowest entity id must
	// win regardless of map iteration order.
	candidates := map[string]schemas.EntityCOP{
		"trk_b": report("trk_b", "radar_001", 40.0005, -74.0, t0),
		"trk_a": report("trk_a", "drone_002", 40.0004, -74.0, t0),
		"trk_c": report("trk_c", "radar_009", 40.0003, -74.0, t0),
	}

	for i := 0; i < 20; i++ {
		match, ok := m.FindDuplicate(incoming, candidates)
		require.True(t, ok)
		assert.Equal(t, "trk_a", match.EntityID)
	}
}

func TestFindDuplicateNoMatch(t *testing.T) {
	m := NewMatcher(0, 0)
	incoming := report("new", "radio_3", 40.0, -74.0, t0)
	candidates := map[string]schemas.EntityCOP{
		"trk_far": report("trk_far", "radar_001", 41.0, -74.0, t0),
	}
	_, ok := m.FindDuplicate(incoming, candidates)
	assert.False(t, ok)
}

func TestMergeScenario(t *testing.T) {
	// Two aircraft 150 m apart, 30 s apart, confidences 0.7/0.8, sensors
	// {A}/{B}: merged confidence min(0.8+0.1, 1.0)=0.9, sources {A,B}.
	existing := report("trk_1", "A", 40.0, -74.0, t0)
	existing.Confidence = 0.7
	incoming := report("obs", "B", 40.00135, -74.0, t0.Add(30*time.Second))
	incoming.Confidence = 0.8

	merged := Merge(existing, incoming)

	assert.Equal(t, "trk_1", merged.EntityID, "existing id is kept")
	assert.Equal(t, 0.9, merged.Confidence)
	assert.ElementsMatch(t, []string{"A", "B"}, merged.SourceSensors)
	assert.Equal(t, incoming.Location, merged.Location, "newer position wins")
	assert.Equal(t, incoming.Timestamp, merged.Timestamp)
	assert.Equal(t, 2, merged.Metadata["merge_count"])
	assert.ElementsMatch(t, []string{"A", "B"}, merged.Metadata["merged_from_sensors"].([]string))

	// Inputs untouched.
	assert.Equal(t, 0.7, existing.Confidence)
	assert.Equal(t, []string{"A"}, existing.SourceSensors)
}

func TestMergeConfidenceMonotoneAndCapped(t *testing.T) {
	existing := report("trk_1", "A", 40.0, -74.0, t0)
	existing.Confidence = 0.95
	incoming := report("obs", "B", 40.0, -74.0, t0.Add(time.Second))
	incoming.Confidence = 0.5

	merged := Merge(existing, incoming)
	assert.Equal(t, 1.0, merged.Confidence, "boost capped at 1.0")
	assert.GreaterOrEqual(t, merged.Confidence, existing.Confidence)
	assert.GreaterOrEqual(t, merged.Confidence, incoming.Confidence)
}

func TestMergeSourceUnion(t *testing.T) {
	existing := report("trk_1", "A", 40.0, -74.0, t0)
	existing.SourceSensors = []string{"A", "B"}
	incoming := report("obs", "B", 40.0, -74.0, t0.Add(time.Second))
	incoming.SourceSensors = []string{"B", "C"}

	merged := Merge(existing, incoming)
	assert.Equal(t, []string{"A", "B", "C"}, merged.SourceSensors)
	// Boost is per extra distinct sensor: min(0.7 + 0.1*2, 1.0).
	assert.InDelta(t, 0.9, merged.Confidence, 1e-9)
}

func TestMergeClassificationPreference(t *testing.T) {
	existing := report("trk_1", "A", 40.0, -74.0, t0)
	incoming := report("obs", "B", 40.0, -74.0, t0.Add(time.Second))

	existing.Classification = schemas.ClassUnknown
	incoming.Classification = schemas.ClassHostile
	assert.Equal(t, schemas.ClassHostile, Merge(existing, incoming).Classification)

	existing.Classification = schemas.ClassHostile
	incoming.Classification = schemas.ClassUnknown
	assert.Equal(t, schemas.ClassHostile, Merge(existing, incoming).Classification)

	existing.Classification = schemas.ClassUnknown
	incoming.Classification = schemas.ClassUnknown
	assert.Equal(t, schemas.ClassUnknown, Merge(existing, incoming).Classification)
}

func TestMergeInfoClassificationTakesHigher(t *testing.T) {
	existing := report("trk_1", "A", 40.0, -74.0, t0)
	existing.InfoClassification = schemas.InfoConfidential
	incoming := report("obs", "B", 40.0, -74.0, t0.Add(time.Second))
	incoming.InfoClassification = schemas.InfoTopSecret

	assert.Equal(t, schemas.InfoTopSecret, Merge(existing, incoming).InfoClassification)
	assert.Equal(t, schemas.InfoTopSecret, Merge(incoming, existing).InfoClassification)
}

func TestMergeNewerFieldsWithOlderFallback(t *testing.T) {
	existing := report("trk_1", "A", 40.0, -74.0, t0)
	existing.SpeedKmh = schemas.Float64Ptr(400)
	existing.Heading = schemas.Float64Ptr(90)
	incoming := report("obs", "B", 40.001, -74.0, t0.Add(time.Minute))
	// Incoming (newer) carries no kinematics; older values survive.

	merged := Merge(existing, incoming)
	require.NotNil(t, merged.SpeedKmh)
	assert.Equal(t, 400.0, *merged.SpeedKmh)
	assert.Equal(t, 90.0, *merged.Heading)

	// When the newer side has kinematics, they win.
	incoming.SpeedKmh = schemas.Float64Ptr(600)
	merged = Merge(existing, incoming)
	assert.Equal(t, 600.0, *merged.SpeedKmh)
}

func TestMergeOlderIncomingKeepsExistingState(t *testing.T) {
	existing := report("trk_1", "A", 40.0, -74.0, t0)
	stale := report("obs", "B", 40.002, -74.0, t0.Add(-time.Minute))

	merged := Merge(existing, stale)
	assert.Equal(t, existing.Location, merged.Location, "existing is newer, its position wins")
	assert.Equal(t, existing.Timestamp, merged.Timestamp)
	assert.ElementsMatch(t, []string{"A", "B"}, merged.SourceSensors)
}

func TestMergeComments(t *testing.T) {
	existing := report("trk_1", "A", 40.0, -74.0, t0)
	existing.Comments = "First sighting"
	incoming := report("obs", "B", 40.0, -74.0, t0.Add(time.Minute))
	incoming.Comments = "Confirmed heading north"

	merged := Merge(existing, incoming)
	assert.Equal(t, "Confirmed heading north\n[Previous: First sighting]", merged.Comments)

	incoming.Comments = ""
	assert.Equal(t, "First sighting", Merge(existing, incoming).Comments)

	incoming.Comments = "First sighting"
	assert.Equal(t, "First sighting", Merge(existing, incoming).Comments)
}

func TestMergeCountAccumulates(t *testing.T) {
	existing := report("trk_1", "A", 40.0, -74.0, t0)
	first := Merge(existing, report("obs1", "B", 40.0, -74.0, t0.Add(time.Second)))
	assert.Equal(t, 2, first.Metadata["merge_count"])

	second := Merge(first, report("obs2", "C", 40.0, -74.0, t0.Add(2*time.Second)))
	assert.Equal(t, 3, second.Metadata["merge_count"])
}
