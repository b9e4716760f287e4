package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/tifda/api/schemas"
)

func TestDistanceKmKnownPairs(t *testing.T) {
	// Paris to London, roughly 344 km.
	paris := schemas.NewLocation(48.8566, 2.3522, nil)
	london := schemas.NewLocation(51.5074, -0.1278, nil)

	d := DistanceKm(paris, london)
	assert.InDelta(t, 343.5, d, 1.5)

	// Symmetric.
	assert.Equal(t, d, DistanceKm(london, paris))
}

func TestDistanceKmZero(t *testing.T) {
	p := schemas.NewLocation(10.5, 20.5, nil)
	assert.Equal(t, 0.0, DistanceKm(p, p))
}

func TestDistanceKmRoundsToTwoDecimals(t *testing.T) {
	a := schemas.NewLocation(0, 0, nil)
	b := schemas.NewLocation(0, 0.01, nil)
	d := DistanceKm(a, b)
	assert.Equal(t, schemas.RoundTo(d, 2), d)
}

func TestDistanceMKeepsMeterPrecision(t *testing.T) {
	a := schemas.NewLocation(0, 0, nil)
	// ~0.0045 degrees of latitude is ~500 m.
	b := schemas.NewLocation(0.0045, 0, nil)

	m := DistanceM(a, b)
	assert.InDelta(t, 500.0, m, 2.0)
	// The meter variant must not be quantized to 10 m steps.
	c := schemas.NewLocation(0.00451, 0, nil)
	assert.NotEqual(t, m, DistanceM(a, c))
}

func TestDistanceIgnoresAltitude(t *testing.T) {
	a := schemas.NewLocation(40, -74, schemas.Float64Ptr(0))
	b := schemas.NewLocation(40, -74, schemas.Float64Ptr(10000))
	assert.Equal(t, 0.0, DistanceKm(a, b))
}
