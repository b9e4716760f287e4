// Package geo provides the great-circle distance math shared by the fusion
// and need-to-know layers.
package geo

import (
	"math"

	"github.com/xkilldash9x/tifda/api/schemas"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// haversineKm returns the unrounded great-circle distance in kilometers.
func haversineKm(a, b schemas.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// DistanceKm returns the great-circle distance between two positions in
// kilometers, rounded to two decimal places. Altitude is ignored.
func DistanceKm(a, b schemas.Location) float64 {
	return schemas.RoundTo(haversineKm(a, b), 2)
}

// DistanceM returns the unrounded great-circle distance in meters. The
// fusion duplicate predicate needs meter precision, so no rounding here.
func DistanceM(a, b schemas.Location) float64 {
	return haversineKm(a, b) * 1000
}
