package schemas

import (
	"math"
	"time"
)

// Location is an immutable WGS84 position. Coordinates are normalized to six
// decimal places (~0.1 m) on construction.
type Location struct {
	Lat float64  `json:"lat"`
	Lon float64  `json:"lon"`
	Alt *float64 `json:"alt,omitempty"`
}

// NewLocation builds a Location with coordinates rounded to 6 decimals.
func NewLocation(lat, lon float64, alt *float64) Location {
	return Location{
		Lat: roundTo(lat, 6),
		Lon: roundTo(lon, 6),
		Alt: alt,
	}
}

// Rounded returns a copy of l with coordinates rounded to the given number
// of decimal places and altitude dropped. Used by the downgrade stages.
func (l Location) Rounded(decimals int) Location {
	return Location{
		Lat: roundTo(l.Lat, decimals),
		Lon: roundTo(l.Lon, decimals),
	}
}

// roundTo rounds v to the given number of decimal places, half away from zero.
func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// RoundTo is the shared coordinate/score rounding helper.
func RoundTo(v float64, decimals int) float64 { return roundTo(v, decimals) }

// EntityCOP is one fused record in the Common Operational Picture. Values
// are treated as immutable once constructed: fusion produces a new record
// and downgrading produces an independent sanitized copy.
type EntityCOP struct {
	EntityID           string             `json:"entity_id"`
	EntityType         string             `json:"entity_type"`
	Location           Location           `json:"location"`
	Timestamp          time.Time          `json:"timestamp"`
	Classification     Classification     `json:"classification"`
	InfoClassification InfoClassification `json:"information_classification"`
	Confidence         float64            `json:"confidence"`
	SourceSensors      []string           `json:"source_sensors"`
	Metadata           map[string]any     `json:"metadata,omitempty"`
	SpeedKmh           *float64           `json:"speed_kmh,omitempty"`
	Heading            *float64           `json:"heading,omitempty"`
	Comments           string             `json:"comments,omitempty"`
}

// Clone returns a deep copy of e. Slices and the metadata map are copied so
// the clone can be modified without aliasing the original.
func (e EntityCOP) Clone() EntityCOP {
	out := e
	out.SourceSensors = append([]string(nil), e.SourceSensors...)
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	if e.SpeedKmh != nil {
		v := *e.SpeedKmh
		out.SpeedKmh = &v
	}
	if e.Heading != nil {
		v := *e.Heading
		out.Heading = &v
	}
	if e.Location.Alt != nil {
		v := *e.Location.Alt
		out.Location.Alt = &v
	}
	return out
}

// HasSensor reports whether sensor id s is among the entity's sources.
func (e EntityCOP) HasSensor(s string) bool {
	for _, src := range e.SourceSensors {
		if src == s {
			return true
		}
	}
	return false
}

// COPSnapshot is a point-in-time copy of the picture, used by observers and
// the archive sink.
type COPSnapshot struct {
	Generation int64                `json:"generation"`
	TakenAt    time.Time            `json:"taken_at"`
	Entities   map[string]EntityCOP `json:"entities"`
}

// Float64Ptr returns a pointer to v. Convenience for optional numeric fields.
func Float64Ptr(v float64) *float64 { return &v }
