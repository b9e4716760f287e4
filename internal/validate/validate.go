// Package validate normalizes and gates raw sensor reports before they reach
// the fusion stage. A bad report rejects only itself, never the batch.
package validate

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tifda/api/schemas"
)

// ItemError records the rejection of a single report within a batch.
type ItemError struct {
	EntityID string
	Err      error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("entity %q rejected: %v", e.EntityID, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// Normalizer validates sensor reports and stamps them with their source
// sensor identity.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer returns a Normalizer.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger.Named("validate")}
}

// Check verifies one report's invariants: coordinate ranges, confidence in
// [0,1], non-negative speed, and a known entity type.
func Check(e schemas.EntityCOP) error {
	if e.EntityID == "" {
		return fmt.Errorf("missing entity_id")
	}
	if e.Location.Lat < -90 || e.Location.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", e.Location.Lat)
	}
	if e.Location.Lon < -180 || e.Location.Lon > 180 {
		return fmt.Errorf("longitude %v out of range", e.Location.Lon)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", e.Confidence)
	}
	if e.SpeedKmh != nil && *e.SpeedKmh < 0 {
		return fmt.Errorf("negative speed %v", *e.SpeedKmh)
	}
	if !schemas.KnownEntityType(e.EntityType) {
		return fmt.Errorf("unknown entity type %q", e.EntityType)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("missing timestamp")
	}
	return nil
}

// Normalize validates and canonicalizes one report from the given sensor:
// the entity id is namespaced by the sensor, the heading wrapped into
// [0,360), and the sensor guaranteed present in source_sensors. The input
// is not modified.
func (n *Normalizer) Normalize(sensorID string, e schemas.EntityCOP) (schemas.EntityCOP, error) {
	if err := Check(e); err != nil {
		return schemas.EntityCOP{}, err
	}

	out := e.Clone()
	if sensorID != "" && !strings.HasPrefix(out.EntityID, sensorID+"_") {
		out.EntityID = sensorID + "_" + out.EntityID
	}
	if out.Heading != nil {
		h := math.Mod(*out.Heading, 360)
		if h < 0 {
			h += 360
		}
		out.Heading = &h
	}
	if sensorID != "" && !out.HasSensor(sensorID) {
		out.SourceSensors = append(out.SourceSensors, sensorID)
	}
	if out.Classification == "" {
		out.Classification = schemas.ClassUnknown
	}
	if out.InfoClassification == "" {
		out.InfoClassification = schemas.InfoRestricted
	}
	out.Timestamp = out.Timestamp.UTC()
	return out, nil
}

// NormalizeBatch processes a batch, dropping invalid reports and collecting
// a per-item error for each. The valid remainder is always returned.
func (n *Normalizer) NormalizeBatch(sensorID string, reports []schemas.EntityCOP) ([]schemas.EntityCOP, []ItemError) {
	valid := make([]schemas.EntityCOP, 0, len(reports))
	var rejected []ItemError
	for _, r := range reports {
		e, err := n.Normalize(sensorID, r)
		if err != nil {
			rejected = append(rejected, ItemError{EntityID: r.EntityID, Err: err})
			n.logger.Warn("Rejected sensor report",
				zap.String("sensor_id", sensorID),
				zap.String("entity_id", r.EntityID),
				zap.Error(err),
			)
			continue
		}
		valid = append(valid, e)
	}
	return valid, rejected
}
