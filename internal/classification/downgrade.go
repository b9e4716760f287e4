package classification

import (
	"fmt"
	"math"

	"github.com/xkilldash9x/tifda/api/schemas"
)

// Metadata keys preserved when downgrading to CONFIDENTIAL or below.
var confidentialMetadataAllowList = map[string]bool{
	"detection_time": true,
	"last_update":    true,
}

// Metadata keys stripped when leaving TOP_SECRET. These carry raw sensor
// payloads and model output that never leave the compartment.
var topSecretOnlyMetadataKeys = []string{
	"multimodal_results",
	"raw_sensor_data",
}

const unclassifiedComment = "Location approximate"

// Downgrade produces an independent sanitized copy of e at the target
// classification. Sanitization is cumulative: every stage between the
// entity's original level and the target is applied, not just the final
// one, so a TOP_SECRET record downgraded straight to UNCLASSIFIED loses
// everything the intermediate stages would have removed. If the target rank
// is at or above the original, the entity is returned unchanged (as a copy).
func Downgrade(e schemas.EntityCOP, target schemas.InfoClassification) schemas.EntityCOP {
	out := e.Clone()
	if target.Rank() >= e.InfoClassification.Rank() {
		return out
	}

	// Leaving TOP_SECRET: blur exact sensor attribution and kinematics.
	if e.InfoClassification == schemas.InfoTopSecret {
		out.SourceSensors = []string{fmt.Sprintf("%d sources", len(e.SourceSensors))}
		if out.SpeedKmh != nil {
			v := math.Round(*out.SpeedKmh/50) * 50
			out.SpeedKmh = &v
		}
		if out.Heading != nil {
			v := math.Mod(math.Round(*out.Heading/10)*10, 360)
			out.Heading = &v
		}
		for _, k := range topSecretOnlyMetadataKeys {
			delete(out.Metadata, k)
		}
	}

	// At CONFIDENTIAL or below: coarsen position to ~1 km and trim metadata
	// to the allow-list.
	if target.Rank() <= schemas.InfoConfidential.Rank() {
		out.Location = out.Location.Rounded(2)
		out.Confidence = schemas.RoundTo(out.Confidence, 1)
		if out.Metadata != nil {
			trimmed := make(map[string]any, len(confidentialMetadataAllowList))
			for k, v := range out.Metadata {
				if confidentialMetadataAllowList[k] {
					trimmed[k] = v
				}
			}
			out.Metadata = trimmed
		}
	}

	// At RESTRICTED or below: drop everything but the bare track.
	if target.Rank() <= schemas.InfoRestricted.Rank() {
		out.Metadata = nil
		out.SourceSensors = nil
		out.SpeedKmh = nil
		out.Heading = nil
		out.Comments = ""
	}

	// UNCLASSIFIED: ~10 km position, generic confidence and notice.
	if target == schemas.InfoUnclassified {
		out.Location = out.Location.Rounded(1)
		out.Confidence = 0.5
		out.Comments = unclassifiedComment
	}

	out.InfoClassification = target
	return out
}

// FilterByClearance returns the subset of entities viewable at the given
// access level, downgrading any entity classified above the level's maximum
// viewable classification. With emergencyOverride the picture is returned
// unfiltered. Inputs are never mutated.
func FilterByClearance(entities []schemas.EntityCOP, level schemas.AccessLevel, emergencyOverride bool) []schemas.EntityCOP {
	if emergencyOverride {
		out := make([]schemas.EntityCOP, len(entities))
		copy(out, entities)
		return out
	}

	maxViewable := level.MaxViewable()
	out := make([]schemas.EntityCOP, 0, len(entities))
	for _, e := range entities {
		if level == schemas.AccessEnemy && e.InfoClassification != schemas.InfoUnclassified {
			continue
		}
		if e.InfoClassification.Rank() > maxViewable.Rank() {
			out = append(out, Downgrade(e, maxViewable))
			continue
		}
		out = append(out, e)
	}
	return out
}
