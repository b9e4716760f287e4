package reasoner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/geo"
	"github.com/xkilldash9x/tifda/internal/threat"
)

const systemPrompt = `You are a tactical threat analyst. You are given one ambiguous contact from a fused operational picture plus the friendly forces near it. Classify the threat it poses.

Respond with exactly these lines and nothing else:
THREAT_LEVEL: one of critical, high, medium, low, none
CONFIDENCE: a number between 0.0 and 1.0
REASONING: one or two sentences
AFFECTED_ENTITIES: comma-separated friendly entity ids, or NONE`

// buildPrompt renders the contact and its tactical context into the user
// prompt.
func buildPrompt(entity schemas.EntityCOP, nearbyFriendlies []schemas.EntityCOP) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "CONTACT %s\n", entity.EntityID)
	fmt.Fprintf(&sb, "type: %s\nclassification: %s\nconfidence: %.2f\n",
		entity.EntityType, entity.Classification, entity.Confidence)
	fmt.Fprintf(&sb, "position: %.6f, %.6f\n", entity.Location.Lat, entity.Location.Lon)
	if entity.SpeedKmh != nil {
		fmt.Fprintf(&sb, "speed_kmh: %.1f\n", *entity.SpeedKmh)
	}
	if entity.Heading != nil {
		fmt.Fprintf(&sb, "heading: %.1f\n", *entity.Heading)
	}
	if len(entity.SourceSensors) > 0 {
		fmt.Fprintf(&sb, "sources: %s\n", strings.Join(entity.SourceSensors, ", "))
	}
	if entity.Comments != "" {
		fmt.Fprintf(&sb, "comments: %s\n", entity.Comments)
	}

	if len(nearbyFriendlies) == 0 {
		sb.WriteString("\nNo friendly forces within notice radius.\n")
		return sb.String()
	}

	sb.WriteString("\nNEARBY FRIENDLY FORCES\n")
	for _, f := range nearbyFriendlies {
		fmt.Fprintf(&sb, "- %s (%s) at %.2f km\n",
			f.EntityID, f.EntityType, geo.DistanceKm(entity.Location, f.Location))
	}
	return sb.String()
}

// parseVerdict extracts a verdict from the model's line-oriented reply.
// Missing THREAT_LEVEL is an error; a missing or NONE affected list defaults
// to every nearby friendly, since an analyst omitting the list means "all of
// them", not "none of them".
func parseVerdict(raw string, nearbyFriendlies []schemas.EntityCOP) (threat.Verdict, error) {
	verdict := threat.Verdict{Confidence: 0.5}
	levelSeen := false

	for _, line := range strings.Split(raw, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "THREAT_LEVEL":
			verdict.ThreatLevel = schemas.ThreatLevel(strings.ToLower(value))
			levelSeen = true
		case "CONFIDENCE":
			if c, err := strconv.ParseFloat(value, 64); err == nil {
				verdict.Confidence = min(max(c, 0.0), 1.0)
			}
		case "REASONING":
			verdict.Reasoning = value
		case "AFFECTED_ENTITIES":
			if !strings.EqualFold(value, "NONE") && value != "" {
				for _, id := range strings.Split(value, ",") {
					if id = strings.TrimSpace(id); id != "" {
						verdict.AffectedEntities = append(verdict.AffectedEntities, id)
					}
				}
			}
		}
	}

	if !levelSeen {
		return threat.Verdict{}, fmt.Errorf("reply has no THREAT_LEVEL line: %q", raw)
	}
	if verdict.Reasoning == "" {
		verdict.Reasoning = "External reasoner verdict (no reasoning text provided)"
	}
	if len(verdict.AffectedEntities) == 0 {
		for _, f := range nearbyFriendlies {
			verdict.AffectedEntities = append(verdict.AffectedEntities, f.EntityID)
		}
	}
	return verdict, nil
}
