package schemas

import "time"

// ThreatAssessment is the outcome of evaluating one triggering entity. It is
// created once per pipeline run and never mutated afterwards; the router
// derives sanitized per-recipient copies.
type ThreatAssessment struct {
	AssessmentID     string             `json:"assessment_id"`
	ThreatLevel      ThreatLevel        `json:"threat_level"`
	ThreatSourceID   string             `json:"threat_source_id"`
	AffectedEntities []string           `json:"affected_entities"`
	Reasoning        string             `json:"reasoning"`
	Confidence       float64            `json:"confidence"`
	Timestamp        time.Time          `json:"timestamp"`
	DistancesKm      map[string]float64 `json:"distances_to_affected_km,omitempty"`
	// ThreatScore is the numeric prioritization score in [0,100]. It orders
	// assessments for review and never determines the categorical level.
	ThreatScore float64 `json:"threat_score"`
}

// Sanitized returns a copy of a stripped of precise distances and detailed
// reasoning, graded to the given viewable classification. At UNCLASSIFIED
// the affected friendly ids are withheld as well; above that they survive,
// since the recipient already holds some clearance.
func (a ThreatAssessment) Sanitized(level InfoClassification) ThreatAssessment {
	out := a
	out.Reasoning = "Threat detected in operational area. Classification: " + string(a.ThreatLevel) + "."
	out.DistancesKm = nil
	if level.Rank() <= InfoUnclassified.Rank() {
		out.AffectedEntities = nil
		return out
	}
	out.AffectedEntities = append([]string(nil), a.AffectedEntities...)
	return out
}
