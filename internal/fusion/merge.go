// Package fusion implements duplicate detection and record merging for
// same-object sensor reports. All functions are pure: they never mutate
// their inputs and return new records, so the COP store can run them inside
// its write critical section.
package fusion

import (
	"fmt"
	"math"
	"sort"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/geo"
)

// Defaults for the duplicate predicate.
const (
	DefaultMaxDistanceM   = 500.0
	DefaultMaxTimeDeltaS  = 300.0
	confidenceBoostPerSrc = 0.1
)

// Matcher holds the configured duplicate predicate parameters.
type Matcher struct {
	MaxDistanceM  float64
	MaxTimeDeltaS float64
}

// NewMatcher returns a Matcher, substituting defaults for non-positive
// parameters.
func NewMatcher(maxDistanceM, maxTimeDeltaS float64) Matcher {
	if maxDistanceM <= 0 {
		maxDistanceM = DefaultMaxDistanceM
	}
	if maxTimeDeltaS <= 0 {
		maxTimeDeltaS = DefaultMaxTimeDeltaS
	}
	return Matcher{MaxDistanceM: maxDistanceM, MaxTimeDeltaS: maxTimeDeltaS}
}

// IsDuplicate reports whether two records plausibly describe the same
// real-world object: same entity type, within the distance and time gates,
// and with compatible IFF classifications (two non-unknown classifications
// must agree).
func (m Matcher) IsDuplicate(a, b schemas.EntityCOP) bool {
	if a.EntityType != b.EntityType {
		return false
	}
	if geo.DistanceM(a.Location, b.Location) > m.MaxDistanceM {
		return false
	}
	if math.Abs(a.Timestamp.Sub(b.Timestamp).Seconds()) > m.MaxTimeDeltaS {
		return false
	}
	if a.Classification != schemas.ClassUnknown && b.Classification != schemas.ClassUnknown &&
		a.Classification != b.Classification {
		return false
	}
	return true
}

// FindDuplicate scans candidates for the first record matching incoming.
// Candidates are visited in ascending entity-id order so the outcome is
// deterministic regardless of map iteration order. Returns false when no
// candidate matches.
func (m Matcher) FindDuplicate(incoming schemas.EntityCOP, candidates map[string]schemas.EntityCOP) (schemas.EntityCOP, bool) {
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if c := candidates[id]; m.IsDuplicate(c, incoming) {
			return c, true
		}
	}
	return schemas.EntityCOP{}, false
}

// Merge combines an existing COP record with a newly observed duplicate and
// returns the fused record. The existing entity id is kept. Neither input
// is modified.
func Merge(existing, incoming schemas.EntityCOP) schemas.EntityCOP {
	newer, older := incoming, existing
	if existing.Timestamp.After(incoming.Timestamp) {
		newer, older = existing, incoming
	}

	out := newer.Clone()
	out.EntityID = existing.EntityID

	out.SourceSensors = unionSensors(existing.SourceSensors, incoming.SourceSensors)

	boost := confidenceBoostPerSrc * float64(len(out.SourceSensors)-1)
	out.Confidence = math.Min(math.Max(existing.Confidence, incoming.Confidence)+boost, 1.0)

	out.Classification = mergeClassification(existing.Classification, incoming.Classification)
	out.InfoClassification = higherClassification(existing.InfoClassification, incoming.InfoClassification)

	if out.SpeedKmh == nil {
		out.SpeedKmh = older.SpeedKmh
	}
	if out.Heading == nil {
		out.Heading = older.Heading
	}

	out.Metadata = mergeMetadata(older, newer, out.SourceSensors)
	out.Comments = mergeComments(older.Comments, newer.Comments)

	return out
}

// unionSensors merges two sensor lists, preserving first-seen order.
func unionSensors(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// mergeClassification prefers a committed (non-unknown) affiliation, with
// the existing record winning when both are committed. The duplicate
// predicate already guarantees committed values agree.
func mergeClassification(existing, incoming schemas.Classification) schemas.Classification {
	if existing != schemas.ClassUnknown {
		return existing
	}
	if incoming != schemas.ClassUnknown {
		return incoming
	}
	return schemas.ClassUnknown
}

// higherClassification returns the more sensitive of two levels.
func higherClassification(a, b schemas.InfoClassification) schemas.InfoClassification {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// mergeMetadata shallow-merges older then newer (newer wins per key) and
// records the merge provenance.
func mergeMetadata(older, newer schemas.EntityCOP, sensors []string) map[string]any {
	out := make(map[string]any, len(older.Metadata)+len(newer.Metadata)+2)
	for k, v := range older.Metadata {
		out[k] = v
	}
	for k, v := range newer.Metadata {
		out[k] = v
	}

	count := 1
	for _, src := range []map[string]any{older.Metadata, newer.Metadata} {
		if c, ok := src["merge_count"].(int); ok && c > count {
			count = c
		}
	}
	out["merge_count"] = count + 1
	out["merged_from_sensors"] = sensors
	return out
}

// mergeComments keeps the newer comment, appending the older one as a
// bracketed note when both exist and differ.
func mergeComments(older, newer string) string {
	switch {
	case newer == "":
		return older
	case older == "" || older == newer:
		return newer
	default:
		return fmt.Sprintf("%s\n[Previous: %s]", newer, older)
	}
}
