package schemas

// -- IFF affiliation --

// Classification is the IFF affiliation of a tracked entity. It is a
// separate axis from InfoClassification, which describes how sensitive the
// data about the entity is.
type Classification string

const (
	ClassFriendly Classification = "friendly"
	ClassHostile  Classification = "hostile"
	ClassNeutral  Classification = "neutral"
	ClassUnknown  Classification = "unknown"
)

// -- Security classification --

// InfoClassification is the security sensitivity of the information held
// about an entity.
type InfoClassification string

const (
	InfoTopSecret    InfoClassification = "TOP_SECRET"
	InfoSecret       InfoClassification = "SECRET"
	InfoConfidential InfoClassification = "CONFIDENTIAL"
	InfoRestricted   InfoClassification = "RESTRICTED"
	InfoUnclassified InfoClassification = "UNCLASSIFIED"
)

// AccessLevel is a recipient's clearance. Ordinary levels mirror the
// classification hierarchy; AccessEnemy is the out-of-band adversary-facing
// level used for deception channels and follows different release rules.
type AccessLevel string

const (
	AccessTopSecret    AccessLevel = "top_secret_access"
	AccessSecret       AccessLevel = "secret_access"
	AccessConfidential AccessLevel = "confidential_access"
	AccessRestricted   AccessLevel = "restricted_access"
	AccessUnclassified AccessLevel = "unclassified_access"
	AccessEnemy        AccessLevel = "enemy_access"
)

// classificationRanks orders classifications by sensitivity. Higher means
// more sensitive.
var classificationRanks = map[InfoClassification]int{
	InfoTopSecret:    5,
	InfoSecret:       4,
	InfoConfidential: 3,
	InfoRestricted:   2,
	InfoUnclassified: 1,
}

// accessRanks orders clearances. AccessEnemy ranks below every ordinary
// level and never participates in read-down comparisons.
var accessRanks = map[AccessLevel]int{
	AccessTopSecret:    5,
	AccessSecret:       4,
	AccessConfidential: 3,
	AccessRestricted:   2,
	AccessUnclassified: 1,
	AccessEnemy:        0,
}

// Rank returns the sensitivity rank of c, or 0 if c is not a known level.
func (c InfoClassification) Rank() int {
	return classificationRanks[c]
}

// Valid reports whether c is one of the defined classification levels.
func (c InfoClassification) Valid() bool {
	_, ok := classificationRanks[c]
	return ok
}

// Rank returns the clearance rank of a. AccessEnemy ranks 0.
func (a AccessLevel) Rank() int {
	return accessRanks[a]
}

// Valid reports whether a is one of the defined access levels.
func (a AccessLevel) Valid() bool {
	_, ok := accessRanks[a]
	return ok
}

// MaxViewable returns the most sensitive classification a holder of a may
// see in full. Entities above this level must be downgraded before release.
func (a AccessLevel) MaxViewable() InfoClassification {
	switch a {
	case AccessTopSecret:
		return InfoTopSecret
	case AccessSecret:
		return InfoSecret
	case AccessConfidential:
		return InfoConfidential
	case AccessRestricted:
		return InfoRestricted
	default:
		return InfoUnclassified
	}
}

// -- Threat levels --

// ThreatLevel is the categorical severity of an assessed threat.
type ThreatLevel string

const (
	ThreatCritical ThreatLevel = "critical"
	ThreatHigh     ThreatLevel = "high"
	ThreatMedium   ThreatLevel = "medium"
	ThreatLow      ThreatLevel = "low"
	ThreatNone     ThreatLevel = "none"
)

// threatPriority orders threat levels for sorting and filtering.
var threatPriority = map[ThreatLevel]int{
	ThreatCritical: 5,
	ThreatHigh:     4,
	ThreatMedium:   3,
	ThreatLow:      2,
	ThreatNone:     1,
}

// Priority returns the numeric ordering of l (critical highest).
func (l ThreatLevel) Priority() int {
	return threatPriority[l]
}

// Valid reports whether l is one of the defined threat levels.
func (l ThreatLevel) Valid() bool {
	_, ok := threatPriority[l]
	return ok
}

// -- Entity type vocabulary --

// EntityCategory groups entity types by operating domain for speed-band and
// interest-area lookups.
type EntityCategory string

const (
	CategoryAir    EntityCategory = "air"
	CategoryGround EntityCategory = "ground"
	CategorySea    EntityCategory = "sea"
	CategoryOther  EntityCategory = "other"
)

// entityCategories is the closed entity-type vocabulary, keyed by type.
var entityCategories = map[string]EntityCategory{
	"aircraft":       CategoryAir,
	"fighter":        CategoryAir,
	"bomber":         CategoryAir,
	"transport":      CategoryAir,
	"helicopter":     CategoryAir,
	"uav":            CategoryAir,
	"missile":        CategoryAir,
	"air_unknown":    CategoryAir,
	"ground_vehicle": CategoryGround,
	"tank":           CategoryGround,
	"apc":            CategoryGround,
	"ifv":            CategoryGround,
	"artillery":      CategoryGround,
	"infantry":       CategoryGround,
	"command_post":   CategoryGround,
	"radar_site":     CategoryGround,
	"infrastructure": CategoryGround,
	"building":       CategoryGround,
	"bridge":         CategoryGround,
	"base":           CategoryGround,
	"ground_unknown": CategoryGround,
	"ship":           CategorySea,
	"carrier":        CategorySea,
	"destroyer":      CategorySea,
	"frigate":        CategorySea,
	"corvette":       CategorySea,
	"patrol_boat":    CategorySea,
	"submarine":      CategorySea,
	"boat":           CategorySea,
	"sea_unknown":    CategorySea,
	"satellite":      CategoryOther,
	"cyber_node":     CategoryOther,
	"person":         CategoryOther,
	"event":          CategoryOther,
	"unknown":        CategoryOther,
}

// KnownEntityType reports whether t belongs to the entity-type vocabulary.
func KnownEntityType(t string) bool {
	_, ok := entityCategories[t]
	return ok
}

// CategoryOf returns the operating domain of entity type t, defaulting to
// CategoryOther for unrecognized types.
func CategoryOf(t string) EntityCategory {
	if c, ok := entityCategories[t]; ok {
		return c
	}
	return CategoryOther
}

// -- Sensors and output formats --

// SensorType identifies the class of sensor feed that produced a report.
type SensorType string

const (
	SensorRadar  SensorType = "radar"
	SensorDrone  SensorType = "drone"
	SensorRadio  SensorType = "radio"
	SensorManual SensorType = "manual"
	SensorOther  SensorType = "other"
)

// OutputFormat selects the wire format of an outbound dissemination message.
type OutputFormat string

const (
	FormatLink16    OutputFormat = "link16"
	FormatJSON      OutputFormat = "json"
	FormatAsterix   OutputFormat = "asterix"
	FormatCoT       OutputFormat = "cot"
	FormatVoiceText OutputFormat = "voice_text"
	FormatCustom    OutputFormat = "custom"
)

// BootstrapSensorTag marks COP entities materialized from the recipient
// roster rather than a live sensor feed.
const BootstrapSensorTag = "recipients_config"
