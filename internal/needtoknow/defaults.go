package needtoknow

import "github.com/xkilldash9x/tifda/api/schemas"

// DefaultTables returns the standing threshold doctrine used when no
// configured tables are supplied. Distances are kilometers.
func DefaultTables() Tables {
	return Tables{
		Thresholds: map[string]map[schemas.Classification]schemas.DistanceThreshold{
			defaultTableKey: {
				schemas.ClassHostile: {
					MustNotifyKm: 100, NeverNotifyKm: 600, ThreatMultiplier: 1.5,
					Reasoning: "Hostile contact inside the operational area",
				},
				schemas.ClassUnknown: {
					MustNotifyKm: 50, NeverNotifyKm: 400, ThreatMultiplier: 1.2,
					Reasoning: "Unidentified contact requiring correlation",
				},
				schemas.ClassNeutral: {
					MustNotifyKm: 30, NeverNotifyKm: 100, ThreatMultiplier: 1.0,
					Reasoning: "Neutral traffic of local interest only",
				},
				schemas.ClassFriendly: {
					MustNotifyKm: 20, NeverNotifyKm: 50, ThreatMultiplier: 1.0,
					Reasoning: "Friendly movement for coordination",
				},
			},
			"missile": {
				schemas.ClassHostile: {
					MustNotifyKm: 150, NeverNotifyKm: 1000, ThreatMultiplier: 3.0,
					Reasoning: "Inbound missile threat, wide warning envelope",
				},
				schemas.ClassUnknown: {
					MustNotifyKm: 100, NeverNotifyKm: 800, ThreatMultiplier: 2.0,
					Reasoning: "Unidentified ballistic track",
				},
			},
			"aircraft": {
				schemas.ClassHostile: {
					MustNotifyKm: 100, NeverNotifyKm: 600, ThreatMultiplier: 2.0,
					Reasoning: "Hostile air activity",
				},
				schemas.ClassUnknown: {
					MustNotifyKm: 50, NeverNotifyKm: 400, ThreatMultiplier: 1.5,
					Reasoning: "Unidentified air track",
				},
			},
			"fighter": {
				schemas.ClassHostile: {
					MustNotifyKm: 100, NeverNotifyKm: 600, ThreatMultiplier: 2.5,
					Reasoning: "Hostile fighter activity",
				},
			},
			"ship": {
				schemas.ClassHostile: {
					MustNotifyKm: 80, NeverNotifyKm: 500, ThreatMultiplier: 1.3,
					Reasoning: "Hostile surface contact",
				},
			},
			"tank": {
				schemas.ClassHostile: {
					MustNotifyKm: 40, NeverNotifyKm: 200, ThreatMultiplier: 1.5,
					Reasoning: "Hostile armor in sector",
				},
			},
		},
		Roles: map[string]RoleModifier{
			"air_defense": {
				EntityTypes: []string{"aircraft", "fighter", "bomber", "helicopter", "uav", "missile"},
				Multiplier:  1.5,
			},
			"naval_operations": {
				EntityTypes: []string{"ship", "destroyer", "submarine", "carrier", "patrol_boat"},
				Multiplier:  1.5,
			},
			"logistics": {
				EntityTypes: []string{"all"},
				Multiplier:  0.7,
			},
		},
	}
}
