// Package needtoknow implements the distance-based need-to-know policy:
// per entity-type/classification/role notification thresholds and the
// must/never/ambiguous decision layer built on them.
package needtoknow

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/tifda/api/schemas"
)

// defaultTableKey is the entity-type fallback row in the threshold tables.
const defaultTableKey = "default"

// RoleModifier scales the distance envelope for an operational role. An
// EntityTypes list of ["all"] applies to every entity type.
type RoleModifier struct {
	EntityTypes []string `json:"entity_types" mapstructure:"entity_types"`
	Multiplier  float64  `json:"multiplier" mapstructure:"multiplier"`
}

// Tables holds the configured threshold matrix: entity type to IFF
// classification to distance envelope, plus per-role modifiers.
type Tables struct {
	Thresholds map[string]map[schemas.Classification]schemas.DistanceThreshold `json:"thresholds" mapstructure:"thresholds"`
	Roles      map[string]RoleModifier                                         `json:"role_modifiers" mapstructure:"role_modifiers"`
}

// Engine resolves thresholds and notification decisions from an injected
// table set. It has no package-level state; construct once and share.
type Engine struct {
	tables Tables
}

// NewEngine builds an Engine over the given tables. DefaultTables() provides
// the standing doctrine when no configuration is supplied.
func NewEngine(tables Tables) *Engine {
	if tables.Thresholds == nil {
		tables = DefaultTables()
	}
	return &Engine{tables: tables}
}

// Threshold resolves the distance envelope for (entityType, classification,
// role). Entity types missing from the table fall back to the "default" row;
// classifications missing from a row fall back to unknown, then hostile.
// A matching role modifier scales both bounds and annotates the reasoning.
func (e *Engine) Threshold(entityType string, class schemas.Classification, role string) schemas.DistanceThreshold {
	row, ok := e.tables.Thresholds[entityType]
	if !ok {
		row = e.tables.Thresholds[defaultTableKey]
	}

	th, ok := row[class]
	if !ok {
		if th, ok = row[schemas.ClassUnknown]; !ok {
			th = row[schemas.ClassHostile]
		}
	}

	if role == "" {
		return th
	}
	mod, ok := e.tables.Roles[role]
	if !ok || !roleApplies(mod, entityType) {
		return th
	}

	th.MustNotifyKm *= mod.Multiplier
	th.NeverNotifyKm *= mod.Multiplier
	th.Reasoning = fmt.Sprintf("%s (Role modifier: %s x%g)", th.Reasoning, role, mod.Multiplier)
	return th
}

func roleApplies(mod RoleModifier, entityType string) bool {
	for _, t := range mod.EntityTypes {
		if t == "all" || t == entityType {
			return true
		}
	}
	return false
}

// matchesPriorityTypes reports whether entityType is selected by a
// recipient's priority list. "all" is a wildcard and a category name such as
// "aircraft" matches any type sharing that prefix.
func matchesPriorityTypes(entityType string, priorities []string) bool {
	if len(priorities) == 0 {
		return true
	}
	for _, p := range priorities {
		if p == "all" || p == entityType || strings.HasPrefix(entityType, p) {
			return true
		}
	}
	return false
}
