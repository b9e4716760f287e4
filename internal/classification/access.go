// Package classification implements the security-classification hierarchy:
// read-down access checks, staged information downgrading, and clearance
// filtering of COP views.
package classification

import (
	"fmt"

	"github.com/xkilldash9x/tifda/api/schemas"
)

// SecurityViolationError marks an attempted release of classified material
// to a channel that must never receive it. It is a hard failure: callers
// must abort the release, and no override path may downgrade it to a log
// line.
type SecurityViolationError struct {
	RecipientID    string
	AccessLevel    schemas.AccessLevel
	Classification schemas.InfoClassification
}

func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("security violation: release of %s material to %s recipient %q is forbidden",
		e.Classification, e.AccessLevel, e.RecipientID)
}

// CanAccess reports whether a holder of level may read material at the given
// classification. Ordinary levels follow read-down: clearance rank at or
// above the classification rank. The adversary-facing enemy_access level is
// special-cased: it may only ever read UNCLASSIFIED. Deception releases are
// authorized by the caller, never by this predicate.
func CanAccess(level schemas.AccessLevel, c schemas.InfoClassification) bool {
	if !level.Valid() || !c.Valid() {
		return false
	}
	if level == schemas.AccessEnemy {
		return c == schemas.InfoUnclassified
	}
	return level.Rank() >= c.Rank()
}

// AuthorizeRelease checks a concrete release of material at classification c
// to the given recipient. For ordinary recipients this is CanAccess. For
// enemy_access recipients, anything above UNCLASSIFIED requires the release
// to be an explicitly flagged deception payload; otherwise a
// SecurityViolationError is returned. Emergency override does not reach
// this check on purpose.
func AuthorizeRelease(r schemas.RecipientInfo, c schemas.InfoClassification, isDeception bool) error {
	if r.AccessLevel == schemas.AccessEnemy {
		if c == schemas.InfoUnclassified {
			return nil
		}
		if isDeception && r.DeceptionAuthorized {
			return nil
		}
		return &SecurityViolationError{
			RecipientID:    r.RecipientID,
			AccessLevel:    r.AccessLevel,
			Classification: c,
		}
	}
	if !CanAccess(r.AccessLevel, c) {
		return fmt.Errorf("recipient %q (%s) lacks clearance for %s", r.RecipientID, r.AccessLevel, c)
	}
	return nil
}
