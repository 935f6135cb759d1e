package service

import (
	"strings"

	"github.com/noah-isme/activity-hours-api/internal/models"
)

// ZeroLimitPolicy decides what a quota limit of 0 means.
type ZeroLimitPolicy string

const (
	// ZeroLimitUnbounded treats a limit of 0 as "no cap".
	ZeroLimitUnbounded ZeroLimitPolicy = "unbounded"
	// ZeroLimitBlocked treats a limit of 0 as already fully committed.
	ZeroLimitBlocked ZeroLimitPolicy = "blocked"
)

// ParseZeroLimitPolicy maps a configuration value to a policy, defaulting to unbounded.
func ParseZeroLimitPolicy(raw string) ZeroLimitPolicy {
	if strings.EqualFold(strings.TrimSpace(raw), string(ZeroLimitBlocked)) {
		return ZeroLimitBlocked
	}
	return ZeroLimitUnbounded
}

// Bounded reports whether limit caps the committed total under this policy.
func (p ZeroLimitPolicy) Bounded(limit int) bool {
	return limit > 0 || p == ZeroLimitBlocked
}

// ResolveStatus derives an activity status from its own decision, the hours
// committed by the other activities of the same pair and the pair's limit.
// First match wins:
//
//  1. undecided and the limit is already fully committed -> LIMIT_REACHED
//  2. undecided -> PENDING
//  3. decided with 0 hours -> REJECTED
//  4. otherwise -> APPROVED
//
// A decided activity is never moved to LIMIT_REACHED, so a rejection stays a
// rejection whatever happens to the ledger afterwards.
func ResolveStatus(own *int, committedExcludingSelf, limit int, policy ZeroLimitPolicy) models.ActivityStatus {
	switch {
	case own == nil && policy.Bounded(limit) && committedExcludingSelf >= limit:
		return models.ActivityLimitReached
	case own == nil:
		return models.ActivityPending
	case *own == 0:
		return models.ActivityRejected
	default:
		return models.ActivityApproved
	}
}
