// Package quota evaluates plan limits against tenant usage counters.
//
// Users are metered at registration time; challenges are metered at publish
// time — drafts are free. Both the check and the counter increment happen
// inside the same storage transaction as the creation they gate.
package quota

import (
	"errors"
	"fmt"
)

// Unlimited is the plan limit sentinel meaning the resource is not metered.
const Unlimited = -1

// ErrExceeded signals a plan limit has been reached. Deliberately distinct
// from authorization failures: the actionable remedy is a plan upgrade.
var ErrExceeded = errors.New("quota: plan limit reached")

// Resource names a countable, plan-limited resource kind.
type Resource string

const (
	ResourceUsers      Resource = "users"
	ResourceChallenges Resource = "challenges"
)

// Allow reports whether one more unit of the resource may be created.
func Allow(limit, used int) bool {
	if limit == Unlimited {
		return true
	}
	return used < limit
}

// Check returns ErrExceeded (wrapped with the resource name) when the limit
// is reached.
func Check(res Resource, limit, used int) error {
	if Allow(limit, used) {
		return nil
	}
	return fmt.Errorf("%w: %s (%d/%d)", ErrExceeded, res, used, limit)
}
