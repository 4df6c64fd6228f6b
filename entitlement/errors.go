package entitlement

import (
	"errors"
	"fmt"
)

// ErrPaidPlanActive signals a trial activation attempt while a paid plan is
// still active
var ErrPaidPlanActive = errors.New("an active paid plan already exists")

// ErrNonPositiveCost signals a debit request with cost <= 0
var ErrNonPositiveCost = errors.New("debit cost must be a positive integer")

// InactiveError is returned when a debit is attempted against an entitlement
// that is not active. Reason carries the computed status so callers can
// present the right renew/upgrade prompt.
type InactiveError struct {
	Reason Status
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("entitlement is not active: %s", e.Reason)
}

// InsufficientQuotaError is returned when the plan is active but the
// remaining quota cannot cover the requested cost. No partial debit is
// applied.
type InsufficientQuotaError struct {
	Needed    int64
	Remaining int64
}

func (e *InsufficientQuotaError) Error() string {
	return fmt.Sprintf("insufficient quota: need %d, have %d remaining", e.Needed, e.Remaining)
}
