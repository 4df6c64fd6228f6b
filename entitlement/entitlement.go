package entitlement

import "time"

// Status is the derived state of an Entitlement at a point in time. It is
// never persisted, always computed on read.
type Status string

// Defining the different derived Statuses for an Entitlement
const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusExhausted Status = "exhausted"
	StatusNoPackage Status = "no-package"
)

// The fixed free trial definition. Grants via GrantTrial always use these.
const (
	TrialPlanName     string = "Free Trial"
	TrialQuota        int64  = 100
	TrialValidityDays int    = 30
)

// Entitlement is the current usage allowance attached to one identity.
// There is at most one per identity; a new grant replaces it wholesale.
type Entitlement struct {
	IdentityEmail string    `json:"identityEmail" gorm:"primaryKey"`
	PlanName      string    `json:"planName"`
	QuotaTotal    int64     `json:"contactLimit"`
	QuotaConsumed int64     `json:"contactsUsed" gorm:"not null;default:0"`
	GrantedAt     time.Time `json:"purchaseDate"`
	ExpiresAt     time.Time `json:"expiryDate"`
	OrderID       string    `json:"orderId,omitempty"` // External payment order id, set on paid grants only
	PaymentID     string    `json:"paymentId,omitempty"`
	UpdatedAt     time.Time `json:"-"`
}

// Grant is an immutable history entry, appended exactly once per grant event
type Grant struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	IdentityEmail string    `json:"identityEmail" gorm:"index"`
	PlanName      string    `json:"planName"`
	QuotaTotal    int64     `json:"contactLimit"`
	ValidityDays  int       `json:"validityDays"`
	PriceCharged  int64     `json:"price"`
	GrantedAt     time.Time `json:"purchaseDate"`
	ExpiresAt     time.Time `json:"expiryDate"`
	OrderID       string    `json:"orderId,omitempty"`
	PaymentID     string    `json:"paymentId,omitempty"`
	CreatedAt     time.Time `json:"-"`
}

// Remaining returns how much quota is left. Can be negative only if storage
// was mutated outside DebitUsage; debits themselves never overrun.
func (e *Entitlement) Remaining() int64 {
	return e.QuotaTotal - e.QuotaConsumed
}

// ComputeStatus derives the status of an entitlement at the given time.
// Expiry takes precedence over exhaustion: an expired-and-exhausted plan
// reports expired.
func ComputeStatus(e *Entitlement, now time.Time) Status {
	if e == nil {
		return StatusNoPackage
	}
	if now.After(e.ExpiresAt) {
		return StatusExpired
	}
	if e.Remaining() <= 0 {
		return StatusExhausted
	}
	return StatusActive
}
