package payment

import "time"

// All orders are minted in INR; Razorpay bills in paise.
const Currency string = "INR"

// TaxRate is the GST applied on top of every package's base price
const TaxRate float64 = 0.18

// OrderStatus tracks the local half of the purchase state machine. An order
// is consumed exactly once: created -> verified.
type OrderStatus string

// Defining the OrderStatuses for an Order
const (
	OrderCreated  OrderStatus = "created"
	OrderVerified OrderStatus = "verified"
)

// Order is the local echo of a payment order minted on the gateway, kept for
// reconciliation and replay protection. The gateway holds the authoritative
// payment state.
type Order struct {
	ID            string      `json:"id" gorm:"primaryKey"` // Corresponds to Razorpay's order id
	IdentityEmail string      `json:"identityEmail" gorm:"index"`
	PlanName      string      `json:"packageName"`
	QuotaTotal    int64       `json:"contactLimit"`
	ValidityDays  int         `json:"validityDays"`
	BaseAmount    int64       `json:"baseAmount"` // Whole currency units, before tax
	TaxAmount     int64       `json:"taxAmount"`  // Minor units
	Amount        int64       `json:"amount"`     // Total charged, minor units
	Currency      string      `json:"currency"`
	Receipt       string      `json:"receipt"`
	Status        OrderStatus `json:"status"`
	Notes         Notes       `json:"notes"`
	PaymentID     string      `json:"paymentId,omitempty"` // Set once verified
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"-"`
}
