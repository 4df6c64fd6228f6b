package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/thekamyabsagar/kamyabvcffile/catalog"
	"github.com/thekamyabsagar/kamyabvcffile/entitlement"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	razorpay "github.com/razorpay/razorpay-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidSignature signals a payment callback that failed cryptographic
// verification. Treated as a security event by callers.
var ErrInvalidSignature = errors.New("payment signature verification failed")

// ErrOrderNotFound signals a verification attempt against an order this
// service never created
var ErrOrderNotFound = errors.New("no such payment order")

// ErrOrderConsumed signals a verification replay against an order that was
// already consumed by a different payment
var ErrOrderConsumed = errors.New("payment order already consumed")

// ProviderError wraps a failed call to the payment gateway. No local state is
// mutated when it is returned; order creation may be retried.
type ProviderError struct {
	Cause error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment gateway request failed: %v", e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// ManagerOptions contains the configuration for the payment Manager
type ManagerOptions struct {
	RazorpayClient     *razorpay.Client
	EntitlementManager *entitlement.Manager
	DB                 *gorm.DB
	Logger             *zap.Logger
	KeyID              string
	KeySecret          string
}

// Manager runs the two-phase order/verify workflow against Razorpay
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for payment orders
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.RazorpayClient == nil {
		return nil, fmt.Errorf("nil RazorpayClient is invalid")
	}
	if option.EntitlementManager == nil {
		return nil, fmt.Errorf("nil EntitlementManager is invalid")
	}
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if len(option.KeyID) == 0 || len(option.KeySecret) == 0 {
		return nil, fmt.Errorf("empty Razorpay credentials are invalid")
	}
	if err := option.DB.AutoMigrate(&Order{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize payment.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// PurgeIdentity returns a cascade step that removes the identity's order
// echoes, for admin account removal
func (m *Manager) PurgeIdentity(email string) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		return tx.Delete(&Order{}, "identity_email = ?", email).Error
	}
}

// TotalWithTax converts a base price into the amount charged, in minor units
func TotalWithTax(baseAmount float64) int64 {
	return int64(math.Round(baseAmount * (1 + TaxRate) * 100))
}

// CreateOrderOption identifies who is buying which plan
type CreateOrderOption struct {
	IdentityEmail string
	Plan          catalog.Plan
}

// CreateOrder mints an order on the gateway and persists the local echo.
// Nothing is granted here; the entitlement only changes after VerifyAndGrant.
// If the gateway call fails, no local state is written.
func (m *Manager) CreateOrder(ctx context.Context, opt CreateOrderOption) (*Order, error) {
	base := float64(opt.Plan.Price)
	total := TotalWithTax(base)
	tax := total - int64(math.Round(base*100))
	receipt := fmt.Sprintf("receipt_%s", uuid.New().String())

	notes := Notes{
		"packageName":  opt.Plan.Name,
		"contactLimit": strconv.FormatInt(opt.Plan.QuotaTotal, 10),
		"validityDays": strconv.Itoa(opt.Plan.ValidityDays),
		"userEmail":    opt.IdentityEmail,
		"baseAmount":   strconv.FormatInt(opt.Plan.Price, 10),
		"taxAmount":    strconv.FormatInt(tax, 10),
	}
	data := map[string]interface{}{
		"amount":   total,
		"currency": Currency,
		"receipt":  receipt,
		"notes":    notes,
	}
	body, err := m.RazorpayClient.Order.Create(data, nil)
	if err != nil {
		m.Logger.Error("Razorpay returned error",
			zap.String("IdentityEmail", opt.IdentityEmail),
			zap.Error(err),
		)
		return nil, &ProviderError{Cause: err}
	}

	orderID, ok := body["id"].(string)
	if !ok || len(orderID) == 0 {
		return nil, &ProviderError{Cause: fmt.Errorf("gateway response carried no order id")}
	}

	order := &Order{
		ID:            orderID,
		IdentityEmail: opt.IdentityEmail,
		PlanName:      opt.Plan.Name,
		QuotaTotal:    opt.Plan.QuotaTotal,
		ValidityDays:  opt.Plan.ValidityDays,
		BaseAmount:    opt.Plan.Price,
		TaxAmount:     tax,
		Amount:        total,
		Currency:      Currency,
		Receipt:       receipt,
		Status:        OrderCreated,
		Notes:         notes,
	}
	result := m.DB.WithContext(ctx).Create(order)
	if result.Error != nil {
		m.Logger.Error("Unable to persist order echo",
			zap.String("OrderID", orderID),
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot record payment order")
	}

	return order, nil
}

// VerifySignature recomputes the callback signature as
// HMAC-SHA256(secret, orderID + "|" + paymentID) and compares it in constant
// time
func (m *Manager) VerifySignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(m.KeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, provided)
}

// VerifyOption carries the signed callback from the gateway checkout
type VerifyOption struct {
	OrderID       string
	PaymentID     string
	Signature     string
	IdentityEmail string
	Now           time.Time
}

// VerifyAndGrant validates the payment callback and atomically consumes the
// order and grants the purchased plan. A retry bearing the payment id that
// already consumed the order returns the prior grant instead of granting
// twice; any other reuse of the order is rejected.
func (m *Manager) VerifyAndGrant(ctx context.Context, opt VerifyOption) (granted *entitlement.Entitlement, replayed bool, err error) {
	if !m.VerifySignature(opt.OrderID, opt.PaymentID, opt.Signature) {
		return nil, false, ErrInvalidSignature
	}

	err = m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order Order
		lookup := tx.First(&order, "id = ?", opt.OrderID)
		if errors.Is(lookup.Error, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		if lookup.Error != nil {
			return lookup.Error
		}
		if order.IdentityEmail != opt.IdentityEmail {
			return ErrOrderNotFound
		}

		if order.Status == OrderVerified {
			if order.PaymentID != opt.PaymentID {
				return ErrOrderConsumed
			}
			// retry of a verification that already succeeded
			var current entitlement.Entitlement
			if err := tx.First(&current, "identity_email = ?", opt.IdentityEmail).Error; err != nil {
				return err
			}
			granted = &current
			replayed = true
			return nil
		}

		// conditional flip guards against two callbacks racing on the same order
		res := tx.Model(&Order{}).
			Where("id = ?", order.ID).
			Where("status = ?", OrderCreated).
			Updates(map[string]interface{}{
				"status":     OrderVerified,
				"payment_id": opt.PaymentID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrOrderConsumed
		}

		var err error
		granted, err = m.EntitlementManager.ApplyGrant(tx, entitlement.GrantOption{
			IdentityEmail: order.IdentityEmail,
			PlanName:      order.PlanName,
			QuotaTotal:    order.QuotaTotal,
			ValidityDays:  order.ValidityDays,
			PriceCharged:  order.BaseAmount,
			OrderID:       order.ID,
			PaymentID:     opt.PaymentID,
			Now:           opt.Now,
		})
		return err
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})

	if err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOrderConsumed) {
			return nil, false, err
		}
		m.Logger.Error("Unable to verify payment and grant package",
			zap.String("OrderID", opt.OrderID),
			zap.String("IdentityEmail", opt.IdentityEmail),
			zap.Error(err),
		)
		return nil, false, extErrors.Wrap(err, "Cannot verify payment")
	}

	return granted, replayed, nil
}
