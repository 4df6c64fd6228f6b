package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/thekamyabsagar/kamyabvcffile/entitlement"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testKeySecret = "test_secret"

func testPaymentManager(t *testing.T) *Manager {
	t.Helper()

	dbConn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := dbConn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	zapLogger := zaptest.NewLogger(t)

	entitlementManager, err := entitlement.NewManager(entitlement.ManagerOptions{
		DB:     dbConn,
		Logger: zapLogger,
	})
	require.NoError(t, err)

	manager, err := NewManager(ManagerOptions{
		RazorpayClient:     razorpay.NewClient("test_key", testKeySecret),
		EntitlementManager: entitlementManager,
		DB:                 dbConn,
		Logger:             zapLogger,
		KeyID:              "test_key",
		KeySecret:          testKeySecret,
	})
	require.NoError(t, err)

	return manager
}

func sign(t *testing.T, orderID, paymentID string) string {
	t.Helper()

	mac := hmac.New(sha256.New, []byte(testKeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func seedOrder(t *testing.T, manager *Manager, id, email string) {
	t.Helper()

	require.NoError(t, manager.DB.Create(&Order{
		ID:            id,
		IdentityEmail: email,
		PlanName:      "Standard",
		QuotaTotal:    200,
		ValidityDays:  180,
		BaseAmount:    2,
		TaxAmount:     36,
		Amount:        236,
		Currency:      Currency,
		Receipt:       "receipt_test",
		Status:        OrderCreated,
	}).Error)
}

func TestVerifySignature(t *testing.T) {
	manager := testPaymentManager(t)

	valid := sign(t, "order_1", "pay_1")
	assert.True(t, manager.VerifySignature("order_1", "pay_1", valid))

	// any single altered character must fail
	altered := []byte(valid)
	if altered[0] == 'a' {
		altered[0] = 'b'
	} else {
		altered[0] = 'a'
	}
	assert.False(t, manager.VerifySignature("order_1", "pay_1", string(altered)))

	assert.False(t, manager.VerifySignature("order_1", "pay_2", valid))
	assert.False(t, manager.VerifySignature("order_1", "pay_1", "not-even-hex"))
	assert.False(t, manager.VerifySignature("order_1", "pay_1", ""))
}

func TestTotalWithTax(t *testing.T) {
	assert.Equal(t, int64(118), TotalWithTax(1))
	assert.Equal(t, int64(236), TotalWithTax(2))
	assert.Equal(t, int64(354), TotalWithTax(3))
}

func TestVerifyAndGrant(t *testing.T) {
	manager := testPaymentManager(t)
	ctx := context.Background()
	now := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

	seedOrder(t, manager, "order_1", "alice@example.com")

	granted, replayed, err := manager.VerifyAndGrant(ctx, VerifyOption{
		OrderID:       "order_1",
		PaymentID:     "pay_1",
		Signature:     sign(t, "order_1", "pay_1"),
		IdentityEmail: "alice@example.com",
		Now:           now,
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "Standard", granted.PlanName)
	assert.Equal(t, int64(200), granted.QuotaTotal)
	assert.Equal(t, int64(0), granted.QuotaConsumed)
	assert.Equal(t, now.AddDate(0, 0, 180), granted.ExpiresAt)

	var order Order
	require.NoError(t, manager.DB.First(&order, "id = ?", "order_1").Error)
	assert.Equal(t, OrderVerified, order.Status)
	assert.Equal(t, "pay_1", order.PaymentID)

	history, err := manager.EntitlementManager.History(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(2), history[0].PriceCharged)
}

func TestVerifyAndGrantReplaySamePayment(t *testing.T) {
	manager := testPaymentManager(t)
	ctx := context.Background()
	now := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

	seedOrder(t, manager, "order_1", "alice@example.com")

	opt := VerifyOption{
		OrderID:       "order_1",
		PaymentID:     "pay_1",
		Signature:     sign(t, "order_1", "pay_1"),
		IdentityEmail: "alice@example.com",
		Now:           now,
	}

	_, _, err := manager.VerifyAndGrant(ctx, opt)
	require.NoError(t, err)

	granted, replayed, err := manager.VerifyAndGrant(ctx, opt)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, "Standard", granted.PlanName)

	// the replay must not extend or duplicate the grant
	history, err := manager.EntitlementManager.History(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestVerifyAndGrantRejectsReusedOrder(t *testing.T) {
	manager := testPaymentManager(t)
	ctx := context.Background()
	now := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

	seedOrder(t, manager, "order_1", "alice@example.com")

	_, _, err := manager.VerifyAndGrant(ctx, VerifyOption{
		OrderID:       "order_1",
		PaymentID:     "pay_1",
		Signature:     sign(t, "order_1", "pay_1"),
		IdentityEmail: "alice@example.com",
		Now:           now,
	})
	require.NoError(t, err)

	_, _, err = manager.VerifyAndGrant(ctx, VerifyOption{
		OrderID:       "order_1",
		PaymentID:     "pay_2",
		Signature:     sign(t, "order_1", "pay_2"),
		IdentityEmail: "alice@example.com",
		Now:           now,
	})
	assert.ErrorIs(t, err, ErrOrderConsumed)
}

func TestVerifyAndGrantInvalidSignature(t *testing.T) {
	manager := testPaymentManager(t)

	seedOrder(t, manager, "order_1", "alice@example.com")

	_, _, err := manager.VerifyAndGrant(context.Background(), VerifyOption{
		OrderID:       "order_1",
		PaymentID:     "pay_1",
		Signature:     sign(t, "order_1", "pay_other"),
		IdentityEmail: "alice@example.com",
		Now:           time.Now(),
	})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// nothing may change on a failed verification
	var order Order
	require.NoError(t, manager.DB.First(&order, "id = ?", "order_1").Error)
	assert.Equal(t, OrderCreated, order.Status)
}

func TestVerifyAndGrantUnknownOrder(t *testing.T) {
	manager := testPaymentManager(t)

	_, _, err := manager.VerifyAndGrant(context.Background(), VerifyOption{
		OrderID:       "order_missing",
		PaymentID:     "pay_1",
		Signature:     sign(t, "order_missing", "pay_1"),
		IdentityEmail: "alice@example.com",
		Now:           time.Now(),
	})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestVerifyAndGrantWrongIdentity(t *testing.T) {
	manager := testPaymentManager(t)

	seedOrder(t, manager, "order_1", "alice@example.com")

	_, _, err := manager.VerifyAndGrant(context.Background(), VerifyOption{
		OrderID:       "order_1",
		PaymentID:     "pay_1",
		Signature:     sign(t, "order_1", "pay_1"),
		IdentityEmail: "mallory@example.com",
		Now:           time.Now(),
	})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
