package identity

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thekamyabsagar/kamyabvcffile/auth"
	"github.com/thekamyabsagar/kamyabvcffile/entitlement"
	"github.com/thekamyabsagar/kamyabvcffile/payment"

	"github.com/go-redis/redis/v7"
	razorpay "github.com/razorpay/razorpay-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testService(t *testing.T) *Service {
	t.Helper()

	dbConn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := dbConn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	zapLogger := zaptest.NewLogger(t)

	// signup and profile routes never touch Redis, the client just satisfies
	// construction
	authManager, err := auth.New(auth.Options{
		Redis:         redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}),
		Logger:        zapLogger,
		JWTSigningKey: "test-signing-key",
		Environment:   auth.EnvDevelopment,
	})
	require.NoError(t, err)

	identityManager, err := NewManager(zapLogger, dbConn)
	require.NoError(t, err)

	entitlementManager, err := entitlement.NewManager(entitlement.ManagerOptions{
		DB:     dbConn,
		Logger: zapLogger,
	})
	require.NoError(t, err)

	paymentManager, err := payment.NewManager(payment.ManagerOptions{
		RazorpayClient:     razorpay.NewClient("test_key", "test_secret"),
		EntitlementManager: entitlementManager,
		DB:                 dbConn,
		Logger:             zapLogger,
		KeyID:              "test_key",
		KeySecret:          "test_secret",
	})
	require.NoError(t, err)

	service, err := NewService(ServiceOptions{
		Auth:               authManager,
		IdentityManager:    identityManager,
		EntitlementManager: entitlementManager,
		PaymentManager:     paymentManager,
		Logger:             zapLogger,
	})
	require.NoError(t, err)

	return service
}

func TestSignupReturnsEnvelope(t *testing.T) {
	service := testService(t)
	router := service.Router()

	body, err := json.Marshal(CredentialRequest{
		Email:    "Alice@Example.com",
		Password: "hunter22",
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var envelope struct {
		Result   Identity `json:"result"`
		Messages []string `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "alice@example.com", envelope.Result.Email)
	assert.Equal(t, RoleUser, envelope.Result.Role)
	assert.NotNil(t, envelope.Messages)
}

func TestSignupDuplicateConflict(t *testing.T) {
	service := testService(t)
	router := service.Router()

	body, err := json.Marshal(CredentialRequest{
		Email:    "alice@example.com",
		Password: "hunter22",
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	assert.Equal(t, http.StatusConflict, w.Code)
}
