package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thekamyabsagar/kamyabvcffile/auth"
	"github.com/thekamyabsagar/kamyabvcffile/catalog"
	"github.com/thekamyabsagar/kamyabvcffile/entitlement"
	resp "github.com/thekamyabsagar/kamyabvcffile/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	PaymentManager *Manager
	CatalogManager *catalog.Manager
	Logger         *zap.Logger
}

// Service is the payment API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the payment API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.PaymentManager == nil {
		return nil, fmt.Errorf("nil PaymentManager is invalid")
	}
	if option.CatalogManager == nil {
		return nil, fmt.Errorf("nil CatalogManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// CreateOrderRequest is the model of a purchase intent
type CreateOrderRequest struct {
	PlanName   string  `json:"packageName" validate:"required"`
	BaseAmount float64 `json:"amount" validate:"required,gt=0"`
}

// CreateOrderResult carries what the checkout widget needs
type CreateOrderResult struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
}

func (s *Service) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("IdentityEmail", claims.Email))

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Amount and package name are required"))
		return
	}

	plan, ok := s.CatalogManager.FindByName(req.PlanName)
	if !ok {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Unknown package name"))
		return
	}
	// the catalog price is authoritative, a client-side price is only accepted
	// when it agrees
	if req.BaseAmount != float64(plan.Price) {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Amount does not match the package price"))
		return
	}

	order, err := s.PaymentManager.CreateOrder(ctx, CreateOrderOption{
		IdentityEmail: claims.Email,
		Plan:          plan,
	})
	if err != nil {
		var provider *ProviderError
		if errors.As(err, &provider) {
			logger.Error("Payment gateway rejected order creation",
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrPaymentProvider())
			return
		}
		logger.Error("Unable to create payment order",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Failed to create payment order"))
		return
	}

	resp.WriteResponse(w, r, CreateOrderResult{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		KeyID:    s.PaymentManager.KeyID,
	})
}

// VerifyRequest is the signed checkout callback relayed by the client. The
// field names follow Razorpay's handler payload. PackageDetails is advisory:
// the locally stored order echo is authoritative for what gets granted.
type VerifyRequest struct {
	OrderID        string                 `json:"razorpay_order_id" validate:"required"`
	PaymentID      string                 `json:"razorpay_payment_id" validate:"required"`
	Signature      string                 `json:"razorpay_signature" validate:"required"`
	PackageDetails map[string]interface{} `json:"packageDetails,omitempty"`
}

func (s *Service) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("IdentityEmail", claims.Email))

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Order id, payment id, and signature are required"))
		return
	}

	logger = logger.With(zap.String("OrderID", req.OrderID))

	granted, replayed, err := s.PaymentManager.VerifyAndGrant(ctx, VerifyOption{
		OrderID:       req.OrderID,
		PaymentID:     req.PaymentID,
		Signature:     req.Signature,
		IdentityEmail: claims.Email,
		Now:           time.Now(),
	})
	switch {
	case errors.Is(err, ErrInvalidSignature):
		// security event: someone is presenting a forged or tampered callback
		logger.Warn("Payment callback failed signature verification",
			zap.String("PaymentID", req.PaymentID),
		)
		resp.WriteError(w, r, resp.ErrInvalidSignature())
		return
	case errors.Is(err, ErrOrderNotFound):
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No such payment order"))
		return
	case errors.Is(err, ErrOrderConsumed):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("Payment order already consumed"))
		return
	case err != nil:
		logger.Error("Unable to verify payment",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Payment verification failed"))
		return
	}

	if replayed {
		logger.Info("Duplicate payment verification returned prior grant")
	}

	resp.WriteResponse(w, r, struct {
		Granted bool                     `json:"granted"`
		Package *entitlement.Entitlement `json:"package"`
	}{
		Granted: true,
		Package: granted,
	})
}

// Router will return the routes under payment API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/order", s.createOrder)
	r.Post("/verify", s.verifyPayment)

	return r
}
