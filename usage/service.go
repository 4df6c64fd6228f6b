package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thekamyabsagar/kamyabvcffile/auth"
	"github.com/thekamyabsagar/kamyabvcffile/entitlement"
	resp "github.com/thekamyabsagar/kamyabvcffile/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	EntitlementManager *entitlement.Manager
	Logger             *zap.Logger
}

// Service is the usage accounting API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the usage API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.EntitlementManager == nil {
		return nil, fmt.Errorf("nil EntitlementManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// Report is the usage summary returned to the client
type Report struct {
	Status            entitlement.Status `json:"status"`
	PlanName          string             `json:"packageName,omitempty"`
	ContactsUsed      int64              `json:"contactsUsed"`
	ContactLimit      int64              `json:"contactLimit"`
	ContactsRemaining int64              `json:"contactsRemaining"`
	ExpiryDate        *time.Time         `json:"expiryDate,omitempty"`
}

func (s *Service) getUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("IdentityEmail", claims.Email))

	ent, err := s.EntitlementManager.Get(ctx, claims.Email)
	if err != nil {
		logger.Error("Unable to query entitlement",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get contact usage"))
		return
	}

	report := Report{
		Status: entitlement.ComputeStatus(ent, time.Now()),
	}
	if ent != nil {
		report.PlanName = ent.PlanName
		report.ContactsUsed = ent.QuotaConsumed
		report.ContactLimit = ent.QuotaTotal
		report.ContactsRemaining = ent.Remaining()
		report.ExpiryDate = &ent.ExpiresAt
	}

	resp.WriteResponse(w, r, report)
}

// DebitRequest is the model of a usage debit for a completed conversion
type DebitRequest struct {
	ImageCount int64  `json:"imageCount" validate:"required,gt=0"`
	CardType   string `json:"cardType" validate:"required,oneof=single double"`
}

// DebitResult reports the entitlement counters after a successful debit
type DebitResult struct {
	ContactsAdded     int64 `json:"contactsAdded"`
	ContactsUsed      int64 `json:"contactsUsed"`
	ContactLimit      int64 `json:"contactLimit"`
	ContactsRemaining int64 `json:"contactsRemaining"`
}

func (s *Service) debitUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("IdentityEmail", claims.Email))

	var req DebitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Image count and card type are required"))
		return
	}

	cost, err := ComputeCost(req.ImageCount, CardSide(req.CardType))
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	ent, err := s.EntitlementManager.DebitUsage(ctx, claims.Email, cost, time.Now())
	if err != nil {
		WriteDebitError(w, r, logger, err)
		return
	}

	resp.WriteResponse(w, r, DebitResult{
		ContactsAdded:     cost,
		ContactsUsed:      ent.QuotaConsumed,
		ContactLimit:      ent.QuotaTotal,
		ContactsRemaining: ent.Remaining(),
	})
}

// WriteDebitError maps entitlement debit failures onto the response taxonomy.
// Shared with the convert relay.
func WriteDebitError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var inactive *entitlement.InactiveError
	var insufficient *entitlement.InsufficientQuotaError
	switch {
	case errors.Is(err, entitlement.ErrNonPositiveCost):
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
	case errors.As(err, &inactive):
		resp.WriteError(w, r, resp.ErrEntitlementInactive(string(inactive.Reason)))
	case errors.As(err, &insufficient):
		resp.WriteError(w, r, resp.ErrInsufficientQuota(insufficient.Needed, insufficient.Remaining))
	default:
		logger.Error("Unable to debit contact usage",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Failed to update contact usage"))
	}
}

// Router will return the routes under usage API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.getUsage)
	r.Post("/", s.debitUsage)

	return r
}
