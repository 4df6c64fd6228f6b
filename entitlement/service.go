package entitlement

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thekamyabsagar/kamyabvcffile/auth"
	resp "github.com/thekamyabsagar/kamyabvcffile/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	EntitlementManager *Manager
	Logger             *zap.Logger
}

// Service is the entitlement API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the entitlement API router
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

func (s *Service) activateTrial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("IdentityEmail", claims.Email))

	ent, err := s.EntitlementManager.GrantTrial(ctx, claims.Email, time.Now())
	if errors.Is(err, ErrPaidPlanActive) {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("An active paid plan already exists"))
		return
	}
	if err != nil {
		logger.Error("Unable to activate free trial",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to activate free trial"))
		return
	}

	resp.WriteResponse(w, r, struct {
		Granted bool         `json:"granted"`
		Package *Entitlement `json:"package"`
	}{
		Granted: true,
		Package: ent,
	})
}

// Router will return the routes under entitlement API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/trial", s.activateTrial)

	return r
}
