package catalog

import (
	"fmt"
	"net/http"
	"time"

	"github.com/thekamyabsagar/kamyabvcffile/auth"
	"github.com/thekamyabsagar/kamyabvcffile/entitlement"
	resp "github.com/thekamyabsagar/kamyabvcffile/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	CatalogManager     *Manager
	EntitlementManager *entitlement.Manager
	Logger             *zap.Logger
}

// Service is the package catalog API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the catalog API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.CatalogManager == nil {
		return nil, fmt.Errorf("nil CatalogManager is invalid")
	}
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

// AnnotatedPlan is a catalog entry plus its relationship to the caller's
// current plan
type AnnotatedPlan struct {
	Plan
	Relationship Relationship `json:"relationship"`
}

func (s *Service) listPackages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("IdentityEmail", claims.Email))

	current, err := s.EntitlementManager.Get(ctx, claims.Email)
	if err != nil {
		logger.Error("Unable to query current entitlement",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot list packages"))
		return
	}

	currentName := ""
	currentStatus := entitlement.ComputeStatus(current, time.Now())
	if current != nil {
		currentName = current.PlanName
	}

	plans := s.CatalogManager.ListPlans()
	annotated := make([]AnnotatedPlan, 0, len(plans))
	for _, p := range plans {
		rel, err := s.CatalogManager.RelationshipOf(currentName, currentStatus, p.Name)
		if err != nil {
			logger.Error("Unable to classify plan relationship",
				zap.String("PlanName", p.Name),
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot list packages"))
			return
		}
		annotated = append(annotated, AnnotatedPlan{
			Plan:         p,
			Relationship: rel,
		})
	}

	resp.WriteResponse(w, r, annotated)
}

// Router will return the routes under catalog API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listPackages)

	return r
}
