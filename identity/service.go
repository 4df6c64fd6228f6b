package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thekamyabsagar/kamyabvcffile/auth"
	"github.com/thekamyabsagar/kamyabvcffile/entitlement"
	"github.com/thekamyabsagar/kamyabvcffile/payment"
	resp "github.com/thekamyabsagar/kamyabvcffile/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth               *auth.Auth
	IdentityManager    *Manager
	EntitlementManager *entitlement.Manager
	PaymentManager     *payment.Manager
	Logger             *zap.Logger
}

// Service is the identity API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the identity API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.IdentityManager == nil {
		return nil, fmt.Errorf("nil IdentityManager is invalid")
	}
	if option.EntitlementManager == nil {
		return nil, fmt.Errorf("nil EntitlementManager is invalid")
	}
	if option.PaymentManager == nil {
		return nil, fmt.Errorf("nil PaymentManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// CredentialRequest is the model of a signup or login attempt
type CredentialRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// TokenPair is returned on successful login or refresh
type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (s *Service) signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Email and password required"))
		return
	}

	logger := s.Logger.With(zap.String("IdentityEmail", NormalizeEmail(req.Email)))

	existing, err := s.IdentityManager.GetByEmail(ctx, req.Email)
	if err != nil {
		logger.Error("Unable to look up identity",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if existing != nil {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("User already exists"))
		return
	}

	hash, err := s.Auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("Unable to hash password",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	ident, err := s.IdentityManager.New(ctx, req.Email, hash)
	if err != nil {
		logger.Error("Unable to create identity",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, ident)
}

func (s *Service) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Email and password required"))
		return
	}

	logger := s.Logger.With(zap.String("IdentityEmail", NormalizeEmail(req.Email)))

	ident, err := s.IdentityManager.GetByEmail(ctx, req.Email)
	if err != nil {
		logger.Error("Unable to look up identity",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if ident == nil || !s.Auth.VerifyPassword(ident.PasswordHash, req.Password) {
		resp.WriteError(w, r, resp.ErrUnauthorized().AddMessages("Invalid email or password"))
		return
	}

	token, err := s.Auth.CreateTokenFromClaims(auth.Claims{
		Email:           ident.Email,
		Role:            ident.Role,
		ProfileComplete: ident.ProfileComplete,
	})
	if err != nil {
		logger.Error("Unable to generate token",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	refresh, err := s.Auth.CreateRefreshToken(ctx, ident.Email)
	if err != nil {
		logger.Error("Unable to generate refresh token",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, TokenPair{
		Token:        token,
		RefreshToken: refresh,
	})
}

// RefreshRequest carries a previously issued refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (s *Service) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Refresh token required"))
		return
	}

	email, err := s.Auth.VerifyRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		s.Logger.Error("Unable to verify refresh token",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if len(email) == 0 {
		resp.WriteError(w, r, resp.ErrUnauthorized().AddMessages("Refresh token is invalid or revoked"))
		return
	}

	ident, err := s.IdentityManager.GetByEmail(ctx, email)
	if err != nil || ident == nil {
		resp.WriteError(w, r, resp.ErrUnauthorized())
		return
	}

	token, err := s.Auth.CreateTokenFromClaims(auth.Claims{
		Email:           ident.Email,
		Role:            ident.Role,
		ProfileComplete: ident.ProfileComplete,
	})
	if err != nil {
		s.Logger.Error("Unable to generate token",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, TokenPair{
		Token:        token,
		RefreshToken: req.RefreshToken,
	})
}

func (s *Service) logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := s.Auth.RevokeRefreshToken(r.Context(), req.RefreshToken); err != nil {
		s.Logger.Error("Unable to revoke refresh token",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	ident, err := s.IdentityManager.GetByEmail(ctx, claims.Email)
	if err != nil {
		s.Logger.Error("Unable to fetch profile",
			zap.String("IdentityEmail", claims.Email),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if ident == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("User not found"))
		return
	}

	resp.WriteResponse(w, r, ident)
}

// ProfileRequest is the model of the mandatory profile completion form
type ProfileRequest struct {
	Username    string `json:"username" validate:"required,alphanum,min=3,max=20"`
	Country     string `json:"country" validate:"required"`
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	CompanyName string `json:"companyName" validate:"required"`
}

func (s *Service) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("IdentityEmail", claims.Email))

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("All fields are required: username, country, phone number, and company name"))
		return
	}

	taken, err := s.IdentityManager.UsernameTaken(ctx, req.Username, claims.Email)
	if err != nil {
		logger.Error("Unable to check username",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if taken {
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("Username already taken"))
		return
	}

	ident, err := s.IdentityManager.UpdateProfile(ctx, claims.Email, ProfileUpdate{
		Username:    req.Username,
		Country:     req.Country,
		PhoneNumber: req.PhoneNumber,
		CompanyName: req.CompanyName,
	})
	if errors.Is(err, ErrNoSuchIdentity) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("User not found"))
		return
	}
	if err != nil {
		logger.Error("Unable to update profile",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	resp.WriteResponse(w, r, ident)
}

// adminOnly gates a route on the caller's stored role, not just the token,
// so a demotion takes effect before the token expires
func (s *Service) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		claims := ctx.Value(auth.Context).(*auth.Claims)

		ident, err := s.IdentityManager.GetByEmail(ctx, claims.Email)
		if err != nil {
			resp.WriteError(w, r, resp.ErrUnexpected())
			return
		}
		if ident == nil || ident.Role != RoleAdmin {
			resp.WriteError(w, r, resp.ErrForbidden())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminIdentity is one row of the admin dashboard listing
type AdminIdentity struct {
	Email           string             `json:"email"`
	Username        string             `json:"username,omitempty"`
	Country         string             `json:"country,omitempty"`
	PhoneNumber     string             `json:"phoneNumber,omitempty"`
	CompanyName     string             `json:"companyName,omitempty"`
	Role            string             `json:"role"`
	ProfileComplete bool               `json:"isProfileComplete"`
	CreatedAt       time.Time          `json:"createdAt"`
	PlanName        string             `json:"packageName,omitempty"`
	ContactsUsed    int64              `json:"contactsUsed"`
	ContactLimit    int64              `json:"contactLimit"`
	PackageStatus   entitlement.Status `json:"packageStatus"`
	ExpiryDate      *time.Time         `json:"expiryDate,omitempty"`
}

// AdminListing is the dashboard payload: per-identity rows plus aggregates
type AdminListing struct {
	Identities        []AdminIdentity `json:"identities"`
	TotalIdentities   int             `json:"totalUsers"`
	TotalAdmins       int             `json:"totalAdmins"`
	ActivePackages    int             `json:"activePackages"`
	TotalContactsUsed int64           `json:"totalContactsUsed"`
}

func (s *Service) adminList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idents, err := s.IdentityManager.List(ctx)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot list users"))
		return
	}
	ents, err := s.EntitlementManager.ListAll(ctx)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot list users"))
		return
	}
	entByEmail := make(map[string]*entitlement.Entitlement, len(ents))
	for i := range ents {
		entByEmail[ents[i].IdentityEmail] = &ents[i]
	}

	now := time.Now()
	listing := AdminListing{
		Identities: make([]AdminIdentity, 0, len(idents)),
	}
	for _, ident := range idents {
		row := AdminIdentity{
			Email:           ident.Email,
			Username:        ident.Username,
			Country:         ident.Country,
			PhoneNumber:     ident.PhoneNumber,
			CompanyName:     ident.CompanyName,
			Role:            ident.Role,
			ProfileComplete: ident.ProfileComplete,
			CreatedAt:       ident.CreatedAt,
			PackageStatus:   entitlement.StatusNoPackage,
		}
		if ent := entByEmail[ident.Email]; ent != nil {
			row.PlanName = ent.PlanName
			row.ContactsUsed = ent.QuotaConsumed
			row.ContactLimit = ent.QuotaTotal
			row.PackageStatus = entitlement.ComputeStatus(ent, now)
			row.ExpiryDate = &ent.ExpiresAt
			listing.TotalContactsUsed += ent.QuotaConsumed
		}
		if ident.Role == RoleAdmin {
			listing.TotalAdmins++
		}
		if row.PackageStatus == entitlement.StatusActive {
			listing.ActivePackages++
		}
		listing.Identities = append(listing.Identities, row)
	}
	listing.TotalIdentities = len(idents)

	resp.WriteResponse(w, r, listing)
}

func (s *Service) adminDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := NormalizeEmail(chi.URLParam(r, "email"))

	logger := s.Logger.With(zap.String("IdentityEmail", email))

	err := s.IdentityManager.Delete(ctx, email,
		s.EntitlementManager.PurgeIdentity(email),
		s.PaymentManager.PurgeIdentity(email),
	)
	if errors.Is(err, ErrNoSuchIdentity) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("User not found"))
		return
	}
	if err != nil {
		logger.Error("Unable to delete identity",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot delete user"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Router will return the routes under identity API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/", s.signup)
	r.Post("/login", s.login)
	r.Post("/refresh", s.refresh)
	r.Post("/logout", s.logout)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware())
		r.Use(s.Auth.ClaimCheck())
		r.Get("/profile", s.getProfile)
		r.Put("/profile", s.updateProfile)
	})

	return r
}

// AdminRouter will return the admin-only routes
func (s *Service) AdminRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.Auth.Middleware())
	r.Use(s.Auth.ClaimCheck())
	r.Use(s.adminOnly)

	r.Get("/identities", s.adminList)
	r.Delete("/identities/{email}", s.adminDelete)

	return r
}
