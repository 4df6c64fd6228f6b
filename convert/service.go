package convert

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/thekamyabsagar/kamyabvcffile/auth"
	"github.com/thekamyabsagar/kamyabvcffile/entitlement"
	resp "github.com/thekamyabsagar/kamyabvcffile/response"
	"github.com/thekamyabsagar/kamyabvcffile/usage"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

const maxUploadBytes = 64 << 20

type ServiceOptions struct {
	Webhook            *Webhook
	EntitlementManager *entitlement.Manager
	Logger             *zap.Logger
}

type Service struct {
	ServiceOptions
}

func NewService(option ServiceOptions) (*Service, error) {
	if option.Webhook == nil {
		return nil, fmt.Errorf("nil Webhook is invalid")
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

// convertCards relays card images to the extraction pipeline and, only after
// the pipeline succeeds, debits the caller's contact quota. A failed
// conversion never consumes quota.
func (s *Service) convertCards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("IdentityEmail", claims.Email))

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Cannot parse upload"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	side := usage.CardSide(r.FormValue("cardType"))
	if side != usage.SingleSided && side != usage.DoubleSided {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("cardType must be either \"single\" or \"double\""))
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("At least one image is required"))
		return
	}

	cost, err := usage.ComputeCost(int64(len(headers)), side)
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	// Reject early when the quota cannot cover the upload. The debit itself
	// happens after conversion, so this is advisory only.
	current, err := s.EntitlementManager.Get(ctx, claims.Email)
	if err != nil {
		logger.Error("Unable to query entitlement",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if status := entitlement.ComputeStatus(current, time.Now()); status != entitlement.StatusActive {
		resp.WriteError(w, r, resp.ErrEntitlementInactive(string(status)))
		return
	}
	if remaining := current.Remaining(); remaining < cost {
		resp.WriteError(w, r, resp.ErrInsufficientQuota(cost, remaining))
		return
	}

	files := make([]File, 0, len(headers))
	for _, header := range headers {
		src, err := header.Open()
		if err != nil {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Cannot read uploaded file"))
			return
		}
		content, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Cannot read uploaded file"))
			return
		}
		files = append(files, File{
			Name:    header.Filename,
			Content: content,
		})
	}

	vcf, err := s.Webhook.Convert(ctx, side, files)
	if err != nil {
		logger.Error("Conversion webhook failed",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrWebhook())
		return
	}

	debited, err := s.EntitlementManager.DebitUsage(ctx, claims.Email, cost, time.Now())
	if err != nil {
		usage.WriteDebitError(w, r, logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/vcard")
	w.Header().Set("Content-Disposition", "attachment; filename=\"contacts.vcf\"")
	w.Header().Set("X-Contacts-Used", strconv.FormatInt(debited.QuotaConsumed, 10))
	w.Header().Set("X-Contacts-Remaining", strconv.FormatInt(debited.Remaining(), 10))
	w.Write(vcf)
}

// Router returns the routes for card conversion
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/", s.convertCards)

	return r
}
