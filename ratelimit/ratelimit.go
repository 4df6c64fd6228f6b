package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	resp "github.com/thekamyabsagar/kamyabvcffile/response"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// New returns a chi-compatible middleware limiting requests per client IP.
// The rate uses limiter's formatted notation, for example "20-M" for twenty
// requests per minute.
func New(logger *zap.Logger, formatted string) (func(http.Handler) http.Handler, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", formatted, err)
	}

	store := memory.NewStore()
	instance := limiter.New(store, rate)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lCtx, err := instance.Get(r.Context(), instance.GetIPKey(r))
			if err != nil {
				logger.Error("Unable to query rate limit store",
					zap.Error(err),
				)
				resp.WriteError(w, r, resp.ErrUnexpected())
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(lCtx.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(lCtx.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(lCtx.Reset, 10))

			if lCtx.Reached {
				resp.WriteError(w, r, resp.ErrTooManyRequests())
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}
