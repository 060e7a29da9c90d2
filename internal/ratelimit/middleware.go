package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Fazzolix/matningsabo/internal/platform/metrics"
	"github.com/Fazzolix/matningsabo/internal/platform/middleware"
	"github.com/Fazzolix/matningsabo/pkg/platform/httputil"
)

// Middleware applies per-route limits keyed on the client address.
type Middleware struct {
	limiter  *Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns rate limiting off entirely (for tests/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func NewMiddleware(limiter *Limiter, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Middleware {
	mw := &Middleware{limiter: limiter, logger: logger, metrics: m}
	for _, opt := range opts {
		opt(mw)
	}
	if mw.disabled {
		logger.Info("rate limiting disabled")
	}
	return mw
}

// Limit admits at most max requests per client address within the window.
func (m *Middleware) Limit(max int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}
			// Budgets are per route, so the key includes the matched
			// route pattern and not just the caller.
			key := middleware.GetClientIP(r.Context()) + " " + routePattern(r)
			if !m.limiter.Allow(key, max, window) {
				m.metrics.RateLimitedRequests.Inc()
				m.logger.Warn("rate limit exceeded",
					"request_id", middleware.GetRequestID(r.Context()),
					"path", r.URL.Path,
				)
				httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error": "För många förfrågningar. Vänta en stund och försök igen.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return r.Method + " " + pattern
		}
	}
	return r.Method + " " + r.URL.Path
}
