// Package httpapi assembles the middleware chain and mounts every feature
// handler on one router.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Fazzolix/matningsabo/internal/activities"
	activitiesHandler "github.com/Fazzolix/matningsabo/internal/activities/handler"
	"github.com/Fazzolix/matningsabo/internal/audit"
	"github.com/Fazzolix/matningsabo/internal/authz"
	"github.com/Fazzolix/matningsabo/internal/companions"
	companionsHandler "github.com/Fazzolix/matningsabo/internal/companions/handler"
	"github.com/Fazzolix/matningsabo/internal/homes"
	homesHandler "github.com/Fazzolix/matningsabo/internal/homes/handler"
	"github.com/Fazzolix/matningsabo/internal/identity"
	"github.com/Fazzolix/matningsabo/internal/platform/metrics"
	"github.com/Fazzolix/matningsabo/internal/platform/middleware"
	"github.com/Fazzolix/matningsabo/internal/ratelimit"
	"github.com/Fazzolix/matningsabo/internal/users"
	usersHandler "github.com/Fazzolix/matningsabo/internal/users/handler"
	"github.com/Fazzolix/matningsabo/internal/visits"
	visitsHandler "github.com/Fazzolix/matningsabo/internal/visits/handler"
	"github.com/Fazzolix/matningsabo/pkg/platform/httputil"
)

// Deps carries everything the router needs. All fields are required.
type Deps struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Sessions *middleware.Sessions
	Limits   *ratelimit.Middleware
	Resolver *authz.Resolver
	Verifier identity.Verifier
	Auditor  *audit.Recorder

	Homes      *homes.Store
	Activities *activities.Store
	Companions *companions.Store
	Visits     *visits.Store
	Users      *users.Store
}

// New builds the full router.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ClientMetadata)

	r.With(d.Limits.Limit(1000, time.Minute)).Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	requireAuth := middleware.RequireAuth(d.Sessions, d.Logger)

	usersHandler.New(d.Users, d.Verifier, d.Sessions, d.Resolver, d.Logger, usersHandler.Middlewares{
		RequireAuth:       requireAuth,
		RequireSuperadmin: d.Resolver.RequireSuperadmin,
		Limits:            d.Limits,
	}).Register(r)

	homesHandler.New(d.Homes, d.Logger, homesHandler.Middlewares{
		RequireAuth:  requireAuth,
		RequireAdmin: d.Resolver.RequireAdmin,
		Limits:       d.Limits,
	}).Register(r)

	activitiesHandler.New(d.Activities, d.Logger, d.Metrics, activitiesHandler.Middlewares{
		RequireAuth:  requireAuth,
		RequireAdmin: d.Resolver.RequireAdmin,
		Limits:       d.Limits,
	}).Register(r)

	companionsHandler.New(d.Companions, d.Logger, companionsHandler.Middlewares{
		RequireAuth:  requireAuth,
		RequireAdmin: d.Resolver.RequireAdmin,
		Limits:       d.Limits,
	}).Register(r)

	visitsHandler.New(d.Visits, d.Homes, d.Activities, d.Auditor, d.Logger, d.Metrics, visitsHandler.Middlewares{
		RequireAuth: requireAuth,
		Limits:      d.Limits,
	}).Register(r)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Endpoint hittades inte"})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
