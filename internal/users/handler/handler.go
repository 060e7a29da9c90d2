// Package handler exposes login, the caller's own profile and the superadmin
// user administration endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "github.com/Fazzolix/matningsabo/pkg/domain-errors"

	"github.com/Fazzolix/matningsabo/internal/authz"
	"github.com/Fazzolix/matningsabo/internal/identity"
	"github.com/Fazzolix/matningsabo/internal/platform/middleware"
	"github.com/Fazzolix/matningsabo/internal/ratelimit"
	"github.com/Fazzolix/matningsabo/internal/users"
	"github.com/Fazzolix/matningsabo/pkg/platform/httputil"
)

type Middlewares struct {
	RequireAuth       func(http.Handler) http.Handler
	RequireSuperadmin func(http.Handler) http.Handler
	Limits            *ratelimit.Middleware
}

type Handler struct {
	logger   *slog.Logger
	store    *users.Store
	verifier identity.Verifier
	sessions *middleware.Sessions
	resolver *authz.Resolver
	mw       Middlewares
}

func New(
	store *users.Store,
	verifier identity.Verifier,
	sessions *middleware.Sessions,
	resolver *authz.Resolver,
	logger *slog.Logger,
	mw Middlewares) *Handler {
	return &Handler{
		logger:   logger,
		store:    store,
		verifier: verifier,
		sessions: sessions,
		resolver: resolver,
		mw:       mw,
	}
}

func (h *Handler) Register(r chi.Router) {
	login := h.mw.Limits.Limit(500, time.Minute)
	r.With(login).Get("/api/azure-user", h.handleLogin)
	r.With(login).Post("/api/azure-user", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAuth)
		r.With(h.mw.Limits.Limit(1000, time.Minute)).Get("/api/me", h.handleMe)

		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireSuperadmin)
			r.With(h.mw.Limits.Limit(60, time.Minute)).Get("/api/admin/users", h.handleListUsers)
			r.With(h.mw.Limits.Limit(30, time.Minute)).Put("/api/admin/users/{userID}/role", h.handleSetRole)
		})
	})
}

// handleLogin exchanges a provider bearer token for a session cookie. The
// user record is upserted so the admin screen knows about everyone who has
// logged in, but a failing upsert does not block the login.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "No authorization token provided"})
		return
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")

	profile, err := h.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
			return
		}
		h.logger.ErrorContext(ctx, "identity provider lookup failed", slog.Any("error", err))
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, ""))
		return
	}

	id := middleware.Identity{
		SubjectID:   profile.SubjectID,
		Email:       strings.ToLower(strings.TrimSpace(profile.Email)),
		DisplayName: profile.DisplayName,
	}
	if err := h.sessions.Issue(w, id); err != nil {
		h.logger.ErrorContext(ctx, "issuing session failed", slog.Any("error", err))
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, ""))
		return
	}

	if err := h.store.Upsert(ctx, id.SubjectID, id.Email, profile.DisplayName); err != nil {
		h.logger.ErrorContext(ctx, "user upsert on login failed",
			slog.String("subject_id", id.SubjectID), slog.Any("error", err))
	}

	h.logger.InfoContext(ctx, "user logged in", slog.String("subject_id", id.SubjectID))
	name := profile.GivenName
	if name == "" {
		name = profile.DisplayName
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"name":      name,
		"full_name": profile.DisplayName,
		"email":     id.Email,
		"oid":       id.SubjectID,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := middleware.GetIdentity(ctx)

	roles, err := h.resolver.ResolveRoles(ctx, id.SubjectID, id.Email)
	if err != nil {
		h.logger.ErrorContext(ctx, "resolving roles failed",
			slog.String("subject_id", id.SubjectID), slog.Any("error", err))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"email":         strings.ToLower(strings.TrimSpace(id.Email)),
		"display_name":  id.DisplayName,
		"is_admin":      roles.IsAdmin,
		"is_superadmin": roles.IsSuperadmin,
	})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit := 200
	if raw := q.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	list, err := h.store.List(ctx, q.Get("q"), limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing users failed", slog.Any("error", err))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

type setRoleRequest struct {
	Admin *bool `json:"admin"`
}

func (h *Handler) handleSetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := middleware.GetIdentity(ctx)
	targetID := chi.URLParam(r, "userID")

	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Admin == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, `Fältet "admin" måste vara boolean`))
		return
	}

	user, err := h.store.SetAdminRole(ctx, targetID, *req.Admin, actor.SubjectID, actor.Email)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(ctx, "setting role failed",
				slog.String("target_id", targetID), slog.Any("error", err))
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"id": user.ID, "roles": user.Roles})
}
