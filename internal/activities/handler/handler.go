// Package handler exposes the activity catalogue over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "github.com/Fazzolix/matningsabo/pkg/domain-errors"

	"github.com/Fazzolix/matningsabo/internal/activities"
	"github.com/Fazzolix/matningsabo/internal/platform/metrics"
	"github.com/Fazzolix/matningsabo/internal/ratelimit"
	"github.com/Fazzolix/matningsabo/internal/validate"
	"github.com/Fazzolix/matningsabo/pkg/platform/httputil"
)

type Middlewares struct {
	RequireAuth  func(http.Handler) http.Handler
	RequireAdmin func(http.Handler) http.Handler
	Limits       *ratelimit.Middleware
}

type Handler struct {
	logger  *slog.Logger
	store   *activities.Store
	metrics *metrics.Metrics
	mw      Middlewares
}

func New(store *activities.Store, logger *slog.Logger, m *metrics.Metrics, mw Middlewares) *Handler {
	return &Handler{logger: logger, store: store, metrics: m, mw: mw}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/api/activities", func(r chi.Router) {
		r.Use(h.mw.RequireAuth)
		r.With(h.mw.Limits.Limit(1000, time.Minute)).Get("/", h.handleList)

		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireAdmin)
			r.With(h.mw.Limits.Limit(100, time.Minute)).Post("/", h.handleCreate)
			r.With(h.mw.Limits.Limit(60, time.Minute)).Put("/{activityID}", h.handleRename)
			r.With(h.mw.Limits.Limit(60, time.Minute)).Delete("/{activityID}", h.handleDeactivate)
		})
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListActive(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listing activities failed", slog.Any("error", err))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

type activityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ingen data mottogs."))
		return
	}
	act, err := h.store.Create(r.Context(), req.Name, req.Description, req.Category, true)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(r.Context(), "creating activity failed", slog.Any("error", err))
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "id": act.ID})
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	activityID := chi.URLParam(r, "activityID")

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ingen data mottogs."))
		return
	}
	if ok, msg := validate.ActivityName(req.Name); !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, msg))
		return
	}
	newName := validate.Sanitize(strings.TrimSpace(req.Name), 100)

	act, err := h.store.Get(r.Context(), activityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !act.Active {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "Aktiviteten hittades inte"))
		return
	}

	// The new name must stay unique, but renaming to the current name is
	// allowed.
	if existing, err := h.store.FindByName(r.Context(), newName); err == nil && existing.ID != activityID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "Aktivitet med det namnet finns redan"))
		return
	} else if err != nil && !dErrors.Is(err, dErrors.CodeNotFound) {
		httputil.WriteError(w, err)
		return
	}

	failed, err := h.store.Rename(r.Context(), activityID, newName, act.Name)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "renaming activity failed",
			slog.String("activity_id", activityID), slog.Any("error", err))
		httputil.WriteError(w, err)
		return
	}
	if failed > 0 {
		h.metrics.RenameFanoutErrors.Add(float64(failed))
		h.logger.WarnContext(r.Context(), "some visits kept the old activity name",
			slog.String("activity_id", activityID),
			slog.Int("failed", failed))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Deactivate(r.Context(), chi.URLParam(r, "activityID")); err != nil {
		if dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(r.Context(), "deactivating activity failed", slog.Any("error", err))
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
