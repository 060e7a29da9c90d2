// Package handler exposes the companion catalogue over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "github.com/Fazzolix/matningsabo/pkg/domain-errors"

	"github.com/Fazzolix/matningsabo/internal/companions"
	"github.com/Fazzolix/matningsabo/internal/ratelimit"
	"github.com/Fazzolix/matningsabo/pkg/platform/httputil"
)

type Middlewares struct {
	RequireAuth  func(http.Handler) http.Handler
	RequireAdmin func(http.Handler) http.Handler
	Limits       *ratelimit.Middleware
}

type Handler struct {
	logger *slog.Logger
	store  *companions.Store
	mw     Middlewares
}

func New(store *companions.Store, logger *slog.Logger, mw Middlewares) *Handler {
	return &Handler{logger: logger, store: store, mw: mw}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/api/companions", func(r chi.Router) {
		r.Use(h.mw.RequireAuth)
		r.With(h.mw.Limits.Limit(1000, time.Minute)).Get("/", h.handleList)

		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireAdmin)
			r.With(h.mw.Limits.Limit(100, time.Minute)).Post("/", h.handleCreate)
			r.With(h.mw.Limits.Limit(60, time.Minute)).Put("/{companionID}", h.handleRename)
			r.With(h.mw.Limits.Limit(60, time.Minute)).Delete("/{companionID}", h.handleDeactivate)
		})
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListActive(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listing companions failed", slog.Any("error", err))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

type companionRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req companionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ingen data mottogs."))
		return
	}
	comp, err := h.store.Create(r.Context(), req.Name, true)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(r.Context(), "creating companion failed", slog.Any("error", err))
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "id": comp.ID})
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	var req companionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ingen data mottogs."))
		return
	}
	_, err := h.store.Rename(r.Context(), chi.URLParam(r, "companionID"), req.Name)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(r.Context(), "renaming companion failed", slog.Any("error", err))
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Deactivate(r.Context(), chi.URLParam(r, "companionID")); err != nil {
		if dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(r.Context(), "deactivating companion failed", slog.Any("error", err))
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
