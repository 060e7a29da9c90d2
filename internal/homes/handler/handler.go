// Package handler exposes the care-home catalogue over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "github.com/Fazzolix/matningsabo/pkg/domain-errors"

	"github.com/Fazzolix/matningsabo/internal/homes"
	"github.com/Fazzolix/matningsabo/internal/platform/middleware"
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
	store  *homes.Store
	mw     Middlewares
}

func New(store *homes.Store, logger *slog.Logger, mw Middlewares) *Handler {
	return &Handler{logger: logger, store: store, mw: mw}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/api/aldreboenden", func(r chi.Router) {
		r.Use(h.mw.RequireAuth)
		r.With(h.mw.Limits.Limit(1000, time.Minute)).Get("/", h.handleList)

		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireAdmin)
			r.With(h.mw.Limits.Limit(100, time.Minute)).Post("/", h.handleCreate)
			r.With(h.mw.Limits.Limit(100, time.Minute)).Post("/{homeID}/departments", h.handleAddDepartment)
			r.With(h.mw.Limits.Limit(100, time.Minute)).Put("/{homeID}/departments/{departmentID}", h.handleUpdateDepartment)
			r.With(h.mw.Limits.Limit(60, time.Minute)).Delete("/{homeID}/departments/{departmentID}", h.handleRemoveDepartment)
		})
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListActive(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listing homes failed", slog.Any("error", err))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

type createHomeRequest struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createHomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ingen data mottogs."))
		return
	}
	home, err := h.store.Create(r.Context(), req.Name, req.Address, req.Description, true)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(r.Context(), "creating home failed", slog.Any("error", err))
		}
		httputil.WriteError(w, err)
		return
	}
	if identity, ok := middleware.GetIdentity(r.Context()); ok {
		h.logger.InfoContext(r.Context(), "home created",
			slog.String("home_id", home.ID),
			slog.String("subject_id", identity.SubjectID))
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "id": home.ID})
}

type departmentRequest struct {
	Name   *string `json:"name"`
	Active *bool   `json:"active"`
}

func (h *Handler) handleAddDepartment(w http.ResponseWriter, r *http.Request) {
	var req departmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ingen data mottogs."))
		return
	}
	name := ""
	if req.Name != nil {
		name = *req.Name
	}
	dept, err := h.store.AddDepartment(r.Context(), chi.URLParam(r, "homeID"), name)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(r.Context(), "adding department failed", slog.Any("error", err))
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, dept)
}

func (h *Handler) handleUpdateDepartment(w http.ResponseWriter, r *http.Request) {
	var req departmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ingen data mottogs."))
		return
	}
	_, err := h.store.UpdateDepartment(r.Context(),
		chi.URLParam(r, "homeID"), chi.URLParam(r, "departmentID"), req.Name, req.Active)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(r.Context(), "updating department failed", slog.Any("error", err))
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleRemoveDepartment(w http.ResponseWriter, r *http.Request) {
	err := h.store.RemoveDepartment(r.Context(),
		chi.URLParam(r, "homeID"), chi.URLParam(r, "departmentID"))
	if err != nil {
		if dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(r.Context(), "removing department failed", slog.Any("error", err))
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
