// Package handler exposes visit registration, editing and statistics over
// HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "github.com/Fazzolix/matningsabo/pkg/domain-errors"

	"github.com/Fazzolix/matningsabo/internal/activities"
	"github.com/Fazzolix/matningsabo/internal/audit"
	"github.com/Fazzolix/matningsabo/internal/homes"
	"github.com/Fazzolix/matningsabo/internal/platform/metrics"
	"github.com/Fazzolix/matningsabo/internal/platform/middleware"
	"github.com/Fazzolix/matningsabo/internal/ratelimit"
	"github.com/Fazzolix/matningsabo/internal/validate"
	"github.com/Fazzolix/matningsabo/internal/visits"
	"github.com/Fazzolix/matningsabo/pkg/platform/httputil"
)

type Middlewares struct {
	RequireAuth func(http.Handler) http.Handler
	Limits      *ratelimit.Middleware
}

type Handler struct {
	logger     *slog.Logger
	store      *visits.Store
	homes      *homes.Store
	activities *activities.Store
	auditor    *audit.Recorder
	metrics    *metrics.Metrics
	mw         Middlewares
	now        func() time.Time
}

func New(
	store *visits.Store,
	homeStore *homes.Store,
	activityStore *activities.Store,
	auditor *audit.Recorder,
	logger *slog.Logger,
	m *metrics.Metrics,
	mw Middlewares) *Handler {
	return &Handler{
		logger:     logger,
		store:      store,
		homes:      homeStore,
		activities: activityStore,
		auditor:    auditor,
		metrics:    m,
		mw:         mw,
		now:        time.Now,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAuth)
		r.With(h.mw.Limits.Limit(500, time.Minute)).Post("/api/visits", h.handleCreate)
		r.With(h.mw.Limits.Limit(120, time.Minute)).Get("/api/visits/{visitID}", h.handleGet)
		r.With(h.mw.Limits.Limit(30, time.Minute)).Put("/api/visits/{visitID}", h.handleUpdate)
		r.With(h.mw.Limits.Limit(30, time.Minute)).Delete("/api/visits/{visitID}", h.handleDelete)
		r.With(h.mw.Limits.Limit(300, time.Minute)).Get("/api/statistics", h.handleStatistics)
		r.With(h.mw.Limits.Limit(60, time.Minute)).Get("/api/my-visits", h.handleMyVisits)
	})
}

// visitPayload is the request shape for creating and editing a visit.
type visitPayload struct {
	HomeID              string                     `json:"home_id"`
	DepartmentID        string                     `json:"department_id"`
	Date                string                     `json:"date"`
	VisitType           string                     `json:"visit_type"`
	OfferStatus         string                     `json:"offer_status"`
	GenderCounts        visits.GenderCounts        `json:"gender_counts"`
	ActivityName        string                     `json:"activity_name"`
	ActivityID          string                     `json:"activity_id"`
	CompanionName       string                     `json:"companion_name"`
	CompanionID         string                     `json:"companion_id"`
	DurationMinutes     *int                       `json:"duration_minutes"`
	SatisfactionEntries []visits.SatisfactionEntry `json:"satisfaction_entries"`
}

// toVisit normalizes the payload into a visit record. Free-text names are
// sanitized, and a declined offer clears activity, companion and duration
// since nothing took place.
func (p *visitPayload) toVisit() visits.Visit {
	activity := validate.Sanitize(p.ActivityName, 100)
	companion := validate.Sanitize(p.CompanionName, 100)
	v := visits.Visit{
		HomeID:              p.HomeID,
		DepartmentID:        validate.Sanitize(p.DepartmentID, 200),
		Date:                p.Date,
		VisitType:           p.VisitType,
		OfferStatus:         p.OfferStatus,
		GenderCounts:        p.GenderCounts,
		Activity:            activity,
		ActivityName:        activity,
		ActivityID:          validate.Sanitize(p.ActivityID, 120),
		Companion:           companion,
		CompanionName:       companion,
		CompanionID:         validate.Sanitize(p.CompanionID, 120),
		DurationMinutes:     p.DurationMinutes,
		SatisfactionEntries: p.SatisfactionEntries,
	}
	if v.OfferStatus == validate.OfferDeclined {
		v.Activity = ""
		v.ActivityName = ""
		v.ActivityID = ""
		v.Companion = ""
		v.CompanionName = ""
		v.CompanionID = ""
		v.DurationMinutes = nil
	}
	return v
}

func (p *visitPayload) validateInput(home *homes.Home, existingDepartmentID *string) []string {
	vctx := validate.VisitContext{ExistingDepartmentID: existingDepartmentID}
	if home != nil {
		vctx.DepartmentActive = home.ActiveDepartment
	}
	return validate.Visit(validate.VisitInput{
		DepartmentID:    validate.Sanitize(p.DepartmentID, 200),
		Date:            p.Date,
		VisitType:       p.VisitType,
		OfferStatus:     p.OfferStatus,
		Men:             p.GenderCounts.Men,
		Women:           p.GenderCounts.Women,
		DurationMinutes: p.DurationMinutes,
		Satisfaction:    satisfactionInputs(p.SatisfactionEntries),
	}, vctx)
}

func satisfactionInputs(entries []visits.SatisfactionEntry) []validate.SatisfactionInput {
	out := make([]validate.SatisfactionInput, 0, len(entries))
	for _, e := range entries {
		out = append(out, validate.SatisfactionInput{Gender: e.Gender, Rating: e.Rating})
	}
	return out
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := middleware.GetIdentity(ctx)

	var payload visitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ingen data mottogs"))
		return
	}
	if len(payload.DepartmentID) > 160 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ogiltigt avdelnings-ID"))
		return
	}

	home, err := h.homes.Get(ctx, payload.HomeID)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Äldreboendet hittades inte"))
			return
		}
		h.logger.ErrorContext(ctx, "loading home for visit failed", slog.Any("error", err))
		httputil.WriteError(w, err)
		return
	}

	if errs := payload.validateInput(home, nil); len(errs) > 0 {
		httputil.WriteError(w, dErrors.Invalid(errs))
		return
	}

	v := payload.toVisit()
	v.RegisteredBy = identity.Email
	v.RegisteredByOID = identity.SubjectID

	// Free-text activities get catalogued on first use; failing to do so is
	// no reason to lose the registration itself.
	if v.Activity != "" {
		if err := h.activities.Ensure(ctx, v.Activity); err != nil {
			h.logger.WarnContext(ctx, "could not catalogue activity",
				slog.String("activity", v.Activity), slog.Any("error", err))
		}
	}

	created, err := h.store.Create(ctx, v)
	if err != nil {
		h.logger.ErrorContext(ctx, "creating visit failed", slog.Any("error", err))
		httputil.WriteError(w, err)
		return
	}
	h.metrics.VisitsRegistered.Inc()
	h.logger.InfoContext(ctx, "visit registered",
		slog.String("home_id", created.HomeID),
		slog.String("subject_id", identity.SubjectID))
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "id": created.ID})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := middleware.GetIdentity(ctx)

	visit, err := h.store.Get(ctx, chi.URLParam(r, "visitID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !visit.OwnedBy(identity.SubjectID, identity.Email) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Förbjudet"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, visit)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := middleware.GetIdentity(ctx)
	visitID := chi.URLParam(r, "visitID")

	existing, err := h.store.Get(ctx, visitID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !existing.OwnedBy(identity.SubjectID, identity.Email) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Förbjudet"))
		return
	}

	var payload visitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ingen data mottogs"))
		return
	}
	payload.HomeID = existing.HomeID
	if payload.DepartmentID == "" {
		payload.DepartmentID = existing.DepartmentID
	}

	// The home may have been removed since the record was created; edits of
	// such legacy records are still allowed.
	var home *homes.Home
	if existing.HomeID != "" {
		if loaded, err := h.homes.Get(ctx, existing.HomeID); err == nil {
			home = loaded
		} else if !dErrors.Is(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "loading home for visit edit failed", slog.Any("error", err))
			httputil.WriteError(w, err)
			return
		}
	}

	if errs := payload.validateInput(home, &existing.DepartmentID); len(errs) > 0 {
		httputil.WriteError(w, dErrors.Invalid(errs))
		return
	}

	v := payload.toVisit()
	if v.Activity != "" {
		if err := h.activities.Ensure(ctx, v.Activity); err != nil {
			h.logger.WarnContext(ctx, "could not catalogue activity",
				slog.String("activity", v.Activity), slog.Any("error", err))
		}
	}

	updated, err := h.store.Update(ctx, visitID, v)
	if err != nil {
		h.logger.ErrorContext(ctx, "updating visit failed",
			slog.String("visit_id", visitID), slog.Any("error", err))
		httputil.WriteError(w, err)
		return
	}

	h.auditor.RecordVisit(ctx, audit.ActionVisitUpdate,
		identity.SubjectID, identity.Email, visitID, visits.ChangedFields(existing, updated))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := middleware.GetIdentity(ctx)
	visitID := chi.URLParam(r, "visitID")

	existing, err := h.store.Get(ctx, visitID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !existing.OwnedBy(identity.SubjectID, identity.Email) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "Förbjudet"))
		return
	}
	if err := h.store.Delete(ctx, visitID); err != nil {
		h.logger.ErrorContext(ctx, "deleting visit failed",
			slog.String("visit_id", visitID), slog.Any("error", err))
		httputil.WriteError(w, err)
		return
	}
	h.auditor.RecordVisit(ctx, audit.ActionVisitDelete,
		identity.SubjectID, identity.Email, visitID, nil)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	dateFrom := q.Get("from")
	if dateFrom != "" {
		if ok, _ := validate.Date(dateFrom); !ok {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ogiltigt from-datum format"))
			return
		}
	}
	dateTo := q.Get("to")
	if dateTo != "" {
		if ok, _ := validate.Date(dateTo); !ok {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ogiltigt to-datum format"))
			return
		}
	}

	filters := visits.Filters{
		HomeID:       q.Get("home"),
		DateFrom:     dateFrom,
		DateTo:       dateTo,
		DepartmentID: q.Get("department"),
		ActivityID:   q.Get("activity"),
		CompanionID:  q.Get("companion"),
		OfferStatus:  q.Get("offer_status"),
		VisitType:    q.Get("visit_type"),
	}
	found, err := h.store.QueryStatistics(ctx, filters)
	if err != nil {
		h.logger.ErrorContext(ctx, "statistics query failed", slog.Any("error", err))
		httputil.WriteError(w, err)
		return
	}

	// Statistics are for aggregate viewing; who registered what stays out.
	redacted := make([]visits.Redacted, 0, len(found))
	for i := range found {
		redacted = append(redacted, found[i].Redact())
	}
	httputil.WriteJSON(w, http.StatusOK, redacted)
}

func (h *Handler) handleMyVisits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := middleware.GetIdentity(ctx)
	q := r.URL.Query()

	// Default to the last seven days.
	dateFrom, dateTo := q.Get("from"), q.Get("to")
	today := h.now().UTC()
	if dateFrom == "" {
		dateFrom = today.AddDate(0, 0, -6).Format("2006-01-02")
	}
	if dateTo == "" {
		dateTo = today.Format("2006-01-02")
	}
	if ok, _ := validate.Date(dateFrom); !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ogiltigt datumformat"))
		return
	}
	if ok, _ := validate.Date(dateTo); !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "Ogiltigt datumformat"))
		return
	}

	found, err := h.store.ListOwned(ctx, identity.SubjectID, identity.Email, dateFrom, dateTo, visits.ListLimitMax)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing own visits failed", slog.Any("error", err))
		httputil.WriteError(w, err)
		return
	}
	summaries := make([]visits.Summary, 0, len(found))
	for i := range found {
		summaries = append(summaries, found[i].Summarize())
	}
	httputil.WriteJSON(w, http.StatusOK, summaries)
}
