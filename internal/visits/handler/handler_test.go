package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/Fazzolix/matningsabo/pkg/domain-errors"

	"github.com/Fazzolix/matningsabo/internal/activities"
	"github.com/Fazzolix/matningsabo/internal/audit"
	"github.com/Fazzolix/matningsabo/internal/homes"
	"github.com/Fazzolix/matningsabo/internal/platform/docstore"
	"github.com/Fazzolix/matningsabo/internal/platform/metrics"
	"github.com/Fazzolix/matningsabo/internal/platform/middleware"
	"github.com/Fazzolix/matningsabo/internal/ratelimit"
	"github.com/Fazzolix/matningsabo/internal/visits"
)

type testEnv struct {
	router   chi.Router
	db       *docstore.MemoryStore
	store    *visits.Store
	homes    *homes.Store
	acts     *activities.Store
	metrics  *metrics.Metrics
	identity middleware.Identity
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	db := docstore.NewMemory()
	m := metrics.NewForTest()

	env := &testEnv{
		db:      db,
		store:   visits.NewStore(db),
		homes:   homes.NewStore(db),
		acts:    activities.NewStore(db),
		metrics: m,
		identity: middleware.Identity{
			SubjectID:   "oid-anna",
			Email:       "anna@kommun.se",
			DisplayName: "Anna Andersson",
		},
	}

	limits := ratelimit.NewMiddleware(ratelimit.New(), logger, m, ratelimit.WithDisabled(true))
	h := New(env.store, env.homes, env.acts, audit.NewRecorder(db, logger, m), logger, m, Middlewares{
		RequireAuth: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), env.identity)))
			})
		},
		Limits: limits,
	})
	env.router = chi.NewRouter()
	h.Register(env.router)
	return env
}

// seedHome creates an active home with one department and returns both ids.
func (e *testEnv) seedHome(t *testing.T) (string, string) {
	t.Helper()
	home, err := e.homes.Create(context.Background(), "Solgården", "", "", true)
	require.NoError(t, err)
	dept, err := e.homes.AddDepartment(context.Background(), home.ID, "Avdelning A")
	require.NoError(t, err)
	return home.ID, dept.ID
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func validPayload(homeID, departmentID string) map[string]any {
	return map[string]any{
		"home_id":       homeID,
		"department_id": departmentID,
		"date":          "2025-06-12",
		"visit_type":    "group",
		"offer_status":  "accepted",
		"gender_counts": map[string]int{"men": 2, "women": 3},
		"activity_name": "Promenad",
		"companion_name": "Frivilliggrupp",
		"duration_minutes": 45,
		"satisfaction_entries": []map[string]any{
			{"gender": "men", "rating": 5},
		},
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestCreateVisit(t *testing.T) {
	env := newTestEnv(t)
	homeID, deptID := env.seedHome(t)

	w := env.do(t, http.MethodPost, "/api/visits", validPayload(homeID, deptID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	stored, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "anna@kommun.se", stored.RegisteredBy)
	assert.Equal(t, "oid-anna", stored.RegisteredByOID)
	assert.Equal(t, 5, stored.TotalParticipants)
	assert.Equal(t, 0, stored.EditCount)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.VisitsRegistered))

	// The free-text activity is catalogued on first use.
	act, err := env.acts.FindByName(context.Background(), "Promenad")
	require.NoError(t, err)
	assert.True(t, act.Active)
}

func TestCreateVisitRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	homeID, deptID := env.seedHome(t)

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/visits", strings.NewReader("{not json"))
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Ingen data mottogs", decode(t, w)["error_description"])
	})

	t.Run("unknown home", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/visits", validPayload("nope", deptID))
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Äldreboendet hittades inte", decode(t, w)["error_description"])
	})

	t.Run("validation errors are collected", func(t *testing.T) {
		payload := validPayload(homeID, deptID)
		payload["date"] = ""
		payload["visit_type"] = "party"
		payload["duration_minutes"] = nil
		w := env.do(t, http.MethodPost, "/api/visits", payload)
		require.Equal(t, http.StatusBadRequest, w.Code)

		body := decode(t, w)
		errs, ok := body["errors"].([]any)
		require.True(t, ok, "expected errors list, got %v", body)
		assert.Contains(t, errs, "Datum saknas")
		assert.Contains(t, errs, "Längd saknas")
		assert.GreaterOrEqual(t, len(errs), 3)
	})

	t.Run("missing department", func(t *testing.T) {
		payload := validPayload(homeID, deptID)
		payload["department_id"] = ""
		w := env.do(t, http.MethodPost, "/api/visits", payload)
		require.Equal(t, http.StatusBadRequest, w.Code)

		body := decode(t, w)
		errs, ok := body["errors"].([]any)
		require.True(t, ok, "expected errors list, got %v", body)
		assert.Contains(t, errs, "Avdelning saknas")
	})

	t.Run("inactive department", func(t *testing.T) {
		err := env.homes.RemoveDepartment(context.Background(), homeID, deptID)
		require.NoError(t, err)
		w := env.do(t, http.MethodPost, "/api/visits", validPayload(homeID, deptID))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCreateVisitDeclinedClearsActivity(t *testing.T) {
	env := newTestEnv(t)
	homeID, deptID := env.seedHome(t)

	payload := validPayload(homeID, deptID)
	payload["offer_status"] = "declined"
	payload["gender_counts"] = map[string]int{"men": 0, "women": 0}
	payload["satisfaction_entries"] = nil
	w := env.do(t, http.MethodPost, "/api/visits", payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	id := decode(t, w)["id"].(string)
	stored, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, stored.Activity)
	assert.Empty(t, stored.Companion)
	assert.Nil(t, stored.DurationMinutes)

	// Nothing took place, so no activity is catalogued either.
	_, err = env.acts.FindByName(context.Background(), "Promenad")
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestVisitOwnership(t *testing.T) {
	env := newTestEnv(t)
	homeID, deptID := env.seedHome(t)

	w := env.do(t, http.MethodPost, "/api/visits", validPayload(homeID, deptID))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)

	t.Run("owner can read", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/visits/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, id, decode(t, w)["id"])
	})

	env.identity = middleware.Identity{SubjectID: "oid-bert", Email: "bert@kommun.se"}

	t.Run("other user gets forbidden", func(t *testing.T) {
		for _, method := range []string{http.MethodGet, http.MethodDelete} {
			w := env.do(t, method, "/api/visits/"+id, nil)
			require.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, "Förbjudet", decode(t, w)["error_description"])
		}
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/visits/saknas", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestUpdateVisit(t *testing.T) {
	env := newTestEnv(t)
	homeID, deptID := env.seedHome(t)

	w := env.do(t, http.MethodPost, "/api/visits", validPayload(homeID, deptID))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)

	payload := validPayload("ignored", deptID)
	payload["activity_name"] = "Fika"
	payload["gender_counts"] = map[string]int{"men": 1, "women": 1}
	payload["satisfaction_entries"] = nil
	w = env.do(t, http.MethodPut, "/api/visits/"+id, payload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Fika", stored.Activity)
	assert.Equal(t, 1, stored.EditCount)
	assert.Equal(t, homeID, stored.HomeID, "home binding cannot be moved by the payload")
	assert.Equal(t, "anna@kommun.se", stored.RegisteredBy)

	// The edit leaves an audit trail naming the changed fields.
	var records []audit.VisitRecord
	err = env.db.Collection("visit_audit", "_id").Query(context.Background(), docstore.Query{}, &records)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionVisitUpdate, records[0].Action)
	assert.Contains(t, records[0].ChangedFields, "activity")
	assert.Contains(t, records[0].ChangedFields, "gender_counts")
}

func TestUpdateVisitKeepsRemovedDepartment(t *testing.T) {
	env := newTestEnv(t)
	homeID, deptID := env.seedHome(t)

	w := env.do(t, http.MethodPost, "/api/visits", validPayload(homeID, deptID))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)

	err := env.homes.RemoveDepartment(context.Background(), homeID, deptID)
	require.NoError(t, err)

	// Edits may keep the department the record was created with even after
	// it has been deactivated.
	payload := validPayload("ignored", deptID)
	payload["satisfaction_entries"] = nil
	w = env.do(t, http.MethodPut, "/api/visits/"+id, payload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Switching to another inactive department is still rejected.
	payload["department_id"] = homeID + "__annan"
	w = env.do(t, http.MethodPut, "/api/visits/"+id, payload)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteVisit(t *testing.T) {
	env := newTestEnv(t)
	homeID, deptID := env.seedHome(t)

	w := env.do(t, http.MethodPost, "/api/visits", validPayload(homeID, deptID))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)

	w = env.do(t, http.MethodDelete, "/api/visits/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := env.store.Get(context.Background(), id)
	require.Error(t, err)

	var records []audit.VisitRecord
	err = env.db.Collection("visit_audit", "_id").Query(context.Background(), docstore.Query{}, &records)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionVisitDelete, records[0].Action)
	assert.Equal(t, id, records[0].VisitID)
}

func TestStatistics(t *testing.T) {
	env := newTestEnv(t)
	homeID, deptID := env.seedHome(t)

	for _, date := range []string{"2025-06-10", "2025-06-12"} {
		payload := validPayload(homeID, deptID)
		payload["date"] = date
		w := env.do(t, http.MethodPost, "/api/visits", payload)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	t.Run("redacts who registered", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/statistics?home="+homeID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var rows []map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
		require.Len(t, rows, 2)
		for _, row := range rows {
			assert.NotContains(t, row, "registered_by")
			assert.NotContains(t, row, "registered_by_oid")
			assert.NotContains(t, row, "edit_count")
		}
	})

	t.Run("date range filters", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/statistics?from=2025-06-11&to=2025-06-12", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var rows []map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
		assert.Len(t, rows, 1)
	})

	t.Run("rejects bad dates", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/statistics?from=12-06-2025", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Ogiltigt from-datum format", decode(t, w)["error_description"])
	})
}

func TestMyVisits(t *testing.T) {
	env := newTestEnv(t)
	homeID, deptID := env.seedHome(t)

	today := time.Now().UTC()
	recent := today.AddDate(0, 0, -2).Format("2006-01-02")
	old := today.AddDate(0, 0, -30).Format("2006-01-02")
	for _, date := range []string{recent, old} {
		payload := validPayload(homeID, deptID)
		payload["date"] = date
		w := env.do(t, http.MethodPost, "/api/visits", payload)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	t.Run("defaults to the last seven days", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/my-visits", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var rows []map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
		require.Len(t, rows, 1)
		assert.Equal(t, recent, rows[0]["date"])
	})

	t.Run("explicit range includes older visits", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/my-visits?from="+old+"&to="+today.Format("2006-01-02"), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var rows []map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
		assert.Len(t, rows, 2)
	})

	t.Run("rejects bad dates", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/my-visits?from=igår", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Ogiltigt datumformat", decode(t, w)["error_description"])
	})
}
