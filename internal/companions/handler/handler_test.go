package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fazzolix/matningsabo/internal/companions"
	"github.com/Fazzolix/matningsabo/internal/platform/docstore"
	"github.com/Fazzolix/matningsabo/internal/platform/metrics"
	"github.com/Fazzolix/matningsabo/internal/ratelimit"
)

func newTestRouter(t *testing.T) (chi.Router, *companions.Store) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store := companions.NewStore(docstore.NewMemory())

	passThrough := func(next http.Handler) http.Handler { return next }
	h := New(store, logger, Middlewares{
		RequireAuth:  passThrough,
		RequireAdmin: passThrough,
		Limits:       ratelimit.NewMiddleware(ratelimit.New(), logger, metrics.NewForTest(), ratelimit.WithDisabled(true)),
	})
	router := chi.NewRouter()
	h.Register(router)
	return router, store
}

func doJSON(t *testing.T, router chi.Router, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCompanionEndpoints(t *testing.T) {
	router, store := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/companions", map[string]string{"name": "Frivilliggruppen"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	t.Run("duplicate conflicts", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/companions", map[string]string{"name": "frivilliggruppen"})
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("rename keeps the id", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPut, "/api/companions/"+id, map[string]string{"name": "Röda Korset"})
		require.Equal(t, http.StatusOK, w.Code)

		comp, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "Röda Korset", comp.Name)
	})

	t.Run("invalid rename", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPut, "/api/companions/"+id, map[string]string{"name": ""})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("deactivate hides from the list", func(t *testing.T) {
		w := doJSON(t, router, http.MethodDelete, "/api/companions/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, router, http.MethodGet, "/api/companions", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var list []companions.Companion
		require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
		assert.Empty(t, list)
	})

	t.Run("unknown id", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPut, "/api/companions/saknas", map[string]string{"name": "Ny"})
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}
