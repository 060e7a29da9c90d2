package ratelimit

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fazzolix/matningsabo/internal/platform/metrics"
	"github.com/Fazzolix/matningsabo/internal/platform/middleware"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, h http.Handler, ip string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/activities", nil)
	req.Header.Set("X-Forwarded-For", ip)
	w := httptest.NewRecorder()
	middleware.ClientMetadata(h).ServeHTTP(w, req)
	return w
}

func TestLimitRejectsOverLimit(t *testing.T) {
	mw := NewMiddleware(New(), discardLogger(), metrics.NewForTest())
	h := mw.Limit(2, time.Minute)(okHandler())

	require.Equal(t, http.StatusOK, doRequest(t, h, "1.2.3.4").Code)
	require.Equal(t, http.StatusOK, doRequest(t, h, "1.2.3.4").Code)
	res := doRequest(t, h, "1.2.3.4")
	assert.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.Contains(t, res.Body.String(), "För många förfrågningar")
}

func TestLimitKeysOnFirstForwardedAddress(t *testing.T) {
	mw := NewMiddleware(New(), discardLogger(), metrics.NewForTest())
	h := mw.Limit(1, time.Minute)(okHandler())

	require.Equal(t, http.StatusOK, doRequest(t, h, "1.2.3.4, 10.0.0.1").Code)
	// Same client behind a different proxy hop shares the budget.
	assert.Equal(t, http.StatusTooManyRequests, doRequest(t, h, "1.2.3.4, 10.0.0.2").Code)
	// A different client does not.
	assert.Equal(t, http.StatusOK, doRequest(t, h, "5.6.7.8, 10.0.0.1").Code)
}

func TestLimitBudgetsArePerRoute(t *testing.T) {
	mw := NewMiddleware(New(), discardLogger(), metrics.NewForTest())
	h := mw.Limit(1, time.Minute)(okHandler())

	send := func(target string) int {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("X-Forwarded-For", "1.2.3.4")
		w := httptest.NewRecorder()
		middleware.ClientMetadata(h).ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, send("/api/activities"))
	require.Equal(t, http.StatusTooManyRequests, send("/api/activities"))
	// Exhausting one route leaves the other route's budget untouched.
	assert.Equal(t, http.StatusOK, send("/api/companions"))
}

func TestDisabledPassesEverything(t *testing.T) {
	mw := NewMiddleware(New(), discardLogger(), metrics.NewForTest(), WithDisabled(true))
	h := mw.Limit(1, time.Minute)(okHandler())

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, doRequest(t, h, "1.2.3.4").Code)
	}
}
