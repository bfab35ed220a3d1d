package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	m := New()

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/lands/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/api/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "nope")
	})

	for _, path := range []string{"/api/lands/1", "/api/lands/2", "/api/fail"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/lands/:id", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/fail", "409")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpInFlight))
}

func TestDomainCounters(t *testing.T) {
	m := New()

	m.RecordTransition("completed")
	m.RecordTransition("completed")
	m.RecordReconciled(3)
	m.ObserveLedger("transfer_token", 20*time.Millisecond, nil)
	m.ObserveLedger("transfer_token", 10*time.Millisecond, errors.New("reverted"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transferTransitions.WithLabelValues("completed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.reconciled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerCalls.WithLabelValues("transfer_token", "false")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "landregistry_transfers_transitions_total"))
}
