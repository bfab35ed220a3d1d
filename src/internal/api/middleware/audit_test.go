package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casapps/landregistry/src/internal/auth"
	"github.com/casapps/landregistry/src/internal/services"
)

type recorder struct {
	entries []services.AuditEntry
}

func (r *recorder) Record(_ context.Context, e services.AuditEntry) {
	r.entries = append(r.entries, e)
}

func TestAudit(t *testing.T) {
	e := echo.New()
	rec := &recorder{}
	auditor := NewAuditor(rec, true)
	userID := uuid.New()

	call := func(handler echo.HandlerFunc, action, param string, paramValue string) error {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("User-Agent", "landregistry-test")
		req.RemoteAddr = "192.0.2.7:5000"
		c := e.NewContext(req, httptest.NewRecorder())
		c.Set(auth.ContextUserID, userID)
		if paramValue != "" {
			c.SetParamNames(param)
			c.SetParamValues(paramValue)
		}
		return auditor.Audit(action, "land", param)(handler)(c)
	}

	require.NoError(t, call(ok, "land.review", "id", "L-1"))
	failure := errors.New("ledger unavailable")
	err := call(func(echo.Context) error { return failure }, "land.register", "id", "L-1")
	assert.ErrorIs(t, err, failure)

	created := uuid.New()
	require.NoError(t, call(func(c echo.Context) error {
		c.Set(CreatedResourceKey, created)
		return ok(c)
	}, "land.create", "id", ""))

	require.Len(t, rec.entries, 3)

	assert.Equal(t, "land.review", rec.entries[0].Action)
	assert.Equal(t, "L-1", rec.entries[0].ResourceID)
	assert.Equal(t, "192.0.2.7", rec.entries[0].IPAddress)
	assert.Equal(t, "landregistry-test", rec.entries[0].UserAgent)
	require.NotNil(t, rec.entries[0].UserID)
	assert.Equal(t, userID, *rec.entries[0].UserID)
	assert.NoError(t, rec.entries[0].Err)

	assert.ErrorIs(t, rec.entries[1].Err, failure)
	assert.Equal(t, created.String(), rec.entries[2].ResourceID)
}

func TestAuditDisabled(t *testing.T) {
	rec := &recorder{}
	handler := NewAuditor(rec, false).Audit("land.review", "land", "id")(ok)

	c := echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	require.NoError(t, handler(c))
	assert.Empty(t, rec.entries)

	// a nil recorder is never called
	handler = NewAuditor(nil, true).Audit("land.review", "land", "id")(ok)
	assert.NoError(t, handler(c))
}
