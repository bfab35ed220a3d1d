package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casapps/landregistry/src/internal/auth"
	apperrors "github.com/casapps/landregistry/src/internal/errors"
	"github.com/casapps/landregistry/src/pkg/utils"
)

func ok(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRateLimiterKeys(t *testing.T) {
	rl := NewRateLimiter(1)

	assert.True(t, rl.Allow("ip:10.0.0.1"))
	assert.False(t, rl.Allow("ip:10.0.0.1"))
	// keys are independent
	assert.True(t, rl.Allow("ip:10.0.0.2"))
}

func TestRateLimiterMiddleware(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiter(1)
	handler := rl.Middleware()(ok)

	call := func(userID uuid.UUID) error {
		req := httptest.NewRequest(http.MethodGet, "/api/lands", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		c := e.NewContext(req, httptest.NewRecorder())
		if userID != uuid.Nil {
			c.Set(auth.ContextUserID, userID)
		}
		return handler(c)
	}

	require.NoError(t, call(uuid.Nil))
	err := call(uuid.Nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRateLimit))

	// an authenticated user behind the same address has its own bucket
	alice := uuid.New()
	require.NoError(t, call(alice))
	assert.Error(t, call(alice))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(60)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(time.Hour)
	rl.Allow("fresh")

	assert.Equal(t, 1, rl.Cleanup(30*time.Minute))
	assert.Len(t, rl.limiters, 1)
}

func TestCORS(t *testing.T) {
	cfg := viper.New()
	cfg.Set("cors.allowed_origins", []string{"https://app.example.com", "*.example.org"})
	cfg.Set("cors.allowed_methods", "GET,POST")
	cfg.Set("cors.max_age", 600)
	e := echo.New()
	handler := CORS(cfg)(ok)

	serve := func(method, path, origin string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(method, path, nil)
		if origin != "" {
			req.Header.Set(echo.HeaderOrigin, origin)
		}
		rec := httptest.NewRecorder()
		return rec, handler(e.NewContext(req, rec))
	}

	rec, err := serve(http.MethodGet, "/api/lands", "https://app.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "600", rec.Header().Get(echo.HeaderAccessControlMaxAge))

	rec, err = serve(http.MethodOptions, "/api/lands", "https://maps.example.org")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = serve(http.MethodGet, "/api/lands", "https://evil.test")
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusForbidden, he.Code)

	// health stays readable from anywhere
	_, err = serve(http.MethodGet, "/health", "https://evil.test")
	assert.NoError(t, err)

	// same-origin requests pass untouched
	rec, err = serve(http.MethodGet, "/api/lands", "")
	require.NoError(t, err)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/lands", nil)
	req.Header.Set(echo.HeaderXForwardedProto, "https")
	rec := httptest.NewRecorder()

	require.NoError(t, Security()(ok)(e.NewContext(req, rec)))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderStrictTransportSecurity))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(RequestLogger(utils.NewLoggerTo(&buf, "info")))
	e.GET("/health", ok)
	e.GET("/broken", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/broken", nil))

	out := buf.String()
	assert.Contains(t, out, "uri=/health")
	assert.Contains(t, out, "status=200")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status=418")
}
