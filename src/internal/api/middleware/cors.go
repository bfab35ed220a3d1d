package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/spf13/viper"
)

// CORS returns a CORS middleware configured from settings
func CORS(cfg *viper.Viper) echo.MiddlewareFunc {
	allowedOrigins := cfg.GetStringSlice("cors.allowed_origins")
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			origin := req.Header.Get(echo.HeaderOrigin)

			// Skip CORS for same-origin requests
			if origin == "" {
				return next(c)
			}

			if !originAllowed(allowedOrigins, origin) && !isPublicReadEndpoint(c) {
				return echo.NewHTTPError(http.StatusForbidden, "CORS: origin not allowed")
			}

			res.Header().Add(echo.HeaderVary, echo.HeaderOrigin)
			res.Header().Set(echo.HeaderAccessControlAllowOrigin, origin)
			res.Header().Set(echo.HeaderAccessControlAllowMethods, cfg.GetString("cors.allowed_methods"))
			res.Header().Set(echo.HeaderAccessControlAllowHeaders, cfg.GetString("cors.allowed_headers"))
			res.Header().Set(echo.HeaderAccessControlExposeHeaders, cfg.GetString("cors.exposed_headers"))
			res.Header().Set(echo.HeaderAccessControlMaxAge, strconv.Itoa(cfg.GetInt("cors.max_age")))

			if cfg.GetBool("cors.allow_credentials") {
				res.Header().Set(echo.HeaderAccessControlAllowCredentials, "true")
			}

			// Handle preflight requests
			if req.Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}

			return next(c)
		}
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}

		// Support wildcard subdomains
		if strings.HasPrefix(a, "*.") && strings.HasSuffix(origin, a[1:]) {
			return true
		}
	}
	return false
}

func isPublicReadEndpoint(c echo.Context) bool {
	if c.Request().Method != http.MethodGet {
		return false
	}

	path := c.Request().URL.Path
	for _, p := range []string{"/health", "/metrics"} {
		if path == p {
			return true
		}
	}
	return false
}
