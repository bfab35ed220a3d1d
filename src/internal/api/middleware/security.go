package middleware

import (
	"github.com/labstack/echo/v4"
)

// Security sets response headers suited to a JSON API
func Security() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")

			// HSTS for HTTPS
			if c.Request().TLS != nil || c.Request().Header.Get(echo.HeaderXForwardedProto) == "https" {
				h.Set(echo.HeaderStrictTransportSecurity, "max-age=31536000; includeSubDomains")
			}

			return next(c)
		}
	}
}
