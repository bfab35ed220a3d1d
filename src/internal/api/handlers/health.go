package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/casapps/landregistry/src/internal/cache"
	"github.com/casapps/landregistry/src/internal/ledger"
)

// HealthHandler reports the state of the registry and its dependencies
type HealthHandler struct {
	db        *gorm.DB
	cache     *cache.CacheManager
	ledger    ledger.Ledger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *gorm.DB, cacheManager *cache.CacheManager, l ledger.Ledger, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		cache:     cacheManager,
		ledger:    l,
		version:   version,
		startTime: time.Now(),
	}
}

// ComponentHealth is the state of one dependency
type ComponentHealth struct {
	Status  string `json:"status"` // healthy, degraded, critical
	Message string `json:"message,omitempty"`
}

// HealthResponse is the health check body
type HealthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// Health answers 200 while the database is reachable and 503 otherwise. A
// disconnected ledger degrades the report without failing it.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:     "healthy",
		Version:    h.version,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: make(map[string]ComponentHealth),
	}
	code := http.StatusOK

	var one int
	if err := h.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		resp.Components["database"] = ComponentHealth{Status: "critical", Message: err.Error()}
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	} else {
		resp.Components["database"] = ComponentHealth{Status: "healthy"}
	}

	if h.cache != nil {
		resp.Components["cache"] = ComponentHealth{Status: "healthy", Message: h.cache.Backend()}
	}

	if h.ledger != nil {
		status, err := h.ledger.Status(ctx)
		switch {
		case err != nil:
			resp.Components["ledger"] = ComponentHealth{Status: "degraded", Message: err.Error()}
		case !status.Connected:
			msg := status.Error
			if msg == "" {
				msg = "disconnected"
			}
			resp.Components["ledger"] = ComponentHealth{Status: "degraded", Message: msg}
		default:
			resp.Components["ledger"] = ComponentHealth{Status: "healthy", Message: status.Network}
		}
		if resp.Status == "healthy" && resp.Components["ledger"].Status != "healthy" {
			resp.Status = "degraded"
		}
	}

	return c.JSON(code, resp)
}
