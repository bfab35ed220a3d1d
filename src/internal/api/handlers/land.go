package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	apimw "github.com/casapps/landregistry/src/internal/api/middleware"
	"github.com/casapps/landregistry/src/internal/auth"
	"github.com/casapps/landregistry/src/internal/database/models"
	"github.com/casapps/landregistry/src/internal/services"
)

// LandHandler handles land endpoints
type LandHandler struct {
	lands *services.LandService
}

// NewLandHandler creates a new land handler
func NewLandHandler(lands *services.LandService) *LandHandler {
	return &LandHandler{lands: lands}
}

// LandResponse wraps a single land
type LandResponse struct {
	Land *models.Land `json:"land"`
}

// LandsResponse wraps an unpaginated land list
type LandsResponse struct {
	Lands []models.Land `json:"lands"`
}

// landFilter reads the listing filters shared by the user and admin views
func landFilter(c echo.Context) services.LandFilter {
	return services.LandFilter{
		Search:       strings.TrimSpace(c.QueryParam("search")),
		Status:       c.QueryParam("status"),
		PropertyType: c.QueryParam("property_type"),
		Page:         queryInt(c, "page"),
		PerPage:      queryInt(c, "per_page"),
	}
}

// List returns a filtered page of lands
func (h *LandHandler) List(c echo.Context) error {
	page, err := h.lands.List(c.Request().Context(), landFilter(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// Create registers a land owned by the current user
func (h *LandHandler) Create(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}

	var req services.LandInput
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	land, err := h.lands.Create(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}
	c.Set(apimw.CreatedResourceKey, land.ID)
	return c.JSON(http.StatusCreated, LandResponse{Land: land})
}

// Get returns one land
func (h *LandHandler) Get(c echo.Context) error {
	landID, err := idParam(c, "id", "Land")
	if err != nil {
		return err
	}

	land, err := h.lands.Get(c.Request().Context(), landID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LandResponse{Land: land})
}

// MyLands returns the lands owned by the current user
func (h *LandHandler) MyLands(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}

	lands, err := h.lands.MyLands(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LandsResponse{Lands: lands})
}

// MapData returns lands with coordinates, optionally limited to ?bounds=
func (h *LandHandler) MapData(c echo.Context) error {
	var bounds *services.Bounds
	if raw := c.QueryParam("bounds"); raw != "" {
		b, err := services.ParseBounds(raw)
		if err != nil {
			return err
		}
		bounds = b
	}

	lands, err := h.lands.MapData(c.Request().Context(), bounds)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LandsResponse{Lands: lands})
}

// Statistics returns registry totals
func (h *LandHandler) Statistics(c echo.Context) error {
	stats, err := h.lands.Statistics(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}
