package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/casapps/landregistry/src/internal/auth"
	apperrors "github.com/casapps/landregistry/src/internal/errors"
	"github.com/casapps/landregistry/src/internal/services"
)

// AdminHandler handles the admin console endpoints
type AdminHandler struct {
	admin     *services.AdminService
	users     *services.UserService
	lands     *services.LandService
	transfers *services.TransferService
	reports   *services.ReportService
	audit     *services.AuditService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(admin *services.AdminService, users *services.UserService, lands *services.LandService, transfers *services.TransferService, reports *services.ReportService, audit *services.AuditService) *AdminHandler {
	return &AdminHandler{
		admin:     admin,
		users:     users,
		lands:     lands,
		transfers: transfers,
		reports:   reports,
		audit:     audit,
	}
}

// StatusRequest activates or deactivates a user
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// ReviewRequest records an admin decision on a land
type ReviewRequest struct {
	Action   string `json:"action" validate:"required"`
	Comments string `json:"comments" validate:"max=1000"`
}

// Dashboard returns the admin overview
func (h *AdminHandler) Dashboard(c echo.Context) error {
	dashboard, err := h.admin.Dashboard(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dashboard)
}

// ListUsers returns a filtered page of users
func (h *AdminHandler) ListUsers(c echo.Context) error {
	page, err := h.users.ListUsers(c.Request().Context(), services.UserFilter{
		Search:  strings.TrimSpace(c.QueryParam("search")),
		Role:    c.QueryParam("role"),
		Status:  c.QueryParam("status"),
		Page:    queryInt(c, "page"),
		PerPage: queryInt(c, "per_page"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// GetUser returns one user
func (h *AdminHandler) GetUser(c echo.Context) error {
	userID, err := idParam(c, "id", "User")
	if err != nil {
		return err
	}

	user, err := h.users.GetUser(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UserResponse{User: user})
}

// SetUserStatus activates or deactivates a user
func (h *AdminHandler) SetUserStatus(c echo.Context) error {
	adminID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	userID, err := idParam(c, "id", "User")
	if err != nil {
		return err
	}

	var req StatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.users.SetStatus(c.Request().Context(), adminID, userID, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UserResponse{User: user})
}

// PendingLands returns the review queue
func (h *AdminHandler) PendingLands(c echo.Context) error {
	page, err := h.lands.PendingReview(c.Request().Context(), queryInt(c, "page"), queryInt(c, "per_page"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// AllLands returns every land with the listing filters
func (h *AdminHandler) AllLands(c echo.Context) error {
	page, err := h.lands.List(c.Request().Context(), landFilter(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// ReviewLand verifies or rejects a land
func (h *AdminHandler) ReviewLand(c echo.Context) error {
	adminID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	landID, err := idParam(c, "id", "Land")
	if err != nil {
		return err
	}

	var req ReviewRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	land, err := h.lands.Review(c.Request().Context(), adminID, landID, req.Action, req.Comments)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LandResponse{Land: land})
}

// RegisterOnBlockchain mints the ledger token of a verified land
func (h *AdminHandler) RegisterOnBlockchain(c echo.Context) error {
	landID, err := idParam(c, "id", "Land")
	if err != nil {
		return err
	}

	result, err := h.lands.RegisterOnBlockchain(c.Request().Context(), landID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// ListTransfers returns a page of every transfer
func (h *AdminHandler) ListTransfers(c echo.Context) error {
	filter := services.TransferFilter{
		Status:  c.QueryParam("status"),
		Page:    queryInt(c, "page"),
		PerPage: queryInt(c, "per_page"),
	}
	if raw := c.QueryParam("land_id"); raw != "" {
		landID, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "land_id must be a uuid")
		}
		filter.LandID = &landID
	}

	page, err := h.transfers.ListAll(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// BlockchainStatus reports the ledger connection
func (h *AdminHandler) BlockchainStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.admin.BlockchainStatus(c.Request().Context()))
}

// Report streams a CSV report as an attachment
func (h *AdminHandler) Report(c echo.Context) error {
	reportType := c.Param("type")

	// Render fully before writing so a failure still gets a JSON error
	var buf bytes.Buffer
	if err := h.reports.Generate(c.Request().Context(), reportType, &buf); err != nil {
		return err
	}

	filename := services.ReportFilename(reportType, time.Now())
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", filename))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// AuditLog returns the audit trail, newest first
func (h *AdminHandler) AuditLog(c echo.Context) error {
	filter := services.AuditFilter{
		Action:     c.QueryParam("action"),
		ResourceID: c.QueryParam("resource_id"),
		Page:       queryInt(c, "page"),
		PerPage:    queryInt(c, "per_page"),
	}
	if raw := c.QueryParam("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperrors.NewValidationError("user_id must be a valid id", "user_id")
		}
		filter.UserID = &id
	}
	if raw := c.QueryParam("success"); raw != "" {
		ok, err := strconv.ParseBool(raw)
		if err != nil {
			return apperrors.NewValidationError("success must be true or false", "success")
		}
		filter.Success = &ok
	}

	page, err := h.audit.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}
