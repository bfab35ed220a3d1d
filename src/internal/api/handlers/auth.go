package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/casapps/landregistry/src/internal/auth"
	"github.com/casapps/landregistry/src/internal/database/models"
	"github.com/casapps/landregistry/src/internal/services"
)

// AuthHandler handles authentication and profile endpoints
type AuthHandler struct {
	users *services.UserService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(users *services.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

// UserResponse wraps a single user
type UserResponse struct {
	User *models.User `json:"user"`
}

// DemoLoginRequest selects a demo account
type DemoLoginRequest struct {
	Type string `json:"type" validate:"omitempty,oneof=user admin"`
}

// TOTPRequest carries a two-factor code
type TOTPRequest struct {
	Code string `json:"code" validate:"required"`
}

// Login handles user login
func (h *AuthHandler) Login(c echo.Context) error {
	var req services.LoginInput
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.users.Login(c.Request().Context(), req, clientInfo(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Register creates an account and signs it in
func (h *AuthHandler) Register(c echo.Context) error {
	var req services.RegisterInput
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.users.Register(c.Request().Context(), req, clientInfo(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// DemoLogin signs in a seeded demo account
func (h *AuthHandler) DemoLogin(c echo.Context) error {
	var req DemoLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.users.DemoLogin(c.Request().Context(), req.Type, clientInfo(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Logout revokes the session behind the presented token
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.users.Logout(c.Request().Context(), auth.TokenID(c)); err != nil {
		return err
	}
	return acknowledge(c, "logged out")
}

// Profile returns the current user
func (h *AuthHandler) Profile(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}

	user, err := h.users.GetUser(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UserResponse{User: user})
}

// UpdateProfile changes the editable profile fields
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}

	var req services.ProfileUpdate
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.users.UpdateProfile(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UserResponse{User: user})
}

// ChangePassword replaces the current user's password
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}

	var req services.PasswordChange
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.users.ChangePassword(c.Request().Context(), userID, req); err != nil {
		return err
	}
	return acknowledge(c, "password changed")
}

// SetupTOTP starts two-factor enrolment
func (h *AuthHandler) SetupTOTP(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}

	setup, err := h.users.SetupTOTP(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, setup)
}

// EnableTOTP confirms two-factor enrolment
func (h *AuthHandler) EnableTOTP(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}

	var req TOTPRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.users.EnableTOTP(c.Request().Context(), userID, req.Code); err != nil {
		return err
	}
	return acknowledge(c, "two-factor authentication enabled")
}

// DisableTOTP turns two-factor authentication off
func (h *AuthHandler) DisableTOTP(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}

	var req TOTPRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.users.DisableTOTP(c.Request().Context(), userID, req.Code); err != nil {
		return err
	}
	return acknowledge(c, "two-factor authentication disabled")
}
