// Package handlers exposes the registry services over HTTP.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "github.com/casapps/landregistry/src/internal/errors"
	"github.com/casapps/landregistry/src/internal/services"
)

// MessageResponse is the body of endpoints that only acknowledge
type MessageResponse struct {
	Message string `json:"message"`
}

// bindAndValidate decodes the request into dst and runs its validate tags
func bindAndValidate(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return apperrors.NewValidationError("invalid request body", "")
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(dst); err != nil {
			return err
		}
	}
	return nil
}

// idParam parses a uuid path parameter. A malformed id cannot name a row, so
// it is reported as not found.
func idParam(c echo.Context, name, resource string) (uuid.UUID, error) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.NotFoundError(resource, raw)
	}
	return id, nil
}

func queryInt(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return n
}

func clientInfo(c echo.Context) services.ClientInfo {
	return services.ClientInfo{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

func acknowledge(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, MessageResponse{Message: msg})
}
