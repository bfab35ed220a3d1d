package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/casapps/landregistry/src/internal/auth"
	"github.com/casapps/landregistry/src/internal/database/models"
	"github.com/casapps/landregistry/src/internal/services"
)

// TransferHandler handles the land transfer workflow
type TransferHandler struct {
	transfers *services.TransferService
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(transfers *services.TransferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

// TransferResponse wraps a single transfer
type TransferResponse struct {
	Transfer *models.Transfer `json:"transfer"`
}

// TransfersResponse wraps an unpaginated transfer list
type TransfersResponse struct {
	Transfers []models.Transfer `json:"transfers"`
}

// ids resolves the current user and the land and transfer path parameters
func (h *TransferHandler) ids(c echo.Context) (userID, landID, transferID uuid.UUID, err error) {
	if userID, err = auth.UserID(c); err != nil {
		return
	}
	if landID, err = idParam(c, "id", "Land"); err != nil {
		return
	}
	transferID, err = idParam(c, "transferId", "Transfer")
	return
}

// List returns the current user's transfers, filtered by ?type=sent|received|all
func (h *TransferHandler) List(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}

	transfers, err := h.transfers.ListForUser(c.Request().Context(), userID, c.QueryParam("type"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TransfersResponse{Transfers: transfers})
}

// Initiate opens a pending transfer of a land
func (h *TransferHandler) Initiate(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	landID, err := idParam(c, "id", "Land")
	if err != nil {
		return err
	}

	var req services.InitiateInput
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	transfer, err := h.transfers.Initiate(c.Request().Context(), userID, landID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, TransferResponse{Transfer: transfer})
}

// Execute moves the land token and settles the transfer. A ledger failure
// still answers 200 with the transfer in failed status.
func (h *TransferHandler) Execute(c echo.Context) error {
	userID, landID, transferID, err := h.ids(c)
	if err != nil {
		return err
	}

	transfer, err := h.transfers.Execute(c.Request().Context(), userID, landID, transferID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TransferResponse{Transfer: transfer})
}

// Cancel withdraws a pending transfer
func (h *TransferHandler) Cancel(c echo.Context) error {
	userID, landID, transferID, err := h.ids(c)
	if err != nil {
		return err
	}

	transfer, err := h.transfers.Cancel(c.Request().Context(), userID, landID, transferID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TransferResponse{Transfer: transfer})
}

// History returns the stored and on-chain transfers of a land
func (h *TransferHandler) History(c echo.Context) error {
	landID, err := idParam(c, "id", "Land")
	if err != nil {
		return err
	}

	history, err := h.transfers.History(c.Request().Context(), landID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, history)
}
