package client

import (
	"context"
	"errors"
)

// Reasons a transfer cannot be initiated, checked before calling the server
var (
	ErrNotOwner       = errors.New("only the owner can transfer this land")
	ErrNotOnChain     = errors.New("land must be registered on the blockchain before it can be transferred")
	ErrActiveTransfer = errors.New("land already has an active transfer")
)

// Action is something the current user may do with a transfer
type Action string

const (
	ActionExecute Action = "execute"
	ActionCancel  Action = "cancel"
)

// TransferWorkflow drives the transfer screen of one land. After every
// mutation it re-fetches the land and its history so the view never shows
// stale ownership.
type TransferWorkflow struct {
	api    *Client
	landID string
	user   *User

	Land      *Land
	Transfers []Transfer
	// ChainTransfers is empty when the ledger could not be read
	ChainTransfers []ChainTransfer
	ChainError     string
}

// NewTransferWorkflow prepares the workflow of landID for user
func NewTransferWorkflow(api *Client, landID string, user *User) *TransferWorkflow {
	return &TransferWorkflow{api: api, landID: landID, user: user}
}

// Refresh reloads the land and its transfer history
func (w *TransferWorkflow) Refresh(ctx context.Context) error {
	land, err := w.api.Land(ctx, w.landID)
	if err != nil {
		return err
	}
	history, err := w.api.TransferHistory(ctx, w.landID)
	if err != nil {
		return err
	}

	w.Land = land
	w.Transfers = history.DatabaseTransfers
	w.ChainTransfers = history.BlockchainTransfers
	w.ChainError = history.BlockchainError
	return nil
}

// ActiveTransfer returns the pending or processing transfer, if any
func (w *TransferWorkflow) ActiveTransfer() *Transfer {
	for i := range w.Transfers {
		if w.Transfers[i].Active() {
			return &w.Transfers[i]
		}
	}
	return nil
}

// CanInitiate reports why a new transfer is not allowed, or nil
func (w *TransferWorkflow) CanInitiate() error {
	if w.Land == nil || w.user == nil || w.Land.OwnerID != w.user.ID {
		return ErrNotOwner
	}
	if !w.Land.IsRegisteredOnBlockchain {
		return ErrNotOnChain
	}
	if w.ActiveTransfer() != nil {
		return ErrActiveTransfer
	}
	return nil
}

// Initiate proposes a transfer and reloads
func (w *TransferWorkflow) Initiate(ctx context.Context, req InitiateRequest) (*Transfer, error) {
	if err := w.CanInitiate(); err != nil {
		return nil, err
	}
	t, err := w.api.InitiateTransfer(ctx, w.landID, req)
	if err != nil {
		return nil, err
	}
	return t, w.Refresh(ctx)
}

// Execute completes a pending transfer and reloads. The land is reloaded
// even when execution fails, since a failed ledger write still changes
// the transfer's status.
func (w *TransferWorkflow) Execute(ctx context.Context, transferID string) (*Transfer, error) {
	t, err := w.api.ExecuteTransfer(ctx, w.landID, transferID)
	if refreshErr := w.Refresh(ctx); err == nil {
		err = refreshErr
	}
	return t, err
}

// Cancel withdraws a pending transfer and reloads
func (w *TransferWorkflow) Cancel(ctx context.Context, transferID string) (*Transfer, error) {
	t, err := w.api.CancelTransfer(ctx, w.landID, transferID)
	if err != nil {
		return nil, err
	}
	return t, w.Refresh(ctx)
}

// Actions lists what the current user may do with t. Only the current
// owner acts on a pending transfer; everything else is read-only.
func (w *TransferWorkflow) Actions(t Transfer) []Action {
	if w.user == nil || t.Status != TransferPending || t.FromUserID != w.user.ID {
		return nil
	}
	return []Action{ActionExecute, ActionCancel}
}
