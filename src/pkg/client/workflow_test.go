package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry serves one land and its transfers
type fakeRegistry struct {
	mu        sync.Mutex
	land      Land
	transfers []Transfer
	executes  int
}

func (f *fakeRegistry) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/lands/L1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]interface{}{"land": f.land})
	})
	mux.HandleFunc("/api/lands/L1/transfer-history", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, TransferHistory{
			LandID:            "L1",
			DatabaseTransfers: f.transfers,
			BlockchainError:   "ledger unavailable",
		})
	})
	mux.HandleFunc("/api/lands/L1/transfer/initiate", func(w http.ResponseWriter, r *http.Request) {
		var req InitiateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		defer f.mu.Unlock()
		t := Transfer{ID: "T1", LandID: "L1", FromUserID: f.land.OwnerID, ToUserID: "u2", Price: req.Price, Status: TransferPending}
		f.transfers = append([]Transfer{t}, f.transfers...)
		writeJSON(w, http.StatusCreated, map[string]interface{}{"transfer": t})
	})
	mux.HandleFunc("/api/lands/L1/transfer/T1/execute", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.executes++
		f.transfers[0].Status = TransferCompleted
		f.land.OwnerID = "u2"
		writeJSON(w, http.StatusOK, map[string]interface{}{"transfer": f.transfers[0]})
	})
	return mux
}

func TestTransferWorkflow(t *testing.T) {
	reg := &fakeRegistry{land: Land{ID: "L1", OwnerID: "u1", IsRegisteredOnBlockchain: true}}
	c, _ := newTestClient(t, reg.handler())
	ctx := context.Background()

	owner := &User{ID: "u1"}
	w := NewTransferWorkflow(c, "L1", owner)
	require.NoError(t, w.Refresh(ctx))
	assert.Equal(t, "ledger unavailable", w.ChainError)
	require.NoError(t, w.CanInitiate())

	transfer, err := w.Initiate(ctx, InitiateRequest{ToUser: "bob", Price: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	assert.Equal(t, TransferPending, transfer.Status)

	// the reload sees the pending transfer
	require.NotNil(t, w.ActiveTransfer())
	assert.ErrorIs(t, w.CanInitiate(), ErrActiveTransfer)
	assert.Equal(t, []Action{ActionExecute, ActionCancel}, w.Actions(*w.ActiveTransfer()))

	// the recipient sees the transfer but may not act on it
	recipient := NewTransferWorkflow(c, "L1", &User{ID: "u2"})
	require.NoError(t, recipient.Refresh(ctx))
	assert.Empty(t, recipient.Actions(recipient.Transfers[0]))
	assert.ErrorIs(t, recipient.CanInitiate(), ErrNotOwner)

	done, err := w.Execute(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, TransferCompleted, done.Status)
	assert.Equal(t, "u2", w.Land.OwnerID)
	assert.Empty(t, w.Actions(w.Transfers[0]))
	assert.ErrorIs(t, w.CanInitiate(), ErrNotOwner)
}

func TestTransferWorkflowRequiresChain(t *testing.T) {
	reg := &fakeRegistry{land: Land{ID: "L1", OwnerID: "u1"}}
	c, _ := newTestClient(t, reg.handler())

	w := NewTransferWorkflow(c, "L1", &User{ID: "u1"})
	require.NoError(t, w.Refresh(context.Background()))

	_, err := w.Initiate(context.Background(), InitiateRequest{ToUser: "bob"})
	assert.ErrorIs(t, err, ErrNotOnChain)
	assert.Empty(t, reg.transfers)
}
