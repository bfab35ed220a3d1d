package notifications

import (
	"errors"
	"sync"
	"testing"

	"github.com/casapps/landregistry/src/internal/config"
	"github.com/casapps/landregistry/src/internal/database/models"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []*Message
	err  error
}

func (r *recordingSender) Send(msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func newConfig(enabled bool) *viper.Viper {
	cfg := viper.New()
	config.SetDefaults(cfg)
	cfg.Set("email.enabled", enabled)
	return cfg
}

func sampleTransfer() *models.Transfer {
	hash := "0xabc"
	return &models.Transfer{
		Price:            decimal.NewFromInt(100000),
		TransferType:     models.TransferTypeSale,
		Status:           models.TransferStatusCompleted,
		BlockchainTxHash: &hash,
		Land:             &models.Land{Title: "Lagoon View", PropertyID: "PROP-1"},
		FromUser:         &models.User{Username: "alice", Email: "alice@example.com", FirstName: "Alice"},
		ToUser:           &models.User{Username: "bob", Email: "bob@example.com"},
	}
}

func TestTransferInitiated(t *testing.T) {
	sender := &recordingSender{}
	svc, err := NewService(newConfig(true), sender, nil)
	require.NoError(t, err)

	transfer := sampleTransfer()
	transfer.Status = models.TransferStatusPending
	svc.TransferInitiated(transfer)
	svc.Wait()

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, TypeTransferInitiated, msg.Type)
	assert.Equal(t, "bob@example.com", msg.To)
	assert.Contains(t, msg.Subject, "Alice wants to transfer Lagoon View")
	assert.Contains(t, msg.Body, "for 100000.00")
}

func TestTransferFinished(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		sender := &recordingSender{}
		svc, err := NewService(newConfig(true), sender, nil)
		require.NoError(t, err)

		svc.TransferFinished(sampleTransfer())
		svc.Wait()

		require.Len(t, sender.sent, 2)
		for _, msg := range sender.sent {
			assert.Equal(t, TypeTransferCompleted, msg.Type)
			assert.Contains(t, msg.Body, "0xabc")
		}
	})

	t.Run("failed", func(t *testing.T) {
		sender := &recordingSender{}
		svc, err := NewService(newConfig(true), sender, nil)
		require.NoError(t, err)

		transfer := sampleTransfer()
		reason := "ledger unavailable"
		transfer.Status = models.TransferStatusFailed
		transfer.BlockchainTxHash = nil
		transfer.FailureReason = &reason
		svc.TransferFinished(transfer)
		svc.Wait()

		require.Len(t, sender.sent, 2)
		assert.Equal(t, TypeTransferFailed, sender.sent[0].Type)
		assert.Contains(t, sender.sent[0].Body, "Reason: ledger unavailable")
	})
}

func TestDisabledAndFailingDelivery(t *testing.T) {
	sender := &recordingSender{}
	svc, err := NewService(newConfig(false), sender, nil)
	require.NoError(t, err)
	assert.False(t, svc.Enabled())

	svc.TransferInitiated(sampleTransfer())
	svc.TransferFinished(sampleTransfer())
	svc.Wait()
	assert.Empty(t, sender.sent)

	// delivery errors are swallowed
	failing := &recordingSender{err: errors.New("smtp down")}
	svc, err = NewService(newConfig(true), failing, nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		svc.TransferInitiated(sampleTransfer())
		svc.Wait()
	})
	assert.Len(t, failing.sent, 1)

	var nilService *Service
	assert.False(t, nilService.Enabled())
	assert.NotPanics(t, func() { nilService.TransferFinished(sampleTransfer()) })
}

func TestMailerDisabled(t *testing.T) {
	mailer := NewMailer(newConfig(false))
	assert.Error(t, mailer.Send(&Message{To: "x@example.com"}))
	assert.Error(t, mailer.TestConnection())

	enabled := newConfig(true)
	enabled.Set("email.smtp.host", "smtp.example.com")
	enabled.Set("email.from.address", "registry@example.com")
	msg := NewMailer(enabled).compose(&Message{Type: TypeTransferCompleted, To: "bob@example.com", ToName: "Bob", Subject: "hi", Body: "body"})
	assert.Equal(t, []string{"hi"}, msg.GetHeader("Subject"))
	assert.Equal(t, []string{string(TypeTransferCompleted)}, msg.GetHeader("X-Notification-Type"))
}
