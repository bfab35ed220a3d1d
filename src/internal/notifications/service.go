// Package notifications e-mails the parties of a land transfer.
package notifications

import (
	"log/slog"
	"sync"

	"github.com/casapps/landregistry/src/internal/database/models"
	"github.com/spf13/viper"
)

// Service renders and delivers transfer notifications. Delivery happens in
// the background; failures are logged and never reach the caller.
type Service struct {
	enabled   bool
	appName   string
	sender    Sender
	templates map[Type]*messageTemplate
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewService creates a new notifications service. A nil sender uses the
// SMTP mailer built from cfg.
func NewService(cfg *viper.Viper, sender Sender, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if sender == nil {
		sender = NewMailer(cfg)
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	return &Service{
		enabled:   cfg.GetBool("email.enabled"),
		appName:   cfg.GetString("app.name"),
		sender:    sender,
		templates: templates,
		logger:    logger,
	}, nil
}

// Enabled reports whether notifications are delivered
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

// TransferInitiated tells the recipient about a new transfer. The transfer
// must have Land, FromUser and ToUser loaded.
func (s *Service) TransferInitiated(transfer *models.Transfer) {
	if !s.Enabled() || transfer.ToUser == nil {
		return
	}
	s.dispatch(TypeTransferInitiated, transfer, transfer.ToUser)
}

// TransferFinished tells both parties how an executed transfer ended
func (s *Service) TransferFinished(transfer *models.Transfer) {
	if !s.Enabled() {
		return
	}

	typ := TypeTransferCompleted
	if transfer.Status == models.TransferStatusFailed {
		typ = TypeTransferFailed
	}
	for _, party := range []*models.User{transfer.FromUser, transfer.ToUser} {
		if party != nil {
			s.dispatch(typ, transfer, party)
		}
	}
}

// Wait blocks until every queued delivery has finished
func (s *Service) Wait() {
	if s != nil {
		s.wg.Wait()
	}
}

func (s *Service) dispatch(typ Type, transfer *models.Transfer, recipient *models.User) {
	msg, err := s.render(typ, transfer, recipient)
	if err != nil {
		s.logger.Error("failed to render notification", "type", typ, "transfer_id", transfer.ID, "error", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sender.Send(msg); err != nil {
			s.logger.Warn("failed to deliver notification", "type", typ, "to", msg.To, "transfer_id", transfer.ID, "error", err)
			return
		}
		s.logger.Debug("notification delivered", "type", typ, "to", msg.To, "transfer_id", transfer.ID)
	}()
}

func (s *Service) render(typ Type, transfer *models.Transfer, recipient *models.User) (*Message, error) {
	data := TemplateData{
		AppName:       s.appName,
		RecipientName: displayName(recipient),
		FromName:      displayName(transfer.FromUser),
		ToName:        displayName(transfer.ToUser),
		TransferType:  string(transfer.TransferType),
		TxHash:        deref(transfer.BlockchainTxHash),
		FailureReason: deref(transfer.FailureReason),
	}
	if transfer.Land != nil {
		data.LandTitle = transfer.Land.Title
		data.PropertyID = transfer.Land.PropertyID
	}
	if transfer.Price.IsPositive() {
		data.Price = transfer.Price.StringFixed(2)
	}

	subject, body, err := s.templates[typ].render(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:    typ,
		To:      recipient.Email,
		ToName:  displayName(recipient),
		Subject: subject,
		Body:    body,
	}, nil
}

func displayName(u *models.User) string {
	if u == nil {
		return ""
	}
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Username
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
