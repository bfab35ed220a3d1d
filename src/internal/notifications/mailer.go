package notifications

import (
	"crypto/tls"
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/gomail.v2"
)

// Sender delivers a rendered message
type Sender interface {
	Send(msg *Message) error
}

// Mailer sends messages over SMTP
type Mailer struct {
	cfg    *viper.Viper
	dialer *gomail.Dialer
}

// NewMailer creates a new mailer instance
func NewMailer(cfg *viper.Viper) *Mailer {
	var dialer *gomail.Dialer

	if cfg.GetBool("email.enabled") {
		host := cfg.GetString("email.smtp.host")
		dialer = gomail.NewDialer(
			host,
			cfg.GetInt("email.smtp.port"),
			cfg.GetString("email.smtp.username"),
			cfg.GetString("email.smtp.password"),
		)

		if cfg.GetBool("email.smtp.use_tls") {
			dialer.TLSConfig = &tls.Config{
				ServerName: host,
				MinVersion: tls.VersionTLS12,
			}
		}
	}

	return &Mailer{
		cfg:    cfg,
		dialer: dialer,
	}
}

// Send sends a message
func (m *Mailer) Send(msg *Message) error {
	if m.dialer == nil {
		return fmt.Errorf("email sending is disabled")
	}

	message := m.compose(msg)
	if err := m.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// TestConnection dials the SMTP server without sending anything
func (m *Mailer) TestConnection() error {
	if m.dialer == nil {
		return fmt.Errorf("email dialer not configured")
	}

	closer, err := m.dialer.Dial()
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	return closer.Close()
}

func (m *Mailer) compose(msg *Message) *gomail.Message {
	message := gomail.NewMessage()
	message.SetAddressHeader("From", m.cfg.GetString("email.from.address"), m.cfg.GetString("email.from.name"))
	message.SetAddressHeader("To", msg.To, msg.ToName)
	message.SetHeader("Subject", msg.Subject)
	message.SetHeader("X-Mailer", m.cfg.GetString("app.name"))
	message.SetHeader("X-Notification-Type", string(msg.Type))
	message.SetBody("text/plain", msg.Body)
	return message
}
