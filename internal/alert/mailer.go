package alert

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// Notifier delivers operational compliance alerts. An unaudited PHI access
// is a compliance incident, so delivery failures are surfaced to the caller
// for logging rather than swallowed.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// Mailer sends alerts to the on-call compliance address over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	to     string
}

func NewMailer(cfg Config) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		to:     cfg.To,
	}
}

func (m *Mailer) Notify(_ context.Context, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to)
	msg.SetHeader("Subject", fmt.Sprintf("[phicore] %s", subject))
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	return nil
}
