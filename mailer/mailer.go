// Package mailer delivers two-factor codes by email.
package mailer

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// Mailer sends one-time codes through an SMTP server.
type Mailer struct {
	from    string
	appName string
	send    func(msgs ...*gomail.Message) error
}

// New returns a Mailer that dials the SMTP server for every message.
func New(smtpHost string, smtpPort int, smtpUser, smtpPassword, appName string) *Mailer {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &Mailer{
		from:    smtpUser,
		appName: appName,
		send:    dialer.DialAndSend,
	}
}

// NewWithSender returns a Mailer that hands messages to sender.
func NewWithSender(sender gomail.Sender, from, appName string) *Mailer {
	return &Mailer{
		from:    from,
		appName: appName,
		send: func(msgs ...*gomail.Message) error {
			return gomail.Send(sender, msgs...)
		},
	}
}

// SendCode mails the current two-factor code to the user.
func (m *Mailer) SendCode(ctx context.Context, to, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("Your %s verification code", m.appName))

	body := fmt.Sprintf(`
		<h3>Two-factor verification</h3>
		<p>Your verification code is <strong>%s</strong>.</p>
		<p>The code expires in about 30 seconds. If you did not try to sign in, change your password.</p>
	`, code)
	msg.SetBody("text/html", body)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("failed to send verification code: %w", err)
	}
	return nil
}
