package services

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type EmailService interface {
	SendEmail(to, subject, msg string) error
}

// EmailSender delivers mail over SMTP and serves as the email channel Sender.
type EmailSender struct {
	from   string
	dialer *gomail.Dialer
}

var (
	_ EmailService = (*EmailSender)(nil)
	_ Sender       = (*EmailSender)(nil)
)

func NewEmailSender(host string, port int, username, password, from string) *EmailSender {
	if from == "" {
		from = username
	}
	return &EmailSender{
		from:   from,
		dialer: gomail.NewDialer(host, port, username, password),
	}
}

func (e *EmailSender) message(to, subject, msg string) *gomail.Message {
	m := gomail.NewMessage()

	m.SetHeader("From", e.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", msg)
	return m
}

func (e *EmailSender) SendEmail(to, subject, msg string) error {
	if err := e.dialer.DialAndSend(e.message(to, subject, msg)); err != nil {
		return fmt.Errorf("%w: smtp: %v", ErrDeliveryFailure, err)
	}
	return nil
}

func (e *EmailSender) Send(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.SendEmail(n.To, n.Subject(), n.Text())
}
