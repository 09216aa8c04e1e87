package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	UseTLS   bool
}

// EmailChannel sends reminders over SMTP.
type EmailChannel struct {
	config SMTPConfig
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel constructs an EmailChannel.
func NewEmailChannel(config SMTPConfig) *EmailChannel {
	c := &EmailChannel{config: config}
	c.send = smtp.SendMail
	if config.UseTLS {
		c.send = c.sendTLS
	}
	return c
}

// Name implements Channel.
func (c *EmailChannel) Name() string { return "email" }

// Reaches implements Channel.
func (c *EmailChannel) Reaches(r Recipient) bool {
	return c.config.Host != "" && strings.Contains(r.Email, "@")
}

// SendExpiryReminder implements Channel. net/smtp has no context support, so the send runs in a
// goroutine and the call returns when ctx is done.
func (c *EmailChannel) SendExpiryReminder(ctx context.Context, r Recipient, m Message) error {
	msg := c.render(r, m)
	var auth smtp.Auth
	if c.config.User != "" {
		auth = smtp.PlainAuth("", c.config.User, c.config.Password, c.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	done := make(chan error, 1)
	go func() {
		done <- c.send(addr, auth, c.config.From, []string{r.Email}, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *EmailChannel) render(r Recipient, m Message) []byte {
	var msg bytes.Buffer
	if c.config.FromName != "" {
		msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", c.config.FromName, c.config.From))
	} else {
		msg.WriteString(fmt.Sprintf("From: %s\r\n", c.config.From))
	}
	msg.WriteString(fmt.Sprintf("To: %s\r\n", r.Email))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", m.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(m.Body)
	return msg.Bytes()
}

func (c *EmailChannel) sendTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: c.config.Host})
	if err != nil {
		return fmt.Errorf("tls dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, c.config.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt: %w", err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return client.Quit()
}
