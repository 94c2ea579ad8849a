package providers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"

	"marketwatch/internal/config"
	"marketwatch/internal/models"
)

// SendEmail delivers an alert message over SMTP. The recipient address
// comes from the task's channel params. The whole session is bounded by
// ctx: the dial honors cancellation and the connection deadline is set
// from the ctx deadline, so a hung server fails the send instead of
// stalling the caller.
func SendEmail(ctx context.Context, event models.AlertEvent, message string, params models.ChannelParams, cfg config.Config) error {
	recipient := ""
	if params != nil {
		recipient, _ = params["email"].(string)
	}
	if recipient == "" {
		return fmt.Errorf("missing email params: email is required")
	}

	smtpServer := cfg.Email.SMTPServer
	smtpPort := cfg.Email.SMTPPort
	username := cfg.Email.Username
	password := cfg.Email.Password

	if smtpServer == "" || smtpPort == 0 || username == "" || password == "" {
		return fmt.Errorf("missing Email configuration: SMTPServer, SMTPPort, Username, or Password is empty")
	}

	body := fmt.Sprintf("Subject: %s\n\n%s", event.Subject(), message)
	addr := fmt.Sprintf("%s:%d", smtpServer, smtpPort)

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server %s: %w", addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, smtpServer)
	if err != nil {
		return fmt.Errorf("SMTP handshake with %s failed: %w", addr, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: smtpServer}); err != nil {
			return fmt.Errorf("STARTTLS with %s failed: %w", addr, err)
		}
	}

	auth := smtp.PlainAuth("", username, password, smtpServer)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth failed: %w", err)
	}
	if err := client.Mail(username); err != nil {
		return fmt.Errorf("SMTP MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("SMTP RCPT TO %s failed: %w", recipient, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA failed: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("failed to write email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", recipient, err)
	}

	return client.Quit()
}
