// Package mailer is the SMTP mail sink. Each Send opens its own session,
// upgrades with STARTTLS, authenticates, transmits one multipart envelope
// and quits. The sink never retries; the scheduler owns retry policy.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gatherly/videochat/internal/v1/logging"
)

// ErrMail wraps any SMTP-level failure.
var ErrMail = errors.New("mail delivery failed")

const dialTimeout = 5 * time.Second

// Config carries the fixed SMTP session parameters.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
	FromName string
}

// SMTPMailer sends multipart (plain + HTML) notification emails.
type SMTPMailer struct {
	cfg Config
}

// New validates the From address and returns a mailer. The address check
// doubles as a header injection guard: net/mail rejects CR/LF.
func New(cfg Config) (*SMTPMailer, error) {
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	return &SMTPMailer{cfg: cfg}, nil
}

// Send delivers one email. Any failure from dial to DATA wraps ErrMail.
func (m *SMTPMailer) Send(ctx context.Context, subject, recipient, plainBody, htmlBody string) error {
	toAddr, err := sanitizeAddress(recipient)
	if err != nil {
		return fmt.Errorf("%w: invalid recipient: %v", ErrMail, err)
	}

	message, err := m.buildMessage(toAddr, subject, plainBody, htmlBody)
	if err != nil {
		return fmt.Errorf("%w: build message: %v", ErrMail, err)
	}

	serverAddr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	dialer := &net.Dialer{Timeout: dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", serverAddr)
	if err != nil {
		return fmt.Errorf("%w: connect: %v", ErrMail, err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("%w: handshake: %v", ErrMail, err)
	}
	defer client.Quit()

	tlsConfig := &tls.Config{
		ServerName: m.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("%w: starttls: %v", ErrMail, err)
	}

	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("%w: auth: %v", ErrMail, err)
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("%w: MAIL FROM: %v", ErrMail, err)
	}
	if err := client.Rcpt(toAddr); err != nil {
		return fmt.Errorf("%w: RCPT TO: %v", ErrMail, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("%w: DATA: %v", ErrMail, err)
	}
	if _, err := w.Write(message); err != nil {
		w.Close()
		return fmt.Errorf("%w: write body: %v", ErrMail, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: close body: %v", ErrMail, err)
	}

	logging.Info(ctx, "Email sent",
		zap.String("recipient", logging.RedactEmail(toAddr)),
		zap.String("subject", subject))
	return nil
}

// buildMessage assembles an RFC 5322 message with a multipart/alternative
// body: text/plain first, text/html second, so capable clients prefer HTML.
func (m *SMTPMailer) buildMessage(to, subject, plainBody, htmlBody string) ([]byte, error) {
	var sb strings.Builder

	from := mail.Address{Name: m.cfg.FromName, Address: m.cfg.From}
	body := &strings.Builder{}
	mw := multipart.NewWriter(body)

	sb.WriteString(fmt.Sprintf("From: %s\r\n", from.String()))
	sb.WriteString(fmt.Sprintf("To: %s\r\n", to))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", sanitizeHeader(subject)))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary()))
	sb.WriteString("\r\n")

	plainPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := plainPart.Write([]byte(plainBody)); err != nil {
		return nil, err
	}

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=UTF-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}

	sb.WriteString(body.String())
	return []byte(sb.String()), nil
}

// sanitizeAddress parses and normalizes an email address, rejecting anything
// net/mail cannot parse (including CR/LF header injection attempts).
func sanitizeAddress(addr string) (string, error) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(addr))
	if err != nil {
		return "", err
	}
	return parsed.Address, nil
}

// sanitizeHeader strips CR/LF from free-text header values.
func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", "")
	return strings.ReplaceAll(v, "\n", "")
}
