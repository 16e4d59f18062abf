package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/mailfold/mailfold/internal/config"
	"github.com/mailfold/mailfold/internal/dkim"
)

// DeliveryError represents a delivery error with type information
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// Transport submits composed messages to the configured relay over an
// authenticated TLS session.
type Transport struct {
	cfg      config.SMTPConfig
	hostname string
	signer   *dkim.Signer
	logger   *slog.Logger
}

// NewTransport creates a relay transport
func NewTransport(cfg config.SMTPConfig, logger *slog.Logger) *Transport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	return &Transport{
		cfg:      cfg,
		hostname: hostname,
		logger:   logger,
	}
}

// SetDKIMSigner enables DKIM signing of submitted messages
func (t *Transport) SetDKIMSigner(signer *dkim.Signer) {
	t.signer = signer
}

// Submit opens an authenticated session to the relay and submits the
// envelope. All failures come back as *DeliveryError.
func (t *Transport) Submit(ctx context.Context, env *Envelope) error {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))

	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("connection failed to %s: %v", addr, err),
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(t.cfg.Timeout))
	}

	tlsConfig := &tls.Config{
		ServerName: t.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
	if !t.cfg.StartTLS {
		conn = tls.Client(conn, tlsConfig)
	}

	client := smtp.NewClient(conn)
	defer client.Close()

	if err := client.Hello(t.hostname); err != nil {
		return categorizeError(err, "HELO")
	}

	if t.cfg.StartTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			return &DeliveryError{
				Temporary: true,
				Message:   fmt.Sprintf("STARTTLS failed: %v", err),
			}
		}
	}

	if t.cfg.Username != "" {
		auth := sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return categorizeError(err, "AUTH")
		}
	}

	data := env.Data
	if t.signer != nil {
		signed, err := t.signer.Sign(data)
		if err != nil {
			t.logger.Warn("DKIM signing failed, sending unsigned",
				"domain", t.signer.Domain(),
				"error", err,
			)
		} else {
			data = signed
		}
	}

	if err := client.Mail(env.From, nil); err != nil {
		return categorizeError(err, "MAIL FROM")
	}

	for _, rcpt := range env.Recipients {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return categorizeError(err, fmt.Sprintf("RCPT TO %s", rcpt))
		}
	}

	wc, err := client.Data()
	if err != nil {
		return categorizeError(err, "DATA")
	}
	if _, err := bytes.NewReader(data).WriteTo(wc); err != nil {
		wc.Close()
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("failed to write message data: %v", err),
		}
	}
	if err := wc.Close(); err != nil {
		return categorizeError(err, "DATA close")
	}

	client.Quit()

	t.logger.Debug("message submitted",
		"relay", addr,
		"from", env.From,
		"recipients", len(env.Recipients),
	)

	return nil
}

// smtpCodePattern matches SMTP response codes at word boundaries
var smtpCodePattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// categorizeError determines if an SMTP error is temporary or permanent
func categorizeError(err error, stage string) *DeliveryError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return &DeliveryError{
			Temporary: smtpErr.Code < 500,
			Message:   msg,
		}
	}

	matches := smtpCodePattern.FindStringSubmatch(err.Error())
	if len(matches) > 1 {
		if strings.HasPrefix(matches[1], "5") {
			return &DeliveryError{Temporary: false, Message: msg}
		}
		return &DeliveryError{Temporary: true, Message: msg}
	}

	// Assume temporary by default
	return &DeliveryError{Temporary: true, Message: msg}
}

// IsTemporaryError checks if the error is temporary
func IsTemporaryError(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true
}
