// Package mail builds MIME messages and submits them to an
// authenticated relay.
package mail

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/domodwyer/mailyak/v3"
	"github.com/google/uuid"

	"github.com/mailfold/mailfold/internal/render"
)

// Sender identifies the sending party on outgoing messages.
type Sender struct {
	Email   string
	Name    string
	ReplyTo string
}

// Envelope is a composed message ready for submission.
type Envelope struct {
	From       string
	Recipients []string
	Data       []byte
}

// BuildMessage composes the MIME message for a rendered message.
// Bcc recipients appear only in the envelope recipient list, never in
// the message data. Attachments that disappeared between render and
// build are logged and skipped, not fatal.
func BuildMessage(msg *render.Message, s Sender, logger *slog.Logger) (*Envelope, error) {
	m := mailyak.New("", nil)
	m.From(s.Email)
	m.FromName(s.Name)
	if s.ReplyTo != "" {
		m.ReplyTo(s.ReplyTo)
	}
	m.To(msg.To)
	if len(msg.CC) > 0 {
		m.Cc(msg.CC...)
	}
	m.Subject(msg.Subject)
	m.AddHeader("Message-ID", messageID(s.Email))

	m.Plain().Set(msg.Text)
	if msg.HTML != "" {
		m.HTML().Set(msg.HTML)
	}

	for _, path := range msg.Attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("attachment unreadable, skipping", "path", path, "error", err)
			continue
		}
		m.Attach(filepath.Base(path), bytes.NewReader(data))
	}

	buf, err := m.MimeBuf()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	return &Envelope{
		From:       s.Email,
		Recipients: msg.Recipients(),
		Data:       buf.Bytes(),
	}, nil
}

func messageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.New(), domain)
}
