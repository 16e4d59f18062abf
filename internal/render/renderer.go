// Package render turns a recipient record into a fully-resolved message:
// subject, plain body, optional HTML body and attachment paths.
package render

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mailfold/mailfold/internal/contacts"
)

// ErrTemplateNotFound indicates a missing subject or body template.
var ErrTemplateNotFound = errors.New("template not found")

// Message is a fully-resolved message, produced fresh per send attempt
// and never persisted.
type Message struct {
	To      string
	CC      []string
	BCC     []string
	Subject string
	Text    string
	HTML    string
	Lang    string

	// Attachments are resolved, existing file paths in stable order.
	Attachments []string
}

// Recipients returns every envelope recipient: to, cc and bcc.
func (m *Message) Recipients() []string {
	out := make([]string, 0, 1+len(m.CC)+len(m.BCC))
	out = append(out, m.To)
	out = append(out, m.CC...)
	out = append(out, m.BCC...)
	return out
}

// Config controls template and attachment resolution.
type Config struct {
	TemplateRoot    string
	AttachRoot      string
	DefaultLang     string
	LangDirFallback bool

	// Defaults are substitution variables layered under the row's
	// columns; typically from_name, from_email and reply_to.
	Defaults map[string]string
}

// Renderer renders messages for recipient records.
type Renderer struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Renderer.
func New(cfg Config, logger *slog.Logger) *Renderer {
	if cfg.DefaultLang == "" {
		cfg.DefaultLang = "en"
	}
	return &Renderer{cfg: cfg, logger: logger}
}

// Render resolves templates and attachments for one recipient.
// A missing subject or body template fails with ErrTemplateNotFound;
// unmatched attachment patterns are logged and skipped.
func (r *Renderer) Render(rec contacts.Record) (*Message, error) {
	lang := rec.Lang
	if lang == "" {
		lang = r.cfg.DefaultLang
	}
	langDir := filepath.Join(r.cfg.TemplateRoot, lang)

	subjPath := rec.SubjectFile
	if subjPath == "" {
		subjPath = filepath.Join(langDir, "subject.txt")
	}
	bodyPath := rec.BodyFile
	if bodyPath == "" {
		bodyPath = filepath.Join(langDir, "body.txt")
	}
	htmlPath := rec.HTMLFile
	if htmlPath == "" {
		htmlPath = filepath.Join(langDir, "body.html")
	}

	subjTpl, err := readTemplate(subjPath)
	if err != nil {
		return nil, err
	}
	bodyTpl, err := readTemplate(bodyPath)
	if err != nil {
		return nil, err
	}

	// The HTML part is optional per language
	var htmlTpl string
	if data, err := os.ReadFile(htmlPath); err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			htmlTpl = string(data)
		}
	}

	vars := MergeVars(r.cfg.Defaults, rec.Vars)

	subject := strings.ReplaceAll(strings.TrimSpace(Substitute(subjTpl, vars)), "\n", " ")

	msg := &Message{
		To:      rec.Email,
		CC:      rec.CC,
		BCC:     rec.BCC,
		Subject: subject,
		Text:    Substitute(bodyTpl, vars),
		Lang:    lang,
	}
	if htmlTpl != "" {
		msg.HTML = Substitute(htmlTpl, vars)
	}

	msg.Attachments = r.resolveAttachments(rec, lang)

	return msg, nil
}

func (r *Renderer) resolveAttachments(rec contacts.Record, lang string) []string {
	files, unmatched := ExpandAttachments(rec.Attachments)
	for _, pat := range unmatched {
		r.logger.Warn("attachment pattern matched nothing", "recipient", rec.Email, "pattern", pat)
	}

	if len(files) == 0 && rec.Attachments == "" && r.cfg.LangDirFallback {
		dir := filepath.Join(r.cfg.AttachRoot, lang)
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			files = langDirAttachments(dir)
		}
	}

	return files
}

func readTemplate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
	}
	return string(data), nil
}
