package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mailfold/mailfold/internal/render"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// sanitizeName turns the local part of an address into a directory
// name safe on any filesystem
func sanitizeName(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	name := unsafeChars.ReplaceAllString(local, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "recipient"
	}
	if len(name) > 120 {
		name = name[:120]
	}
	return name
}

// WritePreview materializes a rendered message under dir as plain
// files, one directory per recipient, numbered in run order. Returns
// the recipient directory.
func WritePreview(dir string, seq int, msg *render.Message) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("preview directory not configured")
	}
	dest := filepath.Join(dir, sanitizeName(msg.To))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("failed to create preview directory: %w", err)
	}

	prefix := fmt.Sprintf("%03d", seq)
	files := map[string]string{
		prefix + ".subject.txt": msg.Subject + "\n",
		prefix + ".body.txt":    msg.Text,
	}
	if msg.HTML != "" {
		files[prefix+".body.html"] = msg.HTML
	}
	if len(msg.Attachments) > 0 {
		files[prefix+".attachments.txt"] = strings.Join(msg.Attachments, "\n") + "\n"
	}

	for name, content := range files {
		path := filepath.Join(dest, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return dest, nil
}
