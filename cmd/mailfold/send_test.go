package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mailfold/mailfold/internal/config"
)

// scratchWorkspace lays out a minimal contact list and template set
func scratchWorkspace(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()

	langDir := filepath.Join(dir, "templates", "en")
	if err := os.MkdirAll(langDir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(dir, "contacts.csv"):    "name,email,lang\nAda,ada@example.org,en\n",
		filepath.Join(langDir, "subject.txt"): "Hello $name\n",
		filepath.Join(langDir, "body.txt"):    "Dear $name,\n",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{}
	cfg.Contacts.Path = filepath.Join(dir, "contacts.csv")
	cfg.Templates.Root = filepath.Join(dir, "templates")
	cfg.Templates.DefaultLang = "en"
	cfg.Ledger.Path = filepath.Join(dir, "logs", "sent.csv")
	cfg.Lock.Path = filepath.Join(dir, "logs", "run.lock")
	cfg.Preview.Dir = filepath.Join(dir, "logs", "dry-run")
	cfg.Report.Path = filepath.Join(dir, "logs", "dashboard.html")
	return cfg, dir
}

func TestDryRunWritesDashboard(t *testing.T) {
	cfg, _ := scratchWorkspace(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := runOnce(context.Background(), cfg, &sendFlags{dryRun: true}, nil, logger)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	data, err := os.ReadFile(cfg.Report.Path)
	if err != nil {
		t.Fatalf("dashboard not regenerated after dry run: %v", err)
	}
	html := string(data)
	if !strings.Contains(html, "ada@example.org") {
		t.Error("dashboard missing recipient row")
	}
	if !strings.Contains(html, "Pending: <strong>1</strong>") {
		t.Error("dry run must leave the recipient pending on the dashboard")
	}

	// Preview artifacts exist, delivery state does not
	if _, err := os.Stat(filepath.Join(cfg.Preview.Dir, "ada", "001.subject.txt")); err != nil {
		t.Errorf("preview missing: %v", err)
	}
	ledgerData, err := os.ReadFile(cfg.Ledger.Path)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Split(strings.TrimSpace(string(ledgerData)), "\n"); len(lines) != 1 {
		t.Errorf("dry run wrote ledger entries:\n%s", ledgerData)
	}
}
