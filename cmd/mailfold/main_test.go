package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mailfold/mailfold/internal/config"
)

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv("MAILFOLD_PASSWORD", "hunter2")

	path := filepath.Join(t.TempDir(), "mailfold.yaml")
	if err := os.WriteFile(path, []byte(exampleConfig), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Sender.Email != "you@example.com" {
		t.Errorf("unexpected sender: %s", cfg.Sender.Email)
	}
	if cfg.SMTP.Password != "hunter2" {
		t.Errorf("password not expanded from environment: %q", cfg.SMTP.Password)
	}
	if cfg.SMTP.Host != "smtp.gmail.com" || cfg.SMTP.Port != 465 {
		t.Errorf("unexpected relay: %s:%d", cfg.SMTP.Host, cfg.SMTP.Port)
	}
}

func TestRenderDefaults(t *testing.T) {
	cfg := &config.Config{}
	cfg.Sender.Email = "jane@example.com"
	cfg.Sender.Name = "Jane"
	cfg.Sender.ReplyTo = "news@example.com"
	cfg.Variables = map[string]string{
		"event":     "Spring Meetup",
		"from_name": "The Team",
	}

	vars := renderDefaults(cfg)
	if vars["from_email"] != "jane@example.com" || vars["reply_to"] != "news@example.com" {
		t.Errorf("sender defaults missing: %v", vars)
	}
	if vars["event"] != "Spring Meetup" {
		t.Errorf("config variables not merged: %v", vars)
	}
	if vars["from_name"] != "The Team" {
		t.Errorf("config variables should override built-ins, got %q", vars["from_name"])
	}
}

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := &config.Config{}
		cfg.Logging.Level = level
		cfg.Logging.Format = "json"
		if logger := newLogger(cfg); logger == nil {
			t.Errorf("nil logger for level %s", level)
		}
	}
}
