package report

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mailfold/mailfold/internal/contacts"
	"github.com/mailfold/mailfold/internal/ledger"
)

func sampleData() ([]contacts.Record, map[string]ledger.Entry) {
	recs := []contacts.Record{
		{Name: "Ann", Email: "ann@example.com", Lang: "en"},
		{Name: "Bob", Email: "bob@example.com", Lang: "de"},
		{Name: "Cat", Email: "cat@example.com", Lang: "en"},
	}
	at := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	latest := map[string]ledger.Entry{
		"ann@example.com": {Time: at, Email: "ann@example.com", Subject: "Hello Ann", Outcome: ledger.OutcomeSent},
		"bob@example.com": {Time: at, Email: "bob@example.com", Subject: "Hallo Bob", Outcome: ledger.OutcomeFailed, Detail: "550 no such user"},
	}
	return recs, latest
}

func TestBuildCounts(t *testing.T) {
	recs, latest := sampleData()
	s := Build(recs, latest)

	if s.Total != 3 || s.Sent != 1 || s.Failed != 1 || s.Pending != 1 {
		t.Errorf("unexpected totals: %+v", s)
	}
	if len(s.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(s.Rows))
	}
	if s.Rows[0].Email != "ann@example.com" || s.Rows[0].Status != "sent" {
		t.Errorf("unexpected first row: %+v", s.Rows[0])
	}
	if s.Rows[1].Detail != "550 no such user" {
		t.Errorf("expected failure detail on bob's row, got %+v", s.Rows[1])
	}
	if s.Rows[2].Status != "pending" || s.Rows[2].At != "" {
		t.Errorf("expected cat pending with no timestamp, got %+v", s.Rows[2])
	}
}

func TestWriteHTML(t *testing.T) {
	recs, latest := sampleData()
	path := filepath.Join(t.TempDir(), "reports", "dashboard.html")

	if err := Build(recs, latest).WriteHTML(path); err != nil {
		t.Fatalf("WriteHTML failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	html := string(data)
	for _, want := range []string{
		"ann@example.com",
		"Hello Ann",
		"550 no such user",
		"Recipients: <strong>3</strong>",
		"Sent: <strong>1</strong>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestServerServesDashboard(t *testing.T) {
	recs, latest := sampleData()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer("127.0.0.1:0", func() (*Summary, error) {
		return Build(recs, latest), nil
	}, logger)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bob@example.com") {
		t.Error("dashboard body missing recipient row")
	}
}

func TestServerBuildFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer("127.0.0.1:0", func() (*Summary, error) {
		return nil, errors.New("ledger unreadable")
	}, logger)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
