package ledger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openLedger(t *testing.T, path string) *Ledger {
	t.Helper()
	l, err := Open(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.csv")

	l := openLedger(t, path)
	if l.HasSent("ada@example.org") {
		t.Error("fresh ledger should have no sent entries")
	}

	err := l.Record(Entry{
		Email:   "ada@example.org",
		Name:    "Ada",
		Lang:    "en",
		Subject: "Hello",
		Outcome: OutcomeSent,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = l.Record(Entry{
		Email:   "ben@example.org",
		Outcome: OutcomeFailed,
		Detail:  "550 user unknown",
	})
	if err != nil {
		t.Fatal(err)
	}

	if !l.HasSent("ada@example.org") {
		t.Error("sent entry not indexed")
	}
	if l.HasSent("ben@example.org") {
		t.Error("failed entry must not count as sent")
	}
	l.Close()

	// A new process sees the same state
	l2 := openLedger(t, path)
	if !l2.HasSent("ada@example.org") {
		t.Error("sent entry lost across reload")
	}
	if l2.HasSent("ben@example.org") {
		t.Error("failed entry counted as sent after reload")
	}
	if got := l2.Latest()["ben@example.org"].Detail; got != "550 user unknown" {
		t.Errorf("detail lost: %q", got)
	}
}

func TestSchemaStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.csv")

	l := openLedger(t, path)
	if err := l.Record(Entry{Email: "a@x", Outcome: OutcomeSent, Subject: "s"}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "time,email,name,lang,subject,status,error" {
		t.Errorf("header schema changed: %q", lines[0])
	}
	if len(lines) != 2 {
		t.Errorf("expected header + 1 row, got %d lines", len(lines))
	}
}

func TestHeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.csv")

	l := openLedger(t, path)
	l.Record(Entry{Email: "a@x", Outcome: OutcomeSent})
	l.Close()

	l2 := openLedger(t, path)
	l2.Record(Entry{Email: "b@x", Outcome: OutcomeSent})
	l2.Close()

	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "time,email"); n != 1 {
		t.Errorf("expected exactly one header, found %d", n)
	}
}

func TestTruncatedTailTolerated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.csv")

	l := openLedger(t, path)
	l.Record(Entry{Email: "a@x", Outcome: OutcomeSent})
	l.Close()

	// Simulate a crash mid-append: a partial record without newline
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("2026-08-29T10:00:00,half@x,Half")
	f.Close()

	l2 := openLedger(t, path)
	if !l2.HasSent("a@x") {
		t.Error("intact entry lost after truncated tail")
	}
	if l2.HasSent("half@x") {
		t.Error("partial record must not count as sent")
	}

	// A post-crash append must land on its own line
	if err := l2.Record(Entry{Email: "b@x", Outcome: OutcomeSent}); err != nil {
		t.Fatal(err)
	}
	l2.Close()

	l3 := openLedger(t, path)
	if !l3.HasSent("b@x") {
		t.Error("append after repair not readable")
	}
}

func TestNewlineFieldsSurviveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.csv")

	// A quoted multi-line name is valid CSV input upstream, and SMTP
	// error text can span lines too; neither may break a record across
	// physical lines.
	l := openLedger(t, path)
	err := l.Record(Entry{
		Email:   "ada@example.org",
		Name:    "Ada\nLovelace",
		Lang:    "en",
		Subject: "Hello",
		Outcome: OutcomeSent,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = l.Record(Entry{
		Email:   "ben@example.org",
		Outcome: OutcomeFailed,
		Detail:  "554 rejected\r\nsee https://example.org/policy",
	})
	if err != nil {
		t.Fatal(err)
	}
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 single-line rows, got %d lines:\n%s", len(lines), data)
	}

	l2 := openLedger(t, path)
	if !l2.HasSent("ada@example.org") {
		t.Error("sent entry lost across reload: recipient would be double-sent")
	}
	if got := l2.Latest()["ada@example.org"].Name; got != "Ada Lovelace" {
		t.Errorf("name not flattened: %q", got)
	}
	if got := l2.Latest()["ben@example.org"].Detail; got != "554 rejected see https://example.org/policy" {
		t.Errorf("detail not flattened: %q", got)
	}
}

func TestReadLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.csv")

	l := openLedger(t, path)
	l.Record(Entry{Email: "a@x", Subject: "s1", Outcome: OutcomeSent})
	l.Record(Entry{Email: "a@x", Subject: "s2", Outcome: OutcomeFailed, Detail: "451 later"})
	l.Close()

	latest, err := ReadLatest(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if got := latest["a@x"]; got.Subject != "s2" || got.Outcome != OutcomeFailed {
		t.Errorf("unexpected latest entry: %+v", got)
	}
}

func TestReadLatestMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.csv")

	latest, err := ReadLatest(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 0 {
		t.Errorf("expected empty history, got %d entries", len(latest))
	}
	// Reading must not materialize the ledger
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("read-only load created the ledger file")
	}
}

func TestRecordFillsTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.csv")
	l := openLedger(t, path)

	before := time.Now().Add(-time.Second)
	if err := l.Record(Entry{Email: "a@x", Outcome: OutcomeSent}); err != nil {
		t.Fatal(err)
	}
	got := l.Latest()["a@x"].Time
	if got.Before(before) {
		t.Errorf("timestamp not filled: %v", got)
	}
}
