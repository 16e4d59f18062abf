// Package ledger keeps the durable, append-only record of delivery
// attempts. The file is a flat CSV with a stable column schema consumed
// by external reporting; dedup is keyed by recipient email alone.
package ledger

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Outcome is the terminal result of one delivery attempt
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// columns is the stable schema; changing it breaks external consumers.
var columns = []string{"time", "email", "name", "lang", "subject", "status", "error"}

// Entry is one durable record of a completed delivery attempt
type Entry struct {
	Time    time.Time
	Email   string
	Name    string
	Lang    string
	Subject string
	Outcome Outcome
	Detail  string
}

// Ledger is an append-only send ledger backed by a CSV file.
// Entries are flushed and synced before Record returns, so a crash
// mid-run leaves the file consistent with the attempts actually made.
type Ledger struct {
	path   string
	logger *slog.Logger

	f      *os.File
	sent   map[string]bool
	latest map[string]Entry
}

// Open loads the ledger at path, creating it on first use. A truncated
// trailing line left by an earlier abrupt termination is tolerated:
// malformed lines are skipped on read and the next append starts on a
// fresh line.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	l := &Ledger{
		path:   path,
		logger: logger,
		sent:   make(map[string]bool),
		latest: make(map[string]Entry),
	}

	if err := l.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger for append: %w", err)
	}
	l.f = f

	if err := l.prepareAppend(); err != nil {
		f.Close()
		return nil, err
	}

	return l, nil
}

// load reads the existing file line by line so one corrupt line cannot
// poison the rest of the history.
func (l *Ledger) load() error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}

		fields, err := parseLine(text)
		if err != nil || len(fields) < len(columns) {
			if line == 1 {
				continue // header or pre-header garbage
			}
			l.logger.Warn("skipping malformed ledger line", "line", line)
			continue
		}
		if fields[0] == "time" {
			continue // header
		}

		e := entryFromFields(fields)
		l.latest[e.Email] = e
		if e.Outcome == OutcomeSent {
			l.sent[e.Email] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan ledger: %w", err)
	}
	return nil
}

// prepareAppend writes the header on a fresh file and repairs a file
// whose previous writer died before finishing the trailing newline.
func (l *Ledger) prepareAppend() error {
	fi, err := l.f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat ledger: %w", err)
	}

	if fi.Size() == 0 {
		return l.writeRow(columns)
	}

	buf := make([]byte, 1)
	if _, err := l.f.ReadAt(buf, fi.Size()-1); err == nil && buf[0] != '\n' {
		if _, err := l.f.Write([]byte("\n")); err != nil {
			return fmt.Errorf("failed to repair ledger tail: %w", err)
		}
	}
	return nil
}

// ReadLatest loads the most recent entry per recipient without
// creating or modifying the file. A missing ledger reads as empty
// history, so reporting against a fresh workspace stays side-effect
// free.
func ReadLatest(path string, logger *slog.Logger) (map[string]Entry, error) {
	l := &Ledger{
		path:   path,
		logger: logger,
		sent:   make(map[string]bool),
		latest: make(map[string]Entry),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l.latest, nil
}

// HasSent reports whether any prior sent entry exists for email
func (l *Ledger) HasSent(email string) bool {
	return l.sent[strings.TrimSpace(email)]
}

// Record durably appends one entry. The write is synced to disk before
// returning so the ledger never lags behind actual delivery attempts.
// Line breaks inside fields are collapsed to spaces; a record spanning
// physical lines would be unreadable to the line-based loader.
func (l *Ledger) Record(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.Email = flatten(e.Email)
	e.Name = flatten(e.Name)
	e.Lang = flatten(e.Lang)
	e.Subject = flatten(e.Subject)
	e.Detail = flatten(e.Detail)

	row := []string{
		e.Time.Format("2006-01-02T15:04:05"),
		e.Email,
		e.Name,
		e.Lang,
		e.Subject,
		string(e.Outcome),
		e.Detail,
	}
	if err := l.writeRow(row); err != nil {
		return err
	}

	l.latest[e.Email] = e
	if e.Outcome == OutcomeSent {
		l.sent[e.Email] = true
	}
	return nil
}

func (l *Ledger) writeRow(row []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to encode ledger row: %w", err)
	}
	w.Flush()

	if _, err := l.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append ledger row: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	return nil
}

// Latest returns the most recent entry per email, for reporting
func (l *Ledger) Latest() map[string]Entry {
	out := make(map[string]Entry, len(l.latest))
	for k, v := range l.latest {
		out[k] = v
	}
	return out
}

// SentCount returns how many distinct addresses have a sent entry
func (l *Ledger) SentCount() int {
	return len(l.sent)
}

// Close closes the underlying file
func (l *Ledger) Close() error {
	return l.f.Close()
}

// flatten collapses line breaks to single spaces, keeping one record
// per physical line
func flatten(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func parseLine(text string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	return fields, err
}

func entryFromFields(fields []string) Entry {
	ts, _ := time.Parse("2006-01-02T15:04:05", fields[0])
	return Entry{
		Time:    ts,
		Email:   strings.TrimSpace(fields[1]),
		Name:    fields[2],
		Lang:    fields[3],
		Subject: fields[4],
		Outcome: Outcome(fields[5]),
		Detail:  fields[6],
	}
}
