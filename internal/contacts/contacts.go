// Package contacts loads the recipient list from a CSV file.
//
// The three columns name, email and lang are required; attachments, cc,
// bcc and the per-row template override columns are recognized when
// present. Every other column is carried as an extra template variable.
package contacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrMalformedInput indicates the list is missing required columns
	// or cannot be parsed at all.
	ErrMalformedInput = errors.New("malformed recipient list")

	// ErrInvalidRow indicates a row with an unusable email or an
	// unresolvable language.
	ErrInvalidRow = errors.New("invalid recipient row")
)

var requiredColumns = []string{"name", "email", "lang"}

// Record is one row of the recipient list. Immutable after load.
type Record struct {
	Name  string
	Email string
	Lang  string

	// Attachments is the raw comma/semicolon separated path spec;
	// globs are expanded at render time, not here.
	Attachments string

	CC  []string
	BCC []string

	// Per-row template overrides
	SubjectFile string
	BodyFile    string
	HTMLFile    string

	// Vars holds every column of the row, including the known ones,
	// for placeholder substitution.
	Vars map[string]string
}

// Load reads and validates the recipient list at path. templateRoot is
// used to verify that each row's language resolves to a template set.
func Load(path, templateRoot, defaultLang string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	defer f.Close()

	return parse(f, templateRoot, defaultLang)
}

func parse(r io.Reader, templateRoot, defaultLang string) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrMalformedInput, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.ToLower(header[i]))
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[h] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrMalformedInput, strings.Join(missing, ", "))
	}

	var records []Record
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedInput, line, err)
		}

		rec, err := buildRecord(header, row, templateRoot, defaultLang)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidRow, line, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func buildRecord(header, row []string, templateRoot, defaultLang string) (Record, error) {
	vars := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(row) {
			vars[h] = strings.TrimSpace(row[i])
		} else {
			vars[h] = ""
		}
	}

	rec := Record{
		Name:        vars["name"],
		Email:       vars["email"],
		Lang:        strings.ToLower(vars["lang"]),
		Attachments: vars["attachments"],
		CC:          SplitAddresses(vars["cc"]),
		BCC:         SplitAddresses(vars["bcc"]),
		SubjectFile: vars["subject_file"],
		BodyFile:    vars["body_file"],
		HTMLFile:    vars["body_html_file"],
		Vars:        vars,
	}

	if rec.Email == "" || !strings.Contains(rec.Email, "@") {
		return Record{}, fmt.Errorf("unusable email %q", rec.Email)
	}

	if rec.Lang == "" {
		rec.Lang = defaultLang
		rec.Vars["lang"] = defaultLang
	}

	// The language must resolve to a template directory unless the row
	// overrides both the subject and body template paths.
	if rec.SubjectFile == "" || rec.BodyFile == "" {
		langDir := filepath.Join(templateRoot, rec.Lang)
		if fi, err := os.Stat(langDir); err != nil || !fi.IsDir() {
			return Record{}, fmt.Errorf("no template set for lang %q (looked in %s)", rec.Lang, langDir)
		}
	}

	return rec, nil
}

// SplitAddresses splits a comma or semicolon separated address list,
// dropping empty parts.
func SplitAddresses(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(strings.ReplaceAll(s, ";", ","), ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
