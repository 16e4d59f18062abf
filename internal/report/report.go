// Package report renders the delivery dashboard: one row per
// recipient with their latest known outcome, written as a standalone
// HTML file and optionally served over HTTP.
package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mailfold/mailfold/internal/contacts"
	"github.com/mailfold/mailfold/internal/ledger"
)

// Row is one recipient line on the dashboard
type Row struct {
	Name    string
	Email   string
	Lang    string
	Status  string
	Subject string
	Detail  string
	At      string
}

// Summary is the full dashboard state
type Summary struct {
	GeneratedAt string
	Total       int
	Sent        int
	Failed      int
	Pending     int
	Rows        []Row
}

// Build joins the recipient list with the latest ledger entry per
// address. Recipients with no ledger history show as pending.
func Build(recs []contacts.Record, latest map[string]ledger.Entry) *Summary {
	s := &Summary{
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		Total:       len(recs),
	}
	for _, rec := range recs {
		row := Row{Name: rec.Name, Email: rec.Email, Lang: rec.Lang, Status: "pending"}
		if e, ok := latest[rec.Email]; ok {
			row.Subject = e.Subject
			row.Detail = e.Detail
			row.At = e.Time.Format("2006-01-02 15:04")
			row.Status = string(e.Outcome)
		}
		switch row.Status {
		case string(ledger.OutcomeSent):
			s.Sent++
		case string(ledger.OutcomeFailed):
			s.Failed++
		default:
			s.Pending++
		}
		s.Rows = append(s.Rows, row)
	}
	sort.SliceStable(s.Rows, func(i, j int) bool {
		return s.Rows[i].Email < s.Rows[j].Email
	})
	return s
}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Delivery dashboard</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; }
th { background: #f4f4f4; }
tr.sent td.status { color: #1a7f37; }
tr.failed td.status { color: #b42318; }
tr.pending td.status { color: #666; }
.totals { margin-bottom: 1em; }
.totals span { margin-right: 1.5em; }
</style>
</head>
<body>
<h1>Delivery dashboard</h1>
<p class="totals">
<span>Recipients: <strong>{{.Total}}</strong></span>
<span>Sent: <strong>{{.Sent}}</strong></span>
<span>Failed: <strong>{{.Failed}}</strong></span>
<span>Pending: <strong>{{.Pending}}</strong></span>
</p>
<table>
<tr><th></th><th>Name</th><th>Email</th><th>Lang</th><th>Last subject</th><th>Last attempt</th><th>Error</th></tr>
{{range .Rows}}<tr class="{{.Status}}">
<td class="status">{{if eq .Status "sent"}}&#10003;{{else if eq .Status "failed"}}&#10007;{{else}}&middot;{{end}}</td>
<td>{{.Name}}</td>
<td>{{.Email}}</td>
<td>{{.Lang}}</td>
<td>{{.Subject}}</td>
<td>{{.At}}</td>
<td>{{.Detail}}</td>
</tr>
{{end}}</table>
<p><small>Generated {{.GeneratedAt}}</small></p>
</body>
</html>
`))

// WriteHTML renders the dashboard to path, replacing any previous copy
func (s *Summary) WriteHTML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := dashboardTmpl.Execute(f, s); err != nil {
		f.Close()
		return fmt.Errorf("failed to render report: %w", err)
	}
	return f.Close()
}
