// Package pipeline orchestrates one delivery run: it walks the
// recipient list in order, consults the send ledger, renders and
// delivers each message, and durably records every outcome before
// moving on. Per-recipient failures never abort the run; only load,
// configuration and ledger-write errors are fatal.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mailfold/mailfold/internal/contacts"
	"github.com/mailfold/mailfold/internal/ledger"
	"github.com/mailfold/mailfold/internal/render"
)

// State is the terminal state of one recipient within a run
type State string

const (
	StateSent               State = "sent"
	StateSendFailed         State = "send_failed"
	StateRenderFailed       State = "render_failed"
	StateSkippedAlreadySent State = "skipped_already_sent"
	StateSkippedLimit       State = "skipped_limit_reached"
	StatePreviewed          State = "dry_run_previewed"
)

// Transport delivers a rendered message
type Transport interface {
	Send(ctx context.Context, msg *render.Message) error
}

// Renderer resolves a recipient record into a message
type Renderer interface {
	Render(rec contacts.Record) (*render.Message, error)
}

// Ledger is the durable record of past delivery attempts
type Ledger interface {
	HasSent(email string) bool
	Record(e ledger.Entry) error
}

// Options selects the run mode
type Options struct {
	// DryRun renders and writes previews without delivering or
	// touching the ledger.
	DryRun bool

	// Override bypasses the already-sent check; the only sanctioned
	// way to re-send.
	Override bool

	// Limit caps successful deliveries (previews in dry-run mode);
	// zero means unlimited. Reaching the limit ends the run.
	Limit int

	// Delay is the pacing pause between real delivery attempts.
	Delay time.Duration

	// PreviewDir receives dry-run artifacts.
	PreviewDir string
}

// RecipientOutcome is the terminal state of one recipient
type RecipientOutcome struct {
	Email  string
	State  State
	Detail string
}

// Result summarizes a completed run
type Result struct {
	RunID string

	Sent               int
	SendFailed         int
	RenderFailed       int
	SkippedAlreadySent int
	SkippedLimit       int
	Previewed          int

	Outcomes []RecipientOutcome
}

// Pipeline runs the delivery state machine. Processing is strictly
// sequential; ordering of ledger writes is part of the crash-safety
// contract.
type Pipeline struct {
	renderer  Renderer
	transport Transport
	ledger    Ledger
	opts      Options
	logger    *slog.Logger
}

// New creates a Pipeline
func New(renderer Renderer, transport Transport, ldg Ledger, opts Options, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		renderer:  renderer,
		transport: transport,
		ledger:    ldg,
		opts:      opts,
		logger:    logger,
	}
}

// Run processes the recipient sequence once. Cancellation is honored
// between recipients, never mid-send. The returned error is non-nil
// only for run-fatal conditions (ledger write failure, cancellation);
// per-recipient failures are reflected in the Result.
func (p *Pipeline) Run(ctx context.Context, recs []contacts.Record) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	logger := p.logger.With("run_id", res.RunID)

	logger.Info("run started",
		"recipients", len(recs),
		"dry_run", p.opts.DryRun,
		"override", p.opts.Override,
		"limit", p.opts.Limit,
	)

	processed := 0
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			logger.Warn("run cancelled", "remaining", len(recs)-i)
			p.logSummary(logger, res)
			return res, err
		}

		if p.opts.Limit > 0 && processed >= p.opts.Limit {
			res.SkippedLimit = len(recs) - i
			for _, r := range recs[i:] {
				res.Outcomes = append(res.Outcomes, RecipientOutcome{Email: r.Email, State: StateSkippedLimit})
			}
			logger.Info("limit reached, ending run", "limit", p.opts.Limit, "skipped", res.SkippedLimit)
			break
		}

		if !p.opts.Override && p.ledger.HasSent(rec.Email) {
			// An "already sent" fact is not re-recorded
			res.SkippedAlreadySent++
			res.Outcomes = append(res.Outcomes, RecipientOutcome{Email: rec.Email, State: StateSkippedAlreadySent})
			logger.Info("skipping, already sent", "recipient", rec.Email)
			continue
		}

		state, detail, err := p.processOne(ctx, i, rec, res, logger)
		if err != nil {
			return res, err
		}
		res.Outcomes = append(res.Outcomes, RecipientOutcome{Email: rec.Email, State: state, Detail: detail})
		if state == StateSent || state == StatePreviewed {
			processed++
		}

		// Pacing applies only between real delivery attempts
		attempted := state == StateSent || state == StateSendFailed
		if attempted && p.opts.Delay > 0 && i < len(recs)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(p.opts.Delay):
			}
		}
	}

	p.logSummary(logger, res)
	return res, nil
}

// processOne takes one recipient from PENDING to a terminal state and
// writes the matching ledger entry. The returned error is fatal to the
// whole run; per-recipient problems come back as a state instead.
func (p *Pipeline) processOne(ctx context.Context, seq int, rec contacts.Record, res *Result, logger *slog.Logger) (State, string, error) {
	msg, err := p.renderer.Render(rec)
	if err != nil {
		logger.Error("render failed", "recipient", rec.Email, "error", err)
		res.RenderFailed++
		if p.opts.DryRun {
			// Previews have no ledger; the failure is only logged
			return StateRenderFailed, err.Error(), nil
		}
		if lerr := p.record(rec, "", ledger.OutcomeFailed, err.Error()); lerr != nil {
			return StateRenderFailed, "", lerr
		}
		return StateRenderFailed, err.Error(), nil
	}

	if p.opts.DryRun {
		path, err := WritePreview(p.opts.PreviewDir, seq+1, msg)
		if err != nil {
			return StatePreviewed, "", fmt.Errorf("failed to write preview: %w", err)
		}
		res.Previewed++
		logger.Info("preview written", "recipient", rec.Email, "subject", msg.Subject, "path", path)
		return StatePreviewed, "", nil
	}

	if err := p.transport.Send(ctx, msg); err != nil {
		logger.Error("delivery failed", "recipient", rec.Email, "error", err)
		res.SendFailed++
		if lerr := p.record(rec, msg.Subject, ledger.OutcomeFailed, err.Error()); lerr != nil {
			return StateSendFailed, "", lerr
		}
		return StateSendFailed, err.Error(), nil
	}

	res.Sent++
	logger.Info("delivered", "recipient", rec.Email, "subject", msg.Subject)
	if lerr := p.record(rec, msg.Subject, ledger.OutcomeSent, ""); lerr != nil {
		return StateSent, "", lerr
	}
	return StateSent, "", nil
}

func (p *Pipeline) record(rec contacts.Record, subject string, outcome ledger.Outcome, detail string) error {
	err := p.ledger.Record(ledger.Entry{
		Time:    time.Now(),
		Email:   rec.Email,
		Name:    rec.Name,
		Lang:    rec.Lang,
		Subject: subject,
		Outcome: outcome,
		Detail:  detail,
	})
	if err != nil {
		// Without the ledger the idempotency guarantee is gone;
		// stop rather than keep sending unrecorded mail.
		return fmt.Errorf("ledger write failed: %w", err)
	}
	return nil
}

func (p *Pipeline) logSummary(logger *slog.Logger, res *Result) {
	logger.Info("run finished",
		"sent", res.Sent,
		"send_failed", res.SendFailed,
		"render_failed", res.RenderFailed,
		"skipped_already_sent", res.SkippedAlreadySent,
		"skipped_limit", res.SkippedLimit,
		"previewed", res.Previewed,
	)
}
