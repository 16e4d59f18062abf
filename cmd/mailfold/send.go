package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailfold/mailfold/internal/config"
	"github.com/mailfold/mailfold/internal/contacts"
	"github.com/mailfold/mailfold/internal/dkim"
	"github.com/mailfold/mailfold/internal/ledger"
	"github.com/mailfold/mailfold/internal/lockfile"
	"github.com/mailfold/mailfold/internal/mail"
	"github.com/mailfold/mailfold/internal/metrics"
	"github.com/mailfold/mailfold/internal/pipeline"
	"github.com/mailfold/mailfold/internal/render"
	"github.com/mailfold/mailfold/internal/schedule"
)

type sendFlags struct {
	dryRun bool
	resend bool
	limit  int
	outDir string

	at    string
	daily string
	cron  string
	tz    string
}

func newSendCmd() *cobra.Command {
	var flags sendFlags

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Run the delivery pipeline",
		Long: `Process the contact list once: skip recipients already on the
ledger, render and deliver the rest, and record every outcome.
With --at, --daily or --cron the run is deferred or repeated instead
of starting immediately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), &flags)
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "render previews instead of delivering")
	cmd.Flags().BoolVar(&flags.resend, "resend", false, "deliver even to recipients already on the ledger")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "stop after this many successful deliveries (0 = unlimited)")
	cmd.Flags().StringVar(&flags.outDir, "out-dir", "", "dry-run preview directory (overrides config)")
	cmd.Flags().StringVar(&flags.at, "at", "", `run once at "YYYY-MM-DD HH:MM"`)
	cmd.Flags().StringVar(&flags.daily, "daily", "", `run every day at "HH:MM"`)
	cmd.Flags().StringVar(&flags.cron, "cron", "", "run on a cron schedule")
	cmd.Flags().StringVar(&flags.tz, "tz", "", "timezone for --at/--daily/--cron (overrides config)")
	cmd.MarkFlagsMutuallyExclusive("at", "daily", "cron")

	return cmd
}

func runSend(ctx context.Context, flags *sendFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if !flags.dryRun {
		if err := cfg.ValidateForSend(); err != nil {
			return err
		}
	}
	if flags.outDir != "" {
		cfg.Preview.Dir = flags.outDir
	}

	tz := cfg.Timezone
	if flags.tz != "" {
		tz = flags.tz
	}
	loc, err := schedule.LoadLocation(tz)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case flags.at != "":
		return runAt(ctx, cfg, flags, loc, logger)
	case flags.daily != "":
		spec, err := schedule.DailySpec(flags.daily)
		if err != nil {
			return err
		}
		return runRecurring(ctx, cfg, flags, spec, loc, logger)
	case flags.cron != "":
		if err := schedule.Validate(flags.cron); err != nil {
			return err
		}
		return runRecurring(ctx, cfg, flags, flags.cron, loc, logger)
	default:
		return runOnce(ctx, cfg, flags, nil, logger)
	}
}

func runAt(ctx context.Context, cfg *config.Config, flags *sendFlags, loc *time.Location, logger *slog.Logger) error {
	when, err := schedule.ParseAt(flags.at, loc)
	if err != nil {
		return err
	}
	if time.Until(when) <= 0 {
		logger.Warn("scheduled time is in the past, running now", "at", flags.at)
	} else {
		logger.Info("waiting for scheduled time", "at", when.Format("2006-01-02 15:04 MST"))
	}
	if err := schedule.WaitUntil(ctx, when); err != nil {
		logger.Info("wait cancelled")
		return nil
	}
	return runOnce(ctx, cfg, flags, nil, logger)
}

func runRecurring(ctx context.Context, cfg *config.Config, flags *sendFlags, spec string, loc *time.Location, logger *slog.Logger) error {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		srv := metrics.NewServer(cfg.Metrics.ListenAddr, cfg.Metrics.Path, m, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics exporter failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	job := func() {
		if err := runOnce(ctx, cfg, flags, m, logger); err != nil {
			logger.Error("scheduled run failed", "error", err)
		}
	}
	runner, err := schedule.NewRunner(spec, loc, job, logger)
	if err != nil {
		return err
	}
	logger.Info("recurring mode", "spec", spec, "tz", loc.String())
	runner.Run(ctx)
	logger.Info("scheduler stopped")
	return nil
}

// runOnce executes one complete delivery run under the run lock.
// Lock contention is not an error: another run owns the ledger and
// this invocation simply yields.
func runOnce(ctx context.Context, cfg *config.Config, flags *sendFlags, m *metrics.Metrics, logger *slog.Logger) error {
	lock, err := lockfile.Acquire(cfg.Lock.Path)
	if err != nil {
		if errors.Is(err, lockfile.ErrLocked) {
			logger.Warn("skipping run", "reason", err)
			return nil
		}
		return err
	}
	defer lock.Release()

	started := time.Now()

	recs, err := contacts.Load(cfg.Contacts.Path, cfg.Templates.Root, cfg.Templates.DefaultLang)
	if err != nil {
		return fmt.Errorf("failed to load contacts: %w", err)
	}

	ldg, err := ledger.Open(cfg.Ledger.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer ldg.Close()
	logger.Info("ledger loaded", "path", cfg.Ledger.Path, "already_sent", ldg.SentCount())

	renderer := render.New(render.Config{
		TemplateRoot:    cfg.Templates.Root,
		AttachRoot:      cfg.Attachments.Root,
		DefaultLang:     cfg.Templates.DefaultLang,
		LangDirFallback: cfg.Attachments.LangDirFallback,
		Defaults:        renderDefaults(cfg),
	}, logger)

	var transport pipeline.Transport
	if !flags.dryRun {
		t := mail.NewTransport(cfg.SMTP, logger)
		if cfg.DKIM.Enabled {
			signer, err := dkim.NewSignerFromFile(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
			if err != nil {
				return fmt.Errorf("failed to load DKIM key: %w", err)
			}
			t.SetDKIMSigner(signer)
		}
		transport = mail.NewMailer(mail.Sender{
			Email:   cfg.Sender.Email,
			Name:    cfg.Sender.Name,
			ReplyTo: cfg.Sender.ReplyTo,
		}, t, logger)
	}

	p := pipeline.New(renderer, transport, ldg, pipeline.Options{
		DryRun:     flags.dryRun,
		Override:   flags.resend,
		Limit:      flags.limit,
		Delay:      cfg.Pacing.Delay,
		PreviewDir: cfg.Preview.Dir,
	}, logger)

	res, runErr := p.Run(ctx, recs)

	if m != nil && res != nil {
		m.ObserveRun(metrics.RunOutcomes{
			Sent:               res.Sent,
			SendFailed:         res.SendFailed,
			RenderFailed:       res.RenderFailed,
			SkippedAlreadySent: res.SkippedAlreadySent,
			SkippedLimit:       res.SkippedLimit,
			Previewed:          res.Previewed,
		}, time.Since(started))
	}

	// The dashboard reads only the ledger, so regenerating it after a
	// dry run stays side-effect free for delivery state
	if err := writeDashboard(cfg, recs, ldg, logger); err != nil {
		logger.Error("failed to write dashboard", "error", err)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Info("run interrupted")
			return nil
		}
		return runErr
	}
	return nil
}

func renderDefaults(cfg *config.Config) map[string]string {
	vars := map[string]string{
		"from_name":  cfg.Sender.Name,
		"from_email": cfg.Sender.Email,
		"reply_to":   cfg.Sender.ReplyTo,
	}
	for k, v := range cfg.Variables {
		vars[k] = v
	}
	return vars
}
