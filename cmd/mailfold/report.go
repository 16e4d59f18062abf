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
	"github.com/mailfold/mailfold/internal/ledger"
	"github.com/mailfold/mailfold/internal/report"
)

func newReportCmd() *cobra.Command {
	var listen string
	var out string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the delivery dashboard",
		Long: `Join the contact list with the send ledger and write the HTML
dashboard. With --listen the dashboard is additionally served over
HTTP, rebuilt from disk on every request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			if out != "" {
				cfg.Report.Path = out
			}

			summary, err := buildSummary(cfg, logger)
			if err != nil {
				return err
			}
			if err := summary.WriteHTML(cfg.Report.Path); err != nil {
				return err
			}
			logger.Info("dashboard written",
				"path", cfg.Report.Path,
				"recipients", summary.Total,
				"sent", summary.Sent,
				"failed", summary.Failed,
			)

			if listen == "" {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := report.NewServer(listen, func() (*report.Summary, error) {
				return buildSummary(cfg, logger)
			}, logger)
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "serve the dashboard on this address (e.g. 127.0.0.1:8080)")
	cmd.Flags().StringVar(&out, "out", "", "dashboard output path (overrides config)")

	return cmd
}

// buildSummary reads the ledger fresh so the dashboard reflects
// whatever runs have happened since the last call. The ledger is read
// without being created; reporting never writes delivery state.
func buildSummary(cfg *config.Config, logger *slog.Logger) (*report.Summary, error) {
	recs, err := contacts.Load(cfg.Contacts.Path, cfg.Templates.Root, cfg.Templates.DefaultLang)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	latest, err := ledger.ReadLatest(cfg.Ledger.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return report.Build(recs, latest), nil
}

// writeDashboard regenerates the dashboard from an already-open ledger
func writeDashboard(cfg *config.Config, recs []contacts.Record, ldg *ledger.Ledger, logger *slog.Logger) error {
	summary := report.Build(recs, ldg.Latest())
	if err := summary.WriteHTML(cfg.Report.Path); err != nil {
		return err
	}
	logger.Info("dashboard updated", "path", cfg.Report.Path)
	return nil
}
