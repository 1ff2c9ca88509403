// Command jobetl extracts JSON-LD job postings from a scraped CSV export,
// normalizes them into relational rows and loads them into Postgres or
// SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/jobetl/internal/config"
	"github.com/JonMunkholm/jobetl/internal/core"
	"github.com/JonMunkholm/jobetl/internal/logging"
	"github.com/JonMunkholm/jobetl/internal/mapping"
	"github.com/JonMunkholm/jobetl/internal/telemetry"
)

// app is the state shared by every subcommand, filled in by the root
// command's PersistentPreRunE.
type app struct {
	cfg      *config.Config
	mapping  *mapping.FieldMapping
	shutdown func(context.Context)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		msg := core.MapError(err)
		slog.Error("jobetl failed", "error", err, "code", msg.Code)
		fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "jobetl",
		Short:         "Load scraped job postings into a relational schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.shutdown != nil {
				a.shutdown(context.Background())
			}
		},
	}

	root.AddCommand(
		newMigrateCmd(a),
		newExtractCmd(a),
		newTransformCmd(a),
		newLoadCmd(a),
		newRunCmd(a),
		newServeCmd(a),
		newMappingCmd(a),
	)
	return root
}

func (a *app) init(ctx context.Context) error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	a.mapping = mapping.Default()
	if cfg.Mapping.File != "" {
		m, err := mapping.LoadFile(cfg.Mapping.File)
		if err != nil {
			return err
		}
		a.mapping = m
		slog.Info("field mapping loaded", "file", cfg.Mapping.File, "tables", len(m.Tables()))
	}

	shutdown, err := telemetry.InitTracer(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

// isCancel reports whether err is only the interrupt that stopped a command.
func isCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}
