package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/jobetl/internal/extract"
	"github.com/JonMunkholm/jobetl/internal/mapping"
	"github.com/JonMunkholm/jobetl/internal/pipeline"
	"github.com/JonMunkholm/jobetl/internal/staging"
	"github.com/JonMunkholm/jobetl/internal/store"
	"github.com/JonMunkholm/jobetl/internal/web"
)

func (a *app) openStore(ctx context.Context) (store.Sink, error) {
	sink, err := store.Open(ctx, a.cfg.Database, a.cfg.Load.BatchSize)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database", "driver", a.cfg.Database.Driver)
	return sink, nil
}

// runner builds a pipeline.Runner. sink may be nil for extract and transform.
func (a *app) runner(sink pipeline.Sink) *pipeline.Runner {
	return pipeline.New(
		staging.NewFS(a.cfg.Staging.Dir),
		mapping.NewMapper(a.mapping),
		sink,
		pipeline.Options{
			Source: a.cfg.Source.Path,
			Extract: extract.Options{
				Column:         a.cfg.Source.Column,
				DropIncomplete: a.cfg.Source.DropIncomplete,
			},
			MaxRetries:  a.cfg.Retry.MaxAttempts,
			RetryDelay:  a.cfg.Retry.Delay,
			LoadTimeout: a.cfg.Load.Timeout,
		},
	)
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the destination tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sink, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer sink.Close()

			if err := sink.Migrate(ctx, a.mapping); err != nil {
				return err
			}
			slog.Info("schema ready", "tables", a.mapping.Tables())
			return nil
		},
	}
}

func newExtractCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Stage one raw payload per source CSV row",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.runner(nil).Extract(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "extracted %d records\n", n)
			return nil
		},
	}
}

func newTransformCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transform",
		Short: "Map staged payloads to normalized table rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := a.runner(nil)
			n, err := r.Transform(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "transformed %d records (%d placeholders)\n", n, r.Stats().Placeholders())
			return nil
		},
	}
}

func newLoadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Insert transformed records in one transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sink, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer sink.Close()

			res, err := a.runner(sink).Load(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d jobs\n", res.Jobs)
			for _, table := range a.mapping.Tables() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %d rows\n", table, res.Rows[table])
			}
			return nil
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run extract, transform and load with retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sink, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer sink.Close()

			if migrate {
				if err := sink.Migrate(ctx, a.mapping); err != nil {
					return err
				}
			}

			rep, err := a.runner(sink).Run(ctx)
			for _, st := range rep.Stages {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s attempts=%d records=%d duration=%s\n",
					st.Stage, st.Attempts, st.Records, st.Duration.Round(time.Millisecond))
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Create missing tables before loading")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the run trigger and status page over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sink, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer sink.Close()

			server := web.NewServer(ctx, a.runner(sink), sink, a.cfg.Server, a.cfg.Security)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Start(a.cfg.Server.Addr())
			})
			g.Go(func() error {
				<-gctx.Done()
				slog.Info("shutting down...")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil && !isCancel(err) {
				return err
			}
			return nil
		},
	}
}

func newMappingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mapping",
		Short: "Print the effective field mapping as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := mapping.Marshal(a.mapping)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
