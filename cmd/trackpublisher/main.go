package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"TrackPublisher/internal/app"
	"TrackPublisher/internal/config"
	"TrackPublisher/internal/logging"
	"TrackPublisher/internal/state"
)

// version is set via ldflags.
var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "trackpublisher",
		Short:         "Publishes slowed + reverb edits of trending tracks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("TRACKPUBLISHER_CONFIG"), "YAML config file")

	loadConfig := func() config.Config { return config.LoadFile(configPath) }

	rootCmd.AddCommand(
		newRunCmd(loadConfig),
		newDaemonCmd(loadConfig),
		newStateCmd(loadConfig),
		newHistoryCmd(loadConfig),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newRunCmd(loadConfig func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one publish cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg := loadConfig()
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}

			result := application.RunOnce(ctx)
			if err := application.Close(); err != nil {
				logger.Warn("close integrations", "error", err)
			}

			logger.Info("cycle finished",
				"cycle_id", result.CycleID,
				"status", result.Status,
				"reason", result.Reason,
				"url", result.PublishedURL(),
			)
			if code := result.Status.ExitCode(); code != 0 {
				logger.Error("cycle failed", "error", result.Err)
				cancel()
				os.Exit(code)
			}
			return nil
		},
	}
}

func newDaemonCmd(loadConfig func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run cycles on the configured cron schedule and serve /healthz, /metrics and /state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg := loadConfig()
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Daemon(ctx)
		},
	}
}

func newStateCmd(loadConfig func() config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect persisted state",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print cursors and dedup counts as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store, err := state.NewFileStore(cfg.State.Dir, logging.Discard())
			if err != nil {
				return err
			}
			doc, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"path":           store.Path(),
				"schema_version": doc.SchemaVersion,
				"cursors":        doc.Cursors,
				"consumed":       len(doc.ConsumedIDs),
				"published":      len(doc.History),
				"updated_at":     doc.UpdatedAt,
			})
		},
	}

	mirrorCheck := &cobra.Command{
		Use:   "mirror-check",
		Short: "List consumed items missing from the Postgres history mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			missing, err := app.MirrorCheck(cmd.Context(), cfg, logging.Discard())
			if err != nil {
				return err
			}
			for _, id := range missing {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			if len(missing) > 0 {
				return fmt.Errorf("%d consumed items are missing from the mirror", len(missing))
			}
			return nil
		},
	}

	cmd.AddCommand(show, mirrorCheck)
	return cmd
}

func newHistoryCmd(loadConfig func() config.Config) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent publish records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store, err := state.NewFileStore(cfg.State.Dir, logging.Discard())
			if err != nil {
				return err
			}
			records, err := store.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, records)
			}
			fmt.Fprint(cmd.OutOrStdout(), state.RenderHistory(records))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of records (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
