package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"reelfetch/internal/config"
	"reelfetch/internal/pkg/logger"
)

// app is the state shared by subcommands once flags are parsed
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	logLevel string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "reelfetch",
		Short: "Fetch videos and photos from YouTube and Instagram links",
		Long: `reelfetch runs the extraction chain against a single URL and manages
the diagnostics database used by the bot and worker services.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.cfg = config.LoadFromEnv()
			if a.logLevel != "" {
				a.cfg.LogLevel = a.logLevel
			}
			a.log = logger.New(a.cfg.LogLevel)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug | info | warn | error (overrides LOG_LEVEL)")

	root.AddCommand(newExtractCmd(a))
	root.AddCommand(newDBCmd(a))
	root.AddCommand(newBrowserCheckCmd(a))
	root.AddCommand(newBackfillCmd(a))
	return root
}
