package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var verbose bool
	app := &app{}

	rootCmd := &cobra.Command{
		Use:           "ac",
		Short:         "Agent Chat CLI (ac): local conversation log and session coordinator",
		Long:          "ac (Agent Chat CLI) records streamed agent conversations into an append-only local log, tracks sessions, and lets you chat, search and report from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config := zap.NewProductionConfig()
			config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			return app.wire(logger)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newVersionCmd(),
		newChatCmd(app),
		newSessionsCmd(app),
		newSearchCmd(app),
		newStatsCmd(app),
		newCleanupCmd(app),
		newArchivesCmd(app),
		newConfigCmd(app),
	)

	return rootCmd
}
