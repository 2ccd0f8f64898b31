package cmd

import (
	"encoding/json"
	"fmt"

	transcriptadapter "github.com/bnema/agent-chat-cli/internal/adapters/render/transcript"
	"github.com/spf13/cobra"
)

func newStatsCmd(app *app) *cobra.Command {
	var asJSON bool
	var healthOnly bool

	cmd := &cobra.Command{
		Use:     "stats",
		Aliases: []string{"report"},
		Short:   "Show aggregate conversation statistics and storage health",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := app.manager.Init(ctx); err != nil {
				return err
			}

			health := app.manager.Health()
			if healthOnly {
				if asJSON {
					encoded, err := json.MarshalIndent(health, "", "  ")
					if err != nil {
						return fmt.Errorf("encode health: %w", err)
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "write failures: %d\npending writes: %d\ncorrupt lines: %d\n",
					health.WriteFailures, health.PendingWrites, health.CorruptLines)
				return err
			}

			stats, err := app.manager.GetStatistics(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				encoded, err := json.MarshalIndent(struct {
					Statistics any
					Health     any
				}{stats, health}, "", "  ")
				if err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
				return err
			}

			output, err := app.reportRenderer(stats, health, transcriptadapter.RenderOptions{Now: app.now()})
			if err != nil {
				return fmt.Errorf("render report: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), output)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().BoolVar(&healthOnly, "health", false, "Show only the storage health counters")

	return cmd
}
