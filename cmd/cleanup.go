package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCmd(app *app) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove sessions whose last activity is older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := app.manager.Init(ctx); err != nil {
				return err
			}

			keep := days
			if keep <= 0 {
				keep = app.retentionDays
			}

			removed, err := app.manager.CleanupOldSessions(ctx, keep)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d session(s) older than %d days\n", removed, keep)
			return err
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Retention window in days (default: configured retention)")

	return cmd
}
