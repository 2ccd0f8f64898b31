package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newArchivesCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List rotated conversation log archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := app.store.ListArchives(cmd.Context())
			if err != nil {
				return err
			}

			if len(names) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no archives")
				return err
			}
			for _, name := range names {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(newArchivesShowCmd(app))

	return cmd
}

func newArchivesShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [archive-name]",
		Short: "Print the messages of one rotated archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := app.store.ReadArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			for _, entry := range entries {
				if err := printEntry(cmd, entry); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
