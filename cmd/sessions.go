package cmd

import (
	"encoding/json"
	"fmt"

	transcriptadapter "github.com/bnema/agent-chat-cli/internal/adapters/render/transcript"
	"github.com/spf13/cobra"
)

func newSessionsCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and manage recorded sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSessionsList(cmd, app, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	cmd.AddCommand(
		newSessionsShowCmd(app),
		newSessionsPauseCmd(app),
		newSessionsCompleteCmd(app),
	)

	return cmd
}

func runSessionsList(cmd *cobra.Command, app *app, asJSON bool) error {
	ctx := cmd.Context()
	if err := app.manager.Init(ctx); err != nil {
		return err
	}

	sessions, err := app.manager.ListSessions(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		encoded, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			return fmt.Errorf("encode sessions: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
		return err
	}

	output, err := app.sessionsRenderer(sessions, transcriptadapter.RenderOptions{Now: app.now()})
	if err != nil {
		return fmt.Errorf("render sessions: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), output)
	return err
}

func newSessionsShowCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show [session-id]",
		Short: "Print the messages of one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.manager.Init(ctx); err != nil {
				return err
			}

			entries, err := app.manager.GetSessionMessages(ctx, args[0])
			if err != nil {
				return err
			}

			if asJSON {
				encoded, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return fmt.Errorf("encode messages: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
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

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newSessionsPauseCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pause [session-id]",
		Short: "Mark a session as paused",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.manager.Init(ctx); err != nil {
				return err
			}
			if _, err := app.manager.StartSession(ctx, args[0]); err != nil {
				return err
			}
			if err := app.manager.PauseSession(ctx); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "session %s paused\n", args[0])
			return err
		},
	}
}

func newSessionsCompleteCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "complete [session-id]",
		Short: "Mark a session as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.manager.Init(ctx); err != nil {
				return err
			}
			if _, err := app.manager.StartSession(ctx, args[0]); err != nil {
				return err
			}
			if err := app.manager.CompleteSession(ctx); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "session %s completed\n", args[0])
			return err
		},
	}
}
