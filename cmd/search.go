package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bnema/agent-chat-cli/internal/application"
	"github.com/bnema/agent-chat-cli/internal/domain"
	"github.com/spf13/cobra"
)

func newSearchCmd(app *app) *cobra.Command {
	var (
		sessionID string
		role      string
		from      string
		to        string
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the conversation log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := application.SearchFilter{
				SessionID: sessionID,
				Role:      domain.Role(role),
				Limit:     limit,
			}

			if role != "" && !domain.ValidRole(domain.Role(role)) {
				return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
			}

			var err error
			if filter.StartDate, err = parseTimeFlag(from); err != nil {
				return fmt.Errorf("parse --from: %w", err)
			}
			if filter.EndDate, err = parseTimeFlag(to); err != nil {
				return fmt.Errorf("parse --to: %w", err)
			}

			return runSearch(cmd, app, filter, asJSON)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Restrict to one session")
	cmd.Flags().StringVar(&role, "role", "", "Restrict to one role (user, assistant, system)")
	cmd.Flags().StringVar(&from, "from", "", "Earliest timestamp (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Latest timestamp (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func runSearch(cmd *cobra.Command, app *app, filter application.SearchFilter, asJSON bool) error {
	ctx := cmd.Context()
	if err := app.manager.Init(ctx); err != nil {
		return err
	}

	entries, err := app.manager.SearchMessages(ctx, filter)
	if err != nil {
		return err
	}

	if asJSON {
		encoded, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("encode search results: %w", err)
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
}

func printEntry(cmd *cobra.Command, entry domain.Entry) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s %s: %s\n",
		entry.Timestamp.Format(time.RFC3339),
		entry.SessionID,
		entry.Role,
		entry.Content,
	)
	return err
}

func parseTimeFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
