package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/agent-chat-cli/internal/application"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

type configDocument struct {
	Log struct {
		Path        string `toml:"path"`
		RotateBytes int64  `toml:"rotate_bytes"`
	} `toml:"log"`
	Sessions struct {
		Path string `toml:"path"`
	} `toml:"sessions"`
	Session struct {
		Mode          string `toml:"mode"`
		Max           int    `toml:"max"`
		RetentionDays int    `toml:"retention_days"`
	} `toml:"session"`
	Agent struct {
		URL            string `toml:"url"`
		RequestTimeout string `toml:"request_timeout"`
	} `toml:"agent"`
	Mirror struct {
		Endpoint string `toml:"endpoint"`
	} `toml:"mirror"`
}

func newConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(newConfigInitCmd(app))

	return cmd
}

func newConfigInitCmd(app *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file populated with the current defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolve home directory: %w", err)
			}

			configDir := filepath.Join(homeDir, ".agentchat")
			configPath := filepath.Join(configDir, "config.toml")
			if !force {
				if _, err := os.Stat(configPath); err == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", configPath)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat config file: %w", err)
				}
			}

			var doc configDocument
			doc.Log.Path = filepath.Join(configDir, "conversations.jsonl")
			doc.Log.RotateBytes = 50 * 1024 * 1024
			doc.Sessions.Path = filepath.Join(configDir, "sessions.json")
			doc.Session.Mode = string(application.SessionModeUnique)
			doc.Session.Max = application.DefaultMaxSessions
			doc.Session.RetentionDays = application.DefaultRetentionDays
			doc.Agent.URL = app.cfg.GetString(agentURLKey)
			doc.Agent.RequestTimeout = application.DefaultRequestTimeout.String()
			doc.Mirror.Endpoint = app.cfg.GetString(mirrorEndpointKey)

			encoded, err := toml.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}

			if err := os.MkdirAll(configDir, 0o700); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := os.WriteFile(configPath, encoded, 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}
