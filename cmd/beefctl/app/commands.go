// Package app provides the entry point for the beefctl command-line application.
package app

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/beefweb/beefclient/internal/client"
	"github.com/beefweb/beefclient/internal/config"
	"github.com/beefweb/beefclient/internal/logging"
)

// rootOptions holds the persistent flags and the session built from them.
type rootOptions struct {
	configPath string
	baseURL    string
	logLevel   string
	push       string

	log     zerolog.Logger
	session *client.Session
}

// NewRootCmd creates a new root command for the beefctl CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:               "beefctl",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "beefctl talks to a beefweb player API",
		Long: `beefctl is a small client for the beefweb player API.
It issues one-off GET and POST requests, prints a player summary and watches
push endpoints over server-sent events or websockets.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if opts.session != nil {
				opts.session.Reset()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	// Add persistent flags
	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "Path to a YAML or TOML config file")
	f.StringVar(&opts.baseURL, "url", "", "Base URL of the player API")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, disabled)")
	f.StringVar(&opts.push, "push", "", "Push transport (sse or ws)")

	// Add subcommands
	rootCmd.AddCommand(newGetCmd(opts))
	rootCmd.AddCommand(newPostCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newWatchCmd(opts))

	return rootCmd
}

// setup loads .env and the config file, applies flag overrides and opens the
// session shared by the subcommands.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.baseURL != "" {
		cfg.Client.BaseURL = o.baseURL
	}
	if o.push != "" {
		cfg.Client.Push = o.push
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, ok := logging.ParseLevel(cfg.Log.Level)
	if !ok {
		return fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}
	o.log = logging.New("beefctl", logging.Config{
		Level:   level,
		NoColor: cfg.Log.NoColor,
		Out:     cmd.ErrOrStderr(),
	})

	sessionOpts := append(cfg.SessionOptions(), client.WithLogger(o.log))
	session, err := client.New(cfg.Client.BaseURL, sessionOpts...)
	if err != nil {
		return err
	}
	o.session = session
	return nil
}
