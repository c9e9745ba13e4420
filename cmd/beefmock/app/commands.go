// Package app provides the entry point for the beefmock server.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/beefweb/beefclient/internal/config"
	"github.com/beefweb/beefclient/internal/logging"
	"github.com/beefweb/beefclient/internal/mockserver"
)

type serveOptions struct {
	configPath string
	host       string
	port       int
	noAutoplay bool
}

// NewRootCmd creates the beefmock command.
func NewRootCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:               "beefmock",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Run a simulated beefweb player API",
		Long: `beefmock serves an in-memory player with two demo playlists under /api.
Playback advances on a timer and every change is pushed to subscribers over
server-sent events or websockets.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Path to a YAML or TOML config file")
	f.StringVar(&opts.host, "host", "", "Override the listen host")
	f.IntVar(&opts.port, "port", 0, "Override the listen port")
	f.BoolVar(&opts.noAutoplay, "no-autoplay", false, "Start with playback stopped")

	return cmd
}

func serve(cmd *cobra.Command, opts *serveOptions) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.host != "" {
		cfg.Mock.Host = opts.host
	}
	if opts.port > 0 {
		cfg.Mock.Port = opts.port
	}
	if opts.noAutoplay {
		cfg.Mock.Autoplay = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, ok := logging.ParseLevel(cfg.Log.Level)
	if !ok {
		return fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}
	log := logging.New("beefmock", logging.Config{
		Level:   level,
		NoColor: cfg.Log.NoColor,
		Out:     cmd.ErrOrStderr(),
	})

	store := mockserver.NewStore()
	broadcaster := mockserver.NewBroadcaster(store, cfg.Mock.BroadcastThrottle, log)
	server := mockserver.NewServer(store, broadcaster, log)
	gen := mockserver.NewGenerator(store, broadcaster, cfg.Mock.TickInterval, cfg.Mock.Autoplay)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return mockserver.ListenAndServe(ctx, cfg.Mock.Host, cfg.Mock.Port, server.Routes(), log)
	})
	g.Go(func() error {
		gen.Run(ctx)
		return nil
	})

	log.Info().
		Dur("tick", cfg.Mock.TickInterval).
		Bool("autoplay", cfg.Mock.Autoplay).
		Msg("mock player started")

	err = g.Wait()
	log.Info().Msg("shutting down")
	return err
}
