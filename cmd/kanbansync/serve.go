// ABOUTME: serve subcommand: runs one board's actor, persistence bridge, replica, and HTTP API until interrupted.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389-research/kanbansync/board/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		bind    string
		backend string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a board over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(func(c *server.Config) {
				if bind != "" {
					c.Bind = bind
				}
				if backend != "" {
					c.Backend = backend
				}
			})
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := server.NewApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Error().Str("action", "close").Err(err).Send()
				}
			}()

			if n := len(app.Bridge().Failed()); n > 0 {
				printWarning(cmd.OutOrStdout(), "%d write(s) failed before the last shutdown; see `kanbansync pending`\n", n)
			}
			printSuccess(cmd.OutOrStdout(), "board %q (%s) on http://%s\n", cfg.Board, cfg.Backend, cfg.Bind)
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&backend, "backend", "", "Persistence backend: sqlite or redis")
	return cmd
}
