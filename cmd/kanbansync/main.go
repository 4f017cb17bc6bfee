// ABOUTME: CLI entrypoint for kanbansync: serve a board, export it, inspect unsynced writes, and list boards.
// ABOUTME: Loads .env first, then the viper config; logs through zerolog to stderr.
package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/2389-research/kanbansync/board/server"
)

var version = "dev"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
	board      string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "kanbansync",
		Short:         "Kanban board actor with durable, retried persistence",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.envFile != "" {
				loadDotEnv(opts.envFile)
				return
			}
			loadDotEnvAuto()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (env: KANBANSYNC_*)")
	pf.StringVar(&opts.envFile, "env-file", "", "Load this .env file instead of searching for one")
	pf.StringVarP(&opts.board, "board", "b", "", "Board name (overrides config)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(opts),
		newExportCmd(opts),
		newPendingCmd(opts),
		newBoardsCmd(opts),
	)
	return root
}

// load reads the config, applies flag overrides, and validates the result.
func (o *rootOptions) load(override func(*server.Config)) (*server.Config, error) {
	cfg, err := server.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.board != "" {
		if cfg.Redis.Namespace == cfg.Board {
			cfg.Redis.Namespace = o.board
		}
		cfg.Board = o.board
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds a console logger and installs it as the global logger.
func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
	log.Logger = logger
	return logger
}
