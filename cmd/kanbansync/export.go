// ABOUTME: export subcommand: renders a board as YAML, Markdown, or HTML from its store or latest snapshot.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/2389-research/kanbansync/board/core"
	"github.com/2389-research/kanbansync/board/export"
	"github.com/2389-research/kanbansync/board/persist"
	"github.com/2389-research/kanbansync/board/server"
	"github.com/2389-research/kanbansync/board/store"
)

// Export sources.
const (
	fromStore    = "store"
	fromSnapshot = "snapshot"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		from   string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a board as yaml, md, html, or all three",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(nil)
			if err != nil {
				return err
			}
			newLogger(cfg.LogLevel, cmd.ErrOrStderr())

			mgr, err := store.NewStorageManager(cfg.Home)
			if err != nil {
				return err
			}
			dir, err := mgr.Board(cfg.Board)
			if err != nil {
				return err
			}
			if _, err := os.Stat(dir.Path); err != nil && cfg.Backend == server.BackendSQLite {
				return fmt.Errorf("board %q not found under %s", cfg.Board, mgr.Home())
			}

			snap, err := loadSnapshot(cmd.Context(), cfg, dir, from)
			if err != nil {
				return err
			}

			if format == "all" {
				target := out
				if target == "" {
					target = dir.ExportsDir()
				}
				if err := export.WriteExports(target, cfg.Board, snap); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "wrote board.yaml, board.md, board.html to %s\n", target)
				return nil
			}

			rendered, err := render(format, cfg.Board, snap)
			if err != nil {
				return err
			}
			if out == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), rendered)
				return err
			}
			if err := os.WriteFile(out, []byte(rendered), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			printSuccess(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "Output format: yaml, md, html, all")
	cmd.Flags().StringVar(&from, "from", fromStore, "Read from the persistence store or the latest snapshot")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (directory for --format all)")
	return cmd
}

func render(format, name string, snap core.Snapshot) (string, error) {
	switch format {
	case "yaml", "yml":
		return export.ExportYAML(name, snap)
	case "md", "markdown":
		return export.ExportMarkdown(name, snap), nil
	case "html":
		return export.ExportHTML(name, snap)
	default:
		return "", fmt.Errorf("unknown format %q (want yaml, md, html, or all)", format)
	}
}

// loadSnapshot reads the board without starting an actor.
func loadSnapshot(ctx context.Context, cfg *server.Config, dir store.BoardDir, from string) (core.Snapshot, error) {
	switch from {
	case fromSnapshot:
		data, err := store.LoadLatestSnapshot(dir.SnapshotsDir())
		if err != nil {
			return core.Snapshot{}, err
		}
		if data == nil {
			return core.Snapshot{}, fmt.Errorf("board %q has no snapshots yet", cfg.Board)
		}
		return data.Board, nil
	case fromStore:
	default:
		return core.Snapshot{}, fmt.Errorf("unknown source %q (want store or snapshot)", from)
	}

	var svc interface {
		persist.Service
		Close() error
	}
	if cfg.Backend == server.BackendRedis {
		r, err := store.NewRedisService(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Namespace)
		if err != nil {
			return core.Snapshot{}, err
		}
		svc = r
	} else {
		s, err := store.OpenSQLite(ctx, dir.DBPath())
		if err != nil {
			return core.Snapshot{}, err
		}
		svc = s
	}
	defer func() { _ = svc.Close() }()

	state, err := persist.Seed(ctx, svc, cfg.ActiveLanes, cfg.ReservedLanes)
	if err != nil {
		return core.Snapshot{}, err
	}
	return state.Snapshot(), nil
}
