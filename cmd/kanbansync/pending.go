// ABOUTME: pending and boards subcommands: list a board's unresolved writes from its journal, list known boards.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/2389-research/kanbansync/board/persist"
	"github.com/2389-research/kanbansync/board/store"
)

func newPendingCmd(opts *rootOptions) *cobra.Command {
	var failedOnly bool
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List writes that have not reached the persistence store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(nil)
			if err != nil {
				return err
			}
			mgr, err := store.NewStorageManager(cfg.Home)
			if err != nil {
				return err
			}
			dir, err := mgr.Board(cfg.Board)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if _, err := os.Stat(dir.JournalPath()); os.IsNotExist(err) {
				printSuccess(w, "board %q has no journal; nothing pending\n", cfg.Board)
				return nil
			}
			journal, err := persist.OpenJournal(dir.JournalPath())
			if err != nil {
				return err
			}
			defer func() { _ = journal.Close() }()

			intents, err := journal.Replay()
			if err != nil {
				return err
			}

			shown, failed := 0, 0
			for _, in := range intents {
				if in.State == persist.IntentFailed {
					failed++
				} else if failedOnly {
					continue
				}
				shown++
				_, _ = fmt.Fprintf(w, "%s %s  %-28s attempts=%d", stateLabel(in.State), in.ID, in.Key, in.Attempts)
				if in.LastError != "" {
					_, _ = faint.Fprintf(w, "  %s", in.LastError)
				}
				_, _ = fmt.Fprintln(w)
			}

			switch {
			case shown == 0:
				printSuccess(w, "nothing pending for board %q\n", cfg.Board)
			case failed > 0:
				printWarning(w, "%d unresolved, %d failed; failed writes are retried with POST /api/intents/retry\n", len(intents), failed)
			default:
				_, _ = fmt.Fprintf(w, "%d unresolved; they are replayed when the board starts\n", len(intents))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show failed writes")
	return cmd
}

func newBoardsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "boards",
		Short: "List boards under the data home",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(nil)
			if err != nil {
				return err
			}
			mgr, err := store.NewStorageManager(cfg.Home)
			if err != nil {
				return err
			}
			boards, err := mgr.ListBoards()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(boards) == 0 {
				_, _ = fmt.Fprintf(w, "no boards under %s\n", mgr.Home())
				return nil
			}
			for _, b := range boards {
				marker := " "
				if b.Name == cfg.Board {
					marker = green.Sprint("*")
				}
				_, _ = fmt.Fprintf(w, "%s %-24s %s\n", marker, b.Name, faint.Sprint(b.Path))
			}
			return nil
		},
	}
}
