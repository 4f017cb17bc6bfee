// ABOUTME: Colored terminal output for the CLI: success lines, warnings, errors, and intent states.
// ABOUTME: Honors NO_COLOR; color is otherwise decided by fatih/color's TTY detection.
package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/2389-research/kanbansync/board/persist"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

func printSuccess(w io.Writer, format string, a ...any) {
	_, _ = green.Fprintf(w, "✓ "+format, a...)
}

func printWarning(w io.Writer, format string, a ...any) {
	_, _ = yellow.Fprintf(w, "! "+format, a...)
}

func printError(w io.Writer, err error) {
	_, _ = red.Fprintf(w, "error: ")
	_, _ = fmt.Fprintln(w, err)
}

// stateLabel renders an intent state padded to a fixed width.
func stateLabel(s persist.IntentState) string {
	label := fmt.Sprintf("%-9s", s)
	switch s {
	case persist.IntentFailed:
		return red.Sprint(label)
	case persist.IntentInFlight:
		return cyan.Sprint(label)
	default:
		return yellow.Sprint(label)
	}
}
