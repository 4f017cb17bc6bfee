// ABOUTME: Exports a board snapshot as a deterministic Markdown document.
// ABOUTME: One section per lane in display order, one bullet per card with its checklist.
package export

import (
	"fmt"
	"strings"

	"github.com/2389-research/kanbansync/board/core"
)

// ExportMarkdown renders the snapshot as Markdown.
func ExportMarkdown(name string, snap core.Snapshot) string {
	var out strings.Builder

	fmt.Fprintf(&out, "# %s\n", name)
	lanes := orderedLanes(snap)
	finalizedHeader := false

	for _, l := range lanes {
		if l.Finalized && !finalizedHeader {
			fmt.Fprintln(&out)
			fmt.Fprintln(&out, "---")
			finalizedHeader = true
		}
		fmt.Fprintln(&out)
		fmt.Fprintf(&out, "## %s (%d)\n", l.Name, len(l.Cards))
		if len(l.Cards) == 0 {
			fmt.Fprintln(&out)
			fmt.Fprintln(&out, "_No cards._")
			continue
		}
		fmt.Fprintln(&out)
		for _, c := range l.Cards {
			writeCard(&out, c)
		}
	}
	return out.String()
}

func writeCard(out *strings.Builder, c core.Card) {
	fmt.Fprintf(out, "- **%s**", escapeInline(c.Name))
	if c.ProjectID != "" {
		fmt.Fprintf(out, " `%s`", c.ProjectID)
	}
	for _, l := range c.Labels {
		fmt.Fprintf(out, " #%s", escapeInline(l))
	}
	if len(c.PendingItems) > 0 {
		fmt.Fprintf(out, " (%d/%d)", completedItems(c), len(c.PendingItems))
	}
	fmt.Fprintln(out)

	if len(c.Members) > 0 {
		names := make([]string, len(c.Members))
		for i, m := range c.Members {
			names[i] = escapeInline(m.Name)
		}
		fmt.Fprintf(out, "  - Members: %s\n", strings.Join(names, ", "))
	}
	for _, p := range c.PendingItems {
		mark := " "
		if p.Completed {
			mark = "x"
		}
		fmt.Fprintf(out, "  - [%s] %s\n", mark, escapeInline(p.Text))
	}
}

var inlineEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "<", "&lt;", ">", "&gt;",
)

func escapeInline(s string) string {
	return inlineEscaper.Replace(strings.ReplaceAll(s, "\n", " "))
}
