// ABOUTME: Shared lane ordering for all exporters.
// ABOUTME: Active lanes in board order, then finalized lanes, then any stray lanes alphabetically.
package export

import (
	"sort"

	"github.com/2389-research/kanbansync/board/core"
)

// exportLane is one lane in display order with its cards.
type exportLane struct {
	Name      string
	Finalized bool
	Cards     []core.Card
}

// orderedLanes walks the snapshot in display order. Lanes present in a map
// but missing from its order list are appended alphabetically.
func orderedLanes(snap core.Snapshot) []exportLane {
	var out []exportLane
	seen := map[string]bool{}

	add := func(columns core.BoardMap, order []string, finalized bool) {
		for _, name := range order {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, exportLane{Name: name, Finalized: finalized, Cards: columns[name]})
		}
	}
	add(snap.Columns, snap.Order, false)
	add(snap.FinalizedColumns, snap.FinalizedOrder, true)

	var extra []string
	for name := range snap.Columns {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	add(snap.Columns, extra, false)
	return out
}

func completedItems(c core.Card) int {
	n := 0
	for _, p := range c.PendingItems {
		if p.Completed {
			n++
		}
	}
	return n
}
