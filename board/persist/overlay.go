// ABOUTME: ApplyPending folds unacknowledged writes over a freshly loaded board.
// ABOUTME: Each effect is applied the way the stores apply it, so a reload keeps local changes the store has not seen.
package persist

import (
	"github.com/2389-research/kanbansync/board/core"
)

// ApplyPending returns loaded with the effects of intents applied in the
// given order, which should be enqueue order as Bridge.Pending returns it.
// Failed intents are included: their change is still live in memory.
// loaded is not modified.
func ApplyPending(loaded LoadedBoard, intents []Intent) LoadedBoard {
	out := LoadedBoard{
		Columns:    loaded.Columns.Clone(),
		BoardOrder: append([]string{}, loaded.BoardOrder...),
	}
	for _, in := range intents {
		e := in.Effect
		switch e.Kind {
		case core.EffectSaveCard:
			if e.Card != nil && e.Card.Status != "" {
				saveCard(out.Columns, e.Card.Clone())
			}
		case core.EffectDeleteCard:
			take(out.Columns, e.CardID)
		case core.EffectSaveLaneOrder:
			out.BoardOrder = append(out.BoardOrder[:0], e.Order...)
			for _, lane := range e.Order {
				if _, ok := out.Columns[lane]; !ok {
					out.Columns[lane] = []core.Card{}
				}
			}
		case core.EffectSaveColumns:
			for lane, cards := range e.Columns {
				placeLane(out.Columns, lane, cards)
			}
		}
	}
	return out
}

// saveCard replaces a card in place when its lane is unchanged and
// otherwise appends it to its new lane.
func saveCard(m core.BoardMap, card core.Card) {
	if lane, i, ok := m.Find(card.ID); ok && lane == card.Status {
		m[lane][i] = card
		return
	}
	take(m, card.ID)
	m[card.Status] = append(m[card.Status], card)
}

// placeLane moves the listed cards that m already holds into lane, in the
// listed order, ahead of any cards the list does not name. Bodies come from
// m, never from the list.
func placeLane(m core.BoardMap, lane string, listed []core.Card) {
	placed := make([]core.Card, 0, len(listed))
	for _, c := range listed {
		if stored, ok := take(m, c.ID); ok {
			stored.Status = lane
			placed = append(placed, stored)
		}
	}
	m[lane] = append(placed, m[lane]...)
}

func take(m core.BoardMap, id string) (core.Card, bool) {
	lane, i, ok := m.Find(id)
	if !ok {
		return core.Card{}, false
	}
	card := m[lane][i]
	m[lane] = append(m[lane][:i:i], m[lane][i+1:]...)
	return card, true
}
