// ABOUTME: Reorder engine: pure functions turning a drag gesture into a new board pair.
// ABOUTME: Handles card moves, lane moves with a pinned finalized tail, combine, and trash.
package core

import (
	"time"
)

// GestureKind names what a drag gesture does.
type GestureKind string

const (
	GestureReorderCard GestureKind = "reorder-card"
	GestureReorderLane GestureKind = "reorder-lane"
	GestureCombine     GestureKind = "combine"
	GestureTrash       GestureKind = "trash"
)

// TrashTarget is the synthetic destination lane for trash gestures.
const TrashTarget = "__trash__"

// View selects which board a gesture applies to.
type View string

const (
	ViewActive    View = "active"
	ViewFinalized View = "finalized"
)

// Valid reports whether v names a known board.
func (v View) Valid() bool {
	return v == ViewActive || v == ViewFinalized
}

// Gesture describes one drag: where it started and where it was dropped.
// Lane gestures index into the display order (active lanes then finalized lanes).
type Gesture struct {
	Kind        GestureKind `json:"kind"`
	SourceLane  string      `json:"sourceLane"`
	SourceIndex int         `json:"sourceIndex"`
	DestLane    string      `json:"destLane"`
	DestIndex   int         `json:"destIndex"`
}

// IsNoop reports whether the gesture dropped exactly where it started.
func (g Gesture) IsNoop() bool {
	return g.SourceLane == g.DestLane && g.SourceIndex == g.DestIndex
}

// EffectKind names an outbound persistence write.
type EffectKind string

const (
	EffectSaveCard      EffectKind = "save_card"
	EffectSaveColumns   EffectKind = "save_columns"
	EffectSaveLaneOrder EffectKind = "save_lane_order"
	EffectDeleteCard    EffectKind = "delete_card"
)

// Effect is a persistence write produced by a commit.
type Effect struct {
	Kind    EffectKind `json:"kind"`
	Card    *Card      `json:"card,omitempty"`
	CardID  string     `json:"cardId,omitempty"`
	Order   []string   `json:"order,omitempty"`
	Columns BoardMap   `json:"columns,omitempty"`
}

// SaveCardEffect upserts a single card.
func SaveCardEffect(c Card) Effect {
	cp := c.Clone()
	return Effect{Kind: EffectSaveCard, Card: &cp, CardID: c.ID}
}

// SaveColumnsEffect writes the listed lanes of a board map.
func SaveColumnsEffect(m BoardMap, lanes ...string) Effect {
	sub := make(BoardMap, len(lanes))
	for _, l := range lanes {
		cards := m[l]
		cp := make([]Card, len(cards))
		for i, c := range cards {
			cp[i] = c.Clone()
		}
		sub[l] = cp
	}
	return Effect{Kind: EffectSaveColumns, Columns: sub}
}

// SaveLaneOrderEffect persists the active order list.
func SaveLaneOrderEffect(order []string) Effect {
	return Effect{Kind: EffectSaveLaneOrder, Order: append([]string{}, order...)}
}

// DeleteCardEffect permanently removes a card.
func DeleteCardEffect(id string) Effect {
	return Effect{Kind: EffectDeleteCard, CardID: id}
}

// Outcome is the result of applying a gesture. When Changed is false the
// boards are the inputs and Effects is empty.
type Outcome struct {
	Active    Board
	Finalized Board
	Changed   bool
	Effects   []Effect
	Removed   *Card
}

// Reorder applies g to the board selected by view. The input boards are never
// mutated; lanes touched by the gesture are rebuilt in the returned boards.
func Reorder(active, finalized Board, view View, g Gesture, actor User, now time.Time) (Outcome, error) {
	unchanged := Outcome{Active: active, Finalized: finalized}
	if !view.Valid() {
		return unchanged, ErrUnknownView
	}

	if g.Kind == GestureReorderLane {
		if view != ViewActive {
			return unchanged, ErrFinalizedOrderFixed
		}
		return reorderLane(active, finalized, g)
	}

	target := active
	if view == ViewFinalized {
		target = finalized
	}

	var (
		next Board
		out  Outcome
		err  error
	)
	switch g.Kind {
	case GestureReorderCard:
		next, out, err = reorderCard(target, g, actor, now)
	case GestureCombine:
		next, out, err = removeCard(target, g, false)
	case GestureTrash:
		next, out, err = removeCard(target, g, true)
	default:
		return unchanged, ErrUnknownGesture
	}
	if err != nil || !out.Changed {
		return unchanged, err
	}

	out.Active, out.Finalized = active, finalized
	if view == ViewFinalized {
		out.Finalized = next
	} else {
		out.Active = next
	}
	return out, nil
}

func reorderCard(b Board, g Gesture, actor User, now time.Time) (Board, Outcome, error) {
	if err := checkSource(b, g); err != nil {
		return b, Outcome{}, err
	}
	if !b.HasLane(g.DestLane) {
		return b, Outcome{}, &LaneNotFoundError{Lane: g.DestLane}
	}
	destLen := len(b.Columns[g.DestLane])
	if g.SourceLane == g.DestLane {
		destLen--
	}
	if g.DestIndex < 0 || g.DestIndex > destLen {
		return b, Outcome{}, &IndexOutOfRangeError{Lane: g.DestLane, Index: g.DestIndex, Len: destLen}
	}
	if g.IsNoop() {
		return b, Outcome{}, nil
	}

	next := b.shallow()
	card := next.take(g.SourceLane, g.SourceIndex)

	if g.SourceLane == g.DestLane {
		next.place(g.DestLane, g.DestIndex, card)
		return next, Outcome{
			Changed: true,
			Effects: []Effect{SaveColumnsEffect(next.Columns, g.DestLane)},
		}, nil
	}

	moved := appendActivity(card, statusChanged(g.SourceLane, g.DestLane, actor, now))
	next.place(g.DestLane, g.DestIndex, moved)
	placed := next.Columns[g.DestLane][g.DestIndex]
	return next, Outcome{
		Changed: true,
		Effects: []Effect{
			SaveCardEffect(placed),
			SaveColumnsEffect(next.Columns, g.SourceLane, g.DestLane),
		},
	}, nil
}

func removeCard(b Board, g Gesture, trash bool) (Board, Outcome, error) {
	if err := checkSource(b, g); err != nil {
		return b, Outcome{}, err
	}
	if g.IsNoop() {
		return b, Outcome{}, nil
	}
	next := b.shallow()
	card := next.take(g.SourceLane, g.SourceIndex)
	out := Outcome{Changed: true, Removed: &card}
	if trash {
		out.Effects = []Effect{DeleteCardEffect(card.ID)}
	}
	return next, out, nil
}

func reorderLane(active, finalized Board, g Gesture) (Outcome, error) {
	unchanged := Outcome{Active: active, Finalized: finalized}
	display := DisplayOrder(active, finalized)
	for _, idx := range []int{g.SourceIndex, g.DestIndex} {
		if idx < 0 || idx >= len(display) {
			return unchanged, &IndexOutOfRangeError{Lane: "<lanes>", Index: idx, Len: len(display)}
		}
	}
	if g.SourceIndex == g.DestIndex {
		return unchanged, nil
	}

	moved := MoveLane(display, g.SourceIndex, g.DestIndex, finalized.Order)
	newActive := moved[:len(moved)-len(finalized.Order)]
	if equalStrings(newActive, active.Order) {
		return unchanged, nil
	}

	next := active.shallow()
	next.Order = append([]string{}, newActive...)
	return Outcome{
		Active:    next,
		Finalized: finalized,
		Changed:   true,
		Effects:   []Effect{SaveLaneOrderEffect(next.Order)},
	}, nil
}

// MoveLane moves the lane at from to position to, treating the reserved lanes
// as immovable. Reserved lanes are stripped before the move and appended back
// in their fixed order, so they always end up as the tail no matter what the
// indices pointed at. A source index inside the reserved region moves
// nothing; a destination inside it means "last active position".
func MoveLane(order []string, from, to int, reserved []string) []string {
	isReserved := make(map[string]bool, len(reserved))
	for _, r := range reserved {
		isReserved[r] = true
	}
	filtered := make([]string, 0, len(order))
	for _, l := range order {
		if !isReserved[l] {
			filtered = append(filtered, l)
		}
	}

	if from >= 0 && from < len(filtered) {
		item := filtered[from]
		filtered = append(filtered[:from], filtered[from+1:]...)
		if to < 0 {
			to = 0
		}
		if to > len(filtered) {
			to = len(filtered)
		}
		filtered = append(filtered, "")
		copy(filtered[to+1:], filtered[to:])
		filtered[to] = item
	}

	return append(filtered, reserved...)
}

func checkSource(b Board, g Gesture) error {
	if !b.HasLane(g.SourceLane) {
		return &LaneNotFoundError{Lane: g.SourceLane}
	}
	n := len(b.Columns[g.SourceLane])
	if g.SourceIndex < 0 || g.SourceIndex >= n {
		return &IndexOutOfRangeError{Lane: g.SourceLane, Index: g.SourceIndex, Len: n}
	}
	return nil
}

// shallow copies the map and order so lanes can be rebuilt without touching
// the original. Lane slices are shared until place/take/replace rebuild them.
func (b Board) shallow() Board {
	cols := make(BoardMap, len(b.Columns))
	for k, v := range b.Columns {
		cols[k] = v
	}
	return Board{Kind: b.Kind, Columns: cols, Order: append([]string{}, b.Order...)}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
