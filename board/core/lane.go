// ABOUTME: Board maps, order lists, and lane kinds for the active and finalized boards.
// ABOUTME: Lane kind, not lane name, decides that finalized lanes always trail active ones.
package core

import (
	"fmt"
	"sort"
)

// Default reserved lane names: Completed and Cancelled.
const (
	LaneCompleted = "Concluídas"
	LaneCancelled = "Canceladas"
)

// DefaultReservedLanes returns the finalized lanes in their fixed relative order.
func DefaultReservedLanes() []string {
	return []string{LaneCompleted, LaneCancelled}
}

// LaneKind tags a lane as part of the active board or the finalized tail.
type LaneKind int

const (
	LaneActive LaneKind = iota
	LaneFinalized
)

func (k LaneKind) String() string {
	switch k {
	case LaneActive:
		return "active"
	case LaneFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("LaneKind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k LaneKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes "active" or "finalized".
func (k *LaneKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*k = LaneActive
	case "finalized":
		*k = LaneFinalized
	default:
		return fmt.Errorf("unknown lane kind %q", string(b))
	}
	return nil
}

// Lane pairs a lane name with its kind.
type Lane struct {
	Name string   `json:"name"`
	Kind LaneKind `json:"kind"`
}

// SortLanes orders lanes so every Active lane precedes every Finalized lane.
// Relative order within a kind is preserved.
func SortLanes(lanes []Lane) {
	sort.SliceStable(lanes, func(i, j int) bool {
		return lanes[i].Kind < lanes[j].Kind
	})
}

// BoardMap maps a lane name to its ordered cards.
type BoardMap map[string][]Card

// Clone deep-copies the map and every card in it.
func (m BoardMap) Clone() BoardMap {
	out := make(BoardMap, len(m))
	for lane, cards := range m {
		cp := make([]Card, len(cards))
		for i, c := range cards {
			cp[i] = c.Clone()
		}
		out[lane] = cp
	}
	return out
}

// Find locates a card by id. It returns the lane and index when present.
func (m BoardMap) Find(cardID string) (string, int, bool) {
	for lane, cards := range m {
		for i, c := range cards {
			if c.ID == cardID {
				return lane, i, true
			}
		}
	}
	return "", -1, false
}

// Len returns the total number of cards across all lanes.
func (m BoardMap) Len() int {
	n := 0
	for _, cards := range m {
		n += len(cards)
	}
	return n
}

// Board is one board map plus its order list. The active and finalized
// boards are separate values of this type.
type Board struct {
	Kind    LaneKind `json:"kind"`
	Columns BoardMap `json:"columns"`
	Order   []string `json:"order"`
}

// NewBoard creates an empty board with the given lanes in order.
func NewBoard(kind LaneKind, lanes []string) Board {
	b := Board{
		Kind:    kind,
		Columns: make(BoardMap, len(lanes)),
		Order:   append([]string{}, lanes...),
	}
	for _, l := range lanes {
		b.Columns[l] = []Card{}
	}
	return b
}

// Clone deep-copies the board.
func (b Board) Clone() Board {
	return Board{
		Kind:    b.Kind,
		Columns: b.Columns.Clone(),
		Order:   append([]string{}, b.Order...),
	}
}

// HasLane reports whether the lane is part of this board's order list.
func (b Board) HasLane(name string) bool {
	return indexOf(b.Order, name) >= 0
}

// Lanes returns the board's lanes tagged with its kind.
func (b Board) Lanes() []Lane {
	out := make([]Lane, len(b.Order))
	for i, name := range b.Order {
		out[i] = Lane{Name: name, Kind: b.Kind}
	}
	return out
}

// Normalize makes the board self-consistent: every ordered lane has a
// (possibly empty) card list, lanes present only in Columns are appended to
// the order alphabetically, duplicates are dropped from the order, and every
// card's status is re-projected from the lane that holds it.
func (b *Board) Normalize() {
	if b.Columns == nil {
		b.Columns = make(BoardMap)
	}
	seen := make(map[string]bool, len(b.Order))
	order := make([]string, 0, len(b.Order))
	for _, l := range b.Order {
		if seen[l] {
			continue
		}
		seen[l] = true
		order = append(order, l)
	}
	var extra []string
	for l := range b.Columns {
		if !seen[l] {
			extra = append(extra, l)
		}
	}
	sort.Strings(extra)
	b.Order = append(order, extra...)

	for _, l := range b.Order {
		cards := b.Columns[l]
		if cards == nil {
			cards = []Card{}
		}
		for i := range cards {
			cards[i].Status = l
			cards[i].ensureCollections()
		}
		b.Columns[l] = cards
	}
}

// place inserts card at idx in lane and projects its status. The lane's
// slice is rebuilt so earlier snapshots never observe the insert.
func (b *Board) place(lane string, idx int, card Card) {
	card.Status = lane
	src := b.Columns[lane]
	out := make([]Card, 0, len(src)+1)
	out = append(out, src[:idx]...)
	out = append(out, card)
	out = append(out, src[idx:]...)
	b.Columns[lane] = out
}

// take removes and returns the card at idx in lane.
func (b *Board) take(lane string, idx int) Card {
	src := b.Columns[lane]
	card := src[idx]
	out := make([]Card, 0, len(src)-1)
	out = append(out, src[:idx]...)
	out = append(out, src[idx+1:]...)
	b.Columns[lane] = out
	return card
}

// replace swaps the card at idx in lane for card, keeping the lane status.
func (b *Board) replace(lane string, idx int, card Card) {
	card.Status = lane
	src := b.Columns[lane]
	out := make([]Card, len(src))
	copy(out, src)
	out[idx] = card
	b.Columns[lane] = out
}

// DisplayOrder is the lane order shown to the user: active lanes followed by
// finalized lanes, enforced by lane kind.
func DisplayOrder(active, finalized Board) []string {
	lanes := append(active.Lanes(), finalized.Lanes()...)
	SortLanes(lanes)
	out := make([]string, len(lanes))
	for i, l := range lanes {
		out[i] = l.Name
	}
	return out
}

// SplitBoard separates a loaded board map into the active board and the
// finalized board. Reserved lanes go to the finalized board in their fixed
// order no matter where the stored order placed them.
func SplitBoard(columns BoardMap, order []string, reserved []string) (Board, Board) {
	isReserved := make(map[string]bool, len(reserved))
	for _, r := range reserved {
		isReserved[r] = true
	}

	active := Board{Kind: LaneActive, Columns: make(BoardMap)}
	for _, l := range order {
		if !isReserved[l] {
			active.Order = append(active.Order, l)
		}
	}
	finalized := NewBoard(LaneFinalized, reserved)

	for lane, cards := range columns {
		cp := make([]Card, len(cards))
		for i, c := range cards {
			cp[i] = c.Clone()
		}
		if isReserved[lane] {
			finalized.Columns[lane] = cp
		} else {
			active.Columns[lane] = cp
		}
	}
	active.Normalize()
	finalized.Normalize()
	return active, finalized
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
