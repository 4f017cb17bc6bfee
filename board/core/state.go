// ABOUTME: BoardState is the single source of truth: active board, finalized board, view, and search.
// ABOUTME: Snapshot is the serializable projection compared by the dual-store synchronizer.
package core

// BoardState holds both boards plus the view-level state shared by consumers.
type BoardState struct {
	Active      Board  `json:"active"`
	Finalized   Board  `json:"finalized"`
	View        View   `json:"view"`
	SearchQuery string `json:"searchQuery"`
	DefaultLane string `json:"defaultLane"`
	LastEventID uint64 `json:"lastEventId"`
}

// NewBoardState creates empty boards with the given active and reserved lanes.
// The first active lane is the default lane for new cards.
func NewBoardState(activeLanes, reservedLanes []string) *BoardState {
	s := &BoardState{
		Active:    NewBoard(LaneActive, activeLanes),
		Finalized: NewBoard(LaneFinalized, reservedLanes),
		View:      ViewActive,
	}
	if len(activeLanes) > 0 {
		s.DefaultLane = activeLanes[0]
	}
	return s
}

// Snapshot is the mirrored projection of BoardState.
type Snapshot struct {
	Columns          BoardMap `json:"columns"`
	Order            []string `json:"order"`
	FinalizedColumns BoardMap `json:"finalizedColumns"`
	FinalizedOrder   []string `json:"finalizedOrder"`
	CurrentView      View     `json:"currentView"`
	SearchQuery      string   `json:"searchQuery"`
}

// Snapshot returns a deep copy of the mirrored fields.
func (s *BoardState) Snapshot() Snapshot {
	return Snapshot{
		Columns:          s.Active.Columns.Clone(),
		Order:            append([]string{}, s.Active.Order...),
		FinalizedColumns: s.Finalized.Columns.Clone(),
		FinalizedOrder:   append([]string{}, s.Finalized.Order...),
		CurrentView:      s.View,
		SearchQuery:      s.SearchQuery,
	}
}

// Clone returns a deep copy of the whole state.
func (s *BoardState) Clone() *BoardState {
	cp := *s
	cp.Active = s.Active.Clone()
	cp.Finalized = s.Finalized.Clone()
	return &cp
}

// Board returns the board shown by view.
func (s *BoardState) Board(view View) Board {
	if view == ViewFinalized {
		return s.Finalized
	}
	return s.Active
}

func (s *BoardState) boardPtr(view View) *Board {
	if view == ViewFinalized {
		return &s.Finalized
	}
	return &s.Active
}

// DisplayOrder is the lane order rendered to the user.
func (s *BoardState) DisplayOrder() []string {
	return DisplayOrder(s.Active, s.Finalized)
}

// Locate finds a card on either board.
func (s *BoardState) Locate(cardID string) (View, string, int, bool) {
	if lane, idx, ok := s.Active.Columns.Find(cardID); ok {
		return ViewActive, lane, idx, true
	}
	if lane, idx, ok := s.Finalized.Columns.Find(cardID); ok {
		return ViewFinalized, lane, idx, true
	}
	return "", "", -1, false
}

// Card returns a copy of the card with the given id.
func (s *BoardState) Card(cardID string) (Card, bool) {
	view, lane, idx, ok := s.Locate(cardID)
	if !ok {
		return Card{}, false
	}
	return s.Board(view).Columns[lane][idx].Clone(), true
}

// Visible returns the current view's lanes filtered by the search query.
func (s *BoardState) Visible() BoardMap {
	return FilterBoard(s.Board(s.View).Columns, s.SearchQuery)
}

// resolveDefaultLane picks the configured default lane, falling back to the
// first active lane when the default no longer exists.
func (s *BoardState) resolveDefaultLane() (string, bool) {
	if s.DefaultLane != "" && s.Active.HasLane(s.DefaultLane) {
		return s.DefaultLane, true
	}
	if len(s.Active.Order) > 0 {
		return s.Active.Order[0], true
	}
	return "", false
}

// mutateCard applies fn to a copy of the card and writes the result back into
// a rebuilt lane. The previous lane slice is left untouched.
func (s *BoardState) mutateCard(cardID string, fn func(Card) (Card, error)) (Card, error) {
	view, lane, idx, ok := s.Locate(cardID)
	if !ok {
		return Card{}, &CardNotFoundError{CardID: cardID}
	}
	b := s.boardPtr(view)
	updated, err := fn(b.Columns[lane][idx].Clone())
	if err != nil {
		return Card{}, err
	}
	next := b.shallow()
	next.replace(lane, idx, updated)
	*b = next
	return next.Columns[lane][idx], nil
}
