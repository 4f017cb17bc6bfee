// ABOUTME: Service is the external persistence contract the bridge writes through.
// ABOUTME: Implementations live in board/store (SQLite and Redis).
package persist

import (
	"context"
	"fmt"

	"github.com/2389-research/kanbansync/board/core"
)

// Service is the persistence back-end for one board.
type Service interface {
	SaveCard(ctx context.Context, card core.Card) error
	DeleteCard(ctx context.Context, id string) error
	// SaveLaneOrder stores the active lane order. Reserved lanes are never part of it.
	SaveLaneOrder(ctx context.Context, order []string) error
	// SaveColumns writes the layout (lane and position) of the lanes present in
	// columns. Lanes not named are left alone. It never writes card bodies and
	// skips cards the store does not hold, so it cannot re-create a deleted card.
	SaveColumns(ctx context.Context, columns core.BoardMap) error
	LoadBoard(ctx context.Context) (LoadedBoard, error)
}

// LoadedBoard is what LoadBoard returns: every lane (reserved ones included)
// and the stored active order.
type LoadedBoard struct {
	Columns    core.BoardMap `json:"columns"`
	BoardOrder []string      `json:"boardOrder"`
}

// Seed loads the board and builds the initial actor state from it. Cards in
// reserved lanes seed the finalized board.
func Seed(ctx context.Context, svc Service, activeLanes, reserved []string) (*core.BoardState, error) {
	loaded, err := svc.LoadBoard(ctx)
	if err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}

	order := loaded.BoardOrder
	if len(order) == 0 {
		order = activeLanes
	}
	state := core.NewBoardState(activeLanes, reserved)
	state.Active, state.Finalized = core.SplitBoard(loaded.Columns, order, reserved)
	return state, nil
}

// dispatch performs one effect against svc.
func dispatch(ctx context.Context, svc Service, e core.Effect) error {
	switch e.Kind {
	case core.EffectSaveCard:
		if e.Card == nil {
			return &PermanentError{Err: fmt.Errorf("save_card effect without a card")}
		}
		return svc.SaveCard(ctx, *e.Card)
	case core.EffectDeleteCard:
		return svc.DeleteCard(ctx, e.CardID)
	case core.EffectSaveLaneOrder:
		return svc.SaveLaneOrder(ctx, e.Order)
	case core.EffectSaveColumns:
		return svc.SaveColumns(ctx, e.Columns)
	default:
		return &PermanentError{Err: fmt.Errorf("unknown effect kind %q", e.Kind)}
	}
}
