// ABOUTME: Sentinel and typed errors for gesture validation and board commands.
// ABOUTME: Every error here is returned before the board is mutated.
package core

import (
	"errors"
	"fmt"
)

var (
	// ErrFinalizedOrderFixed indicates a lane reorder was attempted on the finalized board.
	ErrFinalizedOrderFixed = errors.New("finalized lane order is fixed")

	// ErrUnknownGesture indicates the gesture kind is not recognised.
	ErrUnknownGesture = errors.New("unknown gesture kind")

	// ErrNotFinalizedLane indicates a finalize target is not a reserved lane.
	ErrNotFinalizedLane = errors.New("lane is not a finalized lane")

	// ErrCardNotFinalized indicates a restore was attempted on an active card.
	ErrCardNotFinalized = errors.New("card is not finalized")

	// ErrCardFinalized indicates a finalize was attempted on an already finalized card.
	ErrCardFinalized = errors.New("card is already finalized")

	// ErrActorBusy indicates the board's command buffer is full.
	ErrActorBusy = errors.New("board command buffer full")

	// ErrActorClosed indicates the board actor has been stopped.
	ErrActorClosed = errors.New("board actor closed")

	// ErrUnknownCommand indicates the command type is not recognised by the actor.
	ErrUnknownCommand = errors.New("unknown command type")

	// ErrUnknownView indicates a view other than active or finalized.
	ErrUnknownView = errors.New("unknown board view")

	// ErrStaleReload indicates a reload was read before the board's latest commit.
	ErrStaleReload = errors.New("reload is older than the board")

	// ErrInvalidInput indicates a command carried a missing or malformed value.
	ErrInvalidInput = errors.New("invalid command input")
)

// LaneNotFoundError indicates a gesture or command named a lane the board does not have.
type LaneNotFoundError struct {
	Lane string
}

func (e *LaneNotFoundError) Error() string {
	return fmt.Sprintf("lane not found: %q", e.Lane)
}

// IndexOutOfRangeError indicates a gesture index outside the lane's bounds.
type IndexOutOfRangeError struct {
	Lane  string
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("index %d out of range for lane %q (len %d)", e.Index, e.Lane, e.Len)
}

// CardNotFoundError indicates the referenced card doesn't exist on either board.
type CardNotFoundError struct {
	CardID string
}

func (e *CardNotFoundError) Error() string {
	return fmt.Sprintf("card not found: %s", e.CardID)
}

// ItemNotFoundError indicates a member, comment, attachment, or pending item is missing.
type ItemNotFoundError struct {
	CardID string
	Kind   string
	ItemID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found on card %s", e.Kind, e.ItemID, e.CardID)
}
