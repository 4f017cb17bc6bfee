// ABOUTME: Intent is one queued persistence write and its lifecycle: pending, in flight, resolved, failed.
// ABOUTME: Intents are keyed so writes touching the same record are dispatched in order.
package persist

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/2389-research/kanbansync/board/core"
)

var (
	// ErrIntentNotFound indicates no unresolved intent has the given id.
	ErrIntentNotFound = errors.New("intent not found")

	// ErrIntentNotFailed indicates Retry was called on an intent that has not failed.
	ErrIntentNotFailed = errors.New("intent has not failed")

	// ErrBridgeClosed indicates the bridge no longer accepts writes.
	ErrBridgeClosed = errors.New("persistence bridge closed")
)

// IntentState is where an intent is in its lifecycle.
type IntentState string

const (
	IntentPending  IntentState = "pending"
	IntentInFlight IntentState = "in_flight"
	IntentResolved IntentState = "resolved"
	IntentFailed   IntentState = "failed"
)

// Intent is a durable record of a write that has been applied in memory but
// not yet acknowledged by the Service. Seq orders intents by enqueue.
type Intent struct {
	ID        string      `json:"id"`
	Seq       uint64      `json:"seq"`
	Key       string      `json:"key"`
	Effect    core.Effect `json:"effect"`
	State     IntentState `json:"state"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"lastError,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func newIntent(e core.Effect, now time.Time) *Intent {
	return &Intent{
		ID:        uuid.NewString(),
		Key:       intentKey(e),
		Effect:    e,
		State:     IntentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// intentKey groups effects that must land in order.
func intentKey(e core.Effect) string {
	switch e.Kind {
	case core.EffectSaveCard, core.EffectDeleteCard:
		return "card:" + e.CardID
	case core.EffectSaveLaneOrder:
		return "lane-order"
	default:
		return "columns"
	}
}

// supersedes reports whether a successful write of newer makes older
// pointless: same key, same kind, and for column writes every lane older
// touched is rewritten by newer.
func supersedes(newer, older *Intent) bool {
	if newer.Key != older.Key {
		return false
	}
	if newer.Effect.Kind == core.EffectDeleteCard {
		return true
	}
	if newer.Effect.Kind != older.Effect.Kind {
		return false
	}
	if newer.Effect.Kind == core.EffectSaveColumns {
		for lane := range older.Effect.Columns {
			if _, ok := newer.Effect.Columns[lane]; !ok {
				return false
			}
		}
	}
	return true
}

func (i *Intent) clone() Intent {
	return *i
}
