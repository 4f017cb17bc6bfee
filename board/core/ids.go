// ABOUTME: ID generation helpers for cards, activity entries, and events.
// ABOUTME: ULIDs give lexically sortable ids; sub-entities use random UUIDs.
package core

import (
	"crypto/rand"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID generates a new ULID string using crypto/rand entropy.
func NewID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// NewItemID generates an id for a card sub-entity (comment, attachment, pending item).
func NewItemID() string {
	return uuid.NewString()
}
