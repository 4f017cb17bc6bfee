// ABOUTME: Append-only activity log entries recorded on every card mutation.
// ABOUTME: Entries are immutable once appended and are never reordered or removed.
package core

import (
	"time"
)

// ActivityType is the closed set of audited mutations.
type ActivityType string

const (
	ActivityStatusChanged      ActivityType = "status_changed"
	ActivityMemberAdded        ActivityType = "member_added"
	ActivityMemberRemoved      ActivityType = "member_removed"
	ActivityCommentAdded       ActivityType = "comment_added"
	ActivityCommentEdited      ActivityType = "comment_edited"
	ActivityCommentRemoved     ActivityType = "comment_removed"
	ActivityAttachmentAdded    ActivityType = "attachment_added"
	ActivityAttachmentRemoved  ActivityType = "attachment_removed"
	ActivityFieldUpdated       ActivityType = "field_updated"
	ActivityPendingItemAdded   ActivityType = "pending_item_added"
	ActivityPendingItemUpdated ActivityType = "pending_item_updated"
	ActivityPendingItemRemoved ActivityType = "pending_item_removed"
)

// Valid reports whether t belongs to the closed set.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityStatusChanged, ActivityMemberAdded, ActivityMemberRemoved,
		ActivityCommentAdded, ActivityCommentEdited, ActivityCommentRemoved,
		ActivityAttachmentAdded, ActivityAttachmentRemoved, ActivityFieldUpdated,
		ActivityPendingItemAdded, ActivityPendingItemUpdated, ActivityPendingItemRemoved:
		return true
	}
	return false
}

// ActivityEntry is one audit record. ActorID and ActorName are copied from
// the user directory at the moment of the mutation.
type ActivityEntry struct {
	ID        string            `json:"id"`
	Type      ActivityType      `json:"type"`
	Payload   map[string]string `json:"payload"`
	ActorID   string            `json:"actorId"`
	ActorName string            `json:"actorName"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewActivity builds an entry stamped with the given actor and time.
func NewActivity(t ActivityType, payload map[string]string, actor User, at time.Time) ActivityEntry {
	p := make(map[string]string, len(payload))
	for k, v := range payload {
		p[k] = v
	}
	return ActivityEntry{
		ID:        NewID(),
		Type:      t,
		Payload:   p,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Timestamp: at.UTC(),
	}
}

func (e ActivityEntry) clone() ActivityEntry {
	out := e
	if e.Payload != nil {
		out.Payload = make(map[string]string, len(e.Payload))
		for k, v := range e.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

// appendActivity returns a copy of card with entry appended. The input's
// activity slice is never aliased.
func appendActivity(card Card, entry ActivityEntry) Card {
	out := card
	out.Activity = make([]ActivityEntry, 0, len(card.Activity)+1)
	out.Activity = append(out.Activity, card.Activity...)
	out.Activity = append(out.Activity, entry)
	return out
}

// statusChanged is the entry appended on every lane change.
func statusChanged(oldStatus, newStatus string, actor User, at time.Time) ActivityEntry {
	return NewActivity(ActivityStatusChanged, map[string]string{
		"oldStatus": oldStatus,
		"newStatus": newStatus,
	}, actor, at)
}
