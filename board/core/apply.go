// ABOUTME: BoardState.Apply is the reducer folding a command into state, events, and persistence effects.
// ABOUTME: Every card mutation appends exactly one activity entry stamped with the acting user.
package core

import (
	"fmt"
	"strings"
	"time"
)

// Apply validates cmd against the state and, if valid, applies it. It
// returns the events to broadcast (without ids) and the persistence effects.
// A command that changes nothing returns no events and no effects.
//
// Lanes are rebuilt rather than edited in place, so a shallow copy of a
// BoardState can be passed in and the original remains a valid snapshot.
func (s *BoardState) Apply(cmd Command, actor User, now time.Time) ([]Event, []Effect, error) {
	switch c := cmd.(type) {
	case ApplyGestureCommand:
		return s.applyGesture(c, actor, now)

	case CreateCardCommand:
		return s.createCard(c, actor, now)

	case UpdateCardFieldCommand:
		return s.updateField(c, actor, now)

	case AddMemberCommand:
		if c.Member.ID == "" {
			return nil, nil, fmt.Errorf("%w: member id is required", ErrInvalidInput)
		}
		return s.editCard(c.CardID, actor, now, func(card Card) (Card, *ActivityEntry, error) {
			if card.HasMember(c.Member.ID) {
				return card, nil, nil
			}
			card.Members = append(card.Members, c.Member)
			e := NewActivity(ActivityMemberAdded, map[string]string{
				"memberId": c.Member.ID, "memberName": c.Member.Name,
			}, actor, now)
			return card, &e, nil
		})

	case RemoveMemberCommand:
		return s.editCard(c.CardID, actor, now, func(card Card) (Card, *ActivityEntry, error) {
			i := card.memberIndex(c.UserID)
			if i < 0 {
				return card, nil, &ItemNotFoundError{CardID: c.CardID, Kind: "member", ItemID: c.UserID}
			}
			removed := card.Members[i]
			card.Members = append(card.Members[:i], card.Members[i+1:]...)
			e := NewActivity(ActivityMemberRemoved, map[string]string{
				"memberId": removed.ID, "memberName": removed.Name,
			}, actor, now)
			return card, &e, nil
		})

	case AddCommentCommand:
		if strings.TrimSpace(c.Text) == "" {
			return nil, nil, fmt.Errorf("%w: comment text is required", ErrInvalidInput)
		}
		return s.editCard(c.CardID, actor, now, func(card Card) (Card, *ActivityEntry, error) {
			cm := Comment{ID: NewItemID(), Author: actor.Name, Text: c.Text, Timestamp: now.UTC()}
			card.Comments = append(card.Comments, cm)
			e := NewActivity(ActivityCommentAdded, map[string]string{
				"commentId": cm.ID, "text": cm.Text,
			}, actor, now)
			return card, &e, nil
		})

	case EditCommentCommand:
		return s.editCard(c.CardID, actor, now, func(card Card) (Card, *ActivityEntry, error) {
			i := card.commentIndex(c.CommentID)
			if i < 0 {
				return card, nil, &ItemNotFoundError{CardID: c.CardID, Kind: "comment", ItemID: c.CommentID}
			}
			old := card.Comments[i].Text
			if old == c.Text {
				return card, nil, nil
			}
			card.Comments[i].Text = c.Text
			e := NewActivity(ActivityCommentEdited, map[string]string{
				"commentId": c.CommentID, "oldText": old, "newText": c.Text,
			}, actor, now)
			return card, &e, nil
		})

	case RemoveCommentCommand:
		return s.editCard(c.CardID, actor, now, func(card Card) (Card, *ActivityEntry, error) {
			i := card.commentIndex(c.CommentID)
			if i < 0 {
				return card, nil, &ItemNotFoundError{CardID: c.CardID, Kind: "comment", ItemID: c.CommentID}
			}
			card.Comments = append(card.Comments[:i], card.Comments[i+1:]...)
			e := NewActivity(ActivityCommentRemoved, map[string]string{"commentId": c.CommentID}, actor, now)
			return card, &e, nil
		})

	case AddAttachmentCommand:
		if c.Name == "" {
			return nil, nil, fmt.Errorf("%w: attachment name is required", ErrInvalidInput)
		}
		return s.editCard(c.CardID, actor, now, func(card Card) (Card, *ActivityEntry, error) {
			a := Attachment{ID: NewItemID(), Name: c.Name, SizeBytes: c.SizeBytes, ContentRef: c.ContentRef}
			card.Attachments = append(card.Attachments, a)
			e := NewActivity(ActivityAttachmentAdded, map[string]string{
				"attachmentId": a.ID, "name": a.Name,
			}, actor, now)
			return card, &e, nil
		})

	case RemoveAttachmentCommand:
		return s.editCard(c.CardID, actor, now, func(card Card) (Card, *ActivityEntry, error) {
			i := card.attachmentIndex(c.AttachmentID)
			if i < 0 {
				return card, nil, &ItemNotFoundError{CardID: c.CardID, Kind: "attachment", ItemID: c.AttachmentID}
			}
			removed := card.Attachments[i]
			card.Attachments = append(card.Attachments[:i], card.Attachments[i+1:]...)
			e := NewActivity(ActivityAttachmentRemoved, map[string]string{
				"attachmentId": removed.ID, "name": removed.Name,
			}, actor, now)
			return card, &e, nil
		})

	case AddPendingItemCommand:
		if strings.TrimSpace(c.Text) == "" {
			return nil, nil, fmt.Errorf("%w: pending item text is required", ErrInvalidInput)
		}
		return s.editCard(c.CardID, actor, now, func(card Card) (Card, *ActivityEntry, error) {
			p := PendingItem{ID: NewItemID(), Text: c.Text}
			card.PendingItems = append(card.PendingItems, p)
			e := NewActivity(ActivityPendingItemAdded, map[string]string{
				"itemId": p.ID, "text": p.Text,
			}, actor, now)
			return card, &e, nil
		})

	case UpdatePendingItemCommand:
		return s.editCard(c.CardID, actor, now, func(card Card) (Card, *ActivityEntry, error) {
			i := card.pendingIndex(c.ItemID)
			if i < 0 {
				return card, nil, &ItemNotFoundError{CardID: c.CardID, Kind: "pending item", ItemID: c.ItemID}
			}
			item := card.PendingItems[i]
			payload := map[string]string{"itemId": item.ID}
			if c.Text != nil && *c.Text != item.Text {
				payload["oldText"], payload["newText"] = item.Text, *c.Text
				item.Text = *c.Text
			}
			if c.Completed != nil && *c.Completed != item.Completed {
				payload["completed"] = fmt.Sprintf("%t", *c.Completed)
				item.Completed = *c.Completed
			}
			if len(payload) == 1 {
				return card, nil, nil
			}
			card.PendingItems[i] = item
			e := NewActivity(ActivityPendingItemUpdated, payload, actor, now)
			return card, &e, nil
		})

	case RemovePendingItemCommand:
		return s.editCard(c.CardID, actor, now, func(card Card) (Card, *ActivityEntry, error) {
			i := card.pendingIndex(c.ItemID)
			if i < 0 {
				return card, nil, &ItemNotFoundError{CardID: c.CardID, Kind: "pending item", ItemID: c.ItemID}
			}
			removed := card.PendingItems[i]
			card.PendingItems = append(card.PendingItems[:i], card.PendingItems[i+1:]...)
			e := NewActivity(ActivityPendingItemRemoved, map[string]string{
				"itemId": removed.ID, "text": removed.Text,
			}, actor, now)
			return card, &e, nil
		})

	case FinalizeCardCommand:
		return s.finalizeCard(c, actor, now)

	case RestoreCardCommand:
		return s.restoreCard(c, actor, now)

	case DeleteCardCommand:
		return s.deleteCard(c, actor, now)

	case SetViewCommand:
		if !c.View.Valid() {
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownView, c.View)
		}
		if c.View == s.View {
			return nil, nil, nil
		}
		s.View = c.View
		return []Event{{Kind: EventViewChanged, ActorID: actor.ID, Detail: string(c.View), Timestamp: now}}, nil, nil

	case SetSearchQueryCommand:
		if c.Query == s.SearchQuery {
			return nil, nil, nil
		}
		s.SearchQuery = c.Query
		return []Event{{Kind: EventSearchChanged, ActorID: actor.ID, Detail: c.Query, Timestamp: now}}, nil, nil

	case ToggleCheckedCommand:
		card, err := s.mutateCard(c.CardID, func(card Card) (Card, error) {
			card.Checked = !card.Checked
			return card, nil
		})
		if err != nil {
			return nil, nil, err
		}
		return []Event{{Kind: EventSelectionChanged, CardID: card.ID, Lane: card.Status, ActorID: actor.ID,
			Detail: fmt.Sprintf("%t", card.Checked), Timestamp: now}}, nil, nil

	case ReloadBoardCommand:
		if c.BaseEventID != s.LastEventID {
			return nil, nil, fmt.Errorf("%w: read at event %d, board at %d", ErrStaleReload, c.BaseEventID, s.LastEventID)
		}
		active, finalized := SplitBoard(c.Columns, c.Order, s.Finalized.Order)
		s.Active, s.Finalized = active, finalized
		return []Event{{Kind: EventBoardReloaded, ActorID: actor.ID, Timestamp: now}}, nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

func (s *BoardState) applyGesture(c ApplyGestureCommand, actor User, now time.Time) ([]Event, []Effect, error) {
	view := c.View
	if view == "" {
		view = s.View
	}
	out, err := Reorder(s.Active, s.Finalized, view, c.Gesture, actor, now)
	if err != nil {
		return nil, nil, err
	}
	if !out.Changed {
		return nil, nil, nil
	}
	s.Active, s.Finalized = out.Active, out.Finalized

	ev := Event{Kind: EventGestureApplied, ActorID: actor.ID, Lane: c.Gesture.DestLane,
		Detail: string(c.Gesture.Kind), Timestamp: now}
	switch {
	case out.Removed != nil:
		ev.CardID = out.Removed.ID
	case c.Gesture.Kind == GestureReorderCard:
		ev.CardID = s.Board(view).Columns[c.Gesture.DestLane][c.Gesture.DestIndex].ID
	}
	return []Event{ev}, out.Effects, nil
}

func (s *BoardState) createCard(c CreateCardCommand, actor User, now time.Time) ([]Event, []Effect, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, nil, fmt.Errorf("%w: card name is required", ErrInvalidInput)
	}
	lane := c.Lane
	if lane == "" {
		var ok bool
		if lane, ok = s.resolveDefaultLane(); !ok {
			return nil, nil, &LaneNotFoundError{Lane: "<default>"}
		}
	}
	if !s.Active.HasLane(lane) {
		return nil, nil, &LaneNotFoundError{Lane: lane}
	}

	card := NewCard(c.Name, c.ProjectID)
	if len(c.Labels) > 0 {
		card.Labels = append([]string{}, c.Labels...)
	}
	next := s.Active.shallow()
	next.place(lane, len(next.Columns[lane]), card)
	s.Active = next
	placed := next.Columns[lane][len(next.Columns[lane])-1]

	return []Event{{Kind: EventCardCreated, CardID: placed.ID, Lane: lane, ActorID: actor.ID, Timestamp: now}},
		[]Effect{SaveCardEffect(placed), SaveColumnsEffect(next.Columns, lane)}, nil
}

func (s *BoardState) updateField(c UpdateCardFieldCommand, actor User, now time.Time) ([]Event, []Effect, error) {
	return s.editCard(c.CardID, actor, now, func(card Card) (Card, *ActivityEntry, error) {
		var oldVal, newVal string
		switch c.Field {
		case FieldName:
			if strings.TrimSpace(c.Value) == "" {
				return card, nil, fmt.Errorf("%w: card name is required", ErrInvalidInput)
			}
			oldVal, newVal = card.Name, c.Value
			card.Name = c.Value
		case FieldProjectID:
			oldVal, newVal = card.ProjectID, c.Value
			card.ProjectID = c.Value
		case FieldLabels:
			oldVal, newVal = strings.Join(card.Labels, ","), strings.Join(c.Labels, ",")
			card.Labels = append([]string{}, c.Labels...)
		default:
			return card, nil, fmt.Errorf("%w: unknown card field %q", ErrInvalidInput, c.Field)
		}
		if oldVal == newVal {
			return card, nil, nil
		}
		e := NewActivity(ActivityFieldUpdated, map[string]string{
			"field": string(c.Field), "oldValue": oldVal, "newValue": newVal,
		}, actor, now)
		return card, &e, nil
	})
}

// editCard runs fn against the card. When fn returns an entry the entry is
// appended, the card is saved, and a card_updated event is produced. A nil
// entry means nothing changed.
func (s *BoardState) editCard(cardID string, actor User, now time.Time,
	fn func(Card) (Card, *ActivityEntry, error)) ([]Event, []Effect, error) {
	view, lane, idx, ok := s.Locate(cardID)
	if !ok {
		return nil, nil, &CardNotFoundError{CardID: cardID}
	}
	current := s.Board(view).Columns[lane][idx].Clone()
	edited, entry, err := fn(current)
	if err != nil {
		return nil, nil, err
	}
	if entry == nil {
		return nil, nil, nil
	}
	updated, err := s.mutateCard(cardID, func(Card) (Card, error) {
		return appendActivity(edited, *entry), nil
	})
	if err != nil {
		return nil, nil, err
	}
	return []Event{{Kind: EventCardUpdated, CardID: cardID, Lane: lane, ActorID: actor.ID,
			Detail: string(entry.Type), Timestamp: now}},
		[]Effect{SaveCardEffect(updated)}, nil
}

func (s *BoardState) finalizeCard(c FinalizeCardCommand, actor User, now time.Time) ([]Event, []Effect, error) {
	if !s.Finalized.HasLane(c.Lane) {
		return nil, nil, fmt.Errorf("%w: %q", ErrNotFinalizedLane, c.Lane)
	}
	view, lane, idx, ok := s.Locate(c.CardID)
	if !ok {
		return nil, nil, &CardNotFoundError{CardID: c.CardID}
	}
	if view == ViewFinalized {
		return nil, nil, ErrCardFinalized
	}

	active := s.Active.shallow()
	finalized := s.Finalized.shallow()
	card := active.take(lane, idx)
	card = appendActivity(card, statusChanged(lane, c.Lane, actor, now))
	finalized.place(c.Lane, 0, card)
	s.Active, s.Finalized = active, finalized

	placed := finalized.Columns[c.Lane][0]
	layout := SaveColumnsEffect(active.Columns, lane)
	layout.Columns[c.Lane] = SaveColumnsEffect(finalized.Columns, c.Lane).Columns[c.Lane]
	return []Event{{Kind: EventCardFinalized, CardID: c.CardID, Lane: c.Lane, ActorID: actor.ID, Timestamp: now}},
		[]Effect{SaveCardEffect(placed), layout}, nil
}

func (s *BoardState) restoreCard(c RestoreCardCommand, actor User, now time.Time) ([]Event, []Effect, error) {
	dest := c.Lane
	if dest == "" {
		var ok bool
		if dest, ok = s.resolveDefaultLane(); !ok {
			return nil, nil, &LaneNotFoundError{Lane: "<default>"}
		}
	}
	if !s.Active.HasLane(dest) {
		return nil, nil, &LaneNotFoundError{Lane: dest}
	}
	view, lane, idx, ok := s.Locate(c.CardID)
	if !ok {
		return nil, nil, &CardNotFoundError{CardID: c.CardID}
	}
	if view != ViewFinalized {
		return nil, nil, ErrCardNotFinalized
	}

	active := s.Active.shallow()
	finalized := s.Finalized.shallow()
	card := finalized.take(lane, idx)
	card = appendActivity(card, statusChanged(lane, dest, actor, now))
	pos := len(active.Columns[dest])
	active.place(dest, pos, card)
	s.Active, s.Finalized = active, finalized

	placed := active.Columns[dest][pos]
	layout := SaveColumnsEffect(active.Columns, dest)
	layout.Columns[lane] = SaveColumnsEffect(finalized.Columns, lane).Columns[lane]
	return []Event{{Kind: EventCardRestored, CardID: c.CardID, Lane: dest, ActorID: actor.ID, Timestamp: now}},
		[]Effect{SaveCardEffect(placed), layout}, nil
}

func (s *BoardState) deleteCard(c DeleteCardCommand, actor User, now time.Time) ([]Event, []Effect, error) {
	view, lane, idx, ok := s.Locate(c.CardID)
	if !ok {
		return nil, nil, &CardNotFoundError{CardID: c.CardID}
	}
	b := s.boardPtr(view)
	next := b.shallow()
	next.take(lane, idx)
	*b = next
	return []Event{{Kind: EventCardDeleted, CardID: c.CardID, Lane: lane, ActorID: actor.ID, Timestamp: now}},
		[]Effect{DeleteCardEffect(c.CardID)}, nil
}
