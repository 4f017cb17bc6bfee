// ABOUTME: Card is one unit of work on the board, with members, sub-tasks, comments, and history.
// ABOUTME: Cards round-trip through plain JSON; Clone gives an independent deep copy.
package core

import (
	"time"
)

// PendingItem is a checklist sub-task on a card.
type PendingItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Comment is a mutable note left on a card.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Attachment references stored content. The bytes live elsewhere.
type Attachment struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SizeBytes  int64  `json:"sizeBytes"`
	ContentRef string `json:"contentRef"`
}

// Card is the atomic unit of storage and movement.
//
// Status mirrors the lane the card sits in. Only Board placement writes it,
// so it cannot drift from lane membership.
type Card struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"projectId,omitempty"`
	Name         string          `json:"name"`
	Status       string          `json:"status"`
	Members      []User          `json:"members"`
	Labels       []string        `json:"labels"`
	PendingItems []PendingItem   `json:"pendingItems"`
	Comments     []Comment       `json:"comments"`
	Attachments  []Attachment    `json:"attachments"`
	Activity     []ActivityEntry `json:"activity"`

	// Checked is UI selection state. It never reaches persistence.
	Checked bool `json:"-"`
}

// NewCard creates a card with a fresh id and empty collections.
func NewCard(name, projectID string) Card {
	return Card{
		ID:           NewID(),
		ProjectID:    projectID,
		Name:         name,
		Members:      []User{},
		Labels:       []string{},
		PendingItems: []PendingItem{},
		Comments:     []Comment{},
		Attachments:  []Attachment{},
		Activity:     []ActivityEntry{},
	}
}

// Clone returns a deep copy of the card.
func (c Card) Clone() Card {
	out := c
	out.Members = append([]User{}, c.Members...)
	out.Labels = append([]string{}, c.Labels...)
	out.PendingItems = append([]PendingItem{}, c.PendingItems...)
	out.Comments = append([]Comment{}, c.Comments...)
	out.Attachments = append([]Attachment{}, c.Attachments...)
	out.Activity = make([]ActivityEntry, len(c.Activity))
	for i, e := range c.Activity {
		out.Activity[i] = e.clone()
	}
	return out
}

// HasMember reports whether a user id is among the card's members.
func (c Card) HasMember(userID string) bool {
	return c.memberIndex(userID) >= 0
}

func (c Card) memberIndex(userID string) int {
	for i, m := range c.Members {
		if m.ID == userID {
			return i
		}
	}
	return -1
}

func (c Card) commentIndex(id string) int {
	for i, cm := range c.Comments {
		if cm.ID == id {
			return i
		}
	}
	return -1
}

func (c Card) attachmentIndex(id string) int {
	for i, a := range c.Attachments {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (c Card) pendingIndex(id string) int {
	for i, p := range c.PendingItems {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// ensureCollections replaces nil slices with empty ones so JSON output is
// stable ("[]" rather than "null") regardless of where the card came from.
func (c *Card) ensureCollections() {
	if c.Members == nil {
		c.Members = []User{}
	}
	if c.Labels == nil {
		c.Labels = []string{}
	}
	if c.PendingItems == nil {
		c.PendingItems = []PendingItem{}
	}
	if c.Comments == nil {
		c.Comments = []Comment{}
	}
	if c.Attachments == nil {
		c.Attachments = []Attachment{}
	}
	if c.Activity == nil {
		c.Activity = []ActivityEntry{}
	}
}
