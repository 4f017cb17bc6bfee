// ABOUTME: Command is a sealed union of every mutation the board actor accepts.
// ABOUTME: Commands carry intent only; the acting user is resolved when the command is sent.
package core

// Command represents a mutation intent for the board.
type Command interface {
	CommandType() string
	commandSeal()
}

// ApplyGestureCommand runs a drag gesture through the reorder engine.
// View defaults to the board's current view when empty.
type ApplyGestureCommand struct {
	Gesture Gesture `json:"gesture"`
	View    View    `json:"view,omitempty"`
}

func (c ApplyGestureCommand) CommandType() string { return "ApplyGesture" }
func (c ApplyGestureCommand) commandSeal()        {}

// CreateCardCommand adds a card to an active lane (the default lane when empty).
type CreateCardCommand struct {
	Name      string   `json:"name"`
	ProjectID string   `json:"projectId,omitempty"`
	Lane      string   `json:"lane,omitempty"`
	Labels    []string `json:"labels,omitempty"`
}

func (c CreateCardCommand) CommandType() string { return "CreateCard" }
func (c CreateCardCommand) commandSeal()        {}

// CardField names an editable scalar field of a card.
type CardField string

const (
	FieldName      CardField = "name"
	FieldProjectID CardField = "projectId"
	FieldLabels    CardField = "labels"
)

// UpdateCardFieldCommand edits one field. Labels uses the Labels slice;
// the other fields use Value.
type UpdateCardFieldCommand struct {
	CardID string    `json:"cardId"`
	Field  CardField `json:"field"`
	Value  string    `json:"value,omitempty"`
	Labels []string  `json:"labels,omitempty"`
}

func (c UpdateCardFieldCommand) CommandType() string { return "UpdateCardField" }
func (c UpdateCardFieldCommand) commandSeal()        {}

// AddMemberCommand adds a user to a card's members.
type AddMemberCommand struct {
	CardID string `json:"cardId"`
	Member User   `json:"member"`
}

func (c AddMemberCommand) CommandType() string { return "AddMember" }
func (c AddMemberCommand) commandSeal()        {}

// RemoveMemberCommand removes a user from a card's members.
type RemoveMemberCommand struct {
	CardID string `json:"cardId"`
	UserID string `json:"userId"`
}

func (c RemoveMemberCommand) CommandType() string { return "RemoveMember" }
func (c RemoveMemberCommand) commandSeal()        {}

// AddCommentCommand appends a comment authored by the acting user.
type AddCommentCommand struct {
	CardID string `json:"cardId"`
	Text   string `json:"text"`
}

func (c AddCommentCommand) CommandType() string { return "AddComment" }
func (c AddCommentCommand) commandSeal()        {}

// EditCommentCommand replaces a comment's text.
type EditCommentCommand struct {
	CardID    string `json:"cardId"`
	CommentID string `json:"commentId"`
	Text      string `json:"text"`
}

func (c EditCommentCommand) CommandType() string { return "EditComment" }
func (c EditCommentCommand) commandSeal()        {}

// RemoveCommentCommand deletes a comment.
type RemoveCommentCommand struct {
	CardID    string `json:"cardId"`
	CommentID string `json:"commentId"`
}

func (c RemoveCommentCommand) CommandType() string { return "RemoveComment" }
func (c RemoveCommentCommand) commandSeal()        {}

// AddAttachmentCommand records an attachment reference on a card.
type AddAttachmentCommand struct {
	CardID     string `json:"cardId"`
	Name       string `json:"name"`
	SizeBytes  int64  `json:"sizeBytes"`
	ContentRef string `json:"contentRef"`
}

func (c AddAttachmentCommand) CommandType() string { return "AddAttachment" }
func (c AddAttachmentCommand) commandSeal()        {}

// RemoveAttachmentCommand drops an attachment reference.
type RemoveAttachmentCommand struct {
	CardID       string `json:"cardId"`
	AttachmentID string `json:"attachmentId"`
}

func (c RemoveAttachmentCommand) CommandType() string { return "RemoveAttachment" }
func (c RemoveAttachmentCommand) commandSeal()        {}

// AddPendingItemCommand appends a sub-task.
type AddPendingItemCommand struct {
	CardID string `json:"cardId"`
	Text   string `json:"text"`
}

func (c AddPendingItemCommand) CommandType() string { return "AddPendingItem" }
func (c AddPendingItemCommand) commandSeal()        {}

// UpdatePendingItemCommand edits a sub-task's text and/or completion.
type UpdatePendingItemCommand struct {
	CardID    string  `json:"cardId"`
	ItemID    string  `json:"itemId"`
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

func (c UpdatePendingItemCommand) CommandType() string { return "UpdatePendingItem" }
func (c UpdatePendingItemCommand) commandSeal()        {}

// RemovePendingItemCommand deletes a sub-task.
type RemovePendingItemCommand struct {
	CardID string `json:"cardId"`
	ItemID string `json:"itemId"`
}

func (c RemovePendingItemCommand) CommandType() string { return "RemovePendingItem" }
func (c RemovePendingItemCommand) commandSeal()        {}

// FinalizeCardCommand moves an active card into a finalized lane.
type FinalizeCardCommand struct {
	CardID string `json:"cardId"`
	Lane   string `json:"lane"`
}

func (c FinalizeCardCommand) CommandType() string { return "FinalizeCard" }
func (c FinalizeCardCommand) commandSeal()        {}

// RestoreCardCommand moves a finalized card back to an active lane
// (the default lane when empty).
type RestoreCardCommand struct {
	CardID string `json:"cardId"`
	Lane   string `json:"lane,omitempty"`
}

func (c RestoreCardCommand) CommandType() string { return "RestoreCard" }
func (c RestoreCardCommand) commandSeal()        {}

// DeleteCardCommand permanently deletes a card from whichever board holds it.
type DeleteCardCommand struct {
	CardID string `json:"cardId"`
}

func (c DeleteCardCommand) CommandType() string { return "DeleteCard" }
func (c DeleteCardCommand) commandSeal()        {}

// SetViewCommand switches between the active and finalized boards.
type SetViewCommand struct {
	View View `json:"view"`
}

func (c SetViewCommand) CommandType() string { return "SetView" }
func (c SetViewCommand) commandSeal()        {}

// SetSearchQueryCommand changes the search filter.
type SetSearchQueryCommand struct {
	Query string `json:"query"`
}

func (c SetSearchQueryCommand) CommandType() string { return "SetSearchQuery" }
func (c SetSearchQueryCommand) commandSeal()        {}

// ToggleCheckedCommand flips a card's transient selection flag.
type ToggleCheckedCommand struct {
	CardID string `json:"cardId"`
}

func (c ToggleCheckedCommand) CommandType() string { return "ToggleChecked" }
func (c ToggleCheckedCommand) commandSeal()        {}

// ReloadBoardCommand replaces both boards with freshly loaded data.
// View and search query are kept. BaseEventID is the LastEventID the data
// was read against; the reload is rejected with ErrStaleReload when the
// board has committed anything since.
type ReloadBoardCommand struct {
	Columns     BoardMap `json:"columns"`
	Order       []string `json:"order"`
	BaseEventID uint64   `json:"baseEventId"`
}

func (c ReloadBoardCommand) CommandType() string { return "ReloadBoard" }
func (c ReloadBoardCommand) commandSeal()        {}
