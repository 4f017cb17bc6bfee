// ABOUTME: Card handlers: create, read, field edits, sub-entities, finalize, restore, delete, and selection.
// ABOUTME: Each handler decodes a small request body and sends exactly one command to the board actor.
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/2389-research/kanbansync/board/core"
)

func cardID(r *http.Request) string {
	return chi.URLParam(r, "cardID")
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req core.CreateCardCommand
	if !decodeBody(w, r, &req) {
		return
	}
	s.send(w, r, http.StatusCreated, req)
}

// CardResponse is a single card with where it currently sits.
type CardResponse struct {
	Card core.Card `json:"card"`
	View core.View `json:"view"`
	Lane string    `json:"lane"`
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	id := cardID(r)
	var (
		resp  CardResponse
		found bool
	)
	s.board.ReadState(func(st *core.BoardState) {
		view, lane, _, ok := st.Locate(id)
		if !ok {
			return
		}
		card, _ := st.Card(id)
		resp = CardResponse{Card: card.Clone(), View: view, Lane: lane}
		found = true
	})
	if !found {
		writeCommandError(w, &core.CardNotFoundError{CardID: id})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type updateCardRequest struct {
	Field  core.CardField `json:"field"`
	Value  string         `json:"value"`
	Labels []string       `json:"labels"`
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var req updateCardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.send(w, r, http.StatusOK, core.UpdateCardFieldCommand{
		CardID: cardID(r),
		Field:  req.Field,
		Value:  req.Value,
		Labels: req.Labels,
	})
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, http.StatusOK, core.DeleteCardCommand{CardID: cardID(r)})
}

type laneRequest struct {
	Lane string `json:"lane"`
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req laneRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.send(w, r, http.StatusOK, core.FinalizeCardCommand{CardID: cardID(r), Lane: req.Lane})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req laneRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	s.send(w, r, http.StatusOK, core.RestoreCardCommand{CardID: cardID(r), Lane: req.Lane})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, http.StatusOK, core.ToggleCheckedCommand{CardID: cardID(r)})
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var member core.User
	if !decodeBody(w, r, &member) {
		return
	}
	s.send(w, r, http.StatusOK, core.AddMemberCommand{CardID: cardID(r), Member: member})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, http.StatusOK, core.RemoveMemberCommand{CardID: cardID(r), UserID: chi.URLParam(r, "userID")})
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.send(w, r, http.StatusOK, core.AddCommentCommand{CardID: cardID(r), Text: req.Text})
}

func (s *Server) handleEditComment(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.send(w, r, http.StatusOK, core.EditCommentCommand{
		CardID:    cardID(r),
		CommentID: chi.URLParam(r, "commentID"),
		Text:      req.Text,
	})
}

func (s *Server) handleRemoveComment(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, http.StatusOK, core.RemoveCommentCommand{CardID: cardID(r), CommentID: chi.URLParam(r, "commentID")})
}

type attachmentRequest struct {
	Name       string `json:"name"`
	SizeBytes  int64  `json:"sizeBytes"`
	ContentRef string `json:"contentRef"`
}

func (s *Server) handleAddAttachment(w http.ResponseWriter, r *http.Request) {
	var req attachmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.send(w, r, http.StatusOK, core.AddAttachmentCommand{
		CardID:     cardID(r),
		Name:       req.Name,
		SizeBytes:  req.SizeBytes,
		ContentRef: req.ContentRef,
	})
}

func (s *Server) handleRemoveAttachment(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, http.StatusOK, core.RemoveAttachmentCommand{
		CardID:       cardID(r),
		AttachmentID: chi.URLParam(r, "attachmentID"),
	})
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.send(w, r, http.StatusOK, core.AddPendingItemCommand{CardID: cardID(r), Text: req.Text})
}

type updateItemRequest struct {
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.send(w, r, http.StatusOK, core.UpdatePendingItemCommand{
		CardID:    cardID(r),
		ItemID:    chi.URLParam(r, "itemID"),
		Text:      req.Text,
		Completed: req.Completed,
	})
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, http.StatusOK, core.RemovePendingItemCommand{CardID: cardID(r), ItemID: chi.URLParam(r, "itemID")})
}
