// ABOUTME: Board-level handlers: filtered board read, gestures, view and search changes, exports, and SSE.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389-research/kanbansync/board/core"
	"github.com/2389-research/kanbansync/board/export"
)

// LaneView is one lane of the board response.
type LaneView struct {
	Name      string      `json:"name"`
	Finalized bool        `json:"finalized"`
	Cards     []core.Card `json:"cards"`
}

// BoardResponse is the board as a consumer sees it: the current view's
// lanes, already filtered by the search query.
type BoardResponse struct {
	Name         string     `json:"name"`
	View         core.View  `json:"view"`
	SearchQuery  string     `json:"searchQuery"`
	DisplayOrder []string   `json:"displayOrder"`
	Lanes        []LaneView `json:"lanes"`
	Selected     []string   `json:"selected"`
	Version      uint64     `json:"version"`
	PendingSync  int        `json:"pendingSync"`
	FailedSync   int        `json:"failedSync"`
}

func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	snap := s.replica.Snapshot()

	columns, order, finalized := snap.Columns, snap.Order, false
	if snap.CurrentView == core.ViewFinalized {
		columns, order, finalized = snap.FinalizedColumns, snap.FinalizedOrder, true
	}
	filtered := core.FilterBoard(columns, snap.SearchQuery)

	resp := BoardResponse{
		Name:         s.name,
		View:         snap.CurrentView,
		SearchQuery:  snap.SearchQuery,
		DisplayOrder: append(append([]string{}, snap.Order...), snap.FinalizedOrder...),
		Lanes:        make([]LaneView, 0, len(order)),
		Selected:     []string{},
		Version:      s.replica.Version(),
	}
	for _, lane := range order {
		cards := filtered[lane]
		if cards == nil {
			cards = []core.Card{}
		}
		resp.Lanes = append(resp.Lanes, LaneView{Name: lane, Finalized: finalized, Cards: cards})
	}

	s.board.ReadState(func(st *core.BoardState) {
		for _, b := range []core.Board{st.Active, st.Finalized} {
			for _, lane := range b.Order {
				for _, c := range b.Columns[lane] {
					if c.Checked {
						resp.Selected = append(resp.Selected, c.ID)
					}
				}
			}
		}
	})

	if s.intents != nil {
		resp.PendingSync = len(s.intents.Pending())
		resp.FailedSync = len(s.intents.Failed())
	}
	writeJSON(w, http.StatusOK, resp)
}

type gestureRequest struct {
	core.Gesture
	View core.View `json:"view,omitempty"`
}

func (s *Server) handleGesture(w http.ResponseWriter, r *http.Request) {
	var req gestureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.send(w, r, http.StatusOK, core.ApplyGestureCommand{Gesture: req.Gesture, View: req.View})
}

func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	var req core.SetViewCommand
	if !decodeBody(w, r, &req) {
		return
	}
	s.send(w, r, http.StatusOK, req)
}

func (s *Server) handleSetSearch(w http.ResponseWriter, r *http.Request) {
	var req core.SetSearchQueryCommand
	if !decodeBody(w, r, &req) {
		return
	}
	s.send(w, r, http.StatusOK, req)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		writeError(w, http.StatusNotFound, "activity feed not available for this backend")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	rows, err := s.activity.RecentActivity(r.Context(), limit)
	if err != nil {
		s.logger.Error().Str("action", "activity_query").Err(err).Send()
		writeError(w, http.StatusInternalServerError, "activity query failed")
		return
	}
	if rows == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap := s.replica.Snapshot()
	switch chi.URLParam(r, "format") {
	case "yaml":
		out, err := export.ExportYAML(s.name, snap)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(out))
	case "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(export.ExportMarkdown(s.name, snap)))
	case "html":
		out, err := export.ExportHTML(s.name, snap)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(out))
	default:
		writeError(w, http.StatusNotFound, "unknown export format")
	}
}

// sseHeartbeatInterval is how often the SSE handler sends keep-alive comments.
const sseHeartbeatInterval = 15 * time.Second

// handleEventStream streams committed board events as text/event-stream.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch := s.board.Subscribe()
	defer s.board.Unsubscribe(ch)
	ctx := r.Context()

	_, _ = fmt.Fprint(w, ":ok\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.EventID, event.Kind, data)
			flusher.Flush()
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ":heartbeat\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
