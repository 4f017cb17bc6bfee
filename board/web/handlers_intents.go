// ABOUTME: Pending-sync handlers: list unresolved persistence intents and retry failed ones.
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/2389-research/kanbansync/board/persist"
)

// IntentsResponse lists unresolved intents, oldest first.
type IntentsResponse struct {
	Intents []persist.Intent `json:"intents"`
	Failed  int              `json:"failed"`
}

func (s *Server) handleListIntents(w http.ResponseWriter, r *http.Request) {
	if s.intents == nil {
		writeJSON(w, http.StatusOK, IntentsResponse{Intents: []persist.Intent{}})
		return
	}
	all := s.intents.Pending()
	if r.URL.Query().Get("state") == string(persist.IntentFailed) {
		all = s.intents.Failed()
	}
	failed := 0
	for _, in := range all {
		if in.State == persist.IntentFailed {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, IntentsResponse{Intents: all, Failed: failed})
}

func (s *Server) handleRetryIntent(w http.ResponseWriter, r *http.Request) {
	if s.intents == nil {
		writeCommandError(w, persist.ErrIntentNotFound)
		return
	}
	id := chi.URLParam(r, "intentID")
	if err := s.intents.Retry(id); err != nil {
		writeCommandError(w, err)
		return
	}
	s.logger.Info().Str("action", "intent_retry").Str("intent_id", id).Send()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleRetryAll(w http.ResponseWriter, _ *http.Request) {
	n := 0
	if s.intents != nil {
		n = s.intents.RetryAll()
	}
	s.logger.Info().Str("action", "intent_retry_all").Int("queued", n).Send()
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": n})
}
