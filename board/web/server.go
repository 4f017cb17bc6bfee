// ABOUTME: HTTP server for one board: chi router, middleware stack, and shared handler dependencies.
// ABOUTME: Reads come from the secondary replica; every mutation goes through the board actor.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/2389-research/kanbansync/board/core"
	"github.com/2389-research/kanbansync/board/persist"
	"github.com/2389-research/kanbansync/board/replica"
	"github.com/2389-research/kanbansync/board/store"
)

// IntentQueue is the pending-sync view of the persistence bridge.
type IntentQueue interface {
	Pending() []persist.Intent
	Failed() []persist.Intent
	Retry(id string) error
	RetryAll() int
}

// ActivityFeed lists recent activity across the board, deleted cards included.
type ActivityFeed interface {
	RecentActivity(ctx context.Context, limit int) ([]store.ActivityRow, error)
}

// Config wires the server to a running board.
type Config struct {
	Name      string
	Board     *core.BoardHandle
	Replica   replica.Reader
	Intents   IntentQueue
	Activity  ActivityFeed // optional
	AuthToken string
	Logger    *zerolog.Logger
}

// Server serves the board API.
type Server struct {
	name     string
	board    *core.BoardHandle
	replica  replica.Reader
	intents  IntentQueue
	activity ActivityFeed
	token    string
	logger   zerolog.Logger
	router   chi.Router
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	s := &Server{
		name:     cfg.Name,
		board:    cfg.Board,
		replica:  cfg.Replica,
		intents:  cfg.Intents,
		activity: cfg.Activity,
		token:    cfg.AuthToken,
		logger:   logger.With().Str("component", "board.web").Logger(),
	}
	s.router = s.buildRouter(logger)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter(logger zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(AuthMiddleware(s.token))
	r.Use(identify)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/board", s.handleBoard)
		r.Get("/events", s.handleEventStream)
		r.Post("/gestures", s.handleGesture)
		r.Put("/view", s.handleSetView)
		r.Put("/search", s.handleSetSearch)
		r.Get("/activity", s.handleActivity)
		r.Get("/export/{format}", s.handleExport)

		r.Route("/cards", func(r chi.Router) {
			r.Post("/", s.handleCreateCard)
			r.Route("/{cardID}", func(r chi.Router) {
				r.Get("/", s.handleGetCard)
				r.Patch("/", s.handleUpdateCard)
				r.Delete("/", s.handleDeleteCard)
				r.Post("/finalize", s.handleFinalize)
				r.Post("/restore", s.handleRestore)
				r.Post("/toggle", s.handleToggle)

				r.Post("/members", s.handleAddMember)
				r.Delete("/members/{userID}", s.handleRemoveMember)
				r.Post("/comments", s.handleAddComment)
				r.Patch("/comments/{commentID}", s.handleEditComment)
				r.Delete("/comments/{commentID}", s.handleRemoveComment)
				r.Post("/attachments", s.handleAddAttachment)
				r.Delete("/attachments/{attachmentID}", s.handleRemoveAttachment)
				r.Post("/items", s.handleAddItem)
				r.Patch("/items/{itemID}", s.handleUpdateItem)
				r.Delete("/items/{itemID}", s.handleRemoveItem)
			})
		})

		r.Route("/intents", func(r chi.Router) {
			r.Get("/", s.handleListIntents)
			r.Post("/retry", s.handleRetryAll)
			r.Post("/{intentID}/retry", s.handleRetryIntent)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// send runs cmd on the board actor and writes the committed events.
func (s *Server) send(w http.ResponseWriter, r *http.Request, status int, cmd core.Command) {
	events, err := s.board.SendCommand(r.Context(), cmd)
	if err != nil {
		s.logger.Debug().Str("action", "command_rejected").Str("command", cmd.CommandType()).Err(err).Send()
		writeCommandError(w, err)
		return
	}
	if events == nil {
		events = []core.Event{}
	}
	writeJSON(w, status, map[string]any{"events": events})
}
