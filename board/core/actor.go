// ABOUTME: Goroutine-based actor that serializes board commands and broadcasts events.
// ABOUTME: BoardHandle is the only writer of BoardState; effects are handed to a Persister after commit.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Persister receives the effects of each committed command. Persist must not
// block the actor; implementations queue the write and return.
type Persister interface {
	Persist(effect Effect)
}

// BoardOption configures a BoardHandle at spawn time.
type BoardOption func(*BoardHandle)

// WithPersister routes committed effects to p.
func WithPersister(p Persister) BoardOption {
	return func(h *BoardHandle) { h.persister = p }
}

// WithDirectory sets how the acting user is resolved for each command.
func WithDirectory(d UserDirectory) BoardOption {
	return func(h *BoardHandle) { h.directory = d }
}

// WithLogger sets the actor's logger.
func WithLogger(l zerolog.Logger) BoardOption {
	return func(h *BoardHandle) { h.logger = l }
}

// WithClock overrides the time source used for activity and event timestamps.
func WithClock(now func() time.Time) BoardOption {
	return func(h *BoardHandle) { h.now = now }
}

// SystemUser acts when no directory is configured.
var SystemUser = User{ID: "system", Name: "system"}

// commandMessage pairs a Command with the resolved actor and a reply channel.
type commandMessage struct {
	cmd   Command
	actor User
	reply chan commandResult
}

type commandResult struct {
	events []Event
	err    error
}

// BoardHandle is the public interface for interacting with a board actor.
// It is safe for concurrent use.
type BoardHandle struct {
	cmdCh       chan commandMessage
	done        chan struct{}
	closeOnce   sync.Once
	broadcaster *EventBroadcaster
	state       *BoardState
	mu          sync.RWMutex // protects state

	persister Persister
	directory UserDirectory
	logger    zerolog.Logger
	now       func() time.Time
}

// SpawnBoard starts the actor goroutine for initial and returns its handle.
func SpawnBoard(initial *BoardState, opts ...BoardOption) *BoardHandle {
	h := &BoardHandle{
		cmdCh:       make(chan commandMessage, 64),
		done:        make(chan struct{}),
		broadcaster: NewEventBroadcaster(),
		state:       initial,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With().Str("component", "board.actor").Logger()

	a := &boardActor{handle: h, nextEventID: initial.LastEventID + 1}
	go a.run()
	return h
}

// SendCommand resolves the acting user, sends cmd to the actor, and waits for
// the committed events. It returns ErrActorBusy when the command buffer is
// full and ErrActorClosed after Close.
func (h *BoardHandle) SendCommand(ctx context.Context, cmd Command) ([]Event, error) {
	actor := SystemUser
	if h.directory != nil {
		u, err := h.directory.CurrentUser(ctx)
		if err != nil {
			return nil, err
		}
		actor = u
	}

	select {
	case <-h.done:
		return nil, ErrActorClosed
	default:
	}

	reply := make(chan commandResult, 1)
	select {
	case h.cmdCh <- commandMessage{cmd: cmd, actor: actor, reply: reply}:
	default:
		return nil, ErrActorBusy
	}

	select {
	case res := <-reply:
		return res.events, res.err
	case <-h.done:
		return nil, ErrActorClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe returns a channel that receives broadcast events.
func (h *BoardHandle) Subscribe() chan Event {
	return h.broadcaster.Subscribe()
}

// Unsubscribe removes a channel from the broadcast subscriber list and closes it.
func (h *BoardHandle) Unsubscribe(ch chan Event) {
	h.broadcaster.Unsubscribe(ch)
}

// ReadState calls fn with a read lock on the current state.
// fn must not modify the state or hold references after returning.
func (h *BoardHandle) ReadState(fn func(s *BoardState)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn(h.state)
}

// Snapshot returns a deep copy of the mirrored projection.
func (h *BoardHandle) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Snapshot()
}

// Close stops the actor and closes every subscriber channel. Commands
// already queued are dropped.
func (h *BoardHandle) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.broadcaster.closeAll()
	})
}

// boardActor is the internal goroutine that processes commands sequentially.
type boardActor struct {
	handle      *BoardHandle
	nextEventID uint64
}

func (a *boardActor) run() {
	for {
		select {
		case msg := <-a.handle.cmdCh:
			msg.reply <- a.process(msg)
		case <-a.handle.done:
			return
		}
	}
}

func (a *boardActor) process(msg commandMessage) commandResult {
	h := a.handle
	now := h.now().UTC()

	// Only this goroutine replaces h.state, so reading it here without the
	// lock is safe. Apply rebuilds every lane it touches.
	next := *h.state
	events, effects, err := next.Apply(msg.cmd, msg.actor, now)
	if err != nil {
		h.logger.Debug().Str("action", "command_rejected").Str("command", msg.cmd.CommandType()).
			Err(err).Send()
		return commandResult{err: err}
	}
	if len(events) == 0 {
		return commandResult{}
	}

	for i := range events {
		events[i].EventID = a.nextEventID
		a.nextEventID++
	}
	next.LastEventID = events[len(events)-1].EventID

	// Writes are queued before the new state is readable, so anyone who sees
	// an event id also sees its writes as pending or landed.
	if h.persister != nil {
		for _, eff := range effects {
			h.persister.Persist(eff)
		}
	}

	h.mu.Lock()
	h.state = &next
	h.mu.Unlock()

	for _, ev := range events {
		h.broadcaster.Broadcast(ev)
	}

	h.logger.Debug().Str("action", "command_applied").Str("command", msg.cmd.CommandType()).
		Str("actor_id", msg.actor.ID).Int("events", len(events)).Int("effects", len(effects)).Send()
	return commandResult{events: events}
}
