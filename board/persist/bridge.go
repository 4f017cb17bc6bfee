// ABOUTME: Bridge turns committed board effects into durable, retried Service writes.
// ABOUTME: Writes are journaled before dispatch, run FIFO per key, and stay visible until acknowledged.
package persist

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/2389-research/kanbansync/board/core"
)

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithJournal makes every intent durable before it is dispatched.
func WithJournal(j *Journal) BridgeOption {
	return func(b *Bridge) { b.journal = j }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) BridgeOption {
	return func(b *Bridge) { b.policy = p }
}

// WithAttemptTimeout bounds each Service call. Zero means no bound.
func WithAttemptTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.timeout = d }
}

// WithCompactEvery folds the journal after every n resolved intents. Zero
// leaves compaction to Recover.
func WithCompactEvery(n int) BridgeOption {
	return func(b *Bridge) { b.compactEvery = n }
}

// WithLogger sets the bridge logger.
func WithLogger(l zerolog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// Bridge is the asynchronous persistence layer between the board actor and a
// Service. It implements core.Persister. In-memory state is never rolled back
// when a write fails; the failure stays visible through Failed.
type Bridge struct {
	svc          Service
	journal      *Journal
	policy       RetryPolicy
	timeout      time.Duration
	compactEvery int
	logger       zerolog.Logger
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// jmu keeps state changes and their journal records in the same order.
	// Held around journal writes instead of mu so Enqueue never waits on
	// another intent's fsync. Lock order: jmu, then mu.
	jmu      sync.Mutex
	resolved int // since the last fold; guarded by jmu

	mu      sync.Mutex
	seq     uint64
	intents map[string]*Intent   // unresolved, by id
	queues  map[string][]*Intent // pending, FIFO per key
	active  map[string]bool      // keys with a running worker
	busy    int                  // queued + in flight
	idle    chan struct{}
	closed  bool
}

// NewBridge creates a bridge writing to svc. Call Recover to replay a
// journal left by a previous run, and Close to stop it.
func NewBridge(svc Service, opts ...BridgeOption) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		svc:          svc,
		policy:       DefaultRetryPolicy(),
		compactEvery: defaultCompactEvery,
		logger:       log.Logger,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		intents: make(map[string]*Intent),
		queues:  make(map[string][]*Intent),
		active:  make(map[string]bool),
		idle:    closedChan(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With().Str("component", "board.persist").Logger()
	return b
}

const defaultCompactEvery = 256

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Persist implements core.Persister.
func (b *Bridge) Persist(e core.Effect) {
	if _, err := b.Enqueue(e); err != nil {
		b.logger.Error().Str("action", "enqueue_failed").Str("effect", string(e.Kind)).Err(err).Send()
	}
}

// SaveCard queues an upsert of card.
func (b *Bridge) SaveCard(card core.Card) (*Intent, error) {
	return b.Enqueue(core.SaveCardEffect(card))
}

// DeleteCard queues a permanent delete.
func (b *Bridge) DeleteCard(id string) (*Intent, error) {
	return b.Enqueue(core.DeleteCardEffect(id))
}

// SaveLaneOrder queues a write of the active lane order.
func (b *Bridge) SaveLaneOrder(order []string) (*Intent, error) {
	return b.Enqueue(core.SaveLaneOrderEffect(order))
}

// SaveColumns queues a write of the given lanes.
func (b *Bridge) SaveColumns(columns core.BoardMap) (*Intent, error) {
	lanes := make([]string, 0, len(columns))
	for l := range columns {
		lanes = append(lanes, l)
	}
	return b.Enqueue(core.SaveColumnsEffect(columns, lanes...))
}

// Enqueue journals e and schedules it. It returns a copy of the new intent
// without waiting for the write.
func (b *Bridge) Enqueue(e core.Effect) (*Intent, error) {
	in := newIntent(e, b.now().UTC())

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBridgeClosed
	}
	b.seq++
	in.Seq = b.seq
	b.mu.Unlock()

	if b.journal != nil {
		if err := b.journal.append(journalRecord{Op: opEnqueue, IntentID: in.ID, Intent: in, At: in.CreatedAt}); err != nil {
			return nil, fmt.Errorf("journal intent: %w", err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBridgeClosed
	}
	b.intents[in.ID] = in
	b.schedule(in)
	cp := in.clone()
	return &cp, nil
}

// Recover replays unresolved intents from the journal. Pending intents are
// scheduled again; failed ones stay failed until Retry. The journal is then
// compacted to just those intents.
func (b *Bridge) Recover() (int, error) {
	if b.journal == nil {
		return 0, nil
	}
	live, err := b.journal.Replay()
	if err != nil {
		return 0, fmt.Errorf("replay journal: %w", err)
	}
	if err := b.journal.Compact(live); err != nil {
		return 0, fmt.Errorf("compact journal: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range live {
		in := live[i]
		if in.Seq > b.seq {
			b.seq = in.Seq
		}
		b.intents[in.ID] = &in
		if in.State != IntentFailed {
			b.schedule(&in)
		}
	}
	b.logger.Info().Str("action", "recover").Int("intents", len(live)).Send()
	return len(live), nil
}

// Retry re-queues a failed intent at the back of its key's queue.
func (b *Bridge) Retry(id string) error {
	b.jmu.Lock()
	defer b.jmu.Unlock()

	b.mu.Lock()
	in, ok := b.intents[id]
	if !ok {
		b.mu.Unlock()
		return ErrIntentNotFound
	}
	if in.State != IntentFailed {
		b.mu.Unlock()
		return ErrIntentNotFailed
	}
	if b.closed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	in.State = IntentPending
	in.UpdatedAt = b.now().UTC()
	b.schedule(in)
	at := in.UpdatedAt
	b.mu.Unlock()

	b.record(journalRecord{Op: opRetry, IntentID: id, At: at})
	return nil
}

// RetryAll re-queues every failed intent and returns how many were queued.
func (b *Bridge) RetryAll() int {
	n := 0
	for _, in := range b.Failed() {
		if b.Retry(in.ID) == nil {
			n++
		}
	}
	return n
}

// Pending returns every unresolved intent (pending, in flight, or failed),
// oldest first.
func (b *Bridge) Pending() []Intent {
	return b.list(func(*Intent) bool { return true })
}

// Failed returns the intents that exhausted their retries.
func (b *Bridge) Failed() []Intent {
	return b.list(func(in *Intent) bool { return in.State == IntentFailed })
}

func (b *Bridge) list(keep func(*Intent) bool) []Intent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Intent, 0, len(b.intents))
	for _, in := range b.intents {
		if keep(in) {
			out = append(out, in.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Wait blocks until no write is queued or in flight, or ctx is done.
func (b *Bridge) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		if b.busy == 0 {
			b.mu.Unlock()
			return nil
		}
		idle := b.idle
		b.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting writes, cancels in-flight retries, and waits for the
// workers to exit. Unfinished intents remain in the journal for Recover.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cancel()
	b.wg.Wait()
}

// schedule appends in to its key queue and starts a worker if none runs.
// Caller holds b.mu.
func (b *Bridge) schedule(in *Intent) {
	if b.busy == 0 {
		b.idle = make(chan struct{})
	}
	b.busy++
	b.queues[in.Key] = append(b.queues[in.Key], in)
	if b.active[in.Key] {
		return
	}
	b.active[in.Key] = true
	b.wg.Add(1)
	go b.drain(in.Key)
}

// done marks one unit of queued work finished. Caller holds b.mu.
func (b *Bridge) done() {
	b.busy--
	if b.busy == 0 {
		close(b.idle)
	}
}

func (b *Bridge) drain(key string) {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		q := b.queues[key]
		if len(q) == 0 || b.ctx.Err() != nil {
			// Work left behind on shutdown stays pending in the journal.
			for range q {
				b.done()
			}
			delete(b.queues, key)
			delete(b.active, key)
			b.mu.Unlock()
			return
		}
		in := q[0]
		b.queues[key] = q[1:]
		in.State = IntentInFlight
		effect := in.Effect
		b.mu.Unlock()

		err := b.execute(in, effect)
		b.finish(in, err)
	}
}

func (b *Bridge) execute(in *Intent, effect core.Effect) error {
	return Retry(b.ctx, b.policy, func() error {
		b.mu.Lock()
		in.Attempts++
		b.mu.Unlock()

		ctx := b.ctx
		if b.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(b.ctx, b.timeout)
			defer cancel()
		}
		return dispatch(ctx, b.svc, effect)
	})
}

func (b *Bridge) finish(in *Intent, err error) {
	now := b.now().UTC()
	var recs []journalRecord

	b.jmu.Lock()
	b.mu.Lock()
	in.UpdatedAt = now
	switch {
	case err == nil:
		in.State = IntentResolved
		delete(b.intents, in.ID)
		recs = append(recs, journalRecord{Op: opResolve, IntentID: in.ID, At: now})

		for id, older := range b.intents {
			if older.State == IntentFailed && !older.CreatedAt.After(in.CreatedAt) && supersedes(in, older) {
				delete(b.intents, id)
				recs = append(recs, journalRecord{Op: opResolve, IntentID: id, At: now})
				b.logger.Info().Str("action", "superseded").Str("intent_id", id).Str("key", in.Key).Send()
			}
		}
		b.logger.Debug().Str("action", "write_ok").Str("intent_id", in.ID).Str("key", in.Key).
			Int("attempts", in.Attempts).Send()
	case b.ctx.Err() != nil:
		in.State = IntentPending
	default:
		in.State = IntentFailed
		in.LastError = err.Error()
		recs = append(recs, journalRecord{Op: opFail, IntentID: in.ID, Error: in.LastError, At: now})
		b.logger.Error().Str("action", "write_failed").Str("intent_id", in.ID).Str("key", in.Key).
			Str("effect", string(in.Effect.Kind)).Int("attempts", in.Attempts).Err(err).Send()
	}
	b.mu.Unlock()

	for _, rec := range recs {
		b.record(rec)
		if rec.Op == opResolve {
			b.resolved++
		}
	}
	b.foldIfDue()
	b.jmu.Unlock()

	b.mu.Lock()
	b.done()
	b.mu.Unlock()
}

// foldIfDue compacts the journal once enough intents have resolved since
// the last fold. Caller holds b.jmu.
func (b *Bridge) foldIfDue() {
	if b.journal == nil || b.compactEvery <= 0 || b.resolved < b.compactEvery {
		return
	}
	b.resolved = 0
	n, err := b.journal.Fold()
	if err != nil {
		b.logger.Error().Str("action", "journal_fold").Err(err).Send()
		return
	}
	b.logger.Debug().Str("action", "journal_fold").Int("intents", n).Send()
}

// record appends rec to the journal, if any. Failures are logged only; the
// next Recover sees the intent as still unresolved and writes it again.
func (b *Bridge) record(rec journalRecord) {
	if b.journal == nil {
		return
	}
	if err := b.journal.append(rec); err != nil {
		b.logger.Error().Str("action", "journal_append").Str("op", string(rec.Op)).Err(err).Send()
	}
}
