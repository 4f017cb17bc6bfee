// ABOUTME: Tests for the persistence bridge: FIFO per key, retries, failure visibility, and journal recovery.
// ABOUTME: Uses an in-memory fake Service whose failures can be scripted per call.
package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/kanbansync/board/core"
)

type fakeService struct {
	mu        sync.Mutex
	failures  int
	permanent bool
	delay     time.Duration
	cards     map[string]core.Card
	deleted   []string
	order     []string
	columns   core.BoardMap
	calls     int
	saveNames []string
}

func newFakeService() *fakeService {
	return &fakeService{cards: make(map[string]core.Card), columns: core.BoardMap{}}
}

func (f *fakeService) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

func (f *fakeService) attempt(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	delay := f.delay
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	permanent := f.permanent
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		if permanent {
			return &PermanentError{Err: errors.New("rejected")}
		}
		return errors.New("store unavailable")
	}
	return nil
}

func (f *fakeService) SaveCard(ctx context.Context, card core.Card) error {
	if err := f.attempt(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[card.ID] = card
	f.saveNames = append(f.saveNames, card.Name)
	return nil
}

func (f *fakeService) DeleteCard(ctx context.Context, id string) error {
	if err := f.attempt(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cards, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeService) SaveLaneOrder(ctx context.Context, order []string) error {
	if err := f.attempt(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = order
	return nil
}

func (f *fakeService) SaveColumns(ctx context.Context, columns core.BoardMap) error {
	if err := f.attempt(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for lane, cards := range columns {
		f.columns[lane] = cards
	}
	return nil
}

func (f *fakeService) LoadBoard(context.Context) (LoadedBoard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return LoadedBoard{Columns: f.columns.Clone(), BoardOrder: append([]string{}, f.order...)}, nil
}

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiplier: 2}
}

func waitIdle(t *testing.T, b *Bridge) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Wait(ctx))
}

func card(id, name string) core.Card {
	c := core.NewCard(name, "")
	c.ID = id
	return c
}

func TestBridge_WritesAndResolves(t *testing.T) {
	svc := newFakeService()
	b := NewBridge(svc, WithRetryPolicy(fastPolicy(2)))
	defer b.Close()

	in, err := b.SaveCard(card("c1", "one"))
	require.NoError(t, err)
	assert.Equal(t, "card:c1", in.Key)
	assert.Equal(t, IntentPending, in.State)

	_, err = b.SaveLaneOrder([]string{"B", "A"})
	require.NoError(t, err)
	_, err = b.DeleteCard("c0")
	require.NoError(t, err)

	waitIdle(t, b)
	assert.Empty(t, b.Pending())
	assert.Equal(t, "one", svc.cards["c1"].Name)
	assert.Equal(t, []string{"B", "A"}, svc.order)
	assert.Equal(t, []string{"c0"}, svc.deleted)
}

func TestBridge_SameKeyWritesLandInOrder(t *testing.T) {
	svc := newFakeService()
	svc.delay = 2 * time.Millisecond
	b := NewBridge(svc, WithRetryPolicy(fastPolicy(0)))
	defer b.Close()

	for _, name := range []string{"v1", "v2", "v3", "v4", "v5"} {
		_, err := b.SaveCard(card("c1", name))
		require.NoError(t, err)
	}
	waitIdle(t, b)

	assert.Equal(t, []string{"v1", "v2", "v3", "v4", "v5"}, svc.saveNames)
	assert.Equal(t, "v5", svc.cards["c1"].Name)
}

func TestBridge_TransientFailureIsRetried(t *testing.T) {
	svc := newFakeService()
	svc.failNext(2)
	b := NewBridge(svc, WithRetryPolicy(fastPolicy(3)))
	defer b.Close()

	_, err := b.SaveCard(card("c1", "one"))
	require.NoError(t, err)
	waitIdle(t, b)

	assert.Empty(t, b.Failed())
	assert.Equal(t, 3, svc.calls)
}

func TestBridge_ExhaustedRetriesStayVisibleUntilRetried(t *testing.T) {
	svc := newFakeService()
	svc.failNext(10)
	b := NewBridge(svc, WithRetryPolicy(fastPolicy(2)))
	defer b.Close()

	in, err := b.SaveCard(card("c1", "one"))
	require.NoError(t, err)
	waitIdle(t, b)

	failed := b.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, in.ID, failed[0].ID)
	assert.Equal(t, 3, failed[0].Attempts)
	assert.Contains(t, failed[0].LastError, "store unavailable")
	assert.Len(t, b.Pending(), 1)

	svc.failNext(0)
	require.NoError(t, b.Retry(in.ID))
	waitIdle(t, b)

	assert.Empty(t, b.Pending())
	assert.Equal(t, "one", svc.cards["c1"].Name)
}

func TestBridge_RetryErrors(t *testing.T) {
	svc := newFakeService()
	svc.delay = 50 * time.Millisecond
	b := NewBridge(svc, WithRetryPolicy(fastPolicy(0)))
	defer b.Close()

	assert.ErrorIs(t, b.Retry("missing"), ErrIntentNotFound)

	in, err := b.SaveCard(card("c1", "one"))
	require.NoError(t, err)
	assert.ErrorIs(t, b.Retry(in.ID), ErrIntentNotFailed)
	waitIdle(t, b)
}

func TestBridge_PermanentErrorIsNotRetried(t *testing.T) {
	svc := newFakeService()
	svc.permanent = true
	svc.failNext(1)
	b := NewBridge(svc, WithRetryPolicy(fastPolicy(5)))
	defer b.Close()

	_, err := b.DeleteCard("c1")
	require.NoError(t, err)
	waitIdle(t, b)

	require.Len(t, b.Failed(), 1)
	assert.Equal(t, 1, svc.calls)
}

func TestBridge_NewerWriteSupersedesFailedOne(t *testing.T) {
	svc := newFakeService()
	svc.failNext(1)
	b := NewBridge(svc, WithRetryPolicy(fastPolicy(0)))
	defer b.Close()

	_, err := b.SaveCard(card("c1", "stale"))
	require.NoError(t, err)
	waitIdle(t, b)
	require.Len(t, b.Failed(), 1)

	_, err = b.SaveCard(card("c1", "fresh"))
	require.NoError(t, err)
	waitIdle(t, b)

	assert.Empty(t, b.Pending())
	assert.Equal(t, "fresh", svc.cards["c1"].Name)
}

func TestBridge_ColumnsWriteSupersedesOnlyCoveredLanes(t *testing.T) {
	older := newIntent(core.SaveColumnsEffect(core.BoardMap{"A": {}, "B": {}}, "A", "B"), time.Now())
	narrow := newIntent(core.SaveColumnsEffect(core.BoardMap{"A": {}}, "A"), time.Now())
	wide := newIntent(core.SaveColumnsEffect(core.BoardMap{"A": {}, "B": {}, "C": {}}, "A", "B", "C"), time.Now())

	assert.False(t, supersedes(narrow, older))
	assert.True(t, supersedes(wide, older))
}

func TestBridge_PersisterInterface(t *testing.T) {
	var _ core.Persister = (*Bridge)(nil)

	svc := newFakeService()
	b := NewBridge(svc, WithRetryPolicy(fastPolicy(0)))
	defer b.Close()

	b.Persist(core.SaveColumnsEffect(core.BoardMap{"A": {card("c1", "one")}}, "A"))
	waitIdle(t, b)
	require.Len(t, svc.columns["A"], 1)
	assert.Equal(t, "c1", svc.columns["A"][0].ID)
}

func TestBridge_ClosedRejectsWrites(t *testing.T) {
	b := NewBridge(newFakeService())
	b.Close()

	_, err := b.SaveCard(card("c1", "x"))
	assert.ErrorIs(t, err, ErrBridgeClosed)
}

func TestBridge_RecoverReplaysUnresolvedIntents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.jsonl")

	j, err := OpenJournal(path)
	require.NoError(t, err)
	down := newFakeService()
	down.delay = time.Hour
	first := NewBridge(down, WithJournal(j), WithRetryPolicy(fastPolicy(0)))

	_, err = first.SaveCard(card("c1", "survivor"))
	require.NoError(t, err)
	_, err = first.SaveLaneOrder([]string{"X"})
	require.NoError(t, err)
	first.Close()
	require.NoError(t, j.Close())

	j2, err := OpenJournal(path)
	require.NoError(t, err)
	defer func() { _ = j2.Close() }()
	up := newFakeService()
	second := NewBridge(up, WithJournal(j2), WithRetryPolicy(fastPolicy(0)))
	defer second.Close()

	n, err := second.Recover()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	waitIdle(t, second)

	assert.Equal(t, "survivor", up.cards["c1"].Name)
	assert.Equal(t, []string{"X"}, up.order)

	live, err := j2.Replay()
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestBridge_RecoverKeepsFailedIntentsFailed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.jsonl")

	j, err := OpenJournal(path)
	require.NoError(t, err)
	svc := newFakeService()
	svc.failNext(1)
	first := NewBridge(svc, WithJournal(j), WithRetryPolicy(fastPolicy(0)))
	_, err = first.DeleteCard("c9")
	require.NoError(t, err)
	waitIdle(t, first)
	first.Close()
	require.NoError(t, j.Close())

	j2, err := OpenJournal(path)
	require.NoError(t, err)
	defer func() { _ = j2.Close() }()
	second := NewBridge(newFakeService(), WithJournal(j2))
	defer second.Close()

	n, err := second.Recover()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	failed := second.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, core.EffectDeleteCard, failed[0].Effect.Kind)
	assert.Equal(t, "c9", failed[0].Effect.CardID)
}

func TestBridge_EnqueueDoesNotWaitOnJournalRecords(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "intents.jsonl"))
	require.NoError(t, err)
	defer func() { _ = j.Close() }()
	svc := newFakeService()
	b := NewBridge(svc, WithJournal(j), WithRetryPolicy(fastPolicy(0)))
	defer b.Close()

	// Hold the record lock as a finishing worker would during its fsync.
	b.jmu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = b.SaveCard(card("c1", "one"))
		_, _ = b.SaveLaneOrder([]string{"A"})
		_ = b.Pending()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		b.jmu.Unlock()
		t.Fatal("enqueue blocked behind a journal record")
	}
	b.jmu.Unlock()

	waitIdle(t, b)
	assert.Empty(t, b.Pending())
	live, err := j.Replay()
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestBridge_JournalIsFoldedWhileRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.jsonl")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	svc := newFakeService()
	svc.permanent = true
	svc.failNext(1)
	b := NewBridge(svc, WithJournal(j), WithRetryPolicy(fastPolicy(0)), WithCompactEvery(2))
	defer b.Close()

	bad, err := b.DeleteCard("gone")
	require.NoError(t, err)
	waitIdle(t, b)
	require.Len(t, b.Failed(), 1)

	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		_, err := b.SaveCard(card(id, id))
		require.NoError(t, err)
	}
	waitIdle(t, b)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Count(string(data), "\n")
	// enqueue + fail for the failed intent is all a fold keeps.
	assert.LessOrEqual(t, lines, 2, "journal not folded:\n%s", data)

	live, err := j.Replay()
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, bad.ID, live[0].ID)
	assert.Equal(t, IntentFailed, live[0].State)
}

func TestBridge_PendingIsInEnqueueOrder(t *testing.T) {
	svc := newFakeService()
	svc.delay = time.Hour
	b := NewBridge(svc, WithRetryPolicy(fastPolicy(0)))
	b.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	defer b.Close()

	var want []string
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		in, err := b.SaveCard(card(id, id))
		require.NoError(t, err)
		want = append(want, in.ID)
	}

	var got []string
	for _, in := range b.Pending() {
		got = append(got, in.ID)
	}
	assert.Equal(t, want, got)
}
