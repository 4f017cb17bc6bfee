// ABOUTME: Tests for the intent journal and the retry policy.
package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/kanbansync/board/core"
)

func TestJournal_ReplayFoldsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.jsonl")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	now := time.Now().UTC()
	a := newIntent(core.DeleteCardEffect("a"), now)
	b := newIntent(core.DeleteCardEffect("b"), now)
	c := newIntent(core.SaveLaneOrderEffect([]string{"X"}), now)
	for _, in := range []*Intent{a, b, c} {
		require.NoError(t, j.append(journalRecord{Op: opEnqueue, IntentID: in.ID, Intent: in, At: now}))
	}
	require.NoError(t, j.append(journalRecord{Op: opResolve, IntentID: a.ID, At: now}))
	require.NoError(t, j.append(journalRecord{Op: opFail, IntentID: b.ID, Error: "boom", At: now}))

	live, err := j.Replay()
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, b.ID, live[0].ID)
	assert.Equal(t, IntentFailed, live[0].State)
	assert.Equal(t, "boom", live[0].LastError)
	assert.Equal(t, c.ID, live[1].ID)
	assert.Equal(t, IntentPending, live[1].State)
	assert.Equal(t, []string{"X"}, live[1].Effect.Order)
}

func TestJournal_TruncatedTailIsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.jsonl")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	in := newIntent(core.DeleteCardEffect("a"), time.Now().UTC())
	require.NoError(t, j.append(journalRecord{Op: opEnqueue, IntentID: in.ID, Intent: in, At: in.CreatedAt}))
	require.NoError(t, j.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"op":"resolve","intentId":"` + in.ID[:5])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	live, err := replayJournal(path)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestJournal_CorruptMiddleLineFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n{\"op\":\"resolve\",\"intentId\":\"x\"}\n"), 0o644))

	_, err := replayJournal(path)
	assert.Error(t, err)
}

func TestJournal_MissingFileIsEmpty(t *testing.T) {
	live, err := replayJournal(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestJournal_CompactKeepsAppending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.jsonl")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	now := time.Now().UTC()
	keep := newIntent(core.DeleteCardEffect("keep"), now)
	drop := newIntent(core.DeleteCardEffect("drop"), now)
	for _, in := range []*Intent{keep, drop} {
		require.NoError(t, j.append(journalRecord{Op: opEnqueue, IntentID: in.ID, Intent: in, At: now}))
	}
	require.NoError(t, j.Compact([]Intent{*keep}))

	later := newIntent(core.DeleteCardEffect("later"), now)
	require.NoError(t, j.append(journalRecord{Op: opEnqueue, IntentID: later.ID, Intent: later, At: now}))

	live, err := j.Replay()
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "keep", live[0].Effect.CardID)
	assert.Equal(t, "later", live[1].Effect.CardID)
}

func TestRetryPolicy_CalculateDelay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.CalculateDelay(0))
	assert.Equal(t, 400*time.Millisecond, p.CalculateDelay(2))
	assert.Equal(t, time.Second, p.CalculateDelay(10))

	p.Jitter = true
	for i := 0; i < 50; i++ {
		d := p.CalculateDelay(3)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 800*time.Millisecond)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2}

	assert.False(t, p.ShouldRetry(nil, 0))
	assert.True(t, p.ShouldRetry(errors.New("flaky"), 0))
	assert.False(t, p.ShouldRetry(errors.New("flaky"), 2))
	assert.False(t, p.ShouldRetry(&PermanentError{Err: errors.New("bad")}, 0))
	assert.False(t, p.ShouldRetry(context.Canceled, 0))
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxRetries: 100, BaseDelay: time.Hour, MaxDelay: time.Hour, BackoffMultiplier: 1}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, p, func() error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 1, calls)
}

func TestJournal_FoldKeepsOnlyUnresolved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.jsonl")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	now := time.Now().UTC()
	done := newIntent(core.DeleteCardEffect("a"), now)
	open := newIntent(core.DeleteCardEffect("b"), now)
	for _, in := range []*Intent{done, open} {
		require.NoError(t, j.append(journalRecord{Op: opEnqueue, IntentID: in.ID, Intent: in, At: now}))
	}
	require.NoError(t, j.append(journalRecord{Op: opResolve, IntentID: done.ID, At: now}))

	n, err := j.Fold()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Appends keep working on the rewritten file.
	require.NoError(t, j.append(journalRecord{Op: opResolve, IntentID: open.ID, At: now}))
	live, err := j.Replay()
	require.NoError(t, err)
	assert.Empty(t, live)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), done.ID)
}
