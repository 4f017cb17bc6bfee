// ABOUTME: End-to-end tests for App: HTTP writes reaching SQLite, restart recovery, snapshots, and Redis fan-out.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/kanbansync/board/core"
	"github.com/2389-research/kanbansync/board/store"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Home:          t.TempDir(),
		Board:         "demo",
		Bind:          "127.0.0.1:0",
		DefaultUser:   "local",
		Backend:       BackendSQLite,
		ActiveLanes:   []string{"Todo", "Doing"},
		ReservedLanes: core.DefaultReservedLanes(),
		SnapshotEvery: 1,
		SnapshotKeep:  2,
		Redis:         RedisConfig{Namespace: "demo"},
		Retry: RetryConfig{
			MaxRetries:     2,
			BaseDelay:      time.Millisecond,
			MaxDelay:       5 * time.Millisecond,
			AttemptTimeout: time.Second,
		},
	}
}

func startApp(t *testing.T, cfg *Config) *App {
	t.Helper()
	app, err := NewApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background()))
	return app
}

func createCard(t *testing.T, app *App, name string) string {
	t.Helper()
	body, _ := json.Marshal(core.CreateCardCommand{Name: name})
	req := httptest.NewRequest(http.MethodPost, "/api/cards", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Events []core.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	return resp.Events[0].CardID
}

func addComment(t *testing.T, app *App, cardID, text string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"text": text})
	req := httptest.NewRequest(http.MethodPost, "/api/cards/"+cardID+"/comments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func waitFlushed(t *testing.T, app *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Bridge().Wait(ctx))
}

func TestApp_WritesSurviveRestart(t *testing.T) {
	cfg := testConfig(t)
	app := startApp(t, cfg)

	id := createCard(t, app, "persist me")
	addComment(t, app, id, "first")
	waitFlushed(t, app)
	assert.Empty(t, app.Bridge().Pending())
	require.NoError(t, app.Close())

	reopened := startApp(t, cfg)
	defer reopened.Close()

	card, ok := core.Card{}, false
	reopened.Board().ReadState(func(s *core.BoardState) {
		card, ok = s.Card(id)
		assert.Equal(t, uint64(2), s.LastEventID)
	})
	require.True(t, ok)
	assert.Equal(t, "persist me", card.Name)
	assert.Equal(t, "Todo", card.Status)
	require.NotEmpty(t, card.Activity)
	assert.Equal(t, "local", card.Activity[0].ActorID)
	require.Len(t, card.Comments, 1)
	assert.Equal(t, "first", card.Comments[0].Text)
}

func TestApp_SnapshotsArePruned(t *testing.T) {
	cfg := testConfig(t)
	app := startApp(t, cfg)
	defer app.Close()

	for _, name := range []string{"a", "b", "c", "d"} {
		createCard(t, app, name)
	}

	dir := app.Dir().SnapshotsDir()
	assert.Eventually(t, func() bool {
		snap, err := store.LoadLatestSnapshot(dir)
		return err == nil && snap != nil && snap.LastEventID == 4
	}, 5*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(dir)
		return err == nil && len(entries) <= cfg.SnapshotKeep
	}, 5*time.Second, 10*time.Millisecond)
}

func TestApp_WriteExports(t *testing.T) {
	cfg := testConfig(t)
	app := startApp(t, cfg)
	defer app.Close()

	createCard(t, app, "exported card")
	assert.Eventually(t, func() bool {
		return app.Replica().Snapshot().Columns.Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	dir, err := app.WriteExports()
	require.NoError(t, err)
	md, err := os.ReadFile(filepath.Join(dir, "board.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "exported card")
	assert.FileExists(t, filepath.Join(dir, "board.yaml"))
	assert.FileExists(t, filepath.Join(dir, "board.html"))
}

func TestApp_ActivityFeedOnSQLite(t *testing.T) {
	cfg := testConfig(t)
	app := startApp(t, cfg)
	defer app.Close()

	id := createCard(t, app, "tracked")
	addComment(t, app, id, "noted")
	waitFlushed(t, app)

	req := httptest.NewRequest(http.MethodGet, "/api/activity", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []store.ActivityRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.NotEmpty(t, rows)
}

func TestApp_RedisPeersReloadOnRemoteChange(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	cfgA := testConfig(t)
	cfgA.Backend = BackendRedis
	cfgA.Redis.Addr = mr.Addr()
	cfgB := testConfig(t)
	cfgB.Backend = BackendRedis
	cfgB.Redis.Addr = mr.Addr()

	a := startApp(t, cfgA)
	defer a.Close()
	b := startApp(t, cfgB)
	defer b.Close()

	id := createCard(t, a, "shared card")
	waitFlushed(t, a)

	assert.Eventually(t, func() bool {
		found := false
		b.Board().ReadState(func(s *core.BoardState) {
			_, found = s.Card(id)
		})
		return found
	}, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		return b.Replica().Snapshot().Columns.Len() == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestApp_ReloadKeepsUnacknowledgedChanges(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	cfg := testConfig(t)
	cfg.Backend = BackendRedis
	cfg.Redis.Addr = mr.Addr()
	app := startApp(t, cfg)
	defer app.Close()

	mr.SetError("ERR store offline")
	id := createCard(t, app, "offline card")
	assert.Eventually(t, func() bool {
		return len(app.Bridge().Failed()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	mr.SetError("")

	require.NoError(t, app.Reload(context.Background()))

	found := false
	app.Board().ReadState(func(s *core.BoardState) {
		_, found = s.Card(id)
	})
	assert.True(t, found, "reload dropped a change the store has not acknowledged")
	assert.Len(t, app.Bridge().Failed(), 2)
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	app := startApp(t, testConfig(t))
	require.NoError(t, app.Close())
	require.NoError(t, app.Close())
}
