// ABOUTME: Tests for the SQLite persistence service: upserts, column rewrites, lane order, and activity index.
// ABOUTME: Each test opens a fresh database file under t.TempDir.
package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/kanbansync/board/core"
	"github.com/2389-research/kanbansync/board/persist"
	"github.com/2389-research/kanbansync/board/store"
)

func openSQLite(t *testing.T) (*store.SQLiteService, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "board.db")
	svc, err := store.OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, path
}

func laneCard(id, name, lane string) core.Card {
	c := core.NewCard(name, "proj-1")
	c.ID = id
	c.Status = lane
	return c
}

func cardIDs(cards []core.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

func TestSQLite_EmptyBoard(t *testing.T) {
	svc, _ := openSQLite(t)

	loaded, err := svc.LoadBoard(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded.Columns)
	assert.Empty(t, loaded.BoardOrder)
	require.NoError(t, svc.Ping(context.Background()))
}

func TestSQLite_SaveCardAppendsAndKeepsPosition(t *testing.T) {
	ctx := context.Background()
	svc, _ := openSQLite(t)

	require.NoError(t, svc.SaveCard(ctx, laneCard("c1", "one", "A")))
	require.NoError(t, svc.SaveCard(ctx, laneCard("c2", "two", "A")))
	require.NoError(t, svc.SaveCard(ctx, laneCard("c1", "one edited", "A")))

	loaded, err := svc.LoadBoard(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, cardIDs(loaded.Columns["A"]))
	assert.Equal(t, "one edited", loaded.Columns["A"][0].Name)
	assert.Equal(t, "proj-1", loaded.Columns["A"][0].ProjectID)
}

func TestSQLite_SaveCardMovesLane(t *testing.T) {
	ctx := context.Background()
	svc, _ := openSQLite(t)

	require.NoError(t, svc.SaveCard(ctx, laneCard("c1", "one", "A")))
	require.NoError(t, svc.SaveCard(ctx, laneCard("c2", "two", "B")))
	require.NoError(t, svc.SaveCard(ctx, laneCard("c1", "one", "B")))

	loaded, err := svc.LoadBoard(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Columns["A"])
	assert.Equal(t, []string{"c2", "c1"}, cardIDs(loaded.Columns["B"]))
}

func TestSQLite_SaveCardWithoutLaneIsPermanent(t *testing.T) {
	svc, _ := openSQLite(t)

	err := svc.SaveCard(context.Background(), laneCard("c1", "one", ""))
	var perm *persist.PermanentError
	assert.ErrorAs(t, err, &perm)
}

func TestSQLite_SaveColumnsRewritesPositions(t *testing.T) {
	ctx := context.Background()
	svc, _ := openSQLite(t)

	for _, c := range []core.Card{laneCard("c1", "one", "A"), laneCard("c2", "two", "A"), laneCard("c3", "three", "B")} {
		require.NoError(t, svc.SaveCard(ctx, c))
	}
	require.NoError(t, svc.SaveColumns(ctx, core.BoardMap{
		"A": {laneCard("c2", "two", "A")},
		"B": {laneCard("c3", "three", "B"), laneCard("c1", "one", "A")},
	}))

	loaded, err := svc.LoadBoard(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, cardIDs(loaded.Columns["A"]))
	assert.Equal(t, []string{"c3", "c1"}, cardIDs(loaded.Columns["B"]))
	assert.Equal(t, "B", loaded.Columns["B"][1].Status)
}

func TestSQLite_SaveColumnsNeverRecreatesDeletedCard(t *testing.T) {
	ctx := context.Background()
	svc, _ := openSQLite(t)

	c := laneCard("c1", "one", "A")
	require.NoError(t, svc.SaveCard(ctx, c))
	require.NoError(t, svc.DeleteCard(ctx, "c1"))
	require.NoError(t, svc.SaveColumns(ctx, core.BoardMap{"B": {c}}))

	loaded, err := svc.LoadBoard(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Columns["A"])
	assert.Empty(t, loaded.Columns["B"])
}

func TestSQLite_SaveColumnsKeepsNewerBody(t *testing.T) {
	ctx := context.Background()
	svc, _ := openSQLite(t)

	stale := laneCard("c1", "one", "A")
	fresh := stale.Clone()
	fresh.Comments = append(fresh.Comments, core.Comment{ID: "m1", Text: "keep me"})
	require.NoError(t, svc.SaveCard(ctx, fresh))
	require.NoError(t, svc.SaveColumns(ctx, core.BoardMap{"A": {stale}}))

	loaded, err := svc.LoadBoard(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Columns["A"], 1)
	require.Len(t, loaded.Columns["A"][0].Comments, 1)
	assert.Equal(t, "keep me", loaded.Columns["A"][0].Comments[0].Text)
}

func TestSQLite_LaneOrderAndEmptyLanes(t *testing.T) {
	ctx := context.Background()
	svc, _ := openSQLite(t)

	require.NoError(t, svc.SaveLaneOrder(ctx, []string{"Doing", "Todo"}))
	require.NoError(t, svc.SaveLaneOrder(ctx, []string{"Todo", "Doing", "Review"}))

	loaded, err := svc.LoadBoard(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Todo", "Doing", "Review"}, loaded.BoardOrder)
	assert.Contains(t, loaded.Columns, "Review")
	assert.Empty(t, loaded.Columns["Review"])
}

func TestSQLite_DeleteKeepsActivity(t *testing.T) {
	ctx := context.Background()
	svc, _ := openSQLite(t)

	c := laneCard("c1", "one", "A")
	actor := core.User{ID: "u1", Name: "Ana"}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c.Activity = append(c.Activity, core.NewActivity(core.ActivityFieldUpdated,
		map[string]string{"field": "name", "oldValue": "x", "newValue": "one"}, actor, at))
	require.NoError(t, svc.SaveCard(ctx, c))
	// A second save of the same entries does not duplicate them.
	require.NoError(t, svc.SaveCard(ctx, c))
	require.NoError(t, svc.DeleteCard(ctx, "c1"))

	loaded, err := svc.LoadBoard(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Columns["A"])

	rows, err := svc.RecentActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c1", rows[0].CardID)
	assert.Equal(t, core.ActivityFieldUpdated, rows[0].Entry.Type)
	assert.Equal(t, "Ana", rows[0].Entry.ActorName)
	assert.Equal(t, "one", rows[0].Entry.Payload["newValue"])
	assert.True(t, at.Equal(rows[0].Entry.Timestamp))
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	svc, path := openSQLite(t)
	require.NoError(t, svc.SaveCard(ctx, laneCard("c1", "one", "A")))
	require.NoError(t, svc.Close())

	again, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer func() { _ = again.Close() }()

	loaded, err := again.LoadBoard(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, cardIDs(loaded.Columns["A"]))
}

func TestSQLite_SeedSplitsReservedLanes(t *testing.T) {
	ctx := context.Background()
	svc, _ := openSQLite(t)

	require.NoError(t, svc.SaveLaneOrder(ctx, []string{"Todo", "Doing"}))
	require.NoError(t, svc.SaveCard(ctx, laneCard("c1", "open", "Todo")))
	require.NoError(t, svc.SaveCard(ctx, laneCard("c9", "done", core.LaneCompleted)))

	state, err := persist.Seed(ctx, svc, []string{"Todo", "Doing"}, core.DefaultReservedLanes())
	require.NoError(t, err)
	assert.Equal(t, []string{"Todo", "Doing"}, state.Active.Order)
	assert.Equal(t, core.DefaultReservedLanes(), state.Finalized.Order)
	assert.Equal(t, []string{"c1"}, cardIDs(state.Active.Columns["Todo"]))
	assert.Equal(t, []string{"c9"}, cardIDs(state.Finalized.Columns[core.LaneCompleted]))
}

func TestSQLite_OpenRequiresPath(t *testing.T) {
	_, err := store.OpenSQLite(context.Background(), "")
	assert.Error(t, err)
}
