// ABOUTME: Tests for config loading: defaults, YAML file, env overrides, and validation failures.
package server

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/kanbansync/board/core"
)

func validConfig() *Config {
	return &Config{
		Board:         "demo",
		Bind:          "127.0.0.1:7780",
		Backend:       BackendSQLite,
		ActiveLanes:   []string{"Todo", "Doing"},
		ReservedLanes: core.DefaultReservedLanes(),
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("KANBANSYNC_HOME", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Board)
	assert.Equal(t, "127.0.0.1:7780", cfg.Bind)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "local", cfg.DefaultUser)
	assert.Equal(t, []string{"Todo", "Doing", "Review"}, cfg.ActiveLanes)
	assert.Equal(t, core.DefaultReservedLanes(), cfg.ReservedLanes)
	assert.Equal(t, 30*time.Second, cfg.ResyncInterval)
	assert.Equal(t, 100, cfg.SnapshotEvery)
	assert.Equal(t, "default", cfg.Redis.Namespace)
	assert.Equal(t, 10*time.Second, cfg.Retry.AttemptTimeout)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kanbansync.yaml")
	content := `
board: team-a
backend: redis
active_lanes: [Backlog, Now]
redis:
  addr: 10.0.0.5:6379
  namespace: shared
retry:
  max_retries: 7
  base_delay: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("KANBANSYNC_REDIS_DB", "3")
	t.Setenv("KANBANSYNC_BOARD", "team-b")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "team-b", cfg.Board)
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, []string{"Backlog", "Now"}, cfg.ActiveLanes)
	assert.Equal(t, "10.0.0.5:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "shared", cfg.Redis.Namespace)

	p := cfg.RetryPolicy()
	assert.Equal(t, 7, p.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, p.BaseDelay)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_RemoteRequiresToken(t *testing.T) {
	cfg := validConfig()
	cfg.AllowRemote = true
	assert.True(t, errors.Is(cfg.Validate(), ErrRemoteWithoutToken))

	cfg.AuthToken = "tok"
	cfg.Bind = "0.0.0.0:7780"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Bind(t *testing.T) {
	for _, bind := range []string{"127.0.0.1:1", "[::1]:1", "localhost:1", ":7780"} {
		cfg := validConfig()
		cfg.Bind = bind
		assert.NoError(t, cfg.Validate(), bind)
	}
	for _, bind := range []string{"0.0.0.0:1", "192.168.1.10:1", "example.com:1"} {
		cfg := validConfig()
		cfg.Bind = bind
		assert.ErrorIs(t, cfg.Validate(), ErrNonLoopbackBind, bind)
	}
}

func TestValidate_Lanes(t *testing.T) {
	tests := []struct {
		name  string
		lanes []string
	}{
		{"empty", nil},
		{"blank", []string{"Todo", " "}},
		{"duplicate", []string{"Todo", "Todo"}},
		{"reserved", []string{"Todo", core.LaneCompleted}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.ActiveLanes = tt.lanes
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_BackendAndBoardName(t *testing.T) {
	cfg := validConfig()
	cfg.Backend = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Board = "../escape"
	assert.Error(t, cfg.Validate())
}

func TestDefaultHome_PrefersXDG(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_DATA_HOME", xdg)
	assert.Equal(t, filepath.Join(xdg, "kanbansync"), defaultHome())
}
