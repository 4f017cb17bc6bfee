// ABOUTME: App wires one board: persistence service, intent bridge, board actor, replica mirror, and HTTP API.
// ABOUTME: Background loops keep snapshots current and reload the board when another process writes to Redis.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/2389-research/kanbansync/board/core"
	"github.com/2389-research/kanbansync/board/export"
	"github.com/2389-research/kanbansync/board/persist"
	"github.com/2389-research/kanbansync/board/replica"
	"github.com/2389-research/kanbansync/board/store"
	"github.com/2389-research/kanbansync/board/web"
)

const (
	// reloadSettle bounds how long a remote reload waits for local writes to drain.
	reloadSettle = 5 * time.Second

	// reloadAttempts bounds how often Reload starts over after a local commit.
	reloadAttempts = 5
)

// backend is a persistence service that owns a connection.
type backend interface {
	persist.Service
	Close() error
}

// App is a running board.
type App struct {
	cfg    *Config
	logger zerolog.Logger
	dir    store.BoardDir

	svc     backend
	sqlite  *store.SQLiteService
	redis   *store.RedisService
	journal *persist.Journal
	bridge  *persist.Bridge
	board   *core.BoardHandle
	replica *replica.MemoryStore
	mirror  *replica.Mirror
	web     *web.Server

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewApp opens storage, replays unfinished writes, seeds the board, and
// builds the HTTP handler. Call Start to run the background loops and Close
// to release everything.
func NewApp(ctx context.Context, cfg *Config, logger zerolog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger.With().Str("component", "board.server").Str("board", cfg.Board).Logger()}

	mgr, err := store.NewStorageManager(cfg.Home)
	if err != nil {
		return nil, err
	}
	if a.dir, err = mgr.CreateBoardDir(cfg.Board); err != nil {
		return nil, err
	}

	if err := a.openBackend(ctx); err != nil {
		return nil, err
	}

	if a.journal, err = persist.OpenJournal(a.dir.JournalPath()); err != nil {
		_ = a.svc.Close()
		return nil, err
	}
	a.bridge = persist.NewBridge(a.svc,
		persist.WithJournal(a.journal),
		persist.WithRetryPolicy(cfg.RetryPolicy()),
		persist.WithAttemptTimeout(cfg.Retry.AttemptTimeout),
		persist.WithLogger(logger),
	)
	n, err := a.bridge.Recover()
	if err != nil {
		a.release()
		return nil, err
	}
	if n > 0 {
		// Replayed writes must land before the board is read back.
		waitCtx, cancel := context.WithTimeout(ctx, reloadSettle)
		_ = a.bridge.Wait(waitCtx)
		cancel()
	}

	state, err := persist.Seed(ctx, a.svc, cfg.ActiveLanes, cfg.ReservedLanes)
	if err != nil {
		a.release()
		return nil, err
	}
	if snap, err := store.LoadLatestSnapshot(a.dir.SnapshotsDir()); err != nil {
		a.logger.Warn().Str("action", "snapshot_load").Err(err).Send()
	} else if snap != nil {
		// Event ids keep increasing across restarts.
		state.LastEventID = snap.LastEventID
	}

	var dir core.UserDirectory = web.ContextDirectory{}
	if cfg.DefaultUser != "" {
		dir = web.ContextDirectory{Default: core.User{ID: cfg.DefaultUser, Name: cfg.DefaultUser}}
	}
	a.board = core.SpawnBoard(state,
		core.WithPersister(a.bridge),
		core.WithDirectory(dir),
		core.WithLogger(logger),
	)

	a.replica = replica.NewMemoryStore()
	a.mirror = replica.NewMirror(a.board, a.replica, cfg.ResyncInterval, replica.WithLogger(logger))
	if _, err := a.mirror.Synchronizer().Resync(a.board.Snapshot()); err != nil {
		a.logger.Warn().Str("action", "initial_resync").Err(err).Send()
	}

	webCfg := web.Config{
		Name:      cfg.Board,
		Board:     a.board,
		Replica:   a.replica,
		Intents:   a.bridge,
		AuthToken: cfg.AuthToken,
		Logger:    &logger,
	}
	if a.sqlite != nil {
		webCfg.Activity = a.sqlite
	}
	a.web = web.New(webCfg)

	a.logger.Info().Str("action", "board_ready").Str("backend", cfg.Backend).Int("recovered_intents", n).
		Int("cards", state.Active.Columns.Len()+state.Finalized.Columns.Len()).Send()
	return a, nil
}

func (a *App) openBackend(ctx context.Context) error {
	switch a.cfg.Backend {
	case BackendRedis:
		svc, err := store.NewRedisService(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		}, a.cfg.Redis.Namespace)
		if err != nil {
			return err
		}
		if err := svc.Ping(ctx); err != nil {
			_ = svc.Close()
			return fmt.Errorf("connect to redis at %s: %w", a.cfg.Redis.Addr, err)
		}
		a.redis, a.svc = svc, svc
	default:
		svc, err := store.OpenSQLite(ctx, a.dir.DBPath())
		if err != nil {
			return err
		}
		a.sqlite, a.svc = svc, svc
	}
	return nil
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.web }

// Board returns the board actor handle.
func (a *App) Board() *core.BoardHandle { return a.board }

// Bridge returns the persistence bridge.
func (a *App) Bridge() *persist.Bridge { return a.bridge }

// Replica returns the read-only secondary store.
func (a *App) Replica() replica.Reader { return a.replica }

// Dir returns the board's storage directory.
func (a *App) Dir() store.BoardDir { return a.dir }

// Start runs the mirror, the snapshot loop, and (for Redis) the remote
// change watcher until Close.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	events := a.board.Subscribe()
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.mirror.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error().Str("action", "mirror_stopped").Err(err).Send()
		}
	}()
	go func() {
		defer a.wg.Done()
		a.snapshotLoop(ctx, events)
	}()

	if a.redis != nil {
		sub, err := a.redis.Watch(ctx)
		if err != nil {
			a.cancel()
			return err
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer func() { _ = sub.Close() }()
			a.watchRemote(ctx, sub)
		}()
	}
	return nil
}

// Run starts the app and serves HTTP on the configured bind address until
// ctx is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              a.cfg.Bind,
		Handler:           a.web,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("action", "listen").Str("bind", a.cfg.Bind).Send()
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Open event streams are cut by closing the board in Close.
		_ = srv.Shutdown(shutdownCtx)
		return nil
	}
}

func (a *App) snapshotLoop(ctx context.Context, ch chan core.Event) {
	defer a.board.Unsubscribe(ch)

	since := 0
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			since++
			if a.cfg.SnapshotEvery > 0 && since >= a.cfg.SnapshotEvery {
				since = 0
				a.saveSnapshot()
			}
		}
	}
}

func (a *App) saveSnapshot() {
	var data store.SnapshotData
	a.board.ReadState(func(s *core.BoardState) {
		data = store.SnapshotData{
			Board:       s.Snapshot(),
			DefaultLane: s.DefaultLane,
			LastEventID: s.LastEventID,
			SavedAt:     time.Now().UTC(),
		}
	})
	if err := store.SaveSnapshot(a.dir.SnapshotsDir(), &data); err != nil {
		a.logger.Error().Str("action", "snapshot_save").Err(err).Send()
		return
	}
	if _, err := store.PruneSnapshots(a.dir.SnapshotsDir(), a.cfg.SnapshotKeep); err != nil {
		a.logger.Warn().Str("action", "snapshot_prune").Err(err).Send()
	}
	a.logger.Debug().Str("action", "snapshot_saved").Uint64("last_event_id", data.LastEventID).Send()
}

// watchRemote reloads the board whenever another process writes to the
// shared namespace. Bursts of notices collapse into one reload.
func (a *App) watchRemote(ctx context.Context, sub *store.ChangeSubscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-sub.Errors():
			if !ok {
				return
			}
			a.logger.Warn().Str("action", "change_feed").Err(err).Send()
		case n, ok := <-sub.Events():
			if !ok {
				return
			}
		drain:
			for {
				select {
				case more, ok := <-sub.Events():
					if !ok {
						break drain
					}
					n = more
				default:
					break drain
				}
			}
			a.logger.Debug().Str("action", "remote_change").Str("origin", n.Origin).Str("kind", string(n.Kind)).Send()
			if err := a.Reload(ctx); err != nil {
				a.logger.Error().Str("action", "remote_reload").Err(err).Send()
			}
		}
	}
}

// Reload waits briefly for local writes to drain, reads the board back from
// the persistence service, and replaces the actor's boards with it. Writes
// the store has not acknowledged are folded over the loaded board, and a
// reload overtaken by a local commit starts over.
func (a *App) Reload(ctx context.Context) error {
	settle, cancel := context.WithTimeout(ctx, reloadSettle)
	_ = a.bridge.Wait(settle)
	cancel()

	for attempt := 1; ; attempt++ {
		err := a.reloadOnce(ctx)
		if !errors.Is(err, core.ErrStaleReload) || attempt >= reloadAttempts {
			return err
		}
		a.logger.Debug().Str("action", "reload_stale").Int("attempt", attempt).Send()
	}
}

func (a *App) reloadOnce(ctx context.Context) error {
	// The base id is read before the pending intents, and both before the
	// store: any write missing from all three belongs to a later event.
	var (
		base    uint64
		current []string
	)
	a.board.ReadState(func(s *core.BoardState) {
		base = s.LastEventID
		current = append([]string{}, s.Active.Order...)
	})
	pending := a.bridge.Pending()

	loaded, err := a.svc.LoadBoard(ctx)
	if err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	loaded = persist.ApplyPending(loaded, pending)

	order := loaded.BoardOrder
	if len(order) == 0 {
		order = current
	}
	_, err = a.board.SendCommand(ctx, core.ReloadBoardCommand{Columns: loaded.Columns, Order: order, BaseEventID: base})
	return err
}

// WriteExports renders the current replica into the board's exports dir.
func (a *App) WriteExports() (string, error) {
	if err := export.WriteExports(a.dir.ExportsDir(), a.cfg.Board, a.replica.Snapshot()); err != nil {
		return "", err
	}
	return a.dir.ExportsDir(), nil
}

// Close stops the loops, saves a final snapshot, flushes pending writes for
// a short while, and closes storage. Unflushed writes stay in the journal.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		a.saveSnapshot()
		a.board.Close()
		a.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), reloadSettle)
		if werr := a.bridge.Wait(ctx); werr != nil {
			a.logger.Warn().Str("action", "close_flush").Int("pending", len(a.bridge.Pending())).Err(werr).Send()
		}
		cancel()
		err = a.release()
	})
	return err
}

// release closes the bridge, journal, and backend, in that order.
func (a *App) release() error {
	if a.bridge != nil {
		a.bridge.Close()
	}
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.svc != nil {
		errs = append(errs, a.svc.Close())
	}
	return errors.Join(errs...)
}
