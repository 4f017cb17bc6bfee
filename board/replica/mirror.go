// ABOUTME: Mirror subscribes to the board actor and keeps a secondary store in step after every event.
// ABOUTME: It resyncs fully on start and, optionally, on a fixed interval to repair missed events.
package replica

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/2389-research/kanbansync/board/core"
)

// Source is the subset of core.BoardHandle the mirror needs.
type Source interface {
	Subscribe() chan core.Event
	Unsubscribe(ch chan core.Event)
	Snapshot() core.Snapshot
}

// Mirror drives a Synchronizer from a Source's event stream.
type Mirror struct {
	source   Source
	sync     *Synchronizer
	interval time.Duration
	logger   zerolog.Logger
}

// NewMirror wires source to store. interval <= 0 disables periodic resyncs.
func NewMirror(source Source, store SecondaryStore, interval time.Duration, opts ...Option) *Mirror {
	o := buildOptions(opts)
	return &Mirror{
		source:   source,
		sync:     NewSynchronizer(store, opts...),
		interval: interval,
		logger:   o.logger.With().Str("component", "board.mirror").Logger(),
	}
}

// Synchronizer exposes the underlying synchronizer.
func (m *Mirror) Synchronizer() *Synchronizer {
	return m.sync
}

// Run blocks until ctx is done or the source closes its event channel.
func (m *Mirror) Run(ctx context.Context) error {
	ch := m.source.Subscribe()
	defer m.source.Unsubscribe(ch)

	if _, err := m.sync.Resync(m.source.Snapshot()); err != nil {
		m.logger.Error().Str("action", "initial_resync").Err(err).Send()
	}

	var tick <-chan time.Time
	if m.interval > 0 {
		t := time.NewTicker(m.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := m.sync.Sync(m.source.Snapshot()); err != nil {
				m.logger.Error().Str("action", "sync").Uint64("event_id", ev.EventID).Err(err).Send()
			}
		case <-tick:
			if _, err := m.sync.Resync(m.source.Snapshot()); err != nil {
				m.logger.Error().Str("action", "periodic_resync").Err(err).Send()
			}
		}
	}
}
