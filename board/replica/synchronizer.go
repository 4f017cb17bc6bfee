// ABOUTME: Synchronizer mirrors board snapshots into a secondary store, writing only changed fields.
// ABOUTME: Fields are compared by their JSON encoding against the last snapshot it wrote.
package replica

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/2389-research/kanbansync/board/core"
)

// Field names one mirrored slice of the board snapshot.
type Field string

const (
	FieldColumns          Field = "columns"
	FieldOrder            Field = "order"
	FieldFinalizedColumns Field = "finalizedColumns"
	FieldFinalizedOrder   Field = "finalizedOrder"
	FieldCurrentView      Field = "currentView"
	FieldSearchQuery      Field = "searchQuery"
)

// AllFields lists the mirrored fields in write order.
var AllFields = []Field{
	FieldColumns, FieldOrder, FieldFinalizedColumns, FieldFinalizedOrder, FieldCurrentView, FieldSearchQuery,
}

// SecondaryStore receives per-field writes. Implementations are only ever
// written by a Synchronizer.
type SecondaryStore interface {
	SetColumns(core.BoardMap)
	SetOrder([]string)
	SetFinalizedColumns(core.BoardMap)
	SetFinalizedOrder([]string)
	SetCurrentView(core.View)
	SetSearchQuery(string)
}

// SyncReport lists the fields a Sync call actually wrote.
type SyncReport struct {
	Written []Field
}

// Wrote reports whether f was written.
func (r SyncReport) Wrote(f Field) bool {
	for _, w := range r.Written {
		if w == f {
			return true
		}
	}
	return false
}

// Option configures a Synchronizer or Mirror.
type Option func(*options)

type options struct {
	logger zerolog.Logger
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Synchronizer is the single writer of a SecondaryStore.
type Synchronizer struct {
	mu       sync.Mutex
	store    SecondaryStore
	lastSeen map[Field][]byte
	logger   zerolog.Logger
}

// NewSynchronizer creates a synchronizer that has not yet written anything.
// The first Sync therefore writes every field.
func NewSynchronizer(store SecondaryStore, opts ...Option) *Synchronizer {
	o := buildOptions(opts)
	return &Synchronizer{
		store:  store,
		logger: o.logger.With().Str("component", "board.replica").Logger(),
	}
}

// Sync writes the fields of next whose encoding differs from the last
// snapshot written, then records next as the last snapshot.
func (s *Synchronizer) Sync(next core.Snapshot) (SyncReport, error) {
	return s.sync(next, false)
}

// Resync writes every field regardless of the last snapshot. Use it after
// notifications may have been missed.
func (s *Synchronizer) Resync(next core.Snapshot) (SyncReport, error) {
	return s.sync(next, true)
}

func (s *Synchronizer) sync(next core.Snapshot, force bool) (SyncReport, error) {
	encoded, err := encodeFields(next)
	if err != nil {
		return SyncReport{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var report SyncReport
	for _, f := range AllFields {
		if !force && s.lastSeen != nil && bytes.Equal(s.lastSeen[f], encoded[f]) {
			continue
		}
		s.write(f, next)
		report.Written = append(report.Written, f)
	}
	s.lastSeen = encoded

	if len(report.Written) > 0 {
		s.logger.Debug().Str("action", "sync").Bool("forced", force).
			Int("fields", len(report.Written)).Send()
	}
	return report, nil
}

func (s *Synchronizer) write(f Field, snap core.Snapshot) {
	switch f {
	case FieldColumns:
		s.store.SetColumns(snap.Columns.Clone())
	case FieldOrder:
		s.store.SetOrder(append([]string{}, snap.Order...))
	case FieldFinalizedColumns:
		s.store.SetFinalizedColumns(snap.FinalizedColumns.Clone())
	case FieldFinalizedOrder:
		s.store.SetFinalizedOrder(append([]string{}, snap.FinalizedOrder...))
	case FieldCurrentView:
		s.store.SetCurrentView(snap.CurrentView)
	case FieldSearchQuery:
		s.store.SetSearchQuery(snap.SearchQuery)
	}
}

func encodeFields(snap core.Snapshot) (map[Field][]byte, error) {
	values := map[Field]any{
		FieldColumns:          snap.Columns,
		FieldOrder:            snap.Order,
		FieldFinalizedColumns: snap.FinalizedColumns,
		FieldFinalizedOrder:   snap.FinalizedOrder,
		FieldCurrentView:      snap.CurrentView,
		FieldSearchQuery:      snap.SearchQuery,
	}
	out := make(map[Field][]byte, len(values))
	for f, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f, err)
		}
		out[f] = data
	}
	return out, nil
}
