// ABOUTME: SQLite-backed persistence service for one board, schema managed by goose migrations.
// ABOUTME: Cards are stored as JSON bodies keyed by id; lane and position columns carry the layout.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/2389-research/kanbansync/board/core"
	"github.com/2389-research/kanbansync/board/persist"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteService implements persist.Service on a local SQLite file.
type SQLiteService struct {
	db *sql.DB
}

var _ persist.Service = (*SQLiteService)(nil)

// OpenSQLite opens or creates the database at path and runs migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteService, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteService{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run goose migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteService) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteService) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveCard upserts the card under its status lane. A card new to the lane
// goes to the end; an existing card keeps its position.
func (s *SQLiteService) SaveCard(ctx context.Context, card core.Card) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := ensureLane(ctx, tx, card.Status); err != nil {
		return err
	}
	body, err := json.Marshal(card)
	if err != nil {
		return &persist.PermanentError{Err: fmt.Errorf("marshal card: %w", err)}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO cards (id, project_id, name, lane, position, body, updated_at)
		 VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM cards WHERE lane = ?), ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			name = excluded.name,
			position = CASE WHEN cards.lane = excluded.lane THEN cards.position ELSE excluded.position END,
			lane = excluded.lane,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		card.ID, card.ProjectID, card.Name, card.Status, card.Status, string(body), now(),
	)
	if err != nil {
		return fmt.Errorf("upsert card: %w", err)
	}
	if err := insertActivity(ctx, tx, card); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteCard removes the card. Its activity rows are kept as an audit trail.
func (s *SQLiteService) DeleteCard(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cards WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return nil
}

// SaveLaneOrder replaces the stored active lane order.
func (s *SQLiteService) SaveLaneOrder(ctx context.Context, order []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM lane_order"); err != nil {
		return fmt.Errorf("clear lane order: %w", err)
	}
	for i, lane := range order {
		if err := ensureLane(ctx, tx, lane); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO lane_order (position, lane) VALUES (?, ?)", i, lane); err != nil {
			return fmt.Errorf("insert lane order: %w", err)
		}
	}
	return tx.Commit()
}

// SaveColumns rewrites lane and position of the stored cards in the given
// lanes. Card bodies are left to SaveCard, and a card that is not stored
// (never saved, or already deleted) is skipped rather than inserted.
func (s *SQLiteService) SaveColumns(ctx context.Context, columns core.BoardMap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := now()
	for lane, cards := range columns {
		if err := ensureLane(ctx, tx, lane); err != nil {
			return err
		}
		for i, card := range cards {
			_, err := tx.ExecContext(ctx,
				"UPDATE cards SET lane = ?, position = ?, updated_at = ? WHERE id = ?",
				lane, i, stamp, card.ID,
			)
			if err != nil {
				return fmt.Errorf("place card %s: %w", card.ID, err)
			}
		}
	}
	return tx.Commit()
}

// LoadBoard reads every lane and card plus the stored active order.
func (s *SQLiteService) LoadBoard(ctx context.Context) (persist.LoadedBoard, error) {
	out := persist.LoadedBoard{Columns: core.BoardMap{}, BoardOrder: []string{}}

	laneRows, err := s.db.QueryContext(ctx, "SELECT name FROM lanes ORDER BY name")
	if err != nil {
		return out, fmt.Errorf("query lanes: %w", err)
	}
	for laneRows.Next() {
		var name string
		if err := laneRows.Scan(&name); err != nil {
			_ = laneRows.Close()
			return out, fmt.Errorf("scan lane: %w", err)
		}
		out.Columns[name] = []core.Card{}
	}
	_ = laneRows.Close()

	cardRows, err := s.db.QueryContext(ctx, "SELECT lane, body FROM cards ORDER BY lane, position, id")
	if err != nil {
		return out, fmt.Errorf("query cards: %w", err)
	}
	defer func() { _ = cardRows.Close() }()
	for cardRows.Next() {
		var lane, body string
		if err := cardRows.Scan(&lane, &body); err != nil {
			return out, fmt.Errorf("scan card: %w", err)
		}
		var card core.Card
		if err := json.Unmarshal([]byte(body), &card); err != nil {
			return out, fmt.Errorf("decode card body: %w", err)
		}
		card.Status = lane
		out.Columns[lane] = append(out.Columns[lane], card)
	}
	if err := cardRows.Err(); err != nil {
		return out, fmt.Errorf("iterate cards: %w", err)
	}

	orderRows, err := s.db.QueryContext(ctx, "SELECT lane FROM lane_order ORDER BY position")
	if err != nil {
		return out, fmt.Errorf("query lane order: %w", err)
	}
	defer func() { _ = orderRows.Close() }()
	for orderRows.Next() {
		var lane string
		if err := orderRows.Scan(&lane); err != nil {
			return out, fmt.Errorf("scan lane order: %w", err)
		}
		out.BoardOrder = append(out.BoardOrder, lane)
	}
	return out, orderRows.Err()
}

// ActivityRow is one indexed activity entry.
type ActivityRow struct {
	CardID string             `json:"cardId"`
	Entry  core.ActivityEntry `json:"entry"`
}

// RecentActivity returns the newest activity entries across the board,
// including entries of deleted cards.
func (s *SQLiteService) RecentActivity(ctx context.Context, limit int) ([]ActivityRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, card_id, type, actor_id, actor_name, payload, created_at
		 FROM card_activity ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ActivityRow
	for rows.Next() {
		var (
			row       ActivityRow
			typ       string
			payload   string
			createdAt string
		)
		if err := rows.Scan(&row.Entry.ID, &row.CardID, &typ, &row.Entry.ActorID, &row.Entry.ActorName,
			&payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		row.Entry.Type = core.ActivityType(typ)
		if err := json.Unmarshal([]byte(payload), &row.Entry.Payload); err != nil {
			return nil, fmt.Errorf("decode activity payload: %w", err)
		}
		if t, err := time.Parse(timeLayout, createdAt); err == nil {
			row.Entry.Timestamp = t
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func ensureLane(ctx context.Context, tx *sql.Tx, lane string) error {
	if lane == "" {
		return &persist.PermanentError{Err: fmt.Errorf("card has no lane")}
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO lanes (name) VALUES (?)", lane); err != nil {
		return fmt.Errorf("insert lane: %w", err)
	}
	return nil
}

func insertActivity(ctx context.Context, tx *sql.Tx, card core.Card) error {
	for _, e := range card.Activity {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return &persist.PermanentError{Err: fmt.Errorf("marshal activity payload: %w", err)}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO card_activity (id, card_id, type, actor_id, actor_name, payload, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, card.ID, string(e.Type), e.ActorID, e.ActorName, string(payload), e.Timestamp.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}
