// ABOUTME: StorageManager owns the kanbansync home directory layout.
// ABOUTME: Handles board directory creation, discovery, and the per-board file paths.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog/log"
)

var boardNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidBoardName reports whether name can be used as a board directory.
func ValidBoardName(name string) bool {
	return boardNameRe.MatchString(name)
}

// StorageManager manages the home directory layout.
//
// Dir layout:
//
//	home/boards/{name}/board.db
//	home/boards/{name}/intents.jsonl
//	home/boards/{name}/snapshots/
//	home/boards/{name}/exports/
type StorageManager struct {
	home string
}

// NewStorageManager creates a StorageManager rooted at home, creating the
// home and boards directories if they do not exist.
func NewStorageManager(home string) (*StorageManager, error) {
	if err := os.MkdirAll(filepath.Join(home, "boards"), 0o755); err != nil {
		return nil, fmt.Errorf("create boards dir: %w", err)
	}
	return &StorageManager{home: home}, nil
}

// Home returns the home directory path.
func (m *StorageManager) Home() string {
	return m.home
}

// BoardDir pairs a board name with its directory.
type BoardDir struct {
	Name string
	Path string
}

// DBPath is the SQLite database file.
func (d BoardDir) DBPath() string { return filepath.Join(d.Path, "board.db") }

// JournalPath is the intent journal file.
func (d BoardDir) JournalPath() string { return filepath.Join(d.Path, "intents.jsonl") }

// SnapshotsDir holds periodic board snapshots.
func (d BoardDir) SnapshotsDir() string { return filepath.Join(d.Path, "snapshots") }

// ExportsDir holds rendered exports.
func (d BoardDir) ExportsDir() string { return filepath.Join(d.Path, "exports") }

// Board returns the directory for name without creating it.
func (m *StorageManager) Board(name string) (BoardDir, error) {
	if !ValidBoardName(name) {
		return BoardDir{}, fmt.Errorf("invalid board name %q", name)
	}
	return BoardDir{Name: name, Path: filepath.Join(m.home, "boards", name)}, nil
}

// CreateBoardDir creates the board directory with its subdirectories.
func (m *StorageManager) CreateBoardDir(name string) (BoardDir, error) {
	d, err := m.Board(name)
	if err != nil {
		return BoardDir{}, err
	}
	for _, sub := range []string{d.SnapshotsDir(), d.ExportsDir()} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return BoardDir{}, fmt.Errorf("create board dir: %w", err)
		}
	}
	return d, nil
}

// ListBoards returns every board directory under home. Entries that are not
// valid board names are skipped.
func (m *StorageManager) ListBoards() ([]BoardDir, error) {
	boardsDir := filepath.Join(m.home, "boards")
	entries, err := os.ReadDir(boardsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read boards dir: %w", err)
	}

	var out []BoardDir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !ValidBoardName(name) {
			log.Debug().Str("component", "board.store").Str("action", "list_boards_skip").Str("dir", name).Send()
			continue
		}
		out = append(out, BoardDir{Name: name, Path: filepath.Join(boardsDir, name)})
	}
	return out, nil
}
