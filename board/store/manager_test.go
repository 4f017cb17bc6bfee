// ABOUTME: Tests for the StorageManager filesystem layout.
// ABOUTME: Covers directory creation, board name validation, and board discovery.
package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/2389-research/kanbansync/board/store"
)

func TestStorageManagerCreatesDirectories(t *testing.T) {
	home := filepath.Join(t.TempDir(), "kanban_home")

	mgr, err := store.NewStorageManager(home)
	if err != nil {
		t.Fatalf("NewStorageManager: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "boards")); os.IsNotExist(err) {
		t.Error("expected boards directory to exist")
	}
	if mgr.Home() != home {
		t.Errorf("Home() = %q, want %q", mgr.Home(), home)
	}
}

func TestStorageManagerCreatesBoardDir(t *testing.T) {
	mgr, err := store.NewStorageManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewStorageManager: %v", err)
	}

	d, err := mgr.CreateBoardDir("team-a")
	if err != nil {
		t.Fatalf("CreateBoardDir: %v", err)
	}
	for _, p := range []string{d.Path, d.SnapshotsDir(), d.ExportsDir()} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			t.Errorf("expected %s to exist", p)
		}
	}
	if filepath.Base(d.DBPath()) != "board.db" {
		t.Errorf("DBPath() = %q", d.DBPath())
	}
	if filepath.Base(d.JournalPath()) != "intents.jsonl" {
		t.Errorf("JournalPath() = %q", d.JournalPath())
	}

	again, err := mgr.Board("team-a")
	if err != nil {
		t.Fatalf("Board: %v", err)
	}
	if again.Path != d.Path {
		t.Errorf("Board().Path = %q, want %q", again.Path, d.Path)
	}
}

func TestStorageManagerRejectsBadNames(t *testing.T) {
	mgr, err := store.NewStorageManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewStorageManager: %v", err)
	}
	for _, name := range []string{"", "../escape", "a/b", ".hidden", "sp ace"} {
		if _, err := mgr.CreateBoardDir(name); err == nil {
			t.Errorf("CreateBoardDir(%q) should fail", name)
		}
	}
}

func TestStorageManagerListBoards(t *testing.T) {
	home := t.TempDir()
	mgr, err := store.NewStorageManager(home)
	if err != nil {
		t.Fatalf("NewStorageManager: %v", err)
	}
	for _, name := range []string{"beta", "alpha"} {
		if _, err := mgr.CreateBoardDir(name); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(home, "boards", ".trash"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, "boards", "notes.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	boards, err := mgr.ListBoards()
	if err != nil {
		t.Fatalf("ListBoards: %v", err)
	}
	if len(boards) != 2 || boards[0].Name != "alpha" || boards[1].Name != "beta" {
		t.Errorf("ListBoards() = %+v", boards)
	}
}
