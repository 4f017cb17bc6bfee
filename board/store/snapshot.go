// ABOUTME: Atomic snapshot save and load for the mirrored board projection.
// ABOUTME: Writes snapshots with atomic rename for crash safety and loads the latest by event ID.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/2389-research/kanbansync/board/core"
)

// SnapshotData is the board projection at a given event.
type SnapshotData struct {
	Board       core.Snapshot `json:"board"`
	DefaultLane string        `json:"default_lane"`
	LastEventID uint64        `json:"last_event_id"`
	SavedAt     time.Time     `json:"saved_at"`
}

// SaveSnapshot saves a snapshot to disk using atomic write (write to .tmp,
// fsync, rename). Creates the target directory if it does not exist.
func SaveSnapshot(dir string, data *SnapshotData) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf("board_%d.tmp", data.LastEventID))
	finalPath := filepath.Join(dir, fmt.Sprintf("board_%d.json", data.LastEventID))

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if _, err := tmpFile.Write(jsonData); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write snapshot data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("fsync snapshot: %w", err)
	}
	_ = tmpFile.Close()

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// snapshotIDs lists the event ids of the snapshots in dir, ascending.
func snapshotIDs(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	var ids []uint64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "board_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		idStr := strings.TrimSuffix(strings.TrimPrefix(name, "board_"), ".json")
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// LoadLatestSnapshot loads the snapshot with the highest event ID from the
// given directory. Returns nil if the directory is empty or does not exist.
func LoadLatestSnapshot(dir string) (*SnapshotData, error) {
	ids, err := snapshotIDs(dir)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	path := filepath.Join(dir, fmt.Sprintf("board_%d.json", ids[len(ids)-1]))
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	var data SnapshotData
	if err := json.Unmarshal(contents, &data); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &data, nil
}

// PruneSnapshots deletes all but the newest keep snapshots and returns how
// many were removed.
func PruneSnapshots(dir string, keep int) (int, error) {
	ids, err := snapshotIDs(dir)
	if err != nil {
		return 0, err
	}
	if keep < 1 {
		keep = 1
	}
	removed := 0
	for len(ids) > keep {
		path := filepath.Join(dir, fmt.Sprintf("board_%d.json", ids[0]))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove snapshot: %w", err)
		}
		ids = ids[1:]
		removed++
	}
	return removed, nil
}
