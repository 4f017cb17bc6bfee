// ABOUTME: Append-only JSONL write-ahead journal of persistence intents.
// ABOUTME: Provides crash-safe append, replay of unresolved intents, and atomic compaction.
package persist

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type recordOp string

const (
	opEnqueue recordOp = "enqueue"
	opResolve recordOp = "resolve"
	opFail    recordOp = "fail"
	opRetry   recordOp = "retry"
)

// journalRecord is one line of the journal.
type journalRecord struct {
	Op       recordOp  `json:"op"`
	IntentID string    `json:"intentId"`
	Intent   *Intent   `json:"intent,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Journal is an append-only JSONL intent log backed by a file.
type Journal struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenJournal opens (or creates) a journal at path, creating parent
// directories as needed. The file is opened in append mode.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create parent dirs: %w", err)
	}
	file, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &Journal{path: path, file: file}, nil
}

func openAppend(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return file, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// append writes one record followed by a newline and fsyncs.
func (j *Journal) append(rec journalRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write journal record: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// Replay folds the journal into the intents still unresolved, in the order
// they were enqueued. A trailing partial line from a crash is ignored; any
// other malformed line is an error.
func (j *Journal) Replay() ([]Intent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return replayJournal(j.path)
}

func replayJournal(path string) ([]Intent, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal for replay: %w", err)
	}
	defer func() { _ = file.Close() }()

	var (
		order []string
		live  = make(map[string]*Intent)
		bad   error
	)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if bad != nil {
			return nil, bad
		}
		var rec journalRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			bad = fmt.Errorf("parse journal line: %w", err)
			continue
		}
		switch rec.Op {
		case opEnqueue:
			if rec.Intent == nil {
				continue
			}
			in := *rec.Intent
			in.State = IntentPending
			live[in.ID] = &in
			order = append(order, in.ID)
		case opResolve:
			delete(live, rec.IntentID)
		case opFail:
			if in, ok := live[rec.IntentID]; ok {
				in.State = IntentFailed
				in.LastError = rec.Error
				in.UpdatedAt = rec.At
			}
		case opRetry:
			if in, ok := live[rec.IntentID]; ok {
				in.State = IntentPending
				in.UpdatedAt = rec.At
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}

	out := make([]Intent, 0, len(live))
	for _, id := range order {
		if in, ok := live[id]; ok {
			out = append(out, *in)
		}
	}
	return out, nil
}

// Compact rewrites the journal so it holds only the given intents, using a
// temp file, fsync, and atomic rename. The journal stays open for appends.
func (j *Journal) Compact(live []Intent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.compactLocked(live)
}

// Fold compacts the journal down to the intents it still holds unresolved
// and returns how many remain. Appends wait while it runs.
func (j *Journal) Fold() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	live, err := replayJournal(j.path)
	if err != nil {
		return 0, err
	}
	return len(live), j.compactLocked(live)
}

func (j *Journal) compactLocked(live []Intent) error {
	tmpPath := j.path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for i := range live {
		in := live[i]
		recs := []journalRecord{{Op: opEnqueue, IntentID: in.ID, Intent: &in, At: in.CreatedAt}}
		if in.State == IntentFailed {
			recs = append(recs, journalRecord{Op: opFail, IntentID: in.ID, Error: in.LastError, At: in.UpdatedAt})
		}
		for _, rec := range recs {
			data, err := json.Marshal(rec)
			if err != nil {
				_ = tmp.Close()
				_ = os.Remove(tmpPath)
				return fmt.Errorf("marshal journal record: %w", err)
			}
			_, _ = w.Write(append(data, '\n'))
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write compacted journal: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("fsync temp file: %w", err)
	}
	_ = tmp.Close()

	if err := os.Rename(tmpPath, j.path); err != nil {
		return fmt.Errorf("rename temp to journal: %w", err)
	}
	if dir, err := os.Open(filepath.Dir(j.path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}

	_ = j.file.Close()
	file, err := openAppend(j.path)
	if err != nil {
		return err
	}
	j.file = file
	return nil
}
