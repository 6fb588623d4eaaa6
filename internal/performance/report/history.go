package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/inferload/inferload/internal/performance/engine"
)

const (
	bucketRuns  = "runs"
	bucketIndex = "index"
)

// ErrRunNotFound is returned by Get for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// HistoryEntry is the listing view of a stored run.
type HistoryEntry struct {
	RunID     string        `json:"runId"`
	Name      string        `json:"name"`
	Target    string        `json:"target"`
	Timeline  string        `json:"timeline"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
	Requests  int64         `json:"requests"`
	ErrorRate float64       `json:"errorRate"`
	P95       time.Duration `json:"p95"`
	Passed    bool          `json:"passed"`
}

// HistoryStore keeps finished runs in a bbolt file. Runs are keyed by start
// time so a reverse cursor walk lists newest first; a second bucket maps run
// ids to those keys.
type HistoryStore struct {
	db   *bbolt.DB
	path string
}

// DefaultHistoryPath returns ~/.inferload/history.db.
func DefaultHistoryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".inferload", "history.db"), nil
}

// OpenHistory opens or creates the store at path.
func OpenHistory(path string) (*HistoryStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketRuns, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &HistoryStore{db: db, path: path}, nil
}

// Path returns the backing file.
func (h *HistoryStore) Path() string { return h.path }

// Close releases the database file.
func (h *HistoryStore) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Name implements Sink.
func (h *HistoryStore) Name() string { return "history:" + h.path }

// Write implements Sink by saving the full result.
func (h *HistoryStore) Write(ctx context.Context, result *engine.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.Save(result)
}

// Save stores result, replacing any earlier run with the same id.
func (h *HistoryStore) Save(result *engine.Result) error {
	if result == nil || result.RunID == "" {
		return errors.New("result with a run id is required")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	key := runKey(result)

	return h.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(bucketRuns))
		index := tx.Bucket([]byte(bucketIndex))
		if old := index.Get([]byte(result.RunID)); old != nil {
			if err := runs.Delete(old); err != nil {
				return err
			}
		}
		if err := runs.Put(key, data); err != nil {
			return err
		}
		return index.Put([]byte(result.RunID), key)
	})
}

// List returns up to limit runs, newest first. A limit of 0 lists everything.
func (h *HistoryStore) List(limit int) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := h.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r engine.Result
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			entries = append(entries, entryFor(&r))
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	return entries, err
}

// Get loads a stored run by id.
func (h *HistoryStore) Get(runID string) (*engine.Result, error) {
	var r engine.Result
	err := h.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(bucketIndex)).Get([]byte(runID))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		v := tx.Bucket([]byte(bucketRuns)).Get(key)
		if v == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return json.Unmarshal(v, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// runKey sorts by start time; the run id breaks ties.
func runKey(r *engine.Result) []byte {
	return []byte(fmt.Sprintf("%020d-%s", r.StartTime.UTC().UnixNano(), r.RunID))
}

func entryFor(r *engine.Result) HistoryEntry {
	overall := r.Overall()
	return HistoryEntry{
		RunID:     r.RunID,
		Name:      r.Name,
		Target:    r.Target,
		Timeline:  r.Timeline,
		StartTime: r.StartTime,
		Duration:  r.Duration,
		Requests:  overall.Count,
		ErrorRate: overall.ErrorRate,
		P95:       overall.P95,
		Passed:    r.Passed,
	}
}
