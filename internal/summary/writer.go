package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"trade-mirror-bot/internal/logger"
)

// DefaultRetention is how long a snapshot survives without a new write.
const DefaultRetention = 5 * time.Minute

// Writer overwrites a JSON snapshot file and empties it once retention passes
// with no further write. Every Write rearms the expiry.
type Writer struct {
	path      string
	retention time.Duration
	onExpire  func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewWriter creates a writer for path. onExpire, if set, runs before the file is emptied.
func NewWriter(path string, retention time.Duration, onExpire func()) *Writer {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Writer{path: path, retention: retention, onExpire: onExpire}
}

func (w *Writer) Path() string {
	return w.path
}

// Write replaces the snapshot with records and restarts the expiry timer.
func (w *Writer) Write(records []Record) error {
	if records == nil {
		records = []Record{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writeFile(records); err != nil {
		return err
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = time.AfterFunc(w.retention, func() { w.expire(gen) })
	return nil
}

// Stop cancels a pending expiry without touching the file.
func (w *Writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
}

func (w *Writer) expire(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// a later Write or Stop superseded this timer
	if gen != w.gen {
		return
	}
	w.timer = nil

	if w.onExpire != nil {
		w.onExpire()
	}
	if err := w.writeFile([]Record{}); err != nil {
		logger.ErrorWithErr(context.Background(), "Failed to clear expired trade snapshot", err, "path", w.path)
	}
}

func (w *Writer) writeFile(records []Record) error {
	b, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
