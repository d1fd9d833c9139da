package summary

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readSnapshot(t *testing.T, path string) []Record {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var recs []Record
	require.NoError(t, json.Unmarshal(b, &recs))
	return recs
}

func TestWriterOverwrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "trade_history_t1.json")
	w := NewWriter(path, time.Hour, nil)
	defer w.Stop()

	require.NoError(t, w.Write([]Record{{Symbol: "A", Quantity: 1}, {Symbol: "B", Quantity: 2}}))
	require.NoError(t, w.Write([]Record{{Symbol: "C", Quantity: 3}}))

	recs := readSnapshot(t, path)
	require.Len(t, recs, 1)
	assert.Equal(t, "C", recs[0].Symbol)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"RealizedProfit"`)
}

func TestWriterExpiresOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snap.json")
	var expired atomic.Int32
	w := NewWriter(path, 50*time.Millisecond, func() { expired.Add(1) })

	require.NoError(t, w.Write([]Record{{Symbol: "A", Quantity: 1}}))

	assert.Eventually(t, func() bool { return expired.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, readSnapshot(t, path))

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), expired.Load())
}

func TestWriterRearmSupersedes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snap.json")
	var expired atomic.Int32
	w := NewWriter(path, 200*time.Millisecond, func() { expired.Add(1) })

	require.NoError(t, w.Write([]Record{{Symbol: "A", Quantity: 1}}))
	time.Sleep(120 * time.Millisecond)
	require.NoError(t, w.Write([]Record{{Symbol: "B", Quantity: 2}}))
	time.Sleep(120 * time.Millisecond)

	// 240ms after the first write, 120ms after the second
	assert.Equal(t, int32(0), expired.Load())
	recs := readSnapshot(t, path)
	require.Len(t, recs, 1)
	assert.Equal(t, "B", recs[0].Symbol)

	assert.Eventually(t, func() bool { return expired.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, readSnapshot(t, path))
}

func TestWriterStopCancelsExpiry(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snap.json")
	var expired atomic.Int32
	w := NewWriter(path, 30*time.Millisecond, func() { expired.Add(1) })

	require.NoError(t, w.Write([]Record{{Symbol: "A"}}))
	w.Stop()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(0), expired.Load())
	assert.Len(t, readSnapshot(t, path), 1)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWriterLogsFailedExpiry(t *testing.T) {
	logs := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(logs, nil)))
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "trade_history_t1.json")
	var expired atomic.Int32
	w := NewWriter(path, 50*time.Millisecond, func() { expired.Add(1) })
	defer w.Stop()
	require.NoError(t, w.Write([]Record{{Symbol: "A", Quantity: 1}}))

	// a non-empty directory in place of the file makes the clearing rename fail
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "keep"), 0o755))

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "Failed to clear expired trade snapshot")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), expired.Load())
}
