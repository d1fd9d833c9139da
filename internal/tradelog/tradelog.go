// Package tradelog appends one JSON line per mirrored order to a daily audit file.
package tradelog

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Entry is one order outcome. Status is submitted, failed or skipped.
type Entry struct {
	TaskID        string
	CycleID       string
	EventKey      string
	Symbol        string
	Action        string
	PositionSide  string
	Quantity      float64
	Leverage      int
	Reversed      bool
	Status        string
	OrderID       string
	ClientOrderID string
	Reason        string
}

// Log writes entries to <dir>/orders-YYYY-MM-DD.jsonl, switching files at UTC midnight.
type Log struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
	zl   *zap.Logger
}

func New(dir string) *Log {
	if dir == "" {
		dir = "logs"
	}
	return &Log{dir: dir, now: time.Now}
}

func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotate(l.now().UTC()); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("task_id", e.TaskID),
		zap.String("symbol", e.Symbol),
		zap.String("action", e.Action),
		zap.String("position_side", e.PositionSide),
		zap.Float64("qty", e.Quantity),
		zap.Int("leverage", e.Leverage),
		zap.Bool("reversed", e.Reversed),
		zap.String("status", e.Status),
	}
	if e.CycleID != "" {
		fields = append(fields, zap.String("cycle_id", e.CycleID))
	}
	if e.EventKey != "" {
		fields = append(fields, zap.String("event_key", e.EventKey))
	}
	if e.OrderID != "" {
		fields = append(fields, zap.String("order_id", e.OrderID))
	}
	if e.ClientOrderID != "" {
		fields = append(fields, zap.String("client_order_id", e.ClientOrderID))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}

	l.zl.Info("order", fields...)
	return nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeFile()
}

func (l *Log) rotate(now time.Time) error {
	day := now.Format("2006-01-02")
	if l.file != nil && day == l.day {
		return nil
	}
	if err := l.closeFile(); err != nil {
		return err
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(l.dir, "orders-"+day+".jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), zapcore.InfoLevel)

	l.file, l.day, l.zl = f, day, zap.New(core)
	return nil
}

func (l *Log) closeFile() error {
	if l.file == nil {
		return nil
	}
	_ = l.zl.Sync()
	err := l.file.Close()
	l.file, l.zl, l.day = nil, nil, ""
	return err
}

// CompressOlder gzips audit files under dir not modified for retentionDays.
func CompressOlder(dir string, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			gz := p + ".gz"
			// if already gz exists, remove original
			if _, e2 := os.Stat(gz); e2 == nil {
				_ = os.Remove(p)
				return nil
			}
			return compressFile(p, gz)
		}
		return nil
	})
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return nil
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil
	}
	gw := gzip.NewWriter(out)
	_, copyErr := io.Copy(gw, in)
	_ = gw.Close()
	_ = out.Close()
	if copyErr == nil {
		_ = os.Remove(src)
	}
	return nil
}
