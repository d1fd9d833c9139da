// Package mirror runs one polling loop per followed trader.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"trade-mirror-bot/internal/engine"
	"trade-mirror-bot/internal/id"
	"trade-mirror-bot/internal/interfaces"
	"trade-mirror-bot/internal/logger"
	"trade-mirror-bot/internal/metrics"
	"trade-mirror-bot/internal/page"
	"trade-mirror-bot/internal/summary"
	"trade-mirror-bot/internal/trace"
	"trade-mirror-bot/internal/tradelog"
	"trade-mirror-bot/internal/types"
)

// Deps are the collaborators a task drives. TradeLog and Now are optional.
type Deps struct {
	Driver   interfaces.PageDriver
	Gateway  interfaces.Gateway
	TradeLog *tradelog.Log
	Now      func() time.Time
}

type Task struct {
	cfg      types.TaskConfig
	opts     Options
	session  *page.Session
	gateway  interfaces.Gateway
	tradeLog *tradelog.Log
	now      func() time.Time

	// owned by the Run goroutine
	dedup  *engine.Deduplicator
	scaler *engine.Scaler
	policy engine.Policy

	history *summary.History
	writer  *summary.Writer

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	running    atomic.Bool
	cycles     atomic.Int64
	processed  atomic.Int64
	orders     atomic.Int64
	recoveries atomic.Int64

	mu      sync.Mutex
	lastErr string
}

var _ interfaces.Task = (*Task)(nil)

// New validates cfg and wires a task. Nothing touches the network until Run.
func New(cfg types.TaskConfig, opts Options, deps Deps) (*Task, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Driver == nil || deps.Gateway == nil {
		return nil, fmt.Errorf("%w: task %s needs a page driver and a gateway", types.ErrInvalidConfig, cfg.ID)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.SnapshotPath == "" {
		opts.SnapshotPath = fmt.Sprintf("trade_history_%s.json", cfg.ID)
	}
	opts.Page.Link = cfg.Link

	var dedupOpts []engine.DedupOption
	if opts.DedupRetention > 0 {
		dedupOpts = append(dedupOpts, engine.WithRetention(opts.DedupRetention))
	}

	t := &Task{
		cfg:      cfg,
		opts:     opts,
		session:  page.NewSession(deps.Driver, opts.Page),
		gateway:  deps.Gateway,
		tradeLog: deps.TradeLog,
		now:      deps.Now,
		dedup:    engine.NewDeduplicator(opts.AcceptWindow, dedupOpts...),
		scaler:   engine.NewScaler(cfg.YourPortfolioSize, cfg.TraderPortfolioSize, opts.CloseMultiplier),
		policy: engine.Policy{
			CloseOnly:   cfg.CloseOnly,
			ReverseCopy: cfg.ReverseCopy,
			MirrorBoth:  opts.MirrorBoth,
		},
		history: &summary.History{},
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	t.writer = summary.NewWriter(opts.SnapshotPath, opts.SnapshotRetention, t.history.Clear)
	return t, nil
}

func (t *Task) Config() types.TaskConfig {
	return t.cfg
}

// Run polls until Stop or ctx cancellation. It returns an error only when the
// page driver cannot be started the first time; every later failure is
// recovered in place.
func (t *Task) Run(ctx context.Context) error {
	defer close(t.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	t.running.Store(true)
	defer t.running.Store(false)
	metrics.TasksRunning.Inc()
	defer metrics.TasksRunning.Dec()
	defer t.session.Close()
	// a pending expiry must not fire into a snapshot a successor task owns
	defer t.writer.Stop()

	logger.Info(ctx, "Mirror task started", "task_id", t.cfg.ID, "link", t.cfg.Link,
		"close_only", t.cfg.CloseOnly, "reverse_copy", t.cfg.ReverseCopy)

	// Only the first start is fatal. Once the task has run, a driver that fails
	// to restart is retried with backoff like any other outage.
	err := t.session.Connect(ctx)
	if errors.Is(err, page.ErrDriverStart) && ctx.Err() == nil {
		t.setErr(err)
		logger.ErrorWithErr(ctx, "Page driver failed to start", err, "task_id", t.cfg.ID)
		return err
	}
	for {
		if ctx.Err() != nil {
			logger.Info(ctx, "Mirror task stopped", "task_id", t.cfg.ID, "cycles", t.cycles.Load(), "orders", t.orders.Load())
			return nil
		}
		if err != nil {
			t.setErr(err)
			t.recoveries.Add(1)
			metrics.Recoveries.Inc()
			logger.ErrorWithErr(ctx, "Cycle failed, rebuilding page session", err, "task_id", t.cfg.ID, "page", t.session.Page())
			err = t.recover(ctx)
			continue
		}

		err = t.cycle(ctx)
		if err == nil {
			pause(ctx, t.opts.PollInterval)
		}
	}
}

// recover tears the session down and connects again after a backoff.
func (t *Task) recover(ctx context.Context) error {
	t.session.MarkRecovering()
	if err := t.session.Close(); err != nil {
		logger.Warn(ctx, "Closing page session failed", "task_id", t.cfg.ID, "error", err)
	}
	pause(ctx, t.opts.RecoveryBackoff)
	return t.session.Connect(ctx)
}

// cycle reads the current page, mirrors accepted rows, moves the page cursor
// and rewrites the summary snapshot.
func (t *Task) cycle(ctx context.Context) error {
	cycleID := id.New()
	ctx, span := trace.StartSpan(ctx, "mirror.cycle")
	defer span.End()

	cycleTime := t.now().In(t.opts.Location).Truncate(time.Minute)
	if n := t.dedup.Evict(cycleTime); n > 0 {
		logger.Debug(ctx, "Evicted processed keys", "task_id", t.cfg.ID, "count", n)
	}

	rows, err := t.session.CurrentRows(ctx)
	if errors.Is(err, page.ErrNoRows) {
		logger.Debug(ctx, "No rows on page, returning to first page", "task_id", t.cfg.ID, "page", t.session.Page())
		return t.session.ResetToFirstPage(ctx)
	}
	if err != nil {
		return err
	}

	accepted := 0
	for _, row := range rows {
		ev, err := page.ParseEvent(row, t.opts.Location)
		if err != nil {
			metrics.Events.WithLabelValues("invalid").Inc()
			logger.Warn(ctx, "Skipping unparsable row", "task_id", t.cfg.ID, "error", err)
			continue
		}
		if !t.dedup.Accept(ev, cycleTime) {
			metrics.Events.WithLabelValues("dropped").Inc()
			if logger.IsDebugEnabled() {
				logger.Debug(ctx, "Row filtered", "task_id", t.cfg.ID, "event_key", ev.Key(), "event_time", ev.Time)
			}
			continue
		}
		metrics.Events.WithLabelValues("accepted").Inc()
		accepted++
		t.processed.Add(1)
		logger.Info(ctx, "New trade detected", "task_id", t.cfg.ID, "cycle_id", cycleID, "event_key", ev.Key())

		t.execute(ctx, cycleID, ev)
		t.history.Append(ev)
	}

	t.cycles.Add(1)
	metrics.Cycles.Inc()

	if accepted == 0 {
		return t.session.ResetToFirstPage(ctx)
	}

	more, err := t.session.AdvancePage(ctx)
	if err != nil {
		return err
	}
	if !more {
		if err := t.session.ResetToFirstPage(ctx); err != nil {
			return err
		}
	}

	if err := t.writer.Write(t.history.Records()); err != nil {
		logger.ErrorWithErr(ctx, "Failed to write trade snapshot", err, "task_id", t.cfg.ID, "path", t.writer.Path())
	}
	return nil
}

// Stop signals the loop; it exits at the next cancellation point.
func (t *Task) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Status() types.TaskStatus {
	t.mu.Lock()
	lastErr := t.lastErr
	t.mu.Unlock()

	return types.TaskStatus{
		ID:         t.cfg.ID,
		Link:       t.cfg.Link,
		Running:    t.running.Load(),
		Cycles:     t.cycles.Load(),
		Processed:  t.processed.Load(),
		Orders:     t.orders.Load(),
		Recoveries: t.recoveries.Load(),
		LastError:  lastErr,
	}
}

func (t *Task) setErr(err error) {
	t.mu.Lock()
	t.lastErr = err.Error()
	t.mu.Unlock()
}

// pause waits for d or until ctx is done; the loop checks ctx itself.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
