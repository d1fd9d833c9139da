package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-mirror-bot/internal/broker/brokerobs"
	"trade-mirror-bot/internal/broker/paper"
	"trade-mirror-bot/internal/page"
	"trade-mirror-bot/internal/summary"
	"trade-mirror-bot/internal/tradelog"
	"trade-mirror-bot/internal/types"
)

// sourceServer serves a trader page. Until more than tabAfter requests have been
// served the history tab is missing and staleRows are shown instead of rows.
type sourceServer struct {
	mu        sync.Mutex
	requests  int
	tabAfter  int
	failing   int
	staleRows [][]string
	rows      [][]string
}

func (s *sourceServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests++
	if s.failing > 0 {
		s.failing--
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
		return
	}

	withTab := s.requests > s.tabAfter
	rows := s.rows
	if !withTab {
		rows = s.staleRows
	}

	var b strings.Builder
	b.WriteString("<html><body>")
	if withTab {
		b.WriteString(`<div id="tab-tradeHistory"><div>Trade History</div></div>`)
	}
	b.WriteString(`<div class="css-g5h8k8"><div><div><div><table><tbody>`)
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, c := range row {
			fmt.Fprintf(&b, "<td>%s</td>", c)
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table></div></div></div></div></body></html>")

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, b.String())
}

func (s *sourceServer) set(fn func(s *sourceServer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func nowRow(symbol, side, qty, profit string) []string {
	return []string{time.Now().UTC().Format(page.TimeLayout), symbol + " Perpetual", side, "100.5", qty, profit + " USDT"}
}

type harness struct {
	task    *Task
	gateway *paper.Gateway
	dir     string
	cancel  context.CancelFunc
	runErr  chan error
}

func newHarness(t *testing.T, link string, mutate func(*types.TaskConfig)) *harness {
	t.Helper()
	return newTunedHarness(t, link, mutate, nil)
}

// newTunedHarness lets tune adjust options and dependencies before the task is built.
func newTunedHarness(t *testing.T, link string, mutate func(*types.TaskConfig), tune func(*Options, *Deps)) *harness {
	t.Helper()

	cfg := types.TaskConfig{
		ID:                  "t1",
		Link:                link,
		APIKey:              "key",
		APISecret:           "secret",
		Leverage:            5,
		TraderPortfolioSize: 10000,
		YourPortfolioSize:   1000,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	dir := t.TempDir()
	gw := paper.New()
	opts := Options{
		Page:              page.Options{LookupBackoff: time.Millisecond},
		PollInterval:      10 * time.Millisecond,
		RecoveryBackoff:   5 * time.Millisecond,
		SnapshotPath:      filepath.Join(dir, "trade_history_t1.json"),
		SnapshotRetention: time.Hour,
		Location:          time.UTC,
	}
	deps := Deps{
		Driver:   page.NewStaticDriver("", 2*time.Second),
		Gateway:  brokerobs.Wrap(gw),
		TradeLog: tradelog.New(filepath.Join(dir, "logs")),
	}
	if tune != nil {
		tune(&opts, &deps)
	}
	task, err := New(cfg, opts, deps)
	require.NoError(t, err)

	return &harness{task: task, gateway: gw, dir: dir}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.runErr = make(chan error, 1)
	go func() { h.runErr <- h.task.Run(ctx) }()

	t.Cleanup(func() {
		h.task.Stop()
		select {
		case <-h.task.Done():
		case <-time.After(5 * time.Second):
			t.Error("task did not stop")
		}
		cancel()
	})
}

func TestTaskUsesFreshRowsAfterTabReloads(t *testing.T) {
	src := &sourceServer{
		tabAfter:  3,
		staleRows: [][]string{nowRow("ETHUSDT", "Open Long", "2", "0.00")},
		rows:      [][]string{nowRow("BTCUSDT", "Open Long", "0.5", "0.00")},
	}
	srv := httptest.NewServer(src)
	defer srv.Close()

	h := newHarness(t, srv.URL+"/trader", nil)
	h.start(t)

	require.Eventually(t, func() bool { return h.task.Status().Cycles >= 3 }, 5*time.Second, 10*time.Millisecond)

	orders := h.gateway.Orders()
	require.Len(t, orders, 1, "the same trade is mirrored once across cycles")
	assert.Equal(t, "BTCUSDT", orders[0].Symbol)
	assert.Equal(t, types.Buy, orders[0].Action)
	assert.Equal(t, types.Long, orders[0].PositionSide)
	assert.Equal(t, "0.050", orders[0].QuantityText)
	assert.Equal(t, 5, orders[0].Leverage)
	assert.Len(t, orders[0].ClientOrderID, 36)

	st := h.task.Status()
	assert.True(t, st.Running)
	assert.Equal(t, int64(1), st.Processed)
	assert.Equal(t, int64(1), st.Orders)

	b, err := os.ReadFile(filepath.Join(h.dir, "trade_history_t1.json"))
	require.NoError(t, err)
	var recs []summary.Record
	require.NoError(t, json.Unmarshal(b, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "BTCUSDT", recs[0].Symbol)
	assert.Equal(t, 0.5, recs[0].Quantity)
}

func TestTaskSubmissionFailureIsNotRetried(t *testing.T) {
	src := &sourceServer{rows: [][]string{nowRow("BTCUSDT", "Open Short", "1", "0")}}
	srv := httptest.NewServer(src)
	defer srv.Close()

	h := newHarness(t, srv.URL, nil)
	h.gateway.FailNext(errors.New("margin is insufficient"))
	h.start(t)

	require.Eventually(t, func() bool {
		st := h.task.Status()
		return st.Processed == 1 && st.Cycles >= 3
	}, 5*time.Second, 10*time.Millisecond)

	assert.Empty(t, h.gateway.Orders())
	assert.Equal(t, int64(0), h.task.Status().Orders)

	logFile := filepath.Join(h.dir, "logs", "orders-"+time.Now().UTC().Format("2006-01-02")+".jsonl")
	b, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":"failed"`)
	assert.Contains(t, string(b), "margin is insufficient")
}

func TestTaskRecoversFromSourceOutage(t *testing.T) {
	src := &sourceServer{rows: [][]string{nowRow("BTCUSDT", "Open Long", "0.5", "0")}}
	srv := httptest.NewServer(src)
	defer srv.Close()

	h := newHarness(t, srv.URL, nil)
	h.start(t)

	require.Eventually(t, func() bool { return len(h.gateway.Orders()) == 1 }, 5*time.Second, 10*time.Millisecond)

	src.set(func(s *sourceServer) {
		s.failing = 4
		s.rows = append(s.rows, nowRow("BTCUSDT", "Close Long", "0.4", "5.25"))
	})

	require.Eventually(t, func() bool { return len(h.gateway.Orders()) == 2 }, 5*time.Second, 10*time.Millisecond)

	st := h.task.Status()
	assert.True(t, st.Running)
	assert.GreaterOrEqual(t, st.Recoveries, int64(1))
	assert.NotEmpty(t, st.LastError)

	closeOrder := h.gateway.Orders()[1]
	assert.Equal(t, types.Sell, closeOrder.Action)
	assert.Equal(t, types.Long, closeOrder.PositionSide)
	assert.Equal(t, "0.042", closeOrder.QuantityText)
}

// restartFailingDriver starts once, then fails the next two restarts.
type restartFailingDriver struct {
	*page.StaticDriver
	opens atomic.Int32
}

func (d *restartFailingDriver) Open(ctx context.Context) error {
	if n := d.opens.Add(1); n == 2 || n == 3 {
		return errors.New("chrome exited during restart")
	}
	return d.StaticDriver.Open(ctx)
}

func TestTaskKeepsRecoveringWhenDriverRestartFails(t *testing.T) {
	src := &sourceServer{rows: [][]string{nowRow("BTCUSDT", "Open Long", "0.5", "0")}}
	srv := httptest.NewServer(src)
	defer srv.Close()

	drv := &restartFailingDriver{StaticDriver: page.NewStaticDriver("", 2*time.Second)}
	h := newTunedHarness(t, srv.URL, nil, func(_ *Options, d *Deps) { d.Driver = drv })
	h.start(t)

	require.Eventually(t, func() bool { return len(h.gateway.Orders()) == 1 }, 5*time.Second, 10*time.Millisecond)

	src.set(func(s *sourceServer) {
		s.failing = 1
		s.rows = append(s.rows, nowRow("BTCUSDT", "Close Long", "0.4", "1.5"))
	})

	require.Eventually(t, func() bool { return len(h.gateway.Orders()) == 2 }, 5*time.Second, 10*time.Millisecond)

	st := h.task.Status()
	assert.True(t, st.Running)
	assert.GreaterOrEqual(t, st.Recoveries, int64(3))
	assert.GreaterOrEqual(t, drv.opens.Load(), int32(4))

	select {
	case err := <-h.runErr:
		t.Fatalf("task exited: %v", err)
	default:
	}
}

func TestStoppedTaskLeavesSuccessorSnapshot(t *testing.T) {
	src := &sourceServer{rows: [][]string{nowRow("BTCUSDT", "Open Long", "0.5", "0")}}
	srv := httptest.NewServer(src)
	defer srv.Close()

	h := newTunedHarness(t, srv.URL, nil, func(o *Options, _ *Deps) { o.SnapshotRetention = 150 * time.Millisecond })
	h.start(t)

	path := filepath.Join(h.dir, "trade_history_t1.json")
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil && len(h.gateway.Orders()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	h.task.Stop()
	select {
	case <-h.task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not stop")
	}

	// a restarted task with the same id takes over the file
	successor := summary.NewWriter(path, time.Hour, nil)
	defer successor.Stop()
	require.NoError(t, successor.Write([]summary.Record{{Symbol: "ETHUSDT", Side: "Open Short", Quantity: 2}}))

	time.Sleep(400 * time.Millisecond)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var recs []summary.Record
	require.NoError(t, json.Unmarshal(b, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "ETHUSDT", recs[0].Symbol)
}

type brokenDriver struct{ page.StaticDriver }

func (brokenDriver) Open(context.Context) error { return errors.New("chrome binary not found") }

func TestTaskDriverStartFailure(t *testing.T) {
	t.Parallel()

	task, err := New(types.TaskConfig{
		ID: "t1", Link: "http://127.0.0.1:1", APIKey: "k", APISecret: "s",
		Leverage: 1, TraderPortfolioSize: 1, YourPortfolioSize: 1,
	}, Options{SnapshotPath: filepath.Join(t.TempDir(), "snap.json")}, Deps{
		Driver:  &brokenDriver{},
		Gateway: paper.New(),
	})
	require.NoError(t, err)

	err = task.Run(context.Background())
	assert.ErrorIs(t, err, page.ErrDriverStart)

	st := task.Status()
	assert.False(t, st.Running)
	assert.Contains(t, st.LastError, "chrome binary not found")

	select {
	case <-task.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(types.TaskConfig{ID: "t1", Link: "x", APIKey: "k", APISecret: "s", Leverage: 1, TraderPortfolioSize: 0, YourPortfolioSize: 1},
		Options{}, Deps{Driver: &brokenDriver{}, Gateway: paper.New()})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = New(types.TaskConfig{ID: "t1", Link: "x", APIKey: "k", APISecret: "s", Leverage: 1, TraderPortfolioSize: 1, YourPortfolioSize: 1},
		Options{}, Deps{Gateway: paper.New()})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestClientOrderID(t *testing.T) {
	t.Parallel()

	key := types.EventKey("2024-05-01 12:00:00-BTCUSDT-Open Long-100")
	buy := types.OrderIntent{Action: types.Buy, PositionSide: types.Long}
	sell := types.OrderIntent{Action: types.Sell, PositionSide: types.Short, Reversed: true}

	a := ClientOrderID("t1", key, buy)
	assert.Equal(t, a, ClientOrderID("t1", key, buy))
	assert.NotEqual(t, a, ClientOrderID("t2", key, buy))
	assert.NotEqual(t, a, ClientOrderID("t1", key, sell))
	assert.Len(t, a, 36)
}
