package page

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"trade-mirror-bot/internal/interfaces"
	"trade-mirror-bot/internal/logger"
)

var (
	// ErrDriverStart means the rendering mechanism could not be started.
	ErrDriverStart = errors.New("page driver failed to start")
	// ErrElementNotFound is a soft failure after bounded lookup retries.
	ErrElementNotFound = errors.New("element not found")
	// ErrNoRows means the current page shows no history rows.
	ErrNoRows = errors.New("no history rows on page")
)

type State int32

const (
	Disconnected State = iota
	Connecting
	ConsentPending
	ConsentAccepted
	OnHistoryTab
	Paging
	RecoveringFromError
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case ConsentPending:
		return "consent_pending"
	case ConsentAccepted:
		return "consent_accepted"
	case OnHistoryTab:
		return "on_history_tab"
	case Paging:
		return "paging"
	case RecoveringFromError:
		return "recovering"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type Selectors struct {
	Consent    string
	HistoryTab string
	Rows       string
	NextPage   string
}

// Options configure a Session. Zero values take the defaults below.
type Options struct {
	Link           string
	Selectors      Selectors
	LookupAttempts int
	LookupBackoff  time.Duration
	SettleDelay    time.Duration
}

func (o *Options) applyDefaults() {
	if o.Selectors.Consent == "" {
		o.Selectors.Consent = "#onetrust-accept-btn-handler"
	}
	if o.Selectors.HistoryTab == "" {
		o.Selectors.HistoryTab = "#tab-tradeHistory > div"
	}
	if o.Selectors.Rows == "" {
		o.Selectors.Rows = ".css-g5h8k8 > div > div > div > table > tbody > tr"
	}
	if o.Selectors.NextPage == "" {
		o.Selectors.NextPage = "div.bn-pagination-next"
	}
	if o.LookupAttempts <= 0 {
		o.LookupAttempts = 3
	}
}

// Session drives one PageDriver through consent, the trade-history tab and pagination.
// All methods except State and IsHealthy must be called from the owning task goroutine.
type Session struct {
	driver interfaces.PageDriver
	opts   Options
	state  atomic.Int32
	page   int
	open   bool
}

func NewSession(driver interfaces.PageDriver, opts Options) *Session {
	opts.applyDefaults()
	return &Session{driver: driver, opts: opts}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Page is the 1-based page cursor.
func (s *Session) Page() int {
	return s.page
}

// Connect opens the driver, loads the source, dismisses consent and opens the history tab.
// Only a driver start failure wraps ErrDriverStart; it leaves the session Disconnected.
func (s *Session) Connect(ctx context.Context) error {
	s.setState(Connecting)

	if err := s.driver.Open(ctx); err != nil {
		s.setState(Disconnected)
		return fmt.Errorf("%w: %v", ErrDriverStart, err)
	}
	s.open = true

	if err := s.driver.Navigate(ctx, s.opts.Link); err != nil {
		return fmt.Errorf("navigate %s: %w", s.opts.Link, err)
	}
	logger.Debug(ctx, "Page session connected", "link", s.opts.Link)

	s.setState(ConsentPending)
	s.acceptConsent(ctx)
	s.setState(ConsentAccepted)

	return s.OpenHistoryTab(ctx)
}

func (s *Session) acceptConsent(ctx context.Context) {
	if err := sleep(ctx, s.opts.SettleDelay); err != nil {
		return
	}
	if err := s.clickWithRetry(ctx, s.opts.Selectors.Consent); err != nil {
		logger.Warn(ctx, "Consent prompt not dismissed", "error", err)
		return
	}
	logger.Debug(ctx, "Consent accepted")
	_ = sleep(ctx, s.opts.SettleDelay)
}

// OpenHistoryTab activates the trade-history tab, reloading the page after every failed
// attempt until it succeeds or ctx is done.
func (s *Session) OpenHistoryTab(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := s.clickWithRetry(ctx, s.opts.Selectors.HistoryTab)
		if err == nil {
			s.page = 1
			s.setState(OnHistoryTab)
			if attempt > 1 {
				logger.Info(ctx, "Trade history tab opened after reload", "attempts", attempt)
			}
			return sleep(ctx, s.opts.SettleDelay)
		}
		if !errors.Is(err, ErrElementNotFound) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Warn(ctx, "Trade history tab not found, reloading", "attempt", attempt)
		if err := s.driver.Reload(ctx); err != nil {
			return fmt.Errorf("reload page: %w", err)
		}
	}
}

// CurrentRows returns the rows visible on the current page, or ErrNoRows.
func (s *Session) CurrentRows(ctx context.Context) ([]RawRow, error) {
	html, err := s.driver.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	rows, err := ParseRows(html, s.opts.Selectors.Rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows, nil
}

// AdvancePage clicks the next-page control. It reports false when there is no enabled next page.
func (s *Session) AdvancePage(ctx context.Context) (bool, error) {
	sel := s.opts.Selectors.NextPage
	ok, err := s.driver.Exists(ctx, sel)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	enabled, err := s.driver.Enabled(ctx, sel)
	if err != nil {
		return false, err
	}
	if !enabled {
		return false, nil
	}

	if err := s.driver.Click(ctx, sel); err != nil {
		return false, fmt.Errorf("click next page: %w", err)
	}
	s.page++
	s.setState(Paging)
	return true, sleep(ctx, s.opts.SettleDelay)
}

// ResetToFirstPage reloads the source link and reopens the history tab.
func (s *Session) ResetToFirstPage(ctx context.Context) error {
	if err := s.driver.Navigate(ctx, s.opts.Link); err != nil {
		return fmt.Errorf("navigate to first page: %w", err)
	}
	if err := sleep(ctx, s.opts.SettleDelay); err != nil {
		return err
	}
	return s.OpenHistoryTab(ctx)
}

// MarkRecovering flags the session as being rebuilt after a cycle failure.
func (s *Session) MarkRecovering() {
	s.setState(RecoveringFromError)
}

func (s *Session) IsHealthy() bool {
	st := s.State()
	return st == OnHistoryTab || st == Paging
}

// Close releases the driver. It is safe to call more than once.
func (s *Session) Close() error {
	s.setState(Disconnected)
	if !s.open {
		return nil
	}
	s.open = false
	return s.driver.Close()
}

// clickWithRetry waits for selector with bounded retries, then clicks it.
func (s *Session) clickWithRetry(ctx context.Context, selector string) error {
	if err := s.lookup(ctx, selector); err != nil {
		return err
	}
	if err := s.driver.Click(ctx, selector); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (s *Session) lookup(ctx context.Context, selector string) error {
	for attempt := 1; attempt <= s.opts.LookupAttempts; attempt++ {
		ok, err := s.driver.Exists(ctx, selector)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", selector, err)
		}
		if ok {
			return nil
		}
		if attempt < s.opts.LookupAttempts {
			if err := sleep(ctx, s.opts.LookupBackoff); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrElementNotFound, selector, s.opts.LookupAttempts)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
