package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"trade-mirror-bot/internal/interfaces"
)

var errDriverClosed = errors.New("driver is not open")

// ChromeDriver renders the source in headless Chrome.
type ChromeDriver struct {
	Headless  bool
	UserAgent string
	Timeout   time.Duration

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

var _ interfaces.PageDriver = (*ChromeDriver)(nil)

func NewChromeDriver(headless bool, userAgent string, timeout time.Duration) *ChromeDriver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeDriver{Headless: headless, UserAgent: userAgent, Timeout: timeout}
}

func (d *ChromeDriver) Open(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("headless", d.Headless),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if d.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(d.UserAgent))
	}

	// The browser outlives the ctx of the call that opened it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	bctx, cancel := chromedp.NewContext(allocCtx)
	d.ctx, d.cancel, d.allocCancel = bctx, cancel, allocCancel

	if err := d.run(ctx); err != nil {
		d.Close()
		return fmt.Errorf("start chrome: %w", err)
	}
	return nil
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *ChromeDriver) Reload(ctx context.Context) error {
	return d.run(ctx, chromedp.Reload())
}

func (d *ChromeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := d.run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector)), &ok))
	return ok, err
}

func (d *ChromeDriver) Enabled(ctx context.Context, selector string) (bool, error) {
	const script = `(function(e){
		if (!e) return false;
		if (e.disabled || e.getAttribute('aria-disabled') === 'true') return false;
		return !e.classList.contains('disabled');
	})(document.querySelector(%s))`
	var ok bool
	err := d.run(ctx, chromedp.Evaluate(fmt.Sprintf(script, jsString(selector)), &ok))
	return ok, err
}

func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
}

func (d *ChromeDriver) HTML(ctx context.Context) (string, error) {
	var html string
	err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (d *ChromeDriver) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	d.ctx, d.cancel, d.allocCancel = nil, nil, nil
	return nil
}

// run executes actions against the browser tab, bounded by Timeout and by the caller's ctx.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	if d.ctx == nil {
		return errDriverClosed
	}
	rctx, cancel := context.WithTimeout(d.ctx, d.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(rctx, actions...)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
