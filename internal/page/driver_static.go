package page

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"trade-mirror-bot/internal/interfaces"
)

// StaticDriver fetches server-rendered HTML with colly. Click follows the element's
// href or data-href and is a no-op for controls without one.
type StaticDriver struct {
	UserAgent string
	Timeout   time.Duration

	collector *colly.Collector
	current   string
	body      []byte
	doc       *goquery.Document
}

var _ interfaces.PageDriver = (*StaticDriver)(nil)

func NewStaticDriver(userAgent string, timeout time.Duration) *StaticDriver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &StaticDriver{UserAgent: userAgent, Timeout: timeout}
}

func (d *StaticDriver) Open(ctx context.Context) error {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(d.Timeout)
	if d.UserAgent != "" {
		c.UserAgent = d.UserAgent
	}
	d.collector = c
	return ctx.Err()
}

func (d *StaticDriver) Navigate(ctx context.Context, u string) error {
	return d.fetch(ctx, u)
}

func (d *StaticDriver) Reload(ctx context.Context) error {
	if d.current == "" {
		return fmt.Errorf("reload: no page loaded")
	}
	return d.fetch(ctx, d.current)
}

func (d *StaticDriver) Exists(_ context.Context, selector string) (bool, error) {
	if d.doc == nil {
		return false, errDriverClosed
	}
	return d.doc.Find(selector).Length() > 0, nil
}

func (d *StaticDriver) Enabled(_ context.Context, selector string) (bool, error) {
	if d.doc == nil {
		return false, errDriverClosed
	}
	el := d.doc.Find(selector).First()
	if el.Length() == 0 {
		return false, nil
	}
	if _, disabled := el.Attr("disabled"); disabled {
		return false, nil
	}
	if v, _ := el.Attr("aria-disabled"); v == "true" {
		return false, nil
	}
	return !el.HasClass("disabled"), nil
}

func (d *StaticDriver) Click(ctx context.Context, selector string) error {
	if d.doc == nil {
		return errDriverClosed
	}
	el := d.doc.Find(selector).First()
	if el.Length() == 0 {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}

	href, ok := el.Attr("href")
	if !ok || href == "" {
		href, _ = el.Attr("data-href")
	}
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}

	base, err := url.Parse(d.current)
	if err != nil {
		return err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return fmt.Errorf("parse href %q: %w", href, err)
	}
	return d.fetch(ctx, base.ResolveReference(ref).String())
}

func (d *StaticDriver) HTML(_ context.Context) (string, error) {
	if d.doc == nil {
		return "", errDriverClosed
	}
	return string(d.body), nil
}

func (d *StaticDriver) Close() error {
	d.collector = nil
	d.doc = nil
	d.body = nil
	return nil
}

func (d *StaticDriver) fetch(ctx context.Context, u string) error {
	if d.collector == nil {
		return errDriverClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		body     []byte
		fetchErr error
	)
	c := d.collector.Clone()
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(u); err != nil {
		return fmt.Errorf("visit %s: %w", u, err)
	}
	c.Wait()
	if fetchErr != nil {
		return fmt.Errorf("visit %s: %w", u, fetchErr)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", u, err)
	}
	d.current, d.body, d.doc = u, body, doc
	return nil
}
