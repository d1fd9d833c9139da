package interfaces

import "context"

// PageDriver is the rendering mechanism behind a page session.
// Selectors are CSS selectors.
type PageDriver interface {
	Open(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Exists(ctx context.Context, selector string) (bool, error)
	Enabled(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	HTML(ctx context.Context) (string, error)
	Close() error
}
