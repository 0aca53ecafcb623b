// Package browser renders pages through headless Chrome for articles the
// platform refuses to serve to plain HTTP clients.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// contentReadySelector matches the platform's article container once scripted
// content has loaded.
const contentReadySelector = "div.rich_media_content, div#js_content"

// settleDelay gives late-loading media a moment after the container appears.
const settleDelay = 2 * time.Second

// Fetcher drives a headless Chrome instance. Close must be called when the
// Fetcher is no longer needed. Safe for concurrent use.
type Fetcher struct {
	browser *rod.Browser
}

// NewFetcher launches headless Chrome and connects to it.
func NewFetcher() (*Fetcher, error) {
	l := launcher.New().Headless(true)
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	return &Fetcher{browser: b}, nil
}

// Render navigates to url, waits for the article container to appear, and
// returns the rendered HTML.
func (f *Fetcher) Render(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := f.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return nil, err
	}
	if err := page.WaitLoad(); err != nil {
		return nil, err
	}
	// Block until the content container exists; the page shell loads well
	// before the article body does.
	if _, err := page.Element(contentReadySelector); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("content container never appeared in browser")
	} else if err := sleepCtx(ctx, settleDelay); err != nil {
		return nil, err
	}

	html, err := page.HTML()
	if err != nil {
		return nil, err
	}
	return []byte(html), nil
}

// Close releases browser resources.
func (f *Fetcher) Close() error {
	return f.browser.Close()
}

// sleepCtx pauses for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
