// Package resolve downloads the images an article references. Fetches run
// concurrently with a bounded limit; every outcome is recorded per URL so the
// renderer can embed, degrade, or skip each image independently.
package resolve

import (
	"bytes"
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dywsy21/wechat2pdf/internal/article"
)

// ImageFetcher is the minimal fetch surface the resolver needs.
type ImageFetcher interface {
	Image(ctx context.Context, url string) ([]byte, error)
}

const (
	// DefaultConcurrency bounds in-flight image downloads.
	DefaultConcurrency = 4
	// DefaultRate spaces downloads out so the image CDN does not block the
	// client, mirroring the short pause a polite scraper takes.
	DefaultRate = rate.Limit(5)
)

// Resolver fetches image bytes for a set of URLs.
type Resolver struct {
	Fetcher ImageFetcher
	// Concurrency caps parallel downloads; zero means DefaultConcurrency.
	Concurrency int
	// Limiter paces downloads across all workers; nil means DefaultRate.
	Limiter *rate.Limiter
}

// Resolve fetches every URL once and returns a map keyed by original URL.
// Individual failures never abort the run; they are recorded as
// ImageFetchFailed and surface later as warnings.
func (r *Resolver) Resolve(ctx context.Context, urls []string) article.ImageSet {
	set := make(article.ImageSet, len(urls))
	if len(urls) == 0 {
		return set
	}

	limiter := r.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(DefaultRate, 1)
	}
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]article.Image, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				results[i] = article.Image{URL: u, State: article.ImageFetchFailed}
				return nil
			}
			results[i] = r.fetchOne(gctx, u)
			return nil
		})
	}
	_ = g.Wait()

	for _, img := range results {
		set[img.URL] = img
	}
	return set
}

func (r *Resolver) fetchOne(ctx context.Context, url string) article.Image {
	data, err := r.Fetcher.Image(ctx, url)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("image fetch failed")
		return article.Image{URL: url, State: article.ImageFetchFailed}
	}
	format := SniffFormat(data)
	if format == "" {
		log.Warn().Str("url", url).Msg("image bytes are not a supported format")
		return article.Image{URL: url, State: article.ImageFetchFailed}
	}
	return article.Image{URL: url, State: article.ImageReady, Bytes: data, Format: format}
}

// SniffFormat identifies the image container from magic bytes. It returns the
// format names the PDF writer understands, or "" for anything else.
func SniffFormat(data []byte) string {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "JPG"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "PNG"
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "GIF"
	default:
		return ""
	}
}
