package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dywsy21/wechat2pdf/internal/article"
	"github.com/dywsy21/wechat2pdf/internal/browser"
	"github.com/dywsy21/wechat2pdf/internal/extract"
	"github.com/dywsy21/wechat2pdf/internal/fetch"
	"github.com/dywsy21/wechat2pdf/internal/render"
	"github.com/dywsy21/wechat2pdf/internal/resolve"
)

// ErrFilesystem means the rendered document could not be written out.
var ErrFilesystem = errors.New("cannot write output")

// expectedHost is the platform host articles normally live on. Other hosts
// get a warning, not a refusal, since mirrors exist.
const expectedHost = "mp.weixin.qq.com"

// Stage names the orchestrator's position in the conversion pipeline.
type Stage int

const (
	StageInit Stage = iota
	StageFetching
	StageExtracting
	StageResolvingImages
	StageRendering
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "init"
	case StageFetching:
		return "fetching"
	case StageExtracting:
		return "extracting"
	case StageResolvingImages:
		return "resolving-images"
	case StageRendering:
		return "rendering"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a successful conversion: the path written plus any
// non-fatal warnings accumulated along the way (missing images, skipped
// blocks).
type Result struct {
	OutputPath string
	Warnings   []string
}

// App orchestrates one conversion: fetch markup, extract blocks, resolve
// images, render, write. The pipeline is strictly one-way and all state is
// owned by this one run.
type App struct {
	cfg     Config
	fetcher *fetch.Client
	browser *lazyBrowser
	stage   Stage
}

// New validates the article URL and assembles the pipeline.
func New(cfg Config) (*App, error) {
	u, err := url.Parse(cfg.ArticleURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid article URL: %q", cfg.ArticleURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid article URL scheme: %q", u.Scheme)
	}
	if u.Host != expectedHost {
		log.Warn().Str("host", u.Host).Msg("URL is not a mp.weixin.qq.com article; extraction may fall back to generic selectors")
	}

	a := &App{cfg: cfg, stage: StageInit}
	a.fetcher = &fetch.Client{
		HTTPClient:     newHTTPClient(),
		MaxAttempts:    2,
		ArticleTimeout: cfg.ArticleTimeout,
		ImageTimeout:   cfg.ImageTimeout,
		MaxConcurrent:  8,
	}
	if cfg.BrowserFallback {
		a.browser = &lazyBrowser{}
		a.fetcher.Browser = a.browser
	}
	return a, nil
}

// Close releases the browser if the fallback ever launched it.
func (a *App) Close() {
	if a.browser != nil {
		a.browser.Close()
	}
}

// Stage reports the pipeline's current position; after a failed run it holds
// StageFailed.
func (a *App) Stage() Stage {
	return a.stage
}

func (a *App) enter(s Stage) {
	a.stage = s
	log.Debug().Str("stage", s.String()).Msg("pipeline stage")
}

// Run executes the conversion. Fatal errors (unreachable markup, unrecognized
// structure, zero content, unwritable output) abort with a typed error and no
// partial file; image failures degrade to placeholders and come back as
// warnings on the Result.
func (a *App) Run(ctx context.Context) (Result, error) {
	fail := func(err error) (Result, error) {
		a.stage = StageFailed
		return Result{}, err
	}

	a.enter(StageFetching)
	markup, err := a.fetcher.Article(ctx, a.cfg.ArticleURL)
	if err != nil {
		return fail(fmt.Errorf("fetch article: %w", err))
	}

	a.enter(StageExtracting)
	ex := &extract.Extractor{ContainerSelectors: a.cfg.ContainerSelectors}
	art, err := ex.Extract(markup, a.cfg.ArticleURL)
	if err != nil {
		return fail(fmt.Errorf("extract content: %w", err))
	}
	if len(art.Blocks) == 0 {
		return fail(fmt.Errorf("extract content: %w", render.ErrEmptyDocument))
	}
	log.Info().Str("title", art.Title).Int("blocks", len(art.Blocks)).Msg("extracted article")

	a.enter(StageResolvingImages)
	resolver := &resolve.Resolver{
		Fetcher:     a.fetcher,
		Concurrency: a.cfg.ImageConcurrency,
		Limiter:     rate.NewLimiter(resolve.DefaultRate, 1),
	}
	images := resolver.Resolve(ctx, art.ImageURLs())
	warnings := imageWarnings(art, images)

	a.enter(StageRendering)
	renderer := &render.Renderer{ImageMaxWidth: a.cfg.ImageMaxWidth}
	pdf, renderWarnings, err := renderer.Render(art, images)
	if err != nil {
		return fail(fmt.Errorf("render document: %w", err))
	}
	warnings = append(warnings, renderWarnings...)

	outPath := deriveOutputPath(a.cfg.OutputPath, art.Title)
	if err := writeFileAtomic(outPath, pdf); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrFilesystem, err))
	}

	a.enter(StageDone)
	log.Info().Str("out", outPath).Int("warnings", len(warnings)).Msg("wrote document")
	return Result{OutputPath: outPath, Warnings: warnings}, nil
}

// imageWarnings converts per-image failures into user-facing warnings, one
// per affected block position.
func imageWarnings(art article.Article, images article.ImageSet) []string {
	var warnings []string
	for i, b := range art.Blocks {
		if b.Kind != article.KindImage {
			continue
		}
		if b.ImageURL == "" {
			warnings = append(warnings, fmt.Sprintf("block %d: image has no resolvable source", i+1))
			continue
		}
		if img := images.Lookup(b.ImageURL); img.State != article.ImageReady {
			warnings = append(warnings, fmt.Sprintf("block %d: image could not be fetched: %s", i+1, b.ImageURL))
		}
	}
	return warnings
}

// lazyBrowser defers launching headless Chrome until the fallback is actually
// needed; most articles never hit the bot wall.
type lazyBrowser struct {
	once    sync.Once
	fetcher *browser.Fetcher
	err     error
}

func (l *lazyBrowser) Render(ctx context.Context, url string) ([]byte, error) {
	l.once.Do(func() {
		l.fetcher, l.err = browser.NewFetcher()
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.fetcher.Render(ctx, url)
}

func (l *lazyBrowser) Close() {
	if l.fetcher != nil {
		_ = l.fetcher.Close()
	}
}
