package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dywsy21/wechat2pdf/internal/app"
	"github.com/dywsy21/wechat2pdf/internal/extract"
	"github.com/dywsy21/wechat2pdf/internal/fetch"
	"github.com/dywsy21/wechat2pdf/internal/render"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		outputPath       string
		articleTimeout   time.Duration
		imageTimeout     time.Duration
		imageMaxWidth    float64
		imageConcurrency int
		browserFallback  bool
		selectors        string
		configPath       string
		verbose          bool
	)

	flag.StringVar(&outputPath, "output", "", "Path for the output PDF (default: derived from the article title)")
	flag.DurationVar(&articleTimeout, "timeout.article", fetch.DefaultArticleTimeout, "Timeout for fetching the article page")
	flag.DurationVar(&imageTimeout, "timeout.image", fetch.DefaultImageTimeout, "Timeout for fetching each image")
	flag.Float64Var(&imageMaxWidth, "image.maxWidth", render.DefaultImageMaxWidth, "Maximum embedded image width in mm")
	flag.IntVar(&imageConcurrency, "image.concurrency", 4, "Concurrent image downloads")
	flag.BoolVar(&browserFallback, "browser.fallback", true, "Retry bot-walled pages through headless Chrome")
	flag.StringVar(&selectors, "selectors", "", "Comma-separated content container selector chain override")
	flag.StringVar(&configPath, "config", os.Getenv("WECHAT2PDF_CONFIG"), "Path to YAML/JSON config file")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <article-url>\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := app.Config{
		ArticleURL:       flag.Arg(0),
		OutputPath:       outputPath,
		ArticleTimeout:   articleTimeout,
		ImageTimeout:     imageTimeout,
		ImageMaxWidth:    imageMaxWidth,
		ImageConcurrency: imageConcurrency,
		BrowserFallback:  browserFallback,
		Verbose:          verbose,
	}

	// Config file values fill in anything the flags left at defaults; flags
	// given explicitly on the command line win.
	if strings.TrimSpace(configPath) != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Error().Err(err).Str("path", configPath).Msg("cannot load config file")
			os.Exit(2)
		}
		fc.Apply(&cfg)
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "output":
				cfg.OutputPath = outputPath
			case "timeout.article":
				cfg.ArticleTimeout = articleTimeout
			case "timeout.image":
				cfg.ImageTimeout = imageTimeout
			case "image.maxWidth":
				cfg.ImageMaxWidth = imageMaxWidth
			case "image.concurrency":
				cfg.ImageConcurrency = imageConcurrency
			case "browser.fallback":
				cfg.BrowserFallback = browserFallback
			}
		})
	}

	if s := strings.TrimSpace(selectors); s != "" {
		parts := strings.Split(s, ",")
		list := make([]string, 0, len(parts))
		for _, p := range parts {
			if v := strings.TrimSpace(p); v != "" {
				list = append(list, v)
			}
		}
		cfg.ContainerSelectors = list
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	result, err := run(cfg)
	if err != nil {
		log.Error().Err(err).Msg("conversion failed")
		os.Exit(exitCode(err))
	}
	for _, w := range result.Warnings {
		log.Warn().Msg(w)
	}
	fmt.Println(result.OutputPath)
}

// exitCode maps the error taxonomy onto distinct exit codes so scripts can
// tell "article unreachable" from "article unrecognized".
func exitCode(err error) int {
	switch {
	case errors.Is(err, fetch.ErrNotFound):
		return 3
	case errors.Is(err, fetch.ErrNetwork), errors.Is(err, fetch.ErrInvalidContent):
		return 4
	case errors.Is(err, extract.ErrStructureNotFound), errors.Is(err, render.ErrEmptyDocument):
		return 5
	case errors.Is(err, app.ErrFilesystem):
		return 6
	default:
		return 1
	}
}

func run(cfg app.Config) (app.Result, error) {
	ctx := context.Background()

	a, err := app.New(cfg)
	if err != nil {
		return app.Result{}, fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}
