package app

import "time"

// Config holds runtime configuration for one conversion.
type Config struct {
	// ArticleURL is the page to convert.
	ArticleURL string
	// OutputPath is where the PDF is written; empty means derive from the
	// article title.
	OutputPath string

	// Fetching
	ArticleTimeout  time.Duration
	ImageTimeout    time.Duration
	BrowserFallback bool

	// Images
	ImageMaxWidth    float64
	ImageConcurrency int

	// Extraction
	ContainerSelectors []string

	// Behavior
	Verbose bool
}
