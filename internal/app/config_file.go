package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the single-file configuration schema. Nested sections map
// naturally to flag names.
type FileConfig struct {
	Output string `yaml:"output" json:"output"`

	Timeout struct {
		Article time.Duration `yaml:"article" json:"article"`
		Image   time.Duration `yaml:"image" json:"image"`
	} `yaml:"timeout" json:"timeout"`

	Image struct {
		MaxWidth    float64 `yaml:"maxWidth" json:"maxWidth"`
		Concurrency int     `yaml:"concurrency" json:"concurrency"`
	} `yaml:"image" json:"image"`

	Browser struct {
		Fallback *bool `yaml:"fallback" json:"fallback"`
	} `yaml:"browser" json:"browser"`

	// Selectors overrides the content container selector chain, tried in
	// order, first match wins.
	Selectors []string `yaml:"selectors" json:"selectors"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// Apply overlays file values onto cfg. Only set fields are applied, so flag
// values given on the command line keep precedence when the caller applies
// the file before re-applying explicit flags.
func (fc FileConfig) Apply(cfg *Config) {
	if fc.Output != "" {
		cfg.OutputPath = fc.Output
	}
	if fc.Timeout.Article > 0 {
		cfg.ArticleTimeout = fc.Timeout.Article
	}
	if fc.Timeout.Image > 0 {
		cfg.ImageTimeout = fc.Timeout.Image
	}
	if fc.Image.MaxWidth > 0 {
		cfg.ImageMaxWidth = fc.Image.MaxWidth
	}
	if fc.Image.Concurrency > 0 {
		cfg.ImageConcurrency = fc.Image.Concurrency
	}
	if fc.Browser.Fallback != nil {
		cfg.BrowserFallback = *fc.Browser.Fallback
	}
	if len(fc.Selectors) > 0 {
		cfg.ContainerSelectors = fc.Selectors
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
}
