// Package fetch retrieves article markup and image bytes over HTTP with the
// request shaping the WeChat platform expects.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Error taxonomy for fetch failures. Callers discriminate with errors.Is.
var (
	// ErrNetwork covers transport failures and request timeouts.
	ErrNetwork = errors.New("network error")
	// ErrNotFound covers 4xx-class responses: the resource is absent.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidContent means the response was not the expected document type.
	ErrInvalidContent = errors.New("invalid content type")
)

const (
	// userAgent mirrors a desktop Chrome profile; the platform serves reduced
	// pages to obvious bots.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	// imageReferer is required by the platform's image CDN.
	imageReferer = "https://mp.weixin.qq.com/"

	DefaultArticleTimeout = 30 * time.Second
	DefaultImageTimeout   = 10 * time.Second
)

// BrowserFallback renders a page through a real browser engine when the plain
// HTTP response looks bot-walled. Implemented by the browser package.
type BrowserFallback interface {
	Render(ctx context.Context, url string) ([]byte, error)
}

// Client wraps http.Client with timeouts, limited retry on transient errors,
// and an optional browser fallback for bot-walled article pages.
type Client struct {
	HTTPClient *http.Client
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts    int
	ArticleTimeout time.Duration
	ImageTimeout   time.Duration
	// Browser, when set, is tried once if the fetched page lacks the
	// platform's content markers.
	Browser BrowserFallback

	// MaxConcurrent limits concurrent in-flight requests per client instance.
	// Zero means unlimited.
	MaxConcurrent int

	limiter     chan struct{}
	limiterOnce sync.Once
}

// Article retrieves the raw markup for an article URL. It returns
// ErrInvalidContent when the response is not HTML, ErrNotFound on 4xx, and
// ErrNetwork on transport failures or exhausted retries.
func (c *Client) Article(ctx context.Context, rawURL string) ([]byte, error) {
	timeout := c.ArticleTimeout
	if timeout <= 0 {
		timeout = DefaultArticleTimeout
	}
	body, ct, err := c.get(ctx, rawURL, timeout, nil)
	if err != nil {
		return nil, err
	}
	if !isHTMLContentType(ct) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContent, ct)
	}
	if looksBotWalled(body) && c.Browser != nil {
		log.Warn().Str("url", rawURL).Msg("page lacks content markers, retrying through browser")
		rendered, rerr := c.Browser.Render(ctx, rawURL)
		if rerr != nil {
			log.Warn().Err(rerr).Msg("browser fallback failed, keeping plain response")
			return body, nil
		}
		return rendered, nil
	}
	return body, nil
}

// Image retrieves raw image bytes. Failures are recoverable: callers omit the
// image rather than aborting the conversion.
func (c *Client) Image(ctx context.Context, rawURL string) ([]byte, error) {
	timeout := c.ImageTimeout
	if timeout <= 0 {
		timeout = DefaultImageTimeout
	}
	headers := map[string]string{"Referer": imageReferer}
	body, _, err := c.get(ctx, rawURL, timeout, headers)
	return body, err
}

func (c *Client) get(ctx context.Context, rawURL string, timeout time.Duration, headers map[string]string) ([]byte, string, error) {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		body, ct, retryable, err := c.tryOnce(ctx, rawURL, timeout, headers)
		if err == nil {
			return body, ct, nil
		}
		if !retryable || i == attempts-1 {
			return nil, "", err
		}
		lastErr = err
		time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = ErrNetwork
	}
	return nil, "", lastErr
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, timeout time.Duration, headers map[string]string) (body []byte, contentType string, retryable bool, err error) {
	c.acquire()
	defer c.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", false, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if req.URL == nil || !isHTTPScheme(req.URL) {
		return nil, "", false, fmt.Errorf("%w: unsupported URL scheme %q", ErrNetwork, rawURL)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(req.Context(), timeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		// Timeouts and transport errors are worth one more attempt.
		return nil, "", true, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, "", true, fmt.Errorf("%w: server error %d", ErrNetwork, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, "", false, fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, "", false, fmt.Errorf("%w: unexpected status %d", ErrNetwork, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", true, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}
	return b, resp.Header.Get("Content-Type"), false, nil
}

// looksBotWalled reports whether a 200 response is missing the platform's
// content container markers, which is how the platform serves verification
// pages to suspected bots.
func looksBotWalled(body []byte) bool {
	s := string(body)
	return !strings.Contains(s, "rich_media_content") && !strings.Contains(s, "js_content")
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func (c *Client) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	c.limiter <- struct{}{}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}
