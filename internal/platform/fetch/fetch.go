package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/ratelimit"
)

// Some upstreams serve degraded or interstitial content to non-browser
// clients, so every request goes out with a desktop browser User-Agent.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// maxBodyBytes caps how much of an upstream page is read. Liveness markers
// and player data sit near the top of the document.
const maxBodyBytes = 5 << 20

// Page is the outcome of a successful HTTP exchange. A non-2xx status is not
// an error at this layer; callers decide what a 404 or 500 means for them.
type Page struct {
	Body       []byte
	StatusCode int
	FinalURL   *url.URL // request URL after redirects
}

// Client is a rate-limited HTTP client for upstream page and API fetches.
// All outbound requests across the process should share one Client so the
// leaky-bucket pacing actually bounds the upstream request rate.
type Client struct {
	http      *http.Client
	limiter   ratelimit.Limiter
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Useful for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUserAgent overrides the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New returns a Client whose outbound requests are paced to at most
// perSecond fetches per second (unlimited when perSecond <= 0) and abandoned
// after timeout.
func New(timeout time.Duration, perSecond int, opts ...Option) *Client {
	c := &Client{userAgent: defaultUserAgent}
	if perSecond > 0 {
		c.limiter = ratelimit.New(perSecond)
	} else {
		c.limiter = ratelimit.NewUnlimited()
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: timeout}
	}
	return c
}

// Get fetches rawURL following redirects and returns the capped body, the
// final post-redirect URL, and the response status. Extra headers are set
// after the defaults, so callers can override them.
func (c *Client) Get(ctx context.Context, rawURL string, header map[string]string) (*Page, error) {
	c.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer res.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(res.Body, maxBodyBytes)); err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", rawURL, err)
	}

	finalURL := res.Request.URL
	return &Page{Body: buf.Bytes(), StatusCode: res.StatusCode, FinalURL: finalURL}, nil
}
