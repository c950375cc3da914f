package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ProxySource vends proxy endpoints for outbound requests.
// Next returns ErrNoProxyAvailable when nothing is ready; Fail reports a dead endpoint.
type ProxySource interface {
	Next(ctx context.Context) (*url.URL, error)
	Fail(u *url.URL)
}

// FetcherOptions configures a Fetcher. Zero values pick the defaults.
type FetcherOptions struct {
	Timeout           time.Duration // per page request, default 15s
	RequestsPerSecond float64       // 0 = unlimited
	Proxies           ProxySource   // nil = direct connections
	MaxBodyBytes      int64         // page body cap, default 8 MiB
}

// Fetcher performs proxy-aware, rate-limited GETs. Pages are retried with the
// stealth retry policy; media downloads stream with no overall deadline.
type Fetcher struct {
	opts    FetcherOptions
	limiter *rate.Limiter

	mu      sync.Mutex
	clients map[string]*http.Client // proxy URL ("" = direct) → client
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 << 20
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(1, int(opts.RequestsPerSecond)))
	}
	return &Fetcher{opts: opts, limiter: limiter, clients: make(map[string]*http.Client)}
}

// ProxyURL returns the next proxy as a string for subprocess tools, or "" when
// no proxy is configured or ready.
func (f *Fetcher) ProxyURL(ctx context.Context) string {
	u := f.proxy(ctx)
	if u == nil {
		return ""
	}
	return u.String()
}

// GetPage fetches rawURL with Chrome-like headers and returns the decoded body.
// Non-2xx responses map to ErrRemoteNotFound (404/410) or ErrRemoteTransient.
func (f *Fetcher) GetPage(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	metrics.FetchRequests.Add(1)
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	proxyURL := f.proxy(ctx)
	client := f.client(proxyURL, f.opts.Timeout)

	resp, err := RetryHTTP(ctx, DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range ChromeHeaders() {
			req.Header.Set(k, v)
		}
		// readResponseBody only decodes gzip.
		req.Header.Set("Accept-Encoding", "gzip")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return client.Do(req)
	})
	if err != nil {
		metrics.FetchErrors.Add(1)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		if proxyURL != nil && f.opts.Proxies != nil {
			f.opts.Proxies.Fail(proxyURL)
		}
		return nil, fmt.Errorf("%w: get %s: %w", ErrRemoteTransient, rawURL, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		metrics.FetchErrors.Add(1)
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	body, err := readResponseBody(resp, f.opts.MaxBodyBytes)
	if err != nil {
		metrics.FetchErrors.Add(1)
		return nil, fmt.Errorf("%w: read %s: %w", ErrRemoteTransient, rawURL, err)
	}
	return body, nil
}

// Download streams rawURL into w. Only connection setup is retried; the body
// copy has no deadline other than ctx.
func (f *Fetcher) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	metrics.FetchRequests.Add(1)
	if err := f.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	client := f.client(f.proxy(ctx), 0)
	resp, err := fetchWithRetry(ctx, client, rawURL, "*/*")
	if err != nil {
		metrics.FetchErrors.Add(1)
		return 0, err
	}
	defer resp.Body.Close()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		metrics.FetchErrors.Add(1)
		return n, fmt.Errorf("%w: download %s: %w", ErrRemoteTransient, rawURL, err)
	}
	return n, nil
}

func (f *Fetcher) proxy(ctx context.Context) *url.URL {
	if f.opts.Proxies == nil {
		return nil
	}
	u, err := f.opts.Proxies.Next(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoProxyAvailable) {
			slog.Debug("fetch: proxy source failed", slog.Any("error", err))
		}
		return nil
	}
	return u
}

// client returns a cached client per proxy endpoint and timeout.
func (f *Fetcher) client(proxyURL *url.URL, timeout time.Duration) *http.Client {
	key := fmt.Sprintf("%v|%s", proxyURL, timeout)
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[key]; ok {
		return c
	}
	c := newFetchClient(proxyURL, timeout)
	f.clients[key] = c
	return c
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrRemoteNotFound, code)
	default:
		return fmt.Errorf("%w: status %d", ErrRemoteTransient, code)
	}
}
