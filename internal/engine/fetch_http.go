package engine

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// newFetchClient creates an HTTP client routed through proxyURL (nil = direct).
// timeout 0 means no overall deadline, used for streamed media.
func newFetchClient(proxyURL *url.URL, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// FetchDirect GETs rawURL on client with exponential backoff and returns the body.
// Used where no proxy may be involved (e.g. fetching the proxy list itself).
func FetchDirect(ctx context.Context, client *http.Client, rawURL string, limit int64) ([]byte, error) {
	if client == nil {
		client = newFetchClient(nil, 15*time.Second)
	}
	resp, err := fetchWithRetry(ctx, client, rawURL, "text/plain,*/*;q=0.9")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readResponseBody(resp, limit)
}

// fetchWithRetry performs an HTTP GET with retry logic using exponential backoff.
// Retryable statuses are retried; other failures are permanent.
func fetchWithRetry(ctx context.Context, client *http.Client, fetchURL, accept string) (*http.Response, error) {
	operation := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", RandomUserAgent())
		req.Header.Set("Accept", accept)
		req.Header.Set("Accept-Encoding", "gzip")

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
			}
			return nil, fmt.Errorf("%w: %w", ErrRemoteTransient, err)
		}

		if IsRetryableStatus(resp.StatusCode) {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status %d", ErrRemoteTransient, resp.StatusCode)
		}
		if err := statusError(resp.StatusCode); err != nil {
			resp.Body.Close()
			return nil, backoff.Permanent(err)
		}
		return resp, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 10 * time.Second

	resp, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3), backoff.WithMaxElapsedTime(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", fetchURL, err)
	}
	return resp, nil
}

// readResponseBody reads at most limit bytes, handling gzip decompression if needed.
func readResponseBody(resp *http.Response, limit int64) ([]byte, error) {
	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	return io.ReadAll(r)
}
