package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Probe defaults.
const (
	DefaultProbeURL      = "https://www.youtube.com/generate_204"
	DefaultProbeTimeout  = 5 * time.Second
	DefaultProbeAttempts = 3
	DefaultProbeBackoff  = 2 * time.Second
)

// CheckConnectivity reports whether url answers a HEAD request within timeout.
// Any HTTP response counts as reachable.
func CheckConnectivity(ctx context.Context, client *http.Client, url string, timeout time.Duration) bool {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", RandomUserAgent())
	resp, err := client.Do(req)
	if err != nil {
		slog.Debug("connectivity: probe failed", slog.String("url", url), slog.Any("error", err))
		return false
	}
	resp.Body.Close()
	return true
}

// WaitForConnectivity runs probe up to attempts times, sleeping delay between
// tries. Returns ErrNoConnectivity when every attempt fails.
func WaitForConnectivity(ctx context.Context, probe func(context.Context) bool, attempts int, delay time.Duration) error {
	if attempts <= 0 {
		attempts = DefaultProbeAttempts
	}
	for i := 1; i <= attempts; i++ {
		if probe(ctx) {
			return nil
		}
		slog.Warn("connectivity: probe failed", slog.Int("attempt", i), slog.Int("of", attempts))
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case <-time.After(delay):
		}
	}
	return ErrNoConnectivity
}
