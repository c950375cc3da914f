package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	FetchRequests       atomic.Int64
	FetchErrors         atomic.Int64
	ChannelSearches     atomic.Int64
	CatalogueEntries    atomic.Int64
	ThumbnailFailures   atomic.Int64
	TranscriptsSaved    atomic.Int64
	CommentBlobsSaved   atomic.Int64
	YtdlpRuns           atomic.Int64
	ProxyValidations    atomic.Int64
	ProxyValidationsBad atomic.Int64
	RunsStarted         atomic.Int64
	RunsFailed          atomic.Int64
}

var metricKeys = []string{
	"fetch_requests", "fetch_errors",
	"channel_searches", "catalogue_entries", "thumbnail_failures",
	"transcripts_saved", "comment_blobs_saved", "ytdlp_runs",
	"proxy_validations", "proxy_validations_failed",
	"runs_started", "runs_failed",
	"cache_hits", "cache_misses",
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"fetch_requests":           metrics.FetchRequests.Load(),
		"fetch_errors":             metrics.FetchErrors.Load(),
		"channel_searches":         metrics.ChannelSearches.Load(),
		"catalogue_entries":        metrics.CatalogueEntries.Load(),
		"thumbnail_failures":       metrics.ThumbnailFailures.Load(),
		"transcripts_saved":        metrics.TranscriptsSaved.Load(),
		"comment_blobs_saved":      metrics.CommentBlobsSaved.Load(),
		"ytdlp_runs":               metrics.YtdlpRuns.Load(),
		"proxy_validations":        metrics.ProxyValidations.Load(),
		"proxy_validations_failed": metrics.ProxyValidationsBad.Load(),
		"runs_started":             metrics.RunsStarted.Load(),
		"runs_failed":              metrics.RunsFailed.Load(),
		"cache_hits":               hits,
		"cache_misses":             misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sub-packages.
func IncrChannelSearch()    { metrics.ChannelSearches.Add(1) }
func IncrCatalogueEntry()   { metrics.CatalogueEntries.Add(1) }
func IncrThumbnailFailure() { metrics.ThumbnailFailures.Add(1) }
func IncrTranscriptSaved()  { metrics.TranscriptsSaved.Add(1) }
func IncrCommentBlobSaved() { metrics.CommentBlobsSaved.Add(1) }
func IncrYtdlpRun()         { metrics.YtdlpRuns.Add(1) }
func IncrRunStarted()       { metrics.RunsStarted.Add(1) }
func IncrRunFailed()        { metrics.RunsFailed.Add(1) }

// IncrProxyValidation counts one validation attempt and its outcome.
func IncrProxyValidation(ok bool) {
	metrics.ProxyValidations.Add(1)
	if !ok {
		metrics.ProxyValidationsBad.Add(1)
	}
}

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
