// statube: YouTube channel statistics MCP server.
//
// Searches channels, catalogues their videos, downloads transcripts and
// comment trees, and renders sentiment charts and word clouds from them.
// Runs as HTTP MCP server or stdio transport.
package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/anatolykoptev/statube/internal/engine/analysis"
	"github.com/anatolykoptev/statube/internal/engine/pipeline"
	"github.com/anatolykoptev/statube/internal/engine/proxy"
	"github.com/anatolykoptev/statube/internal/engine/sources"
	"github.com/anatolykoptev/statube/internal/engine/store"
	"github.com/anatolykoptev/statube/internal/statserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	version = "dev"
	mcpPort = env.Str("MCP_PORT", "8893")
)

func main() {
	initEngine()

	logDir, err := engine.LogDir()
	if err == nil {
		var closer io.Closer
		closer, err = engine.InitLogger(logDir, engine.Cfg.LogLevel)
		if err == nil {
			defer closer.Close()
		}
	}
	if err != nil {
		slog.Warn("file logging disabled", slog.Any("error", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root, err := engine.AppDataRoot()
	if err != nil {
		slog.Error("app data root", slog.Any("error", err))
		os.Exit(1)
	}
	st, err := store.Open(ctx, root)
	if err != nil {
		slog.Error("store open failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	cache, err := engine.NewCache(st.DataDir(), engine.Cfg.RedisURL)
	if err != nil {
		slog.Error("cache init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer cache.Close()

	slog.Info("starting statube",
		slog.String("port", mcpPort),
		slog.String("root", root),
	)

	// Proxy pool (optional)
	var pool *proxy.Pool
	fopts := engine.FetcherOptions{
		Timeout:           engine.Cfg.FetchTimeout,
		RequestsPerSecond: engine.Cfg.RequestsPerSecond,
	}
	if engine.Cfg.ProxyListURL != "" {
		pool = proxy.NewPool(proxy.Options{
			Limit:           engine.Cfg.ProxyLimit,
			Workers:         engine.Cfg.ProxyWorkers,
			ListURL:         engine.Cfg.ProxyListURL,
			ValidateURL:     engine.Cfg.ProxyValidateURL,
			ValidateTimeout: engine.Cfg.ProxyValidateTimeout,
			Cache:           cache,
			Client:          engine.Cfg.HTTPClient,
		})
		pool.Start(ctx)
		defer pool.Stop()
		fopts.Proxies = proxy.NewRotator(pool, false)
	}
	fetcher := engine.NewFetcher(fopts)
	ytdlp := sources.NewYtdlp(fetcher)

	offline := false
	probe := func(ctx context.Context) bool {
		return engine.CheckConnectivity(ctx, engine.Cfg.HTTPClient, engine.Cfg.ProbeURL, engine.Cfg.ProbeTimeout)
	}
	if err := engine.WaitForConnectivity(ctx, probe, engine.DefaultProbeAttempts, engine.DefaultProbeBackoff); err != nil {
		offline = true
		slog.Warn("no connectivity, running offline", slog.Any("error", err))
	}

	svc := &pipeline.Services{
		Store:       st,
		Cache:       cache,
		Searcher:    sources.NewSearcher(st, fetcher),
		Catalogue:   sources.NewCatalogueFetcher(st, fetcher, ytdlp),
		Transcripts: sources.NewTranscriptFetcher(st, fetcher, ytdlp),
		Comments:    sources.NewCommentFetcher(st, ytdlp),
		Analyzer:    analysis.NewAnalyzer(),
	}
	sup := pipeline.NewSupervisor(ctx)
	defer sup.Shutdown(context.Background())

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "statube",
		Version: version,
	}, nil)

	statserver.RegisterTools(server, &statserver.Deps{
		Store:      st,
		State:      pipeline.NewAppState(st, pool, offline),
		Supervisor: sup,
		Services:   svc,
		Proxy:      pool,
	})
	slog.Info("tools registered", slog.Int("count", statserver.ToolCount))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "statube",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 600 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}

func initEngine() {
	c := engine.Config{
		DataDir:  env.Str("STATUBE_DATA_DIR", ""),
		LogDir:   env.Str("STATUBE_LOG_DIR", ""),
		LogLevel: env.Str("LOG_LEVEL", "info"),

		YtdlpPath:    env.Str("YTDLP_PATH", "yt-dlp"),
		YtdlpTimeout: env.Duration("YTDLP_TIMEOUT", 10*time.Minute),

		ProxyListURL:         env.Str("PROXY_LIST_URL", ""),
		ProxyLimit:           env.Int("PROXY_LIMIT", proxy.DefaultLimit),
		ProxyWorkers:         env.Int("PROXY_WORKERS", proxy.DefaultWorkers),
		ProxyValidateURL:     env.Str("PROXY_VALIDATE_URL", proxy.DefaultValidateURL),
		ProxyValidateTimeout: env.Duration("PROXY_VALIDATE_TIMEOUT", proxy.DefaultValidateTimeout),

		ProbeURL:     env.Str("PROBE_URL", engine.DefaultProbeURL),
		ProbeTimeout: env.Duration("PROBE_TIMEOUT", engine.DefaultProbeTimeout),

		FetchTimeout:      env.Duration("FETCH_TIMEOUT", 15*time.Second),
		RequestsPerSecond: env.Float("REQUESTS_PER_SECOND", 4),

		RedisURL:           env.Str("REDIS_URL", ""),
		TranscriptLanguage: env.Str("TRANSCRIPT_LANGUAGE", "en"),
		ExtraStopwords:     env.List("STOPWORDS_EXTRA", ""),

		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}
	engine.Init(c)
}
