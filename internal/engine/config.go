package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	DataDir  string // app-data root, "" = per-OS default
	LogDir   string
	LogLevel string

	YtdlpPath    string
	YtdlpTimeout time.Duration

	ProxyListURL         string // "" = proxy pool disabled
	ProxyLimit           int
	ProxyWorkers         int
	ProxyValidateURL     string
	ProxyValidateTimeout time.Duration

	ProbeURL     string
	ProbeTimeout time.Duration

	FetchTimeout      time.Duration
	RequestsPerSecond float64

	RedisURL           string // "" = cache mirror disabled
	TranscriptLanguage string
	ExtraStopwords     []string

	HTTPClient *http.Client
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (store, sources, proxy).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	cfg = c
	Cfg = &cfg
}
