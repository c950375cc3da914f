package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/cenkalti/backoff/v5"
)

const (
	defaultYtdlpPath    = "yt-dlp"
	defaultYtdlpTimeout = 10 * time.Minute
)

// ErrYtdlpNotInstalled is returned when the yt-dlp binary cannot be run.
var ErrYtdlpNotInstalled = errors.New("yt-dlp not installed")

// ProxyURLSource yields a proxy URL string for subprocess tools ("" = direct).
type ProxyURLSource interface {
	ProxyURL(ctx context.Context) string
}

// Ytdlp runs yt-dlp as a subprocess.
type Ytdlp struct {
	// Path is the yt-dlp executable. Defaults to "yt-dlp".
	Path string
	// Timeout bounds one invocation. Defaults to 10 minutes.
	Timeout time.Duration
	// Proxies, when set, adds --proxy to every invocation.
	Proxies ProxyURLSource
}

// NewYtdlp creates a runner from engine config.
func NewYtdlp(proxies ProxyURLSource) *Ytdlp {
	return &Ytdlp{Path: engine.Cfg.YtdlpPath, Timeout: engine.Cfg.YtdlpTimeout, Proxies: proxies}
}

// Installed reports whether the binary answers --version.
func (y *Ytdlp) Installed(ctx context.Context) bool {
	if _, err := exec.LookPath(y.path()); err != nil {
		return false
	}
	return exec.CommandContext(ctx, y.path(), "--version").Run() == nil
}

// Run executes yt-dlp with args and returns stdout. Transient failures are
// retried; not-found and disabled content fail immediately.
func (y *Ytdlp) Run(ctx context.Context, args ...string) ([]byte, error) {
	op := func() ([]byte, error) {
		out, err := y.runOnce(ctx, args)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, engine.ErrRemoteTransient) && ctx.Err() == nil {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 15 * time.Second
	return backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
}

func (y *Ytdlp) runOnce(ctx context.Context, args []string) ([]byte, error) {
	engine.IncrYtdlpRun()
	full := []string{"--no-warnings", "--ignore-config"}
	if y.Proxies != nil {
		if p := y.Proxies.ProxyURL(ctx); p != "" {
			full = append(full, "--proxy", p)
		}
	}
	full = append(full, args...)

	timeout := y.Timeout
	if timeout <= 0 {
		timeout = defaultYtdlpTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, y.path(), full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	slog.Debug("ytdlp: run", slog.Any("args", args), slog.Duration("elapsed", time.Since(start)), slog.Bool("ok", err == nil))
	if err == nil {
		return stdout.Bytes(), nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return nil, ErrYtdlpNotInstalled
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrCancelled, ctx.Err())
	}
	if cmdCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w: yt-dlp timed out after %s", engine.ErrRemoteTransient, timeout)
	}
	return nil, classifyYtdlpError(stderr.String(), err)
}

func (y *Ytdlp) path() string {
	if y.Path != "" {
		return y.Path
	}
	return defaultYtdlpPath
}

// classifyYtdlpError maps yt-dlp stderr to engine error kinds.
func classifyYtdlpError(stderr string, err error) error {
	msg := strings.TrimSpace(lastLine(stderr))
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "comments are disabled"),
		strings.Contains(lower, "comments are turned off"),
		strings.Contains(lower, "subtitles are disabled"):
		return fmt.Errorf("%w: %s", engine.ErrContentDisabled, msg)
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "not found"),
		strings.Contains(lower, "http error 404"),
		strings.Contains(lower, "this channel does not have"):
		return fmt.Errorf("%w: %s", engine.ErrRemoteNotFound, msg)
	}
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("%w: %s", engine.ErrRemoteTransient, msg)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
