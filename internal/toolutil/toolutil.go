// Package toolutil provides shared helpers for statube MCP tools.
package toolutil

import (
	"context"
	"strings"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/anatolykoptev/statube/internal/engine/pipeline"
)

// NormLanguage normalises a caption language field: empty → configured default → "en".
func NormLanguage(lang string) string {
	if lang = strings.TrimSpace(lang); lang != "" {
		return lang
	}
	if engine.Cfg.TranscriptLanguage != "" {
		return engine.Cfg.TranscriptLanguage
	}
	return "en"
}

// RunOutcome is what a tool call saw of one run.
type RunOutcome struct {
	RunID    string
	State    pipeline.State
	Percent  int
	Statuses []string
	Results  map[string]any
	Err      error
}

// Collect drains w's events until it finishes. When ctx ends first the run
// is cancelled and still drained, so the outcome is always terminal.
func Collect(ctx context.Context, w *pipeline.Worker) RunOutcome {
	out := RunOutcome{RunID: w.ID(), Results: make(map[string]any)}
	events := w.Events()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return out
			}
			switch e.Kind {
			case pipeline.EventStatus:
				out.Statuses = append(out.Statuses, e.Status)
			case pipeline.EventProgress:
				out.Percent = e.Percent
			case pipeline.EventResult:
				out.Results[e.Name] = e.Value
			case pipeline.EventFinished:
				out.State, out.Err, out.Percent = e.State, e.Err, e.Percent
			}
		case <-ctx.Done():
			w.Cancel()
			ctx = context.Background()
		}
	}
}

// Result returns the named result as T.
func Result[T any](o RunOutcome, name string) (T, bool) {
	v, ok := o.Results[name].(T)
	return v, ok
}
