package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind names a class of run. At most one run per kind is active.
type Kind string

const (
	KindSearch      Kind = "search"
	KindVideoIngest Kind = "video_ingest"
	KindTranscripts Kind = "transcripts"
	KindComments    Kind = "comments"
	KindAnalysis    Kind = "analysis"
)

// DefaultGrace bounds how long Start waits for a replaced run to finish.
const DefaultGrace = 500 * time.Millisecond

// Supervisor starts runs and tracks the active one per kind.
type Supervisor struct {
	ctx   context.Context
	grace time.Duration

	mu     sync.Mutex
	active map[Kind]*Worker
	runs   map[string]*Worker
	wg     sync.WaitGroup
}

// NewSupervisor runs every worker under ctx.
func NewSupervisor(ctx context.Context) *Supervisor {
	return &Supervisor{
		ctx:    ctx,
		grace:  DefaultGrace,
		active: make(map[Kind]*Worker),
		runs:   make(map[string]*Worker),
	}
}

// Start launches job as the active run of kind. A previous run of the same
// kind is cancelled and awaited for the grace period, then abandoned.
func (s *Supervisor) Start(kind Kind, job Job) *Worker {
	w := NewWorker(kind, job)

	s.mu.Lock()
	prev := s.active[kind]
	s.active[kind] = w
	s.runs[w.ID()] = w
	s.mu.Unlock()

	if prev != nil {
		prev.Cancel()
		select {
		case <-prev.Done():
		case <-time.After(s.grace):
			slog.Warn("abandoning run after grace period",
				slog.String("run_id", prev.ID()),
				slog.String("kind", string(kind)),
			)
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = w.Run(s.ctx)
		s.mu.Lock()
		if s.active[kind] == w {
			delete(s.active, kind)
		}
		delete(s.runs, w.ID())
		s.mu.Unlock()
	}()
	return w
}

// Active returns the unfinished run of kind, if any.
func (s *Supervisor) Active(kind Kind) (*Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.active[kind]
	return w, ok
}

// Lookup finds an unfinished run by id.
func (s *Supervisor) Lookup(runID string) (*Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.runs[runID]
	return w, ok
}

// Cancel cancels the run with runID; false when no such run is active.
func (s *Supervisor) Cancel(runID string) bool {
	w, ok := s.Lookup(runID)
	if ok {
		w.Cancel()
	}
	return ok
}

// State reports the state of the active run of kind, Idle when none.
func (s *Supervisor) State(kind Kind) State {
	if w, ok := s.Active(kind); ok {
		return w.State()
	}
	return Idle
}

// Shutdown cancels every run and waits until they finish or ctx ends.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, w := range s.runs {
		w.Cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
