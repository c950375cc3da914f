// Package pipeline supervises long-running ingestion and analysis runs.
//
// Each run is a Worker: Run executes a Job on the caller's goroutine,
// Cancel requests cooperative cancellation, and Events streams status,
// progress and result events ending with exactly one EventFinished.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/google/uuid"
)

// State is the lifecycle of a run.
type State int32

const (
	Idle State = iota
	Running
	Cancelling
	Cancelled
	Failed
	Completed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Cancelling:
		return "cancelling"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	case Completed:
		return "completed"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Cancelled || s == Failed || s == Completed
}

// EventKind tags an Event.
type EventKind int

const (
	EventStatus EventKind = iota
	EventProgress
	EventResult
	EventFinished
)

// Event is one message from a run. Percent is set on EventProgress, Name and
// Value on EventResult, State and Err on EventFinished.
type Event struct {
	Kind    EventKind
	RunID   string
	Status  string
	Percent int
	Name    string
	Value   any
	State   State
	Err     error
}

// Job is the body of a run. It reports through r and must return promptly
// once ctx is cancelled.
type Job func(ctx context.Context, r *Reporter) error

var errAlreadyRun = errors.New("pipeline: worker already run")

// Worker executes one Job once.
type Worker struct {
	id   string
	kind Kind
	job  Job

	mu        sync.Mutex
	state     State
	err       error
	percent   int
	cancel    context.CancelFunc
	cancelReq bool
	ctx       context.Context

	events     *eventQueue
	finishOnce sync.Once
	done       chan struct{}
}

// NewWorker creates an idle worker with a fresh run id.
func NewWorker(kind Kind, job Job) *Worker {
	return &Worker{
		id:     uuid.NewString(),
		kind:   kind,
		job:    job,
		events: newEventQueue(),
		done:   make(chan struct{}),
	}
}

func (w *Worker) ID() string            { return w.id }
func (w *Worker) Kind() Kind            { return w.kind }
func (w *Worker) Done() <-chan struct{} { return w.done }

// Events streams the run's events in emission order and is closed after
// EventFinished. The stream is unbounded; callers should drain it.
func (w *Worker) Events() <-chan Event { return w.events.out }

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Err is the terminal error, nil until the run ends and for completed runs.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Cancel requests cancellation. Before Run it makes Run finish immediately
// as cancelled; after the run ended it is a no-op.
func (w *Worker) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Terminal() {
		return
	}
	w.cancelReq = true
	if w.state == Running {
		w.state = Cancelling
	}
	if w.cancel != nil {
		w.cancel()
	}
}

// Run executes the job and blocks until the run is finished.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.state != Idle {
		w.mu.Unlock()
		return errAlreadyRun
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.ctx, w.cancel = ctx, cancel
	w.state = Running
	if w.cancelReq {
		w.state = Cancelling
		cancel()
	}
	w.mu.Unlock()

	engine.IncrRunStarted()
	start := time.Now()
	slog.Info("run started", slog.String("run_id", w.id), slog.String("kind", string(w.kind)))

	err := w.safeRun(ctx)
	switch {
	case err == nil && ctx.Err() == nil:
		w.finish(Completed, nil)
	case ctx.Err() != nil || engine.IsCancelled(err):
		w.finish(Cancelled, fmt.Errorf("%w: run %s", engine.ErrCancelled, w.id))
	default:
		engine.IncrRunFailed()
		w.finish(Failed, err)
	}

	slog.Info("run finished",
		slog.String("run_id", w.id),
		slog.String("kind", string(w.kind)),
		slog.String("state", w.State().String()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return w.Err()
}

func (w *Worker) safeRun(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("run panicked", slog.String("run_id", w.id), slog.Any("panic", p))
			err = fmt.Errorf("%w: panic: %v\n%s", engine.ErrInternal, p, debug.Stack())
		}
	}()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return w.job(ctx, &Reporter{w: w})
}

// finish publishes the terminal status and EventFinished exactly once.
func (w *Worker) finish(st State, err error) {
	w.finishOnce.Do(func() {
		w.mu.Lock()
		w.state, w.err = st, err
		percent := w.percent
		reach100 := st == Completed && percent < 100
		if st == Completed {
			w.percent, percent = 100, 100
		}
		w.mu.Unlock()

		status := st.String()
		if st == Failed {
			line, _, _ := strings.Cut(err.Error(), "\n")
			status = "failed: " + line
		}
		if reach100 {
			w.events.push(Event{Kind: EventProgress, RunID: w.id, Percent: percent})
		}
		w.events.push(Event{Kind: EventStatus, RunID: w.id, Status: status})
		w.events.push(Event{Kind: EventFinished, RunID: w.id, State: st, Err: err, Percent: percent})
		w.events.close()
		close(w.done)
	})
}

// emit publishes a non-terminal event unless cancellation was observed.
func (w *Worker) emit(e Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Running || (w.ctx != nil && w.ctx.Err() != nil) {
		return false
	}
	if e.Kind == EventProgress {
		p := min(max(e.Percent, 0), 100)
		if p <= w.percent {
			return false
		}
		w.percent = p
		e.Percent = p
	}
	e.RunID = w.id
	w.events.push(e)
	return true
}

// --- Reporter ---

// Reporter is a Job's handle for publishing events.
type Reporter struct {
	w *Worker
}

// RunID identifies the run; artifacts are named after it.
func (r *Reporter) RunID() string { return r.w.id }

func (r *Reporter) Status(text string) {
	r.w.emit(Event{Kind: EventStatus, Status: text})
}

// Progress publishes percent clamped to [0,100]. Values not above the last
// published percent are dropped.
func (r *Reporter) Progress(percent float64) {
	r.w.emit(Event{Kind: EventProgress, Percent: int(percent)})
}

// Result publishes a named job result. It returns false once the run is
// cancelled, so callers can skip registering the artifact.
func (r *Reporter) Result(name string, v any) bool {
	return r.w.emit(Event{Kind: EventResult, Name: name, Value: v})
}

// Span maps a sub-task's 0..100 progress into [from, to] of the run.
func (r *Reporter) Span(from, to float64) func(percent float64, status string) {
	return func(percent float64, status string) {
		if status != "" {
			r.Status(status)
		}
		r.Progress(from + (to-from)*min(max(percent, 0), 100)/100)
	}
}

// --- unbounded event queue ---

type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	notify chan struct{}
	out    chan Event
}

func newEventQueue() *eventQueue {
	q := &eventQueue{notify: make(chan struct{}, 1), out: make(chan Event)}
	go q.pump()
	return q
}

func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		batch, closed := q.items, q.closed
		q.items = nil
		q.mu.Unlock()

		for _, e := range batch {
			q.out <- e
		}
		if len(batch) == 0 {
			if closed {
				return
			}
			<-q.notify
		}
	}
}
