package toolutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/anatolykoptev/statube/internal/engine/pipeline"
)

func TestNormLanguage(t *testing.T) {
	prev := *engine.Cfg
	t.Cleanup(func() { engine.Init(prev) })

	engine.Init(engine.Config{})
	if got := NormLanguage("  "); got != "en" {
		t.Errorf("NormLanguage(blank) = %q, want en", got)
	}
	engine.Init(engine.Config{TranscriptLanguage: "de"})
	if got := NormLanguage(""); got != "de" {
		t.Errorf("NormLanguage(\"\") = %q, want de", got)
	}
	if got := NormLanguage(" fr "); got != "fr" {
		t.Errorf("NormLanguage(fr) = %q, want fr", got)
	}
}

func TestCollectCompleted(t *testing.T) {
	w := pipeline.NewWorker(pipeline.KindSearch, func(ctx context.Context, r *pipeline.Reporter) error {
		r.Status("working")
		r.Progress(50)
		r.Result("answer", 42)
		return nil
	})
	go w.Run(context.Background())

	o := Collect(context.Background(), w)
	if o.State != pipeline.Completed || o.Percent != 100 || o.Err != nil {
		t.Fatalf("outcome = %+v", o)
	}
	if o.RunID != w.ID() {
		t.Errorf("run id = %q, want %q", o.RunID, w.ID())
	}
	if v, ok := Result[int](o, "answer"); !ok || v != 42 {
		t.Errorf("Result = %v, %v", v, ok)
	}
	if _, ok := Result[string](o, "answer"); ok {
		t.Error("Result with the wrong type must report false")
	}
	if len(o.Statuses) == 0 || o.Statuses[0] != "working" {
		t.Errorf("statuses = %v", o.Statuses)
	}
}

func TestCollectCancelsOnContextEnd(t *testing.T) {
	w := pipeline.NewWorker(pipeline.KindComments, func(ctx context.Context, r *pipeline.Reporter) error {
		<-ctx.Done()
		return ctx.Err()
	})
	go w.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	o := Collect(ctx, w)
	if o.State != pipeline.Cancelled {
		t.Fatalf("state = %v, want cancelled", o.State)
	}
	if !errors.Is(o.Err, engine.ErrCancelled) {
		t.Errorf("err = %v, want ErrCancelled", o.Err)
	}
}
