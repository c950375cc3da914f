package pipeline

import (
	"context"
	"fmt"

	"github.com/anatolykoptev/statube/internal/engine"
)

// StageProgress receives a stage-local percent in [0,100] and an optional status.
type StageProgress func(percent float64, status string)

// Stage is one weighted step of a run.
type Stage struct {
	Name   string
	Weight float64
	Do     func(ctx context.Context, progress StageProgress) error
}

// Stage weight tables. Only the ratios matter.
var (
	searchWeights      = map[string]float64{"search": 100}
	videoIngestWeights = map[string]float64{"resolve": 5, "catalogue": 95}
	transcriptWeights  = map[string]float64{"transcripts": 100}
	commentWeights     = map[string]float64{"comments": 100}
	analysisWeights    = map[string]float64{"load": 2, "sentiment": 45, "wordcloud": 45, "finalize": 8}
)

// stage builds a Stage whose weight comes from table.
func stage(table map[string]float64, name string, do func(context.Context, StageProgress) error) Stage {
	return Stage{Name: name, Weight: table[name], Do: do}
}

// RunStages runs stages in order, mapping each onto its weighted share of
// the run's 0..100 progress. Cancellation is checked at every boundary and
// the first stage error aborts the run.
func RunStages(ctx context.Context, r *Reporter, stages ...Stage) error {
	var total float64
	for _, st := range stages {
		total += st.Weight
	}
	if total <= 0 {
		return fmt.Errorf("%w: stages carry no weight", engine.ErrInternal)
	}

	var done float64
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: before %s: %w", engine.ErrCancelled, st.Name, err)
		}
		from := 100 * done / total
		to := 100 * (done + st.Weight) / total
		r.Status(st.Name)
		progress := StageProgress(r.Span(from, to))
		err := engine.TrackOperation(ctx, string(r.w.kind)+"/"+st.Name, func(ctx context.Context) error {
			return st.Do(ctx, progress)
		})
		if err != nil {
			return fmt.Errorf("%s: %w", st.Name, err)
		}
		done += st.Weight
		r.Progress(to)
	}
	return nil
}
