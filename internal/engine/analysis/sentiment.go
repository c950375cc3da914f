package analysis

import (
	"context"
	"fmt"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/jonreiter/govader"
)

// Compound thresholds for sentence and corpus labels.
const (
	PositiveThreshold = 0.05
	NegativeThreshold = -0.05
)

// Label orders Negative < Neutral < Positive.
type Label int

const (
	Negative Label = iota - 1
	Neutral
	Positive
)

func (l Label) String() string {
	switch l {
	case Positive:
		return "Positive"
	case Negative:
		return "Negative"
	}
	return "Neutral"
}

func (l Label) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Label) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Positive":
		*l = Positive
	case "Neutral":
		*l = Neutral
	case "Negative":
		*l = Negative
	default:
		return fmt.Errorf("%w: sentiment label %q", engine.ErrParse, b)
	}
	return nil
}

// LabelFor classifies a compound score.
func LabelFor(compound float64) Label {
	switch {
	case compound >= PositiveThreshold:
		return Positive
	case compound <= NegativeThreshold:
		return Negative
	}
	return Neutral
}

// Summary aggregates per-sentence compounds.
type Summary struct {
	Sentences int       `json:"sentences"`
	Positive  int       `json:"positive"`
	Neutral   int       `json:"neutral"`
	Negative  int       `json:"negative"`
	Mean      float64   `json:"mean_compound"`
	Label     Label     `json:"label"`
	Scores    []float64 `json:"-"`
}

// Share returns the fraction of sentences with label l.
func (s *Summary) Share(l Label) float64 {
	if s.Sentences == 0 {
		return 0
	}
	n := s.Neutral
	switch l {
	case Positive:
		n = s.Positive
	case Negative:
		n = s.Negative
	}
	return float64(n) / float64(s.Sentences)
}

// Analyzer scores sentences with the VADER lexicon and rules.
type Analyzer struct {
	vader *govader.SentimentIntensityAnalyzer
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{vader: govader.NewSentimentIntensityAnalyzer()}
}

// Compound returns the normalized valence of one sentence in [-1, 1].
func (a *Analyzer) Compound(sentence string) float64 {
	return a.vader.PolarityScores(sentence).Compound
}

// Summarize scores every sentence; the corpus label comes from the mean.
func (a *Analyzer) Summarize(ctx context.Context, sentences []string) (*Summary, error) {
	s := &Summary{Sentences: len(sentences), Scores: make([]float64, len(sentences))}
	var total float64
	for i, sent := range sentences {
		if i%256 == 0 && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", engine.ErrCancelled, ctx.Err())
		}
		c := a.Compound(sent)
		s.Scores[i] = c
		total += c
		switch LabelFor(c) {
		case Positive:
			s.Positive++
		case Negative:
			s.Negative++
		default:
			s.Neutral++
		}
	}
	if len(sentences) > 0 {
		s.Mean = total / float64(len(sentences))
	}
	s.Label = LabelFor(s.Mean)
	return s, nil
}
