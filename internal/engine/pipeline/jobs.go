package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/anatolykoptev/statube/internal/engine/analysis"
	"github.com/anatolykoptev/statube/internal/engine/sources"
	"github.com/anatolykoptev/statube/internal/engine/store"
)

// Result event names.
const (
	ResultChannels       = "channels_ready"
	ResultVideos         = "videos_ready"
	ResultTranscripts    = "transcripts_ready"
	ResultComments       = "comments_ready"
	ResultSentiment      = "sentiment_ready"
	ResultWordCloud      = "wordcloud_ready"
	ResultAnalysisReport = "analysis_ready"
)

// ErrEmptyCorpus is returned by analysis runs with nothing to analyze.
var ErrEmptyCorpus = errors.New("empty corpus")

type ChannelSearcher interface {
	Search(ctx context.Context, query string, opts sources.SearchOptions) (sources.ChannelHits, error)
}

type CatalogueSource interface {
	Fetch(ctx context.Context, req sources.CatalogueRequest, progress sources.Progress) (*sources.CatalogueResult, error)
}

type TranscriptSource interface {
	Fetch(ctx context.Context, sel sources.Selection, language string, progress sources.Progress) ([]sources.TranscriptResult, error)
}

type CommentSource interface {
	Fetch(ctx context.Context, sel sources.Selection, progress sources.Progress) ([]sources.CommentResult, error)
}

// Services are the collaborators jobs drive. Cache may be nil.
type Services struct {
	Store       *store.Store
	Cache       *engine.Cache
	Searcher    ChannelSearcher
	Catalogue   CatalogueSource
	Transcripts TranscriptSource
	Comments    CommentSource
	Analyzer    *analysis.Analyzer
}

// SearchJob searches channels; thorough searches persist every hit.
func SearchJob(svc *Services, query string, mode sources.SearchMode) Job {
	return func(ctx context.Context, r *Reporter) error {
		var hits sources.ChannelHits
		err := RunStages(ctx, r,
			stage(searchWeights, "search", func(ctx context.Context, p StageProgress) error {
				var err error
				hits, err = svc.Searcher.Search(ctx, query, sources.SearchOptions{Mode: mode, Progress: sources.Progress(p)})
				return err
			}),
		)
		if err != nil {
			return err
		}
		engine.IncrChannelSearch()
		r.Result(ResultChannels, hits)
		return nil
	}
}

// VideoIngestJob enumerates a channel's catalogue into the store.
func VideoIngestJob(svc *Services, req sources.CatalogueRequest) Job {
	return func(ctx context.Context, r *Reporter) error {
		var res *sources.CatalogueResult
		err := RunStages(ctx, r,
			stage(videoIngestWeights, "resolve", func(ctx context.Context, _ StageProgress) error {
				if req.ChannelURL != "" || svc.Store == nil {
					return nil
				}
				ch, ok, err := svc.Store.Channel(ctx, req.ChannelID)
				if err != nil {
					return err
				}
				if ok {
					req.ChannelURL = ch.URL
				}
				return nil
			}),
			stage(videoIngestWeights, "catalogue", func(ctx context.Context, p StageProgress) error {
				var err error
				res, err = svc.Catalogue.Fetch(ctx, req, sources.Progress(p))
				return err
			}),
		)
		if err != nil {
			return err
		}
		r.Result(ResultVideos, res)
		return nil
	}
}

// TranscriptJob downloads transcripts for the selection.
func TranscriptJob(svc *Services, sel sources.Selection, language string) Job {
	return func(ctx context.Context, r *Reporter) error {
		var res []sources.TranscriptResult
		err := RunStages(ctx, r,
			stage(transcriptWeights, "transcripts", func(ctx context.Context, p StageProgress) error {
				var err error
				res, err = svc.Transcripts.Fetch(ctx, sel, language, sources.Progress(p))
				return err
			}),
		)
		if err != nil {
			return err
		}
		r.Result(ResultTranscripts, res)
		return nil
	}
}

// CommentJob downloads comment threads for the selection.
func CommentJob(svc *Services, sel sources.Selection) Job {
	return func(ctx context.Context, r *Reporter) error {
		var res []sources.CommentResult
		err := RunStages(ctx, r,
			stage(commentWeights, "comments", func(ctx context.Context, p StageProgress) error {
				var err error
				res, err = svc.Comments.Fetch(ctx, sel, sources.Progress(p))
				return err
			}),
		)
		if err != nil {
			return err
		}
		r.Result(ResultComments, res)
		return nil
	}
}

// --- analysis ---

// Corpus selects which blobs an analysis run reads.
type Corpus string

const (
	CorpusComments    Corpus = "comments"
	CorpusTranscripts Corpus = "transcripts"
)

// AnalysisRequest configures AnalysisJob. Zero chart sizes use the defaults.
type AnalysisRequest struct {
	Corpus      Corpus
	Selection   sources.Selection
	Cloud       analysis.CloudOptions
	ChartWidth  int
	ChartHeight int
}

// SentimentArtifact is the sentiment_ready payload.
type SentimentArtifact struct {
	Summary *analysis.Summary `json:"summary"`
	Path    string            `json:"path"`
	Image   *image.RGBA       `json:"-"`
}

// WordCloudArtifact is the wordcloud_ready payload.
type WordCloudArtifact struct {
	Words []analysis.PlacedWord `json:"words"`
	Path  string                `json:"path"`
	Image *image.RGBA           `json:"-"`
}

// AnalysisReport is saved to the cache as analysis_<run_id>.
type AnalysisReport struct {
	RunID        string               `json:"run_id"`
	Corpus       Corpus               `json:"corpus"`
	Files        []string             `json:"files"`
	Sentences    int                  `json:"sentences"`
	Sentiment    *analysis.Summary    `json:"sentiment"`
	TopWords     []analysis.WordCount `json:"top_words"`
	SentimentPNG string               `json:"sentiment_png"`
	WordCloudPNG string               `json:"wordcloud_png"`
	CreatedAt    time.Time            `json:"created_at"`
}

const reportTopWords = 25

// AnalysisJob runs load → sentiment → wordcloud → finalize over the
// selected corpus, writing both charts under the store's Analysis dir.
func AnalysisJob(svc *Services, req AnalysisRequest) Job {
	return func(ctx context.Context, r *Reporter) error {
		analyzer := svc.Analyzer
		if analyzer == nil {
			analyzer = analysis.NewAnalyzer()
		}
		report := &AnalysisReport{RunID: r.RunID(), Corpus: req.Corpus}
		var sentences []string

		return RunStages(ctx, r,
			stage(analysisWeights, "load", func(ctx context.Context, p StageProgress) error {
				files, err := corpusFiles(ctx, svc.Store, req.Corpus, req.Selection)
				if err != nil {
					return err
				}
				if len(files) == 0 {
					return fmt.Errorf("%w: no %s downloaded for the selection", ErrEmptyCorpus, req.Corpus)
				}
				report.Files = files
				if sentences, err = analysis.LoadSentences(files...); err != nil {
					return err
				}
				if len(sentences) == 0 {
					return fmt.Errorf("%w: %d files hold no text", ErrEmptyCorpus, len(files))
				}
				report.Sentences = len(sentences)
				p(100, fmt.Sprintf("Loaded %d sentences from %d files", len(sentences), len(files)))
				return nil
			}),
			stage(analysisWeights, "sentiment", func(ctx context.Context, p StageProgress) error {
				sum, err := analyzer.Summarize(ctx, sentences)
				if err != nil {
					return err
				}
				p(60, "Rendering sentiment chart")
				img, err := analysis.RenderSentimentChart(sum, req.ChartWidth, req.ChartHeight)
				if err != nil {
					return err
				}
				path := artifactPath(svc.Store, r.RunID(), "sentiment")
				if err := saveArtifact(ctx, r, img, path, ResultSentiment, &SentimentArtifact{Summary: sum, Path: path, Image: img}); err != nil {
					return err
				}
				report.Sentiment, report.SentimentPNG = sum, path
				return nil
			}),
			stage(analysisWeights, "wordcloud", func(ctx context.Context, p StageProgress) error {
				cloud, err := analysis.RenderWordCloud(ctx, sentences, req.Cloud)
				if err != nil {
					return err
				}
				p(80, fmt.Sprintf("Placed %d words", len(cloud.Words)))
				path := artifactPath(svc.Store, r.RunID(), "wordcloud")
				if err := saveArtifact(ctx, r, cloud.Image, path, ResultWordCloud, &WordCloudArtifact{Words: cloud.Words, Path: path, Image: cloud.Image}); err != nil {
					return err
				}
				report.WordCloudPNG = path
				for i := 0; i < len(cloud.Words) && i < reportTopWords; i++ {
					report.TopWords = append(report.TopWords, cloud.Words[i].WordCount)
				}
				return nil
			}),
			stage(analysisWeights, "finalize", func(ctx context.Context, _ StageProgress) error {
				report.CreatedAt = time.Now().UTC()
				if svc.Cache != nil {
					if err := svc.Cache.Save(ctx, "analysis_"+r.RunID(), report); err != nil {
						slog.Warn("analysis: report not cached", slog.String("run_id", r.RunID()), slog.Any("error", err))
					}
				}
				r.Result(ResultAnalysisReport, report)
				return nil
			}),
		)
	}
}

// saveArtifact writes img and publishes it. An artifact written after
// cancellation was observed is removed again.
func saveArtifact(ctx context.Context, r *Reporter, img image.Image, path, name string, payload any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrCancelled, err)
	}
	if err := analysis.SavePNG(img, path); err != nil {
		return err
	}
	if !r.Result(name, payload) {
		_ = os.Remove(path)
		return fmt.Errorf("%w: %s discarded", engine.ErrCancelled, filepath.Base(path))
	}
	return nil
}

func artifactPath(st *store.Store, runID, kind string) string {
	dir := os.TempDir()
	if st != nil {
		dir = st.AnalysisDir()
	}
	return filepath.Join(dir, runID+"_"+kind+".png")
}

// corpusFiles lists existing blobs for the selection in channel, then
// selection order.
func corpusFiles(ctx context.Context, st *store.Store, corpus Corpus, sel sources.Selection) ([]string, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: no store", engine.ErrInternal)
	}
	var files []string
	for _, channelID := range slices.Sorted(maps.Keys(sel)) {
		switch corpus {
		case CorpusComments:
			for _, videoID := range sel[channelID] {
				if p := st.CommentPath(channelID, videoID); fileExists(p) {
					files = append(files, p)
				}
			}
		case CorpusTranscripts:
			refs, err := st.TranscriptRefs(ctx, channelID)
			if err != nil {
				return nil, err
			}
			byVideo := make(map[string][]string)
			for _, ref := range refs {
				byVideo[ref.VideoID] = append(byVideo[ref.VideoID], ref.Path)
			}
			for _, videoID := range sel[channelID] {
				for _, p := range byVideo[videoID] {
					if fileExists(p) {
						files = append(files, p)
					}
				}
			}
		default:
			return nil, fmt.Errorf("%w: unknown corpus %q", engine.ErrParse, corpus)
		}
	}
	return files, nil
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
