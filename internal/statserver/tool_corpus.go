package statserver

import (
	"context"
	"fmt"
	"image/color"
	"strings"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/anatolykoptev/statube/internal/engine/analysis"
	"github.com/anatolykoptev/statube/internal/engine/pipeline"
	"github.com/anatolykoptev/statube/internal/engine/sources"
	"github.com/anatolykoptev/statube/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerTranscriptsFetch(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "transcripts_fetch",
		Description: "Download captions (manual or auto-generated) for selected videos of a channel and save them as timed transcripts. Videos without captions are reported in remarks.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input TranscriptsFetchInput) (*mcp.CallToolResult, TranscriptsFetchOutput, error) {
		if err := d.offlineErr(); err != nil {
			return nil, TranscriptsFetchOutput{}, err
		}
		sel, err := d.resolveSelection(ctx, SelectionInput{ChannelID: input.ChannelID, VideoIDs: input.VideoIDs})
		if err != nil {
			return nil, TranscriptsFetchOutput{}, err
		}
		lang := toolutil.NormLanguage(input.Language)

		w := d.Supervisor.Start(pipeline.KindTranscripts, pipeline.TranscriptJob(d.Services, sel, lang))
		o := toolutil.Collect(ctx, w)
		out := TranscriptsFetchOutput{Run: runInfo(o), Language: lang}
		out.Transcripts, _ = toolutil.Result[[]sources.TranscriptResult](o, pipeline.ResultTranscripts)
		for _, t := range out.Transcripts {
			if t.Path != "" {
				out.Saved++
			}
		}
		return nil, out, runErr(o)
	})
}

func registerCommentsFetch(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "comments_fetch",
		Description: "Download top comment threads for selected videos of a channel and save them as reply trees. Videos with comments disabled are reported in remarks.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input CommentsFetchInput) (*mcp.CallToolResult, CommentsFetchOutput, error) {
		if err := d.offlineErr(); err != nil {
			return nil, CommentsFetchOutput{}, err
		}
		sel, err := d.resolveSelection(ctx, SelectionInput{ChannelID: input.ChannelID, VideoIDs: input.VideoIDs})
		if err != nil {
			return nil, CommentsFetchOutput{}, err
		}

		w := d.Supervisor.Start(pipeline.KindComments, pipeline.CommentJob(d.Services, sel))
		o := toolutil.Collect(ctx, w)
		out := CommentsFetchOutput{Run: runInfo(o)}
		out.Comments, _ = toolutil.Result[[]sources.CommentResult](o, pipeline.ResultComments)
		for _, c := range out.Comments {
			if c.FilePath != "" {
				out.Saved++
			}
		}
		return nil, out, runErr(o)
	})
}

func registerCorpusAnalyze(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "corpus_analyze",
		Description: "Analyze downloaded comments or transcripts of selected videos: VADER sentiment distribution chart and a word cloud, both saved as PNG files. Works offline.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input CorpusAnalyzeInput) (*mcp.CallToolResult, CorpusAnalyzeOutput, error) {
		corpus := pipeline.CorpusComments
		switch strings.ToLower(strings.TrimSpace(input.Corpus)) {
		case "", "comments":
		case "transcripts":
			corpus = pipeline.CorpusTranscripts
		default:
			return nil, CorpusAnalyzeOutput{}, fmt.Errorf("corpus must be comments or transcripts, got %q", input.Corpus)
		}
		sel, err := d.resolveSelection(ctx, SelectionInput{ChannelID: input.ChannelID, VideoIDs: input.VideoIDs})
		if err != nil {
			return nil, CorpusAnalyzeOutput{}, err
		}
		cloud := analysis.CloudOptions{MaxWords: input.MaxWords}
		if len(input.Stopwords) > 0 {
			cloud.Stopwords = analysis.DefaultStopwords(engine.Cfg.ExtraStopwords...).With(input.Stopwords...)
		}
		if input.Background != "" {
			bg, err := parseHexColor(input.Background)
			if err != nil {
				return nil, CorpusAnalyzeOutput{}, err
			}
			cloud.Background = bg
		}

		req := pipeline.AnalysisRequest{Corpus: corpus, Selection: sel, Cloud: cloud}
		w := d.Supervisor.Start(pipeline.KindAnalysis, pipeline.AnalysisJob(d.Services, req))
		o := toolutil.Collect(ctx, w)
		out := CorpusAnalyzeOutput{Run: runInfo(o)}
		if rep, ok := toolutil.Result[*pipeline.AnalysisReport](o, pipeline.ResultAnalysisReport); ok {
			out.Sentences = rep.Sentences
			out.TopWords = rep.TopWords
			out.SentimentPNG, out.WordCloudPNG = rep.SentimentPNG, rep.WordCloudPNG
			if s := rep.Sentiment; s != nil {
				out.Sentiment = &SentimentOutput{
					Label:    s.Label.String(),
					Mean:     s.Mean,
					Positive: s.Positive,
					Neutral:  s.Neutral,
					Negative: s.Negative,
				}
			}
		}
		return nil, out, runErr(o)
	})
}

func (d *Deps) resolveSelection(ctx context.Context, in SelectionInput) (sources.Selection, error) {
	channelID, err := d.channelOrCurrent(in.ChannelID)
	if err != nil {
		return nil, err
	}
	return d.selection(ctx, channelID, in.VideoIDs)
}

func parseHexColor(s string) (color.Color, error) {
	var r, g, b uint8
	if _, err := fmt.Sscanf(strings.TrimPrefix(s, "#"), "%02x%02x%02x", &r, &g, &b); err != nil {
		return nil, fmt.Errorf("background %q: want #rrggbb", s)
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}
