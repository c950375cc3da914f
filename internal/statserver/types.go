package statserver

import (
	"github.com/anatolykoptev/statube/internal/engine/analysis"
	"github.com/anatolykoptev/statube/internal/engine/sources"
	"github.com/anatolykoptev/statube/internal/engine/store"
)

// --- Channel types ---

type ChannelSearchInput struct {
	Query string `json:"query" jsonschema:"Channel name or keywords to search for"`
	Mode  string `json:"mode,omitempty" jsonschema:"fast (autocomplete, 6 hits, nothing saved) or thorough (default, 20 hits, channels and profile pictures saved)"`
}

type ChannelSearchOutput struct {
	Run      RunInfo              `json:"run"`
	Channels []sources.ChannelHit `json:"channels"`
}

type ChannelListInput struct{}

type ChannelListOutput struct {
	Current  string          `json:"current_channel,omitempty"`
	Channels []store.Channel `json:"channels"`
}

type ChannelPurgeInput struct {
	ChannelID string `json:"channel_id" jsonschema:"Channel to delete with all its videos, thumbnails, transcripts and comments"`
}

type ChannelPurgeOutput struct {
	ChannelID string `json:"channel_id"`
	Purged    bool   `json:"purged"`
}

type ChannelVideosInput struct {
	ChannelID     string `json:"channel_id" jsonschema:"Channel id (UC...) or @handle; becomes the current channel"`
	ChannelURL    string `json:"channel_url,omitempty" jsonschema:"Channel URL, defaults to the stored URL"`
	IncludeShorts bool   `json:"include_shorts,omitempty" jsonschema:"Also enumerate the Shorts tab"`
}

type ChannelVideosOutput struct {
	Run       RunInfo                  `json:"run"`
	Catalogue *sources.CatalogueResult `json:"catalogue,omitempty"`
}

// --- Video types ---

type VideoListInput struct {
	ChannelID string `json:"channel_id,omitempty" jsonschema:"Channel id, defaults to the current channel"`
	VideoType string `json:"video_type,omitempty" jsonschema:"Filter: video, short, live (default: all)"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum rows to return (default: all)"`
}

// VideoRow is a stored video with display-formatted counters.
type VideoRow struct {
	VideoID       string `json:"video_id"`
	Type          string `json:"video_type"`
	Title         string `json:"title"`
	URL           string `json:"video_url"`
	Duration      string `json:"duration"`
	Views         string `json:"views"`
	Likes         string `json:"likes"`
	PubDate       string `json:"pub_date,omitempty"`
	ThumbnailPath string `json:"thumbnail_path"`
}

type VideoListOutput struct {
	ChannelID string     `json:"channel_id"`
	Total     int        `json:"total"`
	Videos    []VideoRow `json:"videos"`
}

// --- Corpus types ---

// SelectionInput is the channel and videos a corpus tool works on.
type SelectionInput struct {
	ChannelID string
	VideoIDs  []string
}

type TranscriptsFetchInput struct {
	ChannelID string   `json:"channel_id,omitempty" jsonschema:"Channel id, defaults to the current channel"`
	VideoIDs  []string `json:"video_ids,omitempty" jsonschema:"Videos to process (default: every stored video of the channel)"`
	Language  string   `json:"language,omitempty" jsonschema:"Caption language code (default: en)"`
}

type TranscriptsFetchOutput struct {
	Run         RunInfo                    `json:"run"`
	Language    string                     `json:"language"`
	Saved       int                        `json:"saved"`
	Transcripts []sources.TranscriptResult `json:"transcripts"`
}

type CommentsFetchInput struct {
	ChannelID string   `json:"channel_id,omitempty" jsonschema:"Channel id, defaults to the current channel"`
	VideoIDs  []string `json:"video_ids,omitempty" jsonschema:"Videos to process (default: every stored video of the channel)"`
}

type CommentsFetchOutput struct {
	Run      RunInfo                 `json:"run"`
	Saved    int                     `json:"saved"`
	Comments []sources.CommentResult `json:"comments"`
}

type CorpusAnalyzeInput struct {
	ChannelID  string   `json:"channel_id,omitempty" jsonschema:"Channel id, defaults to the current channel"`
	VideoIDs   []string `json:"video_ids,omitempty" jsonschema:"Videos to analyze (default: every stored video of the channel)"`
	Corpus     string   `json:"corpus,omitempty" jsonschema:"comments (default) or transcripts"`
	MaxWords   int      `json:"max_words,omitempty" jsonschema:"Word cloud size (default 200)"`
	Stopwords  []string `json:"stopwords,omitempty" jsonschema:"Extra words to leave out of the word cloud"`
	Background string   `json:"background,omitempty" jsonschema:"Word cloud background as #rrggbb (default white)"`
}

type CorpusAnalyzeOutput struct {
	Run          RunInfo              `json:"run"`
	Sentences    int                  `json:"sentences"`
	Sentiment    *SentimentOutput     `json:"sentiment,omitempty"`
	TopWords     []analysis.WordCount `json:"top_words,omitempty"`
	SentimentPNG string               `json:"sentiment_png,omitempty"`
	WordCloudPNG string               `json:"wordcloud_png,omitempty"`
}

// SentimentOutput flattens analysis.Summary with the label as text.
type SentimentOutput struct {
	Label    string  `json:"label"`
	Mean     float64 `json:"mean_compound"`
	Positive int     `json:"positive"`
	Neutral  int     `json:"neutral"`
	Negative int     `json:"negative"`
}

// --- Run and proxy types ---

type RunCancelInput struct {
	RunID string `json:"run_id,omitempty" jsonschema:"Run to cancel"`
	Kind  string `json:"kind,omitempty" jsonschema:"Or cancel the active run of a kind: search, video_ingest, transcripts, comments, analysis"`
}

type RunCancelOutput struct {
	RunID     string `json:"run_id,omitempty"`
	Cancelled bool   `json:"cancelled"`
}

type ProxyStatusInput struct{}

type ProxyStatusOutput struct {
	Enabled bool       `json:"enabled"`
	Offline bool       `json:"offline"`
	Count   int        `json:"count"`
	Proxies []ProxyRow `json:"proxies,omitempty"`
}

type ProxyRow struct {
	Endpoint      string `json:"endpoint"`
	Protocol      string `json:"protocol"`
	LastValidated string `json:"last_validated_at"`
}
