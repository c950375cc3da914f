package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/anatolykoptev/statube/internal/engine/store"
)

// Progress bands for catalogue runs.
const (
	catalogueDiscoveryEnd = 15.0
	catalogueProcessSpan  = 80.0
	catalogueFinalize     = 95.0
)

// catalogueTab is one channel sub-list and the video type it yields.
type catalogueTab struct {
	path string
	typ  store.VideoType
}

// CatalogueRequest names the channel to enumerate.
type CatalogueRequest struct {
	ChannelID     string `json:"channel_id"`
	ChannelURL    string `json:"channel_url"`
	IncludeShorts bool   `json:"include_shorts"`
}

// CatalogueResult summarizes one catalogue run.
type CatalogueResult struct {
	ChannelID string                  `json:"channel_id"`
	Total     int                     `json:"total"`
	Saved     int                     `json:"saved"`
	Skipped   []*engine.ItemError     `json:"-"`
	Remarks   map[string]string       `json:"remarks,omitempty"`
	Source    string                  `json:"source"` // "ytdlp" or "feed"
	ByType    map[store.VideoType]int `json:"by_type"`
}

// CatalogueFetcher enumerates a channel's videos, shorts and live streams.
type CatalogueFetcher struct {
	store   *store.Store
	fetch   Fetcher
	ytdlp   *Ytdlp
	feed    *FeedLister
	baseURL string
}

// NewCatalogueFetcher creates a fetcher. ytdlp may be nil to force the feed fallback.
func NewCatalogueFetcher(st *store.Store, f Fetcher, y *Ytdlp) *CatalogueFetcher {
	return &CatalogueFetcher{
		store:   st,
		fetch:   f,
		ytdlp:   y,
		feed:    NewFeedLister(f),
		baseURL: defaultBaseURL,
	}
}

// catalogueEntry is one flat-extracted entry, normalized.
type catalogueEntry struct {
	ID          string
	Type        store.VideoType
	Title       string
	Description string
	Duration    *int64
	ViewCount   int64
	LikeCount   int64
	PubDate     string
	Thumbnail   string
}

type ytdlpPlaylist struct {
	ChannelID string       `json:"channel_id"`
	Entries   []ytdlpEntry `json:"entries"`
}

type ytdlpEntry struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Duration    *float64         `json:"duration"`
	ViewCount   int64            `json:"view_count"`
	LikeCount   int64            `json:"like_count"`
	UploadDate  string           `json:"upload_date"`
	Timestamp   int64            `json:"timestamp"`
	Thumbnail   string           `json:"thumbnail"`
	Thumbnails  []ytdlpThumbnail `json:"thumbnails"`
}

type ytdlpThumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (e ytdlpEntry) bestThumbnail() string {
	var best ytdlpThumbnail
	for _, t := range e.Thumbnails {
		if t.Width*t.Height > best.Width*best.Height || best.URL == "" {
			best = t
		}
	}
	if best.URL != "" {
		return best.URL
	}
	if e.Thumbnail != "" {
		return e.Thumbnail
	}
	return "https://i.ytimg.com/vi/" + e.ID + "/hqdefault.jpg"
}

func (e ytdlpEntry) pubDate() string {
	if e.Timestamp > 0 {
		return time.Unix(e.Timestamp, 0).UTC().Format(time.DateOnly)
	}
	if t, err := time.Parse("20060102", e.UploadDate); err == nil {
		return t.Format(time.DateOnly)
	}
	return ""
}

func (e ytdlpEntry) normalize(typ store.VideoType) catalogueEntry {
	var dur *int64
	if e.Duration != nil && *e.Duration >= 0 {
		d := int64(*e.Duration)
		dur = &d
	}
	return catalogueEntry{
		ID:          e.ID,
		Type:        typ,
		Title:       e.Title,
		Description: e.Description,
		Duration:    dur,
		ViewCount:   e.ViewCount,
		LikeCount:   e.LikeCount,
		PubDate:     e.pubDate(),
		Thumbnail:   e.bestThumbnail(),
	}
}

func (c *CatalogueFetcher) tabs(includeShorts bool) []catalogueTab {
	tabs := []catalogueTab{{"videos", store.VideoTypeVideo}}
	if includeShorts {
		tabs = append(tabs, catalogueTab{"shorts", store.VideoTypeShort})
	}
	return append(tabs, catalogueTab{"streams", store.VideoTypeLive})
}

// Fetch enumerates the channel and upserts every entry whose thumbnail was
// saved. Per-entry failures are recorded, not returned.
func (c *CatalogueFetcher) Fetch(ctx context.Context, req CatalogueRequest, progress Progress) (*CatalogueResult, error) {
	if req.ChannelID == "" {
		return nil, fmt.Errorf("catalogue: %w: empty channel id", engine.ErrParse)
	}
	if req.ChannelURL == "" {
		req.ChannelURL = channelURL(c.baseURL, req.ChannelID)
	}
	res := &CatalogueResult{
		ChannelID: req.ChannelID,
		Remarks:   make(map[string]string),
		ByType:    make(map[store.VideoType]int),
	}

	progress.report(0, "Discovering videos")
	entries, source, err := c.discover(ctx, req, progress)
	if err != nil {
		return res, err
	}
	res.Source = source
	res.Total = len(entries)
	progress.report(catalogueDiscoveryEnd, fmt.Sprintf("Found %d entries", len(entries)))

	for i, e := range entries {
		if err := checkCancelled(ctx); err != nil {
			return res, err
		}
		if err := c.ingest(ctx, req.ChannelID, e); err != nil {
			if errors.Is(err, engine.ErrCancelled) {
				return res, err
			}
			slog.Warn("catalogue: entry skipped", slog.String("video_id", e.ID), slog.Any("error", err))
			res.Skipped = append(res.Skipped, &engine.ItemError{Op: "catalogue", ID: e.ID, Err: err})
			res.Remarks[e.ID] = err.Error()
			engine.IncrThumbnailFailure()
		} else {
			res.Saved++
			res.ByType[e.Type]++
			engine.IncrCatalogueEntry()
		}
		pct := catalogueDiscoveryEnd + catalogueProcessSpan*float64(i+1)/float64(len(entries))
		progress.report(pct, fmt.Sprintf("Scraped %d/%d: %s", i+1, len(entries), e.Title))
	}

	progress.report(catalogueFinalize, "Finalizing")
	slog.Info("catalogue done",
		slog.String("channel_id", req.ChannelID), slog.String("source", source),
		slog.Int("total", res.Total), slog.Int("saved", res.Saved))
	progress.report(100, fmt.Sprintf("Saved %d of %d videos", res.Saved, res.Total))
	return res, nil
}

// discover lists all tabs with yt-dlp, falling back to the uploads feed
// when the binary is missing.
func (c *CatalogueFetcher) discover(ctx context.Context, req CatalogueRequest, progress Progress) ([]catalogueEntry, string, error) {
	if c.ytdlp != nil {
		tabs := c.tabs(req.IncludeShorts)
		var all []catalogueEntry
		seen := make(map[string]bool)
		for i, tab := range tabs {
			if err := checkCancelled(ctx); err != nil {
				return nil, "", err
			}
			progress.report(catalogueDiscoveryEnd*float64(i)/float64(len(tabs)), "Listing "+tab.path)
			entries, err := c.listTab(ctx, req.ChannelURL, tab)
			switch {
			case errors.Is(err, ErrYtdlpNotInstalled):
				slog.Warn("catalogue: yt-dlp missing, using uploads feed")
				return c.discoverFeed(ctx, req.ChannelID)
			case errors.Is(err, engine.ErrRemoteNotFound):
				// Channels without shorts or streams have no such tab.
				slog.Debug("catalogue: tab missing", slog.String("tab", tab.path))
				continue
			case err != nil:
				return nil, "", fmt.Errorf("list %s: %w", tab.path, err)
			}
			for _, e := range entries {
				if !seen[e.ID] {
					seen[e.ID] = true
					all = append(all, e)
				}
			}
		}
		return all, "ytdlp", nil
	}
	return c.discoverFeed(ctx, req.ChannelID)
}

func (c *CatalogueFetcher) discoverFeed(ctx context.Context, channelID string) ([]catalogueEntry, string, error) {
	entries, err := c.feed.List(ctx, channelID)
	if err != nil {
		return nil, "", err
	}
	return entries, "feed", nil
}

func (c *CatalogueFetcher) listTab(ctx context.Context, chURL string, tab catalogueTab) ([]catalogueEntry, error) {
	out, err := c.ytdlp.Run(ctx, "--flat-playlist", "-J", tabURL(chURL, tab.path))
	if err != nil {
		return nil, err
	}
	return parseFlatPlaylist(out, tab.typ)
}

func parseFlatPlaylist(data []byte, typ store.VideoType) ([]catalogueEntry, error) {
	var pl ytdlpPlaylist
	if err := json.Unmarshal(data, &pl); err != nil {
		return nil, fmt.Errorf("%w: yt-dlp playlist: %w", engine.ErrParse, err)
	}
	out := make([]catalogueEntry, 0, len(pl.Entries))
	for _, e := range pl.Entries {
		if e.ID == "" {
			continue
		}
		out = append(out, e.normalize(typ))
	}
	return out, nil
}

// tabURL points a channel URL at one of its sub-lists.
func tabURL(chURL, tab string) string {
	u := strings.TrimSuffix(chURL, "/")
	for _, t := range []string{"/videos", "/shorts", "/streams", "/featured"} {
		u = strings.TrimSuffix(u, t)
	}
	return u + "/" + tab
}

// ingest saves the thumbnail, then the row. No row is written without a thumbnail.
func (c *CatalogueFetcher) ingest(ctx context.Context, channelID string, e catalogueEntry) error {
	thumb := c.store.ThumbnailPath(channelID, e.ID)
	if err := SaveImagePNG(ctx, c.fetch, e.Thumbnail, thumb); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", engine.ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("thumbnail: %w", err)
	}
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	return c.store.UpsertVideo(ctx, store.Video{
		ID:            e.ID,
		ChannelID:     channelID,
		Type:          e.Type,
		URL:           entryURL(c.baseURL, e),
		Title:         e.Title,
		Description:   e.Description,
		Duration:      e.Duration,
		ViewCount:     e.ViewCount,
		LikeCount:     e.LikeCount,
		PubDate:       e.PubDate,
		ThumbnailPath: thumb,
	})
}

func entryURL(base string, e catalogueEntry) string {
	if e.Type == store.VideoTypeShort {
		return base + "/shorts/" + e.ID
	}
	return videoURL(base, e.ID)
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrCancelled, err)
	}
	return nil
}
