package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/anatolykoptev/statube/internal/engine/store"
)

const ytChannelFilter = "EgIQAg%3D%3D" // channels-only filter param

// SearchMode selects between the autocomplete and the full search.
type SearchMode string

const (
	// SearchFast returns a handful of hits without images or persistence.
	SearchFast SearchMode = "fast"
	// SearchThorough downloads profile images and upserts every hit.
	SearchThorough SearchMode = "thorough"
)

// Default result limits per mode.
const (
	FastLimit     = 6
	ThoroughLimit = 20
)

// SearchOptions configures one search.
type SearchOptions struct {
	Mode     SearchMode
	Limit    int      // 0 = mode default
	Progress Progress // thorough mode only
}

// ChannelHit is one search result.
type ChannelHit struct {
	Rank         int    `json:"rank"`
	ChannelID    string `json:"channel_id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	SubCount     string `json:"sub_count"`
	Subscribers  int64  `json:"subscribers,omitempty"`
	Description  string `json:"desc,omitempty"`
	ThumbnailURL string `json:"-"`
	ProfilePic   string `json:"profile_pic,omitempty"`
}

// ChannelHits maps channel_id → hit. Rank preserves result order.
type ChannelHits map[string]ChannelHit

// Searcher finds channels by name.
type Searcher struct {
	store   *store.Store
	fetch   Fetcher
	baseURL string
}

// NewSearcher creates a searcher persisting thorough results into st.
func NewSearcher(st *store.Store, f Fetcher) *Searcher {
	return &Searcher{store: st, fetch: f, baseURL: defaultBaseURL}
}

type channelRenderer struct {
	ChannelID           string       `json:"channelId"`
	Title               ytText       `json:"title"`
	Thumbnail           ytThumbnails `json:"thumbnail"`
	DescriptionSnippet  *ytText      `json:"descriptionSnippet"`
	VideoCountText      *ytText      `json:"videoCountText"`
	SubscriberCountText *ytText      `json:"subscriberCountText"`
	NavigationEndpoint  struct {
		BrowseEndpoint struct {
			CanonicalBaseURL string `json:"canonicalBaseUrl"`
		} `json:"browseEndpoint"`
	} `json:"navigationEndpoint"`
}

// subCount prefers videoCountText (where the results page puts subscribers),
// then its accessibility label, then subscriberCountText unless it is a handle.
func (r channelRenderer) subCount() string {
	if s := r.VideoCountText.String(); s != "" {
		return s
	}
	if s := r.VideoCountText.Label(); s != "" {
		return s
	}
	if s := r.SubscriberCountText.String(); s != "" && !strings.HasPrefix(s, "@") {
		return s
	}
	return ""
}

// Search queries the results page for channels. The first fatal error
// (page fetch, parse, store) is returned.
func (s *Searcher) Search(ctx context.Context, query string, opts SearchOptions) (ChannelHits, error) {
	engine.IncrChannelSearch()
	query = strings.TrimSpace(query)
	if query == "" {
		return ChannelHits{}, nil
	}
	if opts.Mode == "" {
		opts.Mode = SearchThorough
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = ThoroughLimit
		if opts.Mode == SearchFast {
			limit = FastLimit
		}
	}
	thorough := opts.Mode == SearchThorough
	if thorough {
		opts.Progress.report(0, fmt.Sprintf("Searching channels for %q", query))
	}

	searchURL := s.baseURL + "/results?search_query=" + url.QueryEscape(query) + "&sp=" + ytChannelFilter
	body, err := s.fetch.GetPage(ctx, searchURL, map[string]string{"accept-language": "en-US,en;q=0.9"})
	if err != nil {
		return nil, fmt.Errorf("channel search page: %w", err)
	}
	renderers, err := parseChannelRenderers(body, limit)
	if err != nil {
		return nil, err
	}

	hits := make(ChannelHits, len(renderers))
	for i, r := range renderers {
		if ctx.Err() != nil {
			return hits, fmt.Errorf("%w: %w", engine.ErrCancelled, ctx.Err())
		}
		hit := ChannelHit{
			Rank:         i,
			ChannelID:    r.ChannelID,
			Title:        r.Title.String(),
			URL:          s.resolveChannelURL(r),
			SubCount:     r.subCount(),
			Subscribers:  engine.ParseCount(r.subCount()),
			Description:  engine.TruncateRunes(r.DescriptionSnippet.String(), 500, "…"),
			ThumbnailURL: r.Thumbnail.largest(),
		}
		if thorough {
			opts.Progress.report(float64(i)*100/float64(len(renderers)), "Saving "+hit.Title)
			if err := s.persist(ctx, &hit); err != nil {
				return hits, err
			}
		}
		hits[hit.ChannelID] = hit
	}
	if thorough {
		opts.Progress.report(100, fmt.Sprintf("Found %d channels", len(hits)))
	}
	slog.Info("channel search", slog.String("query", query), slog.String("mode", string(opts.Mode)), slog.Int("hits", len(hits)))
	return hits, nil
}

// persist downloads the profile image (best effort) and upserts the channel.
func (s *Searcher) persist(ctx context.Context, hit *ChannelHit) error {
	if hit.ThumbnailURL != "" {
		dst := s.store.ProfilePicPath(hit.ChannelID)
		if err := SaveImagePNG(ctx, s.fetch, hit.ThumbnailURL, dst); err != nil {
			slog.Debug("channel search: profile image failed",
				slog.String("channel_id", hit.ChannelID), slog.Any("error", err))
		} else {
			hit.ProfilePic = dst
		}
	}
	err := s.store.UpsertChannel(ctx, store.Channel{
		ID:          hit.ChannelID,
		Name:        hit.Title,
		URL:         hit.URL,
		SubCount:    hit.SubCount,
		Description: hit.Description,
		ProfilePic:  hit.ProfilePic,
	})
	if err != nil {
		return fmt.Errorf("save channel %s: %w", hit.ChannelID, err)
	}
	return nil
}

func (s *Searcher) resolveChannelURL(r channelRenderer) string {
	if p := r.NavigationEndpoint.BrowseEndpoint.CanonicalBaseURL; p != "" {
		return s.baseURL + p
	}
	return channelURL(s.baseURL, r.ChannelID)
}

// parseChannelRenderers finds the ytInitialData script and collects up to
// limit distinct channelRenderer entries.
func parseChannelRenderers(page []byte, limit int) ([]channelRenderer, error) {
	data, err := initialData(page)
	if err != nil {
		return nil, err
	}
	var out []channelRenderer
	seen := make(map[string]bool)
	walkRenderers(data, "channelRenderer", func(raw json.RawMessage) bool {
		var r channelRenderer
		if json.Unmarshal(raw, &r) == nil && r.ChannelID != "" && !seen[r.ChannelID] {
			seen[r.ChannelID] = true
			out = append(out, r)
		}
		return len(out) < limit
	})
	return out, nil
}

// initialData locates the <script> holding ytInitialData and cuts its JSON.
func initialData(page []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%w: search page html: %w", engine.ErrParse, err)
	}
	var script string
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if strings.Contains(text, ytInitialDataMarker) {
			script = text
			return false
		}
		return true
	})
	idx := strings.Index(script, ytInitialDataMarker)
	if idx < 0 {
		return nil, fmt.Errorf("%w: ytInitialData not found", engine.ErrParse)
	}
	data := extractJSON([]byte(script[idx+len(ytInitialDataMarker):]))
	if data == nil {
		return nil, fmt.Errorf("%w: failed to extract ytInitialData JSON", engine.ErrParse)
	}
	return data, nil
}
