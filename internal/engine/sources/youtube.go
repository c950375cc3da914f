package sources

// YouTube ingestion is split across files by responsibility:
//   youtube.go           : shared page primitives (ytInitialData extraction, text runs)
//   youtube_search.go    : channel search
//   youtube_catalogue.go : channel video catalogue + thumbnails
//   youtube_transcript.go: WebVTT transcripts via yt-dlp, watch-page fallback
//   youtube_comments.go  : comment threads via yt-dlp

import (
	"context"
	"encoding/json"
	"io"
	"maps"
	"slices"
	"strings"
)

const (
	defaultBaseURL      = "https://www.youtube.com"
	ytInitialDataMarker = "var ytInitialData = "
)

// Fetcher is the HTTP surface the sources need; *engine.Fetcher implements it.
type Fetcher interface {
	GetPage(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error)
	Download(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}

// Progress receives a percent in [0,100] and a status line.
type Progress func(percent float64, status string)

func (p Progress) report(percent float64, status string) {
	if p != nil {
		p(percent, status)
	}
}

// Selection maps channel_id → selected video ids.
type Selection map[string][]string

// Count returns the number of selected videos.
func (s Selection) Count() int {
	n := 0
	for _, ids := range s {
		n += len(ids)
	}
	return n
}

func videoURL(base, id string) string {
	return base + "/watch?v=" + id
}

func channelURL(base, id string) string {
	if strings.HasPrefix(id, "@") {
		return base + "/" + id
	}
	return base + "/channel/" + id
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

// ytText is YouTube's text node: either {"simpleText": "..."} or {"runs": [{"text": "..."}]}.
type ytText struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text string `json:"text"`
	} `json:"runs"`
	Accessibility *struct {
		AccessibilityData struct {
			Label string `json:"label"`
		} `json:"accessibilityData"`
	} `json:"accessibility"`
}

func (t *ytText) String() string {
	if t == nil {
		return ""
	}
	if t.SimpleText != "" {
		return t.SimpleText
	}
	var sb strings.Builder
	for _, r := range t.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// Label returns the accessibility label, "" when absent.
func (t *ytText) Label() string {
	if t == nil || t.Accessibility == nil {
		return ""
	}
	return t.Accessibility.AccessibilityData.Label
}

type ytThumbnails struct {
	Thumbnails []struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"thumbnails"`
}

// largest returns the widest thumbnail URL, made absolute.
func (t ytThumbnails) largest() string {
	best, bestW := "", -1
	for _, th := range t.Thumbnails {
		if th.Width > bestW {
			best, bestW = th.URL, th.Width
		}
	}
	if strings.HasPrefix(best, "//") {
		best = "https:" + best
	}
	return best
}

// walkRenderers recursively walks JSON for objects under key, calling fn on
// each until fn returns false.
func walkRenderers(data []byte, key string, fn func(raw json.RawMessage) bool) {
	stop := false
	var walk func(v json.RawMessage)
	walk = func(v json.RawMessage) {
		if stop || len(v) == 0 {
			return
		}
		switch v[0] {
		case '{':
			var obj map[string]json.RawMessage
			if json.Unmarshal(v, &obj) != nil {
				return
			}
			if raw, ok := obj[key]; ok {
				if !fn(raw) {
					stop = true
				}
				return
			}
			// Sorted keys keep the walk deterministic.
			for _, k := range slices.Sorted(maps.Keys(obj)) {
				walk(obj[k])
				if stop {
					return
				}
			}
		case '[':
			var arr []json.RawMessage
			if json.Unmarshal(v, &arr) != nil {
				return
			}
			for _, item := range arr {
				walk(item)
				if stop {
					return
				}
			}
		}
	}
	walk(data)
}
