package sources

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/anatolykoptev/statube/internal/engine"
)

const testBase = "https://yt.test"

func channelRendererJSON(id, title, subs string) string {
	return `{"channelRenderer":{"channelId":"` + id + `","title":{"simpleText":"` + title + `"},` +
		`"thumbnail":{"thumbnails":[{"url":"//yt3.test/` + id + `-88.jpg","width":88},{"url":"//yt3.test/` + id + `-176.jpg","width":176}]},` +
		`"descriptionSnippet":{"runs":[{"text":"About "},{"text":"` + title + `"}]},` +
		`"videoCountText":{"simpleText":"` + subs + `"},` +
		`"subscriberCountText":{"simpleText":"@` + strings.ToLower(id) + `"},` +
		`"navigationEndpoint":{"browseEndpoint":{"canonicalBaseUrl":"/@` + strings.ToLower(id) + `"}}}}`
}

func searchPage(renderers ...string) []byte {
	return []byte(`<!doctype html><html><head><script>var ytcfg = {};</script>` +
		`<script nonce="n">var ytInitialData = {"contents":{"twoColumnSearchResultsRenderer":{"primaryContents":` +
		`{"sectionListRenderer":{"contents":[{"itemSectionRenderer":{"contents":[` +
		strings.Join(renderers, ",") +
		`]}}]}}}}};</script></head><body></body></html>`)
}

func newTestSearcher(t *testing.T, f *fakeFetcher) *Searcher {
	s := NewSearcher(openStore(t), f)
	s.baseURL = testBase
	return s
}

func TestParseChannelRenderers(t *testing.T) {
	page := searchPage(
		channelRendererJSON("UCA", "Alpha", "1.2M subscribers"),
		channelRendererJSON("UCB", "Beta", "900 subscribers"),
		channelRendererJSON("UCA", "Alpha dup", "1.2M subscribers"),
	)
	rs, err := parseChannelRenderers(page, 10)
	if err != nil {
		t.Fatalf("parseChannelRenderers() error = %v", err)
	}
	if len(rs) != 2 {
		t.Fatalf("got %d renderers, want 2", len(rs))
	}
	if rs[0].ChannelID != "UCA" || rs[0].subCount() != "1.2M subscribers" {
		t.Errorf("first = %s %q", rs[0].ChannelID, rs[0].subCount())
	}
	if got := rs[0].Thumbnail.largest(); got != "https://yt3.test/UCA-176.jpg" {
		t.Errorf("largest thumbnail = %q", got)
	}

	if _, err := parseChannelRenderers([]byte("<html></html>"), 10); !errors.Is(err, engine.ErrParse) {
		t.Errorf("missing ytInitialData error = %v, want ErrParse", err)
	}
}

func TestSubCountFallbacks(t *testing.T) {
	var r channelRenderer
	json.Unmarshal([]byte(`{"videoCountText":{"accessibility":{"accessibilityData":{"label":"5 thousand subscribers"}}}}`), &r)
	if got := r.subCount(); got != "5 thousand subscribers" {
		t.Errorf("label fallback = %q", got)
	}

	r = channelRenderer{SubscriberCountText: &ytText{SimpleText: "@handle"}}
	if got := r.subCount(); got != "" {
		t.Errorf("handle must not be a sub count, got %q", got)
	}
	r = channelRenderer{SubscriberCountText: &ytText{SimpleText: "10K subscribers"}}
	if got := r.subCount(); got != "10K subscribers" {
		t.Errorf("subscriberCountText fallback = %q", got)
	}
}

func TestSearchFastDoesNotPersist(t *testing.T) {
	f := newFakeFetcher()
	var renderers []string
	for _, id := range []string{"UC1", "UC2", "UC3", "UC4", "UC5", "UC6", "UC7", "UC8"} {
		renderers = append(renderers, channelRendererJSON(id, "Chan "+id, "1K subscribers"))
	}
	f.set(testBase+"/results?search_query=go+lang&sp="+ytChannelFilter, searchPage(renderers...))
	s := newTestSearcher(t, f)

	var calls int
	hits, err := s.Search(context.Background(), "go lang", SearchOptions{
		Mode:     SearchFast,
		Progress: func(float64, string) { calls++ },
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != FastLimit {
		t.Errorf("fast hits = %d, want %d", len(hits), FastLimit)
	}
	if calls != 0 {
		t.Errorf("fast mode reported progress %d times", calls)
	}
	chans, _ := s.store.Channels(context.Background())
	if len(chans) != 0 {
		t.Errorf("fast mode persisted %d channels", len(chans))
	}
	if hits["UC1"].URL != testBase+"/@uc1" {
		t.Errorf("url = %q", hits["UC1"].URL)
	}
}

func TestSearchThoroughPersists(t *testing.T) {
	f := newFakeFetcher()
	url := testBase + "/results?search_query=golang&sp=" + ytChannelFilter
	f.set(url, searchPage(
		channelRendererJSON("UCA", "Alpha", "1.2M subscribers"),
		channelRendererJSON("UCB", "Beta", "900 subscribers"),
	))
	f.set("https://yt3.test/UCA-176.jpg", jpegBytes(t))
	// UCB's image is missing: the channel is still saved.
	s := newTestSearcher(t, f)
	ctx := context.Background()

	var last float64
	hits, err := s.Search(ctx, "golang", SearchOptions{Mode: SearchThorough, Progress: func(p float64, _ string) {
		if p < last {
			t.Errorf("progress went back from %v to %v", last, p)
		}
		last = p
	}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 || last != 100 {
		t.Fatalf("hits = %d, last progress = %v", len(hits), last)
	}

	a, ok, err := s.store.Channel(ctx, "UCA")
	if err != nil || !ok {
		t.Fatalf("Channel(UCA) = %v, %v", ok, err)
	}
	if a.ProfilePic == "" {
		t.Error("UCA profile picture not recorded")
	} else if _, err := os.Stat(a.ProfilePic); err != nil {
		t.Errorf("profile picture missing on disk: %v", err)
	}
	b, ok, _ := s.store.Channel(ctx, "UCB")
	if !ok || b.ProfilePic != "" {
		t.Errorf("UCB = %+v, %v", b, ok)
	}

	// Rediscovery with a new name updates in place.
	f.set(url, searchPage(channelRendererJSON("UCA", "Alpha Renamed", "1.3M subscribers")))
	if _, err := s.Search(ctx, "golang", SearchOptions{}); err != nil {
		t.Fatal(err)
	}
	chans, _ := s.store.Channels(ctx)
	if len(chans) != 2 {
		t.Fatalf("channels = %d, want 2", len(chans))
	}
	a, _, _ = s.store.Channel(ctx, "UCA")
	if a.Name != "Alpha Renamed" || a.SubCount != "1.3M subscribers" {
		t.Errorf("UCA after rediscovery = %+v", a)
	}
}

func TestSearchCancelled(t *testing.T) {
	f := newFakeFetcher()
	f.set(testBase+"/results?search_query=x&sp="+ytChannelFilter, searchPage(channelRendererJSON("UCA", "A", "")))
	s := newTestSearcher(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Search(ctx, "x", SearchOptions{}); err == nil {
		t.Error("Search(cancelled) error = nil")
	}
	chans, _ := s.store.Channels(context.Background())
	if len(chans) != 0 {
		t.Errorf("cancelled search saved %d channels", len(chans))
	}
}
