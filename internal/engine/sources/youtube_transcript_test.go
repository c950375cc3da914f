package sources

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/anatolykoptev/statube/internal/engine"
)

const fakeSubsScript = `
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift ;;
    *) url="$1" ;;
  esac
  shift
done
dir=$(dirname "$out")
case "$url" in
  *v=abc)
    cat > "$dir/abc.en.vtt" <<'EOF'
WEBVTT
Kind: captions

00:00:00.000 --> 00:00:01.500
hello there

00:00:01.500 --> 00:00:03.000
general <c>kenobi</c>
EOF
    echo '{"id":"abc","title":"Video ABC","webpage_url":"https://www.youtube.com/watch?v=abc"}'
    ;;
  *) echo '{"id":"nosubs","title":"No subs"}' ;;
esac
`

func TestTranscriptFetcherYtdlp(t *testing.T) {
	st := openStore(t)
	tf := NewTranscriptFetcher(st, newFakeFetcher(), fakeYtdlp(t, fakeSubsScript))
	ctx := context.Background()

	var pct []float64
	results, err := tf.Fetch(ctx, Selection{"UC1": {"abc", "nosubs"}}, "en", func(p float64, _ string) {
		pct = append(pct, p)
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	abc := results[0]
	if abc.Path != st.TranscriptPath("abc") || abc.Captions != 2 {
		t.Errorf("abc = %+v", abc)
	}
	var doc Transcript
	data, err := os.ReadFile(abc.Path)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Video ABC" || doc.Captions[1].Text != "general kenobi" || doc.Captions[1].Start != "00:00:01.500" {
		t.Errorf("doc = %+v", doc)
	}
	if results[1].Path != "" || results[1].Remarks == "" {
		t.Errorf("nosubs = %+v", results[1])
	}

	refs, err := st.TranscriptRefs(ctx, "UC1")
	if err != nil || len(refs) != 1 || refs[0].Language != "en" {
		t.Errorf("refs = %+v, %v", refs, err)
	}
	if leftovers, _ := filepath.Glob(filepath.Join(st.ScratchDir(), "*.vtt")); len(leftovers) != 0 {
		t.Errorf("vtt files left behind: %v", leftovers)
	}
	for i := 1; i < len(pct); i++ {
		if pct[i] < pct[i-1] {
			t.Errorf("progress decreased: %v", pct)
		}
	}
	if pct[len(pct)-1] != 100 {
		t.Errorf("final progress = %v", pct[len(pct)-1])
	}
}

func TestTranscriptFetcherCancelledBeforeFirstItem(t *testing.T) {
	st := openStore(t)
	tf := NewTranscriptFetcher(st, newFakeFetcher(), fakeYtdlp(t, fakeSubsScript))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := tf.Fetch(ctx, Selection{"UC1": {"abc"}}, "en", nil)
	if !errors.Is(err, engine.ErrCancelled) {
		t.Errorf("error = %v, want ErrCancelled", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v", results)
	}
	refs, _ := st.TranscriptRefs(context.Background(), "")
	if len(refs) != 0 {
		t.Errorf("cancelled run registered %d transcripts", len(refs))
	}
}

func TestTranscriptFetcherWatchPage(t *testing.T) {
	st := openStore(t)
	f := newFakeFetcher()
	player := `{"videoDetails":{"title":"Fallback"},"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[` +
		`{"baseUrl":"https://yt.test/api/timedtext?v=vid&lang=de","languageCode":"de"},` +
		`{"baseUrl":"https://yt.test/api/timedtext?v=vid&lang=en&kind=asr","languageCode":"en","kind":"asr"}]}}}`
	f.set(testBase+"/watch?v=vid", []byte(`<html><script>var ytInitialPlayerResponse = `+player+`;</script></html>`))
	f.set("https://yt.test/api/timedtext?v=vid&lang=en&kind=asr", []byte(`<transcript><text start="1" dur="2">auto line</text></transcript>`))

	tf := NewTranscriptFetcher(st, f, nil)
	tf.baseURL = testBase
	results, err := tf.Fetch(context.Background(), Selection{"UC9": {"vid"}}, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Path == "" || results[0].Language != "en" {
		t.Fatalf("result = %+v", results[0])
	}
	data, _ := os.ReadFile(results[0].Path)
	var doc Transcript
	json.Unmarshal(data, &doc)
	if doc.Title != "Fallback" || len(doc.Captions) != 1 || doc.Captions[0].End != "00:00:03.000" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestPickBestTrack(t *testing.T) {
	tracks := []captionTrack{
		{BaseURL: "u1&exp=xpe", LanguageCode: "en"},
		{BaseURL: "u2", LanguageCode: "en", Kind: "asr"},
		{BaseURL: "u3", LanguageCode: "en-GB"},
		{BaseURL: "u4", LanguageCode: "fr"},
	}
	if tr, ok := pickBestTrack(tracks, "en"); !ok || tr.BaseURL != "u3" {
		t.Errorf("en pick = %+v, %v", tr, ok)
	}
	if tr, ok := pickBestTrack(tracks[:2], "en"); !ok || tr.BaseURL != "u2" {
		t.Errorf("asr fallback = %+v, %v", tr, ok)
	}
	if _, ok := pickBestTrack(tracks, "ja"); ok {
		t.Error("picked a track for a missing language")
	}
}
