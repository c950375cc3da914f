package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/anatolykoptev/statube/internal/engine/store"
)

// fakeFetcher serves canned bodies by exact URL.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string][]byte
	hits  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: make(map[string][]byte), hits: make(map[string]int)}
}

func (f *fakeFetcher) set(url string, body []byte) { f.pages[url] = body }

func (f *fakeFetcher) get(url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[url]++
	b, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrRemoteNotFound, url)
	}
	return b, nil
}

func (f *fakeFetcher) GetPage(ctx context.Context, url string, _ map[string]string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.get(url)
}

func (f *fakeFetcher) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	b, err := f.GetPage(ctx, url, nil)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		img.Set(x, 1, color.RGBA{R: 200, A: 255})
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// fakeYtdlp installs a shell script standing in for yt-dlp.
func fakeYtdlp(t *testing.T, script string) *Ytdlp {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp is a shell script")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return &Ytdlp{Path: path, Timeout: 10 * time.Second}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", `{"a":1};rest`, `{"a":1}`},
		{"nested", `{"a":{"b":[{}]}} trailing`, `{"a":{"b":[{}]}}`},
		{"brace in string", `{"a":"}{"};`, `{"a":"}{"}`},
		{"escaped quote", `{"a":"x\"}"}X`, `{"a":"x\"}"}`},
		{"not object", `[1,2]`, ``},
		{"unterminated", `{"a":{`, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(extractJSON([]byte(tt.in))); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWalkRenderers(t *testing.T) {
	data := []byte(`{"z":[{"item":{"n":1}},{"item":{"n":2}}],"a":{"item":{"n":0}}}`)
	var got []int
	walkRenderers(data, "item", func(raw json.RawMessage) bool {
		var v struct{ N int }
		json.Unmarshal(raw, &v)
		got = append(got, v.N)
		return true
	})
	// keys are visited in sorted order: "a" before "z"
	want := []int{0, 1, 2}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("walk order = %v, want %v", got, want)
	}

	got = nil
	walkRenderers(data, "item", func(raw json.RawMessage) bool {
		got = append(got, 0)
		return len(got) < 2
	})
	if len(got) != 2 {
		t.Errorf("walk did not stop: %d calls", len(got))
	}
}

func TestYtText(t *testing.T) {
	var txt ytText
	json.Unmarshal([]byte(`{"runs":[{"text":"Hello "},{"text":"world"}],"accessibility":{"accessibilityData":{"label":"Hello world label"}}}`), &txt)
	if txt.String() != "Hello world" {
		t.Errorf("String() = %q", txt.String())
	}
	if txt.Label() != "Hello world label" {
		t.Errorf("Label() = %q", txt.Label())
	}
	var nilText *ytText
	if nilText.String() != "" || nilText.Label() != "" {
		t.Error("nil ytText should render empty")
	}
}

func TestSaveImagePNG(t *testing.T) {
	f := newFakeFetcher()
	f.set("https://i.test/a.jpg", jpegBytes(t))
	f.set("https://i.test/bad.jpg", []byte("not an image"))
	dir := t.TempDir()

	dst := filepath.Join(dir, "ch", "a.png")
	if err := SaveImagePNG(context.Background(), f, "https://i.test/a.jpg", dst); err != nil {
		t.Fatalf("SaveImagePNG() error = %v", err)
	}
	file, err := os.Open(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if _, format, err := image.Decode(file); err != nil || format != "png" {
		t.Errorf("saved image format = %q, err = %v", format, err)
	}

	bad := filepath.Join(dir, "ch", "bad.png")
	if err := SaveImagePNG(context.Background(), f, "https://i.test/bad.jpg", bad); err == nil {
		t.Error("SaveImagePNG(garbage) error = nil")
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Errorf("failed conversion left %s behind", bad)
	}
}
