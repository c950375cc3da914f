package engine

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestChromeHeaders(t *testing.T) {
	h := ChromeHeaders()
	for _, key := range []string{"accept", "accept-language", "user-agent"} {
		if _, ok := h[key]; !ok {
			t.Errorf("ChromeHeaders() missing key %q", key)
		}
	}
}

func TestFetcherGetPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("hello"))
		case "/gzip":
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			gz.Write([]byte("compressed"))
			gz.Close()
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOptions{Timeout: 5 * time.Second})
	ctx := context.Background()

	body, err := f.GetPage(ctx, srv.URL+"/ok", nil)
	if err != nil {
		t.Fatalf("GetPage(/ok) error = %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}

	body, err = f.GetPage(ctx, srv.URL+"/gzip", nil)
	if err != nil {
		t.Fatalf("GetPage(/gzip) error = %v", err)
	}
	if string(body) != "compressed" {
		t.Errorf("body = %q, want %q", body, "compressed")
	}

	_, err = f.GetPage(ctx, srv.URL+"/missing", nil)
	if !errors.Is(err, ErrRemoteNotFound) {
		t.Errorf("GetPage(/missing) error = %v, want ErrRemoteNotFound", err)
	}
}

func TestFetcherDownload(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := NewFetcher(FetcherOptions{}).Download(context.Background(), srv.URL, &buf)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if n != int64(len(payload)) || buf.Len() != len(payload) {
		t.Errorf("downloaded %d bytes, want %d", n, len(payload))
	}
}

type stubProxies struct {
	next  *url.URL
	err   error
	calls atomic.Int32
}

func (s *stubProxies) Next(context.Context) (*url.URL, error) {
	s.calls.Add(1)
	return s.next, s.err
}
func (s *stubProxies) Fail(*url.URL) {}

func TestFetcherFallsBackToDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("direct"))
	}))
	defer srv.Close()

	proxies := &stubProxies{err: ErrNoProxyAvailable}
	f := NewFetcher(FetcherOptions{Proxies: proxies})
	body, err := f.GetPage(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if string(body) != "direct" {
		t.Errorf("body = %q, want %q", body, "direct")
	}
	if proxies.calls.Load() == 0 {
		t.Error("proxy source was never asked")
	}
	if got := f.ProxyURL(context.Background()); got != "" {
		t.Errorf("ProxyURL() = %q, want empty", got)
	}
}

func TestFetcherCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewFetcher(FetcherOptions{RequestsPerSecond: 1})
	_, err := f.GetPage(ctx, "http://127.0.0.1:1/", nil)
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("GetPage(cancelled) error = %v, want ErrCancelled", err)
	}
}
