package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	return c
}

func TestCacheLoadMissing(t *testing.T) {
	c := newTestCache(t)
	doc := c.Load(context.Background(), "nothing_here")
	if doc == nil || len(doc) != 0 {
		t.Errorf("Load(missing) = %v, want empty document", doc)
	}
}

func TestCacheLoadMalformed(t *testing.T) {
	c := newTestCache(t)
	tests := []struct {
		name string
		data string
	}{
		{"truncated", `{"a": 1`},
		{"not json", `hello`},
		{"array", `[1, 2, 3]`},
		{"null", `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(c.Path("broken"), []byte(tt.data), 0o644); err != nil {
				t.Fatal(err)
			}
			doc := c.Load(context.Background(), "broken")
			if doc == nil || len(doc) != 0 {
				t.Errorf("Load(%s) = %v, want empty document", tt.name, doc)
			}
		})
	}
}

func TestCacheSaveLoad(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Save(ctx, "settings", map[string]any{"theme": "dark", "limit": 20}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	doc := c.Load(ctx, "settings")
	if got := doc["theme"]; got != "dark" {
		t.Errorf("theme = %v, want %q", got, "dark")
	}
	if got := doc["limit"]; got != float64(20) {
		t.Errorf("limit = %v, want 20", got)
	}

	// Overwrite replaces the whole document.
	if err := c.Save(ctx, "settings", map[string]any{"theme": "light"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	doc = c.Load(ctx, "settings")
	if _, ok := doc["limit"]; ok {
		t.Error("stale key survived overwrite")
	}

	// No temp files left behind.
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(c.Path("x")), ".statube-*.tmp"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestCacheInvalidKey(t *testing.T) {
	c := newTestCache(t)
	for _, name := range []string{"", "../escape", "a/b", "spaces here"} {
		err := c.Save(context.Background(), name, map[string]any{})
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Save(%q) error = %v, want ErrInvalidKey", name, err)
		}
	}
}

func TestCacheLoadJSON(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	type entry struct {
		Endpoints []string `json:"endpoints"`
	}
	if _, ok := CacheLoadJSON[entry](ctx, c, "typed"); ok {
		t.Error("expected miss on empty cache")
	}
	if err := c.Save(ctx, "typed", entry{Endpoints: []string{"1.2.3.4:80"}}); err != nil {
		t.Fatal(err)
	}
	got, ok := CacheLoadJSON[entry](ctx, c, "typed")
	if !ok {
		t.Fatal("expected hit after save")
	}
	if len(got.Endpoints) != 1 || got.Endpoints[0] != "1.2.3.4:80" {
		t.Errorf("got %v, want [1.2.3.4:80]", got.Endpoints)
	}
}
