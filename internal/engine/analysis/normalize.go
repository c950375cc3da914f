// Package analysis turns transcript and comment corpora into sentences,
// sentiment summaries and word clouds.
package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/anatolykoptev/statube/internal/engine"
)

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+|\n+`)

// SplitSentences splits text on terminal punctuation followed by whitespace
// and on newline runs. Empty pieces are dropped.
func SplitSentences(text string) []string {
	var out []string
	for _, part := range sentenceBoundary.Split(text, -1) {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Sentences flattens a decoded JSON document depth-first. Strings are split
// directly; objects contribute "text", then "captions", then "replies".
func Sentences(doc any) []string {
	var out []string
	var walk func(v any)
	walk = func(v any) {
		switch x := v.(type) {
		case string:
			out = append(out, SplitSentences(x)...)
		case []any:
			for _, item := range x {
				walk(item)
			}
		case map[string]any:
			if text, ok := x["text"].(string); ok {
				out = append(out, SplitSentences(text)...)
			}
			if caps, ok := x["captions"]; ok {
				walk(caps)
			}
			if replies, ok := x["replies"]; ok {
				walk(replies)
			}
		}
	}
	walk(doc)
	return out
}

// LoadSentences reads transcript or comment blobs in order.
func LoadSentences(paths ...string) ([]string, error) {
	var out []string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read corpus %s: %w", p, err)
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: corpus %s: %w", engine.ErrParse, p, err)
		}
		out = append(out, Sentences(doc)...)
	}
	return out, nil
}
