package analysis

import (
	"context"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	assert.Equal(t, []string{"Hello", "How are you", "Fine"}, SplitSentences("Hello! How are you?\nFine.  "))
	assert.Nil(t, SplitSentences("  \n\n "))
	assert.Equal(t, []string{"v1.2 is out", "ok"}, SplitSentences("v1.2 is out. ok"))
}

func TestSplitSentencesRoundTrip(t *testing.T) {
	inputs := []string{
		"Hello! How are you?\nFine.  ",
		"One. Two! Three?\n\nFour",
		"single line without punctuation",
	}
	for _, in := range inputs {
		first := SplitSentences(in)
		again := SplitSentences(strings.Join(first, ". "))
		assert.Equal(t, first, again, "round trip of %q", in)
	}
}

func TestSentencesWalksDocuments(t *testing.T) {
	var comments any
	require.NoError(t, json.Unmarshal([]byte(`[
		{"comment_id":"a","text":"Great video! Loved it.","parent":"root","replies":[
			{"comment_id":"b","text":"Agreed.","parent":"a","replies":[]}]},
		{"comment_id":"c","text":"Second thread","parent":"root","replies":[]}]`), &comments))
	assert.Equal(t, []string{"Great video", "Loved it.", "Agreed.", "Second thread"}, Sentences(comments))

	var transcript any
	require.NoError(t, json.Unmarshal([]byte(`{"video_id":"v","title":"ignored title","captions":[
		{"start":"00:00:00.000","end":"00:00:01.000","text":"first line"},
		{"start":"00:00:01.000","end":"00:00:02.000","text":"second line"}]}`), &transcript))
	assert.Equal(t, []string{"first line", "second line"}, Sentences(transcript))
}

func TestLoadSentences(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"text":"one. two"}]`), 0o644))
	bad := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{not json`), 0o644))

	got, err := LoadSentences(good)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got)

	_, err = LoadSentences(good, bad)
	assert.ErrorIs(t, err, engine.ErrParse)
	_, err = LoadSentences(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLabelFor(t *testing.T) {
	assert.Equal(t, Positive, LabelFor(0.05))
	assert.Equal(t, Neutral, LabelFor(0.049))
	assert.Equal(t, Neutral, LabelFor(-0.049))
	assert.Equal(t, Negative, LabelFor(-0.05))

	// higher compound never yields a lower label
	prev := LabelFor(-1)
	for c := -1.0; c <= 1.0; c += 0.01 {
		l := LabelFor(c)
		assert.GreaterOrEqual(t, int(l), int(prev), "compound %.2f", c)
		prev = l
	}
	assert.Equal(t, "Negative", Negative.String())
}

func TestSummarize(t *testing.T) {
	a := NewAnalyzer()
	sum, err := a.Summarize(context.Background(), []string{"I love it.", "It is fine.", "Terrible experience."})
	require.NoError(t, err)

	require.Len(t, sum.Scores, 3)
	assert.Greater(t, sum.Scores[0], 0.5)
	assert.Greater(t, sum.Scores[1], 0.05)
	assert.Less(t, sum.Scores[2], -0.3)
	assert.InDelta(t, 0.12, sum.Mean, 0.06)
	assert.Equal(t, Positive, sum.Label)
	assert.Equal(t, 2, sum.Positive)
	assert.Equal(t, 1, sum.Negative)
	assert.InDelta(t, 2.0/3, sum.Share(Positive), 1e-9)
}

func TestSummarizeEmptyAndCancelled(t *testing.T) {
	a := NewAnalyzer()
	sum, err := a.Summarize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Neutral, sum.Label)
	assert.Zero(t, sum.Share(Positive))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Summarize(ctx, []string{"x"})
	assert.ErrorIs(t, err, engine.ErrCancelled)
}

func TestRenderSentimentChart(t *testing.T) {
	img, err := RenderSentimentChart(&Summary{Sentences: 4, Positive: 2, Neutral: 1, Negative: 1, Mean: 0.2, Label: Positive}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, ChartWidth, ChartHeight), img.Bounds())

	small, err := RenderSentimentChart(&Summary{}, 400, 130)
	require.NoError(t, err)
	assert.Equal(t, 400, small.Bounds().Dx())

	_, err = RenderSentimentChart(nil, 0, 0)
	assert.Error(t, err)
}

func TestWordFrequencies(t *testing.T) {
	stop := DefaultStopwords("video")
	got := WordFrequencies([]string{
		"The Gopher's video is great, GREAT gopher",
		"great 2024 a I x video's",
	}, stop)
	require.NotEmpty(t, got)
	assert.Equal(t, WordCount{Word: "great", Count: 3}, got[0])
	assert.Equal(t, WordCount{Word: "gopher", Count: 2}, got[1])
	for _, wc := range got {
		assert.NotContains(t, []string{"the", "is", "2024", "video", "x", "a"}, wc.Word)
	}
}

func TestRenderWordCloud(t *testing.T) {
	var sentences []string
	words := []string{"golang", "channels", "goroutines", "interfaces", "generics", "modules", "testing", "benchmarks"}
	for i, w := range words {
		for n := 0; n < (len(words)-i)*3; n++ {
			sentences = append(sentences, w+" rocks")
		}
	}
	cloud, err := RenderWordCloud(context.Background(), sentences, CloudOptions{Width: 480, Height: 288, MaxWords: 5})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 480, 288), cloud.Image.Bounds())
	require.NotEmpty(t, cloud.Words)
	assert.LessOrEqual(t, len(cloud.Words), 5)
	assert.Equal(t, "rocks", cloud.Words[0].Word)

	for i := 1; i < len(cloud.Words); i++ {
		assert.LessOrEqual(t, cloud.Words[i].FontSize, cloud.Words[i-1].FontSize, "font size grew at rank %d", i)
	}
	for i, a := range cloud.Words {
		ra := image.Rect(a.X, a.Y, a.X+a.W, a.Y+a.H)
		assert.True(t, ra.In(cloud.Image.Bounds()), "%s outside canvas", a.Word)
		for _, b := range cloud.Words[i+1:] {
			rb := image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
			assert.False(t, ra.Overlaps(rb), "%s overlaps %s", a.Word, b.Word)
		}
	}
}

func TestRenderWordCloudCancelledAndEmpty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RenderWordCloud(ctx, []string{"gopher gopher"}, CloudOptions{Width: 200, Height: 120})
	assert.ErrorIs(t, err, engine.ErrCancelled)

	cloud, err := RenderWordCloud(context.Background(), []string{"the and of"}, CloudOptions{Width: 200, Height: 120})
	require.NoError(t, err)
	assert.Empty(t, cloud.Words)
}

func TestOccupancy(t *testing.T) {
	o := newOccupancy(10, 5)
	assert.True(t, o.free(0, 0, 10, 5))
	o.mark(2, 1, 3, 2)
	assert.False(t, o.free(0, 0, 10, 5))
	assert.False(t, o.free(4, 2, 2, 2))
	assert.True(t, o.free(5, 0, 5, 5))
	assert.True(t, o.free(0, 3, 10, 2))
	assert.False(t, o.free(8, 0, 3, 1), "out of bounds")
}

func TestSavePNG(t *testing.T) {
	img, err := RenderSentimentChart(&Summary{}, 200, 80)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "Analysis", "run_sentiment.png")
	require.NoError(t, SavePNG(img, path))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}
