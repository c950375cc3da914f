package sources

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/statube/internal/engine"
	"golang.org/x/net/html"
)

// Caption is one timed transcript segment.
type Caption struct {
	Start string `json:"start"` // HH:MM:SS.mmm
	End   string `json:"end"`
	Text  string `json:"text"`
}

// Transcript is the on-disk transcript document.
type Transcript struct {
	VideoID  string    `json:"video_id"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Captions []Caption `json:"captions"`
}

// inline word timings in auto captions: <00:00:01.500>
var cueTimestampTag = regexp.MustCompile(`<\d{1,2}:\d{2}(?::\d{2})?\.\d{3}>`)

type cue struct {
	start, end time.Duration
	lines      []string
}

// ParseVTT parses WebVTT into captions. Cue markup is stripped and the
// rolling duplicates of auto-generated captions are collapsed.
func ParseVTT(r io.Reader) ([]Caption, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var (
		cues    []cue
		cur     *cue
		skip    bool // inside NOTE / STYLE / REGION
		sawHead bool
	)
	flush := func() {
		if cur != nil && len(cur.lines) > 0 {
			cues = append(cues, *cur)
		}
		cur = nil
		skip = false
	}
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if !sawHead {
			line = strings.TrimPrefix(line, "\ufeff")
			if !strings.HasPrefix(line, "WEBVTT") {
				return nil, fmt.Errorf("%w: missing WEBVTT header", engine.ErrParse)
			}
			sawHead = true
			skip = true
			continue
		}
		if line == "" {
			flush()
			continue
		}
		if skip {
			continue
		}
		if cur == nil {
			if strings.HasPrefix(line, "NOTE") || line == "STYLE" || line == "REGION" {
				skip = true
				continue
			}
			if !strings.Contains(line, "-->") {
				continue // cue identifier
			}
			start, end, err := parseCueTiming(line)
			if err != nil {
				return nil, err
			}
			cur = &cue{start: start, end: end}
			continue
		}
		if text := stripCueMarkup(line); text != "" {
			cur.lines = append(cur.lines, text)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read vtt: %w", engine.ErrParse, err)
	}
	if !sawHead {
		return nil, fmt.Errorf("%w: empty vtt", engine.ErrParse)
	}
	flush()
	return collapseCues(cues), nil
}

// collapseCues drops lines repeated from the previous cue and merges cues
// whose text is entirely repeated into their predecessor.
func collapseCues(cues []cue) []Caption {
	var (
		out  []Caption
		last string
	)
	for _, c := range cues {
		var fresh []string
		for _, l := range c.lines {
			if l != last {
				fresh = append(fresh, l)
			}
		}
		if len(fresh) == 0 {
			if n := len(out); n > 0 && formatCueTime(c.end) > out[n-1].End {
				out[n-1].End = formatCueTime(c.end)
			}
			continue
		}
		last = c.lines[len(c.lines)-1]
		out = append(out, Caption{
			Start: formatCueTime(c.start),
			End:   formatCueTime(c.end),
			Text:  strings.Join(fresh, " "),
		})
	}
	return out
}

func parseCueTiming(line string) (time.Duration, time.Duration, error) {
	parts := strings.SplitN(line, "-->", 2)
	start, err := parseCueTime(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	endField := strings.Fields(parts[1])
	if len(endField) == 0 {
		return 0, 0, fmt.Errorf("%w: cue without end time", engine.ErrParse)
	}
	end, err := parseCueTime(endField[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseCueTime accepts HH:MM:SS.mmm and MM:SS.mmm.
func parseCueTime(s string) (time.Duration, error) {
	clock, frac, ok := strings.Cut(s, ".")
	if !ok || len(frac) != 3 {
		return 0, fmt.Errorf("%w: bad cue time %q", engine.ErrParse, s)
	}
	fields := strings.Split(clock, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("%w: bad cue time %q", engine.ErrParse, s)
	}
	var total time.Duration
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: bad cue time %q", engine.ErrParse, s)
		}
		total = total*60 + time.Duration(n)
	}
	ms, err := strconv.Atoi(frac)
	if err != nil {
		return 0, fmt.Errorf("%w: bad cue time %q", engine.ErrParse, s)
	}
	return total*time.Second + time.Duration(ms)*time.Millisecond, nil
}

func formatCueTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

// stripCueMarkup removes <c>, <v>, <i> and timing tags, unescaping entities.
func stripCueMarkup(line string) string {
	line = cueTimestampTag.ReplaceAllString(line, "")
	z := html.NewTokenizer(strings.NewReader(line))
	var sb strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(z.Text())
		}
	}
}
