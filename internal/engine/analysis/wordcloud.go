package analysis

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
)

// Word-cloud defaults.
const (
	CloudWidth      = 2800
	CloudHeight     = 1680
	DefaultMaxWords = 200

	cellSize        = 4 // occupancy grid resolution in px
	defaultMinFont  = 10
	fontStep        = 2
	defaultRelScale = 0.5
	spiralStep      = 1.5 // cells between spiral samples
)

var (
	wordToken = regexp.MustCompile(`[\p{L}\p{N}']+`)

	defaultPalette = []color.Color{
		color.RGBA{0x1b, 0x5e, 0x20, 0xff},
		color.RGBA{0x0d, 0x47, 0xa1, 0xff},
		color.RGBA{0xb7, 0x1c, 0x1c, 0xff},
		color.RGBA{0x4a, 0x14, 0x8c, 0xff},
		color.RGBA{0xe6, 0x51, 0x00, 0xff},
		color.RGBA{0x00, 0x60, 0x64, 0xff},
		color.RGBA{0x37, 0x47, 0x4f, 0xff},
	}
)

// CloudOptions configures RenderWordCloud. Zero values take the defaults.
type CloudOptions struct {
	Width, Height int
	MaxWords      int
	Background    color.Color
	Stopwords     StopwordSet // nil = English list + configured extras
	MaxFontSize   int         // 0 = Height/5
	MinFontSize   int
	Palette       []color.Color
	// RelativeScaling blends rank (0) and frequency (1) into font size.
	RelativeScaling float64
}

func (o CloudOptions) withDefaults() CloudOptions {
	if o.Width <= 0 {
		o.Width = CloudWidth
	}
	if o.Height <= 0 {
		o.Height = CloudHeight
	}
	if o.MaxWords <= 0 {
		o.MaxWords = DefaultMaxWords
	}
	if o.Background == nil {
		o.Background = color.White
	}
	if o.Stopwords == nil {
		o.Stopwords = DefaultStopwords(engine.Cfg.ExtraStopwords...)
	}
	if o.MaxFontSize <= 0 {
		o.MaxFontSize = o.Height / 5
	}
	if o.MinFontSize <= 0 {
		o.MinFontSize = defaultMinFont
	}
	if len(o.Palette) == 0 {
		o.Palette = defaultPalette
	}
	if o.RelativeScaling <= 0 || o.RelativeScaling > 1 {
		o.RelativeScaling = defaultRelScale
	}
	return o
}

// WordCount is one token and its frequency.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// PlacedWord is a word drawn on the cloud; X, Y is the top-left in px.
type PlacedWord struct {
	WordCount
	FontSize int `json:"font_size"`
	X, Y     int
	W, H     int
}

// WordCloud is a rendered cloud and its layout.
type WordCloud struct {
	Image *image.RGBA
	Words []PlacedWord
}

// WordFrequencies counts single tokens (no collocations), most frequent
// first, ties alphabetical. Stopwords, one-rune tokens and numbers are skipped.
func WordFrequencies(sentences []string, stop StopwordSet) []WordCount {
	counts := make(map[string]int)
	for _, s := range sentences {
		for _, tok := range wordToken.FindAllString(strings.ToLower(s), -1) {
			tok = strings.Trim(tok, "'")
			tok = strings.TrimSuffix(tok, "'s")
			if utf8.RuneCountInString(tok) < 2 || isNumber(tok) || stop.Has(tok) {
				continue
			}
			counts[tok]++
		}
	}
	out := make([]WordCount, 0, len(counts))
	for w, c := range counts {
		out = append(out, WordCount{Word: w, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	return out
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '\'' {
			return false
		}
	}
	return true
}

// RenderWordCloud lays out the most frequent words on a spiral from the
// centre, largest first. Font size never increases along the ranking; a
// word that fits nowhere is retried smaller, and layout stops once the
// minimum size no longer fits.
func RenderWordCloud(ctx context.Context, sentences []string, opts CloudOptions) (*WordCloud, error) {
	opts = opts.withDefaults()
	words := WordFrequencies(sentences, opts.Stopwords)
	if len(words) > opts.MaxWords {
		words = words[:opts.MaxWords]
	}
	faces, err := newFaceCache()
	if err != nil {
		return nil, err
	}

	grid := newOccupancy(opts.Width/cellSize, opts.Height/cellSize)
	var placed []PlacedWord
	size := opts.MaxFontSize
	for i, wc := range words {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", engine.ErrCancelled, ctx.Err())
		}
		if i > 0 {
			ratio := float64(wc.Count) / float64(words[i-1].Count)
			size = int(math.Round((opts.RelativeScaling*ratio + 1 - opts.RelativeScaling) * float64(size)))
		}
		var ok bool
		for size >= opts.MinFontSize {
			var pw PlacedWord
			if pw, ok = place(grid, faces.get(size), wc); ok {
				pw.FontSize = size
				placed = append(placed, pw)
				break
			}
			size -= fontStep
		}
		if !ok {
			break
		}
	}

	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(opts.Background)
	dc.Clear()
	for i, pw := range placed {
		f := faces.get(pw.FontSize)
		dc.SetFontFace(f)
		dc.SetColor(opts.Palette[i%len(opts.Palette)])
		ascent := float64(f.Metrics().Ascent.Ceil())
		dc.DrawString(pw.Word, float64(pw.X)+cellSize/2, float64(pw.Y)+cellSize/2+ascent)
	}
	return &WordCloud{Image: toRGBA(dc.Image()), Words: placed}, nil
}

// place finds a free box for wc on the spiral and marks it taken.
func place(grid *occupancy, f font.Face, wc WordCount) (PlacedWord, bool) {
	m := f.Metrics()
	wPx := font.MeasureString(f, wc.Word).Ceil() + cellSize
	hPx := (m.Ascent + m.Descent).Ceil() + cellSize
	w := (wPx + cellSize - 1) / cellSize
	h := (hPx + cellSize - 1) / cellSize
	if w > grid.w || h > grid.h {
		return PlacedWord{}, false
	}

	cx, cy := float64(grid.w-w)/2, float64(grid.h-h)/2
	aspect := float64(grid.w) / float64(grid.h)
	maxR := math.Hypot(float64(grid.w), float64(grid.h))
	for theta := 0.0; ; {
		r := theta // archimedean, one cell per radian
		if r > maxR {
			return PlacedWord{}, false
		}
		x := int(math.Round(cx + r*math.Cos(theta)*aspect))
		y := int(math.Round(cy + r*math.Sin(theta)))
		if grid.free(x, y, w, h) {
			grid.mark(x, y, w, h)
			return PlacedWord{WordCount: wc, X: x * cellSize, Y: y * cellSize, W: w * cellSize, H: h * cellSize}, true
		}
		theta += spiralStep / math.Max(r*aspect, 1)
	}
}

// occupancy is a cell grid with a summed-area table for O(1) box queries.
type occupancy struct {
	w, h  int
	cells []bool
	sat   []int32 // (w+1)*(h+1)
}

func newOccupancy(w, h int) *occupancy {
	return &occupancy{w: w, h: h, cells: make([]bool, w*h), sat: make([]int32, (w+1)*(h+1))}
}

func (o *occupancy) at(x, y int) int32 { return o.sat[y*(o.w+1)+x] }

func (o *occupancy) free(x, y, w, h int) bool {
	if x < 0 || y < 0 || x+w > o.w || y+h > o.h {
		return false
	}
	return o.at(x+w, y+h)-o.at(x, y+h)-o.at(x+w, y)+o.at(x, y) == 0
}

// mark fills the box and rebuilds the table rows it affects.
func (o *occupancy) mark(x, y, w, h int) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			o.cells[yy*o.w+xx] = true
		}
	}
	stride := o.w + 1
	for yy := y; yy < o.h; yy++ {
		var row int32
		for xx := 0; xx < o.w; xx++ {
			if o.cells[yy*o.w+xx] {
				row++
			}
			o.sat[(yy+1)*stride+xx+1] = o.sat[yy*stride+xx+1] + row
		}
	}
}
