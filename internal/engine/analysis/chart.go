package analysis

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/fogleman/gg"
)

// Default chart canvas.
const (
	ChartWidth  = 1600
	ChartHeight = 520
)

var (
	chartBackground = color.RGBA{0xfa, 0xfa, 0xfa, 0xff}
	chartInk        = color.RGBA{0x21, 0x21, 0x21, 0xff}
	chartTrack      = color.RGBA{0xe0, 0xe0, 0xe0, 0xff}
	labelColors     = map[Label]color.RGBA{
		Positive: {0x2e, 0x7d, 0x32, 0xff},
		Neutral:  {0x9e, 0x9e, 0x9e, 0xff},
		Negative: {0xc6, 0x28, 0x28, 0xff},
	}
)

// RenderSentimentChart draws the label distribution as a stacked bar with
// per-class counts and the mean compound score. Zero sizes use the defaults.
func RenderSentimentChart(s *Summary, width, height int) (*image.RGBA, error) {
	if s == nil {
		return nil, fmt.Errorf("sentiment chart: nil summary")
	}
	if width <= 0 {
		width = ChartWidth
	}
	if height <= 0 {
		height = ChartHeight
	}
	faces, err := newFaceCache()
	if err != nil {
		return nil, err
	}
	W, H := float64(width), float64(height)
	unit := H / 520 // layout is designed at the default height
	margin := 60 * unit

	dc := gg.NewContext(width, height)
	dc.SetColor(chartBackground)
	dc.Clear()

	dc.SetColor(chartInk)
	dc.SetFontFace(faces.get(max(8, int(40*unit))))
	dc.DrawStringAnchored("Sentiment distribution", margin, margin, 0, 0.5)
	dc.SetFontFace(faces.get(max(8, int(26*unit))))
	dc.DrawStringAnchored(
		fmt.Sprintf("%s · mean compound %+.3f · %d sentences", s.Label, s.Mean, s.Sentences),
		W-margin, margin, 1, 0.5)

	barY, barH := 150*unit, 120*unit
	barW := W - 2*margin
	dc.SetColor(chartTrack)
	dc.DrawRectangle(margin, barY, barW, barH)
	dc.Fill()

	order := []Label{Negative, Neutral, Positive}
	x := margin
	for _, l := range order {
		w := barW * s.Share(l)
		if w <= 0 {
			continue
		}
		dc.SetColor(labelColors[l])
		dc.DrawRectangle(x, barY, w, barH)
		dc.Fill()
		if w > 90*unit {
			dc.SetColor(color.White)
			dc.DrawStringAnchored(fmt.Sprintf("%.0f%%", 100*s.Share(l)), x+w/2, barY+barH/2, 0.5, 0.5)
		}
		x += w
	}

	// Legend: one column per class.
	legendY := barY + barH + 90*unit
	colW := barW / float64(len(order))
	for i, l := range order {
		cx := margin + colW*float64(i)
		dc.SetColor(labelColors[l])
		dc.DrawRectangle(cx, legendY-18*unit, 36*unit, 36*unit)
		dc.Fill()
		dc.SetColor(chartInk)
		count := map[Label]int{Positive: s.Positive, Neutral: s.Neutral, Negative: s.Negative}[l]
		dc.DrawStringAnchored(
			fmt.Sprintf("%s: %d (%.1f%%)", l, count, 100*s.Share(l)),
			cx+52*unit, legendY, 0, 0.5)
	}

	// Mean marker on a [-1, 1] axis under the legend.
	axisY := legendY + 90*unit
	dc.SetColor(chartTrack)
	dc.SetLineWidth(4 * unit)
	dc.DrawLine(margin, axisY, margin+barW, axisY)
	dc.Stroke()
	mx := margin + barW*(s.Mean+1)/2
	dc.SetColor(labelColors[s.Label])
	dc.DrawCircle(mx, axisY, 14*unit)
	dc.Fill()

	return toRGBA(dc.Image()), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}
