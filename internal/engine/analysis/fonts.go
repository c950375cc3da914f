package analysis

import (
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	fontOnce   sync.Once
	regular    *truetype.Font
	regularErr error
)

func regularFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		regular, regularErr = truetype.Parse(goregular.TTF)
	})
	if regularErr != nil {
		return nil, fmt.Errorf("%w: go regular font: %w", engine.ErrInternal, regularErr)
	}
	return regular, nil
}

// faceCache holds Go Regular faces by pixel size for one render.
// Faces keep glyph caches and must not cross goroutines.
type faceCache struct {
	font  *truetype.Font
	faces map[int]font.Face
}

func newFaceCache() (*faceCache, error) {
	f, err := regularFont()
	if err != nil {
		return nil, err
	}
	return &faceCache{font: f, faces: make(map[int]font.Face)}, nil
}

func (c *faceCache) get(size int) font.Face {
	if f, ok := c.faces[size]; ok {
		return f
	}
	f := truetype.NewFace(c.font, &truetype.Options{Size: float64(size), Hinting: font.HintingFull})
	c.faces[size] = f
	return f
}

// SavePNG writes img to path atomically.
func SavePNG(img image.Image, path string) error {
	w, err := engine.NewAtomicWriter(path)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		w.Abort()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return w.Commit()
}
