package sources

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/anatolykoptev/statube/internal/engine"
	_ "golang.org/x/image/webp"
)

const maxImageBytes = 16 << 20

// SaveImagePNG downloads an image (JPEG, PNG, WebP or GIF), re-encodes it as
// PNG and writes it to dst atomically. Nothing is left at dst on failure.
func SaveImagePNG(ctx context.Context, f Fetcher, rawURL, dst string) error {
	if rawURL == "" {
		return fmt.Errorf("image: %w: empty url", engine.ErrParse)
	}
	var buf bytes.Buffer
	if _, err := f.Download(ctx, rawURL, &limitedBuffer{buf: &buf, max: maxImageBytes}); err != nil {
		return fmt.Errorf("image download: %w", err)
	}
	img, format, err := image.Decode(&buf)
	if err != nil {
		return fmt.Errorf("image decode: %w: %w", engine.ErrParse, err)
	}

	w, err := engine.NewAtomicWriter(dst)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		w.Abort()
		return fmt.Errorf("image encode %s→png: %w", format, err)
	}
	return w.Commit()
}

// limitedBuffer rejects writes past max bytes.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.buf.Len()+len(p) > l.max {
		return 0, fmt.Errorf("image larger than %d bytes", l.max)
	}
	return l.buf.Write(p)
}
