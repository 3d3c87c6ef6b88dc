// internal/imaging/loader.go
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"github.com/makeworld-the-better-one/dither/v2"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"ql-service/pkg/driver"
)

// Options controls how decoded images become printer bitmaps
type Options struct {
	// Dither applies Floyd-Steinberg error diffusion to a black/white palette.
	Dither bool
	// ScaleToFit shrinks images larger than MaxDots in either dimension.
	ScaleToFit bool
	MaxDots    int
}

// Loader decodes image files into grayscale bitmaps
type Loader struct {
	opts   Options
	logger *zap.Logger
}

var _ driver.BitmapSource = (*Loader)(nil)

// NewLoader creates a loader
func NewLoader(opts Options, logger *zap.Logger) *Loader {
	return &Loader{opts: opts, logger: logger}
}

// WithMaxDots returns a copy of the loader that fits images into n dots.
func (l *Loader) WithMaxDots(n int) *Loader {
	opts := l.opts
	opts.MaxDots = n
	return &Loader{opts: opts, logger: l.logger}
}

// Load reads and converts the image file at path
func (l *Loader) Load(ctx context.Context, path string) (*driver.Bitmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", driver.ErrImageLoadFailed, err)
	}
	return l.LoadBytes(path, data)
}

// LoadBytes decodes an in-memory image. name is only used for messages.
func (l *Loader) LoadBytes(name string, data []byte) (*driver.Bitmap, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %w", driver.ErrImageLoadFailed, name, err)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: '%s' has no pixels", driver.ErrImageLoadFailed, name)
	}

	bm := l.Convert(img)
	l.logger.Debug("Image loaded",
		zap.String("item", name),
		zap.String("format", format),
		zap.Int("source_width", bounds.Dx()),
		zap.Int("source_height", bounds.Dy()),
		zap.Int("width", bm.Width),
		zap.Int("height", bm.Height),
		zap.Bool("dither", l.opts.Dither),
	)
	return bm, nil
}

// Convert flattens img onto white and reduces it to a luminance bitmap,
// scaling and dithering as configured.
func (l *Loader) Convert(img image.Image) *driver.Bitmap {
	gray := flatten(img)

	if l.opts.ScaleToFit && l.opts.MaxDots > 0 {
		gray = fit(gray, l.opts.MaxDots)
	}

	if l.opts.Dither {
		return ditherBitmap(gray)
	}

	b := gray.Bounds()
	bm := &driver.Bitmap{Width: b.Dx(), Height: b.Dy(), Pix: make([]byte, b.Dx()*b.Dy())}
	for y := 0; y < b.Dy(); y++ {
		copy(bm.Pix[y*bm.Width:(y+1)*bm.Width], gray.Pix[y*gray.Stride:y*gray.Stride+bm.Width])
	}
	return bm
}

// flatten composites img over a white background into a zero-origin gray image
func flatten(img image.Image) *image.Gray {
	b := img.Bounds()
	rect := image.Rect(0, 0, b.Dx(), b.Dy())

	rgba := image.NewRGBA(rect)
	draw.Draw(rgba, rect, image.White, image.Point{}, draw.Src)
	draw.Draw(rgba, rect, img, b.Min, draw.Over)

	gray := image.NewGray(rect)
	draw.Draw(gray, rect, rgba, image.Point{}, draw.Src)
	return gray
}

// fit shrinks src so neither dimension exceeds maxDots, keeping the aspect ratio
func fit(src *image.Gray, maxDots int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDots && h <= maxDots {
		return src
	}

	scale := min(float64(maxDots)/float64(w), float64(maxDots)/float64(h))
	newW := max(1, min(maxDots, int(float64(w)*scale)))
	newH := max(1, min(maxDots, int(float64(h)*scale)))

	scaled := image.NewGray(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, draw.Src, nil)
	return scaled
}

var bwPalette = []color.Color{color.Black, color.White}

// ditherBitmap reduces src to pure black and white dots
func ditherBitmap(src *image.Gray) *driver.Bitmap {
	d := dither.NewDitherer(bwPalette)
	d.Matrix = dither.FloydSteinberg
	d.Serpentine = true

	paletted := d.DitherPaletted(src)
	b := paletted.Bounds()
	bm := &driver.Bitmap{Width: b.Dx(), Height: b.Dy(), Pix: make([]byte, b.Dx()*b.Dy())}
	for y := 0; y < bm.Height; y++ {
		for x := 0; x < bm.Width; x++ {
			if paletted.ColorIndexAt(b.Min.X+x, b.Min.Y+y) == 0 {
				bm.Pix[y*bm.Width+x] = 0x00
			} else {
				bm.Pix[y*bm.Width+x] = 0xff
			}
		}
	}
	return bm
}

// MemorySource serves uploaded images by name
type MemorySource struct {
	loader *Loader
	items  map[string][]byte
	mu     sync.RWMutex
}

var _ driver.BitmapSource = (*MemorySource)(nil)

// NewMemorySource creates an empty upload source backed by loader
func NewMemorySource(loader *Loader) *MemorySource {
	return &MemorySource{loader: loader, items: make(map[string][]byte)}
}

// Add stores data under name, replacing any previous upload with that name
func (s *MemorySource) Add(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[name] = data
}

// Len returns the number of stored uploads
func (s *MemorySource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Load decodes the upload stored under name
func (s *MemorySource) Load(ctx context.Context, name string) (*driver.Bitmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.items[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no upload named '%s'", driver.ErrImageLoadFailed, name)
	}
	return s.loader.LoadBytes(name, data)
}
