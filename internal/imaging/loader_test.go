// internal/imaging/loader_test.go
package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ql-service/pkg/driver"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func grayGradient(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 255 / max(1, width-1))})
		}
	}
	return img
}

func TestLoadBytesGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	img.SetGray(0, 0, color.Gray{Y: 0})
	img.SetGray(1, 0, color.Gray{Y: 100})
	img.SetGray(2, 0, color.Gray{Y: 255})
	img.SetGray(0, 1, color.Gray{Y: 30})
	img.SetGray(1, 1, color.Gray{Y: 200})
	img.SetGray(2, 1, color.Gray{Y: 128})

	loader := NewLoader(Options{}, zaptest.NewLogger(t))
	bm, err := loader.LoadBytes("label.png", encodePNG(t, img))
	require.NoError(t, err)

	assert.Equal(t, 3, bm.Width)
	assert.Equal(t, 2, bm.Height)
	assert.Equal(t, []byte{0, 100, 255, 30, 200, 128}, bm.Pix)
	require.NoError(t, bm.Validate())
}

func TestLoadBytesFlattensAlphaOntoWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{A: 0})
	img.SetNRGBA(1, 0, color.NRGBA{A: 0xff})

	loader := NewLoader(Options{}, zaptest.NewLogger(t))
	bm, err := loader.LoadBytes("alpha.png", encodePNG(t, img))
	require.NoError(t, err)

	assert.Equal(t, byte(0xff), bm.At(0, 0), "transparent pixels print as paper")
	assert.Equal(t, byte(0x00), bm.At(1, 0))
}

func TestLoadBytesNonZeroOrigin(t *testing.T) {
	img := image.NewGray(image.Rect(5, 5, 7, 6))
	img.SetGray(5, 5, color.Gray{Y: 10})
	img.SetGray(6, 5, color.Gray{Y: 20})

	bm := NewLoader(Options{}, zaptest.NewLogger(t)).Convert(img)
	assert.Equal(t, []byte{10, 20}, bm.Pix)
}

func TestLoadBytesRejectsGarbage(t *testing.T) {
	loader := NewLoader(Options{}, zaptest.NewLogger(t))
	_, err := loader.LoadBytes("notes.txt", []byte("not an image"))
	assert.ErrorIs(t, err, driver.ErrImageLoadFailed)
	assert.Contains(t, err.Error(), "notes.txt")
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "label.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, grayGradient(16, 4)), 0o600))

	loader := NewLoader(Options{}, zaptest.NewLogger(t))
	bm, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 16, bm.Width)
	assert.Equal(t, 4, bm.Height)

	_, err = loader.Load(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, driver.ErrImageLoadFailed)
}

func TestLoadHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(Options{}, zaptest.NewLogger(t)).Load(ctx, "whatever.png")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScaleToFit(t *testing.T) {
	data := encodePNG(t, grayGradient(200, 50))

	loader := NewLoader(Options{ScaleToFit: true, MaxDots: 100}, zaptest.NewLogger(t))
	bm, err := loader.LoadBytes("wide.png", data)
	require.NoError(t, err)
	assert.Equal(t, 100, bm.Width)
	assert.Equal(t, 25, bm.Height)

	// Images already inside the limit are untouched.
	bm, err = loader.WithMaxDots(720).LoadBytes("wide.png", data)
	require.NoError(t, err)
	assert.Equal(t, 200, bm.Width)
	assert.Equal(t, 50, bm.Height)

	// Without fit the caller gets the original size and the driver decides.
	bm, err = NewLoader(Options{MaxDots: 100}, zaptest.NewLogger(t)).LoadBytes("wide.png", data)
	require.NoError(t, err)
	assert.Equal(t, 200, bm.Width)
}

func TestDitherProducesPureBlackAndWhite(t *testing.T) {
	loader := NewLoader(Options{Dither: true}, zaptest.NewLogger(t))
	bm, err := loader.LoadBytes("gradient.png", encodePNG(t, grayGradient(64, 16)))
	require.NoError(t, err)

	var black, white int
	for _, v := range bm.Pix {
		switch v {
		case 0x00:
			black++
		case 0xff:
			white++
		default:
			t.Fatalf("dithered bitmap contains gray level %d", v)
		}
	}
	assert.Positive(t, black)
	assert.Positive(t, white)
}

func TestMemorySource(t *testing.T) {
	source := NewMemorySource(NewLoader(Options{}, zaptest.NewLogger(t)))
	source.Add("a.png", encodePNG(t, grayGradient(8, 8)))
	assert.Equal(t, 1, source.Len())

	bm, err := source.Load(context.Background(), "a.png")
	require.NoError(t, err)
	assert.Equal(t, 8, bm.Width)

	_, err = source.Load(context.Background(), "b.png")
	assert.ErrorIs(t, err, driver.ErrImageLoadFailed)
}
