// pkg/driver/types.go
package driver

import (
	"fmt"
	"time"
)

// Core data structures

// Bitmap is a grayscale raster with one luminance byte per pixel, stored
// row-major. 0 is black and 255 is white.
type Bitmap struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pix    []byte `json:"-"`
}

// NewBitmap allocates an all-white bitmap.
func NewBitmap(width, height int) *Bitmap {
	pix := make([]byte, width*height)
	for i := range pix {
		pix[i] = 0xff
	}
	return &Bitmap{Width: width, Height: height, Pix: pix}
}

// At returns the luminance at column x, row y.
func (b *Bitmap) At(x, y int) byte {
	return b.Pix[y*b.Width+x]
}

// Set stores the luminance at column x, row y.
func (b *Bitmap) Set(x, y int, v byte) {
	b.Pix[y*b.Width+x] = v
}

// Validate checks that the pixel buffer matches the declared dimensions.
func (b *Bitmap) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid bitmap dimensions %dx%d", b.Width, b.Height)
	}
	if len(b.Pix) != b.Width*b.Height {
		return fmt.Errorf("bitmap buffer holds %d bytes, want %d", len(b.Pix), b.Width*b.Height)
	}
	return nil
}

// PrintConfigFlags marks which optional PrintConfig fields the caller set.
type PrintConfigFlags uint8

const (
	PrintConfigMediaType    PrintConfigFlags = 0x02
	PrintConfigMediaWidth   PrintConfigFlags = 0x04
	PrintConfigMediaLength  PrintConfigFlags = 0x08
	PrintConfigQualityFirst PrintConfigFlags = 0x40

	// PrintConfigValid is always set on the wire.
	PrintConfigValid PrintConfigFlags = 0x80
)

// DefaultThreshold treats 0-127 as black.
const DefaultThreshold = 128

// PrintConfig holds per-page raster parameters.
type PrintConfig struct {
	Threshold   uint8            `json:"threshold"`
	Flags       PrintConfigFlags `json:"flags"`
	MediaType   MediaType        `json:"media_type"`
	MediaWidth  uint8            `json:"media_width_mm"`
	MediaLength uint8            `json:"media_length_mm"`
	FirstPage   bool             `json:"first_page"`
}

// DefaultPrintConfig returns a config that leaves all media fields to the device.
func DefaultPrintConfig() PrintConfig {
	return PrintConfig{Threshold: DefaultThreshold, FirstPage: true}
}

// WithMediaType sets the requested media type and marks it valid.
func (c PrintConfig) WithMediaType(t MediaType) PrintConfig {
	c.MediaType = t
	c.Flags |= PrintConfigMediaType
	return c
}

// WithMediaWidth sets the requested media width and marks it valid.
func (c PrintConfig) WithMediaWidth(mm uint8) PrintConfig {
	c.MediaWidth = mm
	c.Flags |= PrintConfigMediaWidth
	return c
}

// WithMediaLength sets the requested media length and marks it valid.
func (c PrintConfig) WithMediaLength(mm uint8) PrintConfig {
	c.MediaLength = mm
	c.Flags |= PrintConfigMediaLength
	return c
}

// Mode is the value carried by the print mode command.
type Mode uint8

const (
	ModeNoAutoCut Mode = 0x00
	ModeAutoCut   Mode = 0x40
)

// ExpandedMode is the value carried by the expanded mode command.
type ExpandedMode uint8

const (
	ExpandedModeCutAtEnd ExpandedMode = 0x10
	ExpandedModeHighRes  ExpandedMode = 0x40
)

// JobOptions configures the device once per job, before any page is sent.
type JobOptions struct {
	// Margin in dots. Nil leaves the device default.
	Margin *uint16 `json:"margin,omitempty"`
	// AutoCut arms auto-cut and sets the cut interval to AutoCutEvery pages.
	AutoCut      bool  `json:"auto_cut"`
	AutoCutEvery uint8 `json:"auto_cut_every"`
	// ExpandedMode is sent when non-nil.
	ExpandedMode *ExpandedMode `json:"expanded_mode,omitempty"`
}

// PageResult describes one successfully printed page.
type PageResult struct {
	Item     string        `json:"item"`
	Copy     int           `json:"copy"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Duration time.Duration `json:"duration"`
}

// HealthMetrics contains channel and driver health information
type HealthMetrics struct {
	ResponseTime    time.Duration `json:"response_time"`
	SuccessRate     float64       `json:"success_rate"` // 0.0-1.0
	ErrorCount      int64         `json:"error_count"`
	PagesPrinted    int64         `json:"pages_printed"`
	TotalOperations int64         `json:"total_operations"`
	LastErrorTime   *time.Time    `json:"last_error_time,omitempty"`
	LastSuccessTime *time.Time    `json:"last_success_time,omitempty"`
}
