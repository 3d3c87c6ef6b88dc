// pkg/driver/interfaces.go
package driver

import (
	"context"
)

// LabelPrinter is implemented by raster label printer drivers
type LabelPrinter interface {
	// Connection management
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Device state
	Initialize(ctx context.Context) error
	Status(ctx context.Context) (*Status, error)
	Configure(ctx context.Context, opts JobOptions) (*Status, error)

	// Printing
	PrintPage(ctx context.Context, bitmap *Bitmap, cfg PrintConfig) error
	PrintJob(ctx context.Context, source BitmapSource, job Job) ([]PageResult, error)

	// Health and monitoring
	GetHealthMetrics() *HealthMetrics
	SetEventHandler(handler EventHandler)
}

// BitmapSource turns an item identifier (a path, an upload name) into a Bitmap.
type BitmapSource interface {
	Load(ctx context.Context, item string) (*Bitmap, error)
}

// Job is one print request: every item printed Copies times.
type Job struct {
	Items   []string
	Copies  int
	Config  PrintConfig
	Options JobOptions
}

// EventHandler handles driver events
type EventHandler interface {
	OnStateChanged(device string, from, to string)
	OnStatus(device string, status *Status)
	OnPageCompleted(device string, page PageResult)
	OnDeviceError(device string, err error)
}
