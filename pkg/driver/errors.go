// pkg/driver/errors.go
package driver

import (
	"errors"
	"fmt"
	"strings"
)

// Failure causes surfaced by channels and drivers.
var (
	ErrDeviceUnavailable  = errors.New("device unavailable")
	ErrChannelIO          = errors.New("channel I/O error")
	ErrProtocolTimeout    = errors.New("printer stopped responding")
	ErrDeviceReported     = errors.New("printer reported error")
	ErrImageTooWide       = errors.New("image too wide for printer")
	ErrImageLoadFailed    = errors.New("failed to load image")
	ErrInvalidStatusFrame = errors.New("invalid status frame")
	ErrDeviceBusy         = errors.New("device busy")
)

// DeviceError carries the error set a printer reported in its status frame.
type DeviceError struct {
	Errors     ErrorBits
	Conditions []string
}

func (e *DeviceError) Error() string {
	if len(e.Conditions) == 0 {
		return fmt.Sprintf("%s: 0x%04x", ErrDeviceReported, uint16(e.Errors))
	}
	return fmt.Sprintf("%s(s): %s", ErrDeviceReported, strings.Join(e.Conditions, " "))
}

func (e *DeviceError) Unwrap() error {
	return ErrDeviceReported
}

// PageError identifies the job item that failed.
type PageError struct {
	Item string
	Copy int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("failed to print '%s' (copy %d): %v", e.Item, e.Copy, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Exit codes reported by the command line tools.
const (
	ExitOK = iota
	ExitFailure
	ExitDeviceUnavailable
	ExitChannelIO
	ExitTimeout
	ExitDeviceReported
	ExitImageTooWide
	ExitImageLoad
)

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrDeviceUnavailable):
		return ExitDeviceUnavailable
	case errors.Is(err, ErrProtocolTimeout):
		return ExitTimeout
	case errors.Is(err, ErrDeviceReported):
		return ExitDeviceReported
	case errors.Is(err, ErrImageTooWide):
		return ExitImageTooWide
	case errors.Is(err, ErrImageLoadFailed):
		return ExitImageLoad
	case errors.Is(err, ErrChannelIO):
		return ExitChannelIO
	default:
		return ExitFailure
	}
}
