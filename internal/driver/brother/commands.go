// internal/driver/brother/commands.go
package brother

import (
	"ql-service/pkg/driver"
)

const (
	esc = 0x1b

	// pageCommit prints the page with feeding, cutting when auto-cut is armed.
	pageCommit = 0x1a

	// rasterLineCommand prefixes every column block.
	rasterLineCommand = 'g'

	// commandModeRaster is the ESC i a value selecting raster mode.
	commandModeRaster = 1
)

// QL_COMMANDS holds the fixed command frames of the Brother QL raster protocol
var QL_COMMANDS = struct {
	INITIALIZE     []byte
	STATUS_REQUEST []byte
	RASTER_MODE    []byte
	PAGE_COMMIT    []byte
}{
	INITIALIZE:     []byte{esc, '@'},                         // ESC @
	STATUS_REQUEST: []byte{esc, 'i', 'S'},                    // ESC i S
	RASTER_MODE:    []byte{esc, 'i', 'a', commandModeRaster}, // ESC i a 1
	PAGE_COMMIT:    []byte{pageCommit},                       // SUB
}

// ModeCommand builds ESC i M
func ModeCommand(mode driver.Mode) []byte {
	return []byte{esc, 'i', 'M', byte(mode)}
}

// ExpandedModeCommand builds ESC i K
func ExpandedModeCommand(mode driver.ExpandedMode) []byte {
	return []byte{esc, 'i', 'K', byte(mode)}
}

// AutoCutEveryCommand builds ESC i A, the number of pages between cuts
func AutoCutEveryCommand(n uint8) []byte {
	return []byte{esc, 'i', 'A', n}
}

// MarginCommand builds ESC i d with the margin in dots, little-endian
func MarginCommand(dots uint16) []byte {
	return []byte{esc, 'i', 'd', byte(dots), byte(dots >> 8)}
}

// PrintInfoCommand builds ESC i z for a page of the given width in columns.
// Media fields the caller did not flag are sent as zero.
func PrintInfoCommand(cfg driver.PrintConfig, width int) []byte {
	var mediaType, mediaWidth, mediaLength byte
	if cfg.Flags&driver.PrintConfigMediaType != 0 {
		mediaType = byte(cfg.MediaType)
	}
	if cfg.Flags&driver.PrintConfigMediaWidth != 0 {
		mediaWidth = cfg.MediaWidth
	}
	if cfg.Flags&driver.PrintConfigMediaLength != 0 {
		mediaLength = cfg.MediaLength
	}

	var startingPage byte = 1
	if cfg.FirstPage {
		startingPage = 0
	}

	return []byte{
		esc, 'i', 'z',
		byte(cfg.Flags | driver.PrintConfigValid),
		mediaType,
		mediaWidth,
		mediaLength,
		byte(width), byte(width >> 8),
		0, 0,
		startingPage,
		0,
	}
}
