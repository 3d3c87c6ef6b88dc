// internal/driver/brother/raster.go
package brother

import (
	"fmt"

	"ql-service/pkg/driver"
)

// Raster transmission block sizes, in bytes per column
const (
	BlockSizeStandard = 90  // 720 dots
	BlockSizeWide     = 162 // 1296 dots
)

// BlockSize returns the raster block size for a model code. The wide-format
// QL-1050 and QL-1060N take 162 bytes per column, everything else 90.
func BlockSize(modelCode uint8) int {
	switch modelCode {
	case 'P', '4':
		return BlockSizeWide
	default:
		return BlockSizeStandard
	}
}

// MaxDots returns the print head capacity in dots for a model code
func MaxDots(modelCode uint8) int {
	return BlockSize(modelCode) * 8
}

// NeedsRasterSwitch reports whether the model boots into a non-raster command
// mode and must be switched explicitly before printing.
func NeedsRasterSwitch(modelCode uint8) bool {
	switch modelCode {
	case '3', '4', 'P', 'Q':
		return true
	default:
		return false
	}
}

// PackColumn packs column col of bm into dst. Byte n holds dot rows
// 8n..8n+7 with the topmost row in the most significant bit; a bit is set
// when the pixel is darker than threshold. Rows past the image height stay 0.
func PackColumn(dst []byte, bm *driver.Bitmap, col int, threshold uint8) {
	for n := range dst {
		var out byte
		for i := 0; i < 8; i++ {
			row := n*8 + i
			if row >= bm.Height {
				break
			}
			if bm.Pix[row*bm.Width+col] < threshold {
				out |= 1 << (7 - i)
			}
		}
		dst[n] = out
	}
}

// RasterLine builds one 'g' frame for column col
func RasterLine(bm *driver.Bitmap, col, blockSize int, threshold uint8) []byte {
	frame := make([]byte, 3+blockSize)
	frame[0] = rasterLineCommand
	frame[1] = 0
	frame[2] = byte(blockSize)
	PackColumn(frame[3:], bm, col, threshold)
	return frame
}

// CheckFits rejects a bitmap the print head cannot hold
func CheckFits(bm *driver.Bitmap, blockSize int) error {
	maxDots := blockSize * 8
	if bm.Width > maxDots || bm.Height > maxDots {
		return fmt.Errorf("%w: %dx%d exceeds %d dots", driver.ErrImageTooWide, bm.Width, bm.Height, maxDots)
	}
	return nil
}

// EncodePage returns the ordered frames for one page: print information,
// one raster line per column, then the page commit byte. Nothing is encoded
// for a bitmap that does not fit.
func EncodePage(modelCode uint8, bm *driver.Bitmap, cfg driver.PrintConfig) ([][]byte, error) {
	if err := bm.Validate(); err != nil {
		return nil, err
	}

	blockSize := BlockSize(modelCode)
	if err := CheckFits(bm, blockSize); err != nil {
		return nil, err
	}

	frames := make([][]byte, 0, bm.Width+2)
	frames = append(frames, PrintInfoCommand(cfg, bm.Width))
	for col := 0; col < bm.Width; col++ {
		frames = append(frames, RasterLine(bm, col, blockSize, cfg.Threshold))
	}
	frames = append(frames, QL_COMMANDS.PAGE_COMMIT)
	return frames, nil
}
