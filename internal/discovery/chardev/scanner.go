// internal/discovery/chardev/scanner.go
package chardev

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"ql-service/internal/discovery"
	"ql-service/internal/model"
)

// Scanner lists printer character devices such as /dev/usb/lp0
type Scanner struct {
	logger  *zap.Logger
	pattern string
}

// NewScanner creates a scanner over the device nodes matching pattern
func NewScanner(logger *zap.Logger, pattern string) *Scanner {
	if pattern == "" {
		pattern = "/dev/usb/lp*"
	}
	return &Scanner{
		logger:  logger.With(zap.String("scanner", "chardev")),
		pattern: pattern,
	}
}

// GetScannerType returns scanner type identifier
func (s *Scanner) GetScannerType() string {
	return "chardev"
}

// IsAvailable reports whether the pattern is usable at all
func (s *Scanner) IsAvailable() bool {
	_, err := filepath.Match(s.pattern, "")
	return err == nil
}

// Scan lists matching device nodes. Without a status query the model is unknown.
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	paths, err := filepath.Glob(s.pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid device pattern '%s': %w", s.pattern, err)
	}

	devices := make([]*discovery.DiscoveredDevice, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return devices, err
		}

		info, err := os.Stat(path)
		if err != nil {
			s.logger.Debug("Skipping unreadable device node", zap.String("path", path), zap.Error(err))
			continue
		}
		if info.IsDir() {
			continue
		}

		devices = append(devices, &discovery.DiscoveredDevice{
			ConnectionType: model.ConnectionTypeCharDev,
			Address:        path,
			ConnectionInfo: map[string]interface{}{
				"path":        path,
				"char_device": info.Mode()&os.ModeCharDevice != 0,
			},
			Model:      "unknown",
			Confidence: 0.5,
			Location:   path,
		})
	}

	return devices, nil
}
