// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"ql-service/internal/discovery"
	"ql-service/internal/model"
)

// brotherVID is the USB vendor ID reported by USB-serial bridges on Brother printers
const brotherVID = "04F9"

// PortLister lists the serial ports of the host
type PortLister func() ([]*enumerator.PortDetails, error)

// Scanner lists serial ports that may have a label printer attached
type Scanner struct {
	logger *zap.Logger
	lister PortLister
}

// NewScanner creates a serial scanner over the host's port enumerator
func NewScanner(logger *zap.Logger) *Scanner {
	return NewScannerWithLister(logger, enumerator.GetDetailedPortsList)
}

// NewScannerWithLister creates a serial scanner over a custom port lister
func NewScannerWithLister(logger *zap.Logger, lister PortLister) *Scanner {
	return &Scanner{
		logger: logger.With(zap.String("scanner", "serial")),
		lister: lister,
	}
}

// GetScannerType returns scanner type identifier
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable always reports true; hosts without serial ports return an empty list
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists serial ports
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := s.lister()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	devices := make([]*discovery.DiscoveredDevice, 0, len(ports))
	for _, port := range ports {
		if port == nil || port.Name == "" {
			continue
		}
		devices = append(devices, s.processPort(port))
	}

	s.logger.Debug("Serial scan completed", zap.Int("ports", len(devices)))
	return devices, nil
}

func (s *Scanner) processPort(port *enumerator.PortDetails) *discovery.DiscoveredDevice {
	device := &discovery.DiscoveredDevice{
		ConnectionType: model.ConnectionTypeSerial,
		Address:        "serial://" + port.Name,
		ConnectionInfo: map[string]interface{}{
			"port":   port.Name,
			"is_usb": port.IsUSB,
		},
		Model:        "unknown",
		Confidence:   0.1,
		SerialNumber: port.SerialNumber,
		Location:     port.Name,
	}

	if port.IsUSB {
		device.ConnectionInfo["vendor_id"] = port.VID
		device.ConnectionInfo["product_id"] = port.PID
		if port.Product != "" {
			device.ConnectionInfo["product"] = port.Product
		}
		if strings.EqualFold(port.VID, brotherVID) {
			device.Confidence = 0.6
			if port.Product != "" {
				device.Model = port.Product
			}
		}
	}
	return device
}
