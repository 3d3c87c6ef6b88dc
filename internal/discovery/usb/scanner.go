// internal/discovery/usb/scanner.go
package usb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"ql-service/internal/discovery"
	"ql-service/internal/model"
)

// Scanner finds Brother label printers on the USB bus
type Scanner struct {
	logger       *zap.Logger
	knownDevices *DeviceDatabase
	timeout      time.Duration
}

// NewScanner creates a new USB scanner
func NewScanner(logger *zap.Logger, timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scanner{
		logger:       logger.With(zap.String("scanner", "usb")),
		knownDevices: NewDeviceDatabase(),
		timeout:      timeout,
	}
}

// GetScannerType returns scanner type identifier
func (s *Scanner) GetScannerType() string {
	return "usb"
}

// IsAvailable checks that libusb can be initialised
func (s *Scanner) IsAvailable() bool {
	usbCtx := gousb.NewContext()
	if err := usbCtx.Close(); err != nil {
		s.logger.Warn("USB subsystem not accessible", zap.Error(err))
		return false
	}
	return true
}

// Scan performs USB device discovery
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	startTime := time.Now()

	scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			s.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()

	devices, err := usbCtx.OpenDevices(s.shouldExamineDevice)
	defer s.closeAllDevices(devices)
	if err != nil {
		if len(devices) == 0 {
			return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
		}
		// Some devices could not be opened, usually for lack of permission.
		s.logger.Warn("USB enumeration incomplete", zap.Error(err))
	}

	discovered := make([]*discovery.DiscoveredDevice, 0, len(devices))
	for _, device := range devices {
		if err := scanCtx.Err(); err != nil {
			return discovered, err
		}
		if d := s.processDevice(device); d != nil {
			discovered = append(discovered, d)
		}
	}

	s.logger.Info("USB scan completed",
		zap.Int("devices_found", len(discovered)),
		zap.Duration("scan_duration", time.Since(startTime)),
	)
	return discovered, nil
}

// shouldExamineDevice selects devices from known label printer vendors.
// Brother composite devices report class 0 at device level, so the class is
// not checked here.
func (s *Scanner) shouldExamineDevice(desc *gousb.DeviceDesc) bool {
	return s.knownDevices.IsKnownVendor(desc.Vendor)
}

// processDevice identifies a single USB device
func (s *Scanner) processDevice(device *gousb.Device) *discovery.DiscoveredDevice {
	desc := device.Desc
	if desc == nil {
		return nil
	}

	vendorInfo := s.knownDevices.GetVendorInfo(desc.Vendor)
	if vendorInfo == nil {
		return nil
	}

	serial := s.getSerialNumber(device)
	found := &discovery.DiscoveredDevice{
		ConnectionType: model.ConnectionTypeUSB,
		Address:        USBAddress(desc.Vendor, desc.Product, serial),
		ConnectionInfo: s.createUSBConnectionInfo(desc),
		SerialNumber:   serial,
		Location:       fmt.Sprintf("USB-Bus%d-Port%d", desc.Bus, desc.Address),
	}

	if productInfo := vendorInfo.GetProductInfo(desc.Product); productInfo != nil {
		found.Model = productInfo.Model
		found.Confidence = productInfo.Confidence
		if desc.Class != gousb.ClassPrinter && desc.Class != gousb.ClassPerInterface {
			found.Confidence -= 0.2
		}
		found.ConnectionInfo["wide"] = productInfo.Wide
	} else {
		// Known vendor, unknown product: could be any Brother printer.
		found.Model = fmt.Sprintf("Unknown-%04x", uint16(desc.Product))
		found.Confidence = 0.3
	}

	s.logger.Debug("Found USB printer",
		zap.String("address", found.Address),
		zap.String("model", found.Model),
	)
	return found
}

// USBAddress formats the address understood by the USB channel
func USBAddress(vendor, product gousb.ID, serial string) string {
	address := fmt.Sprintf("usb://%04x:%04x", uint16(vendor), uint16(product))
	if serial != "" {
		address += "/" + serial
	}
	return address
}

func (s *Scanner) createUSBConnectionInfo(desc *gousb.DeviceDesc) map[string]interface{} {
	return map[string]interface{}{
		"vendor_id":      fmt.Sprintf("0x%04x", uint16(desc.Vendor)),
		"product_id":     fmt.Sprintf("0x%04x", uint16(desc.Product)),
		"bus":            desc.Bus,
		"address":        desc.Address,
		"device_version": desc.Device.String(),
		"usb_version":    desc.Spec.String(),
		"class":          desc.Class.String(),
	}
}

// getSerialNumber reads the serial string descriptor, if any
func (s *Scanner) getSerialNumber(device *gousb.Device) string {
	serial, err := device.SerialNumber()
	if err != nil {
		s.logger.Debug("Failed to read serial number", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(serial)
}

// closeAllDevices safely closes all opened USB devices
func (s *Scanner) closeAllDevices(devices []*gousb.Device) {
	for i, device := range devices {
		if device == nil {
			continue
		}
		if err := device.Close(); err != nil {
			s.logger.Warn("Failed to close USB device",
				zap.Int("device_index", i),
				zap.Error(err),
			)
		}
	}
}
