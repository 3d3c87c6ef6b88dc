// internal/protocol/usb_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"ql-service/internal/model"
	"ql-service/internal/utils"
	"ql-service/pkg/driver"
)

// Brother QL printers expose bulk OUT on endpoint 2 and bulk IN on endpoint 1
const (
	DefaultUSBOutEndpoint = 2
	DefaultUSBInEndpoint  = 1
)

// USBConnection implements DeviceProtocol by talking to the printer's bulk
// endpoints through libusb, bypassing the usblp kernel driver.
type USBConnection struct {
	config   *USBConfig
	usbCtx   *gousb.Context
	device   *gousb.Device
	intf     *gousb.Interface
	done     func()
	outEndpt *gousb.OutEndpoint
	inEndpt  *gousb.InEndpoint
	logger   *utils.DeviceLogger
	mutex    sync.RWMutex
	stats    statsTracker
}

// NewUSBConnection creates a new USB connection
func NewUSBConnection(config *USBConfig, logger *zap.Logger) *USBConnection {
	if config.OutEndpoint == 0 {
		config.OutEndpoint = DefaultUSBOutEndpoint
	}
	if config.InEndpoint == 0 {
		config.InEndpoint = DefaultUSBInEndpoint
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultRetryPolicy()
	}

	address := fmt.Sprintf("usb://%s:%s", config.VendorID, config.ProductID)
	return &USBConnection{
		config: config,
		logger: utils.NewDeviceLogger(logger, address, "usb"),
	}
}

// Open finds the device, claims its default interface and writes the preamble
func (uc *USBConnection) Open(ctx context.Context) error {
	uc.mutex.Lock()
	if uc.device != nil {
		uc.mutex.Unlock()
		return nil
	}

	if err := uc.openLocked(); err != nil {
		uc.mutex.Unlock()
		uc.logger.LogConnection("open", false, err)
		return err
	}
	uc.mutex.Unlock()

	uc.stats.setConnected(true)
	uc.logger.LogConnection("open", true, nil)

	writePreamble(ctx, uc, uc.config.PreambleSize, uc.logger.Logger)
	return nil
}

func (uc *USBConnection) openLocked() error {
	// Parse vendor and product IDs
	vendorID, err := ParseHexID(uc.config.VendorID)
	if err != nil {
		return fmt.Errorf("invalid vendor ID: %w", err)
	}
	productID, err := ParseHexID(uc.config.ProductID)
	if err != nil {
		return fmt.Errorf("invalid product ID: %w", err)
	}

	// Initialize USB context
	usbCtx := gousb.NewContext()

	// Find and open device
	device, err := uc.findAndOpenDevice(usbCtx, vendorID, productID)
	if err != nil {
		usbCtx.Close()
		return fmt.Errorf("%w: %w", driver.ErrDeviceUnavailable, err)
	}

	if err := device.SetAutoDetach(true); err != nil {
		uc.logger.Warn("Failed to enable kernel driver auto-detach", zap.Error(err))
	}

	// Claim interface
	intf, done, err := device.DefaultInterface()
	if err != nil {
		device.Close()
		usbCtx.Close()
		return fmt.Errorf("%w: failed to claim interface: %w", driver.ErrDeviceUnavailable, err)
	}

	// Find endpoints
	outEndpt, err := intf.OutEndpoint(uc.config.OutEndpoint)
	if err != nil {
		done()
		device.Close()
		usbCtx.Close()
		return fmt.Errorf("%w: failed to get out endpoint: %w", driver.ErrDeviceUnavailable, err)
	}

	inEndpt, err := intf.InEndpoint(uc.config.InEndpoint)
	if err != nil {
		done()
		device.Close()
		usbCtx.Close()
		return fmt.Errorf("%w: failed to get in endpoint: %w", driver.ErrDeviceUnavailable, err)
	}

	uc.usbCtx = usbCtx
	uc.device = device
	uc.intf = intf
	uc.done = done
	uc.outEndpt = outEndpt
	uc.inEndpt = inEndpt
	return nil
}

// Close releases the interface, the device and the libusb context
func (uc *USBConnection) Close() error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.device == nil {
		return nil
	}

	if uc.done != nil {
		uc.done()
		uc.done = nil
	}
	err := uc.device.Close()
	uc.device = nil
	if uc.usbCtx != nil {
		uc.usbCtx.Close()
		uc.usbCtx = nil
	}
	uc.intf = nil
	uc.outEndpt = nil
	uc.inEndpt = nil
	uc.stats.setConnected(false)

	if err != nil {
		uc.logger.LogConnection("close", false, err)
		return fmt.Errorf("failed to close USB device: %w", err)
	}
	uc.logger.LogConnection("close", true, nil)
	return nil
}

// IsOpen returns whether the connection is open
func (uc *USBConnection) IsOpen() bool {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	return uc.device != nil && uc.outEndpt != nil
}

// Write writes data to the bulk OUT endpoint
func (uc *USBConnection) Write(ctx context.Context, data []byte) error {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()

	if uc.outEndpt == nil {
		return fmt.Errorf("%w: USB connection not open", driver.ErrChannelIO)
	}

	if uc.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.config.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	n, err := uc.outEndpt.WriteContext(ctx, data)
	if err != nil {
		uc.stats.recordError()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, gousb.TransferTimedOut) {
			return fmt.Errorf("%w: USB write timed out: %w", driver.ErrProtocolTimeout, err)
		}
		return fmt.Errorf("%w: failed to write to USB device: %w", driver.ErrChannelIO, err)
	}
	if n != len(data) {
		uc.stats.recordError()
		return fmt.Errorf("%w: incomplete write: wrote %d of %d bytes", driver.ErrChannelIO, n, len(data))
	}

	// Update statistics
	uc.stats.recordWrite(n, time.Since(startTime))
	return nil
}

// ReadFrame reads one frame from the bulk IN endpoint. Zero-length transfers
// mean no status is pending yet and are retried.
func (uc *USBConnection) ReadFrame(ctx context.Context, size int) ([]byte, error) {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()

	if uc.inEndpt == nil {
		return nil, fmt.Errorf("%w: USB connection not open", driver.ErrChannelIO)
	}

	policy := uc.config.Retry
	buf := make([]byte, size)
	startTime := time.Now()

	for attempt := 1; attempt <= policy.attempts(); attempt++ {
		readCtx := ctx
		cancel := func() {}
		if uc.config.Timeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, uc.config.Timeout)
		}
		n, err := uc.inEndpt.ReadContext(readCtx, buf)
		cancel()

		switch {
		case err != nil && ctx.Err() != nil:
			return nil, contextError(ctx.Err())
		case err != nil && !errors.Is(err, gousb.TransferTimedOut) && !errors.Is(err, context.DeadlineExceeded):
			uc.stats.recordError()
			return nil, fmt.Errorf("%w: failed to read from USB device: %w", driver.ErrChannelIO, err)
		case n == size:
			uc.stats.recordRead(n, time.Since(startTime))
			return buf, nil
		case n > 0:
			uc.stats.recordError()
			return nil, fmt.Errorf("%w: short read of %d bytes, want %d", driver.ErrChannelIO, n, size)
		}

		uc.stats.recordRetry()
		if err := sleepContext(ctx, policy.Interval); err != nil {
			return nil, contextError(err)
		}
	}

	return nil, fmt.Errorf("%w: no complete frame after %d attempts", driver.ErrProtocolTimeout, policy.attempts())
}

// findAndOpenDevice opens the first device matching vendor, product and,
// when configured, serial number
func (uc *USBConnection) findAndOpenDevice(usbCtx *gousb.Context, vendorID, productID gousb.ID) (*gousb.Device, error) {
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vendorID && desc.Product == productID
	})
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	var selected *gousb.Device
	for _, dev := range devices {
		if selected == nil && uc.matchesSerial(dev) {
			selected = dev
			continue
		}
		// Close extra devices
		dev.Close()
	}

	if selected == nil {
		return nil, fmt.Errorf("USB device not found (VID: %04x, PID: %04x)", uint16(vendorID), uint16(productID))
	}
	return selected, nil
}

func (uc *USBConnection) matchesSerial(dev *gousb.Device) bool {
	if uc.config.SerialNumber == "" {
		return true
	}
	serialNumber, err := dev.SerialNumber()
	return err == nil && serialNumber == uc.config.SerialNumber
}

// ParseHexID parses a hex USB ID with or without a 0x prefix
func ParseHexID(hexStr string) (gousb.ID, error) {
	// Remove 0x prefix if present
	hexStr = strings.TrimPrefix(strings.ToLower(hexStr), "0x")
	id, err := strconv.ParseUint(hexStr, 16, 16)
	if err != nil {
		return 0, err
	}
	return gousb.ID(id), nil
}

// Address returns the usb:// address of the connection
func (uc *USBConnection) Address() string {
	return uc.logger.Address()
}

// GetProtocolType returns the protocol type
func (uc *USBConnection) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeUSB
}

// Stats returns a snapshot of the channel statistics
func (uc *USBConnection) Stats() ProtocolStats {
	return uc.stats.snapshot()
}
