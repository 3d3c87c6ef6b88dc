// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"ql-service/internal/model"
	"ql-service/internal/utils"
	"ql-service/pkg/driver"
)

// SerialConnection implements DeviceProtocol for printers behind a serial port
type SerialConnection struct {
	config *SerialConfig
	port   serial.Port
	logger *utils.DeviceLogger
	mutex  sync.RWMutex
	stats  statsTracker
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) *SerialConnection {
	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultRetryPolicy()
	}
	return &SerialConnection{
		config: config,
		logger: utils.NewDeviceLogger(logger, config.Port, "serial"),
	}
}

// serialMode builds the port mode from configuration
func (sc *SerialConnection) serialMode() *serial.Mode {
	// Configure serial port mode
	mode := &serial.Mode{
		BaudRate: sc.config.BaudRate,
		DataBits: sc.config.DataBits,
	}

	switch sc.config.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	// Set parity
	switch sc.config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode
}

// Open opens the serial port and writes the clear-job preamble
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	if sc.port != nil {
		sc.mutex.Unlock()
		return nil
	}

	// Open port
	port, err := serial.Open(sc.config.Port, sc.serialMode())
	if err != nil {
		sc.mutex.Unlock()
		sc.logger.LogConnection("open", false, err)
		return fmt.Errorf("unable to open '%s': %w: %w", sc.config.Port, driver.ErrDeviceUnavailable, err)
	}

	// Set read timeout
	if err := port.SetReadTimeout(sc.config.Timeout); err != nil {
		port.Close()
		sc.mutex.Unlock()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	sc.port = port
	sc.mutex.Unlock()
	sc.stats.setConnected(true)
	sc.logger.LogConnection("open", true, nil)

	writePreamble(ctx, sc, sc.config.PreambleSize, sc.logger.Logger)
	return nil
}

// Close closes the serial port
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.port == nil {
		return nil
	}

	err := sc.port.Close()
	sc.port = nil
	sc.stats.setConnected(false)
	if err != nil {
		sc.logger.LogConnection("close", false, err)
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.logger.LogConnection("close", true, nil)
	return nil
}

// IsOpen returns whether the connection is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.port != nil
}

// Write writes data to the serial port
func (sc *SerialConnection) Write(ctx context.Context, data []byte) error {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if sc.port == nil {
		return fmt.Errorf("%w: serial port not open", driver.ErrChannelIO)
	}

	startTime := time.Now()
	written := 0
	for written < len(data) {
		if err := ctx.Err(); err != nil {
			return contextError(err)
		}

		n, err := sc.port.Write(data[written:])
		written += n
		if err != nil {
			sc.stats.recordError()
			return fmt.Errorf("%w: failed to write to serial port: %w", driver.ErrChannelIO, mapPortError(err))
		}
		if n == 0 {
			sc.stats.recordError()
			return fmt.Errorf("%w: incomplete write: wrote %d of %d bytes", driver.ErrChannelIO, written, len(data))
		}
	}

	// Update statistics
	sc.stats.recordWrite(written, time.Since(startTime))
	return nil
}

// ReadFrame accumulates reads until size bytes have arrived. Each read that
// times out with nothing counts as one attempt.
func (sc *SerialConnection) ReadFrame(ctx context.Context, size int) ([]byte, error) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if sc.port == nil {
		return nil, fmt.Errorf("%w: serial port not open", driver.ErrChannelIO)
	}

	policy := sc.config.Retry
	buf := make([]byte, size)
	got := 0
	idle := 0
	startTime := time.Now()

	for got < size {
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}

		n, err := sc.port.Read(buf[got:])
		if err != nil {
			sc.stats.recordError()
			return nil, fmt.Errorf("failed to read from serial port: %w", mapPortError(err))
		}
		if n == 0 {
			idle++
			sc.stats.recordRetry()
			if idle >= policy.attempts() {
				return nil, fmt.Errorf("%w: %d of %d status bytes after %d attempts",
					driver.ErrProtocolTimeout, got, size, idle)
			}
			continue
		}
		got += n
	}

	sc.stats.recordRead(got, time.Since(startTime))
	return buf, nil
}

// mapPortError maps a closed or vanished port onto ErrDeviceUnavailable
func mapPortError(err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return fmt.Errorf("%w: %w", driver.ErrDeviceUnavailable, err)
	}
	return fmt.Errorf("%w: %w", driver.ErrChannelIO, err)
}

// Address returns the port name
func (sc *SerialConnection) Address() string {
	return sc.config.Port
}

// GetProtocolType returns the protocol type
func (sc *SerialConnection) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeSerial
}

// Stats returns a snapshot of the channel statistics
func (sc *SerialConnection) Stats() ProtocolStats {
	return sc.stats.snapshot()
}
