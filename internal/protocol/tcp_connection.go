// internal/protocol/tcp_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"ql-service/internal/model"
	"ql-service/internal/utils"
	"ql-service/pkg/driver"
)

// DefaultRawPort is the raw print port of networked QL models
const DefaultRawPort = 9100

// TCPConnection implements DeviceProtocol for networked printers on the raw port
type TCPConnection struct {
	config *TCPConfig
	conn   net.Conn
	logger *utils.DeviceLogger
	mutex  sync.RWMutex
	stats  statsTracker
}

// NewTCPConnection creates a new TCP connection
func NewTCPConnection(config *TCPConfig, logger *zap.Logger) *TCPConnection {
	if config.Port == 0 {
		config.Port = DefaultRawPort
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultRetryPolicy()
	}
	address := "tcp://" + net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	return &TCPConnection{
		config: config,
		logger: utils.NewDeviceLogger(logger, address, "tcp"),
	}
}

// Open dials the printer and writes the clear-job preamble
func (tc *TCPConnection) Open(ctx context.Context) error {
	tc.mutex.Lock()
	if tc.conn != nil {
		tc.mutex.Unlock()
		return nil
	}

	// Create dialer with timeout
	dialer := &net.Dialer{Timeout: tc.config.Timeout}
	if !tc.config.KeepAlive {
		dialer.KeepAlive = -1
	}

	hostPort := net.JoinHostPort(tc.config.Host, strconv.Itoa(tc.config.Port))
	conn, err := dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		tc.mutex.Unlock()
		tc.logger.LogConnection("open", false, err)
		return fmt.Errorf("unable to connect to %s: %w: %w", hostPort, driver.ErrDeviceUnavailable, err)
	}

	tc.conn = conn
	tc.mutex.Unlock()
	tc.stats.setConnected(true)
	tc.logger.LogConnection("open", true, nil)

	writePreamble(ctx, tc, tc.config.PreambleSize, tc.logger.Logger)
	return nil
}

// Close closes the TCP connection
func (tc *TCPConnection) Close() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.conn == nil {
		return nil
	}

	err := tc.conn.Close()
	tc.conn = nil
	tc.stats.setConnected(false)
	if err != nil {
		tc.logger.LogConnection("close", false, err)
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}

	tc.logger.LogConnection("close", true, nil)
	return nil
}

// IsOpen returns whether the connection is open
func (tc *TCPConnection) IsOpen() bool {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.conn != nil
}

// Write writes data to the TCP connection
func (tc *TCPConnection) Write(ctx context.Context, data []byte) error {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	if tc.conn == nil {
		return fmt.Errorf("%w: TCP connection not open", driver.ErrChannelIO)
	}
	if err := ctx.Err(); err != nil {
		return contextError(err)
	}

	// Set write deadline
	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	} else if tc.config.Timeout > 0 {
		deadline = time.Now().Add(tc.config.Timeout)
	}
	_ = tc.conn.SetWriteDeadline(deadline)

	startTime := time.Now()
	n, err := tc.conn.Write(data)
	if err != nil {
		tc.stats.recordError()
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w: TCP write timed out after %d of %d bytes", driver.ErrProtocolTimeout, n, len(data))
		}
		return fmt.Errorf("%w: failed to write to TCP connection: %w", driver.ErrChannelIO, err)
	}

	// Update statistics
	tc.stats.recordWrite(n, time.Since(startTime))
	return nil
}

// ReadFrame accumulates reads until size bytes have arrived. Every read is
// bounded by the retry interval; an empty interval counts as one attempt.
func (tc *TCPConnection) ReadFrame(ctx context.Context, size int) ([]byte, error) {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	if tc.conn == nil {
		return nil, fmt.Errorf("%w: TCP connection not open", driver.ErrChannelIO)
	}

	policy := tc.config.Retry
	interval := policy.Interval
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}

	buf := make([]byte, size)
	got := 0
	idle := 0
	startTime := time.Now()

	for got < size {
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}

		// Set read deadline
		deadline := time.Now().Add(interval)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		_ = tc.conn.SetReadDeadline(deadline)

		n, err := tc.conn.Read(buf[got:])
		got += n
		switch {
		case err == nil:
		case errors.Is(err, os.ErrDeadlineExceeded):
			if n > 0 {
				continue
			}
			idle++
			tc.stats.recordRetry()
			if idle >= policy.attempts() {
				return nil, fmt.Errorf("%w: %d of %d status bytes after %d attempts",
					driver.ErrProtocolTimeout, got, size, idle)
			}
		case errors.Is(err, io.EOF):
			tc.stats.recordError()
			return nil, fmt.Errorf("%w: printer closed the connection", driver.ErrDeviceUnavailable)
		default:
			tc.stats.recordError()
			return nil, fmt.Errorf("%w: failed to read from TCP connection: %w", driver.ErrChannelIO, err)
		}
	}

	tc.stats.recordRead(got, time.Since(startTime))
	return buf, nil
}

// Address returns the tcp:// address of the connection
func (tc *TCPConnection) Address() string {
	return tc.logger.Address()
}

// GetProtocolType returns the protocol type
func (tc *TCPConnection) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeTCP
}

// Stats returns a snapshot of the channel statistics
func (tc *TCPConnection) Stats() ProtocolStats {
	return tc.stats.snapshot()
}
