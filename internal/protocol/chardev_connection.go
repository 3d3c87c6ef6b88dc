// internal/protocol/chardev_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"ql-service/internal/model"
	"ql-service/internal/utils"
	"ql-service/pkg/driver"
)

// readDeadliner is implemented by handles that can bound a blocking read.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// CharDevConnection implements DeviceProtocol over a character device path.
// The handle may be closed and reopened by ReadFrame; the path is kept for that.
type CharDevConnection struct {
	config *CharDevConfig
	handle io.ReadWriteCloser
	logger *utils.DeviceLogger
	mutex  sync.RWMutex
	stats  statsTracker
}

// NewCharDevConnection creates a new character device connection
func NewCharDevConnection(config *CharDevConfig, logger *zap.Logger) *CharDevConnection {
	if config.Opener == nil {
		config.Opener = OpenCharDev
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultRetryPolicy()
	}

	return &CharDevConnection{
		config: config,
		logger: utils.NewDeviceLogger(logger, config.Path, "chardev"),
	}
}

// Open opens the device path and writes the clear-job preamble
func (cc *CharDevConnection) Open(ctx context.Context) error {
	cc.mutex.Lock()
	if cc.handle != nil {
		cc.mutex.Unlock()
		return nil
	}

	handle, err := cc.config.Opener(cc.config.Path)
	if err != nil {
		cc.mutex.Unlock()
		cc.logger.LogConnection("open", false, err)
		return fmt.Errorf("unable to open '%s': %w: %w", cc.config.Path, driver.ErrDeviceUnavailable, err)
	}

	cc.handle = handle
	cc.mutex.Unlock()
	cc.stats.setConnected(true)
	cc.logger.LogConnection("open", true, nil)

	writePreamble(ctx, cc, cc.config.PreambleSize, cc.logger.Logger)
	return nil
}

// Close releases the handle. Closing a closed connection is a no-op.
func (cc *CharDevConnection) Close() error {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	if cc.handle == nil {
		return nil
	}

	err := cc.handle.Close()
	cc.handle = nil
	cc.stats.setConnected(false)

	if err != nil && !errors.Is(err, os.ErrClosed) {
		cc.logger.LogConnection("close", false, err)
		return fmt.Errorf("failed to close '%s': %w", cc.config.Path, err)
	}

	cc.logger.LogConnection("close", true, nil)
	return nil
}

// IsOpen returns whether the connection holds a handle
func (cc *CharDevConnection) IsOpen() bool {
	cc.mutex.RLock()
	defer cc.mutex.RUnlock()
	return cc.handle != nil
}

func (cc *CharDevConnection) current() io.ReadWriteCloser {
	cc.mutex.RLock()
	defer cc.mutex.RUnlock()
	return cc.handle
}

// Write writes all of data, retrying would-block and interrupted writes
func (cc *CharDevConnection) Write(ctx context.Context, data []byte) error {
	handle := cc.current()
	if handle == nil {
		return fmt.Errorf("%w: '%s' is not open", driver.ErrChannelIO, cc.config.Path)
	}

	startTime := time.Now()
	written := 0
	transient := 0
	for written < len(data) {
		if err := ctx.Err(); err != nil {
			return contextError(err)
		}

		n, err := handle.Write(data[written:])
		written += n
		if err == nil && n == 0 {
			err = io.ErrShortWrite
		}
		if err == nil {
			transient = 0
			continue
		}

		if isTransient(err) && transient < cc.config.Retry.attempts() {
			transient++
			cc.stats.recordRetry()
			continue
		}

		cc.stats.recordError()
		return fmt.Errorf("%w: write to '%s' failed after %d of %d bytes: %w",
			driver.ErrChannelIO, cc.config.Path, written, len(data), err)
	}

	cc.stats.recordWrite(written, time.Since(startTime))
	return nil
}

// ReadFrame reads one fixed-size frame. Reads that find the stream closed
// reopen the device path and try again, up to the retry policy's bound.
func (cc *CharDevConnection) ReadFrame(ctx context.Context, size int) ([]byte, error) {
	policy := cc.config.Retry
	buf := make([]byte, size)
	startTime := time.Now()

	for attempt := 1; attempt <= policy.attempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}

		handle := cc.current()
		if handle == nil {
			return nil, fmt.Errorf("%w: '%s' is not open", driver.ErrChannelIO, cc.config.Path)
		}

		if err := cc.setReadDeadline(ctx, handle); err != nil {
			cc.stats.recordError()
			return nil, err
		}

		n, err := handle.Read(buf)
		switch {
		case n == size:
			cc.stats.recordRead(n, time.Since(startTime))
			return buf, nil

		case n > 0:
			cc.stats.recordError()
			return nil, fmt.Errorf("%w: short read of %d bytes from '%s', want %d",
				driver.ErrChannelIO, n, cc.config.Path, size)

		case err == nil || isClosed(err):
			if policy.ReopenOnClosed {
				if rerr := cc.reopen(attempt, err); rerr != nil {
					return nil, rerr
				}
			}

		case errors.Is(err, os.ErrDeadlineExceeded):
			return nil, fmt.Errorf("%w: %w", driver.ErrProtocolTimeout, err)

		case isTransient(err):

		default:
			cc.stats.recordError()
			return nil, fmt.Errorf("%w: read from '%s' failed: %w", driver.ErrChannelIO, cc.config.Path, err)
		}

		cc.stats.recordRetry()
		if attempt < policy.attempts() {
			if err := sleepContext(ctx, policy.Interval); err != nil {
				return nil, contextError(err)
			}
		}
	}

	return nil, fmt.Errorf("%w: no complete frame from '%s' after %d attempts",
		driver.ErrProtocolTimeout, cc.config.Path, policy.attempts())
}

// setReadDeadline applies the context deadline to handle, or clears a
// deadline left over from an earlier read when ctx has none.
func (cc *CharDevConnection) setReadDeadline(ctx context.Context, handle io.ReadWriteCloser) error {
	d, ok := handle.(readDeadliner)
	if !ok {
		return nil
	}

	deadline, _ := ctx.Deadline()
	err := d.SetReadDeadline(deadline)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNoDeadline):
		// Not pollable; reads are bounded by the retry policy only.
		cc.logger.Debug("Read deadline not supported", zap.Error(err))
		return nil
	default:
		return fmt.Errorf("%w: failed to set read deadline on '%s': %w", driver.ErrChannelIO, cc.config.Path, err)
	}
}

// reopen closes the current handle and opens the same path again
func (cc *CharDevConnection) reopen(attempt int, cause error) error {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	if cc.handle != nil {
		_ = cc.handle.Close()
		cc.handle = nil
	}

	handle, err := cc.config.Opener(cc.config.Path)
	cc.logger.LogReopen(attempt, cause, err)
	if err != nil {
		cc.stats.recordError()
		cc.stats.setConnected(false)
		return fmt.Errorf("reopen of '%s' failed: %w: %w", cc.config.Path, driver.ErrDeviceUnavailable, err)
	}

	cc.handle = handle
	cc.stats.recordReopen()
	return nil
}

// Address returns the device path
func (cc *CharDevConnection) Address() string {
	return cc.config.Path
}

// GetProtocolType returns the protocol type
func (cc *CharDevConnection) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeCharDev
}

// Stats returns a snapshot of the channel statistics
func (cc *CharDevConnection) Stats() ProtocolStats {
	return cc.stats.snapshot()
}
