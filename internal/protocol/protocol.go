// internal/protocol/protocol.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ql-service/internal/model"
	"ql-service/pkg/driver"
)

// DeviceProtocol is a byte channel to one printer
type DeviceProtocol interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Write sends every byte of data or fails.
	Write(ctx context.Context, data []byte) error
	// ReadFrame returns exactly size bytes or fails.
	ReadFrame(ctx context.Context, size int) ([]byte, error)

	// Protocol information
	Address() string
	GetProtocolType() model.ConnectionType
	Stats() ProtocolStats
}

// RetryPolicy bounds the local retries of a channel read or write.
type RetryPolicy struct {
	// MaxAttempts is the number of reads tried before giving up with a timeout.
	MaxAttempts int `json:"max_attempts"`
	// Interval is slept between unsuccessful attempts.
	Interval time.Duration `json:"interval"`
	// ReopenOnClosed closes and reopens the device path when a read reports
	// end-of-stream or a bad descriptor.
	ReopenOnClosed bool `json:"reopen_on_closed"`
}

// DefaultRetryPolicy matches the behaviour of the usblp kernel driver, which
// reports end-of-stream whenever no status is pending.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    100,
		Interval:       5 * time.Millisecond,
		ReopenOnClosed: true,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// DefaultPreambleSize is the number of zero bytes written on open to flush
// any half-received job out of the printer.
const DefaultPreambleSize = 200

// ProtocolStats provides protocol-level statistics
type ProtocolStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	RetryCount     int64         `json:"retry_count"`
	ReopenCount    int64         `json:"reopen_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}

// statsTracker guards a ProtocolStats value shared between the I/O path and
// health reporting.
type statsTracker struct {
	mu    sync.Mutex
	stats ProtocolStats
}

func (st *statsTracker) recordWrite(n int, latency time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stats.BytesWritten += int64(n)
	st.stats.OperationCount++
	st.stats.LastActivity = time.Now()
	st.updateAverageLatency(latency)
}

func (st *statsTracker) recordRead(n int, latency time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stats.BytesRead += int64(n)
	st.stats.OperationCount++
	st.stats.LastActivity = time.Now()
	st.updateAverageLatency(latency)
}

func (st *statsTracker) recordError() {
	st.mu.Lock()
	st.stats.ErrorCount++
	st.mu.Unlock()
}

func (st *statsTracker) recordRetry() {
	st.mu.Lock()
	st.stats.RetryCount++
	st.mu.Unlock()
}

func (st *statsTracker) recordReopen() {
	st.mu.Lock()
	st.stats.ReopenCount++
	st.mu.Unlock()
}

func (st *statsTracker) setConnected(connected bool) {
	st.mu.Lock()
	st.stats.IsConnected = connected
	if connected {
		st.stats.LastActivity = time.Now()
	}
	st.mu.Unlock()
}

func (st *statsTracker) snapshot() ProtocolStats {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.stats
}

// updateAverageLatency updates the running average latency
func (st *statsTracker) updateAverageLatency(newLatency time.Duration) {
	if st.stats.AverageLatency == 0 {
		st.stats.AverageLatency = newLatency
	} else {
		st.stats.AverageLatency = (st.stats.AverageLatency + newLatency) / 2
	}
}

// writePreamble flushes the printer's receive buffer. Failure is logged and
// otherwise ignored.
func writePreamble(ctx context.Context, p DeviceProtocol, size int, logger *zap.Logger) {
	if size <= 0 {
		return
	}
	if err := p.Write(ctx, make([]byte, size)); err != nil {
		logger.Warn("Failed to write clear-job preamble",
			zap.Int("bytes", size),
			zap.Error(err),
		)
	}
}

// contextError maps an expired or cancelled context onto the channel taxonomy.
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", driver.ErrProtocolTimeout, err)
	}
	return err
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
