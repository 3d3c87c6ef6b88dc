// internal/driver/brother/driver.go
package brother

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ql-service/internal/protocol"
	"ql-service/internal/utils"
	"ql-service/pkg/driver"
)

// State is a position in the print sequence
type State string

const (
	StateClosed             State = "CLOSED"
	StateOpened             State = "OPENED"
	StateInitialized        State = "INITIALIZED"
	StateModeConfigured     State = "MODE_CONFIGURED"
	StatePrinting           State = "PRINTING"
	StateAwaitingCompletion State = "AWAITING_COMPLETION"
	StateDone               State = "DONE"
	StateErrorHalt          State = "ERROR_HALT"
)

// ErrHalted is returned by every operation after the driver has halted
var ErrHalted = errors.New("driver halted")

// Config tunes status reads and the completion wait after each page
type Config struct {
	// CompletionTimeout bounds the wait for "printing done" after a page.
	CompletionTimeout time.Duration
	// StatusTimeout bounds a status read whose context carries no deadline.
	StatusTimeout time.Duration
	// PollInterval is slept between failed status reads while waiting.
	PollInterval time.Duration
}

// DefaultConfig returns the completion settings used when none are given
func DefaultConfig() Config {
	return Config{
		CompletionTimeout: 5 * time.Second,
		StatusTimeout:     5 * time.Second,
		PollInterval:      50 * time.Millisecond,
	}
}

// QLDriver drives one Brother QL printer through a DeviceProtocol.
// A driver owns its channel exclusively; callers serialize jobs.
type QLDriver struct {
	config        Config
	protocol      protocol.DeviceProtocol
	logger        *utils.DeviceLogger
	eventHandler  driver.EventHandler
	state         State
	haltErr       error
	lastStatus    *driver.Status
	healthMetrics *driver.HealthMetrics
	mutex         sync.RWMutex
}

var _ driver.LabelPrinter = (*QLDriver)(nil)

// NewQLDriver creates a driver over an unopened channel
func NewQLDriver(p protocol.DeviceProtocol, config Config, logger *zap.Logger) *QLDriver {
	defaults := DefaultConfig()
	if config.CompletionTimeout <= 0 {
		config.CompletionTimeout = defaults.CompletionTimeout
	}
	if config.StatusTimeout <= 0 {
		config.StatusTimeout = defaults.StatusTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}

	return &QLDriver{
		config:        config,
		protocol:      p,
		logger:        utils.NewDeviceLogger(logger, p.Address(), string(p.GetProtocolType())),
		state:         StateClosed,
		healthMetrics: &driver.HealthMetrics{},
	}
}

// Open opens the channel and resets the state machine
func (d *QLDriver) Open(ctx context.Context) error {
	startTime := time.Now()
	if err := d.protocol.Open(ctx); err != nil {
		d.updateHealthMetrics(false, time.Since(startTime))
		d.notifyError(err)
		return err
	}

	d.mutex.Lock()
	d.haltErr = nil
	d.lastStatus = nil
	d.mutex.Unlock()

	d.updateHealthMetrics(true, time.Since(startTime))
	d.setState(StateOpened)
	return nil
}

// Close closes the channel
func (d *QLDriver) Close() error {
	err := d.protocol.Close()
	d.setState(StateClosed)
	return err
}

// IsOpen returns whether the channel is open
func (d *QLDriver) IsOpen() bool {
	return d.protocol.IsOpen()
}

// State returns the current state
func (d *QLDriver) State() State {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.state
}

// LastStatus returns the most recent status frame, or nil
func (d *QLDriver) LastStatus() *driver.Status {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.lastStatus
}

// Address returns the channel address
func (d *QLDriver) Address() string {
	return d.protocol.Address()
}

// Initialize sends ESC @
func (d *QLDriver) Initialize(ctx context.Context) error {
	if err := d.checkHalted(); err != nil {
		return err
	}

	if err := d.send(ctx, "initialize", QL_COMMANDS.INITIALIZE); err != nil {
		return d.halt(fmt.Errorf("failed to send initialisation sequence to printer: %w", err))
	}

	d.setState(StateInitialized)
	return nil
}

// RequestStatus sends ESC i S without waiting for the reply
func (d *QLDriver) RequestStatus(ctx context.Context) error {
	return d.send(ctx, "status_request", QL_COMMANDS.STATUS_REQUEST)
}

// ReadStatus reads and decodes one status frame. Without a deadline on ctx
// the read is bounded by StatusTimeout.
func (d *QLDriver) ReadStatus(ctx context.Context) (*driver.Status, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.StatusTimeout)
		defer cancel()
	}

	startTime := time.Now()
	frame, err := d.protocol.ReadFrame(ctx, driver.StatusSize)
	if err != nil {
		d.updateHealthMetrics(false, time.Since(startTime))
		return nil, err
	}

	status, err := driver.ParseStatus(frame)
	if err != nil {
		d.updateHealthMetrics(false, time.Since(startTime))
		return nil, fmt.Errorf("%w: %w", driver.ErrChannelIO, err)
	}
	d.updateHealthMetrics(true, time.Since(startTime))

	d.mutex.Lock()
	if d.lastStatus == nil || d.lastStatus.ModelCode != status.ModelCode {
		d.logger = d.logger.WithModel(ModelName(status.ModelCode))
	}
	d.lastStatus = status
	handler := d.eventHandler
	d.mutex.Unlock()

	d.logger.LogStatus(StatusTypeLabel(status.Type), PhaseLabel(status.Phase), ErrorsLabel(status.Errors()))
	if handler != nil {
		handler.OnStatus(d.Address(), status)
	}
	return status, nil
}

// Status requests and reads one status frame
func (d *QLDriver) Status(ctx context.Context) (*driver.Status, error) {
	if err := d.checkHalted(); err != nil {
		return nil, err
	}
	if err := d.RequestStatus(ctx); err != nil {
		return nil, d.halt(fmt.Errorf("failed to request status from printer: %w", err))
	}
	status, err := d.ReadStatus(ctx)
	if err != nil {
		return nil, d.halt(fmt.Errorf("failed to read status from printer: %w", err))
	}
	return status, nil
}

// Configure reads the printer status and applies the job options: margin,
// auto-cut, expanded mode and, for models that need it, the raster mode switch.
func (d *QLDriver) Configure(ctx context.Context, opts driver.JobOptions) (*driver.Status, error) {
	status, err := d.Status(ctx)
	if err != nil {
		return nil, err
	}

	if opts.Margin != nil {
		if err := d.send(ctx, "margin", MarginCommand(*opts.Margin)); err != nil {
			return nil, d.halt(fmt.Errorf("failed to set margin: %w", err))
		}
	}

	if opts.AutoCut {
		every := opts.AutoCutEvery
		if every == 0 {
			every = 1
		}
		if err := d.send(ctx, "mode", ModeCommand(driver.ModeAutoCut)); err != nil {
			return nil, d.halt(fmt.Errorf("failed to set autocut: %w", err))
		}
		if err := d.send(ctx, "autocut_every", AutoCutEveryCommand(every)); err != nil {
			return nil, d.halt(fmt.Errorf("failed to set autocut: %w", err))
		}
	}

	if opts.ExpandedMode != nil {
		if err := d.send(ctx, "expanded_mode", ExpandedModeCommand(*opts.ExpandedMode)); err != nil {
			return nil, d.halt(fmt.Errorf("failed to set expanded mode: %w", err))
		}
	}

	if NeedsRasterSwitch(status.ModelCode) {
		if err := d.send(ctx, "raster_mode", QL_COMMANDS.RASTER_MODE); err != nil {
			return nil, d.halt(fmt.Errorf("failed to set raster mode: %w", err))
		}
	}

	d.setState(StateModeConfigured)
	return status, nil
}

// PrintPage transmits one page. The block size comes from the last status
// read, so Configure must have run first.
func (d *QLDriver) PrintPage(ctx context.Context, bitmap *driver.Bitmap, cfg driver.PrintConfig) error {
	if err := d.checkHalted(); err != nil {
		return err
	}

	status := d.LastStatus()
	if status == nil {
		return fmt.Errorf("printer status unknown, configure the printer before printing")
	}

	frames, err := EncodePage(status.ModelCode, bitmap, cfg)
	if err != nil {
		return d.halt(err)
	}

	d.setState(StatePrinting)
	startTime := time.Now()
	for i, frame := range frames {
		if err := d.protocol.Write(ctx, frame); err != nil {
			d.logger.LogCommand("raster", len(frame), err)
			return d.halt(fmt.Errorf("raster transmission aborted at frame %d of %d: %w", i+1, len(frames), err))
		}
	}

	d.logger.Debug("Page transmitted",
		zap.Int("width", bitmap.Width),
		zap.Int("height", bitmap.Height),
		zap.Int("block_size", BlockSize(status.ModelCode)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return nil
}

// AwaitCompletion polls status until the printer reports printing done.
// Channel timeouts and reopen failures are retried until the completion
// deadline; reported errors and hard I/O errors halt at once.
func (d *QLDriver) AwaitCompletion(ctx context.Context) (*driver.Status, error) {
	if err := d.checkHalted(); err != nil {
		return nil, err
	}
	d.setState(StateAwaitingCompletion)

	ctx, cancel := context.WithTimeout(ctx, d.config.CompletionTimeout)
	defer cancel()

	for {
		status, err := d.ReadStatus(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, d.halt(fmt.Errorf("%w: no completion within %s", driver.ErrProtocolTimeout, d.config.CompletionTimeout))
			}
			if !errors.Is(err, driver.ErrProtocolTimeout) && !errors.Is(err, driver.ErrDeviceUnavailable) {
				return nil, d.halt(err)
			}
			select {
			case <-ctx.Done():
				return nil, d.halt(fmt.Errorf("%w: no completion within %s", driver.ErrProtocolTimeout, d.config.CompletionTimeout))
			case <-time.After(d.config.PollInterval):
			}
			continue
		}

		if status.HasErrors() || status.Type == driver.StatusErrorOccurred || status.Type == driver.StatusTurnedOff {
			return status, d.halt(NewDeviceError(status))
		}
		if status.Type == driver.StatusPrintingDone {
			return status, nil
		}
	}
}

// PrintJob prints every item Copies times, waiting for each page to finish
// before sending the next. An unconfigured driver is initialized and
// configured with job.Options first. The first page flag is reset per copy.
func (d *QLDriver) PrintJob(ctx context.Context, source driver.BitmapSource, job driver.Job) ([]driver.PageResult, error) {
	if err := d.checkHalted(); err != nil {
		return nil, err
	}

	if d.LastStatus() == nil {
		if err := d.Initialize(ctx); err != nil {
			return nil, err
		}
		if _, err := d.Configure(ctx, job.Options); err != nil {
			return nil, err
		}
	}

	copies := job.Copies
	if copies < 1 {
		copies = 1
	}

	results := make([]driver.PageResult, 0, copies*len(job.Items))
	cfg := job.Config
	for copyNo := 1; copyNo <= copies; copyNo++ {
		cfg.FirstPage = true
		for _, item := range job.Items {
			pageStart := time.Now()

			bitmap, err := source.Load(ctx, item)
			if err != nil {
				if !errors.Is(err, driver.ErrImageLoadFailed) {
					err = fmt.Errorf("%w: %w", driver.ErrImageLoadFailed, err)
				}
				return results, d.halt(&driver.PageError{Item: item, Copy: copyNo, Err: err})
			}

			if err := d.PrintPage(ctx, bitmap, cfg); err != nil {
				return results, &driver.PageError{Item: item, Copy: copyNo, Err: err}
			}
			if _, err := d.AwaitCompletion(ctx); err != nil {
				return results, &driver.PageError{Item: item, Copy: copyNo, Err: err}
			}

			page := driver.PageResult{
				Item:     item,
				Copy:     copyNo,
				Width:    bitmap.Width,
				Height:   bitmap.Height,
				Duration: time.Since(pageStart),
			}
			results = append(results, page)
			d.notifyPage(page)
			cfg.FirstPage = false
		}
	}

	d.setState(StateDone)
	return results, nil
}

// GetHealthMetrics returns a copy of the health metrics
func (d *QLDriver) GetHealthMetrics() *driver.HealthMetrics {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	metrics := *d.healthMetrics
	return &metrics
}

// SetEventHandler sets the event handler
func (d *QLDriver) SetEventHandler(handler driver.EventHandler) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.eventHandler = handler
}

// Helper methods

func (d *QLDriver) send(ctx context.Context, name string, frame []byte) error {
	err := d.protocol.Write(ctx, frame)
	d.logger.LogCommand(name, len(frame), err)
	return err
}

func (d *QLDriver) checkHalted() error {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if d.state == StateErrorHalt {
		return fmt.Errorf("%w: %w", ErrHalted, d.haltErr)
	}
	return nil
}

// halt moves to ErrorHalt and returns err unchanged
func (d *QLDriver) halt(err error) error {
	d.mutex.Lock()
	d.haltErr = err
	handler := d.eventHandler
	d.mutex.Unlock()

	d.logger.Error("Printer driver halted", zap.Error(err))
	d.setState(StateErrorHalt)
	if handler != nil {
		handler.OnDeviceError(d.Address(), err)
	}
	return err
}

func (d *QLDriver) setState(to State) {
	d.mutex.Lock()
	from := d.state
	d.state = to
	handler := d.eventHandler
	d.mutex.Unlock()

	if from == to {
		return
	}
	d.logger.Debug("State changed", zap.String("from", string(from)), zap.String("to", string(to)))
	if handler != nil {
		handler.OnStateChanged(d.Address(), string(from), string(to))
	}
}

func (d *QLDriver) notifyError(err error) {
	d.mutex.RLock()
	handler := d.eventHandler
	d.mutex.RUnlock()
	if handler != nil {
		handler.OnDeviceError(d.Address(), err)
	}
}

func (d *QLDriver) notifyPage(page driver.PageResult) {
	d.mutex.Lock()
	d.healthMetrics.PagesPrinted++
	handler := d.eventHandler
	d.mutex.Unlock()
	if handler != nil {
		handler.OnPageCompleted(d.Address(), page)
	}
}

func (d *QLDriver) updateHealthMetrics(success bool, responseTime time.Duration) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	m := d.healthMetrics
	m.TotalOperations++
	m.ResponseTime = responseTime
	now := time.Now()
	if success {
		m.LastSuccessTime = &now
	} else {
		m.ErrorCount++
		m.LastErrorTime = &now
	}
	m.SuccessRate = float64(m.TotalOperations-m.ErrorCount) / float64(m.TotalOperations)
}
