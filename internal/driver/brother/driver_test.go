// internal/driver/brother/driver_test.go
package brother

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ql-service/internal/model"
	"ql-service/internal/protocol"
	"ql-service/pkg/driver"
)

type readStep struct {
	frame []byte
	err   error
}

// scriptedProtocol records every write and replays status frames in order.
// Once the script is exhausted, reads time out.
type scriptedProtocol struct {
	mu       sync.Mutex
	open     bool
	openErr  error
	writeErr error
	failAt   int
	writes   [][]byte
	reads    []readStep
}

func (p *scriptedProtocol) Open(ctx context.Context) error {
	if p.openErr != nil {
		return p.openErr
	}
	p.open = true
	return nil
}

func (p *scriptedProtocol) Close() error {
	p.open = false
	return nil
}

func (p *scriptedProtocol) IsOpen() bool { return p.open }

func (p *scriptedProtocol) Write(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil && len(p.writes)+1 >= p.failAt {
		return p.writeErr
	}
	p.writes = append(p.writes, append([]byte(nil), data...))
	return nil
}

func (p *scriptedProtocol) ReadFrame(ctx context.Context, size int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.reads) == 0 {
		return nil, fmt.Errorf("%w: script exhausted", driver.ErrProtocolTimeout)
	}
	step := p.reads[0]
	p.reads = p.reads[1:]
	return step.frame, step.err
}

func (p *scriptedProtocol) Address() string { return "/dev/usb/lp0" }

func (p *scriptedProtocol) GetProtocolType() model.ConnectionType {
	return model.ConnectionTypeCharDev
}

func (p *scriptedProtocol) Stats() protocol.ProtocolStats { return protocol.ProtocolStats{} }

func (p *scriptedProtocol) queue(frames ...driver.Status) {
	for _, s := range frames {
		frame, _ := s.MarshalBinary()
		p.reads = append(p.reads, readStep{frame: frame})
	}
}

func reply(modelCode uint8) driver.Status {
	s := driver.NewStatus(modelCode)
	s.MediaType = driver.MediaContinuous
	s.MediaWidth = 62
	return s
}

func withType(s driver.Status, t driver.StatusType) driver.Status {
	s.Type = t
	return s
}

type mapSource map[string]*driver.Bitmap

func (m mapSource) Load(ctx context.Context, item string) (*driver.Bitmap, error) {
	bm, ok := m[item]
	if !ok {
		return nil, fmt.Errorf("no such image %q", item)
	}
	return bm, nil
}

type recordingHandler struct {
	mu          sync.Mutex
	transitions []string
	statuses    int
	pages       []driver.PageResult
	errs        []error
}

func (h *recordingHandler) OnStateChanged(device, from, to string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, to)
}

func (h *recordingHandler) OnStatus(device string, status *driver.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses++
}

func (h *recordingHandler) OnPageCompleted(device string, page driver.PageResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pages = append(h.pages, page)
}

func (h *recordingHandler) OnDeviceError(device string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func newTestDriver(t *testing.T, p *scriptedProtocol) *QLDriver {
	t.Helper()
	d := NewQLDriver(p, Config{CompletionTimeout: 200 * time.Millisecond, PollInterval: time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, d.Open(context.Background()))
	return d
}

func blackColumn() *driver.Bitmap {
	return &driver.Bitmap{Width: 1, Height: 8, Pix: make([]byte, 8)}
}

func TestPrintJobSinglePage(t *testing.T) {
	p := &scriptedProtocol{}
	p.queue(reply('2'), withType(reply('2'), driver.StatusPhaseChange), withType(reply('2'), driver.StatusPrintingDone))
	d := newTestDriver(t, p)
	handler := &recordingHandler{}
	d.SetEventHandler(handler)

	job := driver.Job{Items: []string{"label.png"}, Copies: 1, Config: driver.DefaultPrintConfig()}
	pages, err := d.PrintJob(context.Background(), mapSource{"label.png": blackColumn()}, job)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "label.png", pages[0].Item)
	assert.Equal(t, 1, pages[0].Width)
	assert.Equal(t, 8, pages[0].Height)

	raster := append([]byte{'g', 0, 90, 0xff}, make([]byte, 89)...)
	assert.Equal(t, [][]byte{
		{0x1b, '@'},
		{0x1b, 'i', 'S'},
		{0x1b, 'i', 'z', 0x80, 0, 0, 0, 1, 0, 0, 0, 0, 0},
		raster,
		{0x1a},
	}, p.writes)

	assert.Equal(t, StateDone, d.State())
	assert.Equal(t, []string{
		string(StateInitialized),
		string(StateModeConfigured),
		string(StatePrinting),
		string(StateAwaitingCompletion),
		string(StateDone),
	}, handler.transitions)
	assert.Equal(t, 3, handler.statuses)
	assert.Len(t, handler.pages, 1)
	assert.Equal(t, int64(1), d.GetHealthMetrics().PagesPrinted)
}

func TestConfigureSendsOptionsAndRasterSwitch(t *testing.T) {
	p := &scriptedProtocol{}
	p.queue(reply('4'))
	d := newTestDriver(t, p)

	margin := uint16(35)
	expanded := driver.ExpandedModeCutAtEnd
	require.NoError(t, d.Initialize(context.Background()))
	status, err := d.Configure(context.Background(), driver.JobOptions{
		Margin:       &margin,
		AutoCut:      true,
		AutoCutEvery: 3,
		ExpandedMode: &expanded,
	})
	require.NoError(t, err)
	assert.Equal(t, uint8('4'), status.ModelCode)

	assert.Equal(t, [][]byte{
		{0x1b, '@'},
		{0x1b, 'i', 'S'},
		{0x1b, 'i', 'd', 35, 0},
		{0x1b, 'i', 'M', 0x40},
		{0x1b, 'i', 'A', 3},
		{0x1b, 'i', 'K', 0x10},
		{0x1b, 'i', 'a', 1},
	}, p.writes)
	assert.Equal(t, StateModeConfigured, d.State())
}

func TestConfigureSkipsRasterSwitchForRasterNativeModels(t *testing.T) {
	p := &scriptedProtocol{}
	p.queue(reply('5'))
	d := newTestDriver(t, p)

	_, err := d.Configure(context.Background(), driver.JobOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x1b, 'i', 'S'}}, p.writes)
}

func TestPrintJobWideModelUsesLargeBlocks(t *testing.T) {
	p := &scriptedProtocol{}
	p.queue(reply('P'), withType(reply('P'), driver.StatusPrintingDone))
	d := newTestDriver(t, p)

	_, err := d.PrintJob(context.Background(), mapSource{"a": blackColumn()}, driver.Job{
		Items:  []string{"a"},
		Config: driver.DefaultPrintConfig(),
	})
	require.NoError(t, err)

	// init, status request, raster switch, print info, one raster line, commit
	require.Len(t, p.writes, 6)
	assert.Equal(t, []byte{0x1b, 'i', 'a', 1}, p.writes[2])
	assert.Len(t, p.writes[4], 3+162)
}

func TestPrintJobFirstPageFlagPerCopy(t *testing.T) {
	p := &scriptedProtocol{}
	done := withType(reply('2'), driver.StatusPrintingDone)
	p.queue(reply('2'), done, done, done, done)
	d := newTestDriver(t, p)

	source := mapSource{"a": blackColumn(), "b": blackColumn()}
	pages, err := d.PrintJob(context.Background(), source, driver.Job{
		Items:  []string{"a", "b"},
		Copies: 2,
		Config: driver.DefaultPrintConfig(),
	})
	require.NoError(t, err)
	require.Len(t, pages, 4)
	assert.Equal(t, 2, pages[3].Copy)

	var startingPage []byte
	for _, w := range p.writes {
		if bytes.HasPrefix(w, []byte{0x1b, 'i', 'z'}) {
			startingPage = append(startingPage, w[11])
		}
	}
	assert.Equal(t, []byte{0, 1, 0, 1}, startingPage)
}

func TestAwaitCompletionDeviceError(t *testing.T) {
	p := &scriptedProtocol{}
	failed := withType(reply('2'), driver.StatusErrorOccurred)
	failed.Error1 = 0x01
	p.queue(reply('2'), withType(reply('2'), driver.StatusPhaseChange), failed)
	d := newTestDriver(t, p)
	handler := &recordingHandler{}
	d.SetEventHandler(handler)

	_, err := d.PrintJob(context.Background(), mapSource{"a": blackColumn()}, driver.Job{
		Items:  []string{"a"},
		Config: driver.DefaultPrintConfig(),
	})
	require.Error(t, err)

	var deviceErr *driver.DeviceError
	require.ErrorAs(t, err, &deviceErr)
	assert.Equal(t, []string{"no-media"}, deviceErr.Conditions)
	assert.ErrorIs(t, err, driver.ErrDeviceReported)

	var pageErr *driver.PageError
	require.ErrorAs(t, err, &pageErr)
	assert.Equal(t, "a", pageErr.Item)

	assert.Equal(t, StateErrorHalt, d.State())
	assert.Len(t, handler.errs, 1)
	assert.Empty(t, handler.pages)

	_, err = d.Status(context.Background())
	assert.ErrorIs(t, err, ErrHalted)
	assert.ErrorIs(t, err, driver.ErrDeviceReported)
}

func TestAwaitCompletionTurnedOff(t *testing.T) {
	p := &scriptedProtocol{}
	p.queue(reply('2'), withType(reply('2'), driver.StatusTurnedOff))
	d := newTestDriver(t, p)

	_, err := d.PrintJob(context.Background(), mapSource{"a": blackColumn()}, driver.Job{
		Items:  []string{"a"},
		Config: driver.DefaultPrintConfig(),
	})
	assert.ErrorIs(t, err, driver.ErrDeviceReported)
}

func TestAwaitCompletionRetriesUntilDeadline(t *testing.T) {
	p := &scriptedProtocol{}
	p.queue(reply('2'))
	d := newTestDriver(t, p)

	start := time.Now()
	_, err := d.PrintJob(context.Background(), mapSource{"a": blackColumn()}, driver.Job{
		Items:  []string{"a"},
		Config: driver.DefaultPrintConfig(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, driver.ErrProtocolTimeout)
	assert.Contains(t, err.Error(), "no completion within")
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, StateErrorHalt, d.State())
}

func TestAwaitCompletionSurvivesTransientChannelFailures(t *testing.T) {
	p := &scriptedProtocol{}
	p.queue(reply('2'))
	p.reads = append(p.reads,
		readStep{err: fmt.Errorf("%w: retries exhausted", driver.ErrProtocolTimeout)},
		readStep{err: fmt.Errorf("reopen failed: %w", driver.ErrDeviceUnavailable)},
	)
	p.queue(withType(reply('2'), driver.StatusPrintingDone))
	d := newTestDriver(t, p)

	pages, err := d.PrintJob(context.Background(), mapSource{"a": blackColumn()}, driver.Job{
		Items:  []string{"a"},
		Config: driver.DefaultPrintConfig(),
	})
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestAwaitCompletionHaltsOnChannelError(t *testing.T) {
	p := &scriptedProtocol{}
	p.queue(reply('2'))
	p.reads = append(p.reads, readStep{err: fmt.Errorf("%w: short read", driver.ErrChannelIO)})
	p.queue(withType(reply('2'), driver.StatusPrintingDone))
	d := newTestDriver(t, p)

	_, err := d.PrintJob(context.Background(), mapSource{"a": blackColumn()}, driver.Job{
		Items:  []string{"a"},
		Config: driver.DefaultPrintConfig(),
	})
	assert.ErrorIs(t, err, driver.ErrChannelIO)
}

func TestPrintJobImageTooWideSendsNoRaster(t *testing.T) {
	p := &scriptedProtocol{}
	p.queue(reply('2'))
	d := newTestDriver(t, p)

	_, err := d.PrintJob(context.Background(), mapSource{"wide": driver.NewBitmap(721, 8)}, driver.Job{
		Items:  []string{"wide"},
		Config: driver.DefaultPrintConfig(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, driver.ErrImageTooWide)
	assert.Len(t, p.writes, 2)
}

func TestPrintJobImageLoadFailure(t *testing.T) {
	p := &scriptedProtocol{}
	p.queue(reply('2'))
	d := newTestDriver(t, p)

	_, err := d.PrintJob(context.Background(), mapSource{}, driver.Job{
		Items:  []string{"missing.png"},
		Config: driver.DefaultPrintConfig(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, driver.ErrImageLoadFailed)
	assert.Contains(t, err.Error(), "missing.png")
	assert.Equal(t, StateErrorHalt, d.State())
}

func TestInitializeWriteFailureHalts(t *testing.T) {
	p := &scriptedProtocol{writeErr: driver.ErrChannelIO, failAt: 1}
	d := newTestDriver(t, p)

	err := d.Initialize(context.Background())
	assert.ErrorIs(t, err, driver.ErrChannelIO)
	assert.Equal(t, StateErrorHalt, d.State())
}

func TestRasterWriteFailureAbortsPage(t *testing.T) {
	p := &scriptedProtocol{writeErr: errors.Join(driver.ErrChannelIO, errors.New("EIO")), failAt: 4}
	p.queue(reply('2'))
	d := newTestDriver(t, p)

	_, err := d.PrintJob(context.Background(), mapSource{"a": blackColumn()}, driver.Job{
		Items:  []string{"a"},
		Config: driver.DefaultPrintConfig(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, driver.ErrChannelIO)
	assert.Contains(t, err.Error(), "raster transmission aborted at frame 2 of 3")
	assert.Len(t, p.writes, 3)
}

func TestPrintPageRequiresStatus(t *testing.T) {
	d := newTestDriver(t, &scriptedProtocol{})
	err := d.PrintPage(context.Background(), blackColumn(), driver.DefaultPrintConfig())
	assert.Error(t, err)
	assert.Equal(t, StateOpened, d.State())
}

func TestOpenFailure(t *testing.T) {
	p := &scriptedProtocol{openErr: fmt.Errorf("unable to open: %w", driver.ErrDeviceUnavailable)}
	d := NewQLDriver(p, DefaultConfig(), zaptest.NewLogger(t))

	err := d.Open(context.Background())
	assert.ErrorIs(t, err, driver.ErrDeviceUnavailable)
	assert.Equal(t, StateClosed, d.State())
	assert.Equal(t, int64(1), d.GetHealthMetrics().ErrorCount)
}

func TestReopenAfterHaltResetsState(t *testing.T) {
	p := &scriptedProtocol{writeErr: driver.ErrChannelIO, failAt: 1}
	d := newTestDriver(t, p)
	require.Error(t, d.Initialize(context.Background()))

	p.writeErr = nil
	require.NoError(t, d.Close())
	require.NoError(t, d.Open(context.Background()))
	assert.Equal(t, StateOpened, d.State())
	require.NoError(t, d.Initialize(context.Background()))
}

// silentProtocol accepts writes but never answers, like a printer that
// stopped responding while its device node stays open.
type silentProtocol struct {
	scriptedProtocol
}

func (p *silentProtocol) ReadFrame(ctx context.Context, size int) ([]byte, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %w", driver.ErrProtocolTimeout, ctx.Err())
}

func TestStatusWithoutDeadlineIsBounded(t *testing.T) {
	tests := []struct {
		name string
		call func(d *QLDriver) error
	}{
		{"status", func(d *QLDriver) error {
			_, err := d.Status(context.Background())
			return err
		}},
		{"configure", func(d *QLDriver) error {
			_, err := d.Configure(context.Background(), driver.JobOptions{})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &silentProtocol{}
			d := NewQLDriver(p, Config{StatusTimeout: 30 * time.Millisecond}, zaptest.NewLogger(t))
			require.NoError(t, d.Open(context.Background()))

			done := make(chan error, 1)
			go func() { done <- tt.call(d) }()

			select {
			case err := <-done:
				assert.ErrorIs(t, err, driver.ErrProtocolTimeout)
				assert.Equal(t, StateErrorHalt, d.State())
			case <-time.After(2 * time.Second):
				t.Fatal("status read did not time out")
			}
		})
	}
}

func TestStatusKeepsCallerDeadline(t *testing.T) {
	p := &silentProtocol{}
	d := NewQLDriver(p, Config{StatusTimeout: time.Hour}, zaptest.NewLogger(t))
	require.NoError(t, d.Open(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := d.Status(ctx)
	assert.ErrorIs(t, err, driver.ErrProtocolTimeout)
}
