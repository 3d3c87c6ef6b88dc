// internal/driver/registry_test.go
package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ql-service/internal/driver/brother"
	"ql-service/internal/model"
	"ql-service/internal/protocol"
	"ql-service/pkg/driver"
)

type nullProtocol struct {
	address string
	open    bool
	closed  int
}

func (p *nullProtocol) Open(ctx context.Context) error {
	p.open = true
	return nil
}

func (p *nullProtocol) Close() error {
	p.open = false
	p.closed++
	return nil
}

func (p *nullProtocol) IsOpen() bool { return p.open }
func (p *nullProtocol) Write(ctx context.Context, data []byte) error {
	return nil
}
func (p *nullProtocol) ReadFrame(ctx context.Context, size int) ([]byte, error) {
	s := driver.NewStatus('2')
	return s.MarshalBinary()
}
func (p *nullProtocol) Address() string { return p.address }
func (p *nullProtocol) GetProtocolType() model.ConnectionType { return model.ConnectionTypeCharDev }
func (p *nullProtocol) Stats() protocol.ProtocolStats { return protocol.ProtocolStats{} }

func newTestRegistry(t *testing.T, opened map[string]*nullProtocol) *Registry {
	factory := func(address string) (protocol.DeviceProtocol, error) {
		if address == "/dev/missing" {
			return nil, errors.New("no such device")
		}
		p := &nullProtocol{address: address}
		opened[address] = p
		return p, nil
	}
	return NewRegistryWithFactory(factory, brother.DefaultConfig(), zaptest.NewLogger(t))
}

func TestWithPrinterHoldsAddressExclusively(t *testing.T) {
	opened := map[string]*nullProtocol{}
	registry := newTestRegistry(t, opened)
	ctx := context.Background()

	err := registry.WithPrinter(ctx, "/dev/usb/lp0", func(d *brother.QLDriver) error {
		assert.True(t, registry.IsBusy("/dev/usb/lp0"))
		assert.Equal(t, []string{"/dev/usb/lp0"}, registry.ActiveDevices())

		inner := registry.WithPrinter(ctx, "/dev/usb/lp0", func(*brother.QLDriver) error {
			t.Fatal("second session must not start")
			return nil
		})
		assert.ErrorIs(t, inner, driver.ErrDeviceBusy)

		// A different printer is independent.
		require.NoError(t, registry.WithPrinter(ctx, "/dev/usb/lp1", func(*brother.QLDriver) error { return nil }))

		_, err := d.Status(ctx)
		return err
	})
	require.NoError(t, err)

	assert.False(t, registry.IsBusy("/dev/usb/lp0"))
	assert.Empty(t, registry.ActiveDevices())
	assert.Equal(t, 1, opened["/dev/usb/lp0"].closed)

	metrics := registry.HealthMetrics()
	require.Contains(t, metrics, "/dev/usb/lp0")
	assert.Equal(t, 1.0, metrics["/dev/usb/lp0"].SuccessRate)
}

func TestWithPrinterReleasesOnError(t *testing.T) {
	registry := newTestRegistry(t, map[string]*nullProtocol{})
	ctx := context.Background()

	err := registry.WithPrinter(ctx, "/dev/missing", func(*brother.QLDriver) error { return nil })
	assert.Error(t, err)
	assert.False(t, registry.IsBusy("/dev/missing"))

	boom := errors.New("boom")
	err = registry.WithPrinter(ctx, "/dev/usb/lp0", func(*brother.QLDriver) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, registry.IsBusy("/dev/usb/lp0"))
}

func TestRegistryIsSupported(t *testing.T) {
	registry := newTestRegistry(t, map[string]*nullProtocol{})
	assert.True(t, registry.IsSupported("/dev/usb/lp0"))
	assert.True(t, registry.IsSupported("usb://04f9:2042"))
	assert.False(t, registry.IsSupported("lpd://queue"))
}
