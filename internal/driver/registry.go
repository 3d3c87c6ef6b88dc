// internal/driver/registry.go
package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"ql-service/internal/config"
	"ql-service/internal/driver/brother"
	"ql-service/internal/protocol"
	"ql-service/pkg/driver"
)

// ProtocolFactory creates the channel for a printer address
type ProtocolFactory func(address string) (protocol.DeviceProtocol, error)

// Registry hands out exclusive driver sessions per printer address. A second
// caller for an address that is in use gets driver.ErrDeviceBusy instead of
// waiting, since the protocol cannot interleave two jobs on one handle.
type Registry struct {
	factory      ProtocolFactory
	driverConfig brother.Config
	eventHandler driver.EventHandler
	busy         map[string]struct{}
	metrics      map[string]*driver.HealthMetrics
	mu           sync.RWMutex
	logger       *zap.Logger
}

// NewRegistry creates a registry that opens channels from printer configuration
func NewRegistry(cfg *config.PrinterConfig, logger *zap.Logger) *Registry {
	factory := func(address string) (protocol.DeviceProtocol, error) {
		return protocol.CreateProtocol(address, cfg, logger)
	}
	return NewRegistryWithFactory(factory, brother.Config{
		CompletionTimeout: cfg.Timeout,
		StatusTimeout:     cfg.Timeout,
		PollInterval:      cfg.PollInterval,
	}, logger)
}

// NewRegistryWithFactory creates a registry over a custom channel factory
func NewRegistryWithFactory(factory ProtocolFactory, driverConfig brother.Config, logger *zap.Logger) *Registry {
	return &Registry{
		factory:      factory,
		driverConfig: driverConfig,
		busy:         make(map[string]struct{}),
		metrics:      make(map[string]*driver.HealthMetrics),
		logger:       logger,
	}
}

// SetEventHandler sets the handler attached to every new session
func (r *Registry) SetEventHandler(handler driver.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventHandler = handler
}

// acquire marks address busy, failing if it already is
func (r *Registry) acquire(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.busy[address]; held {
		return fmt.Errorf("%w: %s", driver.ErrDeviceBusy, address)
	}
	r.busy[address] = struct{}{}
	return nil
}

func (r *Registry) release(address string, metrics *driver.HealthMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.busy, address)
	if metrics != nil {
		r.metrics[address] = metrics
	}
}

// WithPrinter opens a driver session on address, runs fn and closes the
// session again. The address is held exclusively for the duration.
func (r *Registry) WithPrinter(ctx context.Context, address string, fn func(*brother.QLDriver) error) error {
	if err := r.acquire(address); err != nil {
		return err
	}

	var qlDriver *brother.QLDriver
	defer func() {
		var metrics *driver.HealthMetrics
		if qlDriver != nil {
			metrics = qlDriver.GetHealthMetrics()
		}
		r.release(address, metrics)
	}()

	p, err := r.factory(address)
	if err != nil {
		return err
	}

	qlDriver = brother.NewQLDriver(p, r.driverConfig, r.logger)
	r.mu.RLock()
	if r.eventHandler != nil {
		qlDriver.SetEventHandler(r.eventHandler)
	}
	r.mu.RUnlock()

	if err := qlDriver.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := qlDriver.Close(); err != nil {
			r.logger.Warn("Failed to close printer session",
				zap.String("device", address),
				zap.Error(err),
			)
		}
	}()

	return fn(qlDriver)
}

// IsBusy reports whether a session is open on address
func (r *Registry) IsBusy(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, held := r.busy[address]
	return held
}

// ActiveDevices returns the addresses with an open session
func (r *Registry) ActiveDevices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addresses := make([]string, 0, len(r.busy))
	for address := range r.busy {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses
}

// HealthMetrics returns the metrics of the last finished session per address
func (r *Registry) HealthMetrics() map[string]driver.HealthMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]driver.HealthMetrics, len(r.metrics))
	for address, m := range r.metrics {
		out[address] = *m
	}
	return out
}

// IsSupported checks that address names a channel this service can open
func (r *Registry) IsSupported(address string) bool {
	_, err := protocol.ParseAddress(address)
	return err == nil
}
