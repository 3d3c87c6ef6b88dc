// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"ql-service/internal/driver/brother"
	"ql-service/internal/model"
	"ql-service/pkg/driver"
)

// DeviceScanner finds printers reachable over one kind of channel
type DeviceScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredDevice, error)
	GetScannerType() string
	IsAvailable() bool
}

// StatusQuery opens address and reads one status frame
type StatusQuery func(ctx context.Context, address string) (*driver.Status, error)

// DiscoveredDevice represents a discovered printer
type DiscoveredDevice struct {
	ConnectionType model.ConnectionType   `json:"connection_type"`
	Address        string                 `json:"address"`
	ConnectionInfo map[string]interface{} `json:"connection_info,omitempty"`
	Model          string                 `json:"model"`
	Confidence     float64                `json:"confidence"` // 0.0-1.0
	SerialNumber   string                 `json:"serial_number,omitempty"`
	Location       string                 `json:"location,omitempty"`
	Errors         []string               `json:"errors,omitempty"`
}

// ApplyStatus records a successful status query. A printer that answered with a
// status frame is certainly a QL printer.
func (d *DiscoveredDevice) ApplyStatus(status *driver.Status) {
	d.Model = brother.ModelName(status.ModelCode)
	d.Errors = brother.ErrorNames(status.Errors())
	d.Confidence = 1.0
}

// ScannerManager runs the registered scanners
type ScannerManager struct {
	scanners map[string]DeviceScanner
	query    StatusQuery
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]DeviceScanner),
		logger:   logger,
	}
}

// SetStatusQuery enables a status query of every discovered device
func (sm *ScannerManager) SetStatusQuery(query StatusQuery) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.query = query
}

// RegisterScanner registers a device scanner
func (sm *ScannerManager) RegisterScanner(scanner DeviceScanner) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs every available scanner. A failing scanner is logged and skipped.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredDevice, error) {
	var allDevices []*DiscoveredDevice

	for _, scannerType := range sm.GetAvailableScanners() {
		devices, err := sm.runScanner(ctx, scannerType)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}
		allDevices = append(allDevices, devices...)
	}

	if err := ctx.Err(); err != nil {
		return allDevices, err
	}
	return sm.postProcess(ctx, allDevices), nil
}

// ScanByType runs one scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredDevice, error) {
	sm.mu.RLock()
	scanner, exists := sm.scanners[scannerType]
	sm.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}

	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	devices, err := sm.runScanner(ctx, scannerType)
	if err != nil {
		return nil, err
	}
	return sm.postProcess(ctx, devices), nil
}

func (sm *ScannerManager) runScanner(ctx context.Context, scannerType string) ([]*DiscoveredDevice, error) {
	sm.mu.RLock()
	scanner := sm.scanners[scannerType]
	sm.mu.RUnlock()

	devices, err := scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}

	sm.logger.Info("Scanner completed",
		zap.String("type", scannerType),
		zap.Int("devices_found", len(devices)),
	)
	return devices, nil
}

// postProcess deduplicates by address and sorts by confidence
func (sm *ScannerManager) postProcess(ctx context.Context, devices []*DiscoveredDevice) []*DiscoveredDevice {
	sm.mu.RLock()
	query := sm.query
	sm.mu.RUnlock()

	seen := make(map[string]bool, len(devices))
	unique := make([]*DiscoveredDevice, 0, len(devices))
	for _, device := range devices {
		if seen[device.Address] {
			continue
		}
		seen[device.Address] = true

		if query != nil && device.Confidence < 1.0 {
			if status, err := query(ctx, device.Address); err == nil {
				device.ApplyStatus(status)
			} else {
				sm.logger.Debug("Status query failed", zap.String("address", device.Address), zap.Error(err))
			}
		}
		unique = append(unique, device)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		if unique[i].Confidence != unique[j].Confidence {
			return unique[i].Confidence > unique[j].Confidence
		}
		return unique[i].Address < unique[j].Address
	})
	return unique
}

// GetAvailableScanners returns the available scanner types, sorted
func (sm *ScannerManager) GetAvailableScanners() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var available []string
	for scannerType, scanner := range sm.scanners {
		if scanner.IsAvailable() {
			available = append(available, scannerType)
		}
	}
	sort.Strings(available)
	return available
}
