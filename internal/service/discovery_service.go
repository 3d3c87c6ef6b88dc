// internal/service/discovery_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ql-service/internal/config"
	"ql-service/internal/discovery"
	"ql-service/internal/discovery/chardev"
	"ql-service/internal/discovery/serial"
	"ql-service/internal/discovery/tcp"
	"ql-service/internal/discovery/usb"
	internalDriver "ql-service/internal/driver"
	"ql-service/internal/driver/brother"
	"ql-service/internal/utils"
	"ql-service/pkg/driver"
)

// ScanTypeAll runs every available scanner
const ScanTypeAll = "all"

// DiscoveryService finds printers attached to or reachable from this host
type DiscoveryService struct {
	driverRegistry *internalDriver.Registry
	scannerManager *discovery.ScannerManager
	config         *config.Config
	logger         *utils.ServiceLogger
}

// NewDiscoveryService creates a new discovery service
func NewDiscoveryService(
	driverRegistry *internalDriver.Registry,
	config *config.Config,
	logger *zap.Logger,
) *DiscoveryService {
	return NewDiscoveryServiceWithManager(driverRegistry, discovery.NewScannerManager(logger), config, logger)
}

// NewDiscoveryServiceWithManager creates a discovery service over a prepared
// scanner manager, registering the configured scanners on it
func NewDiscoveryServiceWithManager(
	driverRegistry *internalDriver.Registry,
	scannerManager *discovery.ScannerManager,
	config *config.Config,
	logger *zap.Logger,
) *DiscoveryService {
	// Create discovery service
	ds := &DiscoveryService{
		driverRegistry: driverRegistry,
		scannerManager: scannerManager,
		config:         config,
		logger:         utils.NewServiceLogger(logger, "discovery-service"),
	}
	// Initialize scanners
	ds.initializeScanners()
	return ds
}

// initializeScanners registers the scanners enabled in configuration
func (ds *DiscoveryService) initializeScanners() {
	cfg := ds.config.Discovery
	logger := ds.logger.Logger

	// Register character device scanner
	if cfg.CharDevGlob != "" {
		ds.scannerManager.RegisterScanner(chardev.NewScanner(logger, cfg.CharDevGlob))
	}
	// Register USB scanner
	if cfg.USBEnabled {
		ds.scannerManager.RegisterScanner(usb.NewScanner(logger, cfg.ScanTimeout))
	}
	// Register serial scanner
	if cfg.SerialEnabled {
		ds.scannerManager.RegisterScanner(serial.NewScanner(logger))
	}
	// Register TCP scanner
	if len(cfg.TCPHosts) > 0 {
		ds.scannerManager.RegisterScanner(tcp.NewScanner(logger, &tcp.Config{
			Hosts:       cfg.TCPHosts,
			Port:        ds.config.Printer.TCP.Port,
			ConnTimeout: ds.config.Printer.TCP.ConnectTimeout,
		}))
	}

	if cfg.QueryStatus && ds.driverRegistry != nil {
		ds.scannerManager.SetStatusQuery(ds.queryStatus)
	}

	ds.logger.Info("Discovery scanners initialized",
		zap.Strings("available_scanners", ds.scannerManager.GetAvailableScanners()),
		zap.Bool("query_status", cfg.QueryStatus),
	)
}

// queryStatus reads one status frame from address. Busy printers are skipped.
func (ds *DiscoveryService) queryStatus(ctx context.Context, address string) (*driver.Status, error) {
	var status *driver.Status
	err := ds.driverRegistry.WithPrinter(ctx, address, func(d *brother.QLDriver) error {
		if err := d.Initialize(ctx); err != nil {
			return err
		}
		var err error
		status, err = d.Status(ctx)
		return err
	})
	return status, err
}

// ScanDevices runs the scanner named by scanType, or all scanners
func (ds *DiscoveryService) ScanDevices(ctx context.Context, scanType string) ([]*discovery.DiscoveredDevice, error) {
	if scanType == "" {
		scanType = ScanTypeAll
	}
	ds.logger.Info("Starting device scan", zap.String("type", scanType))
	start := time.Now()

	if timeout := ds.config.Discovery.ScanTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// Scan for devices
	var devices []*discovery.DiscoveredDevice
	var err error

	switch scanType {
	case ScanTypeAll:
		devices, err = ds.scannerManager.ScanAll(ctx)
	case "chardev", "usb", "serial", "tcp":
		devices, err = ds.scannerManager.ScanByType(ctx, scanType)
	default:
		return nil, fmt.Errorf("unsupported scan type: %s", scanType)
	}
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	ds.logger.Info("Device scan completed",
		zap.Int("devices_found", len(devices)),
		zap.String("scan_type", scanType),
		zap.Duration("duration", time.Since(start)),
	)
	return devices, nil
}

// AvailableScanners returns the scanner types that can currently run
func (ds *DiscoveryService) AvailableScanners() []string {
	return ds.scannerManager.GetAvailableScanners()
}
