// internal/discovery/tcp/scanner.go
package tcp

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"ql-service/internal/discovery"
	"ql-service/internal/model"
)

// DefaultPort is the raw printing port of networked QL printers
const DefaultPort = 9100

// Config for TCP scanner
type Config struct {
	Hosts       []string      `json:"hosts"`
	Port        int           `json:"port"`
	ConnTimeout time.Duration `json:"connection_timeout"`
}

// Scanner checks a fixed list of network printers for an open raw port
type Scanner struct {
	logger *zap.Logger
	config *Config
}

// NewScanner creates a new TCP scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{}
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.ConnTimeout <= 0 {
		config.ConnTimeout = 2 * time.Second
	}
	return &Scanner{
		logger: logger.With(zap.String("scanner", "tcp")),
		config: config,
	}
}

// GetScannerType returns scanner type identifier
func (s *Scanner) GetScannerType() string {
	return "tcp"
}

// IsAvailable reports whether any hosts are configured
func (s *Scanner) IsAvailable() bool {
	return len(s.config.Hosts) > 0
}

// Scan dials every configured host concurrently
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	results := make([]*discovery.DiscoveredDevice, len(s.config.Hosts))

	var wg sync.WaitGroup
	for i, host := range s.config.Hosts {
		wg.Add(1)
		go func(i int, host string) {
			defer wg.Done()
			results[i] = s.checkHost(ctx, host)
		}(i, host)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	devices := make([]*discovery.DiscoveredDevice, 0, len(results))
	for _, device := range results {
		if device != nil {
			devices = append(devices, device)
		}
	}
	return devices, nil
}

// checkHost returns a device when the raw port accepts connections
func (s *Scanner) checkHost(ctx context.Context, host string) *discovery.DiscoveredDevice {
	hostPort := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		hostPort = net.JoinHostPort(host, strconv.Itoa(s.config.Port))
	}

	dialer := net.Dialer{Timeout: s.config.ConnTimeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		s.logger.Debug("Host not reachable", zap.String("host", hostPort), zap.Error(err))
		return nil
	}
	_ = conn.Close()

	return &discovery.DiscoveredDevice{
		ConnectionType: model.ConnectionTypeTCP,
		Address:        "tcp://" + hostPort,
		ConnectionInfo: map[string]interface{}{
			"host":       hostPort,
			"latency_ms": time.Since(start).Milliseconds(),
		},
		Model:      "unknown",
		Confidence: 0.4,
		Location:   hostPort,
	}
}
