// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"ql-service/internal/config"
	"ql-service/internal/model"
)

// Address is a parsed printer address
type Address struct {
	Type   model.ConnectionType
	Target string
	// USB only
	VendorID     string
	ProductID    string
	SerialNumber string
	// TCP only
	Host string
	Port int
}

// ParseAddress parses a printer address. A bare path is a character device;
// otherwise the scheme selects the channel:
//
//	serial:///dev/ttyUSB0
//	usb://04f9:2042[/serial-number]
//	tcp://192.168.1.20[:9100]
func ParseAddress(address string) (*Address, error) {
	if address == "" {
		return nil, fmt.Errorf("printer address is required")
	}

	scheme, rest, found := strings.Cut(address, "://")
	if !found {
		return &Address{Type: model.ConnectionTypeCharDev, Target: address}, nil
	}

	switch strings.ToLower(scheme) {
	case "file", "chardev":
		if rest == "" {
			return nil, fmt.Errorf("device path is required in %q", address)
		}
		return &Address{Type: model.ConnectionTypeCharDev, Target: rest}, nil

	case "serial":
		if rest == "" {
			return nil, fmt.Errorf("serial port is required in %q", address)
		}
		return &Address{Type: model.ConnectionTypeSerial, Target: rest}, nil

	case "usb":
		ids, serialNumber, _ := strings.Cut(rest, "/")
		vendor, product, ok := strings.Cut(ids, ":")
		if !ok {
			return nil, fmt.Errorf("usb address must be usb://vid:pid, got %q", address)
		}
		if _, err := ParseHexID(vendor); err != nil {
			return nil, fmt.Errorf("invalid vendor ID %q: %w", vendor, err)
		}
		if _, err := ParseHexID(product); err != nil {
			return nil, fmt.Errorf("invalid product ID %q: %w", product, err)
		}
		return &Address{
			Type:         model.ConnectionTypeUSB,
			Target:       rest,
			VendorID:     vendor,
			ProductID:    product,
			SerialNumber: serialNumber,
		}, nil

	case "tcp":
		host, portStr, err := net.SplitHostPort(rest)
		port := 0
		if err != nil {
			host = rest
		} else {
			port, err = strconv.Atoi(portStr)
			if err != nil || port < 1 || port > 65535 {
				return nil, fmt.Errorf("invalid port number in %q", address)
			}
		}
		if host == "" {
			return nil, fmt.Errorf("TCP host is required in %q", address)
		}
		return &Address{Type: model.ConnectionTypeTCP, Target: rest, Host: host, Port: port}, nil

	default:
		return nil, fmt.Errorf("unsupported address scheme: %s", scheme)
	}
}

// CreateProtocol creates the channel for address using the printer configuration
func CreateProtocol(address string, cfg *config.PrinterConfig, logger *zap.Logger) (DeviceProtocol, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	retry := RetryPolicy{
		MaxAttempts:    cfg.RetryAttempts,
		Interval:       cfg.RetryInterval,
		ReopenOnClosed: true,
	}

	switch addr.Type {
	case model.ConnectionTypeCharDev:
		return NewCharDevConnection(&CharDevConfig{
			Path:         addr.Target,
			PreambleSize: cfg.PreambleSize,
			Retry:        retry,
		}, logger), nil

	case model.ConnectionTypeSerial:
		return NewSerialConnection(&SerialConfig{
			Port:         addr.Target,
			BaudRate:     cfg.Serial.BaudRate,
			DataBits:     cfg.Serial.DataBits,
			StopBits:     cfg.Serial.StopBits,
			Parity:       cfg.Serial.Parity,
			Timeout:      cfg.Serial.Timeout,
			PreambleSize: cfg.PreambleSize,
			Retry:        retry,
		}, logger), nil

	case model.ConnectionTypeUSB:
		return NewUSBConnection(&USBConfig{
			VendorID:     addr.VendorID,
			ProductID:    addr.ProductID,
			SerialNumber: addr.SerialNumber,
			Timeout:      cfg.USB.Timeout,
			PreambleSize: cfg.PreambleSize,
			Retry:        retry,
		}, logger), nil

	case model.ConnectionTypeTCP:
		port := addr.Port
		if port == 0 {
			port = cfg.TCP.Port
		}
		return NewTCPConnection(&TCPConfig{
			Host:         addr.Host,
			Port:         port,
			KeepAlive:    cfg.TCP.KeepAlive,
			Timeout:      cfg.TCP.ConnectTimeout,
			PreambleSize: cfg.PreambleSize,
			Retry:        retry,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unsupported protocol type: %s", addr.Type)
	}
}
