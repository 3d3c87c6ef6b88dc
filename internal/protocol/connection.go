// internal/protocol/connection.go
package protocol

import (
	"io"
	"os"
	"time"
)

// Opener opens the device path for reading and writing.
type Opener func(path string) (io.ReadWriteCloser, error)

// OpenCharDev opens a character device read-write.
func OpenCharDev(path string) (io.ReadWriteCloser, error) {
	return os.OpenFile(path, os.O_RDWR, 0)
}

// CharDevConfig represents a printer-class character device such as /dev/usb/lp0
type CharDevConfig struct {
	Path         string      `json:"path"`
	PreambleSize int         `json:"preamble_size"`
	Retry        RetryPolicy `json:"retry"`
	Opener       Opener      `json:"-"`
}

// SerialConfig represents serial connection configuration
type SerialConfig struct {
	Port         string        `json:"port"`
	BaudRate     int           `json:"baud_rate"`
	DataBits     int           `json:"data_bits"`
	StopBits     int           `json:"stop_bits"`
	Parity       string        `json:"parity"`
	Timeout      time.Duration `json:"timeout"`
	PreambleSize int           `json:"preamble_size"`
	Retry        RetryPolicy   `json:"retry"`
}

// USBConfig represents a direct libusb connection
type USBConfig struct {
	VendorID     string        `json:"vendor_id"`
	ProductID    string        `json:"product_id"`
	SerialNumber string        `json:"serial_number"`
	OutEndpoint  int           `json:"out_endpoint"`
	InEndpoint   int           `json:"in_endpoint"`
	Timeout      time.Duration `json:"timeout"`
	PreambleSize int           `json:"preamble_size"`
	Retry        RetryPolicy   `json:"retry"`
}

// TCPConfig represents a raw TCP connection to a network printer
type TCPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	KeepAlive    bool          `json:"keep_alive"`
	Timeout      time.Duration `json:"timeout"`
	PreambleSize int           `json:"preamble_size"`
	Retry        RetryPolicy   `json:"retry"`
}
