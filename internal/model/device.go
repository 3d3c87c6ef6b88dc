// internal/model/device.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ConnectionType represents how the printer is attached
type ConnectionType string

const (
	ConnectionTypeCharDev ConnectionType = "CHARDEV"
	ConnectionTypeSerial  ConnectionType = "SERIAL"
	ConnectionTypeUSB     ConnectionType = "USB"
	ConnectionTypeTCP     ConnectionType = "TCP"
)

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported JSONB source %T", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringList type for PostgreSQL JSONB string arrays
type StringList []string

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported JSONB source %T", value)
	}
	return json.Unmarshal(bytes, l)
}

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// PrinterStatus is the decoded view of a status frame returned to API clients
type PrinterStatus struct {
	Device       string     `json:"device"`
	Model        string     `json:"model"`
	ModelCode    string     `json:"model_code"`
	Mode         string     `json:"mode"`
	Errors       StringList `json:"errors"`
	MediaType    string     `json:"media_type"`
	MediaWidth   uint8      `json:"media_width_mm"`
	MediaLength  *uint8     `json:"media_length_mm,omitempty"`
	StatusType   string     `json:"status_type"`
	Phase        string     `json:"phase"`
	Notification string     `json:"notification"`
	BlockSize    int        `json:"block_size"`
	MaxDots      int        `json:"max_dots"`
	Report       string     `json:"report"`
}
