// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventStateChanged  EventType = "STATE_CHANGED"
	EventStatus        EventType = "STATUS"
	EventPageCompleted EventType = "PAGE_COMPLETED"
	EventDeviceError   EventType = "DEVICE_ERROR"
	EventJobStarted    EventType = "JOB_STARTED"
	EventJobCompleted  EventType = "JOB_COMPLETED"
	EventJobFailed     EventType = "JOB_FAILED"
)

// DeviceEvent represents an event in the system
type DeviceEvent struct {
	ID        uuid.UUID  `json:"id"`
	EventType EventType  `json:"event_type"`
	Device    string     `json:"device"`
	Data      JSONObject `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"`
	Severity  string     `json:"severity"` // INFO, WARNING, ERROR
}

// NewDeviceEvent stamps a new event
func NewDeviceEvent(eventType EventType, device, source string, data JSONObject) DeviceEvent {
	severity := "INFO"
	switch eventType {
	case EventDeviceError, EventJobFailed:
		severity = "ERROR"
	}
	return DeviceEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Device:    device,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
		Severity:  severity,
	}
}
