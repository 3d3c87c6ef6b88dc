// internal/handler/event_bus.go
package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"ql-service/internal/driver/brother"
	"ql-service/internal/model"
	"ql-service/pkg/driver"
)

// EventBus fans printer and job events out to subscribers
type EventBus struct {
	subscribers map[model.EventType][]chan model.DeviceEvent
	wildcard    []chan model.DeviceEvent
	events      chan model.DeviceEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[model.EventType][]chan model.DeviceEvent),
		events:      make(chan model.DeviceEvent, 1000),
		logger:      logger,
	}
}

// Start distributes events until ctx is cancelled
func (eb *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Publish queues an event without blocking. Events are dropped when the queue is full.
func (eb *EventBus) Publish(event model.DeviceEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
			zap.String("device", event.Device),
		)
	}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given
func (eb *EventBus) Subscribe(eventTypes ...model.EventType) <-chan model.DeviceEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.DeviceEvent, 100)
	if len(eventTypes) == 0 {
		eb.wildcard = append(eb.wildcard, subscriber)
		return subscriber
	}
	for _, eventType := range eventTypes {
		eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	}
	return subscriber
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.DeviceEvent) {
	eb.mutex.RLock()
	subscribers := append(append([]chan model.DeviceEvent(nil), eb.subscribers[event.EventType]...), eb.wildcard...)
	eb.mutex.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

// DeviceEventHandler publishes driver events on the bus
type DeviceEventHandler struct {
	bus    *EventBus
	logger *zap.Logger
}

var _ driver.EventHandler = (*DeviceEventHandler)(nil)

// NewDeviceEventHandler creates a new device event handler
func NewDeviceEventHandler(bus *EventBus, logger *zap.Logger) *DeviceEventHandler {
	return &DeviceEventHandler{
		bus:    bus,
		logger: logger,
	}
}

// OnStateChanged handles driver state transitions
func (deh *DeviceEventHandler) OnStateChanged(device string, from, to string) {
	deh.bus.Publish(model.NewDeviceEvent(model.EventStateChanged, device, "driver", model.JSONObject{
		"from": from,
		"to":   to,
	}))
}

// OnStatus handles every status frame read from a printer
func (deh *DeviceEventHandler) OnStatus(device string, status *driver.Status) {
	deh.bus.Publish(model.NewDeviceEvent(model.EventStatus, device, "driver", model.JSONObject{
		"model":       brother.ModelName(status.ModelCode),
		"status_type": brother.StatusTypeLabel(status.Type),
		"phase":       brother.PhaseLabel(status.Phase),
		"errors":      brother.ErrorNames(status.Errors()),
	}))
}

// OnPageCompleted handles a finished page
func (deh *DeviceEventHandler) OnPageCompleted(device string, page driver.PageResult) {
	deh.bus.Publish(model.NewDeviceEvent(model.EventPageCompleted, device, "driver", model.JSONObject{
		"item":        page.Item,
		"copy":        page.Copy,
		"width":       page.Width,
		"height":      page.Height,
		"duration_ms": page.Duration.Milliseconds(),
	}))
}

// OnDeviceError handles device error events
func (deh *DeviceEventHandler) OnDeviceError(device string, err error) {
	deh.bus.Publish(model.NewDeviceEvent(model.EventDeviceError, device, "driver", model.JSONObject{
		"error": err.Error(),
	}))

	deh.logger.Error("Device error event published",
		zap.String("device", device),
		zap.Error(err),
	)
}
