// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ql-service/internal/model"
	"ql-service/internal/service"
	"ql-service/internal/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// WebSocketHandler streams printer and job events to WebSocket clients
type WebSocketHandler struct {
	upgrader     websocket.Upgrader
	connections  *ConnectionManager
	printService *service.PrintService
	eventBus     *EventBus
	logger       *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler. An empty
// allowedOrigins list accepts every origin.
func NewWebSocketHandler(
	printService *service.PrintService,
	eventBus *EventBus,
	allowedOrigins []string,
	logger *zap.Logger,
) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}

	return &WebSocketHandler{
		upgrader:     upgrader,
		connections:  NewConnectionManager(),
		printService: printService,
		eventBus:     eventBus,
		logger:       utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// Run forwards bus events to connected clients until ctx is cancelled
func (h *WebSocketHandler) Run(ctx context.Context) {
	events := h.eventBus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			h.BroadcastEvent(event)
		}
	}
}

// HandleDeviceConnection streams the events of one printer
// @Summary Printer event stream
// @Description WebSocket stream of status, page and error events for one printer
// @Tags WebSocket
// @Param device query string false "Printer address, defaults to the configured printer"
// @Router /ws/device [get]
func (h *WebSocketHandler) HandleDeviceConnection(c *gin.Context) {
	device := c.Query("device")
	if device == "" {
		device = h.printService.DefaultDevice()
	}

	// Upgrade connection
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	// Create client
	client := h.newClient(c, conn, ClientTypeDevice)
	client.Device = &device

	// Register client
	h.connections.Register(client)
	h.logger.Info("Device WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("device", device),
		zap.String("remote_addr", client.RemoteAddr),
	)

	// Send initial device status
	go h.sendInitialDeviceStatus(client, device)

	// Start client goroutines
	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// HandleEventConnection streams every event
// @Summary Event stream
// @Description WebSocket stream of every printer and job event
// @Tags WebSocket
// @Router /ws/events [get]
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := h.newClient(c, conn, ClientTypeEvents)
	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

func (h *WebSocketHandler) newClient(c *gin.Context, conn *websocket.Conn, clientType string) *Client {
	return &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        clientType,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	// Set read deadline and pong handler
	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		// Parse message
		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "invalid message")
			continue
		}

		// Handle message
		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe", "unsubscribe":
		h.handleSubscription(client, message)
	case "status":
		if client.Device == nil {
			h.sendError(client, "status only available on device connections")
			return
		}
		go h.sendInitialDeviceStatus(client, *client.Device)
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			RequestID: message.RequestID,
			Timestamp: time.Now(),
		})
	default:
		h.sendError(client, "unknown message type: "+message.Type)
	}
}

// handleSubscription narrows or widens the event types a client receives
func (h *WebSocketHandler) handleSubscription(client *Client, message *WebSocketMessage) {
	data, ok := message.Data.(map[string]interface{})
	if !ok {
		h.sendError(client, "subscription requires data.event_type")
		return
	}
	eventType, ok := data["event_type"].(string)
	if !ok || eventType == "" {
		h.sendError(client, "subscription requires data.event_type")
		return
	}

	if message.Type == "subscribe" {
		client.subscribe(model.EventType(eventType))
	} else {
		client.unsubscribe(model.EventType(eventType))
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      message.Type + "d",
		Data:      map[string]interface{}{"event_type": eventType},
		RequestID: message.RequestID,
		Timestamp: time.Now(),
	})
}

// sendInitialDeviceStatus queries the printer once. A printer busy with a
// job reports an error instead; its status arrives as events.
func (h *WebSocketHandler) sendInitialDeviceStatus(client *Client, device string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := h.printService.GetStatus(ctx, device)
	if err != nil {
		h.sendError(client, "status unavailable: "+err.Error())
		return
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      "status",
		Data:      status,
		Timestamp: time.Now(),
	})
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	if !h.connections.SendTo(client, messageBytes) {
		h.logger.Warn("Client gone or send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "error",
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
	})
}

// BroadcastEvent sends an event to the event clients and to the clients
// watching the event's printer
func (h *WebSocketHandler) BroadcastEvent(event model.DeviceEvent) {
	messageBytes, err := json.Marshal(&WebSocketMessage{
		Type:      "event",
		Data:      event,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	dropped := h.connections.Deliver(messageBytes, func(client *Client) bool {
		if !client.wants(event.EventType) {
			return false
		}
		if client.Type == ClientTypeEvents {
			return true
		}
		return client.Device != nil && *client.Device == event.Device
	})
	for _, id := range dropped {
		h.logger.Warn("Client send channel full during broadcast", zap.String("client_id", id))
	}
}

// GetConnectionStats returns connection statistics
// @Summary WebSocket connection statistics
// @Tags WebSocket
// @Produce json
// @Success 200 {object} utils.APIResponse{data=ConnectionStats}
// @Router /ws/stats [get]
func (h *WebSocketHandler) GetConnectionStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Connection statistics", h.connections.GetStats())
}
