// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bridge-service/internal/bridge"
	"bridge-service/internal/utils"
)

// WebSocketHandler streams bridge events to WebSocket clients
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	client      *bridge.Client
	logger      *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler and starts
// pumping bridge events to connected clients
func NewWebSocketHandler(client *bridge.Client, logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// In production, implement proper origin checking
			return true
		},
	}

	handler := &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		client:      client,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
	}

	go handler.pumpEvents()

	return handler
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	// All bridge events: responses and connection changes
	router.GET("/events", h.HandleEventConnection)

	// Responses for a single bus channel
	router.GET("/channels/:channel", h.HandleChannelConnection)
}

// HandleEventConnection handles firehose event WebSocket connections
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        "events",
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// HandleChannelConnection handles channel-scoped WebSocket connections
func (h *WebSocketHandler) HandleChannelConnection(c *gin.Context) {
	channel := c.Param("channel")
	if channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel is required"})
		return
	}
	leaf := bridge.ChannelLeaf(channel)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        "channel",
		Channel:     &leaf,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Channel WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("channel", leaf),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// pumpEvents forwards bridge events to WebSocket clients for the
// lifetime of the process
func (h *WebSocketHandler) pumpEvents() {
	emitter := h.client.Events()
	responses := emitter.Subscribe(bridge.EventResponse)
	connected := emitter.Subscribe(bridge.EventConnected)
	disconnected := emitter.Subscribe(bridge.EventDisconnected)

	for {
		select {
		case event := <-responses:
			h.broadcastResponse(event)
		case event := <-connected:
			h.broadcastConnState(event)
		case event := <-disconnected:
			h.broadcastConnState(event)
		}
	}
}

// broadcastResponse fans a resolved command out to the firehose clients
// and to clients watching its channel
func (h *WebSocketHandler) broadcastResponse(event bridge.Event) {
	if event.Response == nil {
		return
	}

	message := &WebSocketMessage{
		Type: "response",
		Data: map[string]interface{}{
			"token":        event.Response.Token,
			"device_class": event.Response.DeviceClass,
			"status":       event.Response.Status,
			"data":         event.Response.Data,
			"resolved_at":  event.Response.Timestamp,
		},
		Timestamp: event.Timestamp,
	}

	h.broadcastToClients(h.connections.GetEventClients(), message)
	h.broadcastToClients(h.connections.GetChannelClients(bridge.TokenChannel(event.Response.Token)), message)
}

// broadcastConnState fans bridge connection changes out to all clients
func (h *WebSocketHandler) broadcastConnState(event bridge.Event) {
	message := &WebSocketMessage{
		Type: event.Type,
		Data: map[string]interface{}{
			"address": event.Address,
		},
		Timestamp: event.Timestamp,
	}

	h.connections.mutex.RLock()
	clients := make([]*Client, 0, len(h.connections.clients))
	for _, client := range h.connections.clients {
		clients = append(clients, client)
	}
	h.connections.mutex.RUnlock()

	h.broadcastToClients(clients, message)
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	// Set read deadline and pong handler
	client.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
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

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.logger.Error("Failed to parse WebSocket message",
				zap.Error(err),
				zap.String("client_id", client.ID),
			)
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
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
			client.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
		})
	case "stats":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "stats",
			Data:      h.client.Stats(),
			Timestamp: time.Now(),
		})
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
	}
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// broadcastToClients broadcasts message to specified clients
func (h *WebSocketHandler) broadcastToClients(clients []*Client, message *WebSocketMessage) {
	if len(clients) == 0 {
		return
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.Send <- messageBytes:
		default:
			h.logger.Warn("Client send channel full during broadcast",
				zap.String("client_id", client.ID),
			)
		}
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
