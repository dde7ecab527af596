package handler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/auth"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/dto"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/logger"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/middleware"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/service"
)

// ============================================================================
// WEBSOCKET HUB
// ============================================================================

// Client represents a connected admin dashboard
type Client struct {
	Conn     *websocket.Conn
	Username string
	Send     chan []byte
}

// Hub fans sync status changes out to every connected client
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan dto.WSEvent
	done       chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan dto.WSEvent, 64),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. It must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			logger.Debugf("[WS] %s connected", client.Username)

		case client := <-h.unregister:
			h.remove(client)
			logger.Debugf("[WS] %s disconnected", client.Username)

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				logger.Errorf("[WS] marshaling event: %v", err)
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.Send <- data:
				default:
					// Buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
	h.mu.Unlock()
}

// Register adds client to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister drops client and closes its send channel. It does not block
// after the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.remove(client)
	}
}

func (h *Hub) Broadcast(event dto.WSEvent) {
	select {
	case h.broadcast <- event:
	default:
		logger.Warnf("[WS] broadcast queue full, dropping %s", event.Type)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ============================================================================
// SYNC STATUS STREAM
// ============================================================================

type WebSocketHandler struct {
	Hub  *Hub
	sync *service.SyncService
}

func NewWebSocketHandler(sync *service.SyncService) *WebSocketHandler {
	return &WebSocketHandler{Hub: NewHub(), sync: sync}
}

func (h *WebSocketHandler) statusEvent() dto.WSEvent {
	return dto.WSEvent{Type: "sync.status", Payload: syncStatus(h.sync)}
}

// Run drives the hub and relays every sync status change until ctx ends.
func (h *WebSocketHandler) Run(ctx context.Context) {
	changes, cancel := h.sync.Subscribe()
	defer cancel()
	go h.Hub.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			h.Hub.Broadcast(h.statusEvent())
		}
	}
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	username, _ := c.Locals("username").(string)
	client := &Client{
		Conn:     c,
		Username: username,
		Send:     make(chan []byte, 16),
	}

	if data, err := json.Marshal(h.statusEvent()); err == nil {
		client.Send <- data
	}
	if !h.Hub.Register(client) {
		c.Close()
		return
	}

	go h.writePump(client)
	h.readPump(client)
}

// readPump only watches for pings and the close frame
func (h *WebSocketHandler) readPump(client *Client) {
	defer func() {
		h.Hub.Unregister(client)
		client.Conn.Close()
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warnf("[WS] reading message: %v", err)
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			data, _ := json.Marshal(dto.WSEvent{Type: "pong"})
			select {
			case client.Send <- data:
			default:
			}
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (h *WebSocketHandler) writePump(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ============================================================================
// FIBER UPGRADE HANDLER
// ============================================================================

// WebSocketUpgrade authenticates the admin from the token query parameter,
// since browsers cannot set headers on the upgrade request.
func (h *WebSocketHandler) WebSocketUpgrade(authMiddleware *middleware.AuthMiddleware) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("token")
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse(
				"UNAUTHORIZED", "A token is required for the websocket",
			))
		}
		claims, err := authMiddleware.GetJWTService().ValidateAccessToken(token)
		if err != nil || claims.Role != auth.RoleAdmin {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse(
				"INVALID_TOKEN", "Invalid token",
			))
		}

		c.Locals("username", claims.Sub)
		return c.Next()
	}
}
