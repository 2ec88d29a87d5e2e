package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soasign/backend/internal/auth"
	"github.com/soasign/backend/internal/config"
	"github.com/soasign/backend/internal/events"
)

// WSHub pushes record lifecycle events to the owning agent's open
// connections so dashboards update without polling.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[uuid.UUID][]*websocket.Conn
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[uuid.UUID][]*websocket.Conn),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	_ = h.subscriber.Subscribe(ctx, events.StreamSOA, func(event events.Event) {
		h.route(event)
	})
}

// route delivers an event only to the agent it belongs to. Lifecycle
// events carry client signing activity, so they never fan out globally.
func (h *WSHub) route(event events.Event) {
	raw, ok := event.Payload["agent_user_id"].(string)
	if !ok {
		return
	}
	agentID, err := uuid.Parse(raw)
	if err != nil {
		return
	}
	h.SendToAgent(agentID, event)
}

func (h *WSHub) SendToAgent(agentID uuid.UUID, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[agentID] {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	agentID := claims.AgentUserID

	h.mu.Lock()
	h.connections[agentID] = append(h.connections[agentID], conn)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		conns := h.connections[agentID]
		for i, c := range conns {
			if c == conn {
				h.connections[agentID] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(h.connections[agentID]) == 0 {
			delete(h.connections, agentID)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}
