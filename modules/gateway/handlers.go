package gateway

import (
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/quitmate/realtime/domain/chat"
	"github.com/quitmate/realtime/modules/cache"
	"github.com/quitmate/realtime/modules/community"
)

// Handlers contains HTTP and WebSocket handlers.
type Handlers struct {
	hub     *Hub
	svc     *community.Service
	history *cache.HistoryCache
	jwt     *JWTManager
	logger  types.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(hub *Hub, svc *community.Service, history *cache.HistoryCache, jwt *JWTManager, logger types.Logger) *Handlers {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Handlers{
		hub:     hub,
		svc:     svc,
		history: history,
		jwt:     jwt,
		logger:  logger,
	}
}

// HandleWebSocket upgrades and serves a WebSocket connection.
func (h *Handlers) HandleWebSocket(c *websocket.Conn) {
	h.handleConnection(c)
}

// GetHistory handles history requests (GET /api/v1/communities/:id/messages).
// Pagination goes backwards: pass the oldest received message ID as "before".
func (h *Handlers) GetHistory(c *fiber.Ctx) error {
	communityID := c.Params("id")
	if communityID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "community ID is required",
		})
	}

	limit := c.QueryInt("limit", 50)
	before := c.Query("before")

	messages, err := h.history.GetHistory(c.Context(), communityID, before, limit, func() ([]chat.Message, error) {
		return h.svc.History(communityID, before, limit)
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"communityId": communityID,
		"messages":    messages,
		"total":       len(messages),
	})
}

// HealthCheck handles health check requests (GET /health).
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "healthy",
		"sessions": h.hub.SessionCount(),
	})
}
