package gateway

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/quitmate/realtime/modules/cache"
	"github.com/quitmate/realtime/modules/community"
)

// Module implements the WebSocket gateway using the Fiber framework. It owns
// the hub, the HTTP surface, and the JWT validator; message semantics live in
// the community module.
type Module struct {
	app       *fiber.App
	hub       *Hub
	handlers  *Handlers
	addr      string
	community *community.Module
	cache     *cache.Module
	logger    types.Logger
	cancelHub context.CancelFunc
}

var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new gateway module. The listen address comes from the
// GATEWAY_ADDR environment variable, defaulting to :8080.
func NewModule(communityModule *community.Module, cacheModule *cache.Module, moduleLogger types.Logger) *Module {
	addr := os.Getenv("GATEWAY_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return &Module{
		addr:      addr,
		community: communityModule,
		cache:     cacheModule,
		logger:    moduleLogger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "gateway"
}

// Start initializes and starts the gateway server.
func (m *Module) Start(ctx context.Context) error {
	m.hub = NewHub(m.logger)

	hubCtx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(hubCtx)

	jwtManager := NewJWTManager(JWTConfigFromEnv())
	m.handlers = NewHandlers(m.hub, m.community.Service(), m.cache.Cache(), jwtManager, m.logger)
	m.app = NewApp(m.handlers)

	// Start server in goroutine with startup error detection.
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("gateway started", "addr", m.addr)
	return nil
}

// Stop gracefully shuts down the gateway.
func (m *Module) Stop(ctx context.Context) error {
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown gateway: %w", err)
		}
	}
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	m.logger.Info("gateway stopped")
	return nil
}

// Health reports gateway health.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.hub == nil {
		return mono.HealthStatus{Healthy: false, Message: "not started"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "serving",
		Details: map[string]any{"sessions": m.hub.SessionCount()},
	}
}

// NewApp wires up all HTTP and WebSocket routes.
func NewApp(h *Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Realtime Gateway",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(h.logger),
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
	}))

	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:8080"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	app.Get("/health", h.HealthCheck)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(h.HandleWebSocket))

	api := app.Group("/api/v1")
	api.Get("/communities/:id/messages", h.GetHistory)

	return app
}

func errorHandler(log types.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}

		log.Error("http error", "code", code, "message", message, "error", err)

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}
