package main

import (
	"context"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/quitmate/realtime/modules/cache"
	"github.com/quitmate/realtime/modules/community"
	"github.com/quitmate/realtime/modules/gateway"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== Realtime Community Chat ===")

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	communityModule := community.NewModule(app.Logger())
	cacheModule := cache.NewModule(app.Logger())
	gatewayModule := gateway.NewModule(communityModule, cacheModule, app.Logger())

	// Order matters: the gateway pulls its service and cache from the
	// modules registered before it.
	app.Register(communityModule) // message store + event emitter
	app.Register(cacheModule)     // history cache + invalidation consumer
	app.Register(gatewayModule)   // WebSocket + REST surface

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo() {
	addr := os.Getenv("GATEWAY_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Message Store: SQLite via GORM")
	log.Printf("  - History Cache: Redis (%s), pass-through when unavailable", redisAddr)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost%s):", addr)
	log.Println("  GET    /health                              - Health check")
	log.Println("  GET    /api/v1/communities/:id/messages     - Message history (limit, before)")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost%s/ws):", addr)
	log.Println("  Handshake: send an authenticate frame with a JWT, then join_community")
	log.Println("  Events: send_message, edit_message, delete_message,")
	log.Println("          add_reaction, remove_reaction, typing_start, typing_stop")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
