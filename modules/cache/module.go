package cache

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"

	"github.com/quitmate/realtime/modules/community"
)

const defaultTTL = 2 * time.Minute

// Module wires the history cache into the application and invalidates it
// from the community module's events. When Redis is unreachable at startup
// the module runs in pass-through mode rather than failing the app.
type Module struct {
	cache  *HistoryCache
	client *redis.Client
	addr   string
	logger types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module              = (*Module)(nil)
	_ mono.EventConsumerModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new cache module.
func NewModule(moduleLogger types.Logger) *Module {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return &Module{
		addr:   addr,
		logger: moduleLogger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "cache"
}

// Start connects to Redis, falling back to pass-through when unavailable.
func (m *Module) Start(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{Addr: m.addr})
	if err := client.Ping(ctx).Err(); err != nil {
		m.logger.Warn("Redis unavailable, history cache disabled", "addr", m.addr, "error", err)
		client.Close()
		m.cache = New(nil, "chat:", defaultTTL)
		return nil
	}

	m.client = client
	m.cache = New(client, "chat:", defaultTTL)
	m.logger.Info("History cache started", "addr", m.addr)
	return nil
}

// Stop closes the Redis connection.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		m.client.Close()
	}
	m.logger.Info("Cache module stopped")
	return nil
}

// Health reports cache connectivity and hit statistics.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.client == nil {
		return mono.HealthStatus{Healthy: true, Message: "pass-through (no redis)"}
	}
	if err := m.client.Ping(ctx).Err(); err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("redis ping failed: %v", err)}
	}
	stats := m.cache.Snapshot()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"hits": stats.Hits, "misses": stats.Misses},
	}
}

// RegisterEventConsumers invalidates history pages whenever the community
// module reports a change.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, community.MessagePostedV1, m.handleMessageEvent, m,
	); err != nil {
		return fmt.Errorf("failed to register MessagePosted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, community.MessageEditedV1, m.handleMessageEvent, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageEdited consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, community.MessageDeletedV1, m.handleMessageEvent, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageDeleted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, community.ReactionsChangedV1, m.handleReactionEvent, m,
	); err != nil {
		return fmt.Errorf("failed to register ReactionsChanged consumer: %w", err)
	}

	m.logger.Info("Registered cache invalidation consumers")
	return nil
}

func (m *Module) handleMessageEvent(ctx context.Context, event community.MessageEvent, _ *mono.Msg) error {
	if err := m.cache.InvalidateCommunity(ctx, event.CommunityID); err != nil {
		m.logger.Warn("History invalidation failed", "communityID", event.CommunityID, "error", err)
	}
	return nil
}

func (m *Module) handleReactionEvent(ctx context.Context, event community.ReactionEvent, _ *mono.Msg) error {
	if err := m.cache.InvalidateCommunity(ctx, event.CommunityID); err != nil {
		m.logger.Warn("History invalidation failed", "communityID", event.CommunityID, "error", err)
	}
	return nil
}

// Cache returns the history cache. Valid after Start.
func (m *Module) Cache() *HistoryCache {
	return m.cache
}
