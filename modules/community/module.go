package community

import (
	"context"
	"fmt"
	"os"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Module owns the chat message store and exposes the community service to
// the rest of the application.
type Module struct {
	db      *gorm.DB
	repo    *Repository
	service *Service
	bus     mono.EventBus
	dbPath  string
	logger  types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module              = (*Module)(nil)
	_ mono.EventBusAwareModule = (*Module)(nil)
	_ mono.EventEmitterModule  = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new community module.
func NewModule(moduleLogger types.Logger) *Module {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "community.db"
	}
	return &Module{
		dbPath: dbPath,
		logger: moduleLogger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "community"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.bus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		MessagePostedV1.ToBase(),
		MessageEditedV1.ToBase(),
		MessageDeletedV1.ToBase(),
		ReactionsChangedV1.ToBase(),
	}
}

// Start opens the database, runs migrations and builds the service.
func (m *Module) Start(_ context.Context) error {
	logLevel := gormlogger.Silent
	if os.Getenv("DB_DEBUG") == "true" {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	m.db = db
	m.repo = NewRepository(db)

	if err := m.repo.Migrate(); err != nil {
		return err
	}

	m.service = NewService(m.repo, m.bus, m.logger)
	m.logger.Info("Community module started", "db", m.dbPath)
	return nil
}

// Stop closes the database connection.
func (m *Module) Stop(_ context.Context) error {
	if m.db != nil {
		if sqlDB, err := m.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	m.logger.Info("Community module stopped")
	return nil
}

// Health reports the database connectivity.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{Healthy: false, Message: "database not initialized"}
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("failed to get sql.DB: %v", err)}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("database ping failed: %v", err)}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"driver": "sqlite", "path": m.dbPath},
	}
}

// Service returns the community service. Valid after Start.
func (m *Module) Service() *Service {
	return m.service
}
