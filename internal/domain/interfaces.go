package domain

import (
	"context"
)

// CycleRepository defines the interface for UAT cycle persistence
type CycleRepository interface {
	Create(ctx context.Context, cycle *Cycle) error
	GetByID(ctx context.Context, id string) (*Cycle, error)
	List(ctx context.Context, status CycleStatus, limit, offset int) ([]*Cycle, error)
	UpdateStatus(ctx context.Context, id string, status CycleStatus, changedBy, reason string) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
