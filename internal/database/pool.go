package database

import (
	"fmt"
	"time"

	"smart-task-manager/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type PoolConfig struct {
	DSN             string          `json:"dsn"`
	MaxOpenConns    int             `json:"max_open_conns"`
	MaxIdleConns    int             `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration   `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration   `json:"conn_max_idle_time"`
	LogLevel        logger.LogLevel `json:"log_level"`
}

func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		LogLevel:        logger.Info,
	}
}

// NewDatabasePool opens a Postgres connection through gorm and applies the
// pool limits to the underlying sql.DB.
func NewDatabasePool(config *PoolConfig) (*gorm.DB, error) {
	if config == nil {
		config = DefaultPoolConfig()
	}

	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := gorm.Open(postgres.Open(config.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(config.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}

	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	return db, nil
}

// Migrate creates or updates the schema for all persisted models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Task{},
		&models.Subtask{},
		&models.Token{},
	)
}
