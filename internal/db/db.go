package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the database named by dsn. Postgres URLs and key=value
// strings go to the postgres driver; "sqlite:" prefixed paths and ":memory:"
// go to sqlite.
func Open(dsn string, pool PoolConfig, logger *zap.Logger) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, memory := dialectorFor(dsn)
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newGormLogger(logger, gormlogger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if pool.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
		}
		if pool.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
		}
		if pool.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
		}
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("database connected",
		zap.String("driver", dialector.Name()),
		zap.Int("max_open", pool.MaxOpenConns),
		zap.Int("max_idle", pool.MaxIdleConns))
	return conn, nil
}

func dialectorFor(dsn string) (gorm.Dialector, bool) {
	switch {
	case dsn == ":memory:":
		return sqlite.Open(":memory:"), true
	case strings.HasPrefix(dsn, "sqlite:"):
		path := strings.TrimPrefix(dsn, "sqlite:")
		return sqlite.Open(path), strings.Contains(path, ":memory:")
	default:
		return postgres.Open(dsn), false
	}
}

// Migrate runs GORM auto-migrations for the archive tables. Deployments that
// manage the schema with cmd/migrate can skip it.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("db connection is nil")
	}
	return conn.AutoMigrate(&Event{}, &RoundResult{})
}

func Close(conn *gorm.DB) error {
	if conn == nil {
		return nil
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
