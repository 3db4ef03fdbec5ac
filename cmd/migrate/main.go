package main

import (
	"errors"
	"log"

	"doodle-duel/internal/config"
	"doodle-duel/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()
	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if cfg.DatabaseURL == "" {
		zlog.Fatal("DATABASE_URL is not set")
	}
	m, err := migrate.New("file://db/migrations", cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("migration setup failed", zap.Error(err))
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		zlog.Fatal("database migration failed", zap.Error(err))
	}
	version, dirty, _ := m.Version()
	zlog.Info("database migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
}
