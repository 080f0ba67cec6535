// cmd/migrate/main.go
// Applies pending schema migrations and reports the resulting version

package main

import (
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/database"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/config"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect to database", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	result, err := database.Migrate(db)
	if err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	if result.Dirty {
		logger.Warn("schema is dirty", zap.Uint("version", result.Version))
	}
	logger.Info("migrations complete",
		zap.String("driver", cfg.DatabaseDriver),
		zap.Uint("version", result.Version),
		zap.Bool("changed", result.Changed))
}
