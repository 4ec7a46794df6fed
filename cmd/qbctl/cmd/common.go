package cmd

import (
	"github.com/jmoiron/sqlx"

	"github.com/tikuhub/qbank/internal/app"
	"github.com/tikuhub/qbank/internal/config"
	"github.com/tikuhub/qbank/internal/db"
	"github.com/tikuhub/qbank/internal/logger"
)

// loadConfig reads the same environment as the server.
func loadConfig() *config.Config {
	cfg := config.Load()
	logger.Init(cfg.IsDevelopment(), cfg.SentryDSN, cfg.AppEnv)
	return cfg
}

// openDB connects without touching the schema.
func openDB() (*config.Config, *sqlx.DB, error) {
	cfg := loadConfig()
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, nil, err
	}
	return cfg, database, nil
}

// openApp builds the full service graph, migrating first like the server.
func openApp() (*app.App, error) {
	return app.New(loadConfig())
}
