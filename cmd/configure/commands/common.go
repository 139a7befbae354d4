package commands

import (
	"fmt"

	"github.com/benvon/smart-survey/internal/config"
	"github.com/benvon/smart-survey/internal/database"
)

// openDatabase loads the environment configuration and connects to the
// database it names. The caller closes the returned pool.
func openDatabase() (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return cfg, db, nil
}
