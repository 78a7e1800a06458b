package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/safar/dealership/internal/config"
)

const connectAttempts = 5

// NewConnection opens the pool and waits for the server to answer, retrying
// while it is still starting up.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig, log zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	var pingErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr = db.PingContext(pingCtx)
		cancel()
		if pingErr == nil {
			return db, nil
		}

		log.Warn().Err(pingErr).Int("attempt", attempt).Msg("database not ready")
		if err := Sleep(ctx, Backoff(attempt, time.Second)); err != nil {
			break
		}
	}

	db.Close()
	return nil, fmt.Errorf("ping database: %w", pingErr)
}
