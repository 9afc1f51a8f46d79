package database

import (
	"context"
	"fmt"

	"rag-server/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store provides persistent access to documents, chunks, jobs,
// conversations, messages and user memory over a shared pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.DBPoolSize > 0 {
		poolCfg.MaxConns = int32(cfg.DBPoolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Connected to the database",
		zap.Int32("max_conns", poolCfg.MaxConns))
	return &Store{pool: pool, logger: logger}, nil
}

// Ping reports database liveness for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
