package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"chatcore-backend/pkg/config"
	"chatcore-backend/pkg/constants"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL applied by ApplySchema
func Schema() string {
	return schemaSQL
}

// DB wraps the pgxpool.Pool with configuration and helper methods
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a connection pool for CockroachDB/Postgres and verifies it with a ping.
// When m is non-nil every query is timed through a QueryTracer.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, m *metrics.Metrics) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = constants.MaxConnLifetime
	poolConfig.MaxConnIdleTime = constants.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = constants.HealthCheckPeriod
	if m != nil {
		poolConfig.ConnConfig.Tracer = NewQueryTracer(m)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// ApplySchema runs the embedded DDL. Every statement is idempotent.
func (db *DB) ApplySchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("Database schema applied")
	return nil
}

// HealthCheck pings the database with a short timeout
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

// StartStatsReporter publishes pool usage to the metrics gauges until ctx is done
func (db *DB) StartStatsReporter(ctx context.Context, m *metrics.Metrics, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat := db.Pool.Stat()
				m.SetDBConnections(int(stat.AcquiredConns()), int(stat.IdleConns()))
			}
		}
	}()
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
	logger.Info("Database connection pool closed", zap.String("driver", "pgx"))
}
