// Package postgres provides the PostgreSQL damage-event journal using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/damagable/internal/config"
)

// connectTimeout bounds the initial ping so a missing database fails fast.
const connectTimeout = 5 * time.Second

// Pool is the journal's connection pool.
type Pool struct {
	pool *pgxpool.Pool
}

// PoolStats is a snapshot of pool usage, logged when a run closes its journal.
type PoolStats struct {
	Total        int32
	Idle         int32
	Acquires     int64
	AcquireWait  time.Duration
	EmptyAcquire int64
}

// NewPool connects to the journal database. Connections report appName as
// their application_name so runs can be told apart in pg_stat_activity.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a Pool that answered a ping, or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, appName string) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if appName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = appName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &Pool{pool: pool}, nil
}

// Stats reports current pool usage.
func (p *Pool) Stats() PoolStats {
	s := p.pool.Stat()
	return PoolStats{
		Total:        s.TotalConns(),
		Idle:         s.IdleConns(),
		Acquires:     s.AcquireCount(),
		AcquireWait:  s.AcquireDuration(),
		EmptyAcquire: s.EmptyAcquireCount(),
	}
}

// Close releases all pool resources.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool for use by repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
