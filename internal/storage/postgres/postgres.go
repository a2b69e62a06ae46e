// Package postgres stores the decision journal in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/totembot/internal/config"
)

// Pool owns the journal's connection pool.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects and pings before returning.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a reachable Pool or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Pool{pool: pool}, nil
}

// Ping checks the database answers within timeout.
func (p *Pool) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// PoolStats is a point-in-time view of pool usage.
type PoolStats struct {
	Total    int32 `json:"total"`
	Idle     int32 `json:"idle"`
	Acquired int32 `json:"acquired"`
	Max      int32 `json:"max"`
}

// Stats reports current pool usage.
func (p *Pool) Stats() PoolStats {
	st := p.pool.Stat()
	return PoolStats{
		Total:    st.TotalConns(),
		Idle:     st.IdleConns(),
		Acquired: st.AcquiredConns(),
		Max:      st.MaxConns(),
	}
}

// Report is what the status page shows for the database.
type Report struct {
	Reachable bool      `json:"reachable"`
	Error     string    `json:"error,omitempty"`
	Pool      PoolStats `json:"pool"`
}

// Report pings with timeout and attaches the pool counters.
func (p *Pool) Report(ctx context.Context, timeout time.Duration) Report {
	r := Report{Reachable: true, Pool: p.Stats()}
	if err := p.Ping(ctx, timeout); err != nil {
		r.Reachable = false
		r.Error = err.Error()
	}
	return r
}

// DB returns the underlying pgxpool.Pool for repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}

// Close releases all connections. The Pool is unusable afterwards.
func (p *Pool) Close() {
	p.pool.Close()
}
