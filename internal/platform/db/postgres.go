package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPingTimeout = 5 * time.Second

// PoolConfig tunes the connection pool; zero values keep pgx defaults.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	PingTimeout     time.Duration
}

func (c PoolConfig) parse() (*pgxpool.Config, error) {
	parsed, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	if c.MaxConns > 0 {
		parsed.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 && c.MinConns <= parsed.MaxConns {
		parsed.MinConns = c.MinConns
	}
	if c.MaxConnIdleTime > 0 {
		parsed.MaxConnIdleTime = c.MaxConnIdleTime
	}
	return parsed, nil
}

// New opens a pool and waits for one successful ping, bounded by PingTimeout.
func New(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	parsed, err := cfg.parse()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, parsed)
	if err != nil {
		return nil, fmt.Errorf("platform/db: open pool: %w", err)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping %s: %w", parsed.ConnConfig.Host, err)
	}
	return pool, nil
}
