// Package database is the persistence gateway for AquaSense: a lazily
// connected pgx pool plus the availability flag the storage orchestrator
// reads to decide between live and fallback serving.
package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured means no connection string was supplied. The service
	// keeps running on the in-memory fallback for its whole lifetime.
	ErrNotConfigured = errors.New("database not configured")

	ErrNotFound = errors.New("not found")
)

// Gateway wraps the connection pool. It does not retry failed queries; a
// single failure is reported upward and the orchestrator decides whether to
// flip the availability flag.
type Gateway struct {
	dsn      string
	maxConns int

	mu        sync.RWMutex
	pool      *pgxpool.Pool
	available bool

	logMissing sync.Once
}

// NewGateway prepares a gateway without touching the network. The sslmode
// asymmetry is deliberate: strict certificate verification in production,
// relaxed everywhere else, switched by environment rather than hardcoded.
func NewGateway(url, environment string, maxConns int) *Gateway {
	return &Gateway{
		dsn:      withSSLMode(url, environment),
		maxConns: maxConns,
	}
}

// withSSLMode appends an sslmode parameter when the URL carries none.
func withSSLMode(url, environment string) string {
	if url == "" || strings.Contains(url, "sslmode=") {
		return url
	}

	mode := "prefer"
	if environment == "production" {
		mode = "verify-full"
	}

	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "sslmode=" + mode
}

// Connect establishes the pool with bounded exponential backoff and pings
// it. Safe to call more than once; an existing healthy pool is kept.
func (g *Gateway) Connect(ctx context.Context) error {
	if g.dsn == "" {
		g.logMissing.Do(func() {
			log.Println("database: no connection string configured, running on fallback storage")
		})
		return ErrNotConfigured
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pool != nil {
		if err := g.pool.Ping(ctx); err == nil {
			g.available = true
			return nil
		}
		g.pool.Close()
		g.pool = nil
	}

	cfg, err := pgxpool.ParseConfig(g.dsn)
	if err != nil {
		return fmt.Errorf("parse connection string: %w", err)
	}
	if g.maxConns > 0 {
		cfg.MaxConns = int32(g.maxConns)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	err = backoff.Retry(func() error {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return err
		}
		g.pool = pool
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	g.available = true
	log.Println("database: connected")
	return nil
}

// Pool returns the live pool, connecting lazily on first use.
func (g *Gateway) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	g.mu.RLock()
	pool := g.pool
	g.mu.RUnlock()

	if pool != nil {
		return pool, nil
	}

	if err := g.Connect(ctx); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pool, nil
}

// Configured reports whether a connection string was supplied at all.
func (g *Gateway) Configured() bool {
	return g.dsn != ""
}

// Available reports the current availability flag.
func (g *Gateway) Available() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.available && g.pool != nil
}

// MarkAvailable is called by the orchestrator after a successful operation.
func (g *Gateway) MarkAvailable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.available = true
}

// MarkUnavailable is called by the orchestrator after a failed operation.
func (g *Gateway) MarkUnavailable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.available = false
}

// Ping probes the live connection.
func (g *Gateway) Ping(ctx context.Context) error {
	pool, err := g.Pool(ctx)
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// Close releases the pool.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pool != nil {
		g.pool.Close()
		g.pool = nil
	}
	g.available = false
}
