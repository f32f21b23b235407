package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const (
	driverPgx = "pgx"
	driverPQ  = "pq"
)

// TxRunner is the transaction surface services depend on.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Client owns the pooled Postgres connection behind every repository.
type Client struct {
	conn *gorm.DB
}

// New opens the pool, applies the limits from cfg and pings once.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client := &Client{conn: conn}
	if err := client.configurePool(cfg); err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"db_driver":      driverName(cfg.Driver),
			"max_open_conns": cfg.MaxOpenConns,
		})
		logg.Info(logCtx, "database connected")
	}
	return client, nil
}

// dialectorFor keeps simple protocol on so statements survive a
// transaction-mode connection pooler.
func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	pgCfg := postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}
	switch driverName(cfg.Driver) {
	case driverPgx:
	case driverPQ:
		// lib/pq registers itself as "postgres".
		pgCfg.DriverName = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	return postgres.New(pgCfg), nil
}

func driverName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "", "postgres", "pgx":
		return driverPgx
	case "pq", "lib/pq":
		return driverPQ
	}
	return name
}

func (c *Client) configurePool(cfg config.DBConfig) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	// Zero values leave the database/sql defaults in place.
	if n := cfg.MaxOpenConns; n > 0 {
		sqlDB.SetMaxOpenConns(n)
	}
	if n := cfg.MaxIdleConns; n > 0 {
		sqlDB.SetMaxIdleConns(n)
	}
	if d := cfg.ConnMaxLifetime; d > 0 {
		sqlDB.SetConnMaxLifetime(d)
	}
	if d := cfg.ConnMaxIdleTime; d > 0 {
		sqlDB.SetConnMaxIdleTime(d)
	}
	return nil
}

// FromConn wraps an already opened connection, e.g. an in-memory sqlite handle.
func FromConn(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Ping satisfies the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction. A returned error or a panic rolls back;
// the panic is re-raised after the rollback.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
