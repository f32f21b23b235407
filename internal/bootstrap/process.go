// Package bootstrap is the startup sequence shared by every binary: env
// file, config, logger, connections and a signal-aware context.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/instance"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/migrate"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

// Process carries one binary's config and logger plus everything it opened.
// Resources are closed in reverse order of opening.
type Process struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger

	closers []namedCloser
	exit    func(int)
}

type namedCloser struct {
	name string
	c    io.Closer
}

// Start loads .env (optional) and config, then rebuilds the logger from the
// configured level and format.
func Start(name string) (*Process, error) {
	boot := logger.New(logger.Options{ServiceName: name})
	if err := godotenv.Load(); err != nil {
		boot.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return &Process{Name: name, Logger: boot, exit: os.Exit}, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = name

	return &Process{
		Name:   name,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: name,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
			Format:      cfg.App.LogFormat,
		}),
		exit: os.Exit,
	}, nil
}

// MustStart is Start for main functions: a config error ends the process.
func MustStart(name string) *Process {
	p, err := Start(name)
	if err != nil {
		p.Fatal(context.Background(), "failed to start", err)
	}
	return p
}

// Database opens Postgres and, in dev with auto-migrate on, applies pending
// migrations.
func (p *Process) Database(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, p.Config.DB, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	p.track("database", client)
	if err := migrate.MaybeRunDev(ctx, p.Config, p.Logger, client); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

func (p *Process) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	p.track("redis", client)
	return client, nil
}

// Track registers an extra resource to release on Close.
func (p *Process) Track(name string, c io.Closer) { p.track(name, c) }

func (p *Process) track(name string, c io.Closer) {
	p.closers = append(p.closers, namedCloser{name: name, c: c})
}

// Context is cancelled on SIGINT or SIGTERM and carries the process fields
// every log line should have.
func (p *Process) Context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	fields := map[string]any{
		"service_kind": p.Name,
		"instance":     instance.GetID(),
	}
	if p.Config != nil {
		fields["env"] = p.Config.App.Env
	}
	return p.Logger.WithFields(ctx, fields), stop
}

// Close releases tracked resources, newest first, and returns every failure.
func (p *Process) Close() error {
	var errs error
	for i := len(p.closers) - 1; i >= 0; i-- {
		nc := p.closers[i]
		if err := nc.c.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", nc.name, err))
		}
	}
	p.closers = nil
	return errs
}

// Fatal logs err, releases resources and exits with status 1.
func (p *Process) Fatal(ctx context.Context, msg string, err error) {
	p.Logger.Error(ctx, msg, err)
	if cerr := p.Close(); cerr != nil {
		p.Logger.Error(ctx, "shutdown cleanup failed", cerr)
	}
	p.exit(1)
}

// Shutdown closes resources at the end of a clean run.
func (p *Process) Shutdown(ctx context.Context) {
	if err := p.Close(); err != nil {
		p.Logger.Error(ctx, "shutdown cleanup failed", err)
	}
	p.Logger.Info(ctx, p.Name+" stopped")
}
