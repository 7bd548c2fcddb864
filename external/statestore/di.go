package statestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/azkar-bot/internal/config"
	"github.com/foxseedlab/azkar-bot/internal/state"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do/v2"
)

const databaseInitTimeout = 15 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (state.Backend, error) {
		cfg := do.MustInvoke[*config.Config](i)
		slog.Info("opening state backend", "backend", cfg.StateBackend)

		var (
			backend state.Backend
			err     error
		)
		switch cfg.StateBackend {
		case config.StateBackendFile:
			backend, err = NewFileBackend(cfg.StateFilePath)
		case config.StateBackendBolt:
			backend, err = NewBoltBackend(cfg.StateBoltPath)
		case config.StateBackendPostgres:
			backend, err = openPostgres(cfg.DatabaseURL)
		default:
			err = fmt.Errorf("unknown state backend %q", cfg.StateBackend)
		}
		if err != nil {
			return nil, err
		}
		return backend, nil
	})
}

func openPostgres(databaseURL string) (*PostgresBackend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
	defer cancel()

	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := RunMigration(ctx, p); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}
	return NewPostgresBackend(p), nil
}
