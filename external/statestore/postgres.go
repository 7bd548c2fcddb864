package statestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/foxseedlab/azkar-bot/internal/state"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	rowCurrent = "current"
	rowBackup  = "backup"
)

// PostgresBackend keeps the snapshot and its backup as two rows of
// bot_snapshots.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

func (b *PostgresBackend) Read(ctx context.Context) ([]byte, error) {
	var body []byte
	err := b.pool.QueryRow(ctx, `SELECT body FROM bot_snapshots WHERE name = $1`, rowCurrent).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, state.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (b *PostgresBackend) Backup(ctx context.Context) error {
	_, err := b.pool.Exec(ctx,
		`INSERT INTO bot_snapshots (name, body, updated_at)
		 SELECT $1, body, updated_at FROM bot_snapshots WHERE name = $2
		 ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		rowBackup, rowCurrent)
	if err != nil {
		return fmt.Errorf("copy backup row: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Write(ctx context.Context, data []byte) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO bot_snapshots (name, body, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		rowCurrent, data)
	if err != nil {
		return fmt.Errorf("write snapshot row: %w", err)
	}

	var stored []byte
	if err := tx.QueryRow(ctx, `SELECT body FROM bot_snapshots WHERE name = $1`, rowCurrent).Scan(&stored); err != nil {
		return fmt.Errorf("read back snapshot row: %w", err)
	}
	if !bytes.Equal(stored, data) {
		return errVerifyMismatch
	}
	return tx.Commit(ctx)
}

func (b *PostgresBackend) RestoreBackup(ctx context.Context) error {
	_, err := b.pool.Exec(ctx,
		`INSERT INTO bot_snapshots (name, body, updated_at)
		 SELECT $1, body, updated_at FROM bot_snapshots WHERE name = $2
		 ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		rowCurrent, rowBackup)
	return err
}

func (b *PostgresBackend) Clear(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `DELETE FROM bot_snapshots WHERE name IN ($1, $2)`, rowCurrent, rowBackup)
	return err
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
