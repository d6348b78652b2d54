package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS tallies (
		poll_id    TEXT PRIMARY KEY,
		yes        BIGINT NOT NULL DEFAULT 0,
		no         BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS seen_events (
		id      TEXT PRIMARY KEY,
		seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_seen_events_seen_at ON seen_events(seen_at)`,
}

// PGStore is the Postgres implementation of Store.
type PGStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, url string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range pgSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	slog.Info("database opened", "driver", "postgres")
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) LoadTally(ctx context.Context, pollID string) (Tally, error) {
	var yes, no int64
	err := s.pool.QueryRow(ctx, "SELECT yes, no FROM tallies WHERE poll_id = $1", pollID).Scan(&yes, &no)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tally{}, nil
	}
	if err != nil {
		return Tally{}, err
	}
	return Tally{Yes: uint64(yes), No: uint64(no)}, nil
}

func (s *PGStore) SaveTally(ctx context.Context, pollID string, t Tally) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tallies (poll_id, yes, no, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (poll_id) DO UPDATE SET yes = EXCLUDED.yes, no = EXCLUDED.no, updated_at = now()
	`, pollID, int64(t.Yes), int64(t.No))
	return err
}

func (s *PGStore) Seen(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, "INSERT INTO seen_events (id) VALUES ($1) ON CONFLICT (id) DO NOTHING", id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 0, nil
}

func (s *PGStore) Forget(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM seen_events WHERE id = $1", id)
	return err
}

func (s *PGStore) PruneSeen(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM seen_events WHERE seen_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
