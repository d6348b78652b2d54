// Package db persists poll tallies and handled event ids, in sqlite by
// default or in Postgres.
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// Tally is the vote count of one poll.
type Tally struct {
	Yes uint64
	No  uint64
}

// Store is what the poll bot needs from a database.
type Store interface {
	LoadTally(ctx context.Context, pollID string) (Tally, error)
	SaveTally(ctx context.Context, pollID string, t Tally) error
	Seen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
	PruneSeen(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

type DB struct {
	*sql.DB
}

func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	slog.Info("database opened", "path", path)
	return &DB{sqlDB}, nil
}

// sqliteDSN appends the connection options, keeping any query the path
// already carries.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"
}

// OpenStore picks Postgres for postgres:// and postgresql:// URLs and sqlite
// for anything else.
func OpenStore(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		pg, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	sqlite, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	return sqlite, nil
}
