package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// LoadTally returns the stored counts for pollID, or a zero tally if the
// poll has never been saved.
func (db *DB) LoadTally(ctx context.Context, pollID string) (Tally, error) {
	var t Tally
	err := db.QueryRowContext(ctx, "SELECT yes, no FROM tallies WHERE poll_id = ?", pollID).Scan(&t.Yes, &t.No)
	if errors.Is(err, sql.ErrNoRows) {
		return Tally{}, nil
	}
	return t, err
}

func (db *DB) SaveTally(ctx context.Context, pollID string, t Tally) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tallies (poll_id, yes, no, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(poll_id) DO UPDATE SET yes = excluded.yes, no = excluded.no, updated_at = excluded.updated_at
	`, pollID, t.Yes, t.No, time.Now().UTC())
	return err
}
