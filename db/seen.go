package db

import (
	"context"
	"time"
)

// Seen records id and reports whether it was already recorded.
func (db *DB) Seen(ctx context.Context, id string) (bool, error) {
	res, err := db.ExecContext(ctx, "INSERT OR IGNORE INTO seen_events (id, seen_at) VALUES (?, ?)", id, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Forget drops id so the event can be recorded again.
func (db *DB) Forget(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM seen_events WHERE id = ?", id)
	return err
}

// PruneSeen forgets ids recorded before cutoff.
func (db *DB) PruneSeen(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM seen_events WHERE seen_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
