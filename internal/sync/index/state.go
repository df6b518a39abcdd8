package index

import (
	"context"
	"database/sql"
	"strconv"
	"time"
)

// Well-known state keys
const (
	StateLastSync     = "last_sync"
	StateLastFullSync = "last_full_sync"
)

// GetState returns the value stored under key, or "" if unset
func (d *DB) GetState(ctx context.Context, account, key string) (string, error) {
	row := d.db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE account = ? AND key = ?`, account, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (d *DB) SetState(ctx context.Context, account, key, value string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO sync_state (account, key, value) VALUES (?, ?, ?)
		ON CONFLICT(account, key) DO UPDATE SET value=excluded.value
	`, account, key, value)
	return err
}

// SetTime stores t as unix seconds
func (d *DB) SetTime(ctx context.Context, account, key string, t time.Time) error {
	return d.SetState(ctx, account, key, strconv.FormatInt(t.Unix(), 10))
}

// GetTime returns the time stored under key; the zero time if unset
func (d *DB) GetTime(ctx context.Context, account, key string) (time.Time, error) {
	value, err := d.GetState(ctx, account, key)
	if err != nil || value == "" {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0), nil
}
