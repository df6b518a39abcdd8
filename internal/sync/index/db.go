// Package index persists the directory tree cache and small per-account sync state in SQLite.
package index

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type DB struct {
	db *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return instance, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tree_nodes (
	account TEXT NOT NULL,
	id TEXT NOT NULL,
	parent_id TEXT NOT NULL,
	name TEXT NOT NULL,
	is_folder INTEGER NOT NULL DEFAULT 0,
	mime_type TEXT,
	size INTEGER,
	md5 TEXT,
	modified_time TEXT,
	trashed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (account, id)
);

CREATE INDEX IF NOT EXISTS idx_tree_parent ON tree_nodes(account, parent_id);

CREATE TABLE IF NOT EXISTS sync_state (
	account TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (account, key)
);
`
