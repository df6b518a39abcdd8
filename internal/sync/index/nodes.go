package index

import (
	"context"
	"database/sql"

	"github.com/dl-alexandre/gosync/internal/tree"
	"github.com/pkg/errors"
)

// SaveTree replaces the persisted tree of account in one transaction
func (d *DB) SaveTree(ctx context.Context, account string, t *tree.Tree) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tree save")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM tree_nodes WHERE account = ?`, account); err != nil {
		return errors.Wrap(err, "clear tree")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tree_nodes (account, id, parent_id, name, is_folder, mime_type, size, md5, modified_time, trashed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "prepare tree insert")
	}
	defer stmt.Close()

	for _, r := range t.Records() {
		_, err = stmt.ExecContext(ctx, account, r.ID, r.ParentID, r.Name, boolToInt(r.Kind == tree.KindFolder),
			r.Meta.MimeType, r.Meta.Size, r.Meta.MD5Checksum, r.Meta.ModifiedTime, boolToInt(r.Meta.Trashed))
		if err != nil {
			return errors.Wrapf(err, "insert node %s", r.ID)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit tree save")
	}
	return nil
}

// LoadTree reads the persisted tree of account. On any failure it returns an
// empty tree alongside the error so the caller can start from scratch.
func (d *DB) LoadTree(ctx context.Context, account string) (t *tree.Tree, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, parent_id, name, is_folder, mime_type, size, md5, modified_time, trashed
		FROM tree_nodes WHERE account = ?
	`, account)
	if err != nil {
		return tree.New(), errors.Wrap(err, "query tree")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	var records []tree.Record
	for rows.Next() {
		var (
			r                  tree.Record
			isFolder, trashed  int
			mimeType, md5, mod sql.NullString
			size               sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.ParentID, &r.Name, &isFolder, &mimeType, &size, &md5, &mod, &trashed); err != nil {
			return tree.New(), errors.Wrap(err, "scan node")
		}
		r.Kind = tree.KindFile
		if isFolder == 1 {
			r.Kind = tree.KindFolder
		}
		r.Meta = tree.Metadata{
			MimeType:     mimeType.String,
			Size:         size.Int64,
			MD5Checksum:  md5.String,
			ModifiedTime: mod.String,
			Trashed:      trashed == 1,
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return tree.New(), errors.Wrap(err, "iterate nodes")
	}

	loaded, err := tree.FromRecords(records)
	if err != nil {
		return tree.New(), err
	}
	return loaded, nil
}

// DeleteTree drops the persisted tree of account
func (d *DB) DeleteTree(ctx context.Context, account string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM tree_nodes WHERE account = ?`, account)
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
