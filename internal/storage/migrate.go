package storage

import (
	"context"
	"fmt"
	"time"
)

// SubjectMigration reports what ConvertSubjectsToTags changed.
type SubjectMigration struct {
	Converted bool
	TagsAdded int
	Links     int
}

var legacyColumns = []struct {
	column string
	prefix string
}{
	{"subject", "Subject: "},
	{"topic", "Topic: "},
}

// ConvertSubjectsToTags turns the legacy subject and topic columns of a
// note store into "Subject: x" and "Topic: y" tags, links them to their
// notes and drops the columns. Stores without the columns are untouched.
func (db *DB) ConvertSubjectsToTags(ctx context.Context) (SubjectMigration, error) {
	var result SubjectMigration

	cols, err := db.noteColumnSet(ctx)
	if err != nil {
		return result, err
	}
	var present []int
	for i, lc := range legacyColumns {
		if cols[lc.column] {
			present = append(present, i)
		}
	}
	if len(present) == 0 {
		return result, nil
	}

	now := time.Now()
	err = db.InTx(ctx, func(tx *Tx) error {
		for _, i := range present {
			lc := legacyColumns[i]
			res, err := tx.tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO tags (name, created_at)
				SELECT DISTINCT ? || `+lc.column+`, ?
				FROM notes
				WHERE `+lc.column+` IS NOT NULL AND `+lc.column+` != ''
			`, lc.prefix, now)
			if err != nil {
				return fmt.Errorf("failed to create %s tags: %w", lc.column, err)
			}
			n, _ := res.RowsAffected()
			result.TagsAdded += int(n)

			res, err = tx.tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO note_tags (note_id, tag_id, created_at)
				SELECT n.id, t.id, ?
				FROM notes n
				JOIN tags t ON t.name = ? || n.`+lc.column+`
				WHERE n.`+lc.column+` IS NOT NULL AND n.`+lc.column+` != ''
			`, now, lc.prefix)
			if err != nil {
				return fmt.Errorf("failed to link %s tags: %w", lc.column, err)
			}
			n, _ = res.RowsAffected()
			result.Links += int(n)
		}
		for _, i := range present {
			col := legacyColumns[i].column
			if _, err := tx.tx.ExecContext(ctx, `ALTER TABLE notes DROP COLUMN `+col); err != nil {
				return fmt.Errorf("failed to drop column %s: %w", col, err)
			}
		}
		return nil
	})
	if err != nil {
		return SubjectMigration{}, err
	}
	result.Converted = true
	return result, nil
}

func (db *DB) noteColumnSet(ctx context.Context) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name FROM pragma_table_info('notes')`)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect notes table: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
