package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/memnotes/internal/domain"
)

// TagFilter narrows the tag listing of the manage page.
type TagFilter struct {
	Query   string
	Page    int
	PerPage int
}

// CreateTag adds a tag and returns its ID. The test-set tag is reserved
// and refused with domain.ErrReservedTag.
func (db *DB) CreateTag(ctx context.Context, name string) (int64, error) {
	if err := checkReserved(name); err != nil {
		return 0, err
	}
	return createTag(ctx, db.conn, name)
}

// checkReserved refuses the test-set tag as a name chosen by the user. Only
// the test-set importer creates it.
func checkReserved(name string) error {
	if strings.TrimSpace(name) == domain.SentinelTag {
		return fmt.Errorf("tag %q: %w", domain.SentinelTag, domain.ErrReservedTag)
	}
	return nil
}

// tagName returns the current name of a tag.
func tagName(ctx context.Context, q querier, id int64) (string, error) {
	var name string
	err := q.QueryRowContext(ctx, `SELECT name FROM tags WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("tag %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up tag %d: %w", id, err)
	}
	return name, nil
}

func createTag(ctx context.Context, q querier, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, domain.ErrEmptyTagName
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO tags (name, created_at) VALUES (?, ?)`, name, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("tag %q: %w", name, domain.ErrTagExists)
		}
		return 0, fmt.Errorf("failed to insert tag %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for tag %q: %w", name, err)
	}
	return id, nil
}

// RenameTag changes a tag's name. Notes keep their links. The test-set tag
// can be neither renamed nor taken as a new name.
func (db *DB) RenameTag(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ErrEmptyTagName
	}
	if err := checkReserved(name); err != nil {
		return err
	}
	return db.InTx(ctx, func(tx *Tx) error {
		current, err := tagName(ctx, tx.tx, id)
		if err != nil {
			return err
		}
		if err := checkReserved(current); err != nil {
			return err
		}
		if _, err := tx.tx.ExecContext(ctx, `UPDATE tags SET name = ? WHERE id = ?`, name, id); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("tag %q: %w", name, domain.ErrTagExists)
			}
			return fmt.Errorf("failed to rename tag %d: %w", id, err)
		}
		return nil
	})
}

// DeleteTag removes a tag and detaches it from every note. The test-set
// tag only goes with the test set.
func (db *DB) DeleteTag(ctx context.Context, id int64) error {
	return db.InTx(ctx, func(tx *Tx) error {
		current, err := tagName(ctx, tx.tx, id)
		if err != nil {
			return err
		}
		if err := checkReserved(current); err != nil {
			return err
		}
		return deleteTag(ctx, tx.tx, id)
	})
}

func deleteTag(ctx context.Context, q querier, id int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM note_tags WHERE tag_id = ?`, id); err != nil {
		return fmt.Errorf("failed to detach tag %d: %w", id, err)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for tag %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("tag %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SetNoteTags replaces a note's complete tag set. Every name must already
// exist; otherwise nothing changes. The test-set tag stays on the notes
// that carry it and cannot be attached to any other.
func (db *DB) SetNoteTags(ctx context.Context, noteID int64, names []string) error {
	return db.InTx(ctx, func(tx *Tx) error {
		return setNoteTags(ctx, tx.tx, noteID, names)
	})
}

func setNoteTags(ctx context.Context, q querier, noteID int64, names []string) error {
	imported, err := carriesTag(ctx, q, noteID, domain.SentinelTag)
	if err != nil {
		return err
	}
	var user []string
	for _, name := range domain.NormalizeTagNames(names) {
		if name != domain.SentinelTag {
			user = append(user, name)
		} else if !imported {
			return checkReserved(name)
		}
	}
	names = user

	ids, err := tagIDs(ctx, q, names)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, ok := ids[name]; !ok {
			return fmt.Errorf("tag %q: %w", name, domain.ErrUnknownTag)
		}
	}

	if _, err := q.ExecContext(ctx, `
		DELETE FROM note_tags
		WHERE note_id = ? AND tag_id NOT IN (SELECT id FROM tags WHERE name = ?)
	`, noteID, domain.SentinelTag); err != nil {
		return fmt.Errorf("failed to clear tags of note %d: %w", noteID, err)
	}
	now := time.Now()
	for _, name := range names {
		if err := linkTag(ctx, q, noteID, ids[name], now); err != nil {
			return err
		}
	}
	return nil
}

func carriesTag(ctx context.Context, q querier, noteID int64, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		WHERE nt.note_id = ? AND t.name = ?
	`, noteID, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up tag %q of note %d: %w", name, noteID, err)
	}
	return n > 0, nil
}

func linkTag(ctx context.Context, q querier, noteID, tagID int64, at time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO note_tags (note_id, tag_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (note_id, tag_id) DO NOTHING
	`, noteID, tagID, at)
	if err != nil {
		return fmt.Errorf("failed to link tag %d to note %d: %w", tagID, noteID, err)
	}
	return nil
}

// tagIDs resolves names to IDs. Unknown names are absent from the result.
func tagIDs(ctx context.Context, q querier, names []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(names))
	if len(names) == 0 {
		return ids, nil
	}
	var w where
	w.in("name", stringArgs(names))
	rows, err := q.QueryContext(ctx, `SELECT id, name FROM tags`+w.sql(), w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		ids[name] = id
	}
	return ids, rows.Err()
}

// GarbageCollectTags deletes every tag no note carries and returns how many
// were removed.
func (db *DB) GarbageCollectTags(ctx context.Context) (int, error) {
	return garbageCollectTags(ctx, db.conn)
}

func garbageCollectTags(ctx context.Context, q querier) (int, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM tags
		WHERE id NOT IN (SELECT DISTINCT tag_id FROM note_tags)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unused tags: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows for unused tags: %w", err)
	}
	return int(n), nil
}

// ListTags returns one page of tags with their note counts, ordered by name
// ignoring case, and the total number of matching tags.
func (db *DB) ListTags(ctx context.Context, f TagFilter) ([]domain.Tag, int, error) {
	var w where
	if f.Query != "" {
		w.like(f.Query, "t.name")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tags t`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tags: %w", err)
	}

	query := `
		SELECT t.id, t.name, t.created_at, COUNT(nt.note_id)
		FROM tags t
		LEFT JOIN note_tags nt ON nt.tag_id = t.id` + w.sql() + `
		GROUP BY t.id
		ORDER BY t.name COLLATE NOCASE ASC, t.id ASC`
	args := w.args
	if f.PerPage > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.PerPage, (page-1)*f.PerPage)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.NoteCount); err != nil {
			return nil, 0, fmt.Errorf("failed to scan tag row: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, total, rows.Err()
}

// TagNames returns every tag name in case-insensitive order, optionally
// filtered by a substring.
func (db *DB) TagNames(ctx context.Context, query string) ([]string, error) {
	var w where
	if query != "" {
		w.like(query, "name")
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name FROM tags`+w.sql()+` ORDER BY name COLLATE NOCASE ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tag names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tag name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// HasTag reports whether a tag with exactly this name exists.
func (db *DB) HasTag(ctx context.Context, name string) (bool, error) {
	return hasTag(ctx, db.conn, name)
}

func hasTag(ctx context.Context, q querier, name string) (bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up tag %q: %w", name, err)
	}
	return true, nil
}
