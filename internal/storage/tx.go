package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/memnotes/internal/domain"
)

// HasTag reports whether a tag with exactly this name exists.
func (tx *Tx) HasTag(ctx context.Context, name string) (bool, error) {
	return hasTag(ctx, tx.tx, name)
}

// EnsureTag returns the ID of the named tag, creating it if needed.
func (tx *Tx) EnsureTag(ctx context.Context, name string) (int64, error) {
	var id int64
	err := tx.tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up tag %q: %w", name, err)
	}
	return createTag(ctx, tx.tx, name)
}

// InsertNote adds a note with zeroed statistics.
func (tx *Tx) InsertNote(ctx context.Context, title, content string, quiz *domain.Quiz, date time.Time) (int64, error) {
	return insertNote(ctx, tx.tx, title, content, quiz, date)
}

// LinkTag attaches a tag to a note. Linking twice is a no-op.
func (tx *Tx) LinkTag(ctx context.Context, noteID, tagID int64) error {
	return linkTag(ctx, tx.tx, noteID, tagID, time.Now())
}

// NoteIDsWithTag returns the IDs of every note carrying the named tag.
func (tx *Tx) NoteIDsWithTag(ctx context.Context, name string) ([]int64, error) {
	rows, err := tx.tx.QueryContext(ctx, `
		SELECT nt.note_id
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		WHERE t.name = ?
		ORDER BY nt.note_id
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes tagged %q: %w", name, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan note ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteNotes removes the given notes and their tag links.
func (tx *Tx) DeleteNotes(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var w where
	w.in("note_id", int64Args(ids))
	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM note_tags`+w.sql(), w.args...); err != nil {
		return 0, fmt.Errorf("failed to detach notes: %w", err)
	}

	w = where{}
	w.in("id", int64Args(ids))
	res, err := tx.tx.ExecContext(ctx, `DELETE FROM notes`+w.sql(), w.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows for notes: %w", err)
	}
	return int(n), nil
}

// DeleteTagByName removes the named tag and its links. A missing tag is
// reported as ErrNotFound.
func (tx *Tx) DeleteTagByName(ctx context.Context, name string) error {
	var id int64
	err := tx.tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("tag %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up tag %q: %w", name, err)
	}
	return deleteTag(ctx, tx.tx, id)
}

// GarbageCollectTags deletes every tag no note carries.
func (tx *Tx) GarbageCollectTags(ctx context.Context) (int, error) {
	return garbageCollectTags(ctx, tx.tx)
}

// TagIDsOfNotes returns the distinct tags attached to any of the notes.
func (tx *Tx) TagIDsOfNotes(ctx context.Context, noteIDs []int64) ([]int64, error) {
	var w where
	w.in("note_id", int64Args(noteIDs))
	rows, err := tx.tx.QueryContext(ctx, `SELECT DISTINCT tag_id FROM note_tags`+w.sql()+` ORDER BY tag_id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags of notes: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tag ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GarbageCollectTagsIn deletes those of the given tags no note carries.
func (tx *Tx) GarbageCollectTagsIn(ctx context.Context, tagIDs []int64) (int, error) {
	if len(tagIDs) == 0 {
		return 0, nil
	}
	var w where
	w.in("id", int64Args(tagIDs))
	w.add("id NOT IN (SELECT DISTINCT tag_id FROM note_tags)")
	res, err := tx.tx.ExecContext(ctx, `DELETE FROM tags`+w.sql(), w.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unused tags: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows for unused tags: %w", err)
	}
	return int(n), nil
}
