// Package bank stores the shared reference question bank and the sources
// it is built from.
package bank

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"github.com/conorfennell/memnotes/internal/domain"
)

const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Store represents the bank database.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if needed) the bank for maintenance.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", dsn(path, "rwc"))
	if err != nil {
		return nil, fmt.Errorf("failed to open bank: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to bank: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply bank schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// OpenReadOnly opens an existing bank without write access.
func OpenReadOnly(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", dsn(path, "ro"))
	if err != nil {
		return nil, fmt.Errorf("failed to open bank: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to bank: %w", err)
	}
	return &Store{conn: conn}, nil
}

func dsn(path, mode string) string {
	q := url.Values{}
	q.Set("mode", mode)
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Source is a place bank notes are read from.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// InsertSource registers a source and returns its ID.
func (s *Store) InsertSource(ctx context.Context, path, sourceType string) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO sources (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source by its path, or nil if unknown.
func (s *Store) FindSourceByPath(ctx context.Context, path string) (*Source, error) {
	var src Source
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`, path)

	err := row.Scan(&src.ID, &src.Path, &src.Type, &src.LastScanned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Source not found
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &src, nil
}

// AllSources returns every registered source.
func (s *Store) AllSources(ctx context.Context) ([]Source, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, path, type, last_scanned
		FROM sources
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.Path, &src.Type, &src.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (s *Store) UpdateSourceLastScanned(ctx context.Context, sourceID int64) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, time.Now(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// HasHash reports whether a note with this fingerprint is already stored.
func (s *Store) HasHash(ctx context.Context, hash string) (bool, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx, `SELECT id FROM notes WHERE hash = ?`, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to find note by hash %s: %w", hash, err)
	}
	return true, nil
}

// InsertNote adds a note with its tags, creating tags on demand.
func (s *Store) InsertNote(ctx context.Context, n domain.BankNote, sourceID int64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var question, correct, w1, w2, w3 any
	if n.Quiz != nil {
		question, correct = n.Quiz.Question, n.Quiz.CorrectAnswer
		w1, w2, w3 = n.Quiz.WrongAnswers[0], n.Quiz.WrongAnswers[1], n.Quiz.WrongAnswers[2]
	}
	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO notes (hash, title, content, date, question, correct_answer,
			wrong_answer1, wrong_answer2, wrong_answer3, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.Hash, n.Title, n.Content, now, question, correct, w1, w2, w3, sourceID)
	if err != nil {
		return fmt.Errorf("failed to insert note with hash %s: %w", n.Hash, err)
	}
	noteID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID for note %s: %w", n.Hash, err)
	}

	for _, name := range domain.NormalizeTagNames(n.Tags) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tags (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
			name, now); err != nil {
			return fmt.Errorf("failed to insert tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO note_tags (note_id, tag_id, created_at)
			SELECT ?, id, ? FROM tags WHERE name = ?
			ON CONFLICT (note_id, tag_id) DO NOTHING
		`, noteID, now, name); err != nil {
			return fmt.Errorf("failed to link tag %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit note %s: %w", n.Hash, err)
	}
	return nil
}

// HashesBySource returns the fingerprints of every note read from a source.
func (s *Store) HashesBySource(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT hash FROM notes WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notes for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan note hash for source ID %d: %w", sourceID, err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// DeleteNoteByHash removes a note from the bank by its fingerprint.
func (s *Store) DeleteNoteByHash(ctx context.Context, hash string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM notes WHERE hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("failed to delete note with hash %s: %w", hash, err)
	}
	return nil
}

// DeleteUnusedTags removes tags no bank note carries any more.
func (s *Store) DeleteUnusedTags(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM note_tags)`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unused bank tags: %w", err)
	}
	return res.RowsAffected()
}

// CountNotes returns the number of notes in the bank.
func (s *Store) CountNotes(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count bank notes: %w", err)
	}
	return n, nil
}

// AllNotes returns every bank note with its tags, in insertion order.
func (s *Store) AllNotes(ctx context.Context) ([]domain.BankNote, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, hash, title, content, question, correct_answer,
			wrong_answer1, wrong_answer2, wrong_answer3, COALESCE(source_id, 0)
		FROM notes
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank notes: %w", err)
	}
	defer rows.Close()

	var notes []domain.BankNote
	index := make(map[int64]int)
	for rows.Next() {
		var (
			n                             domain.BankNote
			question, correct, w1, w2, w3 sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.Hash, &n.Title, &n.Content,
			&question, &correct, &w1, &w2, &w3, &n.SourceID); err != nil {
			return nil, fmt.Errorf("failed to scan bank note: %w", err)
		}
		if question.Valid && correct.Valid {
			n.Quiz = &domain.Quiz{
				Question:      question.String,
				CorrectAnswer: correct.String,
				WrongAnswers:  [3]string{w1.String, w2.String, w3.String},
			}
		}
		index[n.ID] = len(notes)
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bank notes: %w", err)
	}
	rows.Close()

	tagRows, err := s.conn.QueryContext(ctx, `
		SELECT nt.note_id, t.name
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		ORDER BY nt.note_id, t.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank note tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var (
			noteID int64
			name   string
		)
		if err := tagRows.Scan(&noteID, &name); err != nil {
			return nil, fmt.Errorf("failed to scan bank note tag: %w", err)
		}
		if i, ok := index[noteID]; ok {
			notes[i].Tags = append(notes[i].Tags, name)
		}
	}
	return notes, tagRows.Err()
}
