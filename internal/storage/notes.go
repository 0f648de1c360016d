package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/memnotes/internal/domain"
)

const noteColumns = `n.id, n.title, n.content, n.date, n.question, n.correct_answer,
	n.wrong_answer1, n.wrong_answer2, n.wrong_answer3,
	n.times_challenged, n.times_correct, n.last_tested`

// NoteFilter narrows a note search. A note matches when its title or
// content contains Query and it carries every tag in Tags.
type NoteFilter struct {
	Query string
	Tags  []string
	Limit int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(s rowScanner) (domain.Note, error) {
	var (
		n                      domain.Note
		question, correct      sql.NullString
		wrong1, wrong2, wrong3 sql.NullString
		lastTested             sql.NullTime
	)
	err := s.Scan(
		&n.ID,
		&n.Title,
		&n.Content,
		&n.Date,
		&question,
		&correct,
		&wrong1,
		&wrong2,
		&wrong3,
		&n.TimesChallenged,
		&n.TimesCorrect,
		&lastTested,
	)
	if err != nil {
		return domain.Note{}, err
	}
	if question.Valid && correct.Valid {
		n.Quiz = &domain.Quiz{
			Question:      question.String,
			CorrectAnswer: correct.String,
			WrongAnswers:  [3]string{wrong1.String, wrong2.String, wrong3.String},
		}
	}
	if lastTested.Valid {
		t := lastTested.Time
		n.LastTested = &t
	}
	return n, nil
}

// quizArgs returns the five quiz columns, NULL when there is no payload.
func quizArgs(q *domain.Quiz) []any {
	if q == nil {
		return []any{nil, nil, nil, nil, nil}
	}
	return []any{q.Question, q.CorrectAnswer, q.WrongAnswers[0], q.WrongAnswers[1], q.WrongAnswers[2]}
}

// CreateNote inserts a note and links it to its tags in one transaction.
// Every tag must already exist.
func (db *DB) CreateNote(ctx context.Context, in domain.NoteInput) (int64, error) {
	var id int64
	err := db.InTx(ctx, func(tx *Tx) error {
		var err error
		id, err = insertNote(ctx, tx.tx, in.Title, in.Content, in.Quiz(), time.Now())
		if err != nil {
			return err
		}
		return setNoteTags(ctx, tx.tx, id, in.Tags)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insertNote(ctx context.Context, q querier, title, content string, quiz *domain.Quiz, date time.Time) (int64, error) {
	args := append([]any{title, content, date}, quizArgs(quiz)...)
	res, err := q.ExecContext(ctx, `
		INSERT INTO notes (title, content, date, question, correct_answer,
			wrong_answer1, wrong_answer2, wrong_answer3)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert note %q: %w", title, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for note %q: %w", title, err)
	}
	return id, nil
}

// UpdateNote rewrites a note's text, quiz payload and tag set. Statistics
// are kept.
func (db *DB) UpdateNote(ctx context.Context, id int64, in domain.NoteInput) error {
	return db.InTx(ctx, func(tx *Tx) error {
		args := append([]any{in.Title, in.Content}, quizArgs(in.Quiz())...)
		args = append(args, id)
		res, err := tx.tx.ExecContext(ctx, `
			UPDATE notes
			SET title = ?, content = ?, question = ?, correct_answer = ?,
				wrong_answer1 = ?, wrong_answer2 = ?, wrong_answer3 = ?
			WHERE id = ?
		`, args...)
		if err != nil {
			return fmt.Errorf("failed to update note %d: %w", id, err)
		}
		if err := expectRow(res, id); err != nil {
			return err
		}
		return setNoteTags(ctx, tx.tx, id, in.Tags)
	})
}

// DeleteNote removes a note; its tag links go with it.
func (db *DB) DeleteNote(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete note %d: %w", id, err)
	}
	return expectRow(res, id)
}

func expectRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for note %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("note %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetNote retrieves a note with its tags.
func (db *DB) GetNote(ctx context.Context, id int64) (*domain.Note, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes n WHERE n.id = ?`, id)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("note %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find note %d: %w", id, err)
	}
	notes := []domain.Note{n}
	if err := attachTags(ctx, db.conn, notes); err != nil {
		return nil, err
	}
	return &notes[0], nil
}

// CountNotes returns the number of notes in the store.
func (db *DB) CountNotes(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return count, nil
}

// RecentNotes returns the newest notes first.
func (db *DB) RecentNotes(ctx context.Context, limit int) ([]domain.Note, error) {
	return db.SearchNotes(ctx, NoteFilter{Limit: limit})
}

// AllNotes returns every note, oldest first.
func (db *DB) AllNotes(ctx context.Context) ([]domain.Note, error) {
	return db.listNotes(ctx, `SELECT `+noteColumns+` FROM notes n ORDER BY n.id ASC`)
}

// SearchNotes returns the notes matching f, newest first.
func (db *DB) SearchNotes(ctx context.Context, f NoteFilter) ([]domain.Note, error) {
	var w where
	if f.Query != "" {
		w.like(f.Query, "n.title", "n.content")
	}
	if tags := domain.NormalizeTagNames(f.Tags); len(tags) > 0 {
		args := append(stringArgs(tags), len(tags))
		w.add(`n.id IN (
			SELECT nt.note_id FROM note_tags nt
			JOIN tags t ON t.id = nt.tag_id
			WHERE t.name IN (`+placeholders(len(tags))+`)
			GROUP BY nt.note_id
			HAVING COUNT(DISTINCT t.id) = ?)`, args...)
	}
	query := `SELECT ` + noteColumns + ` FROM notes n` + w.sql() + ` ORDER BY n.date DESC, n.id DESC`
	args := w.args
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return db.listNotes(ctx, query, args...)
}

func (db *DB) listNotes(ctx context.Context, query string, args ...any) ([]domain.Note, error) {
	notes, err := queryNotes(ctx, db.conn, query, args...)
	if err != nil {
		return nil, err
	}
	if err := attachTags(ctx, db.conn, notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func queryNotes(ctx context.Context, q querier, query string, args ...any) ([]domain.Note, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate note rows: %w", err)
	}
	return notes, nil
}

// attachTags fills the Tags field of every note, sorted by name.
func attachTags(ctx context.Context, q querier, notes []domain.Note) error {
	if len(notes) == 0 {
		return nil
	}
	index := make(map[int64]int, len(notes))
	ids := make([]int64, len(notes))
	for i, n := range notes {
		index[n.ID] = i
		ids[i] = n.ID
		notes[i].Tags = []string{}
	}

	var w where
	w.in("nt.note_id", int64Args(ids))
	rows, err := q.QueryContext(ctx, `
		SELECT nt.note_id, t.name
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id`+w.sql()+`
		ORDER BY t.name`, w.args...)
	if err != nil {
		return fmt.Errorf("failed to load note tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			noteID int64
			name   string
		)
		if err := rows.Scan(&noteID, &name); err != nil {
			return fmt.Errorf("failed to scan note tag row: %w", err)
		}
		if i, ok := index[noteID]; ok {
			notes[i].Tags = append(notes[i].Tags, name)
		}
	}
	return rows.Err()
}

// RandomQuizNote returns one random note carrying a quiz payload.
func (db *DB) RandomQuizNote(ctx context.Context) (*domain.Note, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+noteColumns+` FROM notes n
		WHERE n.question IS NOT NULL AND n.correct_answer IS NOT NULL
		ORDER BY RANDOM() LIMIT 1`)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to pick a random quiz note: %w", err)
	}
	return &n, nil
}

// RecordAnswer updates a note's test statistics after one answer.
func (db *DB) RecordAnswer(ctx context.Context, id int64, correct bool, at time.Time) error {
	inc := 0
	if correct {
		inc = 1
	}
	res, err := db.conn.ExecContext(ctx, `
		UPDATE notes
		SET times_challenged = times_challenged + 1,
			times_correct = times_correct + ?,
			last_tested = ?
		WHERE id = ?
	`, inc, at, id)
	if err != nil {
		return fmt.Errorf("failed to record answer for note %d: %w", id, err)
	}
	return expectRow(res, id)
}

// Stats returns one page of tested notes, weakest first, and the total
// number of tested notes.
func (db *DB) Stats(ctx context.Context, page, perPage int) ([]domain.NoteStats, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE times_challenged > 0`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tested notes: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, times_challenged, times_correct,
			ROUND(CAST(times_correct AS REAL) / times_challenged * 100, 1) AS success_rate,
			last_tested
		FROM notes
		WHERE times_challenged > 0
		ORDER BY success_rate ASC, times_challenged ASC, id ASC
		LIMIT ? OFFSET ?
	`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.NoteStats
	for rows.Next() {
		var (
			s          domain.NoteStats
			lastTested sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.Title, &s.TimesChallenged, &s.TimesCorrect, &s.SuccessRate, &lastTested); err != nil {
			return nil, 0, fmt.Errorf("failed to scan stats row: %w", err)
		}
		if lastTested.Valid {
			t := lastTested.Time
			s.LastTested = &t
		}
		stats = append(stats, s)
	}
	return stats, total, rows.Err()
}
