package storage

import (
	"context"
	"fmt"

	"github.com/conorfennell/memnotes/internal/domain"
)

const hasQuiz = `n.question IS NOT NULL AND n.correct_answer IS NOT NULL`

// SelectQuestions draws up to n quiz-bearing notes according to policy.
//
//   - random: any note with a quiz, random order
//   - untested: notes never challenged, random order
//   - weakest: challenged notes, lowest success ratio first, then fewest
//     challenges, remaining ties random
func (db *DB) SelectQuestions(ctx context.Context, policy domain.SelectionPolicy, n int) ([]domain.Note, error) {
	if n <= 0 {
		return nil, domain.ErrInvalidCount
	}

	var w where
	w.add(hasQuiz)
	order := `RANDOM()`
	switch policy {
	case domain.PolicyRandom, "":
	case domain.PolicyUntested:
		w.add(`n.times_challenged = 0`)
	case domain.PolicyWeakest:
		w.add(`n.times_challenged > 0`)
		order = `CAST(n.times_correct AS REAL) / n.times_challenged ASC, n.times_challenged ASC, RANDOM()`
	default:
		return nil, fmt.Errorf("unknown selection policy %q", policy)
	}

	query := `SELECT ` + noteColumns + ` FROM notes n` + w.sql() + ` ORDER BY ` + order + ` LIMIT ?`
	notes, err := queryNotes(ctx, db.conn, query, append(w.args, n)...)
	if err != nil {
		return nil, fmt.Errorf("failed to select questions: %w", err)
	}
	return notes, nil
}
