package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conorfennell/memnotes/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustTag(t *testing.T, db *DB, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := db.CreateTag(context.Background(), name)
		require.NoError(t, err)
	}
}

func quizInput(title string, tags ...string) domain.NoteInput {
	return domain.NoteInput{
		Title:         title,
		Content:       title + " content",
		Tags:          tags,
		Question:      title + "?",
		CorrectAnswer: "right",
		WrongAnswer1:  "wrong 1",
		WrongAnswer2:  "wrong 2",
		WrongAnswer3:  "wrong 3",
	}
}

func mustNote(t *testing.T, db *DB, in domain.NoteInput) int64 {
	t.Helper()
	id, err := db.CreateNote(context.Background(), in)
	require.NoError(t, err)
	return id
}

// answer records correct answers followed by wrong ones.
func answer(t *testing.T, db *DB, id int64, correct, wrong int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < correct; i++ {
		require.NoError(t, db.RecordAnswer(ctx, id, true, time.Now()))
	}
	for i := 0; i < wrong; i++ {
		require.NoError(t, db.RecordAnswer(ctx, id, false, time.Now()))
	}
}
