package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/memnotes/internal/domain"
)

func TestSelectQuestions(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	mustTag(t, db, "t")

	mustNote(t, db, domain.NoteInput{Title: "no quiz", Content: "c", Tags: []string{"t"}})
	fresh := mustNote(t, db, quizInput("fresh", "t"))
	perfect := mustNote(t, db, quizInput("perfect", "t"))
	half := mustNote(t, db, quizInput("half", "t"))
	halfOften := mustNote(t, db, quizInput("half often", "t"))
	answer(t, db, perfect, 2, 0)
	answer(t, db, half, 1, 1)
	answer(t, db, halfOften, 2, 2)

	ids := func(notes []domain.Note) []int64 {
		var out []int64
		for _, n := range notes {
			out = append(out, n.ID)
		}
		return out
	}

	t.Run("random draws only quiz notes", func(t *testing.T) {
		notes, err := db.SelectQuestions(ctx, domain.PolicyRandom, 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{fresh, perfect, half, halfOften}, ids(notes))
	})

	t.Run("untested", func(t *testing.T) {
		notes, err := db.SelectQuestions(ctx, domain.PolicyUntested, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{fresh}, ids(notes))
	})

	t.Run("weakest orders by ratio then challenges", func(t *testing.T) {
		notes, err := db.SelectQuestions(ctx, domain.PolicyWeakest, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{half, halfOften, perfect}, ids(notes))
	})

	t.Run("limit", func(t *testing.T) {
		notes, err := db.SelectQuestions(ctx, domain.PolicyWeakest, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{half}, ids(notes))
	})

	t.Run("count must be positive", func(t *testing.T) {
		_, err := db.SelectQuestions(ctx, domain.PolicyRandom, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidCount)
	})

	t.Run("unknown policy", func(t *testing.T) {
		_, err := db.SelectQuestions(ctx, domain.SelectionPolicy("hardest"), 1)
		assert.Error(t, err)
	})
}
