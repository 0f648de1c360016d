package quiz

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/conorfennell/memnotes/internal/domain"
	"github.com/conorfennell/memnotes/internal/storage"
)

// memStore is an in-memory note store implementing Selector and Recorder.
type memStore struct {
	notes     map[int64]*domain.Note
	failWrite error
}

func newMemStore(n int) *memStore {
	m := &memStore{notes: make(map[int64]*domain.Note)}
	for i := 1; i <= n; i++ {
		m.notes[int64(i)] = &domain.Note{
			ID:    int64(i),
			Title: fmt.Sprintf("note %d", i),
			Quiz: &domain.Quiz{
				Question:      fmt.Sprintf("q%d?", i),
				CorrectAnswer: fmt.Sprintf("right %d", i),
				WrongAnswers:  [3]string{"w1", "w2", "w3"},
			},
		}
	}
	return m
}

func (m *memStore) SelectQuestions(_ context.Context, policy domain.SelectionPolicy, n int) ([]domain.Note, error) {
	var out []domain.Note
	for _, note := range m.notes {
		switch {
		case policy == domain.PolicyUntested && note.TimesChallenged > 0:
			continue
		case policy == domain.PolicyWeakest && note.TimesChallenged == 0:
			continue
		}
		out = append(out, *note)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *memStore) RecordAnswer(_ context.Context, id int64, correct bool, _ time.Time) error {
	if m.failWrite != nil {
		return m.failWrite
	}
	note, ok := m.notes[id]
	if !ok {
		return domain.ErrNotFound
	}
	note.TimesChallenged++
	if correct {
		note.TimesCorrect++
	}
	return nil
}

func TestStart(t *testing.T) {
	ctx := context.Background()

	t.Run("draws at most n questions", func(t *testing.T) {
		s, err := Start(ctx, newMemStore(5), 3, domain.PolicyRandom)
		require.NoError(t, err)
		assert.Equal(t, State{Phase: InProgress, Total: 3}, s.State())
	})

	t.Run("fewer notes than requested", func(t *testing.T) {
		s, err := Start(ctx, newMemStore(2), 10, domain.PolicyRandom)
		require.NoError(t, err)
		assert.Len(t, s.Questions, 2)
	})

	t.Run("options are the four answers", func(t *testing.T) {
		s, err := Start(ctx, newMemStore(1), 1, domain.PolicyRandom)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"right 1", "w1", "w2", "w3"}, s.Questions[0].Options)
	})

	t.Run("no suitable questions", func(t *testing.T) {
		s, err := Start(ctx, newMemStore(3), 5, domain.PolicyWeakest)
		assert.ErrorIs(t, err, domain.ErrNoSuitableQuestions)
		assert.Nil(t, s)
	})

	t.Run("count must be positive", func(t *testing.T) {
		_, err := Start(ctx, newMemStore(3), 0, domain.PolicyRandom)
		assert.ErrorIs(t, err, domain.ErrInvalidCount)
	})
}

func TestNilSessionHasNotStarted(t *testing.T) {
	var s *Session
	assert.Equal(t, NotStarted, s.State().Phase)
	_, ok := s.CurrentQuestion()
	assert.False(t, ok)
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("grades against the snapshot", func(t *testing.T) {
		store := newMemStore(2)
		s, err := Start(ctx, store, 2, domain.PolicyRandom)
		require.NoError(t, err)

		// An edit after the start must not change the expected answer.
		store.notes[1].Quiz.CorrectAnswer = "edited"

		res, err := s.Answer(ctx, store, "right 1", time.Now())
		require.NoError(t, err)
		assert.True(t, res.Correct)
		assert.True(t, res.Recorded)

		res, err = s.Answer(ctx, store, "w1", time.Now())
		require.NoError(t, err)
		assert.False(t, res.Correct)

		assert.Equal(t, State{Phase: Complete, Answered: 2, Total: 2, Score: 1}, s.State())
		_, err = s.Answer(ctx, store, "right 2", time.Now())
		assert.ErrorIs(t, err, domain.ErrSessionComplete)
	})

	t.Run("deleted note still counts", func(t *testing.T) {
		store := newMemStore(1)
		s, err := Start(ctx, store, 1, domain.PolicyRandom)
		require.NoError(t, err)
		delete(store.notes, 1)

		res, err := s.Answer(ctx, store, "right 1", time.Now())
		require.NoError(t, err)
		assert.False(t, res.Recorded)
		assert.Equal(t, 1, s.Score)
		assert.Equal(t, Complete, s.State().Phase)
	})

	t.Run("storage failure does not advance", func(t *testing.T) {
		store := newMemStore(1)
		s, err := Start(ctx, store, 1, domain.PolicyRandom)
		require.NoError(t, err)
		store.failWrite = errors.New("disk full")

		_, err = s.Answer(ctx, store, "right 1", time.Now())
		require.Error(t, err)
		assert.Equal(t, State{Phase: InProgress, Total: 1}, s.State())
	})

	t.Run("resubmitted answer is refused", func(t *testing.T) {
		store := newMemStore(2)
		s, err := Start(ctx, store, 2, domain.PolicyRandom)
		require.NoError(t, err)
		first := s.Questions[0]

		res, err := s.AnswerAt(ctx, store, 0, first.CorrectAnswer, time.Now())
		require.NoError(t, err)
		assert.True(t, res.Correct)

		_, err = s.AnswerAt(ctx, store, 0, first.CorrectAnswer, time.Now())
		require.ErrorIs(t, err, domain.ErrStaleAnswer)
		assert.Equal(t, State{Phase: InProgress, Answered: 1, Total: 2, Score: 1}, s.State())

		second := s.Questions[1]
		assert.Zero(t, store.notes[second.NoteID].TimesChallenged)

		_, err = s.AnswerAt(ctx, store, 1, second.CorrectAnswer, time.Now())
		require.NoError(t, err)
		_, err = s.AnswerAt(ctx, store, 1, second.CorrectAnswer, time.Now())
		assert.ErrorIs(t, err, domain.ErrSessionComplete)
	})
}

func TestSessionInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := newMemStore(rapid.IntRange(1, 8).Draw(t, "notes"))
		rounds := rapid.IntRange(1, 5).Draw(t, "rounds")

		for r := 0; r < rounds; r++ {
			policy := rapid.SampledFrom([]domain.SelectionPolicy{
				domain.PolicyRandom, domain.PolicyUntested, domain.PolicyWeakest,
			}).Draw(t, "policy")
			n := rapid.IntRange(1, 10).Draw(t, "n")

			s, err := Start(ctx, store, n, policy)
			if errors.Is(err, domain.ErrNoSuitableQuestions) {
				continue
			}
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			for _, q := range s.Questions {
				note := store.notes[q.NoteID]
				if policy == domain.PolicyUntested && note.TimesChallenged != 0 {
					t.Fatalf("untested drew tested note %d", q.NoteID)
				}
				if policy == domain.PolicyWeakest && note.TimesChallenged == 0 {
					t.Fatalf("weakest drew untested note %d", q.NoteID)
				}
			}

			for s.State().Phase == InProgress {
				q, _ := s.CurrentQuestion()
				option := rapid.SampledFrom(q.Options).Draw(t, "option")
				if _, err := s.Answer(ctx, store, option, time.Now()); err != nil {
					t.Fatalf("answer: %v", err)
				}
				st := s.State()
				if st.Score > st.Answered || st.Answered > st.Total {
					t.Fatalf("inconsistent state %+v", st)
				}
			}
		}

		for _, note := range store.notes {
			if note.TimesCorrect > note.TimesChallenged {
				t.Fatalf("note %d: correct %d > challenged %d", note.ID, note.TimesCorrect, note.TimesChallenged)
			}
		}
	})
}

func TestAliceCapitalsScenario(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "alice.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateTag(ctx, "geo")
	require.NoError(t, err)
	id, err := db.CreateNote(ctx, domain.NoteInput{
		Title:         "Capitals",
		Content:       "European capitals",
		Tags:          []string{"geo"},
		Question:      "Capital of France?",
		CorrectAnswer: "Paris",
		WrongAnswer1:  "Lyon",
		WrongAnswer2:  "Nice",
		WrongAnswer3:  "Lille",
	})
	require.NoError(t, err)

	_, err = Start(ctx, db, 5, domain.PolicyWeakest)
	require.ErrorIs(t, err, domain.ErrNoSuitableQuestions)

	s, err := Start(ctx, db, 1, domain.PolicyRandom)
	require.NoError(t, err)
	require.Len(t, s.Questions, 1)
	assert.Equal(t, id, s.Questions[0].NoteID)

	res, err := s.Answer(ctx, db, "Paris", time.Now())
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.Equal(t, 1, s.Score)
	assert.Equal(t, Complete, s.State().Phase)

	note, err := db.GetNote(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, note.TimesChallenged)
	assert.Equal(t, 1, note.TimesCorrect)
}
