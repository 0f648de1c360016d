// Package quiz sequences a multiple-choice test over a frozen snapshot of
// questions drawn from a note store.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/conorfennell/memnotes/internal/domain"
)

// Selector draws candidate questions from a note store.
type Selector interface {
	SelectQuestions(ctx context.Context, policy domain.SelectionPolicy, n int) ([]domain.Note, error)
}

// Recorder updates a note's statistics after an answer.
type Recorder interface {
	RecordAnswer(ctx context.Context, noteID int64, correct bool, at time.Time) error
}

// Question is the snapshot of one note taken when the test starts. Edits to
// the note during the test do not affect it.
type Question struct {
	NoteID        int64    `json:"note_id"`
	Title         string   `json:"title"`
	Question      string   `json:"question"`
	CorrectAnswer string   `json:"correct_answer"`
	Options       []string `json:"options"`
}

// Result describes one submitted answer.
type Result struct {
	NoteID        int64  `json:"note_id"`
	Title         string `json:"title"`
	Selected      string `json:"selected"`
	CorrectAnswer string `json:"correct_answer"`
	Correct       bool   `json:"correct"`
	// Recorded is false when the note was deleted before the answer arrived.
	Recorded bool `json:"recorded"`
}

// Session is an in-progress or finished test. It is a plain value so it can
// be stored with the rest of the browser session.
type Session struct {
	Policy    domain.SelectionPolicy `json:"policy"`
	Questions []Question             `json:"questions"`
	Current   int                    `json:"current"`
	Score     int                    `json:"score"`
	Results   []Result               `json:"results"`
}

// Phase is the coarse state of a test.
type Phase int

const (
	NotStarted Phase = iota
	InProgress
	Complete
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not started"
	case InProgress:
		return "in progress"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// State is a snapshot of a session's progress.
type State struct {
	Phase    Phase
	Answered int
	Total    int
	Score    int
}

// Start draws up to n questions with policy and freezes them into a new
// session. Answer options are shuffled once here.
func Start(ctx context.Context, sel Selector, n int, policy domain.SelectionPolicy) (*Session, error) {
	if n <= 0 {
		return nil, domain.ErrInvalidCount
	}
	notes, err := sel.SelectQuestions(ctx, policy, n)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, domain.ErrNoSuitableQuestions
	}

	s := &Session{Policy: policy, Questions: make([]Question, 0, len(notes))}
	for _, note := range notes {
		if note.Quiz == nil {
			continue
		}
		s.Questions = append(s.Questions, snapshot(note))
	}
	if len(s.Questions) == 0 {
		return nil, domain.ErrNoSuitableQuestions
	}
	return s, nil
}

func snapshot(n domain.Note) Question {
	options := n.Quiz.Options()
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return Question{
		NoteID:        n.ID,
		Title:         n.Title,
		Question:      n.Quiz.Question,
		CorrectAnswer: n.Quiz.CorrectAnswer,
		Options:       options,
	}
}

// State reports the session's progress. A nil session has not started.
func (s *Session) State() State {
	if s == nil {
		return State{Phase: NotStarted}
	}
	st := State{
		Phase:    InProgress,
		Answered: s.Current,
		Total:    len(s.Questions),
		Score:    s.Score,
	}
	if s.Current >= len(s.Questions) {
		st.Phase = Complete
	}
	return st
}

// CurrentQuestion returns the question awaiting an answer.
func (s *Session) CurrentQuestion() (Question, bool) {
	if s == nil || s.Current >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.Current], true
}

// AnswerAt is Answer for a client that names the question it is answering
// by position. An answer to any question other than the current one is
// refused with domain.ErrStaleAnswer and changes nothing.
func (s *Session) AnswerAt(ctx context.Context, rec Recorder, position int, option string, now time.Time) (Result, error) {
	if s.State().Phase != InProgress {
		return Result{}, domain.ErrSessionComplete
	}
	if position != s.Current {
		return Result{}, fmt.Errorf("answer for question %d, current is %d: %w", position, s.Current, domain.ErrStaleAnswer)
	}
	return s.Answer(ctx, rec, option, now)
}

// Answer grades option against the current question's snapshot, records
// the outcome on the note and advances. If recording fails for any reason
// other than the note having been deleted, the session does not advance.
func (s *Session) Answer(ctx context.Context, rec Recorder, option string, now time.Time) (Result, error) {
	q, ok := s.CurrentQuestion()
	if !ok {
		return Result{}, domain.ErrSessionComplete
	}

	res := Result{
		NoteID:        q.NoteID,
		Title:         q.Title,
		Selected:      option,
		CorrectAnswer: q.CorrectAnswer,
		Correct:       option == q.CorrectAnswer,
		Recorded:      true,
	}
	if err := rec.RecordAnswer(ctx, q.NoteID, res.Correct, now); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return Result{}, err
		}
		res.Recorded = false
	}

	if res.Correct {
		s.Score++
	}
	s.Current++
	s.Results = append(s.Results, res)
	return res, nil
}
