package domain

import (
	"strings"
	"time"
)

// Quiz is the optional multiple-choice payload attached to a note.
type Quiz struct {
	Question      string
	CorrectAnswer string
	WrongAnswers  [3]string
}

// Options returns the correct answer followed by the three distractors.
func (q Quiz) Options() []string {
	return []string{q.CorrectAnswer, q.WrongAnswers[0], q.WrongAnswers[1], q.WrongAnswers[2]}
}

// Note is a single record in an account's note store.
type Note struct {
	ID              int64
	Title           string
	Content         string
	Date            time.Time
	Quiz            *Quiz
	TimesChallenged int
	TimesCorrect    int
	LastTested      *time.Time
	Tags            []string
}

// HasQuiz reports whether the note can take part in a test.
func (n Note) HasQuiz() bool {
	return n.Quiz != nil
}

// SuccessRatio returns times_correct / times_challenged. The second value is
// false for a note that has never been tested.
func (n Note) SuccessRatio() (float64, bool) {
	if n.TimesChallenged == 0 {
		return 0, false
	}
	return float64(n.TimesCorrect) / float64(n.TimesChallenged), true
}

// NoteInput carries the submitted fields of the create and edit forms.
type NoteInput struct {
	Title         string   `validate:"required"`
	Content       string   `validate:"required"`
	Tags          []string `validate:"min=1,dive,required"`
	Question      string   `validate:"required_with=CorrectAnswer WrongAnswer1 WrongAnswer2 WrongAnswer3"`
	CorrectAnswer string   `validate:"required_with=Question WrongAnswer1 WrongAnswer2 WrongAnswer3"`
	WrongAnswer1  string   `validate:"required_with=Question CorrectAnswer WrongAnswer2 WrongAnswer3"`
	WrongAnswer2  string   `validate:"required_with=Question CorrectAnswer WrongAnswer1 WrongAnswer3"`
	WrongAnswer3  string   `validate:"required_with=Question CorrectAnswer WrongAnswer1 WrongAnswer2"`
}

// Normalize trims every field and drops blank or repeated tag names.
func (in *NoteInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Question = strings.TrimSpace(in.Question)
	in.CorrectAnswer = strings.TrimSpace(in.CorrectAnswer)
	in.WrongAnswer1 = strings.TrimSpace(in.WrongAnswer1)
	in.WrongAnswer2 = strings.TrimSpace(in.WrongAnswer2)
	in.WrongAnswer3 = strings.TrimSpace(in.WrongAnswer3)
	in.Tags = NormalizeTagNames(in.Tags)
}

// Quiz returns the payload, or nil when no quiz field was supplied.
func (in NoteInput) Quiz() *Quiz {
	if in.Question == "" && in.CorrectAnswer == "" &&
		in.WrongAnswer1 == "" && in.WrongAnswer2 == "" && in.WrongAnswer3 == "" {
		return nil
	}
	return &Quiz{
		Question:      in.Question,
		CorrectAnswer: in.CorrectAnswer,
		WrongAnswers:  [3]string{in.WrongAnswer1, in.WrongAnswer2, in.WrongAnswer3},
	}
}

// InputFromNote fills a form from a stored note.
func InputFromNote(n Note) NoteInput {
	in := NoteInput{
		Title:   n.Title,
		Content: n.Content,
		Tags:    append([]string(nil), n.Tags...),
	}
	if n.Quiz != nil {
		in.Question = n.Quiz.Question
		in.CorrectAnswer = n.Quiz.CorrectAnswer
		in.WrongAnswer1 = n.Quiz.WrongAnswers[0]
		in.WrongAnswer2 = n.Quiz.WrongAnswers[1]
		in.WrongAnswer3 = n.Quiz.WrongAnswers[2]
	}
	return in
}

// NoteStats is one row of the statistics page.
type NoteStats struct {
	ID              int64
	Title           string
	TimesChallenged int
	TimesCorrect    int
	SuccessRate     float64 // percent, one decimal
	LastTested      *time.Time
}
