package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/memnotes/internal/domain"
)

const (
	titlePrefix    = "T:"
	notePrefix     = "N:"
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	wrongPrefix    = "W:"
	tagsPrefix     = "G:"
	separator      = "---"
)

type state int

const (
	seeking state = iota
	readingTitle
	readingContent
	readingQuestion
	readingAnswer
)

// NoteError describes a note that was skipped.
type NoteError struct {
	Line   int
	Title  string
	Reason string
}

func (e *NoteError) Error() string {
	if e.Title == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d (%s): %s", e.Line, e.Title, e.Reason)
}

// Result holds the notes read from one input and the ones rejected.
type Result struct {
	Notes    []domain.BankNote
	Problems []*NoteError
}

// ParseFile reads a file from the given path and extracts all notes.
func ParseFile(path string) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

type draft struct {
	line     int
	title    string
	content  string
	question string
	answer   string
	wrong    []string
	tags     []string
}

func (d *draft) empty() bool {
	return d.title == "" && d.content == "" && d.question == "" &&
		d.answer == "" && len(d.wrong) == 0 && len(d.tags) == 0
}

func (d *draft) build() (domain.BankNote, *NoteError) {
	fail := func(reason string) (domain.BankNote, *NoteError) {
		return domain.BankNote{}, &NoteError{Line: d.line, Title: d.title, Reason: reason}
	}
	if d.title == "" {
		return fail("missing title")
	}
	if d.content == "" {
		return fail("missing content")
	}
	if len(d.wrong) > 3 {
		return fail("more than three wrong answers")
	}

	n := domain.BankNote{Title: d.title, Content: d.content, Tags: domain.NormalizeTagNames(d.tags)}
	if d.question == "" && d.answer == "" && len(d.wrong) == 0 {
		return n, nil
	}
	if d.question == "" || d.answer == "" || len(d.wrong) != 3 {
		return fail("incomplete quiz: question, answer and three wrong answers are required together")
	}
	for _, w := range d.wrong {
		if w == "" {
			return fail("empty wrong answer")
		}
	}
	n.Quiz = &domain.Quiz{
		Question:      d.question,
		CorrectAnswer: d.answer,
		WrongAnswers:  [3]string{d.wrong[0], d.wrong[1], d.wrong[2]},
	}
	return n, nil
}

func stripPrefix(line, prefix string) string {
	content := line[len(prefix):]
	if strings.HasPrefix(content, " ") {
		content = content[1:]
	}
	return content
}

// Parse reads from an io.Reader and extracts all notes. Malformed notes are
// reported in Result.Problems and left out of Result.Notes.
func Parse(r io.Reader) (*Result, error) {
	scanner := bufio.NewScanner(r)
	res := &Result{}
	current := &draft{}
	var currentBlock []string
	currentState := seeking
	lineNo := 0

	flushBlock := func() {
		if len(currentBlock) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(currentBlock, "\n"))
		switch currentState {
		case readingTitle:
			current.title = content
		case readingContent:
			current.content = content
		case readingQuestion:
			current.question = content
		case readingAnswer:
			current.answer = content
		}
		currentBlock = nil
	}

	finishNote := func() {
		flushBlock()
		if !current.empty() {
			note, problem := current.build()
			if problem != nil {
				res.Problems = append(res.Problems, problem)
			} else {
				res.Notes = append(res.Notes, note)
			}
		}
		current = &draft{}
		currentState = seeking
	}

	mark := func() {
		if current.line == 0 {
			current.line = lineNo
		}
	}

	start := func(s state, line, prefix string) {
		flushBlock()
		mark()
		currentState = s
		currentBlock = append(currentBlock, stripPrefix(line, prefix))
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		switch {
		case strings.TrimSpace(line) == separator:
			finishNote()
		case strings.HasPrefix(line, titlePrefix):
			if !current.empty() || len(currentBlock) > 0 {
				finishNote()
			}
			start(readingTitle, line, titlePrefix)
		case strings.HasPrefix(line, notePrefix):
			start(readingContent, line, notePrefix)
		case strings.HasPrefix(line, questionPrefix):
			start(readingQuestion, line, questionPrefix)
		case strings.HasPrefix(line, answerPrefix):
			start(readingAnswer, line, answerPrefix)
		case strings.HasPrefix(line, wrongPrefix):
			flushBlock()
			mark()
			currentState = seeking
			current.wrong = append(current.wrong, strings.TrimSpace(stripPrefix(line, wrongPrefix)))
		case strings.HasPrefix(line, tagsPrefix):
			flushBlock()
			mark()
			currentState = seeking
			current.tags = append(current.tags, strings.Split(stripPrefix(line, tagsPrefix), ",")...)
		case currentState == readingContent || currentState == readingQuestion || currentState == readingAnswer:
			currentBlock = append(currentBlock, line)
		}
	}

	finishNote() // Finish the very last note in the input

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return res, nil
}
