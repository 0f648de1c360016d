package web

import (
	"errors"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/domain"
	"github.com/conorfennell/memnotes/internal/quiz"
	"github.com/conorfennell/memnotes/internal/session"
	"github.com/conorfennell/memnotes/internal/storage"
	"github.com/conorfennell/memnotes/internal/validation"
)

type startForm struct {
	Count  int    `validate:"min=1,max=100"`
	Policy string `validate:"oneof=random untested weakest"`
}

func (s *Server) handleTestSetup() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		state := session.FromContext(r.Context()).Quiz().State()
		s.render(w, r, http.StatusOK, "test_setup", viewData{
			"InProgress": state.Phase == quiz.InProgress,
			"State":      state,
		})
	}
}

func (s *Server) handleTestStart() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		form := startForm{Policy: r.PostFormValue("policy")}
		if form.Policy == "" {
			form.Policy = string(domain.PolicyRandom)
		}
		count, err := strconv.Atoi(r.PostFormValue("count"))
		if err != nil {
			redirect(w, r, "/test", "Question count must be a number")
			return
		}
		form.Count = count
		if err := s.validate.Struct(form); err != nil {
			redirect(w, r, "/test", strings.Join(validation.Messages(err), "; "))
			return
		}
		policy, err := domain.ParsePolicy(form.Policy)
		if err != nil {
			redirect(w, r, "/test", err.Error())
			return
		}

		q, err := quiz.Start(r.Context(), db, form.Count, policy)
		switch {
		case errors.Is(err, domain.ErrNoSuitableQuestions):
			redirect(w, r, "/test", "No suitable questions found for testing!")
			return
		case err != nil:
			s.logger.Error("Failed to start test", zap.Error(err))
			redirect(w, r, "/test", genericError)
			return
		}
		session.FromContext(r.Context()).SetQuiz(q)
		http.Redirect(w, r, "/test/question", http.StatusSeeOther)
	}
}

func (s *Server) handleTestQuestion() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		q := session.FromContext(r.Context()).Quiz()
		state := q.State()
		switch state.Phase {
		case quiz.NotStarted:
			redirect(w, r, "/test", "No test in progress. Start a new test first.")
		case quiz.Complete:
			s.render(w, r, http.StatusOK, "test_complete", viewData{"State": state, "Results": q.Results})
		default:
			question, _ := q.CurrentQuestion()
			s.render(w, r, http.StatusOK, "test_question", viewData{
				"Question": question,
				"Position": state.Answered,
				"Number":   state.Answered + 1,
				"State":    state,
			})
		}
	}
}

// handleTestAnswer scores the submitted option against the current question
// and shows the feedback page. The form names the question it answers so a
// resubmitted form cannot grade the next one.
func (s *Server) handleTestAnswer() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		sess := session.FromContext(r.Context())
		q := sess.Quiz()
		if q.State().Phase == quiz.NotStarted {
			redirect(w, r, "/test", "No test in progress. Start a new test first.")
			return
		}

		position, err := strconv.Atoi(r.PostFormValue("position"))
		if err != nil {
			redirect(w, r, "/test/question", "That answer does not belong to a question.")
			return
		}
		result, err := q.AnswerAt(r.Context(), db, position, r.PostFormValue("answer"), s.now().UTC())
		switch {
		case errors.Is(err, domain.ErrStaleAnswer):
			redirect(w, r, "/test/question", "That question was already answered.")
			return
		case errors.Is(err, domain.ErrSessionComplete):
			http.Redirect(w, r, "/test/question", http.StatusSeeOther)
			return
		case err != nil:
			s.logger.Error("Failed to record answer", zap.Error(err))
			redirect(w, r, "/test/question", genericError)
			return
		}
		s.metrics.RecordAnswer(result.Correct, result.Recorded)
		sess.SetQuiz(q)
		s.render(w, r, http.StatusOK, "test_feedback", viewData{
			"Result": result,
			"State":  q.State(),
		})
	}
}

// handleFlashcard shows one random practice question. Practice answers do
// not touch the statistics.
func (s *Server) handleFlashcard() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		note, err := db.RandomQuizNote(r.Context())
		if errors.Is(err, domain.ErrNotFound) {
			s.render(w, r, http.StatusOK, "flashcard", nil)
			return
		}
		if err != nil {
			s.logger.Error("Failed to pick flashcard", zap.Error(err))
			redirect(w, r, "/", genericError)
			return
		}
		options := note.Quiz.Options()
		rand.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
		s.render(w, r, http.StatusOK, "flashcard", viewData{"Note": note, "Options": options})
	}
}

func (s *Server) handleFlashcardCheck() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		note, ok := s.loadNote(w, r, db)
		if !ok {
			return
		}
		if note.Quiz == nil {
			redirect(w, r, "/flashcards", "This note has no question.")
			return
		}
		selected := r.PostFormValue("answer")
		s.render(w, r, http.StatusOK, "flashcard_result", viewData{
			"Note":     note,
			"Selected": selected,
			"Correct":  selected == note.Quiz.CorrectAnswer,
		})
	}
}

func (s *Server) handleStats() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		page := pageParam(r)
		stats, total, err := db.Stats(r.Context(), page, statsPerPage)
		if err != nil {
			s.logger.Error("Failed to load stats", zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		s.render(w, r, http.StatusOK, "stats", viewData{
			"Stats": stats,
			"Pager": newPager(page, statsPerPage, total),
		})
	}
}
