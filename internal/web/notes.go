package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/domain"
	"github.com/conorfennell/memnotes/internal/session"
	"github.com/conorfennell/memnotes/internal/storage"
	"github.com/conorfennell/memnotes/internal/validation"
)

const genericError = "Something went wrong, please try again"

func (s *Server) handleIndex() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		ctx := r.Context()
		total, err := db.CountNotes(ctx)
		if err != nil {
			s.logger.Error("Failed to count notes", zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		notes, err := db.RecentNotes(ctx, recentNotesLimit)
		if err != nil {
			s.logger.Error("Failed to list recent notes", zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		s.render(w, r, http.StatusOK, "index", viewData{
			"Notes":      notes,
			"Total":      total,
			"ShowImport": total == 0 && !session.FromContext(ctx).Data().HasTestSet,
		})
	}
}

// errBadForm marks a request body that could not be decoded as a form.
var errBadForm = errors.New("malformed form")

const badFormMessage = "The form could not be read. Please submit it again."

func parseForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("%w: %v", errBadForm, err)
	}
	return nil
}

// formStatus is the status a form page is re-rendered with after err.
func formStatus(err error) int {
	if errors.Is(err, errBadForm) {
		return http.StatusBadRequest
	}
	return http.StatusUnprocessableEntity
}

// noteForm reads the create and edit forms.
func noteForm(r *http.Request) (domain.NoteInput, error) {
	if err := parseForm(r); err != nil {
		return domain.NoteInput{}, err
	}
	in := domain.NoteInput{
		Title:         r.PostFormValue("title"),
		Content:       r.PostFormValue("content"),
		Tags:          formTags(r),
		Question:      r.PostFormValue("question"),
		CorrectAnswer: r.PostFormValue("correct_answer"),
		WrongAnswer1:  r.PostFormValue("wrong_answer1"),
		WrongAnswer2:  r.PostFormValue("wrong_answer2"),
		WrongAnswer3:  r.PostFormValue("wrong_answer3"),
	}
	in.Normalize()
	return in, nil
}

// saveNoteMessages maps a failed save onto form messages. ok is false for
// errors the user cannot fix.
func saveNoteMessages(err error) (msgs []string, ok bool) {
	if m := validation.Messages(err); m != nil {
		return m, true
	}
	if errors.Is(err, errBadForm) {
		return []string{badFormMessage}, true
	}
	if errors.Is(err, domain.ErrUnknownTag) {
		// err reads like `tag "geo": tag does not exist`.
		return []string{"Unknown " + err.Error()}, true
	}
	if errors.Is(err, domain.ErrReservedTag) {
		return []string{fmt.Sprintf("Tag '%s' is managed by the test set.", domain.SentinelTag)}, true
	}
	return nil, false
}

func (s *Server) renderNoteForm(w http.ResponseWriter, r *http.Request, db *storage.DB, status int, data viewData) {
	names, err := db.TagNames(r.Context(), "")
	if err != nil {
		s.logger.Warn("Failed to load tag names", zap.Error(err))
	}
	data["TagNames"] = names
	s.render(w, r, status, "note_form", data)
}

func (s *Server) handleNewNote() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		s.renderNoteForm(w, r, db, http.StatusOK, viewData{
			"Action": "/notes",
			"Form":   domain.NoteInput{},
		})
	}
}

func (s *Server) handleCreateNote() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		in, err := noteForm(r)
		if err == nil {
			err = s.validate.Struct(in)
		}
		var id int64
		if err == nil {
			id, err = db.CreateNote(r.Context(), in)
		}
		if err != nil {
			msgs, ok := saveNoteMessages(err)
			status := formStatus(err)
			if !ok {
				s.logger.Error("Failed to create note", zap.Error(err))
				msgs = []string{genericError}
				status = http.StatusInternalServerError
			}
			s.renderNoteForm(w, r, db, status, viewData{"Action": "/notes", "Form": in, "Errors": msgs})
			return
		}
		redirect(w, r, fmt.Sprintf("/notes/%d", id), "Note created successfully!")
	}
}

// loadNote resolves the {id} path value. On failure it has already
// redirected.
func (s *Server) loadNote(w http.ResponseWriter, r *http.Request, db *storage.DB) (*domain.Note, bool) {
	id, ok := pathID(r)
	if !ok {
		redirect(w, r, "/", "Note not found!")
		return nil, false
	}
	note, err := db.GetNote(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		redirect(w, r, "/", "Note not found!")
		return nil, false
	}
	if err != nil {
		s.logger.Error("Failed to load note", zap.Int64("note_id", id), zap.Error(err))
		redirect(w, r, "/", genericError)
		return nil, false
	}
	return note, true
}

func (s *Server) handleShowNote() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		note, ok := s.loadNote(w, r, db)
		if !ok {
			return
		}
		ratio, tested := note.SuccessRatio()
		s.render(w, r, http.StatusOK, "note", viewData{
			"Note":        note,
			"Tested":      tested,
			"SuccessRate": fmt.Sprintf("%.1f", ratio*100),
		})
	}
}

func (s *Server) handleEditNoteForm() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		note, ok := s.loadNote(w, r, db)
		if !ok {
			return
		}
		s.renderNoteForm(w, r, db, http.StatusOK, viewData{
			"Action": fmt.Sprintf("/notes/%d/edit", note.ID),
			"Form":   domain.InputFromNote(*note),
			"Note":   note,
		})
	}
}

func (s *Server) handleEditNote() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		id, ok := pathID(r)
		if !ok {
			redirect(w, r, "/", "Note not found!")
			return
		}
		in, err := noteForm(r)
		if err == nil {
			err = s.validate.Struct(in)
		}
		if err == nil {
			err = db.UpdateNote(r.Context(), id, in)
		}
		if errors.Is(err, domain.ErrNotFound) {
			redirect(w, r, "/", "Note not found!")
			return
		}
		if err != nil {
			msgs, ok := saveNoteMessages(err)
			status := formStatus(err)
			if !ok {
				s.logger.Error("Failed to update note", zap.Int64("note_id", id), zap.Error(err))
				msgs = []string{genericError}
				status = http.StatusInternalServerError
			}
			s.renderNoteForm(w, r, db, status, viewData{
				"Action": fmt.Sprintf("/notes/%d/edit", id),
				"Form":   in,
				"Errors": msgs,
			})
			return
		}
		redirect(w, r, fmt.Sprintf("/notes/%d", id), "Note updated successfully!")
	}
}

func (s *Server) handleDeleteNoteForm() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		note, ok := s.loadNote(w, r, db)
		if !ok {
			return
		}
		s.render(w, r, http.StatusOK, "note_delete", viewData{"Note": note})
	}
}

func (s *Server) handleDeleteNote() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		id, ok := pathID(r)
		if !ok {
			redirect(w, r, "/", "Note not found!")
			return
		}
		err := db.DeleteNote(r.Context(), id)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			redirect(w, r, "/", "Note not found!")
		case err != nil:
			s.logger.Error("Failed to delete note", zap.Int64("note_id", id), zap.Error(err))
			redirect(w, r, "/", genericError)
		default:
			redirect(w, r, "/", "Note deleted successfully!")
		}
	}
}

// handleSearch serves both the empty form and its results. Criteria are
// read from the query string or the posted form.
func (s *Server) handleSearch() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		formErr := parseForm(r)
		filter := storage.NoteFilter{
			Query: strings.TrimSpace(r.FormValue("q")),
			Tags:  domain.NormalizeTagNames(formTags(r)),
		}
		ctx := r.Context()
		names, err := db.TagNames(ctx, "")
		if err != nil {
			s.logger.Warn("Failed to load tag names", zap.Error(err))
		}
		data := viewData{"Filter": filter, "TagNames": names}
		if formErr != nil {
			data["Errors"] = []string{badFormMessage}
			s.render(w, r, http.StatusBadRequest, "search", data)
			return
		}

		searched := r.Method == http.MethodPost || filter.Query != "" || len(filter.Tags) > 0
		if searched {
			notes, err := db.SearchNotes(ctx, filter)
			if err != nil {
				s.logger.Error("Search failed", zap.Error(err))
				data["Errors"] = []string{genericError}
			}
			data["Notes"] = notes
		}
		data["Searched"] = searched
		s.render(w, r, http.StatusOK, "search", data)
	}
}

type exportNote struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	Date            time.Time  `json:"date"`
	Tags            []string   `json:"tags"`
	Question        string     `json:"question,omitempty"`
	CorrectAnswer   string     `json:"correct_answer,omitempty"`
	WrongAnswers    []string   `json:"wrong_answers,omitempty"`
	TimesChallenged int        `json:"times_challenged"`
	TimesCorrect    int        `json:"times_correct"`
	LastTested      *time.Time `json:"last_tested,omitempty"`
}

// handleExport downloads every note of the account as JSON.
func (s *Server) handleExport() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		notes, err := db.AllNotes(r.Context())
		if err != nil {
			s.logger.Error("Failed to export notes", zap.Error(err))
			redirect(w, r, "/", genericError)
			return
		}
		out := make([]exportNote, 0, len(notes))
		for _, n := range notes {
			e := exportNote{
				ID:              n.ID,
				Title:           n.Title,
				Content:         n.Content,
				Date:            n.Date,
				Tags:            n.Tags,
				TimesChallenged: n.TimesChallenged,
				TimesCorrect:    n.TimesCorrect,
				LastTested:      n.LastTested,
			}
			if e.Tags == nil {
				e.Tags = []string{}
			}
			if n.Quiz != nil {
				e.Question = n.Quiz.Question
				e.CorrectAnswer = n.Quiz.CorrectAnswer
				e.WrongAnswers = n.Quiz.WrongAnswers[:]
			}
			out = append(out, e)
		}
		username := session.FromContext(r.Context()).Data().Username
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="memnotes-%s.json"`, username))
		s.writeJSON(w, out)
	}
}
