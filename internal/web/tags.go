package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/domain"
	"github.com/conorfennell/memnotes/internal/storage"
)

func (s *Server) handleTags() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		page := pageParam(r)
		tags, total, err := db.ListTags(r.Context(), storage.TagFilter{Query: query, Page: page, PerPage: tagsPerPage})
		if err != nil {
			s.logger.Error("Failed to list tags", zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		s.render(w, r, http.StatusOK, "tags", viewData{
			"Tags":     tags,
			"Query":    query,
			"Pager":    newPager(page, tagsPerPage, total),
			"Sentinel": domain.SentinelTag,
		})
	}
}

// handleTagAction applies one of the manage-tags form actions and returns
// to the list.
func (s *Server) handleTagAction() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		ctx := r.Context()
		name := strings.TrimSpace(r.PostFormValue("name"))

		switch action := r.PostFormValue("action"); action {
		case "add":
			_, err := db.CreateTag(ctx, name)
			redirect(w, r, "/tags", s.tagMessage(err, name, fmt.Sprintf("Tag '%s' added successfully!", name)))
		case "edit":
			id, err := strconv.ParseInt(r.PostFormValue("id"), 10, 64)
			if err == nil {
				err = db.RenameTag(ctx, id, name)
			}
			redirect(w, r, "/tags", s.tagMessage(err, name, "Tag updated successfully!"))
		case "delete":
			id, err := strconv.ParseInt(r.PostFormValue("id"), 10, 64)
			if err == nil {
				err = db.DeleteTag(ctx, id)
			}
			redirect(w, r, "/tags", s.tagMessage(err, name, "Tag and all its references deleted successfully!"))
		case "cleanup":
			n, err := db.GarbageCollectTags(ctx)
			redirect(w, r, "/tags", s.tagMessage(err, "", fmt.Sprintf("Removed %d unused tags.", n)))
		default:
			redirect(w, r, "/tags", fmt.Sprintf("Unknown action %q", action))
		}
	}
}

func (s *Server) tagMessage(err error, name, success string) string {
	switch {
	case err == nil:
		return success
	case errors.Is(err, domain.ErrTagExists):
		return fmt.Sprintf("Tag '%s' already exists!", name)
	case errors.Is(err, domain.ErrEmptyTagName):
		return "Tag name cannot be empty!"
	case errors.Is(err, domain.ErrReservedTag):
		return fmt.Sprintf("Tag '%s' is managed by the test set.", domain.SentinelTag)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, strconv.ErrSyntax):
		return "Tag not found!"
	}
	s.logger.Error("Tag operation failed", zap.String("tag", name), zap.Error(err))
	return genericError
}

// handleTagSearch returns tag names for autocomplete as a JSON array.
func (s *Server) handleTagSearch() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		names, err := db.TagNames(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")))
		if err != nil {
			s.logger.Error("Failed to search tags", zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if names == nil {
			names = []string{}
		}
		s.writeJSON(w, names)
	}
}
