package web

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/domain"
	"github.com/conorfennell/memnotes/internal/session"
	"github.com/conorfennell/memnotes/internal/storage"
)

// syncTestSetFlag stores the flag on the account and mirrors it into the
// session.
func (s *Server) syncTestSetFlag(r *http.Request, present bool) {
	sess := session.FromContext(r.Context())
	id := sess.Data().AccountID
	if err := s.accounts.SetTestSet(r.Context(), id, present); err != nil {
		s.logger.Error("Failed to update test set flag", zap.Uint("account_id", id), zap.Error(err))
	}
	sess.SetHasTestSet(present)
}

func (s *Server) handleTestSetImport() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		report, err := s.testset.Import(r.Context(), db)
		switch {
		case errors.Is(err, domain.ErrTestSetPresent):
			s.syncTestSetFlag(r, true)
			redirect(w, r, "/", "The test set is already imported.")
		case err != nil:
			s.logger.Error("Test set import failed", zap.Error(err))
			redirect(w, r, "/", "Could not import the test set.")
		default:
			s.syncTestSetFlag(r, true)
			msg := "Test set imported successfully!"
			if report.Skipped > 0 {
				msg = fmt.Sprintf("Test set imported: %d notes copied, %d skipped.", report.Copied, report.Skipped)
			}
			redirect(w, r, "/", msg)
		}
	}
}

func (s *Server) handleTestSetRemove() storeHandler {
	return func(w http.ResponseWriter, r *http.Request, db *storage.DB) {
		report, err := s.testset.Remove(r.Context(), db)
		switch {
		case err != nil:
			s.logger.Error("Test set removal failed", zap.Error(err))
			redirect(w, r, "/", "Could not remove the test set.")
		case !report.Present:
			s.syncTestSetFlag(r, false)
			redirect(w, r, "/", "There is no test set to remove.")
		default:
			s.syncTestSetFlag(r, false)
			redirect(w, r, "/", "Test set removed successfully!")
		}
	}
}
