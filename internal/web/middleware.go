package web

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/session"
	"github.com/conorfennell/memnotes/internal/storage"
)

// storeHandler serves a request on behalf of a logged-in account whose note
// store is open for the duration of the call.
type storeHandler func(w http.ResponseWriter, r *http.Request, db *storage.DB)

type requestInfoKey struct{}

type requestInfo struct {
	id    string
	route string
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument tags the request with an ID, then logs and measures it.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		info := &requestInfo{id: uuid.NewString(), route: "unmatched"}
		w.Header().Set("X-Request-ID", info.id)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		elapsed := s.now().Sub(start)
		s.metrics.ObserveRequest(r.Method, info.route, rec.status, elapsed)
		s.logger.Info("Request handled",
			zap.String("request_id", info.id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
		)
	})
}

// noCache keeps browsers from showing stale pages after logout or edits.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

// withAccount redirects anonymous visitors to the login page.
func (s *Server) withAccount(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		if !sess.Authenticated() {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// withStore opens the account's note store for one request and closes it
// on every exit path. A store that cannot be opened ends the session.
func (s *Server) withStore(next storeHandler) http.HandlerFunc {
	return s.withAccount(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		username := sess.Data().Username
		db, err := s.stores.Open(username)
		if err != nil {
			s.logger.Error("Failed to open note store",
				zap.String("username", username), zap.Error(err))
			sess.Destroy()
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		defer func() {
			if err := db.Close(); err != nil {
				s.logger.Warn("Failed to close note store",
					zap.String("username", username), zap.Error(err))
			}
		}()
		next(w, r, db)
	})
}
