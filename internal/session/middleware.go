package session

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type contextKey struct{}

// FromContext returns the session attached by Middleware. It never returns
// nil.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(contextKey{}).(*Session); ok {
		return s
	}
	return &Session{}
}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// Middleware loads the session before the handler runs and saves it just
// before the response header is written.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.Load(r)
		sw := &saveOnWrite{ResponseWriter: w, save: func() {
			if err := m.Save(r.Context(), w, s); err != nil {
				m.logger.Error("Failed to save session", zap.Error(err))
			}
		}}
		next.ServeHTTP(sw, r.WithContext(WithSession(r.Context(), s)))
		sw.commit()
	})
}

type saveOnWrite struct {
	http.ResponseWriter
	save  func()
	saved bool
}

func (w *saveOnWrite) commit() {
	if !w.saved {
		w.saved = true
		w.save()
	}
}

func (w *saveOnWrite) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *saveOnWrite) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

func (w *saveOnWrite) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
