package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/accounts"
	"github.com/conorfennell/memnotes/internal/metrics"
	"github.com/conorfennell/memnotes/internal/session"
	"github.com/conorfennell/memnotes/internal/storage"
	"github.com/conorfennell/memnotes/internal/testset"
	"github.com/conorfennell/memnotes/internal/validation"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

const (
	recentNotesLimit = 10
	tagsPerPage      = 15
	statsPerPage     = 10
)

// Deps are the collaborators a Server needs.
type Deps struct {
	Accounts       *accounts.Store
	Stores         *storage.Registry
	Sessions       *session.Manager
	TestSet        *testset.Importer
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	AllowedOrigins []string
	// PublicMetrics serves /metrics alongside the user pages.
	PublicMetrics bool
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	accounts  *accounts.Store
	stores    *storage.Registry
	sessions  *session.Manager
	testset   *testset.Importer
	metrics   *metrics.Metrics
	logger    *zap.Logger
	validate  *validation.Validator
	templates *templates
	router    *http.ServeMux
	handler   http.Handler
	now       func() time.Time
}

// NewServer creates and configures a new server.
func NewServer(d Deps) (*Server, error) {
	tpl, err := parseTemplates(templateFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		accounts:  d.Accounts,
		stores:    d.Stores,
		sessions:  d.Sessions,
		testset:   d.TestSet,
		metrics:   d.Metrics,
		logger:    logger.Named("web"),
		validate:  validation.New(),
		templates: tpl,
		router:    http.NewServeMux(),
		now:       time.Now,
	}
	if err := s.routes(d.PublicMetrics); err != nil {
		return nil, err
	}

	var h http.Handler = s.router
	h = s.sessions.Middleware(h)
	h = noCache(h)
	h = s.instrument(h)
	if len(d.AllowedOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins:   d.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowCredentials: true,
		}).Handler(h)
	}
	s.handler = h
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handle registers h under pattern and remembers the pattern for request
// metrics.
func (s *Server) handle(pattern string, h http.Handler) {
	s.router.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info := requestInfoFrom(r.Context()); info != nil {
			info.route = pattern
		}
		h.ServeHTTP(w, r)
	}))
}

// routes sets up the routing for the server.
func (s *Server) routes(publicMetrics bool) error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create sub-filesystem for static assets: %w", err)
	}
	s.handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.handle("GET /healthz", s.handleHealth())
	if publicMetrics {
		s.handle("GET /metrics", s.metrics.Handler())
	}

	// Account management
	s.handle("GET /login", s.handleLoginForm())
	s.handle("POST /login", s.handleLogin())
	s.handle("GET /logout", s.handleLogout())
	s.handle("GET /register", s.handleRegisterForm())
	s.handle("POST /register", s.handleRegister())
	s.handle("GET /password", s.withAccount(s.handlePasswordForm()))
	s.handle("POST /password", s.withAccount(s.handlePassword()))

	// Notes
	s.handle("GET /{$}", s.withStore(s.handleIndex()))
	s.handle("GET /notes/new", s.withStore(s.handleNewNote()))
	s.handle("POST /notes", s.withStore(s.handleCreateNote()))
	s.handle("GET /notes/{id}", s.withStore(s.handleShowNote()))
	s.handle("GET /notes/{id}/edit", s.withStore(s.handleEditNoteForm()))
	s.handle("POST /notes/{id}/edit", s.withStore(s.handleEditNote()))
	s.handle("GET /notes/{id}/delete", s.withStore(s.handleDeleteNoteForm()))
	s.handle("POST /notes/{id}/delete", s.withStore(s.handleDeleteNote()))
	s.handle("GET /search", s.withStore(s.handleSearch()))
	s.handle("POST /search", s.withStore(s.handleSearch()))
	s.handle("GET /export", s.withStore(s.handleExport()))

	// Tags
	s.handle("GET /tags", s.withStore(s.handleTags()))
	s.handle("POST /tags", s.withStore(s.handleTagAction()))
	s.handle("GET /tags/search", s.withStore(s.handleTagSearch()))

	// Testing
	s.handle("GET /test", s.withStore(s.handleTestSetup()))
	s.handle("POST /test/start", s.withStore(s.handleTestStart()))
	s.handle("GET /test/question", s.withStore(s.handleTestQuestion()))
	s.handle("POST /test/answer", s.withStore(s.handleTestAnswer()))
	s.handle("GET /flashcards", s.withStore(s.handleFlashcard()))
	s.handle("POST /flashcards/{id}/check", s.withStore(s.handleFlashcardCheck()))
	s.handle("GET /stats", s.withStore(s.handleStats()))

	// Test set
	s.handle("POST /testset/import", s.withStore(s.handleTestSetImport()))
	s.handle("POST /testset/remove", s.withStore(s.handleTestSetRemove()))
	return nil
}

// handleHealth reports whether the account database is reachable.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := s.accounts.Ping(r.Context()); err != nil {
			s.logger.Warn("Health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "unavailable")
			return
		}
		fmt.Fprintln(w, "ok")
	}
}
