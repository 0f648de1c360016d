// Package session keeps per-browser state on the server, referenced by a
// signed cookie.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/quiz"
)

const DefaultCookieName = "memnotes_session"

// Store persists session payloads.
type Store interface {
	SaveSession(ctx context.Context, id string, data []byte, expiresAt time.Time) error
	LoadSession(ctx context.Context, id string, now time.Time) ([]byte, error)
	DeleteSession(ctx context.Context, id string) error
}

// Data is everything remembered between requests.
type Data struct {
	AccountID  uint          `json:"account_id,omitempty"`
	Username   string        `json:"username,omitempty"`
	HasTestSet bool          `json:"has_test_set,omitempty"`
	Flashes    []string      `json:"flashes,omitempty"`
	Quiz       *quiz.Session `json:"quiz,omitempty"`
}

// Session is the state of one browser for the duration of a request.
type Session struct {
	id        string
	staleID   string
	data      Data
	dirty     bool
	destroyed bool
}

// ID returns the current session identifier.
func (s *Session) ID() string { return s.id }

// Data returns a copy of the session payload.
func (s *Session) Data() Data { return s.data }

// Authenticated reports whether an account is logged in.
func (s *Session) Authenticated() bool { return s.data.AccountID != 0 }

// Login binds the session to an account. The identifier is rotated and
// any previous state is discarded.
func (s *Session) Login(accountID uint, username string, hasTestSet bool) {
	if s.staleID == "" {
		s.staleID = s.id
	}
	s.id = ""
	s.data = Data{AccountID: accountID, Username: username, HasTestSet: hasTestSet}
	s.dirty = true
	s.destroyed = false
}

// Destroy forgets the session on the server and in the browser.
func (s *Session) Destroy() {
	s.data = Data{}
	s.destroyed = true
	s.dirty = false
}

// AddFlash queues a one-time message for the next rendered page.
func (s *Session) AddFlash(msg string) {
	s.data.Flashes = append(s.data.Flashes, msg)
	s.dirty = true
}

// PopFlashes returns and clears the queued messages.
func (s *Session) PopFlashes() []string {
	if len(s.data.Flashes) == 0 {
		return nil
	}
	msgs := s.data.Flashes
	s.data.Flashes = nil
	s.dirty = true
	return msgs
}

// SetHasTestSet mirrors the account's test set flag.
func (s *Session) SetHasTestSet(v bool) {
	s.data.HasTestSet = v
	s.dirty = true
}

// Quiz returns the test in progress, if any.
func (s *Session) Quiz() *quiz.Session { return s.data.Quiz }

// SetQuiz stores q as the current test. Passing nil clears it. The quiz
// session is mutated in place by answers, so callers must call SetQuiz
// again after changing it.
func (s *Session) SetQuiz(q *quiz.Session) {
	s.data.Quiz = q
	s.dirty = true
}

// Manager loads and saves sessions.
type Manager struct {
	store      Store
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool
	logger     *zap.Logger
	now        func() time.Time
}

// Options configures a Manager.
type Options struct {
	Secret     string
	TTL        time.Duration
	CookieName string
	Secure     bool
}

// NewManager returns a manager signing cookies with opts.Secret.
func NewManager(store Store, opts Options, logger *zap.Logger) (*Manager, error) {
	if opts.Secret == "" {
		return nil, errors.New("session secret must not be empty")
	}
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	return &Manager{
		store:      store,
		secret:     []byte(opts.Secret),
		ttl:        opts.TTL,
		cookieName: opts.CookieName,
		secure:     opts.Secure,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Load returns the session referenced by the request cookie, or a fresh
// empty one.
func (m *Manager) Load(r *http.Request) *Session {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return &Session{}
	}
	id, err := m.parseToken(c.Value)
	if err != nil {
		m.logger.Debug("Ignoring invalid session cookie", zap.Error(err))
		return &Session{}
	}
	raw, err := m.store.LoadSession(r.Context(), id, m.now().UTC())
	if err != nil {
		return &Session{}
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		m.logger.Warn("Discarding unreadable session", zap.String("session_id", id), zap.Error(err))
		return &Session{staleID: id}
	}
	return &Session{id: id, data: data}
}

// Save persists s when it changed and sets or clears the cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if s.staleID != "" && s.staleID != s.id {
		if err := m.store.DeleteSession(ctx, s.staleID); err != nil {
			return err
		}
		s.staleID = ""
	}

	if s.destroyed {
		if s.id != "" {
			if err := m.store.DeleteSession(ctx, s.id); err != nil {
				return err
			}
		}
		http.SetCookie(w, &http.Cookie{
			Name:     m.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   m.secure,
			SameSite: http.SameSiteLaxMode,
		})
		return nil
	}
	if !s.dirty {
		return nil
	}

	if s.id == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate session id: %w", err)
		}
		s.id = id
	}
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	expires := m.now().UTC().Add(m.ttl)
	if err := m.store.SaveSession(ctx, s.id, raw, expires); err != nil {
		return err
	}
	token, err := m.signToken(s.id, expires)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.dirty = false
	return nil
}

func (m *Manager) signToken(id string, expires time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(m.now()),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

func (m *Manager) parseToken(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("session token has no subject")
	}
	return claims.Subject, nil
}
