package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/domain"
	"github.com/conorfennell/memnotes/internal/quiz"
)

type memStore struct {
	data    map[string][]byte
	expires map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, expires: map[string]time.Time{}}
}

func (m *memStore) SaveSession(_ context.Context, id string, data []byte, exp time.Time) error {
	m.data[id] = data
	m.expires[id] = exp
	return nil
}

func (m *memStore) LoadSession(_ context.Context, id string, now time.Time) ([]byte, error) {
	d, ok := m.data[id]
	if !ok || !m.expires[id].After(now) {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (m *memStore) DeleteSession(_ context.Context, id string) error {
	delete(m.data, id)
	delete(m.expires, id)
	return nil
}

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()
	m, err := NewManager(store, Options{Secret: "test-secret", TTL: time.Hour}, zap.NewNop())
	require.NoError(t, err)
	return m
}

// roundTrip runs h behind the middleware, sending cookies and returning the
// response cookies.
func roundTrip(m *Manager, cookies []*http.Cookie, h http.HandlerFunc) []*http.Cookie {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	m.Middleware(h).ServeHTTP(rec, req)
	return rec.Result().Cookies()
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager(newMemStore(), Options{}, zap.NewNop())
	assert.Error(t, err)
}

func TestUntouchedSessionSetsNoCookie(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store)

	cookies := roundTrip(m, nil, func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, FromContext(r.Context()).Authenticated())
	})
	assert.Empty(t, cookies)
	assert.Empty(t, store.data)
}

func TestLoginFlashAndQuizSurviveRequests(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store)

	cookies := roundTrip(m, nil, func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		s.Login(7, "alice", false)
		s.AddFlash("Welcome")
		s.SetQuiz(&quiz.Session{Questions: []quiz.Question{{NoteID: 1, CorrectAnswer: "Paris"}}})
		http.Redirect(w, r, "/", http.StatusFound)
	})
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)

	roundTrip(m, cookies, func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		require.True(t, s.Authenticated())
		assert.Equal(t, "alice", s.Data().Username)
		assert.Equal(t, []string{"Welcome"}, s.PopFlashes())
		require.NotNil(t, s.Quiz())
		assert.Equal(t, "Paris", s.Quiz().Questions[0].CorrectAnswer)
	})

	roundTrip(m, cookies, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, FromContext(r.Context()).PopFlashes())
	})
}

func TestLoginRotatesID(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store)

	cookies := roundTrip(m, nil, func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).AddFlash("hello")
	})
	require.Len(t, store.data, 1)
	var before string
	for id := range store.data {
		before = id
	}

	roundTrip(m, cookies, func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Login(1, "alice", false)
	})
	require.Len(t, store.data, 1)
	_, stillThere := store.data[before]
	assert.False(t, stillThere)
}

func TestDestroyClearsCookieAndRecord(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store)

	cookies := roundTrip(m, nil, func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Login(1, "alice", false)
	})
	cleared := roundTrip(m, cookies, func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Destroy()
	})
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
	assert.Empty(t, store.data)
}

func TestTamperedCookieIsIgnored(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store)
	other := newTestManager(t, store)
	other.secret = []byte("another-secret")

	cookies := roundTrip(other, nil, func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Login(1, "mallory", false)
	})
	roundTrip(m, cookies, func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, FromContext(r.Context()).Authenticated())
	})
}

func TestExpiredSession(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store)
	start := time.Now()
	m.now = func() time.Time { return start }

	cookies := roundTrip(m, nil, func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Login(1, "alice", false)
	})

	m.now = func() time.Time { return start.Add(2 * time.Hour) }
	roundTrip(m, cookies, func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, FromContext(r.Context()).Authenticated())
	})
}
