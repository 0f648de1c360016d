package accounts

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/conorfennell/memnotes/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	s.cost = bcrypt.MinCost
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	acc, err := s.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.NotZero(t, acc.ID)
	assert.False(t, acc.HasTestSet)
	assert.NotEqual(t, "secret", acc.Hash)

	testCases := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "valid", username: "alice", password: "secret"},
		{name: "wrong password", username: "alice", password: "nope", wantErr: ErrInvalidCredentials},
		{name: "unknown user", username: "bob", password: "secret", wantErr: ErrInvalidCredentials},
		{name: "usernames are case sensitive", username: "Alice", password: "secret", wantErr: ErrInvalidCredentials},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Authenticate(ctx, tc.username, tc.password)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, acc.ID, got.ID)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Register(ctx, "alice", "one")
	require.NoError(t, err)
	_, err = s.Register(ctx, "alice", "two")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	for _, name := range []string{"Alice", "ALICE", "aLiCe"} {
		_, err = s.Register(ctx, name, "three")
		assert.ErrorIs(t, err, ErrUsernameTaken, name)
	}
	_, err = s.Register(ctx, "alice_2", "four")
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	acc, err := s.Register(ctx, "alice", "old")
	require.NoError(t, err)

	assert.ErrorIs(t, s.ChangePassword(ctx, acc.ID, "wrong", "new"), ErrInvalidCredentials)
	require.NoError(t, s.ChangePassword(ctx, acc.ID, "old", "new"))

	_, err = s.Authenticate(ctx, "alice", "old")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "alice", "new")
	assert.NoError(t, err)
}

func TestSetTestSet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	acc, err := s.Register(ctx, "alice", "pw")
	require.NoError(t, err)

	require.NoError(t, s.SetTestSet(ctx, acc.ID, true))
	got, err := s.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.HasTestSet)

	require.NoError(t, s.SetTestSet(ctx, acc.ID, false))
	got, err = s.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, got.HasTestSet)

	assert.ErrorIs(t, s.SetTestSet(ctx, 999, true), domain.ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	acc, err := s.Register(ctx, "alice", "pw")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, acc.ID))
	_, err = s.Get(ctx, acc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Register(ctx, "alice", "pw")
	assert.NoError(t, err)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.SaveSession(ctx, "abc", []byte(`{"a":1}`), now.Add(time.Hour)))
	data, err := s.LoadSession(ctx, "abc", now)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	t.Run("save replaces", func(t *testing.T) {
		require.NoError(t, s.SaveSession(ctx, "abc", []byte(`{"a":2}`), now.Add(time.Hour)))
		data, err := s.LoadSession(ctx, "abc", now)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":2}`, string(data))
	})

	t.Run("expired is not found", func(t *testing.T) {
		_, err := s.LoadSession(ctx, "abc", now.Add(2*time.Hour))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("purge and delete", func(t *testing.T) {
		require.NoError(t, s.SaveSession(ctx, "old", []byte(`{}`), now.Add(-time.Minute)))
		n, err := s.PurgeExpiredSessions(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		require.NoError(t, s.DeleteSession(ctx, "abc"))
		_, err = s.LoadSession(ctx, "abc", now)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	assert.Error(t, err)
}
