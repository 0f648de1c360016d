package banksync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/bank"
)

const capitals = `T: Capitals
N: Paris is the capital of France.
Q: Capital of France?
A: Paris
W: Lyon
W: Nice
W: Lille
G: geo
---
T: Rivers
N: The Seine flows through Paris.
G: geo, rivers
`

func newTestSyncer(t *testing.T) (*Syncer, *bank.Store) {
	t.Helper()
	store, err := bank.Open(filepath.Join(t.TempDir(), "bank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, filepath.Join(t.TempDir(), "repos"), zap.NewNop()), store
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRunReconcilesLocalSource(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSyncer(t)
	dir := t.TempDir()
	writeFile(t, dir, "geo.md", capitals)
	writeFile(t, dir, "ignored.txt", "T: not markdown\nN: skipped\n")

	_, err := s.AddSource(ctx, dir)
	require.NoError(t, err)

	reports, err := s.Run(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].Parsed)
	assert.Equal(t, 2, reports[0].Inserted)
	assert.Empty(t, reports[0].Errors)

	t.Run("unchanged files insert nothing", func(t *testing.T) {
		reports, err := s.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, reports[0].Inserted)
		assert.Zero(t, reports[0].Deleted)
	})

	t.Run("removed notes are deleted", func(t *testing.T) {
		writeFile(t, dir, "geo.md", "T: Rivers\nN: The Seine flows through Paris.\nG: geo, rivers\n")
		reports, err := s.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, reports[0].Deleted)

		notes, err := store.AllNotes(ctx)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "Rivers", notes[0].Title)
	})

	t.Run("malformed notes are reported and skipped", func(t *testing.T) {
		writeFile(t, dir, "bad.md", "T: No content\n---\nT: Good\nN: fine\n")
		reports, err := s.Run(ctx)
		require.NoError(t, err)
		assert.Len(t, reports[0].Errors, 1)
		assert.Equal(t, 1, reports[0].Inserted)
	})
}

func TestAddSource(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSyncer(t)
	dir := t.TempDir()

	id, err := s.AddSource(ctx, dir)
	require.NoError(t, err)
	again, err := s.AddSource(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = s.AddSource(ctx, filepath.Join(dir, "missing"))
	assert.Error(t, err)

	gitID, err := s.AddSource(ctx, "https://example.com/acme/bank.git")
	require.NoError(t, err)
	sources, err := store.AllSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, gitID, sources[1].ID)
	assert.Equal(t, bank.SourceGit, sources[1].Type)
}

func TestRunGitSource(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSyncer(t)
	var checkedOut string
	s.gitSync = func(_ context.Context, _ *zap.Logger, _ string, localPath string) error {
		checkedOut = localPath
		require.NoError(t, os.MkdirAll(localPath, 0o755))
		writeFile(t, localPath, "bank.md", capitals)
		return nil
	}

	_, err := s.AddSource(ctx, "https://example.com/acme/bank.git")
	require.NoError(t, err)
	reports, err := s.Run(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, filepath.Join(s.reposDir, "example.com", "acme", "bank"), checkedOut)

	count, err := store.CountNotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunWithoutSources(t *testing.T) {
	s, _ := newTestSyncer(t)
	reports, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reports)
}
