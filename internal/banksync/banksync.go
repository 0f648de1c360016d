// Package banksync reconciles the reference bank with its sources.
package banksync

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/bank"
	"github.com/conorfennell/memnotes/internal/fingerprint"
	"github.com/conorfennell/memnotes/internal/gitsource"
	"github.com/conorfennell/memnotes/internal/parser"
)

// GitSyncFunc updates the checkout of a git source.
type GitSyncFunc func(ctx context.Context, logger *zap.Logger, repoURL, localPath string) error

// Syncer reconciles every source registered in a bank.
type Syncer struct {
	store    *bank.Store
	reposDir string
	logger   *zap.Logger
	gitSync  GitSyncFunc
}

// New returns a Syncer that checks git sources out under reposDir.
func New(store *bank.Store, reposDir string, logger *zap.Logger) *Syncer {
	return &Syncer{
		store:    store,
		reposDir: reposDir,
		logger:   logger.Named("banksync"),
		gitSync:  gitsource.Sync,
	}
}

// Report summarizes the reconciliation of one source.
type Report struct {
	SourceID int64
	Path     string
	Parsed   int
	Inserted int
	Deleted  int
	Errors   []error
}

// AddSource registers a local directory or git URL. Local paths are stored
// as absolute paths.
func (s *Syncer) AddSource(ctx context.Context, path string) (int64, error) {
	sourceType := bank.SourceLocal
	if gitsource.IsURL(path) {
		sourceType = bank.SourceGit
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return 0, fmt.Errorf("failed to stat %s: %w", abs, err)
		}
		if !info.IsDir() {
			return 0, fmt.Errorf("%s is not a directory", abs)
		}
		path = abs
	}

	existing, err := s.store.FindSourceByPath(ctx, path)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	return s.store.InsertSource(ctx, path, sourceType)
}

// Run iterates over all sources and reconciles them. A failing source is
// logged and skipped.
func (s *Syncer) Run(ctx context.Context) ([]Report, error) {
	s.logger.Info("Starting sync process for all sources")
	sources, err := s.store.AllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		s.logger.Info("No sources configured. Add one with 'memnotes bank add-source <path/or/url.git>'")
		return nil, nil
	}

	var reports []Report
	for _, source := range sources {
		s.logger.Info("Syncing source",
			zap.Int64("id", source.ID), zap.String("type", source.Type), zap.String("path", source.Path))

		dir := source.Path
		if source.Type == bank.SourceGit {
			localRepoPath, err := gitsource.LocalPath(s.reposDir, source.Path)
			if err != nil {
				s.logger.Error("Error determining local path for git repo", zap.String("url", source.Path), zap.Error(err))
				continue
			}
			if err := os.MkdirAll(filepath.Dir(localRepoPath), 0o755); err != nil {
				s.logger.Error("Failed to create repos directory", zap.Error(err))
				continue
			}
			if err := s.gitSync(ctx, s.logger, source.Path, localRepoPath); err != nil {
				s.logger.Error("Error syncing git repo", zap.String("url", source.Path), zap.Error(err))
				continue
			}
			dir = localRepoPath
		}

		report, err := s.reconcile(ctx, source.ID, dir)
		if err != nil {
			s.logger.Error("Error reconciling source", zap.String("path", source.Path), zap.Error(err))
			continue
		}
		reports = append(reports, report)
	}

	if removed, err := s.store.DeleteUnusedTags(ctx); err != nil {
		s.logger.Warn("Failed to delete unused bank tags", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("Deleted unused bank tags", zap.Int64("count", removed))
	}
	s.logger.Info("Sync process complete")
	return reports, nil
}

func (s *Syncer) reconcile(ctx context.Context, sourceID int64, dir string) (Report, error) {
	report := Report{SourceID: sourceID, Path: dir}
	found := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		res, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
			return nil
		}
		for _, p := range res.Problems {
			s.logger.Warn("Skipping malformed note", zap.String("file", path), zap.Error(p))
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", path, p))
		}

		for _, note := range res.Notes {
			note.Hash = fingerprint.Hash(note)
			report.Parsed++
			if found[note.Hash] {
				continue
			}
			found[note.Hash] = true

			exists, err := s.store.HasHash(ctx, note.Hash)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("db check for %s: %w", note.Hash, err))
				continue
			}
			if exists {
				continue
			}
			s.logger.Debug("New note found, inserting", zap.String("hash", note.Hash), zap.String("title", note.Title))
			if err := s.store.InsertNote(ctx, note, sourceID); err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("db insert for %s: %w", note.Hash, err))
				continue
			}
			report.Inserted++
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	hashes, err := s.store.HashesBySource(ctx, sourceID)
	if err != nil {
		return report, err
	}
	for _, h := range hashes {
		if found[h] {
			continue
		}
		s.logger.Debug("Orphaned note, deleting", zap.String("hash", h))
		if err := s.store.DeleteNoteByHash(ctx, h); err != nil {
			s.logger.Warn("Failed to delete orphaned note", zap.String("hash", h), zap.Error(err))
			continue
		}
		report.Deleted++
	}

	if err := s.store.UpdateSourceLastScanned(ctx, sourceID); err != nil {
		s.logger.Warn("Failed to update last scanned for source", zap.Int64("source_id", sourceID), zap.Error(err))
	}

	s.logger.Info("Reconciliation complete",
		zap.String("path", dir),
		zap.Int("parsed_notes", report.Parsed),
		zap.Int("inserted", report.Inserted),
		zap.Int("orphaned_deleted", report.Deleted),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}
