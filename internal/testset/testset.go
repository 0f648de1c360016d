// Package testset copies the reference bank into an account's note store
// and removes it again.
package testset

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/bank"
	"github.com/conorfennell/memnotes/internal/domain"
	"github.com/conorfennell/memnotes/internal/metrics"
	"github.com/conorfennell/memnotes/internal/storage"
)

// ImportReport summarizes an import.
type ImportReport struct {
	Copied  int
	Skipped int
}

// RemoveReport summarizes a removal.
type RemoveReport struct {
	// Present is false when the store held no test set.
	Present      bool
	NotesDeleted int
	TagsDeleted  int
}

// Importer moves bank notes in and out of note stores.
type Importer struct {
	bankPath string
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewImporter returns an importer reading the bank at bankPath. m may be nil.
func NewImporter(bankPath string, logger *zap.Logger, m *metrics.Metrics) *Importer {
	return &Importer{
		bankPath: bankPath,
		logger:   logger.Named("testset"),
		metrics:  m,
		now:      time.Now,
	}
}

// Import copies every bank note into target, tagged with its bank tags and
// domain.SentinelTag. Statistics start at zero and the date is the import
// time. A note that fails to copy is rolled back alone, logged and skipped.
// A target that already holds the sentinel tag is refused with
// domain.ErrTestSetPresent and left untouched.
func (im *Importer) Import(ctx context.Context, target *storage.DB) (report ImportReport, err error) {
	defer func() {
		im.metrics.RecordTestSet("import", err)
		im.metrics.AddTestSetNotes("import", "copied", report.Copied)
		im.metrics.AddTestSetNotes("import", "skipped", report.Skipped)
	}()

	src, err := bank.OpenReadOnly(im.bankPath)
	if err != nil {
		return ImportReport{}, fmt.Errorf("failed to open reference bank: %w", err)
	}
	defer src.Close()

	notes, err := src.AllNotes(ctx)
	if err != nil {
		return ImportReport{}, fmt.Errorf("failed to read reference bank: %w", err)
	}

	now := im.now()
	err = target.InTx(ctx, func(tx *storage.Tx) error {
		present, err := tx.HasTag(ctx, domain.SentinelTag)
		if err != nil {
			return err
		}
		if present {
			return domain.ErrTestSetPresent
		}
		sentinelID, err := tx.EnsureTag(ctx, domain.SentinelTag)
		if err != nil {
			return err
		}

		for i, n := range notes {
			spErr := tx.Savepoint(ctx, "import_note", func() error {
				return copyNote(ctx, tx, n, sentinelID, now)
			})
			if spErr != nil {
				im.logger.Warn("Skipping bank note",
					zap.Int("index", i),
					zap.String("title", n.Title),
					zap.Error(spErr))
				report.Skipped++
				continue
			}
			report.Copied++
		}
		return nil
	})
	if err != nil {
		return ImportReport{}, err
	}

	im.logger.Info("Imported test set",
		zap.String("store", target.Path()),
		zap.Int("copied", report.Copied),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

func copyNote(ctx context.Context, tx *storage.Tx, n domain.BankNote, sentinelID int64, now time.Time) error {
	noteID, err := tx.InsertNote(ctx, n.Title, n.Content, n.Quiz, now)
	if err != nil {
		return err
	}
	if err := tx.LinkTag(ctx, noteID, sentinelID); err != nil {
		return err
	}
	for _, name := range domain.NormalizeTagNames(n.Tags) {
		tagID, err := tx.EnsureTag(ctx, name)
		if err != nil {
			return err
		}
		if err := tx.LinkTag(ctx, noteID, tagID); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes every note carrying the sentinel tag, the tag itself and
// the tags those notes leave unused, in one transaction. A store without the sentinel tag
// is left as is.
func (im *Importer) Remove(ctx context.Context, target *storage.DB) (report RemoveReport, err error) {
	defer func() {
		im.metrics.RecordTestSet("remove", err)
		im.metrics.AddTestSetNotes("remove", "deleted", report.NotesDeleted)
	}()

	err = target.InTx(ctx, func(tx *storage.Tx) error {
		present, err := tx.HasTag(ctx, domain.SentinelTag)
		if err != nil || !present {
			return err
		}
		report.Present = true

		ids, err := tx.NoteIDsWithTag(ctx, domain.SentinelTag)
		if err != nil {
			return err
		}
		touched, err := tx.TagIDsOfNotes(ctx, ids)
		if err != nil {
			return err
		}
		if report.NotesDeleted, err = tx.DeleteNotes(ctx, ids); err != nil {
			return err
		}
		if err := tx.DeleteTagByName(ctx, domain.SentinelTag); err != nil {
			return err
		}
		// Tags the removed notes did not carry stay, even when unused.
		gc, err := tx.GarbageCollectTagsIn(ctx, touched)
		if err != nil {
			return err
		}
		report.TagsDeleted = gc + 1
		return nil
	})
	if err != nil {
		return RemoveReport{}, err
	}

	if report.Present {
		im.logger.Info("Removed test set",
			zap.String("store", target.Path()),
			zap.Int("notes", report.NotesDeleted),
			zap.Int("tags", report.TagsDeleted))
	}
	return report, nil
}
