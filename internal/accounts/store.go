// Package accounts keeps credentials, the per-account test set flag and
// server-side sessions in one shared database.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/conorfennell/memnotes/internal/domain"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username and/or password")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is the shared account database.
type Store struct {
	db   *gorm.DB
	cost int
}

// Open connects to the account database and migrates its tables. For the
// sqlite driver dsn is a file path.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		dialector = sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: sqliteDSN(dsn)})
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported accounts driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open accounts database: %w", err)
	}
	if driver != DriverPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access accounts connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Account{}, &SessionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate accounts database: %w", err)
	}
	return &Store{db: db, cost: bcrypt.DefaultCost}, nil
}

func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// gorm's sqlite dialector only translates mattn errors.
	var se *msqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// Register creates an account with a bcrypt hash of password. Usernames
// that differ only in case are taken, since each names a store file and
// some filesystems fold case.
func (s *Store) Register(ctx context.Context, username, password string) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	acc := &Account{Username: username, Hash: string(hash)}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Account{}).
			Where("LOWER(username) = ?", strings.ToLower(username)).
			Count(&n).Error; err != nil {
			return fmt.Errorf("failed to look up account %s: %w", username, err)
		}
		if n > 0 {
			return fmt.Errorf("%s: %w", username, ErrUsernameTaken)
		}
		if err := tx.Create(acc).Error; err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("%s: %w", username, ErrUsernameTaken)
			}
			return fmt.Errorf("failed to create account %s: %w", username, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Authenticate returns the account when password matches its hash.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	var acc Account
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account %s: %w", username, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.Hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &acc, nil
}

// Get returns the account with the given ID.
func (s *Store) Get(ctx context.Context, id uint) (*Account, error) {
	var acc Account
	err := s.db.WithContext(ctx).First(&acc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account %d: %w", id, err)
	}
	return &acc, nil
}

// ChangePassword replaces the hash after verifying the current password.
func (s *Store) ChangePassword(ctx context.Context, id uint, current, next string) error {
	acc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.Hash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(acc).Update("hash", string(hash)).Error; err != nil {
		return fmt.Errorf("failed to update password for account %d: %w", id, err)
	}
	return nil
}

// SetTestSet records whether the account's store holds the imported test set.
func (s *Store) SetTestSet(ctx context.Context, id uint, present bool) error {
	res := s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).Update("has_test_set", present)
	if res.Error != nil {
		return fmt.Errorf("failed to update test set flag for account %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Delete removes an account. Used to undo a registration whose note store
// could not be created.
func (s *Store) Delete(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&Account{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete account %d: %w", id, err)
	}
	return nil
}

// SaveSession inserts or replaces a session record.
func (s *Store) SaveSession(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	rec := SessionRecord{ID: id, Data: data, ExpiresAt: expiresAt}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession returns the data of a live session. Expired or unknown
// sessions are reported as domain.ErrNotFound.
func (s *Store) LoadSession(ctx context.Context, id string, now time.Time) ([]byte, error) {
	var rec SessionRecord
	err := s.db.WithContext(ctx).Where("id = ? AND expires_at > ?", id, now).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return rec.Data, nil
}

// DeleteSession removes a session record.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&SessionRecord{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions deletes every session that expired before now.
func (s *Store) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&SessionRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
