package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/iconbench/pkg/config"
	"github.com/ethpandaops/iconbench/pkg/ids"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entry is one stored key.
type Entry struct {
	Key       string `gorm:"primaryKey;size:255"`
	Value     []byte `gorm:"not null"`
	Revision  int64  `gorm:"not null"`
	Writer    string `gorm:"size:64;not null"`
	UpdatedAt time.Time
}

// TableName overrides the gorm default.
func (Entry) TableName() string {
	return "kv_entries"
}

// Compile-time interface check.
var _ Store = (*sqlStore)(nil)

// sqlStore persists keys in a database table. Every write bumps the key's
// revision and records the writing instance; a poll loop turns revisions
// written by other instances into Change events.
type sqlStore struct {
	log      logrus.FieldLogger
	cfg      *config.StorageConfig
	writer   string
	db       *gorm.DB
	watchers watchers

	mu   sync.Mutex
	seen map[string]int64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSQLStore creates a Store backed by the sqlite or postgres driver.
func NewSQLStore(log logrus.FieldLogger, cfg *config.StorageConfig) Store {
	return &sqlStore{
		log:    log.WithField("component", "kvstore-sql"),
		cfg:    cfg,
		writer: ids.NewInstanceID(),
		seen:   make(map[string]int64),
		done:   make(chan struct{}),
	}
}

// Start opens the database connection, runs migrations and starts the
// change poller.
func (s *sqlStore) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(s.cfg.SQLite.Path))
	case "postgres":
		dialector = postgres.Open(s.cfg.Postgres.DSN())
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening storage database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		// A single connection keeps ":memory:" databases shared and
		// serializes writers.
		sqlDB.SetMaxOpenConns(1)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("running storage migrations: %w", err)
	}

	revs, err := s.revisions(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.seen = revs
	s.mu.Unlock()

	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.poll(ctx)
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	s.log.WithFields(logrus.Fields{
		"driver":   s.cfg.Driver,
		"interval": interval.String(),
	}).Info("Storage database connected")

	return nil
}

// Stop stops the poller and closes the underlying database connection.
func (s *sqlStore) Stop() error {
	if s.db == nil {
		return nil
	}

	close(s.done)
	s.wg.Wait()

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	s.db = nil

	return sqlDB.Close()
}

func (s *sqlStore) Get(ctx context.Context, key string) ([]byte, error) {
	var e Entry

	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("getting %s: %w", key, err)
	}

	return e.Value, nil
}

func (s *sqlStore) Set(ctx context.Context, key string, value []byte) error {
	var rev int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var e Entry

		err := tx.Where("key = ?", key).Take(&e).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			e = Entry{Key: key}
		case err != nil:
			return err
		}

		e.Value = value
		e.Revision++
		e.Writer = s.writer
		rev = e.Revision

		return tx.Save(&e).Error
	})
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}

	s.mu.Lock()
	s.seen[key] = rev
	s.mu.Unlock()

	return nil
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.seen, key)
	s.mu.Unlock()

	if err := s.db.WithContext(ctx).
		Where("key = ?", key).
		Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}

	return nil
}

func (s *sqlStore) Watch(fn func(Change)) func() {
	return s.watchers.add(fn)
}

// revisions returns the current revision of every key.
func (s *sqlStore) revisions(ctx context.Context) (map[string]int64, error) {
	var rows []Entry
	if err := s.db.WithContext(ctx).
		Select("key", "revision").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing revisions: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Revision
	}

	return out, nil
}

// poll emits a Change for every key whose revision moved since the last
// pass because of another writer, and for every key that disappeared.
func (s *sqlStore) poll(ctx context.Context) {
	var rows []Entry
	if err := s.db.WithContext(ctx).
		Select("key", "revision", "writer").
		Find(&rows).Error; err != nil {
		s.log.WithError(err).Warn("Storage poll failed")

		return
	}

	var (
		changed []string
		deleted []string
	)

	s.mu.Lock()

	present := make(map[string]struct{}, len(rows))

	for _, r := range rows {
		present[r.Key] = struct{}{}

		if s.seen[r.Key] == r.Revision {
			continue
		}

		s.seen[r.Key] = r.Revision

		if r.Writer != s.writer {
			changed = append(changed, r.Key)
		}
	}

	for key := range s.seen {
		if _, ok := present[key]; !ok {
			delete(s.seen, key)
			deleted = append(deleted, key)
		}
	}

	s.mu.Unlock()

	for _, key := range changed {
		value, err := s.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}

			s.log.WithError(err).WithField("key", key).Warn("Failed to read changed key")

			continue
		}

		s.watchers.emit(Change{Key: key, Value: value})
	}

	for _, key := range deleted {
		s.watchers.emit(Change{Key: key, Deleted: true})
	}
}

// sqliteDSN enables a busy timeout so several processes can share a file.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}

	return "file:" + path + "?_pragma=busy_timeout(5000)"
}
