package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/yukikurage/task-management-client/internal/config"
	"github.com/yukikurage/task-management-client/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one persisted key/value pair.
type Entry struct {
	Key       string    `gorm:"column:storage_key;primaryKey;size:191"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Entry) TableName() string {
	return "storage_entries"
}

// GormStore is a Store backed by a relational database.
type GormStore struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the entries table.
func Open(cfg *config.Config) (*GormStore, error) {
	db, err := database.Open(cfg.StorageDriver, cfg.StorageDSN, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	store, err := NewGormStore(db)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}

	log.Printf("storage: using %s backend", cfg.StorageDriver)
	return store, nil
}

// NewGormStore wraps an open connection and migrates the entries table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate storage: %w", err)
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreWithoutMigration wraps a connection whose schema is managed elsewhere.
func NewGormStoreWithoutMigration(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Where("storage_key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return entry.Value, true, nil
}

func (s *GormStore) Put(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	keys := make([]string, 0, len(entries))
	for key := range entries {
		if key == "" {
			return ErrEmptyKey
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	now := time.Now()
	rows := make([]Entry, len(keys))
	for i, key := range keys {
		rows[i] = Entry{Key: key, Value: entries[key], UpdatedAt: now}
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "storage_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to write storage entries: %w", err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("storage_key IN ?", keys).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("failed to delete storage entries: %w", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	return database.Close(s.db)
}
