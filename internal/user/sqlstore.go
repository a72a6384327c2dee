package user

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLStore keeps users in a SQLite database. The username column is
// declared COLLATE NOCASE, so equality and the unique index both ignore
// case without lowercasing in Go.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore opens or creates the database at dbPath and migrates it.
func NewSQLStore(dbPath string) (*SQLStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite user store needs a path")
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Lookup(username string) (*Record, error) {
	var rec Record
	err := s.db.Where("username = ?", username).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", username, err)
	}
	return &rec, nil
}

func (s *SQLStore) Insert(username, passwordHash, contact string) (*Record, error) {
	rec := Record{Username: username, PasswordHash: passwordHash, Contact: contact}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Record{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUserExists
		}
		return tx.Create(&rec).Error
	})
	if errors.Is(err, ErrUserExists) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert user %s: %w", username, err)
	}
	return &rec, nil
}

// update sets a single column on the user's row.
func (s *SQLStore) update(username, column string, value any) error {
	res := s.db.Model(&Record{}).Where("username = ?", username).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update %s for %s: %w", column, username, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *SQLStore) UpdatePassword(username, passwordHash string) error {
	return s.update(username, "password", passwordHash)
}

func (s *SQLStore) UpdateContact(username, contact string) error {
	return s.update(username, "contact", contact)
}

func (s *SQLStore) SetNoLogin(username string, noLogin bool) error {
	return s.update(username, "nologin", noLogin)
}

func (s *SQLStore) List() ([]*Record, error) {
	var list []*Record
	if err := s.db.Order("id").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return list, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
