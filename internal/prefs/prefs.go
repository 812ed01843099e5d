// Package prefs implements the external preferences collaborator: the last
// used server URI and the last username per server, persisted in a small
// sqlite database. The core session subsystem never touches this store; only
// the CLI front end does.
package prefs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ServerPreference is one remembered server.
type ServerPreference struct {
	ServerURL    string `gorm:"primaryKey"`
	LastUsername string
	UpdatedAt    time.Time
}

// Store persists connection preferences.
type Store interface {
	// LastServer returns the most recently used server URL, or "" when none
	// is remembered.
	LastServer(ctx context.Context) (string, error)

	// LastUsername returns the last username used against the given server,
	// or "" when none is remembered.
	LastUsername(ctx context.Context, serverURL string) (string, error)

	// Remember records a server and optionally the username used against it.
	Remember(ctx context.Context, serverURL, username string) error

	Close() error
}

// SQLiteStore implements Store on a local sqlite database.
type SQLiteStore struct {
	logger *zap.Logger
	db     *gorm.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the preferences database at path.
func NewSQLiteStore(logger *zap.Logger, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ServerPreference{}); err != nil {
		return nil, err
	}
	return &SQLiteStore{
		logger: logger.Named("prefs.sqlite"),
		db:     db,
	}, nil
}

// LastServer implements Store.LastServer
func (s *SQLiteStore) LastServer(ctx context.Context) (string, error) {
	var pref ServerPreference
	err := s.db.WithContext(ctx).Order("updated_at desc").First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return pref.ServerURL, nil
}

// LastUsername implements Store.LastUsername
func (s *SQLiteStore) LastUsername(ctx context.Context, serverURL string) (string, error) {
	var pref ServerPreference
	err := s.db.WithContext(ctx).First(&pref, "server_url = ?", serverURL).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return pref.LastUsername, nil
}

// Remember implements Store.Remember
func (s *SQLiteStore) Remember(ctx context.Context, serverURL, username string) error {
	pref := ServerPreference{
		ServerURL:    serverURL,
		LastUsername: username,
		UpdatedAt:    time.Now(),
	}
	return s.db.WithContext(ctx).Save(&pref).Error
}

// Close implements Store.Close
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
