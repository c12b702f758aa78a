// Package store manages the local sqlite database: the durable credential
// and the cached project list.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/torvik/sketchbridge/internal/models"
)

// credentialRow is the fixed primary key of the single credential row.
const credentialRow = 1

// Store wraps the local GORM database.
type Store struct {
	db *gorm.DB
}

// AllModels returns the list of GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Credential{},
		&models.CachedProject{},
	}
}

// Open opens (creating if needed) the sqlite database at path and migrates
// the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("store: auto-migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveCredential upserts the single credential row.
func (s *Store) SaveCredential(token, handle, avatarURL string) error {
	cred := models.Credential{
		ID:        credentialRow,
		Token:     token,
		Handle:    handle,
		AvatarURL: avatarURL,
		UpdatedAt: time.Now(),
	}
	if err := s.db.Save(&cred).Error; err != nil {
		return fmt.Errorf("store: save credential: %w", err)
	}
	return nil
}

// LoadCredential returns the durable credential, or (nil, nil) when none is
// stored.
func (s *Store) LoadCredential() (*models.Credential, error) {
	var cred models.Credential
	err := s.db.First(&cred, credentialRow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load credential: %w", err)
	}
	return &cred, nil
}

// ClearCredential removes the durable credential. Removing an absent row is
// not an error.
func (s *Store) ClearCredential() error {
	if err := s.db.Delete(&models.Credential{}, credentialRow).Error; err != nil {
		return fmt.Errorf("store: clear credential: %w", err)
	}
	return nil
}

// UpsertProject writes or refreshes one cached project row.
func (s *Store) UpsertProject(p models.CachedProject) error {
	p.SyncedAt = time.Now()
	if err := s.db.Save(&p).Error; err != nil {
		return fmt.Errorf("store: upsert project %s: %w", p.ID, err)
	}
	return nil
}

// ListProjects returns all cached projects ordered by name.
func (s *Store) ListProjects() ([]models.CachedProject, error) {
	var projects []models.CachedProject
	if err := s.db.Order("name").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	return projects, nil
}

// DeleteProject removes one cached project row.
func (s *Store) DeleteProject(id string) error {
	if err := s.db.Delete(&models.CachedProject{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("store: delete project %s: %w", id, err)
	}
	return nil
}

// ClearProjects removes every cached project row. Used on sign-out.
func (s *Store) ClearProjects() error {
	if err := s.db.Where("1 = 1").Delete(&models.CachedProject{}).Error; err != nil {
		return fmt.Errorf("store: clear projects: %w", err)
	}
	return nil
}
