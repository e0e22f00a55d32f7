package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gitmirror/pkg/storage"

	"gorm.io/gorm"
)

// Config mirrors the storage configuration for the repositories table.
type Config struct {
	Driver      string
	DSN         string
	Dialect     string
	Table       string
	AutoMigrate bool
}

// Store implements storage.RepositoryStore on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
}

type row struct {
	ID             uint      `gorm:"column:id;primaryKey"`
	OrganizationID uint      `gorm:"column:organization_id;not null;uniqueIndex:idx_repo_external"`
	Provider       string    `gorm:"column:provider;size:32;not null;uniqueIndex:idx_repo_external"`
	ExternalID     string    `gorm:"column:external_id;size:128;not null;uniqueIndex:idx_repo_external"`
	Name           string    `gorm:"column:name;size:255"`
	URL            string    `gorm:"column:url;size:255"`
	ConfigJSON     string    `gorm:"column:config_json;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Open creates a GORM-backed repositories store.
func Open(cfg Config) (*Store, error) {
	gormDB, err := storage.Open(storage.Config{
		Driver:  cfg.Driver,
		DSN:     cfg.DSN,
		Dialect: cfg.Dialect,
	})
	if err != nil {
		return nil, err
	}

	table := cfg.Table
	if table == "" {
		table = "gitmirror_repositories"
	}
	store := &Store{db: gormDB, table: table}
	if cfg.AutoMigrate {
		if err := store.tableDB().AutoMigrate(&row{}); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return storage.CloseDB(s.db)
}

// GetByExternalID fetches the repository tracked for an organization under a
// provider-scoped external id.
func (s *Store) GetByExternalID(ctx context.Context, organizationID uint, provider, externalID string) (*storage.RepoRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data row
	err := s.tableDB().
		WithContext(ctx).
		Where("organization_id = ? AND provider = ? AND external_id = ?", organizationID, provider, externalID).
		Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record, err := fromRow(data)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateMetadata overwrites the repository URL and config map in place.
func (s *Store) UpdateMetadata(ctx context.Context, repositoryID uint, url string, config map[string]string) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return err
	}
	return s.tableDB().
		WithContext(ctx).
		Where("id = ?", repositoryID).
		Updates(map[string]interface{}{
			"url":         url,
			"config_json": string(configJSON),
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func fromRow(data row) (storage.RepoRecord, error) {
	config := make(map[string]string)
	if data.ConfigJSON != "" {
		if err := json.Unmarshal([]byte(data.ConfigJSON), &config); err != nil {
			return storage.RepoRecord{}, err
		}
	}
	return storage.RepoRecord{
		ID:             data.ID,
		OrganizationID: data.OrganizationID,
		Provider:       data.Provider,
		ExternalID:     data.ExternalID,
		Name:           data.Name,
		URL:            data.URL,
		Config:         config,
		CreatedAt:      data.CreatedAt,
		UpdatedAt:      data.UpdatedAt,
	}, nil
}
